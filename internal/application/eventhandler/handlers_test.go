package eventhandler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/alem-missions/internal/domain/notification"
	"github.com/alem-hub/alem-missions/internal/domain/project"
	"github.com/alem-hub/alem-missions/internal/domain/shared"
	"github.com/alem-hub/alem-missions/internal/infrastructure/persistence/memory"
)

type mockCache struct {
	mock.Mock
}

func (m *mockCache) GetBadgeIDs(ctx context.Context, id string) ([]string, bool, error) {
	args := m.Called(ctx, id)
	return args.Get(0).([]string), args.Bool(1), args.Error(2)
}

func (m *mockCache) AddBadges(ctx context.Context, id string, ids []string) error {
	return m.Called(ctx, id, ids).Error(0)
}

func (m *mockCache) SetBadgeIDs(ctx context.Context, id string, ids []string) error {
	return m.Called(ctx, id, ids).Error(0)
}

func (m *mockCache) Invalidate(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type mockSink struct {
	mock.Mock
}

func (m *mockSink) Notify(ctx context.Context, n notification.Notification) error {
	return m.Called(ctx, n).Error(0)
}

func TestOnBadgeEarned_AddsToCache(t *testing.T) {
	cache := &mockCache{}
	cache.On("AddBadges", mock.Anything, "s1", []string{"b1"}).Return(nil).Once()

	h := NewOnBadgeEarnedHandler(cache, 0, nil)
	require.NoError(t, h.Handle(shared.NewBadgeEarnedEvent("s1", "b1", "First", "p1")))

	cache.AssertExpectations(t)
	cache.AssertNotCalled(t, "Invalidate", mock.Anything, mock.Anything)
}

func TestOnBadgeEarned_InvalidatesOnFailure(t *testing.T) {
	cache := &mockCache{}
	cache.On("AddBadges", mock.Anything, "s1", []string{"b1"}).Return(errors.New("timeout"))
	cache.On("Invalidate", mock.Anything, "s1").Return(nil).Once()

	h := NewOnBadgeEarnedHandler(cache, 0, nil)
	require.NoError(t, h.Handle(shared.NewBadgeEarnedEvent("s1", "b1", "First", "")))
	cache.AssertExpectations(t)
}

func TestOnBadgeEarned_IgnoresOtherEvents(t *testing.T) {
	cache := &mockCache{}
	h := NewOnBadgeEarnedHandler(cache, 0, nil)
	require.NoError(t, h.Handle(shared.NewStepCompletedEvent("p1", "st1", "", true)))
	cache.AssertNotCalled(t, "AddBadges", mock.Anything, mock.Anything, mock.Anything)
}

func TestOnProjectSubmitted_NotifiesReviewers(t *testing.T) {
	projects := memory.NewProjectRepository()
	p, err := project.NewProject(project.NewProjectParams{ID: "p1", StudentID: "s1", Title: "Rover", Station: "robotics"})
	require.NoError(t, err)
	require.NoError(t, projects.Create(context.Background(), p))

	sink := &mockSink{}
	sink.On("Notify", mock.Anything, mock.MatchedBy(func(n notification.Notification) bool {
		return n.Severity == notification.SeverityInfo && n.ProjectID == "p1"
	})).Return(nil).Twice()

	h := NewOnProjectSubmittedHandler(projects, sink, []string{"i1", "i2", "i1"}, nil)

	require.NoError(t, h.Handle(shared.NewProjectStatusChangedEvent("p1", "s1", "building", "submitted", "s1")))
	sink.AssertExpectations(t)

	// Другие переходы игнорируются.
	require.NoError(t, h.Handle(shared.NewProjectStatusChangedEvent("p1", "s1", "planning", "building", "s1")))
	sink.AssertNumberOfCalls(t, "Notify", 2)
}

func TestOnProjectSubmitted_MissingProject(t *testing.T) {
	h := NewOnProjectSubmittedHandler(memory.NewProjectRepository(), &mockSink{}, []string{"i1"}, nil)
	err := h.Handle(shared.NewProjectStatusChangedEvent("ghost", "s1", "building", "submitted", "s1"))
	assert.True(t, shared.IsNotFound(err))
}
