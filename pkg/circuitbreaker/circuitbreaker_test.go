package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("down")

func fail(context.Context) error { return errDown }
func ok(context.Context) error   { return nil }

// clock is a manual time source for cool-down tests.
type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(s Settings) (*Breaker, *clock) {
	c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := New(s)
	b.now = c.now
	return b, c
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	var transitions []string
	b, _ := newTestBreaker(Settings{
		Name:      "redis",
		Threshold: 2,
		OnStateChange: func(_ string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	ctx := context.Background()

	assert.ErrorIs(t, b.Execute(ctx, fail), errDown)
	assert.Equal(t, StateClosed, b.State())
	assert.ErrorIs(t, b.Execute(ctx, fail), errDown)
	assert.Equal(t, StateOpen, b.State())

	called := false
	err := b.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
	assert.Equal(t, []string{"closed->open"}, transitions)
	assert.Equal(t, Stats{Calls: 2, Failures: 2, Rejected: 1}, b.Stats())
}

func TestBreaker_SuccessResetsFailureStreak(t *testing.T) {
	b, _ := newTestBreaker(Settings{Threshold: 2})
	ctx := context.Background()

	_ = b.Execute(ctx, fail)
	require.NoError(t, b.Execute(ctx, ok))
	_ = b.Execute(ctx, fail)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_ProbeClosesAfterCooldown(t *testing.T) {
	b, c := newTestBreaker(Settings{Threshold: 1, Cooldown: time.Minute})
	ctx := context.Background()

	require.Error(t, b.Execute(ctx, fail))
	c.advance(30 * time.Second)
	assert.ErrorIs(t, b.Execute(ctx, ok), ErrOpen)

	c.advance(30 * time.Second)
	require.NoError(t, b.Execute(ctx, ok))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	b, c := newTestBreaker(Settings{Threshold: 1, Cooldown: time.Minute})
	ctx := context.Background()

	require.Error(t, b.Execute(ctx, fail))
	c.advance(time.Minute)
	require.ErrorIs(t, b.Execute(ctx, fail), errDown)
	assert.Equal(t, StateOpen, b.State())

	assert.ErrorIs(t, b.Execute(ctx, ok), ErrOpen, "cool-down restarts from the failed probe")
}

func TestBreaker_SingleProbeInFlight(t *testing.T) {
	b, c := newTestBreaker(Settings{Threshold: 1, Cooldown: time.Minute})
	ctx := context.Background()

	require.Error(t, b.Execute(ctx, fail))
	c.advance(time.Minute)

	err := b.Execute(ctx, func(ctx context.Context) error {
		assert.Equal(t, StateHalfOpen, b.State())
		assert.ErrorIs(t, b.Execute(ctx, ok), ErrOpen)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_IgnoresCallerCancellation(t *testing.T) {
	b, _ := newTestBreaker(Settings{Threshold: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Execute(ctx, func(ctx context.Context) error { return ctx.Err() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, b.State())
	assert.Zero(t, b.Stats().Calls)
}

func TestBreaker_IsFailureFilter(t *testing.T) {
	benign := errors.New("not found")
	b, _ := newTestBreaker(Settings{Threshold: 1, IsFailure: func(err error) bool { return !errors.Is(err, benign) }})

	assert.ErrorIs(t, b.Execute(context.Background(), func(context.Context) error { return benign }), benign)
	assert.Equal(t, StateClosed, b.State())
}

func TestNotificationBreaker(t *testing.T) {
	b := NotificationBreaker(nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = b.Execute(ctx, fail)
	}
	assert.Equal(t, StateOpen, b.State())
	assert.Equal(t, "notifications", b.Name())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.Zero(t, b.Stats())
}
