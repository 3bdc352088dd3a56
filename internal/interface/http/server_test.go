package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/alem-missions/internal/infrastructure/messaging"
	"github.com/alem-hub/alem-missions/internal/infrastructure/scheduler"
	"github.com/alem-hub/alem-missions/internal/interface/http/handlers"
)

type stubJobs []scheduler.JobInfo

func (s stubJobs) ListJobs() []scheduler.JobInfo { return s }

func serve(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServer_Healthz(t *testing.T) {
	srv := NewServer(DefaultConfig(), Dependencies{})
	rec := serve(t, srv, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_Readyz(t *testing.T) {
	health := handlers.NewCompositeHealthChecker("test")
	srv := NewServer(DefaultConfig(), Dependencies{Health: health})

	health.AddCheck("postgres", func(context.Context) error { return nil })
	assert.Equal(t, http.StatusOK, serve(t, srv, "/readyz").Code)

	health.AddCheck("redis", func(context.Context) error { return errors.New("down") })
	rec := serve(t, srv, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var status handlers.HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.Healthy)
	assert.False(t, status.Checks["redis"].Healthy)
}

func TestServer_DebugJobs(t *testing.T) {
	last := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	jobs := stubJobs{{
		Name:       "reconcile_badges",
		Schedule:   "@every 1h0m0s",
		Enabled:    true,
		RunCount:   3,
		FailCount:  1,
		LastRun:    last,
		LastResult: &scheduler.JobResult{Error: errors.New("too many failures")},
	}}
	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{EnableMetrics: true})
	t.Cleanup(func() { _ = bus.Close() })

	srv := NewServer(DefaultConfig(), Dependencies{Jobs: jobs, Bus: bus})
	rec := serve(t, srv, "/debug/jobs")
	require.Equal(t, http.StatusOK, rec.Code)

	var view DebugView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Len(t, view.Jobs, 1)
	assert.Equal(t, "reconcile_badges", view.Jobs[0].Name)
	assert.Equal(t, "too many failures", view.Jobs[0].LastError)
	require.NotNil(t, view.Jobs[0].LastRun)
	assert.True(t, last.Equal(*view.Jobs[0].LastRun))
	assert.Nil(t, view.Jobs[0].NextRun)
	require.NotNil(t, view.Bus)
	assert.Zero(t, view.Bus.Published)
}

func TestServer_UnknownRoute(t *testing.T) {
	srv := NewServer(DefaultConfig(), Dependencies{})
	assert.Equal(t, http.StatusNotFound, serve(t, srv, "/metrics").Code)
}
