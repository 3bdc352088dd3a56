package handlers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestCompositeHealthChecker_NoChecks(t *testing.T) {
	status := NewCompositeHealthChecker("v1").Check(context.Background())
	assert.True(t, status.Healthy)
	assert.Equal(t, "v1", status.Version)
	assert.Empty(t, status.Checks)
}

func TestCompositeHealthChecker_ReportsFailures(t *testing.T) {
	c := NewCompositeHealthChecker("v1")
	c.AddCheck("postgres", PingCheck(pingFunc(func(context.Context) error { return nil })))
	c.AddCheck("redis", PingCheck(pingFunc(func(context.Context) error { return errors.New("connection refused") })))

	status := c.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.Equal(t, "Some checks failed: redis", status.Message)
	require.Len(t, status.Checks, 2)
	assert.True(t, status.Checks["postgres"].Healthy)
	assert.Equal(t, "connection refused", status.Checks["redis"].Message)

	c.RemoveCheck("redis")
	assert.True(t, c.Check(context.Background()).Healthy)
}

func TestCompositeHealthChecker_TimesOutSlowCheck(t *testing.T) {
	c := NewCompositeHealthChecker("")
	c.SetTimeout(10 * time.Millisecond)
	c.AddCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	status := c.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.Equal(t, context.DeadlineExceeded.Error(), status.Checks["slow"].Message)
}
