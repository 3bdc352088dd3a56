// Package testhelpers starts shared Docker containers for integration tests.
// Containers are created once per test binary and reused by every test.
package testhelpers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	postgresImage = "postgres:16-alpine"
	redisImage    = "redis:7-alpine"
)

// Container is a running dependency reachable from the test process.
type Container struct {
	Container testcontainers.Container

	// Addr is host:port of the mapped service port.
	Addr string

	// URL is a client connection string for the service.
	URL string
}

var (
	pgOnce sync.Once
	pgC    *Container
	pgErr  error

	redisOnce sync.Once
	redisC    *Container
	redisErr  error
)

// Postgres returns a shared PostgreSQL container. The test is skipped in
// -short mode because Docker is required.
func Postgres(t *testing.T) *Container {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	pgOnce.Do(func() {
		pgC, pgErr = start(testcontainers.ContainerRequest{
			Image:        postgresImage,
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_DB":       "missions_test",
				"POSTGRES_USER":     "missions",
				"POSTGRES_PASSWORD": "test_password",
			},
			// The server restarts once after init, so the line shows up twice.
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		}, func(ctx context.Context, c testcontainers.Container) (string, error) {
			p, err := c.MappedPort(ctx, "5432")
			return p.Port(), err
		})
		if pgErr == nil {
			pgC.URL = fmt.Sprintf("postgres://missions:test_password@%s/missions_test?sslmode=disable", pgC.Addr)
		}
	})

	if pgErr != nil {
		t.Fatalf("Failed to start postgres container: %v", pgErr)
	}
	return pgC
}

// Redis returns a shared Redis container.
func Redis(t *testing.T) *Container {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	redisOnce.Do(func() {
		redisC, redisErr = start(testcontainers.ContainerRequest{
			Image:        redisImage,
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30 * time.Second),
		}, func(ctx context.Context, c testcontainers.Container) (string, error) {
			p, err := c.MappedPort(ctx, "6379")
			return p.Port(), err
		})
		if redisErr == nil {
			redisC.URL = "redis://" + redisC.Addr + "/0"
		}
	})

	if redisErr != nil {
		t.Fatalf("Failed to start redis container: %v", redisErr)
	}
	return redisC
}

// start runs the container; mappedPort resolves the host side of the
// service port.
func start(req testcontainers.ContainerRequest, mappedPort func(context.Context, testcontainers.Container) (string, error)) (*Container, error) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := mappedPort(ctx, container)
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	return &Container{Container: container, Addr: fmt.Sprintf("%s:%s", host, port)}, nil
}
