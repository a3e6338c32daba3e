// Package pgtest provides a PostgreSQL server for integration tests.
//
// One container is started per test binary on first use and shared by every
// test in it. Setting LANDB_TEST_POSTGRES points the tests at an existing
// server described by the DB_* variables instead.
package pgtest

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stwalsh4118/landb/internal/config"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	image    = "postgres:16-alpine"
	database = "landb"
	user     = "postgres"
	password = "postgres"
)

var (
	once      sync.Once
	container *postgres.PostgresContainer
	shared    config.DatabaseConfig
	startErr  error
)

// Config returns connection settings for the test server, starting the
// container if needed. It skips the test in short mode and when no
// container runtime is reachable.
func Config(t *testing.T) config.DatabaseConfig {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	if os.Getenv("LANDB_TEST_POSTGRES") != "" {
		return external()
	}

	testcontainers.SkipIfProviderIsNotHealthy(t)
	once.Do(start)
	if startErr != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", startErr)
	}
	return shared
}

// Terminate stops the shared container. Call it from TestMain after m.Run.
func Terminate() {
	if container == nil {
		return
	}
	if err := container.Terminate(context.Background()); err != nil {
		fmt.Printf("Failed to terminate PostgreSQL container: %v\n", err)
	}
	container = nil
}

func start() {
	ctx := context.Background()

	c, err := postgres.Run(ctx,
		image,
		postgres.WithDatabase(database),
		postgres.WithUsername(user),
		postgres.WithPassword(password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		startErr = err
		return
	}
	container = c

	host, err := c.Host(ctx)
	if err != nil {
		startErr = fmt.Errorf("failed to get container host: %w", err)
		return
	}
	port, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		startErr = fmt.Errorf("failed to get mapped port: %w", err)
		return
	}

	shared = config.DatabaseConfig{
		Host:     host,
		Port:     port.Port(),
		Name:     database,
		User:     user,
		Password: password,
		PoolMin:  1,
		PoolMax:  4,
	}
}

func external() config.DatabaseConfig {
	return config.DatabaseConfig{
		Host:     getEnvOrDefault("DB_HOST", "localhost"),
		Port:     getEnvOrDefault("DB_PORT", "5432"),
		Name:     getEnvOrDefault("DB_NAME", database),
		User:     getEnvOrDefault("DB_USER", user),
		Password: getEnvOrDefault("DB_PASSWORD", password),
		PoolMin:  1,
		PoolMax:  4,
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
