package database

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stwalsh4118/landb/internal/config"
	"github.com/stwalsh4118/landb/internal/database/pgtest"
)

func TestMain(m *testing.M) {
	code := m.Run()
	pgtest.Terminate()
	os.Exit(code)
}

func TestPostgresDSN(t *testing.T) {
	dsn := PostgresDSN(config.DatabaseConfig{
		Host:     "db.internal",
		Port:     "5433",
		Name:     "landb",
		User:     "land",
		Password: "p@ss/word",
	})

	if !strings.HasPrefix(dsn, "postgres://land:") {
		t.Errorf("Unexpected DSN prefix: %s", dsn)
	}
	if !strings.Contains(dsn, "@db.internal:5433/landb") {
		t.Errorf("Expected host, port and database in DSN: %s", dsn)
	}
	if strings.Contains(dsn, "p@ss/word") {
		t.Errorf("Expected password to be escaped: %s", dsn)
	}
	if !strings.HasSuffix(dsn, "?sslmode=disable") {
		t.Errorf("Expected sslmode in DSN: %s", dsn)
	}
}

func TestNewPostgresPool_Success(t *testing.T) {
	ctx := context.Background()
	cfg := pgtest.Config(t)

	db, err := NewPostgresPool(ctx, cfg)
	if err != nil {
		t.Fatalf("Failed to create connection pool: %v", err)
	}
	defer db.Close()

	if err := db.Ping(ctx); err != nil {
		t.Errorf("Ping failed: %v", err)
	}

	stats := db.Stats()
	if stats == nil {
		t.Fatal("Expected stats to be available")
	}
	if stats.MaxConns() != int32(cfg.PoolMax) {
		t.Errorf("Expected MaxConns %d, got %d", cfg.PoolMax, stats.MaxConns())
	}
}

func TestNewPostgresPool_InvalidHost(t *testing.T) {
	cfg := pgtest.Config(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	cfg.Host = "invalid-host-that-does-not-exist"

	if _, err := NewPostgresPool(ctx, cfg); err == nil {
		t.Error("Expected error when connecting to invalid host")
	}
}

func TestPostgresPing_AfterClose(t *testing.T) {
	ctx := context.Background()
	db, err := NewPostgresPool(ctx, pgtest.Config(t))
	if err != nil {
		t.Fatalf("Failed to create connection pool: %v", err)
	}

	db.Close()
	db.Close()

	if err := db.Ping(ctx); err == nil {
		t.Error("Expected ping to fail after pool is closed")
	}
}
