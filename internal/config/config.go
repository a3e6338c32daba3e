package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	Store      StoreConfig
	Database   DatabaseConfig
	Fetch      FetchConfig
	Prosperity ProsperityConfig
	CORS       CORSConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	RefreshOnStart bool
}

// StoreConfig selects where the land snapshot lives.
// An empty Path with the sqlite driver keeps the snapshot in memory.
type StoreConfig struct {
	Driver   string
	Path     string
	ReadOnly bool
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	PoolMin  int
	PoolMax  int
}

// FetchConfig controls access to the remote land registry.
type FetchConfig struct {
	URL       string
	Origin    string
	UserAgent string
	Islands   []string
	Interval  time.Duration
	Timeout   time.Duration
	// Headers are sent on every registry request after the defaults.
	Headers map[string]string
}

// ProsperityConfig points at an optional override of the scoring tables.
type ProsperityConfig struct {
	TablesPath string
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	Origins []string
}

// Load reads configuration from an optional .env file and environment variables.
// Values already present in the environment win over the .env file.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	v := viper.New()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "")
	v.SetDefault("REFRESH_ON_START", true)
	v.SetDefault("STORE_DRIVER", DriverSQLite)
	v.SetDefault("LANDB_PATH", "")
	v.SetDefault("STORE_READ_ONLY", false)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_NAME", "landb")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_POOL_MIN", 1)
	v.SetDefault("DB_POOL_MAX", 4)
	v.SetDefault("FETCH_URL", "https://ld-api.babyswap.io/api/v1/land/info")
	v.SetDefault("FETCH_ORIGIN", "https://land.babyswap.finance")
	v.SetDefault("FETCH_USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/105.0.0.0 Safari/537.36")
	v.SetDefault("FETCH_INTERVAL", "60s")
	v.SetDefault("FETCH_TIMEOUT", "30s")
	v.SetDefault("FETCH_HEADERS", "")
	v.SetDefault("ISLANDS", "main,divinity,wizard,scorpion,ghost")
	v.SetDefault("PROSPERITY_TABLES", "")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")

	v.AutomaticEnv()

	headers, err := parseHeaders(v.GetString("FETCH_HEADERS"))
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           v.GetString("PORT"),
			Env:            v.GetString("ENV"),
			LogLevel:       v.GetString("LOG_LEVEL"),
			RefreshOnStart: v.GetBool("REFRESH_ON_START"),
		},
		Store: StoreConfig{
			Driver:   strings.ToLower(strings.TrimSpace(v.GetString("STORE_DRIVER"))),
			Path:     strings.TrimSpace(v.GetString("LANDB_PATH")),
			ReadOnly: v.GetBool("STORE_READ_ONLY"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			Name:     v.GetString("DB_NAME"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			PoolMin:  v.GetInt("DB_POOL_MIN"),
			PoolMax:  v.GetInt("DB_POOL_MAX"),
		},
		Fetch: FetchConfig{
			URL:       v.GetString("FETCH_URL"),
			Origin:    v.GetString("FETCH_ORIGIN"),
			UserAgent: v.GetString("FETCH_USER_AGENT"),
			Islands:   splitList(v.GetString("ISLANDS")),
			Interval:  v.GetDuration("FETCH_INTERVAL"),
			Timeout:   v.GetDuration("FETCH_TIMEOUT"),
			Headers:   headers,
		},
		Prosperity: ProsperityConfig{
			TablesPath: v.GetString("PROSPERITY_TABLES"),
		},
		CORS: CORSConfig{
			Origins: splitList(v.GetString("CORS_ORIGINS")),
		},
	}

	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
		if cfg.Server.Env == "development" {
			cfg.Server.LogLevel = "debug"
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	switch c.Store.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if err := c.Database.validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.Store.Driver)
	}

	if c.Fetch.URL == "" {
		return fmt.Errorf("FETCH_URL is required")
	}
	if c.Fetch.Interval < 0 {
		return fmt.Errorf("FETCH_INTERVAL must be non-negative")
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT must be positive")
	}
	if len(c.Fetch.Islands) == 0 {
		return fmt.Errorf("ISLANDS must list at least one island")
	}

	if len(c.CORS.Origins) == 0 {
		return fmt.Errorf("CORS_ORIGINS is required")
	}

	return nil
}

func (d DatabaseConfig) validate() error {
	if d.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if d.Port == "" {
		return fmt.Errorf("DB_PORT is required")
	}
	if d.Name == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	if d.User == "" {
		return fmt.Errorf("DB_USER is required")
	}
	if d.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if d.PoolMin < 0 {
		return fmt.Errorf("DB_POOL_MIN must be non-negative")
	}
	if d.PoolMax < 1 {
		return fmt.Errorf("DB_POOL_MAX must be at least 1")
	}
	if d.PoolMin > d.PoolMax {
		return fmt.Errorf("DB_POOL_MIN must be less than or equal to DB_POOL_MAX")
	}
	return nil
}

// splitList splits a comma-separated string into trimmed, non-empty parts.
func splitList(list string) []string {
	if list == "" {
		return []string{}
	}

	parts := strings.Split(list, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// parseHeaders reads "Name: value" pairs separated by semicolons.
func parseHeaders(list string) (map[string]string, error) {
	headers := map[string]string{}
	for _, entry := range strings.Split(list, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, value, ok := strings.Cut(entry, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" || strings.ContainsAny(name, " \t") {
			return nil, fmt.Errorf("FETCH_HEADERS entry %q must look like \"Name: value\"", entry)
		}
		headers[name] = strings.TrimSpace(value)
	}
	return headers, nil
}
