package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the healthreport server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Triage   TriageConfig
	Reports  ReportsConfig
	Pipeline PipelineConfig
}

type ServerConfig struct {
	Port              int
	Env               string
	AllowedOrigins    []string
	RequestsPerMinute int
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsDir   string
}

type RedisConfig struct {
	URL string
}

// RemoteConfig describes one of the remote HTTP services.
type RemoteConfig struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

type TriageConfig struct {
	Provider string
	HTTP     RemoteConfig
	OpenAI   OpenAIConfig
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type ReportsConfig struct {
	HTTP RemoteConfig
}

type PipelineConfig struct {
	SessionTTL      time.Duration
	CatalogCacheTTL time.Duration
}

var validTriageProviders = map[string]bool{
	"http":   true,
	"openai": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:              envInt("HEALTHREPORT_PORT", 8080),
			Env:               envString("HEALTHREPORT_ENV", "development"),
			AllowedOrigins:    envList("HEALTHREPORT_ALLOWED_ORIGINS", []string{"*"}),
			RequestsPerMinute: envInt("HEALTHREPORT_REQUESTS_PER_MINUTE", 60),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			MigrationsDir:   envString("DATABASE_MIGRATIONS_DIR", "migrations"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Triage: TriageConfig{
			Provider: envString("TRIAGE_PROVIDER", "http"),
			HTTP: RemoteConfig{
				BaseURL:           os.Getenv("TRIAGE_BASE_URL"),
				APIKey:            os.Getenv("TRIAGE_API_KEY"),
				Timeout:           envDurationSecs("TRIAGE_TIMEOUT_SECS", 30*time.Second),
				RequestsPerSecond: envFloat("TRIAGE_REQUESTS_PER_SECOND", 5),
				Burst:             envInt("TRIAGE_BURST", 5),
			},
			OpenAI: OpenAIConfig{
				APIKey:  os.Getenv("OPENAI_API_KEY"),
				BaseURL: os.Getenv("OPENAI_BASE_URL"),
				Model:   envString("OPENAI_MODEL", "gpt-4o-mini"),
			},
		},
		Reports: ReportsConfig{
			HTTP: RemoteConfig{
				BaseURL:           os.Getenv("REPORTS_BASE_URL"),
				APIKey:            os.Getenv("REPORTS_API_KEY"),
				Timeout:           envDurationSecs("REPORTS_TIMEOUT_SECS", 120*time.Second),
				RequestsPerSecond: envFloat("REPORTS_REQUESTS_PER_SECOND", 2),
				Burst:             envInt("REPORTS_BURST", 2),
			},
		},
		Pipeline: PipelineConfig{
			SessionTTL:      envDuration("PIPELINE_SESSION_TTL", 30*time.Minute),
			CatalogCacheTTL: envDuration("CATALOG_CACHE_TTL", 2*time.Minute),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if !validTriageProviders[c.Triage.Provider] {
		return fmt.Errorf("TRIAGE_PROVIDER must be one of http, openai; got %q", c.Triage.Provider)
	}
	if c.Triage.Provider == "http" {
		if err := validateBaseURL("TRIAGE_BASE_URL", c.Triage.HTTP.BaseURL); err != nil {
			return err
		}
	}
	if c.Triage.Provider == "openai" && c.Triage.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when TRIAGE_PROVIDER is openai")
	}

	if err := validateBaseURL("REPORTS_BASE_URL", c.Reports.HTTP.BaseURL); err != nil {
		return err
	}

	if c.Pipeline.SessionTTL <= 0 {
		return fmt.Errorf("PIPELINE_SESSION_TTL must be positive, got %s", c.Pipeline.SessionTTL)
	}

	return nil
}

func validateBaseURL(key, v string) error {
	if v == "" {
		return fmt.Errorf("%s is required", key)
	}
	if !strings.HasPrefix(v, "http://") && !strings.HasPrefix(v, "https://") {
		return fmt.Errorf("%s must start with http:// or https://, got %q", key, v)
	}
	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
