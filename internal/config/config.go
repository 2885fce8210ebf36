package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the agent engine server.
type Config struct {
	Port      int
	Version   string
	Database  DatabaseConfig
	Telemetry TelemetryConfig
	LLM       LLMConfig
	Output    OutputConfig
	Retention RetentionConfig
}

type DatabaseConfig struct {
	// URL empty means run on the in-memory store.
	URL            string
	MaxConnections int
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

type LLMConfig struct {
	AnthropicAPIKey string
	OpenAIAPIKey    string
}

type OutputConfig struct {
	// FileDir is where the file output channel writes.
	FileDir string
}

type RetentionConfig struct {
	// RunTTL is how long finished run records are kept. Zero disables
	// the retention janitor.
	RunTTL   time.Duration
	Interval time.Duration

	// Mode: purge | archive-and-purge | archive-only.
	Mode       string
	ArchiveDir string
	Compress   bool
}

// Load reads configuration from environment variables with sensible
// defaults.
func Load() *Config {
	return &Config{
		Port:    envInt("AGENT_ENGINE_PORT", 8080),
		Version: envStr("AGENT_ENGINE_VERSION", "0.1.0"),
		Database: DatabaseConfig{
			URL:            envStr("DATABASE_URL", ""),
			MaxConnections: envInt("DATABASE_MAX_CONNECTIONS", 25),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "agent-engine"),
		},
		LLM: LLMConfig{
			AnthropicAPIKey: envStr("ANTHROPIC_API_KEY", ""),
			OpenAIAPIKey:    envStr("OPENAI_API_KEY", ""),
		},
		Output: OutputConfig{
			FileDir: envStr("AGENT_ENGINE_OUTPUT_DIR", "outputs"),
		},
		Retention: RetentionConfig{
			RunTTL:     envDuration("AGENT_ENGINE_RUN_TTL", 7*24*time.Hour),
			Interval:   envDuration("AGENT_ENGINE_RETENTION_INTERVAL", time.Hour),
			Mode:       envStr("AGENT_ENGINE_ARCHIVE_MODE", "purge"),
			ArchiveDir: envStr("AGENT_ENGINE_ARCHIVE_DIR", "archive"),
			Compress:   envBool("AGENT_ENGINE_ARCHIVE_COMPRESS", false),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
