package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the Artloom server.
type Config struct {
	Port    int
	Version string

	// BaseURL is the externally reachable address of this server,
	// used to build media URLs and provider callback URLs.
	BaseURL string

	Store     StoreConfig
	Media     MediaConfig
	Providers ProvidersConfig
	Intent    IntentConfig
	Telemetry TelemetryConfig
	Auth      AuthConfig
	Retention RetentionConfig
}

type StoreConfig struct {
	// Backend selects the persistence layer: "memory" (JSON snapshot)
	// or "sqlite".
	Backend    string
	DataDir    string
	SQLitePath string
}

type MediaConfig struct {
	Dir string

	// PublicHosts lists hostnames whose URLs never need mirroring.
	PublicHosts []string
}

type ProvidersConfig struct {
	ImageBaseURL string
	ImageAPIKey  string
	VoiceBaseURL string
	VoiceAPIKey  string
	VideoBaseURL string
	VideoAPIKey  string
}

type IntentConfig struct {
	OpenAIAPIKey    string
	OpenAIModel     string
	OpenAIBaseURL   string
	AnthropicAPIKey string
	AnthropicModel  string
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

type AuthConfig struct {
	// Keys maps "user:key" pairs; empty disables authentication.
	Keys []string
}

type RetentionConfig struct {
	// Enabled turns on the media janitor that trashes and later purges
	// unreferenced media files.
	Enabled        bool
	Interval       time.Duration
	MinAge         time.Duration
	TrashRetention time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:    envInt("ARTLOOM_PORT", 8080),
		Version: envStr("ARTLOOM_VERSION", "0.1.0"),
		BaseURL: envStr("ARTLOOM_BASE_URL", "http://localhost:8080"),
		Store: StoreConfig{
			Backend:    envStr("ARTLOOM_STORE_BACKEND", "memory"),
			DataDir:    envStr("ARTLOOM_DATA_DIR", "data"),
			SQLitePath: envStr("ARTLOOM_SQLITE_PATH", "data/artloom.db"),
		},
		Media: MediaConfig{
			Dir:         envStr("ARTLOOM_MEDIA_DIR", "data/media"),
			PublicHosts: envList("ARTLOOM_PUBLIC_HOSTS", nil),
		},
		Providers: ProvidersConfig{
			ImageBaseURL: envStr("ARTLOOM_IMAGE_PROVIDER_URL", ""),
			ImageAPIKey:  envStr("ARTLOOM_IMAGE_PROVIDER_KEY", ""),
			VoiceBaseURL: envStr("ARTLOOM_VOICE_PROVIDER_URL", ""),
			VoiceAPIKey:  envStr("ARTLOOM_VOICE_PROVIDER_KEY", ""),
			VideoBaseURL: envStr("ARTLOOM_VIDEO_PROVIDER_URL", ""),
			VideoAPIKey:  envStr("ARTLOOM_VIDEO_PROVIDER_KEY", ""),
		},
		Intent: IntentConfig{
			OpenAIAPIKey:    envStr("OPENAI_API_KEY", ""),
			OpenAIModel:     envStr("ARTLOOM_OPENAI_MODEL", ""),
			OpenAIBaseURL:   envStr("ARTLOOM_OPENAI_BASE_URL", ""),
			AnthropicAPIKey: envStr("ANTHROPIC_API_KEY", ""),
			AnthropicModel:  envStr("ARTLOOM_ANTHROPIC_MODEL", ""),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "artloom"),
		},
		Auth: AuthConfig{
			Keys: envList("ARTLOOM_API_KEYS", nil),
		},
		Retention: RetentionConfig{
			Enabled:        envBool("ARTLOOM_RETENTION_ENABLED", true),
			Interval:       envDuration("ARTLOOM_RETENTION_INTERVAL", time.Hour),
			MinAge:         envDuration("ARTLOOM_RETENTION_MIN_AGE", time.Hour),
			TrashRetention: envDuration("ARTLOOM_RETENTION_TRASH_WINDOW", 7*24*time.Hour),
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

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
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

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
