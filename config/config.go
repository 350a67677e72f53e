package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration. It is built
// once at startup and never mutated afterwards; swapping a credential
// requires a process restart, not a runtime update.
type Config struct {
	Server      ServerConfig
	Auth        AuthConfig
	Providers   ProvidersConfig
	Dispatch    DispatchConfig
	Audit       AuditConfig
	Logging     LoggingConfig
	Environment string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// AuthConfig holds bearer-token verification configuration.
// When TokenSecret is empty the verification subsystem is considered
// unconfigured and every request is admitted as the anonymous principal.
type AuthConfig struct {
	TokenSecret string
	TokenIssuer string
}

// Configured reports whether token verification material is present
func (c *AuthConfig) Configured() bool {
	return c.TokenSecret != ""
}

// ProvidersConfig holds LLM provider configurations
type ProvidersConfig struct {
	Gemini GeminiConfig
	Groq   GroqConfig
}

// CascadeEntry is one (API revision, model identifier) pair in the
// gemini endpoint cascade
type CascadeEntry struct {
	APIVersion string
	Model      string
}

// GeminiConfig holds the chat-style cascading provider configuration
type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Cascade []CascadeEntry
}

// GroqConfig holds the single-prompt provider configuration
type GroqConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// DispatchConfig holds deadline configuration for outbound provider calls.
// The default sits slightly below a 10s host execution ceiling so a
// timeout can still be turned into a well-formed error response.
type DispatchConfig struct {
	Deadline time.Duration
}

// AuditConfig holds the optional dispatch-audit database configuration.
// An empty DatabaseURL disables auditing entirely.
type AuditConfig struct {
	DatabaseURL string
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Level  string
	Format string // json or text
}

const (
	defaultDeadline = 9500 * time.Millisecond
	minDeadline     = 100 * time.Millisecond
)

// defaultCascade is the ordered gemini endpoint list tried until one succeeds
var defaultCascade = []CascadeEntry{
	{APIVersion: "v1beta", Model: "gemini-2.0-flash"},
	{APIVersion: "v1beta", Model: "gemini-1.5-flash"},
	{APIVersion: "v1", Model: "gemini-1.5-flash"},
}

// New creates a new Config instance by loading environment variables
func New() (*Config, error) {
	// Load .env if present (no-op when missing)
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Auth: AuthConfig{
			TokenSecret: getEnv("AUTH_TOKEN_SECRET", ""),
			TokenIssuer: getEnv("AUTH_TOKEN_ISSUER", ""),
		},
		Providers: ProvidersConfig{
			Gemini: GeminiConfig{
				APIKey:  loadCredential("GEMINI_API_KEY"),
				BaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
				Cascade: parseCascade(getEnv("GEMINI_MODEL_CASCADE", "")),
			},
			Groq: GroqConfig{
				APIKey:  loadCredential("GROQ_API_KEY"),
				BaseURL: getEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
				Model:   getEnv("GROQ_MODEL", "llama-3.3-70b-versatile"),
			},
		},
		Dispatch: DispatchConfig{
			Deadline: loadDeadline(),
		},
		Audit: AuditConfig{
			DatabaseURL: getEnv("DATABASE_URL", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration consistency. A missing provider
// credential is not a startup failure; it only disables that provider
// as a routing candidate.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Dispatch.Deadline < minDeadline {
		return fmt.Errorf("dispatch deadline %s below minimum %s", c.Dispatch.Deadline, minDeadline)
	}
	if len(c.Providers.Gemini.Cascade) == 0 {
		return fmt.Errorf("gemini cascade cannot be empty")
	}
	if c.Logging.Level == "" {
		return fmt.Errorf("log level is required")
	}
	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// loadCredential reads a credential from KEY, falling back to the file
// named by KEY_FILE when the variable itself is unset
func loadCredential(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	if path := os.Getenv(key + "_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return strings.TrimSpace(string(data))
		}
	}
	return ""
}

// loadDeadline reads the dispatch deadline override, clamping to the
// floor so a misconfigured value cannot make every call time out instantly
func loadDeadline() time.Duration {
	d := getEnvAsDuration("DISPATCH_DEADLINE", defaultDeadline)
	if d < minDeadline {
		return minDeadline
	}
	return d
}

// parseCascade parses "v1beta:gemini-2.0-flash,v1:gemini-1.5-flash" into
// cascade entries, returning the default cascade on empty or fully
// malformed input
func parseCascade(raw string) []CascadeEntry {
	if raw == "" {
		return defaultCascade
	}

	var entries []CascadeEntry
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.SplitN(part, ":", 2)
		if len(fields) != 2 || fields[0] == "" || fields[1] == "" {
			continue
		}
		entries = append(entries, CascadeEntry{
			APIVersion: strings.TrimSpace(fields[0]),
			Model:      strings.TrimSpace(fields[1]),
		})
	}

	if len(entries) == 0 {
		return defaultCascade
	}
	return entries
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
