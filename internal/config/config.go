package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SessionTTL    time.Duration

	IdentityBaseURL string
	IdentityAPIKey  string
	ProjectID       string
	JWKSURL         string
	TokenIssuer     string

	DocstoreBaseURL     string
	ServiceAccountEmail string
	ServiceAccountKey   string
	OAuthTokenURL       string

	CompletionsURL    string
	CompletionAPIKey  string
	CompletionModel   string
	CompletionTimeout time.Duration
	SystemPrompt      string

	InitialQuota  int
	ResetInterval time.Duration

	CORSOrigins      []string
	RateLimitRPM     int
	AuthRateLimitRPM int
}

const defaultSystemPrompt = "You are a trading assistant. Analyze charts and provide recommendations."

func Load() (*Config, error) {
	_ = godotenv.Load()

	projectID := getEnv("PROJECT_ID", "")

	cfg := &Config{
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		ServerReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 15*time.Second),
		ServerWriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 120*time.Second),
		ServerIdleTimeout:  getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getInt("REDIS_DB", 0),
		SessionTTL:    getDuration("SESSION_TTL", 24*time.Hour),

		IdentityBaseURL: getEnv("IDENTITY_BASE_URL", "https://identitytoolkit.googleapis.com"),
		IdentityAPIKey:  getEnv("IDENTITY_API_KEY", ""),
		ProjectID:       projectID,
		JWKSURL:         getEnv("JWKS_URL", "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"),
		TokenIssuer:     getEnv("TOKEN_ISSUER", "https://securetoken.google.com/"+projectID),

		DocstoreBaseURL:     getEnv("DOCSTORE_BASE_URL", "https://firestore.googleapis.com/v1"),
		ServiceAccountEmail: getEnv("SERVICE_ACCOUNT_EMAIL", ""),
		ServiceAccountKey:   normalizePEM(os.Getenv("SERVICE_ACCOUNT_KEY")),
		OAuthTokenURL:       getEnv("OAUTH_TOKEN_URL", "https://oauth2.googleapis.com/token"),

		CompletionsURL:    getEnv("COMPLETIONS_URL", "https://api.openai.com/v1/chat/completions"),
		CompletionAPIKey:  getEnv("COMPLETION_API_KEY", ""),
		CompletionModel:   getEnv("COMPLETION_MODEL", "gpt-4.1"),
		CompletionTimeout: getDuration("COMPLETION_TIMEOUT", 90*time.Second),
		SystemPrompt:      getEnv("SYSTEM_PROMPT", defaultSystemPrompt),

		InitialQuota:  getInt("INITIAL_QUOTA", 10),
		ResetInterval: getDuration("RESET_INTERVAL", 24*time.Hour),

		CORSOrigins:      splitCSV(getEnv("CORS_ORIGINS", "*")),
		RateLimitRPM:     getInt("RATE_LIMIT_RPM", 100),
		AuthRateLimitRPM: getInt("AUTH_RATE_LIMIT_RPM", 10),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT cannot be empty")
	}

	if c.ProjectID == "" {
		return fmt.Errorf("PROJECT_ID is required")
	}

	if c.IdentityAPIKey == "" {
		return fmt.Errorf("IDENTITY_API_KEY is required")
	}

	if c.ServiceAccountEmail == "" || c.ServiceAccountKey == "" {
		return fmt.Errorf("SERVICE_ACCOUNT_EMAIL and SERVICE_ACCOUNT_KEY are required")
	}

	if c.CompletionAPIKey == "" {
		return fmt.Errorf("COMPLETION_API_KEY is required")
	}

	if c.InitialQuota <= 0 {
		return fmt.Errorf("INITIAL_QUOTA must be positive")
	}

	if c.ResetInterval <= 0 {
		return fmt.Errorf("RESET_INTERVAL must be positive")
	}

	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}

	return nil
}

// normalizePEM undoes the \n escaping most secret managers apply to
// multi-line private keys.
func normalizePEM(raw string) string {
	return strings.ReplaceAll(strings.TrimSpace(raw), `\n`, "\n")
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return v
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}

	return out
}
