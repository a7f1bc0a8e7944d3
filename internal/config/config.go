// Package config loads process configuration from flags and environment
// variables, with .env support for local runs.
package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string
	Env  string

	// PromptDir, when set, overrides the embedded prompts with files
	// from that directory.
	PromptDir string

	LLM      LLMConfig
	Store    StoreConfig
	Artifact ArtifactConfig
	Budget   BudgetConfig
	Cache    CacheConfig
	Recovery RecoveryConfig
}

type LLMConfig struct {
	// Provider is "gemini" or "fake". Local runs default to the fake
	// client so no credentials are needed.
	Provider    string
	Model       string
	APIKey      string
	RPS         float64
	Burst       int
	MaxAttempts int
	RetryDelay  time.Duration
}

type StoreConfig struct {
	// PostgresDSN empty means the in-memory store.
	PostgresDSN string
}

type ArtifactConfig struct {
	Enabled   bool
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type BudgetConfig struct {
	// TokenLimit zero disables enforcement.
	TokenLimit int
	Window     time.Duration
}

type CacheConfig struct {
	Size int
}

type RecoveryConfig struct {
	// MaxCommaInserts bounds the comma-insertion repair pass.
	MaxCommaInserts int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	port := flag.String("port", ":8080", "server port")
	flag.Parse()

	if envPort := os.Getenv("PORT"); envPort != "" {
		if strings.HasPrefix(envPort, ":") {
			*port = envPort
		} else {
			*port = ":" + envPort
		}
	}

	env := strings.TrimSpace(os.Getenv("APP_ENV"))
	if env == "" {
		env = "local"
	}

	return &Config{
		Port:      *port,
		Env:       env,
		PromptDir: strings.TrimSpace(os.Getenv("PROMPT_DIR")),
		LLM:       loadLLMConfig(env),
		Store:     StoreConfig{PostgresDSN: strings.TrimSpace(os.Getenv("POSTGRES_DSN"))},
		Artifact:  loadArtifactConfig(env),
		Budget: BudgetConfig{
			TokenLimit: envInt("BUDGET_TOKEN_LIMIT", 0),
			Window:     envDuration("BUDGET_WINDOW", 15*time.Minute),
		},
		Cache: CacheConfig{Size: envInt("RESPONSE_CACHE_SIZE", 1024)},
		Recovery: RecoveryConfig{
			MaxCommaInserts: envInt("RECOVERY_MAX_COMMA_INSERTS", 3),
		},
	}, nil
}

func loadLLMConfig(env string) LLMConfig {
	provider := strings.ToLower(strings.TrimSpace(os.Getenv("LLM_PROVIDER")))
	apiKey := strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	if provider == "" {
		if apiKey != "" {
			provider = "gemini"
		} else {
			provider = "fake"
		}
	}
	return LLMConfig{
		Provider:    provider,
		Model:       firstNonEmpty(strings.TrimSpace(os.Getenv("LLM_MODEL")), "gemini-2.0-flash"),
		APIKey:      apiKey,
		RPS:         envFloat("LLM_RPS", 2),
		Burst:       envInt("LLM_BURST", 4),
		MaxAttempts: envInt("LLM_MAX_ATTEMPTS", 3),
		RetryDelay:  envDuration("LLM_RETRY_DELAY", 500*time.Millisecond),
	}
}

func loadArtifactConfig(env string) ArtifactConfig {
	endpoint := resolveArtifactEndpoint(env)
	return ArtifactConfig{
		Enabled:   endpoint != "",
		Endpoint:  endpoint,
		Region:    firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_REGION")), "us-east-1"),
		AccessKey: firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_ACCESS_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_USER"))),
		SecretKey: firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_SECRET_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_PASSWORD"))),
		Bucket:    firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_BUCKET")), "faultline-artifacts"),
		UseSSL:    resolveArtifactUseSSL(env),
	}
}

func resolveArtifactEndpoint(env string) string {
	if strings.EqualFold(strings.TrimSpace(env), "local") {
		return strings.TrimSpace(os.Getenv("ARTIFACT_MINIO_ENDPOINT"))
	}
	return strings.TrimSpace(os.Getenv("ARTIFACT_S3_ENDPOINT"))
}

func resolveArtifactUseSSL(env string) bool {
	if strings.EqualFold(strings.TrimSpace(env), "local") {
		return false
	}
	raw := strings.TrimSpace(os.Getenv("ARTIFACT_S3_USE_SSL"))
	if raw == "" {
		return true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return true
	}
	return v
}

func envInt(key string, fallback int) int {
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

func envFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return v
}

func envDuration(key string, fallback time.Duration) time.Duration {
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

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
