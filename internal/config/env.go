package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	CORSOrigins []string
	LogLevel    string

	DatabaseURL string
	SslCertPath string

	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string

	AIAPIKey   string
	EmbedModel string
	GenModel   string

	QueryTimeout   time.Duration
	MaxQueryLength int
	QueryPolicy    string
	MaxSources     int

	IngestWorkers       int
	IngestTargetTokens  int
	IngestOverlapTokens int
	IngestBatchSize     int
	MaxUploadBytes      int64
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Port:                "8080",
		CORSOrigins:         []string{"http://localhost:5173", "http://localhost:3000"},
		LogLevel:            "info",
		AwsRegion:           "us-east-2",
		BucketName:          "clausewise-docs",
		EmbedModel:          "text-embedding-004",
		GenModel:            "gemini-1.5-flash",
		QueryTimeout:        60 * time.Second,
		MaxQueryLength:      500,
		QueryPolicy:         "reject",
		MaxSources:          5,
		IngestWorkers:       2,
		IngestTargetTokens:  120,
		IngestOverlapTokens: 0,
		IngestBatchSize:     16,
		MaxUploadBytes:      10 << 20,
	}
}

// LoadConfig loads .env, then the YAML file named by CONFIG_PATH, then environment
// overrides, and validates the result.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	cfg.Port = getEnv("PORT", cfg.Port)
	if v := getEnv("CORS_ORIGINS", ""); v != "" {
		cfg.CORSOrigins = splitList(v)
	}
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.SslCertPath = getEnv("SSL_CERT_PATH", cfg.SslCertPath)

	cfg.AwsAccessKey = getEnv("AWS_ACCESS_KEY", cfg.AwsAccessKey)
	cfg.AwsSecretKey = getEnv("AWS_SECRET_KEY", cfg.AwsSecretKey)
	cfg.AwsRegion = getEnv("AWS_REGION", cfg.AwsRegion)
	cfg.BucketName = getEnv("BUCKET_NAME", cfg.BucketName)

	cfg.AIAPIKey = getEnv("GEMINI_API_KEY", cfg.AIAPIKey)
	cfg.EmbedModel = getEnv("EMBED_MODEL", cfg.EmbedModel)
	cfg.GenModel = getEnv("GEN_MODEL", cfg.GenModel)
	cfg.QueryPolicy = getEnv("QUERY_POLICY", cfg.QueryPolicy)

	var err error
	if cfg.QueryTimeout, err = getEnvDuration("QUERY_TIMEOUT", cfg.QueryTimeout); err != nil {
		return err
	}
	ints := []struct {
		key string
		dst *int
	}{
		{"MAX_QUERY_LENGTH", &cfg.MaxQueryLength},
		{"MAX_SOURCES", &cfg.MaxSources},
		{"INGEST_WORKERS", &cfg.IngestWorkers},
		{"INGEST_TARGET_TOKENS", &cfg.IngestTargetTokens},
		{"INGEST_OVERLAP_TOKENS", &cfg.IngestOverlapTokens},
		{"INGEST_BATCH_SIZE", &cfg.IngestBatchSize},
	}
	for _, f := range ints {
		if *f.dst, err = getEnvInt(f.key, *f.dst); err != nil {
			return err
		}
	}
	if v := getEnv("MAX_UPLOAD_BYTES", ""); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid MAX_UPLOAD_BYTES %q: %w", v, err)
		}
		cfg.MaxUploadBytes = n
	}
	return nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("PORT is empty"))
	}
	if c.QueryTimeout <= 0 {
		errs = append(errs, fmt.Errorf("QUERY_TIMEOUT must be positive, got %s", c.QueryTimeout))
	}
	if c.MaxQueryLength <= 0 {
		errs = append(errs, fmt.Errorf("MAX_QUERY_LENGTH must be positive, got %d", c.MaxQueryLength))
	}
	if c.MaxSources < 0 {
		errs = append(errs, fmt.Errorf("MAX_SOURCES must not be negative, got %d", c.MaxSources))
	}
	switch strings.ToLower(c.QueryPolicy) {
	case "reject", "replace":
	default:
		errs = append(errs, fmt.Errorf("QUERY_POLICY must be reject or replace, got %q", c.QueryPolicy))
	}
	if c.IngestWorkers <= 0 {
		errs = append(errs, fmt.Errorf("INGEST_WORKERS must be positive, got %d", c.IngestWorkers))
	}
	if c.IngestTargetTokens <= 0 {
		errs = append(errs, fmt.Errorf("INGEST_TARGET_TOKENS must be positive, got %d", c.IngestTargetTokens))
	}
	if c.IngestOverlapTokens < 0 || c.IngestOverlapTokens >= c.IngestTargetTokens {
		errs = append(errs, fmt.Errorf("INGEST_OVERLAP_TOKENS must be in [0, INGEST_TARGET_TOKENS), got %d", c.IngestOverlapTokens))
	}
	if c.IngestBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("INGEST_BATCH_SIZE must be positive, got %d", c.IngestBatchSize))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// UseS3 reports whether raw uploads go to S3 instead of process memory.
func (c *Config) UseS3() bool {
	return c.AwsAccessKey != "" && c.AwsSecretKey != ""
}

// UseGemini reports whether embeddings and generation are available.
func (c *Config) UseGemini() bool {
	return c.AIAPIKey != ""
}

// ParseLogLevel maps debug|info|warn|error to a slog level.
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", level)
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) (int, error) {
	v := getEnv(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	v := getEnv(key, "")
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
