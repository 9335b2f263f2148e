package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Database      DatabaseConfig
	AI            AIConfig
	Export        ExportConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	URI              string
	MaxOpenConns     int
	PingTimeout      time.Duration
	ExecTimeout      time.Duration
	SchemaSampleRows int
	RowLimit         int
}

// AIConfig holds the text-generation backend settings. Key, base URL and model
// accept several alias variables; the first non-empty one wins.
type AIConfig struct {
	Provider      string
	BaseURL       string
	APIKey        string
	Model         string
	GeminiAPIKey  string
	GeminiModel   string
	Temperature   float64
	Timeout       time.Duration
	AnswerEnabled bool
}

type ExportConfig struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

var (
	apiKeyAliases  = []string{"OPENROUTER_API_KEY", "API_KEY", "OPENAI_API_KEY"}
	baseURLAliases = []string{"OPENROUTER_BASE_URL", "API_BASE_URL", "OPENAI_BASE_URL"}
	modelAliases   = []string{"OPENROUTER_MODEL_NAME", "OPENAI_MODEL_NAME"}
	geminiAliases  = []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}
)

// LoadFromEnv reads .env files (without overriding variables already set)
// and then builds the configuration from the process environment.
func LoadFromEnv(serviceName string, dotenvPaths ...string) (Config, error) {
	if err := LoadDotEnv(dotenvPaths...); err != nil {
		return Config{}, err
	}
	return Load(serviceName, os.LookupEnv)
}

func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("stat %s: %w", path, err)
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("QUERYAI_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid QUERYAI_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	steps := []func() error{
		func() error { return applyString(lookup, "QUERYAI_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "QUERYAI_HTTP_ADDR", &cfg.HTTP.Address) },
		func() error { return applyDuration(lookup, "QUERYAI_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout) },
		func() error { return applyDuration(lookup, "QUERYAI_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout) },
		func() error { return applyDuration(lookup, "QUERYAI_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout) },
		func() error { return applyFirst(lookup, &cfg.Database.URI, "DATABASE_URI", "QUERYAI_DATABASE_URI") },
		func() error { return applyInt(lookup, "QUERYAI_DB_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns) },
		func() error { return applyDuration(lookup, "QUERYAI_DB_PING_TIMEOUT", &cfg.Database.PingTimeout) },
		func() error { return applyDuration(lookup, "QUERYAI_EXEC_TIMEOUT", &cfg.Database.ExecTimeout) },
		func() error { return applyInt(lookup, "QUERYAI_SCHEMA_SAMPLE_ROWS", &cfg.Database.SchemaSampleRows) },
		func() error { return applyInt(lookup, "QUERYAI_ROW_LIMIT", &cfg.Database.RowLimit) },
		func() error { return applyString(lookup, "QUERYAI_AI_PROVIDER", &cfg.AI.Provider) },
		func() error { return applyFirst(lookup, &cfg.AI.APIKey, apiKeyAliases...) },
		func() error { return applyFirst(lookup, &cfg.AI.BaseURL, baseURLAliases...) },
		func() error { return applyFirst(lookup, &cfg.AI.Model, modelAliases...) },
		func() error { return applyFirst(lookup, &cfg.AI.GeminiAPIKey, geminiAliases...) },
		func() error { return applyString(lookup, "GEMINI_MODEL_NAME", &cfg.AI.GeminiModel) },
		func() error { return applyFloat(lookup, "LLM_TEMPERATURE", &cfg.AI.Temperature) },
		func() error { return applyDuration(lookup, "QUERYAI_AI_TIMEOUT", &cfg.AI.Timeout) },
		func() error { return applyBool(lookup, "QUERYAI_ANSWER_ENABLED", &cfg.AI.AnswerEnabled) },
		func() error { return applyString(lookup, "QUERYAI_EXPORT_S3_ENDPOINT", &cfg.Export.Endpoint) },
		func() error { return applyString(lookup, "QUERYAI_EXPORT_S3_REGION", &cfg.Export.Region) },
		func() error { return applyString(lookup, "QUERYAI_EXPORT_S3_BUCKET", &cfg.Export.Bucket) },
		func() error { return applyString(lookup, "QUERYAI_EXPORT_S3_ACCESS_KEY", &cfg.Export.AccessKeyID) },
		func() error { return applyString(lookup, "QUERYAI_EXPORT_S3_SECRET_KEY", &cfg.Export.SecretAccessKey) },
		func() error { return applyBool(lookup, "QUERYAI_EXPORT_S3_USE_SSL", &cfg.Export.UseSSL) },
		func() error { return applyString(lookup, "QUERYAI_EXPORT_S3_PREFIX", &cfg.Export.Prefix) },
		func() error { return applyBool(lookup, "QUERYAI_EXPORT_S3_AUTO_CREATE_BUCKET", &cfg.Export.AutoCreateBucket) },
		func() error { return applyBool(lookup, "QUERYAI_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "QUERYAI_LOG_LEVEL", &cfg.Observability.LogLevel) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return Config{}, err
		}
	}

	cfg.AI.Provider = strings.ToLower(cfg.AI.Provider)
	switch cfg.AI.Provider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return Config{}, fmt.Errorf("invalid QUERYAI_AI_PROVIDER: %q", cfg.AI.Provider)
	}
	if cfg.Service.Name == "" {
		return Config{}, fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return Config{}, fmt.Errorf("http address is required")
	}
	if cfg.Database.SchemaSampleRows < 0 {
		return Config{}, fmt.Errorf("invalid QUERYAI_SCHEMA_SAMPLE_ROWS: %d", cfg.Database.SchemaSampleRows)
	}
	return cfg, nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "queryai"},
		HTTP: HTTPConfig{
			Address:      ":8501",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			URI:              "data/sample.db",
			MaxOpenConns:     4,
			PingTimeout:      5 * time.Second,
			ExecTimeout:      30 * time.Second,
			SchemaSampleRows: 3,
			RowLimit:         0,
		},
		AI: AIConfig{
			Provider:    ProviderOpenAI,
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			GeminiModel: "gemini-2.5-flash",
			Temperature: 0,
			Timeout:     60 * time.Second,
		},
		Export: ExportConfig{
			Region:           "us-east-1",
			UseSSL:           true,
			AutoCreateBucket: false,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  false,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18501"
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Observability.LogJSON = true
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

// applyFirst sets dst from the first key in keys that holds a non-empty value.
func applyFirst(lookup LookupFunc, dst *string, keys ...string) error {
	for _, key := range keys {
		raw, ok := lookup(key)
		if !ok {
			continue
		}
		if value := strings.TrimSpace(raw); value != "" {
			*dst = value
			return nil
		}
	}
	return nil
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
