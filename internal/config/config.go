package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

// Config contains all runtime settings for the reflection service.
type Config struct {
	BindAddr         string `validate:"required"`
	ShutdownTimeout  time.Duration
	MetricsNamespace string `validate:"required"`
	DatabaseURL      string
	LogFile          string
	AllowAnyOrigin   bool

	// CacheCapacity bounds the number of sessions held in the
	// conversation cache; the durable store stays unbounded.
	CacheCapacity int `validate:"gte=0"`
	// HistoryLimit is how many recent turns feed each prompt.
	HistoryLimit int `validate:"gt=0"`

	SessionInactivityTimeout time.Duration

	Generation Generation
}

// Generation selects and tunes the text-generation backend.
type Generation struct {
	Mode           string `validate:"oneof=auto remote local mock"`
	RemoteURL      string
	RemoteAPIKey   string
	RemoteModel    string
	LocalCLIPath   string
	LocalModelPath string
	MaxTokens      int     `validate:"gt=0"`
	Temperature    float64 `validate:"gte=0,lte=2"`
	Timeout        time.Duration
}

// fileConfig is the YAML shape; durations come in as strings.
type fileConfig struct {
	BindAddr         string `yaml:"bind_addr"`
	ShutdownTimeout  string `yaml:"shutdown_timeout"`
	MetricsNamespace string `yaml:"metrics_namespace"`
	DatabaseURL      string `yaml:"database_url"`
	LogFile          string `yaml:"log_file"`
	AllowAnyOrigin   bool   `yaml:"allow_any_origin"`

	Memory struct {
		CacheCapacity int `yaml:"cache_capacity"`
		HistoryLimit  int `yaml:"history_limit"`
	} `yaml:"memory"`

	Session struct {
		InactivityTimeout string `yaml:"inactivity_timeout"`
	} `yaml:"session"`

	Generation struct {
		Mode           string  `yaml:"mode"`
		RemoteURL      string  `yaml:"remote_url"`
		RemoteAPIKey   string  `yaml:"remote_api_key"`
		RemoteModel    string  `yaml:"remote_model"`
		LocalCLIPath   string  `yaml:"local_cli_path"`
		LocalModelPath string  `yaml:"local_model_path"`
		MaxTokens      int     `yaml:"max_tokens"`
		Temperature    float64 `yaml:"temperature"`
		Timeout        string  `yaml:"timeout"`
	} `yaml:"generation"`
}

// Load builds the configuration from defaults, an optional YAML file,
// and environment overrides, in that order of precedence (env wins).
func Load(path string) (Config, error) {
	cfg := defaults()

	if err := applyFile(&cfg, path); err != nil {
		return Config{}, err
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		return Config{}, oops.Errorf("failed to validate config: %w", err)
	}
	if cfg.Generation.Timeout <= 0 {
		return Config{}, oops.Errorf("generation timeout must be positive")
	}
	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, oops.Errorf("session inactivity timeout must be at least 5s")
	}

	return cfg, nil
}

func defaults() Config {
	cfg := Config{
		BindAddr:                 ":8080",
		ShutdownTimeout:          15 * time.Second,
		MetricsNamespace:         "mirror",
		CacheCapacity:            100,
		HistoryLimit:             10,
		SessionInactivityTimeout: 30 * time.Minute,
	}
	cfg.Generation = Generation{
		Mode:           "auto",
		RemoteModel:    "gemini-1.5-pro-latest",
		LocalCLIPath:   "llama-cli",
		LocalModelPath: "models/Llama-3.2-3B-Instruct-Q4_K_M.gguf",
		MaxTokens:      200,
		Temperature:    0.7,
		Timeout:        30 * time.Second,
	}
	return cfg
}

func applyFile(cfg *Config, path string) error {
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = "config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return oops.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return oops.Errorf("failed to parse YAML config: %w", err)
	}

	setString(&cfg.BindAddr, fc.BindAddr)
	setString(&cfg.MetricsNamespace, fc.MetricsNamespace)
	setString(&cfg.DatabaseURL, fc.DatabaseURL)
	setString(&cfg.LogFile, fc.LogFile)
	if fc.AllowAnyOrigin {
		cfg.AllowAnyOrigin = true
	}
	if fc.Memory.CacheCapacity > 0 {
		cfg.CacheCapacity = fc.Memory.CacheCapacity
	}
	if fc.Memory.HistoryLimit > 0 {
		cfg.HistoryLimit = fc.Memory.HistoryLimit
	}
	setString(&cfg.Generation.Mode, fc.Generation.Mode)
	setString(&cfg.Generation.RemoteURL, fc.Generation.RemoteURL)
	setString(&cfg.Generation.RemoteAPIKey, fc.Generation.RemoteAPIKey)
	setString(&cfg.Generation.RemoteModel, fc.Generation.RemoteModel)
	setString(&cfg.Generation.LocalCLIPath, fc.Generation.LocalCLIPath)
	setString(&cfg.Generation.LocalModelPath, fc.Generation.LocalModelPath)
	if fc.Generation.MaxTokens > 0 {
		cfg.Generation.MaxTokens = fc.Generation.MaxTokens
	}
	if fc.Generation.Temperature > 0 {
		cfg.Generation.Temperature = fc.Generation.Temperature
	}

	if err := setDuration(&cfg.ShutdownTimeout, fc.ShutdownTimeout, "shutdown_timeout"); err != nil {
		return err
	}
	if err := setDuration(&cfg.SessionInactivityTimeout, fc.Session.InactivityTimeout, "session.inactivity_timeout"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Generation.Timeout, fc.Generation.Timeout, "generation.timeout"); err != nil {
		return err
	}

	return nil
}

func applyEnv(cfg *Config) error {
	cfg.BindAddr = envOrDefault("APP_BIND_ADDR", cfg.BindAddr)
	cfg.MetricsNamespace = envOrDefault("APP_METRICS_NAMESPACE", cfg.MetricsNamespace)
	cfg.DatabaseURL = envOrDefault("DATABASE_URL", cfg.DatabaseURL)
	cfg.LogFile = envOrDefault("APP_LOG_FILE", cfg.LogFile)
	cfg.Generation.Mode = envOrDefault("GENERATOR_MODE", cfg.Generation.Mode)
	cfg.Generation.RemoteURL = envOrDefault("GENERATOR_REMOTE_URL", cfg.Generation.RemoteURL)
	cfg.Generation.RemoteAPIKey = envOrDefault("GEMINI_API_KEY", cfg.Generation.RemoteAPIKey)
	cfg.Generation.RemoteModel = envOrDefault("GENERATOR_REMOTE_MODEL", cfg.Generation.RemoteModel)
	cfg.Generation.LocalCLIPath = envOrDefault("GENERATOR_LOCAL_CLI", cfg.Generation.LocalCLIPath)
	cfg.Generation.LocalModelPath = envOrDefault("GENERATOR_LOCAL_MODEL_PATH", cfg.Generation.LocalModelPath)

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return err
	}
	cfg.Generation.Timeout, err = durationFromEnv("GENERATION_TIMEOUT", cfg.Generation.Timeout)
	if err != nil {
		return err
	}
	cfg.CacheCapacity, err = intFromEnv("MEMORY_CACHE_CAPACITY", cfg.CacheCapacity)
	if err != nil {
		return err
	}
	cfg.HistoryLimit, err = intFromEnv("MEMORY_HISTORY_LIMIT", cfg.HistoryLimit)
	if err != nil {
		return err
	}
	cfg.Generation.MaxTokens, err = intFromEnv("GENERATION_MAX_TOKENS", cfg.Generation.MaxTokens)
	if err != nil {
		return err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return err
	}

	return nil
}

func setString(dst *string, v string) {
	if strings.TrimSpace(v) != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v, field string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return oops.Errorf("invalid %s: %w", field, err)
	}
	*dst = d
	return nil
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, oops.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, oops.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, oops.Errorf("%s parse error: invalid boolean %q", key, v)
	}
}
