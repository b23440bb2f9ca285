package cfg

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Settings struct {
	ModelsDir    string
	DataPath     string
	DefaultModel string
	ListenPort   int
	MetricsPort  int
	CacheSize    int
	CacheTTL     time.Duration
	LogLevel     string
}

type ConfigFile struct {
	Models struct {
		Dir          string `yaml:"dir"`
		DefaultModel string `yaml:"defaultModel"`
	} `yaml:"models"`

	Serving struct {
		ListenPort  int    `yaml:"listenPort"`
		MetricsPort int    `yaml:"metricsPort"`
		CacheSize   int    `yaml:"cacheSize"`
		CacheTTL    string `yaml:"cacheTTL"`
	} `yaml:"serving"`

	System struct {
		DataPath string `yaml:"dataPath"`
		LogLevel string `yaml:"logLevel"`
	} `yaml:"system"`
}

func Load() (Settings, error) {
	// Try to load from YAML file first
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	cacheTTL, err := time.ParseDuration(config.Serving.CacheTTL)
	if err != nil {
		cacheTTL = 5 * time.Minute
	}

	settings := Settings{
		ModelsDir:    getEnvOrDefault("MODELS_DIR", config.Models.Dir),
		DataPath:     getEnvOrDefault("DATA_PATH", config.System.DataPath),
		DefaultModel: getEnvOrDefault("DEFAULT_MODEL", config.Models.DefaultModel),
		ListenPort:   getIntFromEnvOrConfig("LISTEN_PORT", config.Serving.ListenPort),
		MetricsPort:  getIntFromEnvOrConfig("METRICS_PORT", config.Serving.MetricsPort),
		CacheSize:    getIntFromEnvOrConfig("CACHE_SIZE", config.Serving.CacheSize),
		CacheTTL:     getDurationOrDefault("CACHE_TTL", cacheTTL),
		LogLevel:     getEnvOrDefault("LOG_LEVEL", config.System.LogLevel),
	}
	applyDefaults(&settings)

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		ModelsDir:    getEnvOrDefault("MODELS_DIR", "models"),
		DataPath:     os.Getenv("DATA_PATH"), // optional
		DefaultModel: getEnvOrDefault("DEFAULT_MODEL", "logistic_regression"),
		ListenPort:   getIntOrDefault("LISTEN_PORT", 5000),
		MetricsPort:  getIntOrDefault("METRICS_PORT", 8080),
		CacheSize:    getIntOrDefault("CACHE_SIZE", 512),
		CacheTTL:     getDurationOrDefault("CACHE_TTL", 5*time.Minute),
		LogLevel:     getEnvOrDefault("LOG_LEVEL", "info"),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func applyDefaults(s *Settings) {
	if s.ModelsDir == "" {
		s.ModelsDir = "models"
	}
	if s.DefaultModel == "" {
		s.DefaultModel = "logistic_regression"
	}
	if s.ListenPort == 0 {
		s.ListenPort = 5000
	}
	if s.MetricsPort == 0 {
		s.MetricsPort = 8080
	}
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	return configValue
}

// validateSettings performs validation of configuration values
func validateSettings(settings *Settings) error {
	if settings.ModelsDir == "" {
		return fmt.Errorf("models directory is required")
	}

	if settings.ListenPort < 1 || settings.ListenPort > 65535 {
		return fmt.Errorf("listen port must be between 1 and 65535, got %d", settings.ListenPort)
	}
	if settings.MetricsPort < 1 || settings.MetricsPort > 65535 {
		return fmt.Errorf("metrics port must be between 1 and 65535, got %d", settings.MetricsPort)
	}
	if settings.ListenPort == settings.MetricsPort {
		return fmt.Errorf("listen port and metrics port must differ, both are %d", settings.ListenPort)
	}

	if settings.CacheSize < 0 {
		return fmt.Errorf("cache size cannot be negative, got %d", settings.CacheSize)
	}
	if settings.CacheSize > 0 && settings.CacheTTL <= 0 {
		return fmt.Errorf("cache TTL must be positive when caching is enabled, got %v", settings.CacheTTL)
	}

	switch settings.LogLevel {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", settings.LogLevel)
	}

	return nil
}
