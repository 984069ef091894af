package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment overrides. Nested keys use a double
// underscore: PAYORD_BACKEND__BASE_URL sets backend.base_url.
const EnvPrefix = "PAYORD_"

// Config is the service configuration
type Config struct {
	Service struct {
		Name        string `koanf:"name"`
		Version     string `koanf:"version"`
		Environment string `koanf:"environment"`
		LogLevel    string `koanf:"log_level"`
		LogFile     string `koanf:"log_file"`
	} `koanf:"service"`

	Server struct {
		Port            int           `koanf:"port"`
		GRPCPort        int           `koanf:"grpc_port"`
		ReadTimeout     time.Duration `koanf:"read_timeout"`
		WriteTimeout    time.Duration `koanf:"write_timeout"`
		IdleTimeout     time.Duration `koanf:"idle_timeout"`
		ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	} `koanf:"server"`

	Backend struct {
		BaseURL string        `koanf:"base_url"`
		Timeout time.Duration `koanf:"timeout"`
		// Token seeds the static credential provider when Redis is not configured.
		Token string `koanf:"token"`
	} `koanf:"backend"`

	Redis struct {
		Addr     string `koanf:"addr"`
		Password string `koanf:"password"`
		DB       int    `koanf:"db"`
		TokenKey string `koanf:"token_key"`
	} `koanf:"redis"`

	Database struct {
		URL string `koanf:"url"`
	} `koanf:"database"`

	NATS struct {
		URL string `koanf:"url"`
	} `koanf:"nats"`
}

func defaults() map[string]any {
	return map[string]any{
		"service.name":            "be-ap-payment-orders",
		"service.version":         "dev",
		"service.environment":     "development",
		"service.log_level":       "info",
		"server.port":             8086,
		"server.grpc_port":        9086,
		"server.read_timeout":     "15s",
		"server.write_timeout":    "30s",
		"server.idle_timeout":     "60s",
		"server.shutdown_timeout": "10s",
		"backend.timeout":         "20s",
		"redis.token_key":         "payment-orders:backend-token",
	}
}

// Load reads configuration in layers: defaults, then the YAML file named by
// CONFIG_FILE (optional), then PAYORD_* environment variables. A .env file in
// the working directory is loaded into the environment first when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		s = strings.ReplaceAll(s, "__", ".")
		return strings.ToLower(s)
	}), nil); err != nil {
		return Config{}, fmt.Errorf("env overlay: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks required settings
func (c Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url required")
	}
	if !strings.HasPrefix(c.Backend.BaseURL, "http://") && !strings.HasPrefix(c.Backend.BaseURL, "https://") {
		return fmt.Errorf("backend.base_url must be an http(s) URL")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port required")
	}
	return nil
}
