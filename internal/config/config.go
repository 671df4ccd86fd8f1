package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kaamsetu/kaamsetu/pkg/ollama"
)

type Config struct {
	Addr              string        `yaml:"addr"`
	JWTSecret         string        `yaml:"jwt_secret"`
	APITimeout        time.Duration `yaml:"timeout"`
	DatabasePath      string        `yaml:"database_path"`
	TokenDuration     time.Duration `yaml:"token_duration"`
	AdminUser         string        `yaml:"admin_user"`
	AdminPasswordHash string        `yaml:"admin_password_hash"`
	OTPTTL            time.Duration `yaml:"otp_ttl"`
	Engine            EngineConfig  `yaml:"engine"`
	Ollama            ollama.Config `yaml:"ollama"`
	Notify            NotifyConfig  `yaml:"notify"`
}

type EngineConfig struct {
	Model         string         `yaml:"model"`
	Template      PromptTemplate `yaml:"template"`
	Timeout       time.Duration  `yaml:"timeout"`
	MinConfidence float64        `yaml:"min_confidence"`
}

type PromptTemplate struct {
	Version       string  `yaml:"version"`
	Template      string  `yaml:"template"`
	SchemaVersion *string `yaml:"schema_version,omitempty"`
}

type NotifyConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		Addr:          getEnv("KAAMSETU_ADDR", ":8080"),
		JWTSecret:     getEnv("KAAMSETU_JWT_SECRET", "supersecretkey"),
		APITimeout:    15 * time.Second,
		DatabasePath:  getEnv("KAAMSETU_DATABASE_PATH", "kaamsetu.db"),
		TokenDuration: 1 * time.Hour,
		AdminUser:     getEnv("KAAMSETU_ADMIN_USER", "admin"),
		OTPTTL:        24 * time.Hour,
		Notify: NotifyConfig{
			MaxAttempts:  5,
			PollInterval: 500 * time.Millisecond,
		},
	}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		if err := dec.Decode(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Validate checks required settings and fills defaults for optional ones.
func (c *Config) Validate() error {
	env := os.Getenv("KAAMSETU_ENV")

	if c.JWTSecret == "" || c.JWTSecret == "supersecretkey" {
		if env != "development" {
			return fmt.Errorf("jwt_secret must be set to a non-default value outside development")
		}
	}
	// an empty engine.model disables LLM routing; the bot falls back to
	// keyword-only handling
	if c.Engine.Timeout <= 0 {
		c.Engine.Timeout = 20 * time.Second
	}
	if c.Engine.MinConfidence <= 0 {
		c.Engine.MinConfidence = 0.5
	}
	if c.OTPTTL <= 0 {
		c.OTPTTL = 24 * time.Hour
	}
	if c.Notify.MaxAttempts <= 0 {
		c.Notify.MaxAttempts = 5
	}
	if c.Notify.PollInterval <= 0 {
		c.Notify.PollInterval = 500 * time.Millisecond
	}
	if c.Ollama.BaseURL == "" {
		c.Ollama = ollama.DefaultConfig()
	}

	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return def
}
