package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr string
	}
	Database struct {
		Path string
	}
	Log struct {
		Level string
	}
	Auth struct {
		JWTSecret       string
		TokenTTLMinutes int
	}
	Generator struct {
		Provider          string
		Model             string
		APIKey            string
		APIURL            string
		Temperature       float64
		MaxTokens         int
		RequestsPerMinute int
		MaxAttempts       int
		BaseDelay         time.Duration
		Timeout           time.Duration
	}
	Worker struct {
		MaxConcurrent int
	}
	RateLimit struct {
		AuthPerMinute int
		RedisURL      string
	}
	Storage struct {
		Bucket    string
		KeyPrefix string
		Region    string
		Endpoint  string
	}
	AWS struct {
		Profile string
	}
	Events struct {
		NATSURL string
		Subject string
	}
	Metrics struct {
		Enabled bool
	}
}

// TokenTTL converts the configured minutes into a duration.
func (c Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTLMinutes) * time.Minute
}

// Validate reports settings the server cannot start without.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		errs = append(errs, errors.New("auth jwt secret is required"))
	}
	if c.Auth.TokenTTLMinutes <= 0 {
		errs = append(errs, errors.New("auth token ttl must be positive"))
	}
	if c.Generator.MaxAttempts <= 0 {
		errs = append(errs, errors.New("generator max attempts must be positive"))
	}
	if c.Generator.BaseDelay <= 0 {
		errs = append(errs, errors.New("generator base delay must be positive"))
	}
	if c.Worker.MaxConcurrent <= 0 {
		errs = append(errs, errors.New("worker max concurrent must be positive"))
	}
	return errors.Join(errs...)
}

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	// real environment variables win over .env entries
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("BLOGWRITER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	v.SetConfigName("config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", "0.0.0.0:8080")
	v.SetDefault("database.path", "data/blog.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("auth.jwtsecret", "")
	v.SetDefault("auth.tokenttlminutes", 30)
	v.SetDefault("generator.provider", "openai")
	v.SetDefault("generator.model", "gpt-4o-mini")
	v.SetDefault("generator.apikey", "")
	v.SetDefault("generator.apiurl", "")
	v.SetDefault("generator.temperature", 0.7)
	v.SetDefault("generator.maxtokens", 0)
	v.SetDefault("generator.requestsperminute", 0)
	v.SetDefault("generator.maxattempts", 5)
	v.SetDefault("generator.basedelay", 10*time.Second)
	v.SetDefault("generator.timeout", 10*time.Minute)
	v.SetDefault("worker.maxconcurrent", 3)
	v.SetDefault("ratelimit.authperminute", 20)
	v.SetDefault("ratelimit.redisurl", "")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.keyprefix", "blog-posts")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("aws.profile", "")
	v.SetDefault("events.natsurl", "")
	v.SetDefault("events.subject", "blog.posts")
	v.SetDefault("metrics.enabled", true)
}
