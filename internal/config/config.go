package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "BUDDYCHAT"

type HTTPConfig struct {
	Addr          string        `mapstructure:"addr"`
	AllowedOrigin string        `mapstructure:"allowed_origin"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type StoreConfig struct {
	Driver         string `mapstructure:"driver"`
	ValkeyAddr     string `mapstructure:"valkey_addr"`
	ValkeyPassword string `mapstructure:"valkey_password"`
	ValkeyDB       int    `mapstructure:"valkey_db"`
	ValkeyPrefix   string `mapstructure:"valkey_prefix"`
	PostgresDSN    string `mapstructure:"postgres_dsn"`
	MongoURI       string `mapstructure:"mongo_uri"`
	MongoDatabase  string `mapstructure:"mongo_database"`
}

type MessagingConfig struct {
	BatchFanout       bool   `mapstructure:"batch_fanout"`
	PreviewRetries    int    `mapstructure:"preview_retries"`
	DefaultSenderName string `mapstructure:"default_sender_name"`
}

type RateLimitConfig struct {
	PerMinute int `mapstructure:"per_minute"`
	Burst     int `mapstructure:"burst"`
}

type LogConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

type Config struct {
	HTTP      HTTPConfig      `mapstructure:"http"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Store     StoreConfig     `mapstructure:"store"`
	Messaging MessagingConfig `mapstructure:"messaging"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Log       LogConfig       `mapstructure:"log"`
}

// Drivers accepted for store.driver.
var Drivers = []string{"memory", "valkey", "postgres", "mongo"}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.allowed_origin", "http://127.0.0.1:5173")
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.valkey_addr", "127.0.0.1:6379")
	v.SetDefault("store.valkey_password", "")
	v.SetDefault("store.valkey_db", 0)
	v.SetDefault("store.valkey_prefix", "buddychat")
	v.SetDefault("store.postgres_dsn", "")
	v.SetDefault("store.mongo_uri", "mongodb://127.0.0.1:27017/?replicaSet=rs0")
	v.SetDefault("store.mongo_database", "buddychat")
	v.SetDefault("messaging.batch_fanout", false)
	v.SetDefault("messaging.preview_retries", 0)
	v.SetDefault("messaging.default_sender_name", "Me")
	v.SetDefault("ratelimit.per_minute", 120)
	v.SetDefault("ratelimit.burst", 10)
	v.SetDefault("log.development", false)
	v.SetDefault("log.level", "info")
}

// Load reads configuration from an optional config file and the
// environment. A .env file in the working directory is loaded first if
// present; BUDDYCHAT_STORE_DRIVER overrides store.driver and so on.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !isNotExist(err) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func (c *Config) Validate() error {
	var errs []error
	known := false
	for _, d := range Drivers {
		if c.Store.Driver == d {
			known = true
		}
	}
	if !known {
		errs = append(errs, fmt.Errorf("store.driver %q must be one of %s", c.Store.Driver, strings.Join(Drivers, ", ")))
	}
	if c.Store.Driver == "postgres" && c.Store.PostgresDSN == "" {
		errs = append(errs, errors.New("store.postgres_dsn is required for the postgres driver"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	if c.Messaging.PreviewRetries < 0 {
		errs = append(errs, errors.New("messaging.preview_retries must not be negative"))
	}
	if c.RateLimit.PerMinute <= 0 || c.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("ratelimit.per_minute and ratelimit.burst must be positive"))
	}
	return errors.Join(errs...)
}
