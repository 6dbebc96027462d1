package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
)

const envPrefix = "STOREFRONT_"

type Config struct {
	App struct {
		Name            string        `koanf:"name"`
		HTTPAddr        string        `koanf:"http_addr"`
		GRPCAddr        string        `koanf:"grpc_addr"`
		LogLevel        string        `koanf:"log_level"`
		LogFile         string        `koanf:"log_file"`
		RequestTimeout  time.Duration `koanf:"request_timeout"`
		ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	} `koanf:"app"`

	Store struct {
		Driver            string `koanf:"driver"` // postgres | sqlite
		MigrationsPath    string `koanf:"migrations_path"`
		MaxCommitAttempts int    `koanf:"max_commit_attempts"`
		Postgres          struct {
			Host     string `koanf:"host"`
			Port     int    `koanf:"port"`
			User     string `koanf:"user"`
			Password string `koanf:"password"`
			DBName   string `koanf:"dbname"`
			SSLMode  string `koanf:"sslmode"`
		} `koanf:"postgres"`
		SQLite struct {
			Path string `koanf:"path"`
		} `koanf:"sqlite"`
	} `koanf:"store"`

	Mongo struct {
		URI         string `koanf:"uri"`
		Database    string `koanf:"database"`
		MaxPoolSize uint64 `koanf:"max_pool_size"`
		MinPoolSize uint64 `koanf:"min_pool_size"`
	} `koanf:"mongo"`

	Redis struct {
		Addr     string        `koanf:"addr"`
		Password string        `koanf:"password"`
		CartTTL  time.Duration `koanf:"cart_ttl"`
		LockTTL  time.Duration `koanf:"lock_ttl"`
	} `koanf:"redis"`

	Kafka struct {
		Brokers          []string      `koanf:"brokers"`
		Topic            string        `koanf:"topic"`
		PollInterval     time.Duration `koanf:"poll_interval"`
		RecoveryInterval time.Duration `koanf:"recovery_interval"`
		StuckAfter       time.Duration `koanf:"stuck_after"`
	} `koanf:"kafka"`

	Auth struct {
		Provider                string `koanf:"provider"` // jwt | firebase
		JWTSecret               string `koanf:"jwt_secret"`
		Issuer                  string `koanf:"issuer"`
		Audience                string `koanf:"audience"`
		FirebaseProjectID       string `koanf:"firebase_project_id"`
		FirebaseCredentialsJSON string `koanf:"firebase_credentials_json"`
	} `koanf:"auth"`

	Payments struct {
		Card struct {
			BaseURL     string        `koanf:"base_url"`
			Timeout     time.Duration `koanf:"timeout"`
			MaxAttempts int           `koanf:"max_attempts"`
			BackoffBase time.Duration `koanf:"backoff_base"`
		} `koanf:"card"`
		MobileMoney struct {
			BaseURL string        `koanf:"base_url"`
			Gateway string        `koanf:"gateway"`
			Timeout time.Duration `koanf:"timeout"`
		} `koanf:"mobile_money"`
	} `koanf:"payments"`

	Notifications struct {
		BaseURL     string        `koanf:"base_url"`
		Timeout     time.Duration `koanf:"timeout"`
		MaxAttempts int           `koanf:"max_attempts"`
		BackoffBase time.Duration `koanf:"backoff_base"`
	} `koanf:"notifications"`

	Pricing struct {
		BaseCurrency string            `koanf:"base_currency"`
		Rates        map[string]string `koanf:"rates"`
	} `koanf:"pricing"`
}

func Load(pathDir, envName string) (Config, error) {
	k := koanf.New(".")
	// 1) base
	if err := k.Load(file.Provider(fmt.Sprintf("%s/base.yaml", pathDir)), yaml.Parser()); err != nil {
		return Config{}, fmt.Errorf("load base: %w", err)
	}

	// 2) env file (dev/staging/prod), optional for local runs
	if envName != "" {
		_ = k.Load(file.Provider(fmt.Sprintf("%s/%s.yaml", pathDir, envName)), yaml.Parser())
	}

	// 3) environment variables, e.g. STOREFRONT_STORE__POSTGRES__PASSWORD
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
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

func (c Config) Validate() error {
	if c.App.HTTPAddr == "" {
		return fmt.Errorf("app.http_addr required")
	}
	switch c.Store.Driver {
	case "postgres":
		if c.Store.Postgres.Host == "" || c.Store.Postgres.DBName == "" {
			return fmt.Errorf("store.postgres.host and store.postgres.dbname required")
		}
	case "sqlite":
		if c.Store.SQLite.Path == "" {
			return fmt.Errorf("store.sqlite.path required")
		}
	default:
		return fmt.Errorf("store.driver must be postgres or sqlite, got %q", c.Store.Driver)
	}
	if c.Store.MaxCommitAttempts < 1 {
		return fmt.Errorf("store.max_commit_attempts must be positive")
	}
	switch c.Auth.Provider {
	case "jwt":
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("auth.jwt_secret required for jwt provider")
		}
	case "firebase":
		if c.Auth.FirebaseProjectID == "" {
			return fmt.Errorf("auth.firebase_project_id required for firebase provider")
		}
	default:
		return fmt.Errorf("auth.provider must be jwt or firebase, got %q", c.Auth.Provider)
	}
	if c.Payments.Card.MaxAttempts < 1 {
		return fmt.Errorf("payments.card.max_attempts must be positive")
	}
	if c.Notifications.MaxAttempts < 1 {
		return fmt.Errorf("notifications.max_attempts must be positive")
	}
	if c.Pricing.BaseCurrency == "" {
		return fmt.Errorf("pricing.base_currency required")
	}
	for currency, raw := range c.Pricing.Rates {
		rate, err := decimal.NewFromString(raw)
		if err != nil || !rate.IsPositive() {
			return fmt.Errorf("pricing.rates.%s must be a positive decimal, got %q", currency, raw)
		}
	}
	return nil
}
