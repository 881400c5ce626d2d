package config

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config is the service configuration.
type Config struct {
	HTTP struct {
		Addr               string   `mapstructure:"addr"`
		CorsAllowedOrigins []string `mapstructure:"cors_allowed_origins"`
	} `mapstructure:"http"`

	Database struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"database"`

	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`

	Auth struct {
		JWTSecret         string        `mapstructure:"jwt_secret"`
		MeterIngestSecret string        `mapstructure:"meter_ingest_secret"`
		MeterMaxSkew      time.Duration `mapstructure:"meter_max_skew"`
	} `mapstructure:"auth"`

	Billing struct {
		Currency             string        `mapstructure:"currency"`
		OverpaymentTolerance string        `mapstructure:"overpayment_tolerance"`
		LockMaxRetries       int           `mapstructure:"lock_max_retries"`
		LockTTL              time.Duration `mapstructure:"lock_ttl"`
		LockInitialBackoff   time.Duration `mapstructure:"lock_initial_backoff"`
		ReportCacheTTL       time.Duration `mapstructure:"report_cache_ttl"`
		PriceCacheTTL        time.Duration `mapstructure:"price_cache_ttl"`
		RunConcurrency       int           `mapstructure:"run_concurrency"`
		CatalogFile          string        `mapstructure:"catalog_file"`
	} `mapstructure:"billing"`

	Outbox struct {
		DispatchInterval time.Duration `mapstructure:"dispatch_interval"`
		BatchSize        int           `mapstructure:"batch_size"`
	} `mapstructure:"outbox"`

	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`

	LandlordID string `mapstructure:"landlord_id"`
}

// Load reads configs/config.yaml (optional), a .env file (optional) and environment overrides.
// Environment keys are the upper-cased config keys with dots replaced by underscores,
// e.g. BILLING_OVERPAYMENT_TOLERANCE.
func Load(paths ...string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	if len(paths) > 0 && paths[0] != "" {
		v.SetConfigFile(paths[0])
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("configs")
		v.AddConfigPath(".")
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "config: read config file")
		}
	}

	// PG_DSN is the name used by the integration test setup.
	if dsn := v.GetString("PG_DSN"); dsn != "" && v.GetString("database.url") == "" {
		v.Set("database.url", dsn)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "config: unmarshal")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.cors_allowed_origins", []string{"*"})
	v.SetDefault("database.url", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.meter_ingest_secret", "")
	v.SetDefault("auth.meter_max_skew", 5*time.Minute)
	v.SetDefault("billing.currency", "VND")
	v.SetDefault("billing.overpayment_tolerance", "0")
	v.SetDefault("billing.lock_max_retries", 5)
	v.SetDefault("billing.lock_ttl", 30*time.Second)
	v.SetDefault("billing.lock_initial_backoff", 25*time.Millisecond)
	v.SetDefault("billing.report_cache_ttl", time.Minute)
	v.SetDefault("billing.price_cache_ttl", 10*time.Minute)
	v.SetDefault("billing.run_concurrency", 8)
	v.SetDefault("billing.catalog_file", "configs/catalog.yaml")
	v.SetDefault("outbox.dispatch_interval", 2*time.Second)
	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("log.level", "info")
	v.SetDefault("landlord_id", "")
}

// Validate checks required settings.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("config: database.url (DATABASE_URL) is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("config: auth.jwt_secret (AUTH_JWT_SECRET) is required")
	}
	if _, err := c.OverpaymentTolerance(); err != nil {
		return err
	}
	if c.Billing.LockMaxRetries < 0 {
		return errors.New("config: billing.lock_max_retries must be >= 0")
	}
	if c.Billing.RunConcurrency <= 0 {
		c.Billing.RunConcurrency = 1
	}
	return nil
}

// OverpaymentTolerance parses billing.overpayment_tolerance.
func (c *Config) OverpaymentTolerance() (decimal.Decimal, error) {
	raw := strings.TrimSpace(c.Billing.OverpaymentTolerance)
	if raw == "" {
		return decimal.Zero, nil
	}
	tol, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "config: billing.overpayment_tolerance")
	}
	if tol.IsNegative() {
		return decimal.Zero, errors.New("config: billing.overpayment_tolerance must be >= 0")
	}
	return tol, nil
}
