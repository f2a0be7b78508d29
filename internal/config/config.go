package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port                  string   `mapstructure:"PORT"`
	Env                   string   `mapstructure:"ENV"`
	DatabaseURL           string   `mapstructure:"DATABASE_URL"`
	DBMaxConns            int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns            int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins           []string `mapstructure:"CORS_ORIGINS"`
	JWTSecret             string   `mapstructure:"JWT_SECRET"`
	JWTTTLMinutes         int      `mapstructure:"JWT_TTL_MINUTES"`
	UpstreamBaseURL       string   `mapstructure:"UPSTREAM_BASE_URL"`
	UpstreamToken         string   `mapstructure:"UPSTREAM_TOKEN"`
	BaseRate              float64  `mapstructure:"BASE_RATE"`
	DefaultOASISScore     int      `mapstructure:"DEFAULT_OASIS_SCORE"`
	DefaultTherapyMinutes int      `mapstructure:"DEFAULT_THERAPY_MINUTES"`
	RateLimitRPS          float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst        int      `mapstructure:"RATE_LIMIT_BURST"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("JWT_TTL_MINUTES", 60)
	v.SetDefault("BASE_RATE", 2000)
	v.SetDefault("DEFAULT_OASIS_SCORE", 85)
	v.SetDefault("DEFAULT_THERAPY_MINUTES", 450)
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("JWT_TTL_MINUTES")
	v.BindEnv("UPSTREAM_BASE_URL")
	v.BindEnv("UPSTREAM_TOKEN")
	v.BindEnv("BASE_RATE")
	v.BindEnv("DEFAULT_OASIS_SCORE")
	v.BindEnv("DEFAULT_THERAPY_MINUTES")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() && cfg.JWTSecret == "" {
		log.Println("WARNING: JWT_SECRET is not set; using an insecure development secret.")
		log.Println("WARNING: Set JWT_SECRET before running outside development.")
		cfg.JWTSecret = "insecure-dev-secret"
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development
// a real JWT_SECRET must be configured, and the reimbursement defaults must
// be in range so that payment computation never starts from garbage.
func (c *Config) Validate() error {
	if !c.IsDev() {
		if c.JWTSecret == "" || c.JWTSecret == "insecure-dev-secret" {
			return fmt.Errorf("JWT_SECRET must be set when ENV=%q. Refusing to start without authentication configuration", c.Env)
		}
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 bytes, got %d", len(c.JWTSecret))
		}
	}
	if c.JWTTTLMinutes <= 0 {
		return fmt.Errorf("JWT_TTL_MINUTES must be positive, got %d", c.JWTTTLMinutes)
	}
	if c.BaseRate <= 0 {
		return fmt.Errorf("BASE_RATE must be positive, got %v", c.BaseRate)
	}
	if c.DefaultOASISScore < 0 || c.DefaultOASISScore > 100 {
		return fmt.Errorf("DEFAULT_OASIS_SCORE must be between 0 and 100, got %d", c.DefaultOASISScore)
	}
	if c.DefaultTherapyMinutes < 0 {
		return fmt.Errorf("DEFAULT_THERAPY_MINUTES must not be negative, got %d", c.DefaultTherapyMinutes)
	}
	return nil
}
