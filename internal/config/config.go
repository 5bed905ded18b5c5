package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port             string   `mapstructure:"PORT"`
	Env              string   `mapstructure:"ENV"`
	AuthMode         string   `mapstructure:"AUTH_MODE"`
	DatabaseURL      string   `mapstructure:"DATABASE_URL"`
	DBMaxConns       int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32    `mapstructure:"DB_MIN_CONNS"`
	DBAcquireTimeout int      `mapstructure:"DB_ACQUIRE_TIMEOUT"`
	MigrationsDir    string   `mapstructure:"MIGRATIONS_DIR"`
	UploadDir        string   `mapstructure:"UPLOAD_DIR"`
	MaxUploadBytes   int64    `mapstructure:"MAX_UPLOAD_BYTES"`
	CORSOrigins      []string `mapstructure:"CORS_ORIGINS"`
	JWTSecret        string   `mapstructure:"JWT_SECRET"`
	JWTIssuer        string   `mapstructure:"JWT_ISSUER"`
	JWTAudience      string   `mapstructure:"JWT_AUDIENCE"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("AUTH_MODE", "static")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DB_ACQUIRE_TIMEOUT", 30)
	v.SetDefault("MIGRATIONS_DIR", "migrations")
	v.SetDefault("UPLOAD_DIR", "uploads/clinical_notes")
	v.SetDefault("MAX_UPLOAD_BYTES", 10*1024*1024)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("AUTH_MODE")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("DB_ACQUIRE_TIMEOUT")
	v.BindEnv("MIGRATIONS_DIR")
	v.BindEnv("UPLOAD_DIR")
	v.BindEnv("MAX_UPLOAD_BYTES")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("JWT_ISSUER")
	v.BindEnv("JWT_AUDIENCE")

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

	if cfg.AuthMode == "static" {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: AUTH_MODE=static is active. Requests without a credential")
		log.Println("WARNING: are granted the standard user role (fail-open). This is a")
		log.Println("WARNING: development convenience only. Set AUTH_MODE=jwt and")
		log.Println("WARNING: JWT_SECRET before exposing this service.")
		log.Println("WARNING: ============================================================")
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

// Validate checks that the configuration is safe to run. The static token
// verifier grants a default role to unauthenticated callers, so it is refused
// outright in production.
func (c *Config) Validate() error {
	if c.AuthMode != "static" && c.AuthMode != "jwt" {
		return fmt.Errorf("AUTH_MODE must be \"static\" or \"jwt\", got %q", c.AuthMode)
	}
	if c.IsProduction() && c.AuthMode == "static" {
		return fmt.Errorf(
			"AUTH_MODE=static is not allowed in production: unauthenticated requests " +
				"would be granted the standard user role. Set AUTH_MODE=jwt and JWT_SECRET")
	}
	if c.AuthMode == "jwt" && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when AUTH_MODE is \"jwt\"")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	if c.DBAcquireTimeout <= 0 {
		return fmt.Errorf("DB_ACQUIRE_TIMEOUT must be positive, got %d", c.DBAcquireTimeout)
	}
	return nil
}
