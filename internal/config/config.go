package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// App holds the runtime configuration loaded from environment variables
// and an optional config file.
type App struct {
	Env             string        `mapstructure:"app_env"`
	HTTPPort        string        `mapstructure:"http_port"`
	DBDriver        string        `mapstructure:"db_driver"`
	DatabaseURL     string        `mapstructure:"database_url"`
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	JWTIssuer       string        `mapstructure:"jwt_issuer"`
	JWTSigningKey   string        `mapstructure:"jwt_signing_key"`
	SessionTTL      time.Duration `mapstructure:"session_ttl"`
	CookieSecure    bool          `mapstructure:"cookie_secure"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	QueueBackend    string        `mapstructure:"queue_backend"`
	RateLimitPerMin int           `mapstructure:"rate_limit_per_min"`

	OTPValidity      time.Duration `mapstructure:"otp_validity"`
	OTPMaxAttempts   int           `mapstructure:"otp_max_attempts"`
	OTPAttemptWindow time.Duration `mapstructure:"otp_attempt_window"`
	OTPSweepInterval time.Duration `mapstructure:"otp_sweep_interval"`

	SeedAdminEmail    string `mapstructure:"seed_admin_email"`
	SeedAdminPassword string `mapstructure:"seed_admin_password"`
	SeedAdminName     string `mapstructure:"seed_admin_name"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// Production reports whether the app runs with production settings.
func (a App) Production() bool {
	return a.Env == "production" || a.Env == "prod"
}

// Load returns application config. Precedence: env > config file > defaults.
// The file is read from CONFIG_FILE when set, otherwise ./config.yaml if present.
func Load() (App, error) {
	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return App{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg App
	if err := v.Unmarshal(&cfg); err != nil {
		return App{}, fmt.Errorf("decode config: %w", err)
	}
	// CORS_ORIGINS arrives as one comma separated string from the environment.
	cfg.CORSOrigins = splitList(strings.Join(cfg.CORSOrigins, ","))
	if err := cfg.Validate(); err != nil {
		return App{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("config_file", "")
	v.SetDefault("app_env", "dev")
	v.SetDefault("http_port", "8081")
	v.SetDefault("db_driver", "sqlite")
	v.SetDefault("database_url", "./attendance.db")
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("jwt_issuer", "attendance-engine")
	v.SetDefault("jwt_signing_key", "dev-signing-secret-change")
	v.SetDefault("session_ttl", "12h")
	v.SetDefault("cookie_secure", false)
	v.SetDefault("cors_origins", []string{"http://localhost:5173"})
	v.SetDefault("queue_backend", "memory")
	v.SetDefault("rate_limit_per_min", 120)

	v.SetDefault("otp_validity", "60s")
	v.SetDefault("otp_max_attempts", 5)
	v.SetDefault("otp_attempt_window", "1m")
	v.SetDefault("otp_sweep_interval", "5m")

	v.SetDefault("seed_admin_email", "admin@school.local")
	v.SetDefault("seed_admin_password", "admin123")
	v.SetDefault("seed_admin_name", "Administrator")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
}

// Validate rejects configurations the service cannot run with.
func (a App) Validate() error {
	switch a.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("config: db_driver must be postgres or sqlite, got %q", a.DBDriver)
	}
	switch a.QueueBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: queue_backend must be memory or redis, got %q", a.QueueBackend)
	}
	if a.QueueBackend == "redis" && a.RedisAddr == "" {
		return errors.New("config: queue_backend redis requires redis_addr")
	}
	if a.JWTSigningKey == "" {
		return errors.New("config: jwt_signing_key is required")
	}
	if a.Production() && len(a.JWTSigningKey) < 16 {
		return errors.New("config: jwt_signing_key must be at least 16 characters in production")
	}
	if a.SessionTTL <= 0 {
		return errors.New("config: session_ttl must be positive")
	}
	if a.OTPValidity <= 0 {
		return errors.New("config: otp_validity must be positive")
	}
	if a.OTPMaxAttempts <= 0 || a.OTPAttemptWindow <= 0 {
		return errors.New("config: otp_max_attempts and otp_attempt_window must be positive")
	}
	if a.SeedAdminEmail == "" || a.SeedAdminPassword == "" {
		return errors.New("config: seed admin email and password are required")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
