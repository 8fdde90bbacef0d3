package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	OAuth    OAuthConfig
	Email    EmailConfig
	Admin    AdminBootstrapConfig
}

type DatabaseConfig struct {
	Host              string        `env:"DB_HOST" envDefault:"localhost"`
	Port              int           `env:"DB_PORT" envDefault:"5432"`
	User              string        `env:"DB_USER" envDefault:"postgres"`
	Password          string        `env:"DB_PASSWORD"`
	Name              string        `env:"DB_NAME" envDefault:"springboard"`
	SSLMode           string        `env:"DB_SSLMODE" envDefault:"disable"`
	MaxConns          int32         `env:"DB_MAX_CONNS" envDefault:"25"`
	MinConns          int32         `env:"DB_MIN_CONNS" envDefault:"5"`
	MaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"5m"`
	MaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"1m"`
	HealthCheckPeriod time.Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"1m"`
	AutoMigrate       bool          `env:"DB_AUTO_MIGRATE" envDefault:"true"`
}

type ServerConfig struct {
	Port           string   `env:"PORT" envDefault:"8000"`
	Env            string   `env:"ENV" envDefault:"development"`
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`
	SentryDSN      string   `env:"SENTRY_DSN"`
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`

	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

type AuthConfig struct {
	JWTSecret          string        `env:"JWT_SECRET"`
	AccessTokenExpiry  time.Duration `env:"ACCESS_TOKEN_EXPIRY" envDefault:"30m"`
	RefreshTokenExpiry time.Duration `env:"REFRESH_TOKEN_EXPIRY" envDefault:"168h"`
	CleanupInterval    time.Duration `env:"TOKEN_CLEANUP_INTERVAL" envDefault:"1h"`
	BcryptCost         int           `env:"BCRYPT_COST" envDefault:"12"`
	CookieDomain       string        `env:"COOKIE_DOMAIN"`
	SecureCookies      bool          `env:"SECURE_COOKIES" envDefault:"false"`
	AuthRateLimit      int           `env:"AUTH_RATE_LIMIT_PER_MINUTE" envDefault:"10"`
}

type OAuthConfig struct {
	GoogleClientID     string        `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string        `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string        `env:"GOOGLE_REDIRECT_URI" envDefault:"http://localhost:8000/api/v1/auth/google/callback"`
	FrontendURL        string        `env:"FRONTEND_URL" envDefault:"http://localhost:5173"`
	HTTPTimeout        time.Duration `env:"OAUTH_HTTP_TIMEOUT" envDefault:"10s"`
	StateTTL           time.Duration `env:"OAUTH_STATE_TTL" envDefault:"10m"`
}

// GoogleEnabled reports whether all Google client credentials are present.
func (c OAuthConfig) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != "" && c.GoogleRedirectURL != ""
}

type EmailConfig struct {
	Enabled     bool   `env:"EMAIL_ENABLED" envDefault:"false"`
	AWSRegion   string `env:"AWS_REGION" envDefault:"us-east-1"`
	FromAddress string `env:"EMAIL_FROM_ADDRESS" envDefault:"no-reply@example.com"`
}

// AdminBootstrapConfig describes the first admin account created on startup.
type AdminBootstrapConfig struct {
	Email    string `env:"FIRST_ADMIN_EMAIL"`
	Password string `env:"FIRST_ADMIN_PASSWORD"`
	FullName string `env:"FIRST_ADMIN_NAME" envDefault:"Admin User"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.Server.AllowedOrigins = parseAllowedOrigins(cfg.Server.Env, cfg.Server.AllowedOrigins)
	cfg.OAuth.FrontendURL = strings.TrimRight(cfg.OAuth.FrontendURL, "/")

	return cfg, nil
}

// Validate checks required settings and secret strength.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if err := validateJWTSecret(c.Auth.JWTSecret, c.Server.Env); err != nil {
		return err
	}
	if c.Auth.AccessTokenExpiry <= 0 || c.Auth.RefreshTokenExpiry <= 0 {
		return fmt.Errorf("token expiry values must be positive")
	}
	if c.Auth.AccessTokenExpiry >= c.Auth.RefreshTokenExpiry {
		return fmt.Errorf("ACCESS_TOKEN_EXPIRY must be shorter than REFRESH_TOKEN_EXPIRY")
	}
	return nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32 // 256 bits
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
		"your-secret-key-change-this-in-production",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func parseAllowedOrigins(env string, configured []string) []string {
	origins := make([]string, 0, len(configured))
	for _, origin := range configured {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}

	if env == "production" || len(origins) > 0 {
		return origins
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:5173", // Vite default
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	}
}
