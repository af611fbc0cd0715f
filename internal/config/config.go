package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	// Server
	ServerAddr      string
	ServerPort      int
	BaseURL         string
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64

	// CORSAllowedOrigins is empty when the UI is served from the same origin.
	CORSAllowedOrigins []string

	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// JWT and session cookies
	JWTSecret       string
	JWTIssuer       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	CookieSecure    bool
	CookieDomain    string

	Gate            GateConfig
	RateLimit       RateLimitConfig
	Redis           RedisConfig
	SMTP            SMTPConfig
	SecurityHeaders SecurityHeadersConfig
	PasswordPolicy  PasswordPolicyConfig
	BreachCheck     BreachCheckConfig
	Cleanup         CleanupConfig
}

// GateConfig controls the edge access gate.
type GateConfig struct {
	// Policy is "default" or "legacy".
	Policy        string
	LookupTimeout time.Duration
}

// RateLimitConfig holds both the per-action attempt limiter settings and
// the coarse per-IP request limits on mutation routes.
type RateLimitConfig struct {
	// Store is "postgres", "redis" or "memory".
	Store string
	// FailurePolicy is "open" or "closed".
	FailurePolicy string
	TrustedHeader string

	Enabled            bool
	AuthPerMinute      int
	MutationsPerMinute int
	InvitesPerHour     int
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	FromName string
}

// Enabled reports whether outbound email is configured.
func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && c.From != ""
}

type SecurityHeadersConfig struct {
	Enabled            bool
	CSP                string
	HSTSMaxAge         int
	FrameOptions       string
	ContentTypeOptions string
	ReferrerPolicy     string
	PermissionsPolicy  string
}

type PasswordPolicyConfig struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireNumber    bool
	RequireSpecial   bool
}

type BreachCheckConfig struct {
	Enabled bool
	URL     string
	Timeout time.Duration
}

// CleanupConfig schedules the in-process purge of expired rows. Schedule
// "off" disables it; the cleanup command still works.
type CleanupConfig struct {
	Schedule string
	Timeout  time.Duration
}

// Enabled reports whether the server runs the purge itself.
func (c CleanupConfig) Enabled() bool {
	return c.Schedule != "off"
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		ServerAddr:      getEnv("SERVER_ADDR", "0.0.0.0"),
		ServerPort:      getEnvInt("SERVER_PORT", 8080),
		BaseURL:         strings.TrimRight(getEnv("BASE_URL", "http://localhost:8080"), "/"),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		MaxBodyBytes:    int64(getEnvInt("MAX_BODY_BYTES", 1<<20)),

		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),

		// Database defaults
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnvInt("DB_PORT", 25432),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "qc_inspect"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		JWTSecret:       getEnv("JWT_SECRET", ""),
		JWTIssuer:       getEnv("JWT_ISSUER", "qc-inspect"),
		AccessTokenTTL:  getEnvDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL: getEnvDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		CookieSecure:    getEnvBool("COOKIE_SECURE", false),
		CookieDomain:    getEnv("COOKIE_DOMAIN", ""),

		Gate: GateConfig{
			Policy:        getEnv("GATE_POLICY", "default"),
			LookupTimeout: getEnvDuration("GATE_LOOKUP_TIMEOUT", 5*time.Second),
		},

		RateLimit: RateLimitConfig{
			Store:              getEnv("RATE_LIMIT_STORE", "postgres"),
			FailurePolicy:      getEnv("RATE_LIMIT_FAILURE_POLICY", "open"),
			TrustedHeader:      getEnv("RATE_LIMIT_TRUSTED_HEADER", "CF-Connecting-IP"),
			Enabled:            getEnvBool("RATE_LIMIT_ENABLED", true),
			AuthPerMinute:      getEnvInt("RATE_LIMIT_AUTH_PER_MINUTE", 30),
			MutationsPerMinute: getEnvInt("RATE_LIMIT_MUTATIONS_PER_MINUTE", 60),
			InvitesPerHour:     getEnvInt("RATE_LIMIT_INVITES_PER_HOUR", 20),
		},

		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "localhost:6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvInt("REDIS_DB", 0),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "qcinspect:ratelimit:"),
		},

		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvInt("SMTP_PORT", 587),
			User:     getEnv("SMTP_USER", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", ""),
			FromName: getEnv("SMTP_FROM_NAME", "QC Inspect"),
		},

		SecurityHeaders: SecurityHeadersConfig{
			Enabled:            getEnvBool("SECURITY_HEADERS_ENABLED", true),
			CSP:                getEnv("SECURITY_CSP", "default-src 'self'; frame-ancestors 'none'"),
			HSTSMaxAge:         getEnvInt("SECURITY_HSTS_MAX_AGE", 31536000),
			FrameOptions:       getEnv("SECURITY_FRAME_OPTIONS", "DENY"),
			ContentTypeOptions: getEnv("SECURITY_CONTENT_TYPE_OPTIONS", "nosniff"),
			ReferrerPolicy:     getEnv("SECURITY_REFERRER_POLICY", "strict-origin-when-cross-origin"),
			PermissionsPolicy:  getEnv("SECURITY_PERMISSIONS_POLICY", "camera=(), microphone=(), geolocation=()"),
		},

		PasswordPolicy: PasswordPolicyConfig{
			MinLength:        getEnvInt("PASSWORD_MIN_LENGTH", 8),
			RequireUppercase: getEnvBool("PASSWORD_REQUIRE_UPPERCASE", false),
			RequireLowercase: getEnvBool("PASSWORD_REQUIRE_LOWERCASE", false),
			RequireNumber:    getEnvBool("PASSWORD_REQUIRE_NUMBER", false),
			RequireSpecial:   getEnvBool("PASSWORD_REQUIRE_SPECIAL", false),
		},

		BreachCheck: BreachCheckConfig{
			Enabled: getEnvBool("BREACH_CHECK_ENABLED", false),
			URL:     getEnv("BREACH_CHECK_URL", ""),
			Timeout: getEnvDuration("BREACH_CHECK_TIMEOUT", 5*time.Second),
		},

		Cleanup: CleanupConfig{
			Schedule: getEnv("CLEANUP_SCHEDULE", "@hourly"),
			Timeout:  getEnvDuration("CLEANUP_TIMEOUT", time.Minute),
		},
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Gate.Policy {
	case "default", "legacy":
	default:
		return fmt.Errorf("GATE_POLICY must be default or legacy, got %q", c.Gate.Policy)
	}
	switch c.RateLimit.Store {
	case "postgres", "redis", "memory":
	default:
		return fmt.Errorf("RATE_LIMIT_STORE must be postgres, redis or memory, got %q", c.RateLimit.Store)
	}
	switch c.RateLimit.FailurePolicy {
	case "open", "closed":
	default:
		return fmt.Errorf("RATE_LIMIT_FAILURE_POLICY must be open or closed, got %q", c.RateLimit.FailurePolicy)
	}
	return nil
}

// DatabaseURL builds a lib/pq connection URL. DATABASE_URL overrides the
// individual DB_* settings.
func (c *Config) DatabaseURL() string {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		return v
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.DBSSLMode),
	}
	return u.String()
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.ServerAddr, c.ServerPort)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty entries.
func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
