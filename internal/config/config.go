package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort              string
	ServerReadHeaderTimeout time.Duration
	ServerWriteTimeout      time.Duration
	ServerIdleTimeout       time.Duration
	RequestTimeout          time.Duration

	LogLevel  string
	LogFormat string

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	JWTSecret         string
	JWTIssuer         string
	JWTAccessTTL      time.Duration
	RefreshTTL        time.Duration
	RefreshReuseGrace time.Duration
	BcryptCost        int

	CookieSecure      bool
	CookieDomain      string
	RefreshCookieName string
	CSRFCookieName    string

	CORSOrigins      []string
	RateLimitRPM     int
	AuthRateLimitRPM int

	WebAuthnRPID        string
	WebAuthnRPName      string
	WebAuthnRPOrigins   []string
	PasskeyChallengeTTL time.Duration

	DefaultLocale   string
	InviteTTL       time.Duration
	CleanupInterval time.Duration
	MetricsEnabled  bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:              getEnv("SERVER_PORT", "8080"),
		ServerReadHeaderTimeout: getDuration("SERVER_READ_HEADER_TIMEOUT", 10*time.Second),
		ServerWriteTimeout:      getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		ServerIdleTimeout:       getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		RequestTimeout:          getDuration("REQUEST_TIMEOUT", 15*time.Second),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "pretty"),

		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:  int32(getInt("DB_MAX_CONNS", 10)),
		DBMinConns:  int32(getInt("DB_MIN_CONNS", 1)),

		JWTSecret:         strings.TrimSpace(os.Getenv("JWT_SECRET")),
		JWTIssuer:         getEnv("JWT_ISSUER", "hive-auth"),
		JWTAccessTTL:      getDuration("JWT_ACCESS_TTL", 15*time.Minute),
		RefreshTTL:        getDuration("REFRESH_TTL", 168*time.Hour),
		RefreshReuseGrace: getDuration("REFRESH_REUSE_GRACE", 10*time.Second),
		BcryptCost:        getInt("BCRYPT_COST", 12),

		CookieSecure:      getBool("COOKIE_SECURE", true),
		CookieDomain:      strings.TrimSpace(os.Getenv("COOKIE_DOMAIN")),
		RefreshCookieName: getEnv("REFRESH_COOKIE_NAME", "hive_refresh"),
		CSRFCookieName:    getEnv("CSRF_COOKIE_NAME", "hive_csrf"),

		CORSOrigins:      splitCSV(getEnv("CORS_ORIGINS", "http://localhost:5173")),
		RateLimitRPM:     getInt("RATE_LIMIT_RPM", 300),
		AuthRateLimitRPM: getInt("AUTH_RATE_LIMIT_RPM", 10),

		WebAuthnRPID:        getEnv("WEBAUTHN_RP_ID", "localhost"),
		WebAuthnRPName:      getEnv("WEBAUTHN_RP_NAME", "Hive"),
		WebAuthnRPOrigins:   splitCSV(getEnv("WEBAUTHN_RP_ORIGINS", "http://localhost:5173")),
		PasskeyChallengeTTL: getDuration("PASSKEY_CHALLENGE_TTL", 5*time.Minute),

		DefaultLocale:   getEnv("DEFAULT_LOCALE", "en"),
		InviteTTL:       getDuration("INVITE_TTL", 72*time.Hour),
		CleanupInterval: getDuration("CLEANUP_INTERVAL", time.Hour),
		MetricsEnabled:  getBool("METRICS_ENABLED", true),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes")
	}

	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT cannot be empty")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	if c.JWTAccessTTL <= 0 || c.RefreshTTL <= 0 {
		return fmt.Errorf("JWT_ACCESS_TTL and REFRESH_TTL must be positive")
	}

	if c.RefreshTTL <= c.JWTAccessTTL {
		return fmt.Errorf("REFRESH_TTL must be longer than JWT_ACCESS_TTL")
	}

	if c.RefreshReuseGrace < 0 {
		return fmt.Errorf("REFRESH_REUSE_GRACE cannot be negative")
	}

	for _, origin := range c.CORSOrigins {
		if origin == "*" {
			return fmt.Errorf("CORS_ORIGINS cannot contain '*' when cookies are used")
		}
	}

	if len(c.WebAuthnRPOrigins) == 0 {
		return fmt.Errorf("WEBAUTHN_RP_ORIGINS cannot be empty")
	}

	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS cannot exceed DB_MAX_CONNS")
	}

	return nil
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return v
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}

	return out
}
