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
	Database  DatabaseConfig
	Server    ServerConfig
	Auth      AuthConfig
	Security  SecurityConfig
	TwoFactor TwoFactorConfig
	Notify    NotifyConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	TrustedProxies []string
}

type AuthConfig struct {
	JWTSecret          string
	SessionTokenExpiry time.Duration
}

// SecurityConfig carries the detection and lockout thresholds. The
// account lockout (threshold 5) and IP brute-force alerting (threshold 3)
// are deliberately independent mechanisms with independent knobs.
type SecurityConfig struct {
	LockoutThreshold    int           // failed attempts before an account locks
	LockoutDuration     time.Duration // lock window
	EscalationThreshold int           // failures before a suspicious_activity alert
	IPFailureThreshold  int           // failures from one IP before a brute_force alert
	IPFailureWindow     time.Duration // rolling window for IP failure counting
	AnalysisWindow      time.Duration // trailing window for activity analysis
}

type TwoFactorConfig struct {
	Issuer string
}

type NotifyConfig struct {
	WebhookURL     string // empty disables the webhook channel
	WebhookTimeout time.Duration
	EmailEnabled   bool
	AWSRegion      string
	FromAddress    string
	TeamAddress    string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "bastion"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES"),
		},
		Auth: AuthConfig{
			JWTSecret:          jwtSecret,
			SessionTokenExpiry: getEnvAsDuration("SESSION_TOKEN_EXPIRY", 1*time.Hour),
		},
		Security: SecurityConfig{
			LockoutThreshold:    getEnvAsInt("ACCOUNT_LOCKOUT_THRESHOLD", 5),
			LockoutDuration:     getEnvAsDuration("ACCOUNT_LOCKOUT_DURATION", 15*time.Minute),
			EscalationThreshold: getEnvAsInt("ALERT_ESCALATION_THRESHOLD", 3),
			IPFailureThreshold:  getEnvAsInt("BRUTE_FORCE_IP_THRESHOLD", 3),
			IPFailureWindow:     getEnvAsDuration("BRUTE_FORCE_WINDOW", 1*time.Hour),
			AnalysisWindow:      getEnvAsDuration("ANALYSIS_WINDOW", 1*time.Hour),
		},
		TwoFactor: TwoFactorConfig{
			Issuer: getEnv("TWO_FACTOR_ISSUER", "Bastion"),
		},
		Notify: NotifyConfig{
			WebhookURL:     getEnv("IDS_WEBHOOK_URL", ""),
			WebhookTimeout: getEnvAsDuration("IDS_WEBHOOK_TIMEOUT", 10*time.Second),
			EmailEnabled:   getEnvAsBool("ALERT_EMAIL_ENABLED", false),
			AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
			FromAddress:    getEnv("ALERT_FROM_ADDRESS", ""),
			TeamAddress:    getEnv("SECURITY_TEAM_EMAIL", ""),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if cfg.Security.LockoutThreshold < 1 {
		return nil, fmt.Errorf("ACCOUNT_LOCKOUT_THRESHOLD must be at least 1")
	}

	if cfg.Notify.EmailEnabled && (cfg.Notify.FromAddress == "" || cfg.Notify.TeamAddress == "") {
		return nil, fmt.Errorf("ALERT_FROM_ADDRESS and SECURITY_TEAM_EMAIL are required when ALERT_EMAIL_ENABLED is set")
	}

	return cfg, nil
}

// validateJWTSecret enforces minimum security standards for the signing secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
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

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for i, part := range parts {
		parts[i] = strings.TrimSpace(part)
	}
	return parts
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		originsStr := getEnv("ALLOWED_ORIGINS", "")
		if originsStr == "" {
			return []string{}
		}
		origins := strings.Split(originsStr, ",")
		for i, origin := range origins {
			origins[i] = strings.TrimSpace(origin)
		}
		return origins
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	}
}
