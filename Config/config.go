package Config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the server reads from the environment.
type Config struct {
	Env        string
	Port       int
	APIVersion string

	DBDriver    string
	DatabaseURL string

	RedisURL      string
	RedisPassword string

	JWTSecret    string
	JWTExpiresIn time.Duration
	BcryptCost   int

	CORSOrigins     []string
	RateLimitMax    int
	RateLimitWindow time.Duration

	LogLevel string
	Location *time.Location

	CarryForwardSchedule string
	CarryForwardTimeout  time.Duration
	CarryForwardWorkers  int

	SlackBotToken  string
	SlackChannelID string

	SMTP SMTPConfig
}

type SMTPConfig struct {
	Server       string
	Port         int
	Username     string
	Password     string
	FromEmail    string
	FromName     string
	TLSEnabled   bool
	SkipTLSCheck bool
}

// Enabled reports whether an SMTP server is configured at all.
func (s SMTPConfig) Enabled() bool {
	return s.Server != ""
}

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Load reads an optional .env file and then the process environment.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading %s: %w", file, err)
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Env:                  getString("ENV", EnvDevelopment),
		APIVersion:           getString("API_VERSION", "v1"),
		DBDriver:             strings.ToLower(getString("DB_DRIVER", "sqlite")),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RedisURL:             os.Getenv("REDIS_URL"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		JWTSecret:            os.Getenv("JWT_SECRET"),
		CORSOrigins:          splitList(getString("CORS_ORIGIN", "*")),
		LogLevel:             strings.ToLower(getString("LOG_LEVEL", "info")),
		CarryForwardSchedule: getString("CARRY_FORWARD_SCHEDULE", "0 0 0 * * *"),
		SlackBotToken:        os.Getenv("SLACK_BOT_TOKEN"),
		SlackChannelID:       os.Getenv("SLACK_CHANNEL_ID"),
	}

	var err error
	if cfg.Port, err = getInt("PORT", 3000); err != nil {
		return nil, err
	}
	if cfg.JWTExpiresIn, err = getDuration("JWT_EXPIRES_IN", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.BcryptCost, err = getInt("BCRYPT_COST", 12); err != nil {
		return nil, err
	}
	if cfg.RateLimitMax, err = getInt("RATE_LIMIT_MAX", 100); err != nil {
		return nil, err
	}
	if cfg.RateLimitWindow, err = getDuration("RATE_LIMIT_WINDOW", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.CarryForwardTimeout, err = getDuration("CARRY_FORWARD_TIMEOUT", time.Minute); err != nil {
		return nil, err
	}
	if cfg.CarryForwardWorkers, err = getInt("CARRY_FORWARD_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.CarryForwardWorkers < 1 {
		cfg.CarryForwardWorkers = 1
	}

	cfg.Location = time.Local
	if name := os.Getenv("TZ_NAME"); name != "" {
		loc, err := time.LoadLocation(name)
		if err != nil {
			return nil, fmt.Errorf("TZ_NAME: %w", err)
		}
		cfg.Location = loc
	}

	cfg.SMTP = SMTPConfig{
		Server:    os.Getenv("SMTP_SERVER"),
		Username:  os.Getenv("SMTP_USERNAME"),
		Password:  os.Getenv("SMTP_PASSWORD"),
		FromEmail: getString("SMTP_FROM_EMAIL", "no-reply@workbench.local"),
		FromName:  getString("SMTP_FROM_NAME", "Workbench"),
	}
	if cfg.SMTP.Port, err = getInt("SMTP_PORT", 587); err != nil {
		return nil, err
	}
	cfg.SMTP.TLSEnabled = getBool("SMTP_TLS", false)
	cfg.SMTP.SkipTLSCheck = getBool("SMTP_SKIP_TLS_CHECK", false)

	if cfg.Env != EnvTest {
		for name, value := range map[string]string{"DATABASE_URL": cfg.DatabaseURL, "JWT_SECRET": cfg.JWTSecret} {
			if value == "" {
				return nil, fmt.Errorf("missing required environment variable: %s", name)
			}
		}
	}

	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

// getDuration accepts Go durations ("90s") and the day suffix used by
// token lifetimes ("7d").
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	if days, ok := strings.CutSuffix(value, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", key, err)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return b
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
