package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

// LogConfig holds configuration for the logging middleware
type LogConfig struct {
	Logger *slog.Logger
	// Include user ID in logs
	IncludeUserID bool
	// Skip logging for specific paths
	SkipPaths []string
	// Requests slower than this are logged at warn level
	SlowThreshold time.Duration
}

// DefaultLogConfig returns a default configuration for the logging middleware
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Logger:        slog.Default(),
		IncludeUserID: true,
		SkipPaths:     []string{"/v1/health"},
		SlowThreshold: time.Second,
	}
}

// LoggingMiddleware logs one structured line per request once the
// handler chain has returned.
func LoggingMiddleware(config ...LogConfig) fiber.Handler {
	cfg := DefaultLogConfig()
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	skip := make(map[string]bool, len(cfg.SkipPaths))
	for _, path := range cfg.SkipPaths {
		skip[path] = true
	}

	return func(c *fiber.Ctx) error {
		if skip[c.Path()] {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()
		latency := time.Since(start)

		status := c.Response().StatusCode()
		if err != nil {
			// The app's error handler has not run yet.
			status = fiber.StatusInternalServerError
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}

		attrs := []any{
			"method", c.Method(),
			"path", c.Path(),
			"url", c.OriginalURL(),
			"status", status,
			"latency", latency,
			"ip", c.IP(),
			"userAgent", c.Get(fiber.HeaderUserAgent),
			"contentLength", len(c.Response().Body()),
		}
		if id, ok := c.Locals(requestid.ConfigDefault.ContextKey).(string); ok && id != "" {
			attrs = append(attrs, "requestId", id)
		}
		if cfg.IncludeUserID {
			if user, ok := CurrentUser(c); ok {
				attrs = append(attrs, "userId", user.ID, "companyId", user.CompanyID)
			}
		}
		if err != nil {
			attrs = append(attrs, "error", err.Error())
		}

		ctx := c.UserContext()
		switch {
		case status >= fiber.StatusInternalServerError:
			cfg.Logger.ErrorContext(ctx, "Request failed", attrs...)
		case status >= fiber.StatusBadRequest:
			cfg.Logger.WarnContext(ctx, "Request rejected", attrs...)
		case latency >= cfg.SlowThreshold && cfg.SlowThreshold > 0:
			cfg.Logger.WarnContext(ctx, "Slow request", attrs...)
		default:
			cfg.Logger.InfoContext(ctx, "Request handled", attrs...)
		}
		return err
	}
}
