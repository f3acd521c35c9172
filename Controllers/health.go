package Controllers

import (
	"context"
	"runtime"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"Workbench/Cache"
)

type HealthController struct {
	DB      *gorm.DB
	Cache   Cache.Cache
	Env     string
	Version string
	started time.Time
}

func NewHealthController(db *gorm.DB, cache Cache.Cache, env, version string) *HealthController {
	if cache == nil {
		cache = Cache.Noop{}
	}
	return &HealthController{DB: db, Cache: cache, Env: env, Version: version, started: time.Now()}
}

// Health reports process state only; it never touches dependencies.
func (h *HealthController) Health(c *fiber.Ctx) error {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return respond(c, fiber.StatusOK, "Service is healthy", fiber.Map{
		"status":      "ok",
		"environment": h.Env,
		"version":     h.Version,
		"uptime":      time.Since(h.started).Round(time.Second).String(),
		"timestamp":   time.Now().UTC(),
		"memory": fiber.Map{
			"allocMB":    mem.Alloc / 1024 / 1024,
			"sysMB":      mem.Sys / 1024 / 1024,
			"goroutines": runtime.NumGoroutine(),
		},
	})
}

// Ready pings the database and the cache.
func (h *HealthController) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	checks := fiber.Map{"database": "ok", "cache": "ok"}
	ready := true

	if sqlDB, err := h.DB.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		checks["database"] = "unavailable"
		ready = false
	}
	if err := h.Cache.Ping(ctx); err != nil {
		checks["cache"] = "unavailable"
		ready = false
	}

	if !ready {
		return c.Status(fiber.StatusServiceUnavailable).JSON(Response{
			Success:    false,
			StatusCode: fiber.StatusServiceUnavailable,
			Message:    "Service not ready",
			Data:       checks,
		})
	}
	return respond(c, fiber.StatusOK, "Service is ready", checks)
}
