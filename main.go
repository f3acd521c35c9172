package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"Workbench/Cache"
	"Workbench/Config"
	"Workbench/CronJobs"
	"Workbench/FiberConfig"
	"Workbench/Models"
	"Workbench/Slack"
	"Workbench/Tasks"
	"Workbench/email"
)

func main() {
	cfg, err := Config.Load()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	setupLogging(cfg)

	db, err := Models.Connect(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	cache, err := Cache.New(cfg.RedisURL, cfg.RedisPassword)
	if err != nil {
		slog.Error("Failed to connect to redis", "error", err)
		os.Exit(1)
	}

	engine := Tasks.NewEngine(Tasks.NewGormStore(db),
		Tasks.WithLocation(cfg.Location),
		Tasks.WithWorkers(cfg.CarryForwardWorkers),
	)
	scheduler := CronJobs.NewCarryForwardScheduler(engine, db, cache, cfg.CarryForwardSchedule, cfg.Location, cfg.CarryForwardTimeout)
	if notifier := Slack.NewNotifier(cfg.SlackBotToken, cfg.SlackChannelID); notifier != nil {
		scheduler.SetNotifier(notifier)
		slog.Info("Posting carry-forward summaries to Slack", "channel", cfg.SlackChannelID)
	}
	if err := scheduler.Start(); err != nil {
		slog.Error("Failed to start carry-forward scheduler", "error", err)
		os.Exit(1)
	}

	app := FiberConfig.New(cfg, FiberConfig.Deps{
		DB:        db,
		Cache:     cache,
		Mailer:    email.New(cfg.SMTP),
		Scheduler: scheduler,
	})

	go func() {
		slog.Info("Server Up...", "port", cfg.Port, "env", cfg.Env)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			slog.Error("Server stopped", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("Shutting down", "signal", sig.String())

	if err := app.Shutdown(); err != nil {
		slog.Error("Error shutting down server", "error", err)
	}
	scheduler.Stop()
	if err := cache.Close(); err != nil {
		slog.Warn("Error closing cache", "error", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	slog.Info("Shutdown complete")
}

func setupLogging(cfg *Config.Config) {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})
	slog.SetDefault(slog.New(handler).With("service", "workbench"))
}
