package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
)

// setupLogging installs charmbracelet/log as the slog default handler.
func setupLogging(level string) error {
	parsed, err := log.ParseLevel(level)
	if err != nil {
		return err
	}

	handler := log.NewWithOptions(os.Stderr, log.Options{
		Level:           parsed,
		TimeFormat:      time.RFC3339,
		ReportTimestamp: true,
		TimeFunction:    log.NowUTC,
		ReportCaller:    parsed == log.DebugLevel,
	})

	slog.SetDefault(slog.New(handler))
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		slog.Error("Gridsilo exited with error", "error", err)
		stop()
		os.Exit(1)
	}
}
