package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/javiermolinar/studyplanner/internal/config"
	"github.com/javiermolinar/studyplanner/internal/ui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	path := config.DefaultConfigPath()
	if p := os.Getenv("STUDYPLANNER_CONFIG"); p != "" {
		path = p
	}

	// Load configuration
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := ui.NewApp(cfg, ui.WithConfigPath(path))
	defer func() { _ = app.Close() }()
	return app.ExecuteContext(ctx)
}
