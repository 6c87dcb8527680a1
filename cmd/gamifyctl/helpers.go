package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/appquest/appquest-backend/internal/app"
	"github.com/appquest/appquest-backend/internal/platform/logger"
)

const defaultCommandTimeout = 60 * time.Second

// withApp boots the same wiring as the daemon, runs fn, and tears the
// backend down before reporting. Teardown has to happen even on failure;
// badger in particular holds a directory lock until closed.
func withApp(timeout time.Duration, fn func(ctx context.Context, a *app.App) error) {
	a, err := app.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize app: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	err = fn(ctx, a)
	cancel()
	a.Close()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newCLILogger() (*logger.Logger, error) {
	mode := os.Getenv("LOG_MODE")
	if mode == "" {
		mode = "development"
	}
	return logger.New(mode)
}

func parseUserID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid user id %q: %w", raw, err)
	}
	return id, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
