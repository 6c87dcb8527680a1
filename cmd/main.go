package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/appquest/appquest-backend/internal/app"
)

func main() {
	a, err := app.New()
	if err != nil {
		fmt.Printf("failed to initialize app: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.Start()
	a.Log.Info(
		"Gamification engine running",
		"profile_store", a.Cfg.ProfileStore,
		"metrics_addr", a.Cfg.MetricsAddr,
	)

	<-ctx.Done()
	a.Log.Info("Shutting down...")
	a.Close()
}
