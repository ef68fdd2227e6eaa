// Command potsd runs the prudent-pots engine with its keeper and operations API.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/R3E-Network/prudent-pots/internal/app/runtime"
	"github.com/R3E-Network/prudent-pots/internal/config"
	"github.com/R3E-Network/prudent-pots/pkg/logger"
)

func main() {
	configPath := flag.String("config", os.Getenv("POTS_CONFIG"), "Path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	lg, err := logger.New(cfg.Logging)
	if err != nil {
		log.Fatalf("configure logging: %v", err)
	}
	lg = lg.Named("potsd")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := runtime.NewApplication(ctx, cfg, lg)
	if err != nil {
		lg.WithError(err).Fatal("build application")
	}
	if _, err := app.Bootstrap(ctx); err != nil {
		lg.WithError(err).Fatal("bootstrap game")
	}

	runErr := app.Run(ctx)
	if err := app.Shutdown(context.Background()); err != nil {
		lg.WithError(err).Warn("shutdown")
	}
	if runErr != nil {
		lg.WithError(runErr).Fatal("server stopped")
	}
	lg.Info("stopped")
}
