package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"

	"github.com/Ekorz-boop/ragflow/internal/cli"
	"github.com/Ekorz-boop/ragflow/internal/config"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	configPath := flag.String("config", "ragflow.yaml", "config file (.yaml or .toml)")
	templatePath := flag.String("template", "", "template to load at startup")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		slog.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Serve(ctx, cfg, cfg.UIPort(), *templatePath); err != nil {
		slog.Error("api server failed", "error", err)
		os.Exit(1)
	}
}
