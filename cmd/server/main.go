package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/agenthands/graphmerge/internal/config"
	"github.com/agenthands/graphmerge/internal/core"
	"github.com/agenthands/graphmerge/internal/driver"
	"github.com/agenthands/graphmerge/internal/llm"
	"github.com/agenthands/graphmerge/internal/logger"
	"github.com/agenthands/graphmerge/internal/server"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using defaults")
	}

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/config.toml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Printf("Could not load %s: %v. Using defaults", cfgPath, err)
		cfg = config.Default()
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	lg, err := logger.New(cfg.Server.LogMode)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer lg.Sync()

	ctx := context.Background()
	client, err := llm.NewClient(ctx, cfg.LLM)
	if err != nil {
		lg.Fatal("Failed to initialize LLM client", "error", err)
	}

	d, err := driver.Open(ctx, cfg, lg)
	if err != nil {
		lg.Fatal("Failed to open graph store", "error", err)
	}
	defer d.Close(ctx)

	g, err := core.NewFromConfig(cfg, d, client, lg)
	if err != nil {
		lg.Fatal("Failed to build graph builder", "error", err)
	}
	if err := g.BuildIndices(ctx); err != nil {
		lg.Fatal("Failed to build indices", "error", err)
	}

	srv := server.NewServer(g, cfg.Auth, lg)
	r := srv.SetupRouter()

	lg.Info("Starting server", "port", cfg.Server.Port)
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		lg.Fatal("Server stopped", "error", err)
	}
}
