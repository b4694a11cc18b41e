package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"kvcore/internal/http"
	"kvcore/pkg/config"
	"kvcore/pkg/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "kvcore: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := initLogger(&cfg)

	db, err := store.New(&cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("failed to close store", "error", err)
		}
	}()

	logger.Info("kvcore starting",
		"arena_size", cfg.DB.Memtable.ArenaSize,
		"flush_threshold", cfg.DB.Memtable.FlushThresholdBytes,
		"bits_per_key", cfg.DB.BloomFilter.BitsPerKey,
		"fp_rate", cfg.DB.BloomFilter.FPRate,
	)

	server := http.NewServer(db, cfg.Server, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("kvcore stopped")
	return nil
}
