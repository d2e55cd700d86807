// streamtest connects the configured shards and streams gateway events to
// the console. Usage: go run ./cmd/streamtest --config configs/gatherer.local.yaml
//
// The bot token comes from the config file, with ${DISCORD_TOKEN} style
// references expanded from the environment (or a local .env file).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rickgao/discord-data/internal/cluster"
	"github.com/rickgao/discord-data/internal/config"
	"github.com/rickgao/discord-data/internal/discord"
	"github.com/rickgao/discord-data/internal/rest"
)

func main() {
	configPath := flag.String("config", "configs/gatherer.example.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "print full event JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("could not load .env", "error", err)
	}

	// Load config
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	restClient := rest.NewClient(cfg.Discord.Token, rest.WithLogger(logger))

	mgr := cluster.NewManager(cluster.Config{
		Token:               cfg.Discord.Token,
		Intents:             discord.Intents(cfg.Discord.Intents),
		GatewayURL:          cfg.Gateway.URL,
		ShardCount:          cfg.Shards.Count,
		ShardTotal:          cfg.Shards.Total,
		ShardOffset:         cfg.Shards.Offset,
		IdentifyConcurrency: cfg.Identify.Concurrency,
		IdentifyLimit:       cfg.Identify.Limit,
		IdentifyWindow:      cfg.Identify.Window,
		HelloTimeout:        cfg.Gateway.HelloTimeout,
		LargeThreshold:      cfg.Discord.LargeThreshold,
		Compression:         cfg.Discord.Compression,
		EventBuffer:         cfg.Gateway.EventBuffer,
	}, restClient, nil, logger)

	// Subscribe before starting so the first lifecycle events print too.
	listener := mgr.Registry().Subscribe(discord.MaskAll)

	var received atomic.Uint64
	go func() {
		for ev := range listener.Events() {
			received.Add(1)
			printEvent(ev, *verbose)
		}
	}()

	logger.Info("starting shards")
	if err := mgr.Start(ctx); err != nil {
		logger.Error("failed to start cluster", "error", err)
		os.Exit(1)
	}

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := mgr.Stats()
				logger.Info("stats",
					"connected", stats.Connected,
					"shards", stats.ShardCount,
					"received", received.Load(),
					"published", stats.Fanout.Published,
					"dropped", stats.Fanout.Dropped,
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")

	// Wait for shutdown
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down...")
	mgr.Stop(shutdownCtx)

	logger.Info("shutdown complete")
}

func printEvent(ev discord.Event, verbose bool) {
	if ev.Type.IsLifecycle() {
		fmt.Printf("[LIFECYCLE] %s shard=%s\n", ev.Type, ev.Shard)
		return
	}

	if verbose {
		data, _ := json.MarshalIndent(ev.Data, "", "  ")
		fmt.Printf("[%s] shard=%s seq=%d\n%s\n", ev.Name, ev.Shard, ev.Sequence, data)
		return
	}
	fmt.Printf("[%s] shard=%s seq=%d bytes=%d\n", ev.Name, ev.Shard, ev.Sequence, len(ev.Data))
}
