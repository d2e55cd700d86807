package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/discord-data/internal/cluster"
	"github.com/rickgao/discord-data/internal/config"
	"github.com/rickgao/discord-data/internal/discord"
	"github.com/rickgao/discord-data/internal/metrics"
	"github.com/rickgao/discord-data/internal/rest"
	"github.com/rickgao/discord-data/internal/store"
	"github.com/rickgao/discord-data/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/gatherer.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting gatherer",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// .env is optional; its values feed ${VAR} expansion in the config file.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("could not load .env", "error", err)
	}

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"shard_count", cfg.Shards.Count,
		"compression", cfg.Discord.Compression,
		"archive_enabled", cfg.Archive.Enabled,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Database is optional: without it sessions live only in memory and
	// dispatch events are not archived.
	var (
		pool     *pgxpool.Pool
		sessions cluster.SessionStore
	)
	if cfg.Database.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Database.Postgres.Host,
			"port", cfg.Database.Postgres.Port,
			"database", cfg.Database.Postgres.Name,
		)
		pool, err = store.Connect(ctx, cfg.Database.Postgres)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		sessions = store.NewSessionStore(pool, cfg.Instance.ID, logger)
		logger.Info("database connected")
	}

	// REST client for gateway resolution
	restClient := rest.NewClient(cfg.Discord.Token,
		rest.WithLogger(logger),
		rest.WithTimeout(30*time.Second),
		rest.WithRetries(3, time.Second),
	)

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
	}, restClient, sessions, logger)

	// The archiver and the metrics collector subscribe before the shards
	// start, so the first READY dispatches are not missed.
	var writer *store.EventWriter
	if cfg.Archive.Enabled && pool != nil {
		listener := mgr.Registry().SubscribeBuffered(discord.MaskDispatch, cfg.Archive.BufferSize)
		writer = store.NewEventWriter(cfg.Archive, listener, pool, logger)
		if err := writer.Start(ctx); err != nil {
			logger.Error("failed to start event writer", "error", err)
			os.Exit(1)
		}
	}

	promMetrics := metrics.NewMetrics()
	collector := metrics.NewCollector(promMetrics, mgr.Registry(), mgr.Shards, logger)
	if err := collector.Start(ctx); err != nil {
		logger.Error("failed to start metrics collector", "error", err)
		os.Exit(1)
	}

	// Start the health server early so identify progress is observable.
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: createHTTPHandler(cfg.Metrics.Path, mgr, pool),
	}
	go func() {
		logger.Info("starting health server", "port", cfg.Metrics.Port, "metrics_path", cfg.Metrics.Path)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	logger.Info("starting shard cluster")
	if err := mgr.Start(ctx); err != nil {
		logger.Error("failed to start cluster", "error", err)
		os.Exit(1)
	}

	// Seed the archiver with the sessions the shards restored, so dispatches
	// on a resumed connection carry their session id before any READY.
	if writer != nil {
		restored := make(map[int]discord.Session)
		for _, sh := range mgr.Shards() {
			if sess := sh.Session(); sess.Valid() {
				restored[sh.ID().Index] = sess
			}
		}
		writer.RestoreSessions(restored)
	}

	logger.Info("gatherer running",
		"instance_id", cfg.Instance.ID,
		"shards", len(mgr.Shards()),
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Shards stop first so the fanout drains and the writer's final flush
	// sees every archived event.
	if err := mgr.Stop(shutdownCtx); err != nil {
		logger.Warn("cluster stop failed", "error", err)
	}
	if writer != nil {
		if err := writer.Stop(shutdownCtx); err != nil {
			logger.Warn("event writer stop failed", "error", err)
		}
	}
	collector.Stop(shutdownCtx)
	healthServer.Shutdown(shutdownCtx)

	logger.Info("gatherer stopped")
}

// createHTTPHandler serves /health, /debug/shards, and the metrics endpoint.
func createHTTPHandler(metricsPath string, mgr cluster.Manager, pool *pgxpool.Pool) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string                 `json:"status"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]interface{}),
		}

		// Check database
		if pool != nil {
			if err := pool.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["postgres"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["postgres"] = "connected"
			}
		}

		// Check shards
		stats := mgr.Stats()
		health.Components["shards"] = map[string]interface{}{
			"total":     stats.ShardCount,
			"connected": stats.Connected,
		}
		if stats.Connected < stats.ShardCount {
			if health.Status == "healthy" {
				health.Status = "degraded"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/shards", func(w http.ResponseWriter, r *http.Request) {
		stats := mgr.Stats()

		type shardView struct {
			Shard   string `json:"shard"`
			Status  string `json:"status"`
			Latency string `json:"latency"`
			Session string `json:"session,omitempty"`
		}
		views := make([]shardView, 0, len(stats.Shards))
		for _, ss := range stats.Shards {
			views = append(views, shardView{
				Shard:   ss.ID.String(),
				Status:  ss.Status.String(),
				Latency: ss.Latency.String(),
				Session: ss.Session,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"connected": stats.Connected,
			"published": stats.Fanout.Published,
			"dropped":   stats.Fanout.Dropped,
			"shards":    views,
		})
	})

	if metricsPath != "" {
		mux.Handle(metricsPath, promhttp.Handler())
	}

	return mux
}
