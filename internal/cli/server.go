package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/GRACE-wDEV/Stemforces-sub001/internal/app"
	"github.com/GRACE-wDEV/Stemforces-sub001/internal/battle"
	"github.com/GRACE-wDEV/Stemforces-sub001/internal/config"
	"github.com/GRACE-wDEV/Stemforces-sub001/internal/infra/generator"
	"github.com/GRACE-wDEV/Stemforces-sub001/internal/infra/memory"
	"github.com/GRACE-wDEV/Stemforces-sub001/internal/infra/postgres"
	infraredis "github.com/GRACE-wDEV/Stemforces-sub001/internal/infra/redis"
	"github.com/GRACE-wDEV/Stemforces-sub001/internal/telemetry"
	transport "github.com/GRACE-wDEV/Stemforces-sub001/internal/transport/http"
)

// newStartCmd builds the CLI subcommand to start the server.
func newStartCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the battle server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), opts)
		},
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	// Load already rejected unknown levels
	level, _ := config.ParseLevel(cfg.Log.Level)
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

func runServer(ctx context.Context, opts *rootOptions) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			return err
		}
	}

	finalPort := opts.port
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(registry)

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		telemetry.MonitorRedis(redisClient, logger)
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)
	prefix := cfg.RedisPrefix()

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	supply := battle.NewSupply(
		primarySource(cfg, redisClient, pool),
		battle.FallbackRounds(),
		battle.WithSupplyLogger(logger),
		battle.WithFallbackHook(metrics.SupplyFallback),
	)

	var (
		battles app.BattleRepository = memory.NewBattleStore()
		sinks   []app.ResultSink
		board   transport.LeaderboardReader
		history transport.ResultHistory
	)
	if redisClient != nil {
		battles = infraredis.NewBattleStore(redisClient, prefix, redisTTL)
		leaderboard := infraredis.NewLeaderboard(redisClient, prefix)
		sinks = append(sinks, leaderboard)
		board = leaderboard
	}
	if pool != nil {
		results := postgres.NewResultStore(pool)
		sinks = append(sinks, results)
		history = results
	}

	service := app.NewBattleService(app.Config{
		Battles:  battles,
		Supply:   supply,
		Sinks:    sinks,
		Recorder: metrics,
		Logger:   logger,
		Defaults: app.Defaults{
			RoundCount:        cfg.Battle.RoundCount,
			PerRoundSeconds:   cfg.Battle.PerRoundSeconds,
			FreezeSeconds:     cfg.Battle.FreezeSeconds,
			CountdownTicks:    cfg.Battle.CountdownTicks,
			DisplayDelayTicks: cfg.Battle.DisplayDelayTicks,
			BotCount:          cfg.Battle.BotCount,
		},
		Retention: config.TTLDuration(cfg.Battle.Retention, app.DefaultRetention),
		Seed:      cfg.Battle.Seed,
	})
	wsHandler := transport.NewWSHandler(service, logger)
	statsHandler := transport.NewStatsHandler(board, history, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	mux.HandleFunc("/leaderboard", statsHandler.ServeLeaderboard)
	mux.HandleFunc("/results", statsHandler.ServeResults)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		// no WriteTimeout: it would cut long-lived websocket connections
	}

	go func() {
		logger.Info("server: listening", "port", finalPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server: listen failed", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("server: shutting down")
	case <-ctx.Done():
		logger.Info("server: context canceled, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// primarySource picks where battle questions come from. The external generator
// wins when configured; otherwise the question bank (Postgres, or the built-in
// set) is served through a TTL cache.
func primarySource(cfg config.Config, redisClient *redis.Client, pool *pgxpool.Pool) battle.RoundSource {
	if cfg.Generator.URL != "" {
		return generator.NewClient(generator.Config{
			BaseURL: cfg.Generator.URL,
			Timeout: config.TTLDuration(cfg.Generator.Timeout, 8*time.Second),
		})
	}

	var loader memory.RoundLoader = memory.NewStaticRoundLoader(battle.FallbackRounds())
	if pool != nil {
		loader = postgres.NewRoundLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	if redisClient != nil {
		return infraredis.NewRoundRepository(redisClient, loader, cfg.RedisPrefix(), quizTTL)
	}
	return memory.NewRoundRepository(loader, quizTTL)
}
