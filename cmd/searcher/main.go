package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/events"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/searcher/querycache"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/redis"
)

// memoryDegradedAt is the used fraction at which readiness reports degraded.
const memoryDegradedAt = 0.90

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		slog.Error("searcher failed", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Value:   "configs/development.yaml",
			Usage:   "path to a YAML or TOML config file",
		},
		&cli.StringFlag{
			Name:  "data-dir",
			Usage: "directory holding the master and docMap partitions",
		},
	}
	return &cli.App{
		Name:  "searcher",
		Usage: "serves ranked search over a built index",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP search API",
				Flags: append([]cli.Flag{
					&cli.IntFlag{Name: "port", Usage: "HTTP port"},
				}, flags...),
				Action: runServe,
			},
			{
				Name:      "query",
				Usage:     "run one query and print the result as JSON",
				ArgsUsage: "<query words...>",
				Flags: append([]cli.Flag{
					&cli.IntFlag{Name: "limit", Usage: "number of results", Value: 10},
				}, flags...),
				Action: runQuery,
			},
		},
	}
}

func loadConfig(c *cli.Context, logTo *os.File) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if v := c.String("data-dir"); v != "" {
		cfg.Indexer.DataDir = v
	}
	if c.IsSet("port") {
		cfg.Server.Port = c.Int("port")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger.SetupWriter(logTo, cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}

func runServe(c *cli.Context) error {
	ctx := c.Context
	cfg, err := loadConfig(c, os.Stdout)
	if err != nil {
		return err
	}
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	idx, err := openIndex(ctx, cfg, m)
	if err != nil {
		return err
	}
	defer idx.close()

	checker := health.NewChecker()
	checker.Register("index", health.IndexCheck(idx.cache.Ready))
	checker.Register("memory", health.MemoryCheck(idx.monitor.UsedFraction, memoryDegradedAt))

	var queryCache *querycache.QueryCache
	if cfg.Redis.Enabled {
		client, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, query caching disabled", "error", err)
		} else {
			defer client.Close()
			queryCache = querycache.New(client, cfg.Redis.CacheTTL, m)
			idx.queryCache = queryCache
			checker.Register("redis", health.PingCheck(client.Ping))
			slog.Info("query cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete, events.Handler(idx.reload))
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("index event consumer stopped", "error", err)
			}
		}()
		slog.Info("listening for index rebuilds", "topic", cfg.Kafka.Topics.IndexComplete)
	}

	var qc handler.QueryCache
	if queryCache != nil {
		qc = queryCache
	}
	h := handler.New(idx.parser, idx.exec, idx.cache, idx.corpusStats, qc, handler.Options{
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxResults:   cfg.Search.MaxResults,
		Metrics:      m,
	})

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	if m != nil {
		mux.Handle("GET /metrics", metrics.Handler())
	}

	var limiter *middleware.Limiter
	if cfg.Server.RateLimit > 0 {
		limiter = middleware.NewLimiter(cfg.Server.RateLimit, time.Minute)
		go limiter.Run(ctx)
	}
	chain := middleware.Chain(mux,
		middleware.RequestID,
		middleware.CORS(middleware.DefaultCORSConfig()),
		middleware.Metrics(m),
		middleware.RateLimit(limiter),
		middleware.Timeout(cfg.Server.WriteTimeout),
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening",
		"addr", server.Addr,
		"data_dir", cfg.Indexer.DataDir,
		"corpus_count", idx.corpusStats().CorpusCount,
	)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving http: %w", err)
	}
	slog.Info("search service stopped")
	return nil
}

func runQuery(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return cli.Exit("usage: searcher query <query words...>", 2)
	}
	cfg, err := loadConfig(c, os.Stderr)
	if err != nil {
		return err
	}
	idx, err := openIndex(c.Context, cfg, nil)
	if err != nil {
		return err
	}
	defer idx.close()

	limit := min(max(c.Int("limit"), 1), cfg.Search.MaxResults)
	result, err := idx.exec.Execute(c.Context, idx.parser.Parse(query), limit)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
