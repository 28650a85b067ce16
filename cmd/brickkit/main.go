// cmd/brickkit/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"brickkit/internal/analyzer"
	"brickkit/internal/catalog"
	"brickkit/internal/common/config"
	"brickkit/internal/common/database"
	"brickkit/internal/common/logger"
	"brickkit/internal/common/observability"
	"brickkit/internal/document"
	"brickkit/internal/instructions"
	"brickkit/internal/modelcache"
	"brickkit/internal/notify"
	"brickkit/internal/pipeline"
	"brickkit/internal/results"
	"brickkit/internal/search"
	"brickkit/internal/selector"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	modelOnly := flag.Bool("model-only", false, "retrieve and cache the model without generating instructions")
	flag.Parse()
	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: brickkit [-model-only] <prompt>")
		os.Exit(2)
	}
	promptText := strings.Join(flag.Args(), " ")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting brickkit...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Init PostgreSQL with retry (optional) ---
	var store pipeline.ResultSink
	if cfg.Database.Postgres.Enabled {
		var pg *database.PostgresClient
		err = retryWithBackoff(func() error {
			var err error
			pg, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			return pg.Ping(ctx)
		}, 5, 2*time.Second, zapLog, "PostgreSQL connection")
		if err != nil {
			zapLog.Fatal("postgres failed after retries", zap.Error(err))
		}
		defer pg.Close()
		store = results.NewStore(pg.GetDB(), log)
		zapLog.Info("PostgreSQL connected successfully")
	}

	// --- Init Redis with retry (optional) ---
	var redis *database.RedisClient
	if cfg.Database.Redis.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			redis, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return redis.Ping(ctx)
		}, 5, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer redis.Close()
		zapLog.Info("Redis connected successfully")
	}

	catalogCfg := catalog.ConfigFromApp(cfg)

	// --- Init Elasticsearch with retry (optional) ---
	var semantic search.SemanticBackend
	if cfg.Catalog.Index.Enabled {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Catalog.Index)
			if err != nil {
				return err
			}
			return esClient.Ping()
		}, 5, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		semantic = catalog.NewIndex(esClient.Client, catalogCfg.IndexName, log)
		zapLog.Info("Elasticsearch connected successfully")
	}

	// --- Stage components ---
	catalogClient := catalog.NewClient(catalogCfg, log)

	cache := modelcache.New(modelcache.ConfigFromApp(cfg), catalogClient, redis, log)
	if err := cache.Init(); err != nil {
		zapLog.Fatal("model cache init failed", zap.Error(err))
	}
	defer cache.Close()

	notifier, err := notify.New(ctx, &cfg.Notifications, log)
	if err != nil {
		zapLog.Fatal("notifier init failed", zap.Error(err))
	}

	p := pipeline.New(pipeline.ConfigFromApp(cfg), pipeline.Deps{
		Analyzer:      analyzer.New(analyzer.ConfigFromApp(cfg), redis, log),
		Search:        search.NewEngine(search.ConfigFromApp(cfg), catalogClient, semantic, log),
		Selector:      selector.New(selector.ConfigFromApp(cfg), log),
		Cache:         cache,
		Instructions:  instructions.NewGenerator(instructions.ConfigFromApp(cfg), &instructions.ExecRunner{Path: cfg.Instructions.ToolPath}, log),
		Documents:     document.NewAssembler(document.ConfigFromApp(cfg), log),
		Store:         store,
		Notifier:      notifier,
		Observability: obs,
		Redis:         redis,
	}, log)

	go func() {
		for ev := range p.Progress() {
			zapLog.Info("progress",
				zap.String("requestId", ev.RequestID),
				zap.String("stage", ev.Stage),
				zap.Any("meta", ev.Meta),
			)
		}
	}()

	// --- Health & Metrics Server ---
	if cfg.Metrics.Enabled {
		go func() {
			http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusOK)
				json.NewEncoder(w).Encode(map[string]string{
					"status": "healthy",
					"time":   time.Now().Format(time.RFC3339),
				})
			})
			http.Handle("/metrics", promhttp.Handler())
			zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Metrics.Address))
			if err := http.ListenAndServe(cfg.Metrics.Address, nil); err != nil {
				zapLog.Error("Health/Metrics server failed", zap.Error(err))
			}
		}()
	}

	result, runErr := p.Run(ctx, pipeline.Request{Prompt: promptText, ModelOnly: *modelOnly})

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		zapLog.Error("result encoding failed", zap.Error(err))
	} else {
		fmt.Println(string(out))
	}

	if runErr != nil {
		zapLog.Error("pipeline run failed", zap.Error(runErr))
		os.Exit(1)
	}
}
