// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"nlq-resolver/internal/alerts"
	"nlq-resolver/internal/common/aws"
	"nlq-resolver/internal/common/camunda"
	"nlq-resolver/internal/common/config"
	"nlq-resolver/internal/common/database"
	"nlq-resolver/internal/common/logger"
	"nlq-resolver/internal/common/metrics"
	"nlq-resolver/internal/common/observability"
	"nlq-resolver/internal/embedding"
	"nlq-resolver/internal/metadata"
	"nlq-resolver/internal/resolver"
	"nlq-resolver/internal/resolver/executor"

	eqc "nlq-resolver/internal/workers/resolution/extract-query-context"
	rnq "nlq-resolver/internal/workers/resolution/resolve-nl-query"
	vsql "nlq-resolver/internal/workers/resolution/validate-sql"
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
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	bootLog := logger.New("info", "console")

	cfg, err := config.Load()
	if err != nil {
		bootLog.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog).WithFields(map[string]interface{}{
		"service": cfg.App.Name,
		"version": cfg.App.Version,
	})

	zapLog.Info("Starting worker manager...", zap.String("environment", cfg.App.Environment))

	obs := observability.New(cfg.Observability.ServiceName)
	defer obs.Shutdown()
	if cfg.Observability.TracingEnabled {
		if err := obs.EnableTracing(cfg.Observability.ServiceName, cfg.Observability.JaegerEndpoint); err != nil {
			zapLog.Warn("tracing disabled", zap.Error(err))
		}
	}

	ctx := context.Background()

	// --- Zeebe ---
	var zeebe *camunda.Client
	err = retryWithBackoff(func() error {
		var err error
		zeebe, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
			ConnectionTimeout:      10 * time.Second,
			RequestTimeout:         config.GetDuration(cfg.Camunda.RequestTimeout),
		})
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")
	if len(cfg.Camunda.DeployResources) > 0 {
		processes, err := zeebe.DeployProcess(ctx, cfg.Camunda.DeployResources...)
		if err != nil {
			zapLog.Fatal("process deployment failed", zap.Error(err))
		}
		for _, p := range processes {
			zapLog.Info("Process deployed", zap.String("bpmnProcessId", p.GetBpmnProcessId()), zap.Int32("version", p.GetVersion()))
		}
	}

	// --- PostgreSQL: the database resolved queries run against ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	if err := pg.CheckReadOnly(ctx); err != nil {
		zapLog.Fatal("postgres read-only check failed", zap.Error(err))
	}
	zapLog.Info("PostgreSQL connected successfully", zap.Bool("readOnly", cfg.Database.Postgres.ReadOnly))

	// --- Schema snapshot ---
	store, closeStore, err := openMetadataStore(ctx, cfg, zapLog)
	if err != nil {
		zapLog.Fatal("metadata store failed", zap.Error(err))
	}
	defer closeStore()
	snapshots := metadata.NewCachedStore(store, config.GetDuration(cfg.Metadata.RefreshInterval), log)

	// --- Optional collaborators ---
	var resolverOpts []resolver.Option
	resolverOpts = append(resolverOpts, resolver.WithRecorder(metrics.NewResolverRecorder()))

	if cfg.Embedding.Enabled {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		exists, err := esClient.IndexExists(ctx, cfg.Embedding.Index)
		if err != nil {
			zapLog.Fatal("embedding index check failed", zap.Error(err))
		}
		if !exists {
			zapLog.Warn("embedding index missing, semantic search will return no matches", zap.String("index", cfg.Embedding.Index))
		}
		embeddings, err := embedding.NewElasticsearchStore(esClient.Client, embedding.Config{
			Index:      cfg.Embedding.Index,
			MaxResults: cfg.Embedding.MaxResults,
			MinScore:   cfg.Embedding.MinScore,
		}, log)
		if err != nil {
			zapLog.Fatal("embedding store failed", zap.Error(err))
		}
		resolverOpts = append(resolverOpts, resolver.WithEmbeddingStorage(embeddings))
		zapLog.Info("Elasticsearch connected successfully", zap.String("index", cfg.Embedding.Index))
	}

	engineOpts := []executor.Option{executor.WithRecorder(obs.Tee(metrics.NewResolverRecorder()))}
	if cfg.Alerts.SNS.Enabled {
		snsClient, err := aws.NewSNSClient(ctx, cfg.Alerts.SNS.Region)
		if err != nil {
			zapLog.Fatal("sns client failed", zap.Error(err))
		}
		if err := snsClient.CheckTopic(ctx, cfg.Alerts.SNS.TopicARN); err != nil {
			zapLog.Fatal("sns topic check failed", zap.Error(err))
		}
		engineOpts = append(engineOpts, executor.WithAlerter(
			alerts.NewSNSPublisher(snsClient, cfg.Alerts.SNS.TopicARN, cfg.App.Name, log),
		))
		zapLog.Info("SNS alerts enabled", zap.String("topicArn", cfg.Alerts.SNS.TopicARN))
	}

	// --- Resolver ---
	engine, err := executor.NewEngine(pg.Executor(cfg.Resolver.MaxRows), executor.Config{
		Timeout:    time.Duration(cfg.Resolver.MaxExecutionTime) * time.Second,
		MaxRows:    cfg.Resolver.MaxRows,
		Strategies: cfg.Resolver.FallbackStrategies,
	}, log, engineOpts...)
	if err != nil {
		zapLog.Fatal("execution engine failed", zap.Error(err))
	}

	res, err := resolver.New(snapshots, engine, resolver.Config{
		MinConfidence:         cfg.Resolver.MinConfidence,
		MaxAlternativePlans:   cfg.Resolver.MaxAlternativePlans,
		SemanticSearchTimeout: config.GetDuration(cfg.Resolver.SemanticSearchTimeout),
	}, log, resolverOpts...)
	if err != nil {
		zapLog.Fatal("resolver failed", zap.Error(err))
	}

	// --- Workers ---
	var workers []*camunda.CamundaWorker

	{
		wcfg := config.GetWorkerConfig(cfg, rnq.TaskType)
		hcfg := rnq.DefaultConfig()
		hcfg.Timeout = config.GetDuration(wcfg.Timeout)
		handler, err := rnq.NewHandler(hcfg, res, log)
		if err != nil {
			zapLog.Fatal("handler init failed", zap.String("taskType", rnq.TaskType), zap.Error(err))
		}
		workers = append(workers, camunda.StartWorker(zeebe.GetClient(), rnq.TaskType, wcfg, handler.Handle, obs, log))
	}

	{
		wcfg := config.GetWorkerConfig(cfg, vsql.TaskType)
		hcfg := vsql.DefaultConfig()
		hcfg.Timeout = config.GetDuration(wcfg.Timeout)
		hcfg.MaxRows = cfg.Resolver.MaxRows
		handler, err := vsql.NewHandler(hcfg, snapshots, log)
		if err != nil {
			zapLog.Fatal("handler init failed", zap.String("taskType", vsql.TaskType), zap.Error(err))
		}
		workers = append(workers, camunda.StartWorker(zeebe.GetClient(), vsql.TaskType, wcfg, handler.Handle, obs, log))
	}

	{
		wcfg := config.GetWorkerConfig(cfg, eqc.TaskType)
		hcfg := eqc.DefaultConfig()
		hcfg.Timeout = config.GetDuration(wcfg.Timeout)
		hcfg.MinConfidence = cfg.Resolver.MinConfidence
		handler, err := eqc.NewHandler(hcfg, nil, snapshots, log)
		if err != nil {
			zapLog.Fatal("handler init failed", zap.String("taskType", eqc.TaskType), zap.Error(err))
		}
		workers = append(workers, camunda.StartWorker(zeebe.GetClient(), eqc.TaskType, wcfg, handler.Handle, obs, log))
	}

	zapLog.Info("All workers registered")

	// --- Health & Metrics Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		checkCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		checks := map[string]string{"status": "ready"}
		status := http.StatusOK
		for name, check := range map[string]func(context.Context) error{
			"zeebe":    zeebe.HealthCheck,
			"postgres": pg.Ping,
			"metadata": func(ctx context.Context) error { _, err := snapshots.Load(ctx); return err },
		} {
			if err := check(checkCtx); err != nil {
				checks[name] = err.Error()
				checks["status"] = "not ready"
				status = http.StatusServiceUnavailable
				continue
			}
			checks[name] = "ok"
		}
		writeStatus(w, status, checks)
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/debug/pprof/", http.DefaultServeMux)

	server := &http.Server{Addr: cfg.Observability.MetricsAddress, Handler: mux}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, w := range workers {
		w.Stop()
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping health server", zap.Error(err))
	}
	if err := zeebe.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

// openMetadataStore returns the configured snapshot source and a func that
// releases it.
func openMetadataStore(ctx context.Context, cfg *config.Config, zapLog *zap.Logger) (metadata.Store, func(), error) {
	switch cfg.Metadata.Source {
	case "file":
		zapLog.Info("Reading metadata snapshot from file", zap.String("path", cfg.Metadata.FilePath))
		return metadata.NewFileStore(cfg.Metadata.FilePath), func() {}, nil
	default:
		var rdb *database.RedisClient
		err := retryWithBackoff(func() error {
			var err error
			rdb, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return rdb.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			return nil, nil, err
		}
		zapLog.Info("Redis connected successfully", zap.String("key", cfg.Metadata.RedisKey))
		return rdb.SnapshotStore(cfg.Metadata.RedisKey), func() { rdb.Close() }, nil
	}
}

func writeStatus(w http.ResponseWriter, status int, body map[string]string) {
	body["time"] = time.Now().Format(time.RFC3339)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
