package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Adithya-Monish-Kumar-K/product-similarity/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/product-similarity/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/product-similarity/internal/events"
	"github.com/Adithya-Monish-Kumar-K/product-similarity/internal/recommend"
	"github.com/Adithya-Monish-Kumar-K/product-similarity/internal/recommend/handler"
	"github.com/Adithya-Monish-Kumar-K/product-similarity/internal/similarity"
	"github.com/Adithya-Monish-Kumar-K/product-similarity/internal/similarity/artifact"
	"github.com/Adithya-Monish-Kumar-K/product-similarity/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/product-similarity/pkg/database"
	"github.com/Adithya-Monish-Kumar-K/product-similarity/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/product-similarity/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/product-similarity/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/product-similarity/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/product-similarity/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/product-similarity/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/product-similarity/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting recommender service", "port", cfg.Server.Port, "backend", cfg.Index.Backend)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, reg)
		defer shutdownMetrics(context.Background())
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		slog.Error("failed to connect to catalog database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("catalog database connected", "driver", db.Driver())

	cat := catalog.NewGuarded(catalog.NewSQLStore(db.DB), catalog.GuardConfig{
		Retry: resilience.RetryConfig{MaxAttempts: cfg.Recommend.CatalogRetries},
		Breaker: resilience.BreakerConfig{
			FailureThreshold: cfg.Recommend.BreakerFailures,
			ResetTimeout:     cfg.Recommend.BreakerTimeout,
			OnStateChange: func(name string, state int) {
				m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
			},
		},
	})

	store, closeStore, err := artifact.Open(cfg.Index.Backend, cfg.Index.DataDir)
	if err != nil {
		slog.Error("failed to open artifact store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	index := similarity.New(store, corpus.NewExtractor(cat), similarity.Options{
		MaxFeatures: cfg.Index.MaxFeatures,
		Metrics:     m,
	})
	if err := index.Reload(ctx); err != nil {
		slog.Info("no usable index artifact, first query will build one", "reason", err)
	}

	var (
		recCache    *recommend.Cache
		redisClient *pkgredis.Client
	)
	if cfg.Recommend.CacheEnabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, recommendation caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			recCache = recommend.NewCache(redisClient, cfg.Recommend.CacheTTL, m)
			slog.Info("recommendation cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Recommend.CacheTTL)
		}
	}

	facade := recommend.NewFacade(cat, index, recommend.Options{
		DefaultK:        cfg.Index.DefaultK,
		MaxK:            cfg.Index.MaxK,
		HeuristicLimit:  cfg.Recommend.HeuristicLimit,
		FallbackEnabled: cfg.Recommend.FallbackEnabled,
		Cache:           recCache,
		Metrics:         m,
	})

	var notifier handler.BuildNotifier
	if cfg.Kafka.Enabled() {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexEvents)
		defer producer.Close()
		notifier = events.NewPublisher(producer, m)

		// Every instance keeps its own index, so each one needs every event.
		consumerCfg := cfg.Kafka
		consumerCfg.ConsumerGroup = fmt.Sprintf("%s-%s", cfg.Kafka.ConsumerGroup, uuid.NewString())
		deps := events.Deps{Index: index, Metrics: m}
		if recCache != nil {
			deps.Cache = recCache
		}
		consumer := kafka.NewConsumer(consumerCfg, cfg.Kafka.Topics.IndexEvents, events.Handle(deps))
		defer consumer.Close()
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("index event consumer error", "error", err)
			}
		}()
		slog.Info("index events enabled", "topic", cfg.Kafka.Topics.IndexEvents, "group", consumerCfg.ConsumerGroup)
	}

	checker := health.NewChecker()
	checker.Register("database", health.PingCheck(db.Ping, health.StatusDown))
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("similarity_index", func(ctx context.Context) health.ComponentHealth {
		status := index.Status()
		msg := fmt.Sprintf("%s, %d products", status.State, status.Products)
		switch index.State() {
		case similarity.StateReady, similarity.StateStale:
			return health.ComponentHealth{Status: health.StatusUp, Message: msg}
		default:
			return health.ComponentHealth{Status: health.StatusDegraded, Message: msg}
		}
	})

	h := handler.New(facade, index, recCache, notifier)
	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: h.Router(handler.RouterOptions{
			Metrics:         m,
			Health:          checker,
			RequestTimeout:  cfg.Recommend.RequestTimeout,
			CORS:            middleware.DefaultCORSConfig(cfg.Server.CORSOrigins...),
			AdminRateLimit:  cfg.Server.AdminRateLimit,
			AdminRateWindow: cfg.Server.AdminRateWindow,
		}),
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

	slog.Info("recommender service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("recommender service stopped")
}
