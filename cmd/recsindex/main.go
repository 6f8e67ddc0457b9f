// Command recsindex builds the product similarity index from the catalog
// database and exits. It is the batch counterpart of POST /api/v1/index/rebuild.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Adithya-Monish-Kumar-K/product-similarity/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/product-similarity/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/product-similarity/internal/events"
	"github.com/Adithya-Monish-Kumar-K/product-similarity/internal/similarity"
	"github.com/Adithya-Monish-Kumar-K/product-similarity/internal/similarity/artifact"
	"github.com/Adithya-Monish-Kumar-K/product-similarity/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/product-similarity/pkg/database"
	"github.com/Adithya-Monish-Kumar-K/product-similarity/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/product-similarity/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/product-similarity/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	force := flag.Bool("force", true, "rebuild even if an artifact already exists")
	flag.Parse()

	if err := run(*configPath, *force); err != nil {
		fmt.Fprintf(os.Stderr, "Index build failed: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, force bool) error {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger.SetupWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.New(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	cat := catalog.NewGuarded(catalog.NewSQLStore(db.DB), catalog.GuardConfig{
		Retry: resilience.RetryConfig{MaxAttempts: cfg.Recommend.CatalogRetries},
		Breaker: resilience.BreakerConfig{
			FailureThreshold: cfg.Recommend.BreakerFailures,
			ResetTimeout:     cfg.Recommend.BreakerTimeout,
		},
	})

	store, closeStore, err := artifact.Open(cfg.Index.Backend, cfg.Index.DataDir)
	if err != nil {
		return err
	}
	defer closeStore()

	index := similarity.New(store, corpus.NewExtractor(cat), similarity.Options{
		MaxFeatures: cfg.Index.MaxFeatures,
	})

	fmt.Println("Building TF-IDF index...")
	if err := index.Build(ctx, force); err != nil {
		return err
	}
	status := index.Status()
	fmt.Printf("Index built: generation %s, %d products, %d terms\n",
		status.Generation, status.Products, status.Terms)

	if cfg.Kafka.Enabled() {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexEvents)
		defer producer.Close()
		if err := events.NewPublisher(producer, nil).IndexBuilt(ctx, status); err != nil {
			slog.Warn("index built but announcement failed", "error", err)
		}
	}
	return nil
}
