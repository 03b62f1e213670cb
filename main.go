package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/painradar/aggregation-service/internal/aggregate"
	"github.com/painradar/aggregation-service/internal/cache"
	"github.com/painradar/aggregation-service/internal/classify"
	"github.com/painradar/aggregation-service/internal/config"
	"github.com/painradar/aggregation-service/internal/fetch"
	"github.com/painradar/aggregation-service/internal/kv"
	"github.com/painradar/aggregation-service/internal/models"
	"github.com/painradar/aggregation-service/internal/server"
	"github.com/painradar/aggregation-service/internal/storage"
)

const httpTimeout = 30 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Key-value store for cache and rate state
	var store kv.Store
	if cfg.KV.RedisAddr != "" {
		store, err = kv.NewRedisStore(ctx, cfg.KV.RedisAddr, cfg.KV.RedisPassword, cfg.KV.RedisDB)
		if err != nil {
			log.Fatal("Failed to connect to redis:", err)
		}
	} else {
		log.Println("No REDIS_ADDR configured, using in-process key-value store")
		store = kv.NewMemoryStore()
	}
	defer store.Close()

	// Rate-limited fetch client over the configured sources
	limiter := fetch.NewLimiter(store, cfg.Sources)
	sources := map[models.SourceType]fetch.SourceClient{
		models.SourceReddit: fetch.NewRedditClient(
			cfg.Sources.RedditClientID,
			cfg.Sources.RedditClientSecret,
			cfg.Sources.RedditTokenURL,
			cfg.Sources.RedditBaseURL,
			cfg.Sources.UserAgent,
			httpTimeout,
		),
		models.SourceStackExchange: fetch.NewStackExchangeClient(
			cfg.Sources.StackExchangeBaseURL,
			cfg.Sources.UserAgent,
			httpTimeout,
		),
		models.SourceRSS: fetch.NewRSSClient(cfg.Sources.UserAgent),
	}
	fetchClient := fetch.NewClient(limiter, sources)
	cacheStore := cache.NewStore(store, fetchClient)

	// Classification rules: compiled-in defaults, overridable from a file
	rules := classify.DefaultRules()
	if path := os.Getenv("CLASSIFY_RULES_PATH"); path != "" {
		rules, err = classify.LoadRules(path)
		if err != nil {
			log.Fatal("Failed to load classification rules:", err)
		}
	}
	classifier := classify.New(rules)

	// Persistence sink (optional)
	sink, err := storage.NewSink(ctx, cfg.Storage)
	if err != nil {
		log.Fatal("Failed to initialize storage:", err)
	}
	if sink != nil {
		defer sink.Close()
	}

	ttlFor := func(st models.SourceType) time.Duration {
		return cfg.Sources.ForSource(st).CacheTTL
	}
	aggregator := aggregate.NewService(cacheStore, classifier, sink, ttlFor)

	// Initialize HTTP server for API endpoints
	httpServer := server.NewServer(cfg.Server, cfg.Sources, cfg.Aggregate.Deadline, aggregator, sink)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start HTTP server
	go func() {
		log.Printf("Starting HTTP server on port %d", cfg.Server.Port)
		if err := httpServer.Start(); err != nil {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	// Start background aggregation runs when enabled
	if cfg.Aggregate.RefreshEnabled {
		runner := aggregate.NewRunner(
			aggregator,
			sink,
			cfg.Sources.DefaultQueries(),
			aggregate.Options{Category: "all", SortBy: aggregate.SortConfidence, Page: 1, Limit: 100},
			cfg.Aggregate.RefreshInterval,
			cfg.Aggregate.Deadline,
		)
		go func() {
			log.Println("Starting background aggregation runner")
			if err := runner.Start(ctx); err != nil {
				log.Printf("Aggregation runner error: %v", err)
			}
		}()
	}

	// Wait for shutdown signal
	<-sigChan
	log.Println("Shutdown signal received, gracefully shutting down...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Shutdown services
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	cancel() // Cancel background runner context
	log.Println("Shutdown complete")
}
