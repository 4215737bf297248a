package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"sceneminer/internal/activities"
	"sceneminer/internal/cache"
	"sceneminer/internal/config"
	"sceneminer/internal/ensemble"
	"sceneminer/internal/extraction"
	"sceneminer/internal/processors"
	"sceneminer/internal/storage"
	"sceneminer/internal/strategy"
	"sceneminer/internal/workflows"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	c, err := client.Dial(client.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		log.Fatal(err)
	}

	var configs []processors.ProcessorConfig
	if cfg.ProcessorConfigPath != "" {
		configs, err = processors.LoadProcessorFile(cfg.ProcessorConfigPath)
		if err != nil {
			log.Fatal(err)
		}
	} else {
		configs = processors.ParseProcessorList(cfg.Processors)
	}
	registry, err := processors.NewRegistry(configs, processors.RegistryOptions{
		MinEnabled: cfg.MinEnabledProcessors,
		LLM: processors.LLMSettings{
			BaseURL: cfg.LLMBaseURL,
			APIKey:  cfg.LLMAPIKey,
			Model:   cfg.LLMModel,
		},
		Logger: logger,
	})
	if err != nil {
		log.Fatal(err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second
	voter := ensemble.NewVoter(ensemble.Options{
		ConsensusThreshold: cfg.ConsensusThreshold,
		Similarity:         ensemble.DefaultSimilarity(),
	})
	unitRepo := storage.NewUnitRepo(db)

	// Same orchestrator type and lock discipline as the API; only the
	// timeout budget is the background one.
	orch := extraction.NewOrchestrator(
		unitRepo,
		storage.NewDescriptionRepo(db),
		cache.NewMemoryTier(cfg.MemoryCacheSize, cacheTTL),
		cache.NewRedisTier(rdb, "sceneminer", cacheTTL),
		cache.NewRedisLocker(rdb, "sceneminer"),
		registry,
		strategy.NewRunner(voter, logger),
		strategy.DefaultSelectorConfig(),
		extraction.Options{
			ExtractionTimeout: time.Duration(cfg.PreparseTimeoutSeconds) * time.Second,
			LockTTL:           time.Duration(cfg.LockTTLSeconds) * time.Second,
		},
		logger,
	)

	w := worker.New(c, cfg.TemporalTaskQueue, worker.Options{})
	workflows.Register(w)
	activities.Register(w, activities.New(orch, unitRepo, logger))

	log.Printf("sceneminer worker listening on %s queue=%s processors=%q", cfg.TemporalAddress, cfg.TemporalTaskQueue, cfg.Processors)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatal(err)
	}
}
