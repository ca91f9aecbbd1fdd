// Package app wires configuration, stores, the upstream client and the
// services into runnable processes.
package app

import (
	"fmt"
	"net/http"

	"github.com/tahminlab/matchcast/external/footballapi"
	"github.com/tahminlab/matchcast/internal/config"
	"github.com/tahminlab/matchcast/internal/ensemble"
	"github.com/tahminlab/matchcast/internal/factors"
	"github.com/tahminlab/matchcast/internal/infrastructure/cachestore"
	"github.com/tahminlab/matchcast/internal/infrastructure/elostore"
	"github.com/tahminlab/matchcast/internal/infrastructure/ledgerstore"
	"github.com/tahminlab/matchcast/internal/infrastructure/registry"
	"github.com/tahminlab/matchcast/internal/interfaces/httpapi"
	"github.com/tahminlab/matchcast/internal/models"
	"github.com/tahminlab/matchcast/internal/observability"
	"github.com/tahminlab/matchcast/internal/platform/logging"
	"github.com/tahminlab/matchcast/internal/platform/resilience"
	"github.com/tahminlab/matchcast/internal/usecase"
	"github.com/tahminlab/matchcast/internal/weights"
)

// App holds the assembled service graph plus the handles that need closing
// on shutdown.
type App struct {
	Server  *http.Server
	Retrain *usecase.RetrainService
	Metrics *observability.Metrics

	cache  *cachestore.Store
	ledger *ledgerstore.Store
	logger *logging.Logger
}

// New builds the whole service graph from configuration.
func New(cfg config.Config, logger *logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.Default()
	}
	metrics := observability.NewMetrics()

	cache, err := cachestore.Open(cfg.CachePath, cfg.CacheTTLs, logger, metrics)
	if err != nil {
		return nil, fmt.Errorf("open cache store: %w", err)
	}
	ledger, err := ledgerstore.Open(cfg.LedgerPath, logger)
	if err != nil {
		cache.Close()
		return nil, fmt.Errorf("open ledger store: %w", err)
	}
	ratings, err := elostore.Open(cfg.RatingsPath, logger)
	if err != nil {
		cache.Close()
		ledger.Close()
		return nil, fmt.Errorf("open ratings store: %w", err)
	}
	modelRegistry, err := registry.Open(cfg.ModelsDir,
		func(family string, artifact []byte) (registry.Scorer, error) {
			return models.Decode(family, artifact)
		}, logger, metrics)
	if err != nil {
		cache.Close()
		ledger.Close()
		return nil, fmt.Errorf("open model registry: %w", err)
	}

	apiClient := footballapi.NewClient(footballapi.ClientConfig{
		BaseURL:        cfg.FootballAPIBaseURL,
		APIKey:         cfg.FootballAPIKey,
		Timeout:        cfg.FootballAPITimeout,
		MaxRetries:     cfg.FootballAPIMaxRetries,
		BackoffInitial: cfg.FetchSlotBackoffInitial,
		RatePerSec:     cfg.FootballAPIRateLimitPerSec,
		RateBurst:      cfg.FootballAPIRateBurst,
		Logger:         logger,
		CircuitBreaker: resilience.CircuitBreakerConfig{
			Enabled:          cfg.FootballAPICircuitEnabled,
			FailureThreshold: cfg.FootballAPICircuitFailures,
			OpenTimeout:      cfg.FootballAPICircuitOpenFor,
			HalfOpenMaxReq:   cfg.FootballAPICircuitHalfOpen,
		},
	})

	fetcher := usecase.NewFetchService(apiClient, cache, ratings, usecase.FetchConfig{
		Parallelism:    cfg.FetchParallelism,
		SlotTimeout:    cfg.FetchSlotTimeout,
		SlotRetries:    cfg.FetchSlotRetries,
		BackoffInitial: cfg.FetchSlotBackoffInitial,
	}, logger, metrics)

	engine := factors.New()
	resolver := weights.NewResolver()
	fuser := ensemble.New(cfg.EnsembleWeights, logger)

	predictions := usecase.NewPredictionService(
		fetcher, engine, resolver, modelRegistry, fuser, ledger, factors.BuiltinDerbies(),
		usecase.PredictionServiceConfig{
			DefaultMethod: ensemble.Method(cfg.EnsembleMethod),
			Budget:        cfg.PredictBudget,
		}, logger, metrics)
	outcomes := usecase.NewOutcomeService(ledger, ratings, logger)
	retrain := usecase.NewRetrainService(ledger, modelRegistry, cache, usecase.RetrainConfig{
		Interval:        cfg.RetrainInterval,
		VolumeThreshold: cfg.RetrainVolumeThreshold,
		MinSamples:      cfg.RetrainMinSamples,
		AccuracyDrop:    cfg.RetrainAccuracyDrop,
		RecentWindow:    cfg.AccuracyRecentWindow,
		RebuildWorkers:  cfg.RetrainRebuildWorkers,
	}, logger, metrics)

	handler := httpapi.NewHandler(predictions, outcomes, retrain,
		ledger, cache, modelRegistry, cfg.AccuracyBaselineWindow, logger)
	router := httpapi.NewRouter(handler, metrics.Registry(), logger,
		cfg.CORSAllowedOrigins, cfg.InternalJobToken)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	if server.Addr == "" {
		cache.Close()
		ledger.Close()
		return nil, fmt.Errorf("http server addr cannot be empty")
	}

	return &App{
		Server:  server,
		Retrain: retrain,
		Metrics: metrics,
		cache:   cache,
		ledger:  ledger,
		logger:  logger,
	}, nil
}

// Close releases the storage handles. The HTTP server is shut down by the
// caller before Close.
func (a *App) Close() {
	if err := a.cache.Close(); err != nil {
		a.logger.Warn("closing cache store", "error", err)
	}
	if err := a.ledger.Close(); err != nil {
		a.logger.Warn("closing ledger store", "error", err)
	}
}
