package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/tahminlab/matchcast/internal/domain/fixture"
	"github.com/tahminlab/matchcast/internal/domain/prediction"
	"github.com/tahminlab/matchcast/internal/infrastructure/registry"
	"github.com/tahminlab/matchcast/internal/models"
	"github.com/tahminlab/matchcast/internal/observability"
	"github.com/tahminlab/matchcast/internal/platform/logging"
)

// Retrain trigger classes.
const (
	TriggerScheduled   = "scheduled"
	TriggerVolume      = "volume"
	TriggerDegradation = "degradation"
	TriggerManual      = "manual"
)

// labeledFetchLimit caps one training pull from the ledger.
const labeledFetchLimit = 10000

// validationFraction of the labeled set is held out for the activation gate.
const validationFraction = 0.2

// ModelRegistry is the slice of the registry the retrainer drives.
type ModelRegistry interface {
	Active(family string) (registry.Scorer, registry.ModelMeta, bool)
	SaveVersion(ctx context.Context, meta registry.ModelMeta, artifact []byte) error
	Activate(ctx context.Context, family, version string) error
}

// FeatureCache is the slice of the fingerprint cache the retrainer flushes
// after activating a new model version.
type FeatureCache interface {
	Invalidate(ctx context.Context, category string) (int64, error)
}

// longLivedCategories hold slow-moving history whose cache entries only go
// stale when the models consuming them are rebuilt.
var longLivedCategories = []string{"team_info", "transfers", "h2h"}

// RetrainConfig carries the trigger thresholds.
type RetrainConfig struct {
	Interval        time.Duration
	VolumeThreshold int
	MinSamples      int
	AccuracyDrop    float64
	RecentWindow    time.Duration
	RebuildWorkers  int
}

// FamilyReport is the outcome of retraining one model family.
type FamilyReport struct {
	Family             string  `json:"family"`
	Version            string  `json:"version,omitempty"`
	ValidationAccuracy float64 `json:"validation_accuracy"`
	PreviousAccuracy   float64 `json:"previous_accuracy"`
	Activated          bool    `json:"activated"`
	Rejected           bool    `json:"rejected,omitempty"`
	Error              string  `json:"error,omitempty"`
}

// RetrainReport summarizes one retraining run.
type RetrainReport struct {
	RunID      string         `json:"run_id"`
	Trigger    string         `json:"trigger"`
	Samples    int            `json:"samples"`
	Families   []FamilyReport `json:"families"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// RetrainService rebuilds and conditionally activates the boosted models
// from the ledger's labeled history.
type RetrainService struct {
	ledger prediction.Ledger
	reg    ModelRegistry
	cache  FeatureCache
	cfg    RetrainConfig

	mu          sync.Mutex
	lastRetrain time.Time

	logger  *logging.Logger
	metrics *observability.Metrics
}

func NewRetrainService(ledger prediction.Ledger, reg ModelRegistry, cache FeatureCache,
	cfg RetrainConfig, logger *logging.Logger, metrics *observability.Metrics) *RetrainService {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 7 * 24 * time.Hour
	}
	if cfg.VolumeThreshold <= 0 {
		cfg.VolumeThreshold = 200
	}
	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = 7 * 24 * time.Hour
	}
	if cfg.RebuildWorkers <= 0 {
		cfg.RebuildWorkers = 2
	}
	return &RetrainService{
		ledger:      ledger,
		reg:         reg,
		cache:       cache,
		cfg:         cfg,
		lastRetrain: time.Now().UTC(),
		logger:      logger,
		metrics:     metrics,
	}
}

// ShouldRetrain evaluates the three trigger classes and names the first one
// that fires.
func (s *RetrainService) ShouldRetrain(ctx context.Context) (string, bool) {
	s.mu.Lock()
	last := s.lastRetrain
	s.mu.Unlock()

	now := time.Now().UTC()
	if now.Sub(last) >= s.cfg.Interval {
		return TriggerScheduled, true
	}

	outcomes, err := s.ledger.CountOutcomesSince(ctx, last)
	if err != nil {
		s.logger.Warn("outcome count failed, skipping volume trigger", "error", err)
	} else if outcomes >= s.cfg.VolumeThreshold {
		return TriggerVolume, true
	}

	if trigger, ok := s.degraded(ctx, now); ok {
		return trigger, ok
	}
	return "", false
}

// degraded fires when rolling accuracy sits more than the configured drop
// below the weakest active model's validation accuracy.
func (s *RetrainService) degraded(ctx context.Context, now time.Time) (string, bool) {
	rolling, err := s.ledger.RollingAccuracy(ctx, now.Add(-s.cfg.RecentWindow))
	if err != nil {
		s.logger.Warn("rolling accuracy unavailable, skipping degradation trigger", "error", err)
		return "", false
	}
	if rolling.Total < s.cfg.MinSamples {
		return "", false
	}

	for _, family := range []string{models.FamilyXGB, models.FamilyLGBM} {
		_, meta, ok := s.reg.Active(family)
		if !ok {
			continue
		}
		if meta.ValidationAccuracy-rolling.Accuracy > s.cfg.AccuracyDrop {
			return TriggerDegradation, true
		}
	}
	return "", false
}

// Run executes one retraining cycle: pull labeled pairs, retrain both
// boosted families in parallel, gate each new version on held-out accuracy
// against the active model, and activate the winners. The run id makes a
// cycle idempotent; versions derive from it.
func (s *RetrainService) Run(ctx context.Context, trigger string) (RetrainReport, error) {
	if trigger == "" {
		trigger = TriggerManual
	}
	report := RetrainReport{
		RunID:     uuid.NewString(),
		Trigger:   trigger,
		StartedAt: time.Now().UTC(),
	}

	samples, err := s.labeledSamples(ctx)
	if err != nil {
		s.countRun(trigger, "failed")
		return report, err
	}
	report.Samples = len(samples)
	if len(samples) < s.cfg.MinSamples {
		s.countRun(trigger, "skipped")
		return report, errors.Mark(
			errors.Newf("only %d labeled samples, need %d", len(samples), s.cfg.MinSamples),
			ErrRetrainRejected)
	}

	train, holdout := splitSamples(samples)
	s.logger.Info("retraining started",
		"run_id", report.RunID, "trigger", trigger,
		"train_samples", len(train), "holdout_samples", len(holdout))

	workers, err := ants.NewPool(s.cfg.RebuildWorkers)
	if err != nil {
		s.countRun(trigger, "failed")
		return report, errors.Wrap(err, "create rebuild pool")
	}
	defer workers.Release()

	families := []string{models.FamilyXGB, models.FamilyLGBM}
	reports := make([]FamilyReport, len(families))
	var wg sync.WaitGroup
	for i, family := range families {
		i, family := i, family
		wg.Add(1)
		if err := workers.Submit(func() {
			defer wg.Done()
			reports[i] = s.retrainFamily(ctx, family, report.RunID, train, holdout)
		}); err != nil {
			wg.Done()
			reports[i] = FamilyReport{Family: family, Error: err.Error()}
		}
	}
	wg.Wait()
	report.Families = reports

	activated := false
	for _, fr := range reports {
		if fr.Activated {
			activated = true
		}
	}
	if activated {
		s.mu.Lock()
		s.lastRetrain = time.Now().UTC()
		s.mu.Unlock()
		s.flushLongLivedCaches(ctx)
	}

	report.FinishedAt = time.Now().UTC()
	result := "rejected"
	if activated {
		result = "activated"
	}
	s.countRun(trigger, result)
	if s.metrics != nil {
		s.metrics.RetrainRunDuration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())
	}
	s.logger.Info("retraining finished", "run_id", report.RunID, "result", result)
	return report, nil
}

// flushLongLivedCaches drops slow-moving cache categories so the next
// prediction refetches them against the freshly activated models. Failures
// are logged; entries still age out by TTL.
func (s *RetrainService) flushLongLivedCaches(ctx context.Context) {
	if s.cache == nil {
		return
	}
	for _, category := range longLivedCategories {
		removed, err := s.cache.Invalidate(ctx, category)
		if err != nil {
			s.logger.Warn("cache invalidation failed", "category", category, "error", err)
			continue
		}
		s.logger.Info("cache category invalidated", "category", category, "removed", removed)
	}
}

func (s *RetrainService) retrainFamily(ctx context.Context, family, runID string,
	train, holdout []models.Sample) FamilyReport {

	fr := FamilyReport{Family: family}

	artifact, err := models.Train(family, train, models.DefaultTrainConfig(family))
	if err != nil {
		fr.Error = err.Error()
		return fr
	}
	raw, err := artifact.Encode()
	if err != nil {
		fr.Error = err.Error()
		return fr
	}
	model, err := models.Decode(family, raw)
	if err != nil {
		fr.Error = err.Error()
		return fr
	}
	accuracy, err := models.Evaluate(model, holdout)
	if err != nil {
		fr.Error = err.Error()
		return fr
	}
	fr.ValidationAccuracy = accuracy

	if _, meta, ok := s.reg.Active(family); ok {
		fr.PreviousAccuracy = meta.ValidationAccuracy
		if accuracy < meta.ValidationAccuracy {
			fr.Rejected = true
			s.logger.Warn("retrain rejected, keeping active version",
				"family", family, "run_id", runID,
				"candidate_accuracy", accuracy, "active_accuracy", meta.ValidationAccuracy)
			return fr
		}
	}

	version := fmt.Sprintf("%s-%s", time.Now().UTC().Format("20060102"), runID[:8])
	meta := registry.ModelMeta{
		Family:             family,
		Version:            version,
		TrainedAt:          time.Now().UTC(),
		Samples:            len(train),
		FeatureOrder:       prediction.FactorNames[:],
		ValidationAccuracy: accuracy,
		TriggeredBy:        runID,
	}
	if err := s.reg.SaveVersion(ctx, meta, raw); err != nil {
		fr.Error = err.Error()
		return fr
	}
	if err := s.reg.Activate(ctx, family, version); err != nil {
		fr.Error = err.Error()
		return fr
	}

	fr.Version = version
	fr.Activated = true
	s.logger.Info("model activated",
		"family", family, "version", version, "validation_accuracy", accuracy)
	return fr
}

// labeledSamples turns resolved ledger entries into training rows. Factor
// vectors were computed against an explicit as-of instant at prediction
// time, so reusing them replays the exact serving features.
func (s *RetrainService) labeledSamples(ctx context.Context) ([]models.Sample, error) {
	pairs, err := s.ledger.ListLabeledSince(ctx, time.Time{}, labeledFetchLimit)
	if err != nil {
		return nil, errors.Wrap(err, "list labeled predictions")
	}

	samples := make([]models.Sample, 0, len(pairs))
	for _, pair := range pairs {
		label, ok := labelIndex(pair.Outcome.Result)
		if !ok {
			continue
		}
		samples = append(samples, models.Sample{Factors: pair.Record.Factors, Label: label})
	}
	return samples, nil
}

// splitSamples holds out the most recent fraction for validation. The split
// is chronological so validation approximates live traffic.
func splitSamples(samples []models.Sample) (train, holdout []models.Sample) {
	cut := len(samples) - int(float64(len(samples))*validationFraction)
	if cut < 1 {
		cut = 1
	}
	if cut >= len(samples) {
		cut = len(samples) - 1
	}
	return samples[:cut], samples[cut:]
}

func labelIndex(result string) (int, bool) {
	switch result {
	case fixture.ResultHome:
		return 0, true
	case fixture.ResultDraw:
		return 1, true
	case fixture.ResultAway:
		return 2, true
	default:
		return 0, false
	}
}

func (s *RetrainService) countRun(trigger, result string) {
	if s.metrics != nil {
		s.metrics.RetrainRunsTotal.WithLabelValues(trigger, result).Inc()
	}
}
