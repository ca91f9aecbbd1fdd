package usecase

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/tahminlab/matchcast/internal/domain/fixture"
	"github.com/tahminlab/matchcast/internal/domain/matchdata"
	"github.com/tahminlab/matchcast/internal/domain/prediction"
	"github.com/tahminlab/matchcast/internal/ensemble"
	"github.com/tahminlab/matchcast/internal/factors"
	"github.com/tahminlab/matchcast/internal/infrastructure/registry"
	"github.com/tahminlab/matchcast/internal/models"
	"github.com/tahminlab/matchcast/internal/observability"
	"github.com/tahminlab/matchcast/internal/platform/logging"
	"github.com/tahminlab/matchcast/internal/weights"
)

// BundleFetcher assembles the analysis input for a matchup.
type BundleFetcher interface {
	Fetch(ctx context.Context, req BundleRequest) (matchdata.Bundle, error)
}

// FactorEngine derives the factor vector and explanations from a bundle.
type FactorEngine interface {
	Compute(b matchdata.Bundle) (prediction.FactorVector, []prediction.FactorExplanation)
}

// ProfileResolver supplies the factor multipliers for the rule scorer.
type ProfileResolver interface {
	Resolve(leagueID int64, matchType weights.MatchType) weights.Profile
}

// ModelProvider serves the active boosted model per family.
type ModelProvider interface {
	Active(family string) (registry.Scorer, registry.ModelMeta, bool)
}

// DistributionFuser folds per-model distributions into the final one.
type DistributionFuser interface {
	Fuse(method ensemble.Method, inputs []ensemble.Input) (ensemble.Result, error)
}

// PredictInput is one prediction request.
type PredictInput struct {
	HomeTeamID int64
	AwayTeamID int64
	LeagueID   int64
	Season     int
	Method     string
	AsOf       time.Time
}

// PredictOutput is the full prediction surface returned to callers.
type PredictOutput struct {
	PredictionID   string                         `json:"prediction_id"`
	FixtureRef     string                         `json:"fixture_ref"`
	Predicted      string                         `json:"predicted"`
	Final          prediction.Distribution        `json:"final"`
	Confidence     float64                        `json:"confidence"`
	Method         string                         `json:"method"`
	MatchType      string                         `json:"match_type"`
	Factors        prediction.FactorVector        `json:"factors"`
	Explanations   []prediction.FactorExplanation `json:"explanations"`
	ModelOutputs   []prediction.ModelOutput       `json:"model_outputs"`
	ModelVersions  map[string]string              `json:"model_versions"`
	Partial        bool                           `json:"partial"`
	TimeoutPartial bool                           `json:"timeout_partial,omitempty"`
	MissingSlots   []string                       `json:"missing_slots,omitempty"`
}

// PredictionService runs the full pipeline: fetch, factors, weights, model
// inference, fusion, ledger append, in that order.
type PredictionService struct {
	fetcher  BundleFetcher
	engine   FactorEngine
	resolver ProfileResolver
	reg      ModelProvider
	rule     *models.RuleScorer
	fuser    DistributionFuser
	ledger   prediction.Ledger
	derbies  *factors.DerbyList

	defaultMethod ensemble.Method
	budget        time.Duration

	logger  *logging.Logger
	metrics *observability.Metrics
}

type PredictionServiceConfig struct {
	DefaultMethod ensemble.Method
	Budget        time.Duration
}

func NewPredictionService(
	fetcher BundleFetcher,
	engine FactorEngine,
	resolver ProfileResolver,
	reg ModelProvider,
	fuser DistributionFuser,
	ledger prediction.Ledger,
	derbies *factors.DerbyList,
	cfg PredictionServiceConfig,
	logger *logging.Logger,
	metrics *observability.Metrics,
) *PredictionService {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.DefaultMethod == "" {
		cfg.DefaultMethod = ensemble.MethodWeighted
	}
	if cfg.Budget <= 0 {
		cfg.Budget = 15 * time.Second
	}
	if derbies == nil {
		derbies = factors.BuiltinDerbies()
	}
	return &PredictionService{
		fetcher:       fetcher,
		engine:        engine,
		resolver:      resolver,
		reg:           reg,
		rule:          models.NewRuleScorer(),
		fuser:         fuser,
		ledger:        ledger,
		derbies:       derbies,
		defaultMethod: cfg.DefaultMethod,
		budget:        cfg.Budget,
		logger:        logger,
		metrics:       metrics,
	}
}

// Predict runs one prediction end to end. A canceled request writes nothing
// to the ledger; a request that merely overruns the soft budget still
// returns the best available result, annotated as partial.
func (s *PredictionService) Predict(ctx context.Context, input PredictInput) (PredictOutput, error) {
	start := time.Now()

	fix := fixture.Fixture{
		HomeTeamID: input.HomeTeamID,
		AwayTeamID: input.AwayTeamID,
		LeagueID:   input.LeagueID,
		Season:     input.Season,
	}
	if err := fix.Validate(); err != nil {
		return PredictOutput{}, errors.Mark(err, ErrInvalidInput)
	}

	method := s.defaultMethod
	if input.Method != "" {
		method = ensemble.Method(input.Method)
		if !ensemble.ValidMethod(method) {
			return PredictOutput{}, errors.Mark(errors.Newf("unknown ensemble method %q", input.Method), ErrInvalidInput)
		}
	}

	asOf := input.AsOf
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	budgetCtx, cancel := context.WithTimeout(ctx, s.budget)
	defer cancel()

	bundle, err := s.fetcher.Fetch(budgetCtx, BundleRequest{
		HomeID:   input.HomeTeamID,
		AwayID:   input.AwayTeamID,
		LeagueID: input.LeagueID,
		Season:   input.Season,
		AsOf:     asOf,
	})
	if err != nil {
		s.countPrediction(method, "upstream_failed")
		return PredictOutput{}, err
	}
	if ctx.Err() != nil {
		// Caller went away; discard everything.
		return PredictOutput{}, ctx.Err()
	}
	timedOut := budgetCtx.Err() != nil

	vector, explanations := s.engine.Compute(bundle)

	matchType := weights.DetectMatchType(bundle.Home.Standing, bundle.Away.Standing,
		s.derbies.IsDerby(input.HomeTeamID, input.AwayTeamID))
	profile := s.resolver.Resolve(input.LeagueID, matchType)

	outputs, inputs, versions := s.runModels(vector, profile)
	fused, err := s.fuser.Fuse(method, inputs)
	if err != nil {
		s.countPrediction(method, "model_unavailable")
		return PredictOutput{}, errors.Mark(errors.Wrap(err, "no predictor produced a usable distribution"), ErrModelUnavailable)
	}
	outputs = markDiscarded(outputs, fused.Discarded)

	record := prediction.Record{
		ID:             uuid.NewString(),
		FixtureRef:     fix.Ref(),
		LeagueID:       input.LeagueID,
		Season:         input.Season,
		AsOf:           asOf,
		Factors:        vector,
		Explanations:   explanations,
		WeightProfile:  profileAsRecord(profile),
		MatchType:      string(matchType),
		ModelOutputs:   outputs,
		EnsembleMethod: string(fused.Method),
		Final:          fused.Dist,
		Predicted:      prediction.ResultCodeOf(fused.Winner),
		Confidence:     fused.Confidence,
		ModelVersions:  versions,
		Partial:        timedOut || !bundle.Complete(),
		CreatedAt:      time.Now().UTC(),
	}

	if ctx.Err() != nil {
		return PredictOutput{}, ctx.Err()
	}
	s.appendRecord(ctx, record)

	s.countPrediction(method, "ok")
	if s.metrics != nil {
		s.metrics.PredictionLatency.WithLabelValues(string(method)).Observe(time.Since(start).Seconds())
		s.metrics.EnsembleConfidence.WithLabelValues(string(method)).Observe(fused.Confidence)
		if record.Partial {
			s.metrics.PartialPredictions.Inc()
		}
	}

	return PredictOutput{
		PredictionID:   record.ID,
		FixtureRef:     record.FixtureRef,
		Predicted:      record.Predicted,
		Final:          fused.Dist,
		Confidence:     fused.Confidence,
		Method:         string(fused.Method),
		MatchType:      record.MatchType,
		Factors:        vector,
		Explanations:   explanations,
		ModelOutputs:   outputs,
		ModelVersions:  versions,
		Partial:        record.Partial,
		TimeoutPartial: timedOut,
		MissingSlots:   bundle.Missing,
	}, nil
}

// runModels collects every predictor's output. The rule scorer sees the
// profile-weighted vector; the boosted models see the raw one so serving
// matches their training distribution.
func (s *PredictionService) runModels(vector prediction.FactorVector, profile weights.Profile) (
	[]prediction.ModelOutput, []ensemble.Input, map[string]string) {

	outputs := make([]prediction.ModelOutput, 0, 3)
	inputs := make([]ensemble.Input, 0, 3)
	versions := make(map[string]string, 3)

	ruleDist, err := s.rule.Predict(profile.Apply(vector))
	if err != nil {
		outputs = append(outputs, prediction.ModelOutput{
			Model: models.FamilyRule, Failed: true, FailReason: err.Error(),
		})
		s.recordModelFailure(models.FamilyRule, "inference")
	} else {
		outputs = append(outputs, prediction.ModelOutput{
			Model:        models.FamilyRule,
			Distribution: ruleDist,
			Confidence:   ruleDist.Confidence(),
		})
		inputs = append(inputs, ensemble.Input{Family: models.FamilyRule, Dist: ruleDist})
	}

	for _, family := range []string{models.FamilyXGB, models.FamilyLGBM} {
		scorer, meta, ok := s.reg.Active(family)
		if !ok {
			outputs = append(outputs, prediction.ModelOutput{
				Model: family, Failed: true, FailReason: "no active version",
			})
			s.recordModelFailure(family, "unavailable")
			continue
		}
		versions[family] = meta.Version

		dist, err := scorer.Predict(vector)
		if err != nil {
			s.logger.Warn("model inference failed", "family", family, "version", meta.Version, "error", err)
			outputs = append(outputs, prediction.ModelOutput{
				Model: family, Version: meta.Version, Failed: true, FailReason: err.Error(),
			})
			s.recordModelFailure(family, "inference")
			continue
		}
		outputs = append(outputs, prediction.ModelOutput{
			Model:        family,
			Version:      meta.Version,
			Distribution: dist,
			Confidence:   dist.Confidence(),
		})
		inputs = append(inputs, ensemble.Input{Family: family, Dist: dist})
	}

	return outputs, inputs, versions
}

// appendRecord persists the prediction. A ledger failure never fails the
// prediction; the append is retried once in the background.
func (s *PredictionService) appendRecord(ctx context.Context, record prediction.Record) {
	err := s.ledger.Append(ctx, record)
	if err == nil {
		return
	}
	s.logger.Error("ledger append failed, scheduling retry", "prediction_id", record.ID, "error", err)

	go func() {
		retryCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		time.Sleep(500 * time.Millisecond)
		if err := s.ledger.Append(retryCtx, record); err != nil {
			s.logger.Error("ledger append retry failed, dropping record", "prediction_id", record.ID, "error", err)
		}
	}()
}

func (s *PredictionService) countPrediction(method ensemble.Method, status string) {
	if s.metrics != nil {
		s.metrics.PredictionsTotal.WithLabelValues(string(method), status).Inc()
	}
}

func (s *PredictionService) recordModelFailure(family, reason string) {
	if s.metrics != nil {
		s.metrics.ModelFailuresTotal.WithLabelValues(family, reason).Inc()
	}
}

func profileAsRecord(profile weights.Profile) prediction.WeightProfile {
	out := make(prediction.WeightProfile, prediction.FactorCount)
	for i, name := range prediction.FactorNames {
		out[name] = profile.Vector[i]
	}
	return out
}

func markDiscarded(outputs []prediction.ModelOutput, discarded []string) []prediction.ModelOutput {
	for _, family := range discarded {
		for i := range outputs {
			if outputs[i].Model == family && !outputs[i].Failed {
				outputs[i].Failed = true
				outputs[i].FailReason = "degenerate distribution discarded by ensemble"
			}
		}
	}
	return outputs
}
