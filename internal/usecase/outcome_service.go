package usecase

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/tahminlab/matchcast/internal/domain/fixture"
	"github.com/tahminlab/matchcast/internal/domain/prediction"
	"github.com/tahminlab/matchcast/internal/domain/team"
	"github.com/tahminlab/matchcast/internal/platform/logging"
)

// OutcomeInput reports one finished match.
type OutcomeInput struct {
	HomeTeamID int64
	AwayTeamID int64
	LeagueID   int64
	Season     int
	GoalsHome  int
	GoalsAway  int
	ObservedAt time.Time
}

// AccuracySummary aggregates every ledger accuracy view over one window.
type AccuracySummary struct {
	Since     time.Time                            `json:"since"`
	Rolling   prediction.AccuracyReport            `json:"rolling"`
	PerModel  map[string]prediction.AccuracyReport `json:"per_model"`
	PerBucket []prediction.BucketAccuracy          `json:"per_bucket"`
	PerLeague map[int64]prediction.AccuracyReport  `json:"per_league"`
}

// OutcomeService closes the feedback loop: it attaches observed results to
// the ledger and moves the ratings accordingly.
type OutcomeService struct {
	ledger  prediction.Ledger
	ratings team.RatingStore
	logger  *logging.Logger
}

func NewOutcomeService(ledger prediction.Ledger, ratings team.RatingStore, logger *logging.Logger) *OutcomeService {
	if logger == nil {
		logger = logging.Default()
	}
	return &OutcomeService{ledger: ledger, ratings: ratings, logger: logger}
}

// Ingest records a finished match. Conflicting results for an already
// resolved fixture are rejected; identical re-reports are no-ops and do not
// move ratings twice.
func (s *OutcomeService) Ingest(ctx context.Context, input OutcomeInput) (prediction.Outcome, error) {
	fix := fixture.Fixture{
		HomeTeamID: input.HomeTeamID,
		AwayTeamID: input.AwayTeamID,
		LeagueID:   input.LeagueID,
		Season:     input.Season,
	}
	if err := fix.Validate(); err != nil {
		return prediction.Outcome{}, errors.Mark(err, ErrInvalidInput)
	}
	if input.GoalsHome < 0 || input.GoalsAway < 0 {
		return prediction.Outcome{}, errors.Mark(errors.New("goals cannot be negative"), ErrInvalidInput)
	}

	observedAt := input.ObservedAt
	if observedAt.IsZero() {
		observedAt = time.Now().UTC()
	}

	outcome := prediction.Outcome{
		FixtureRef: fix.Ref(),
		Result:     fixture.ResultFromScore(input.GoalsHome, input.GoalsAway),
		GoalsHome:  input.GoalsHome,
		GoalsAway:  input.GoalsAway,
		ObservedAt: observedAt,
	}

	inserted, err := s.ledger.IngestOutcome(ctx, outcome)
	if err != nil {
		if errors.Is(err, prediction.ErrOutcomeConflict) {
			return prediction.Outcome{}, errors.Mark(err, ErrOutcomeConflict)
		}
		return prediction.Outcome{}, errors.Wrap(err, "ingest outcome")
	}
	if !inserted {
		return outcome, nil
	}

	if s.ratings != nil {
		if err := s.ratings.ApplyResult(ctx, input.HomeTeamID, input.AwayTeamID, input.GoalsHome, input.GoalsAway); err != nil {
			// Ratings drift is recoverable; the outcome itself is recorded.
			s.logger.Error("rating update failed", "fixture_ref", outcome.FixtureRef, "error", err)
		}
	}

	s.logger.Info("outcome recorded",
		"fixture_ref", outcome.FixtureRef,
		"result", outcome.Result,
		"goals_home", outcome.GoalsHome, "goals_away", outcome.GoalsAway)
	return outcome, nil
}

// Accuracy gathers every ledger accuracy view since the given instant.
func (s *OutcomeService) Accuracy(ctx context.Context, since time.Time) (AccuracySummary, error) {
	rolling, err := s.ledger.RollingAccuracy(ctx, since)
	if err != nil {
		return AccuracySummary{}, errors.Wrap(err, "rolling accuracy")
	}
	perModel, err := s.ledger.ModelAccuracy(ctx, since)
	if err != nil {
		return AccuracySummary{}, errors.Wrap(err, "model accuracy")
	}
	perBucket, err := s.ledger.ConfidenceBucketAccuracy(ctx, since)
	if err != nil {
		return AccuracySummary{}, errors.Wrap(err, "confidence bucket accuracy")
	}
	perLeague, err := s.ledger.LeagueAccuracy(ctx, since)
	if err != nil {
		return AccuracySummary{}, errors.Wrap(err, "league accuracy")
	}

	return AccuracySummary{
		Since:     since,
		Rolling:   rolling,
		PerModel:  perModel,
		PerBucket: perBucket,
		PerLeague: perLeague,
	}, nil
}
