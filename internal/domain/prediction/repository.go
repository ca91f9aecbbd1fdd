package prediction

import (
	"context"
	"errors"
	"time"
)

// ErrOutcomeConflict is returned when an ingested outcome disagrees with one
// already on record for the same fixture.
var ErrOutcomeConflict = errors.New("conflicting outcome for fixture")

// AccuracyReport summarizes resolved predictions over some slice of the
// ledger.
type AccuracyReport struct {
	Total    int     `json:"total"`
	Correct  int     `json:"correct"`
	Accuracy float64 `json:"accuracy"`
}

// BucketAccuracy groups resolved predictions by confidence band.
type BucketAccuracy struct {
	Bucket string `json:"bucket"`
	AccuracyReport
}

// LabeledSample is one prediction joined with its observed outcome, used to
// rebuild training sets.
type LabeledSample struct {
	Record  Record
	Outcome Outcome
}

// Ledger is the append-only prediction/outcome store.
type Ledger interface {
	// Append persists one prediction record. Records are never updated.
	Append(ctx context.Context, rec Record) error

	// IngestOutcome attaches an observed result to a fixture, reporting
	// whether the outcome was newly recorded. Re-ingesting
	// an identical outcome is a no-op; a conflicting one is rejected.
	IngestOutcome(ctx context.Context, out Outcome) (bool, error)

	Get(ctx context.Context, id string) (Record, bool, error)

	// RollingAccuracy covers resolved predictions created at or after since.
	RollingAccuracy(ctx context.Context, since time.Time) (AccuracyReport, error)
	ModelAccuracy(ctx context.Context, since time.Time) (map[string]AccuracyReport, error)
	ConfidenceBucketAccuracy(ctx context.Context, since time.Time) ([]BucketAccuracy, error)
	LeagueAccuracy(ctx context.Context, since time.Time) (map[int64]AccuracyReport, error)

	// CountOutcomesSince reports how many labeled outcomes arrived after the
	// given instant. Feeds the volume retrain trigger.
	CountOutcomesSince(ctx context.Context, since time.Time) (int, error)

	// ListLabeledSince returns prediction/outcome pairs for retraining,
	// oldest first.
	ListLabeledSince(ctx context.Context, since time.Time, limit int) ([]LabeledSample, error)
}
