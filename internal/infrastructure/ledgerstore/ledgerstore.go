// Package ledgerstore keeps the append-only prediction ledger in SQLite.
// Predictions are never updated in place; outcomes attach to fixtures once
// and conflicting re-ingestion is rejected.
package ledgerstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/tahminlab/matchcast/internal/domain/prediction"
	"github.com/tahminlab/matchcast/internal/platform/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS predictions (
	id              TEXT PRIMARY KEY,
	fixture_ref     TEXT NOT NULL,
	league_id       INTEGER NOT NULL,
	season          INTEGER NOT NULL,
	as_of           INTEGER NOT NULL,
	match_type      TEXT NOT NULL,
	ensemble_method TEXT NOT NULL,
	predicted       TEXT NOT NULL,
	prob_home       REAL NOT NULL,
	prob_draw       REAL NOT NULL,
	prob_away       REAL NOT NULL,
	confidence      REAL NOT NULL,
	partial         INTEGER NOT NULL,
	detail          BLOB NOT NULL,
	created_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_predictions_fixture ON predictions (fixture_ref);
CREATE INDEX IF NOT EXISTS idx_predictions_created ON predictions (created_at);

CREATE TABLE IF NOT EXISTS model_predictions (
	prediction_id TEXT NOT NULL,
	fixture_ref   TEXT NOT NULL,
	family        TEXT NOT NULL,
	version       TEXT NOT NULL,
	predicted     TEXT NOT NULL,
	confidence    REAL NOT NULL,
	failed        INTEGER NOT NULL,
	created_at    INTEGER NOT NULL,
	PRIMARY KEY (prediction_id, family)
);
CREATE INDEX IF NOT EXISTS idx_model_predictions_fixture ON model_predictions (fixture_ref);

CREATE TABLE IF NOT EXISTS outcomes (
	fixture_ref TEXT PRIMARY KEY,
	result      TEXT NOT NULL,
	goals_home  INTEGER NOT NULL,
	goals_away  INTEGER NOT NULL,
	observed_at INTEGER NOT NULL
);`

type Store struct {
	db     *sqlx.DB
	logger *logging.Logger
}

var _ prediction.Ledger = (*Store)(nil)

// Open opens (creating if needed) the ledger database at path.
func Open(path string, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.Default()
	}

	db, err := sqlx.Connect("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply ledger schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Append(ctx context.Context, rec prediction.Record) error {
	if rec.ID == "" || rec.FixtureRef == "" {
		return fmt.Errorf("prediction record requires id and fixture ref")
	}

	detail, err := sonic.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode prediction detail: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx append prediction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	predicted := rec.Predicted
	if predicted == "" {
		predicted = rec.Final.ResultCode()
	}

	createdAt := rec.CreatedAt.UTC().Unix()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO predictions
			(id, fixture_ref, league_id, season, as_of, match_type, ensemble_method,
			 predicted, prob_home, prob_draw, prob_away, confidence, partial, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.FixtureRef, rec.LeagueID, rec.Season, rec.AsOf.UTC().Unix(),
		rec.MatchType, rec.EnsembleMethod, predicted,
		rec.Final.Home(), rec.Final.Draw(), rec.Final.Away(),
		rec.Confidence, boolToInt(rec.Partial), detail, createdAt)
	if err != nil {
		return fmt.Errorf("append prediction: %w", err)
	}

	for _, out := range rec.ModelOutputs {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO model_predictions
				(prediction_id, fixture_ref, family, version, predicted, confidence, failed, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.FixtureRef, out.Model, out.Version,
			out.Distribution.ResultCode(), out.Confidence, boolToInt(out.Failed), createdAt)
		if err != nil {
			return fmt.Errorf("append model prediction family=%s: %w", out.Model, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append prediction: %w", err)
	}

	return nil
}

// IngestOutcome records the observed result, reporting whether it was new.
// An identical re-ingest is a no-op; a differing one is rejected. The insert
// takes the conflict path instead of check-then-insert so concurrent first
// ingests of one fixture cannot both land or surface a constraint error.
func (s *Store) IngestOutcome(ctx context.Context, out prediction.Outcome) (bool, error) {
	if err := out.Validate(); err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO outcomes (fixture_ref, result, goals_home, goals_away, observed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (fixture_ref) DO NOTHING`,
		out.FixtureRef, out.Result, out.GoalsHome, out.GoalsAway, out.ObservedAt.UTC().Unix())
	if err != nil {
		return false, fmt.Errorf("ingest outcome: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected ingest outcome: %w", err)
	}
	if inserted == 1 {
		return true, nil
	}

	var existing struct {
		Result    string `db:"result"`
		GoalsHome int    `db:"goals_home"`
		GoalsAway int    `db:"goals_away"`
	}
	err = s.db.GetContext(ctx, &existing,
		`SELECT result, goals_home, goals_away FROM outcomes WHERE fixture_ref = ?`, out.FixtureRef)
	if err != nil {
		return false, fmt.Errorf("read existing outcome: %w", err)
	}
	if existing.Result == out.Result && existing.GoalsHome == out.GoalsHome && existing.GoalsAway == out.GoalsAway {
		return false, nil
	}
	return false, fmt.Errorf("%w: fixture %s already resolved %s %d-%d",
		prediction.ErrOutcomeConflict, out.FixtureRef, existing.Result, existing.GoalsHome, existing.GoalsAway)
}

func (s *Store) Get(ctx context.Context, id string) (prediction.Record, bool, error) {
	var detail []byte
	err := s.db.GetContext(ctx, &detail, `SELECT detail FROM predictions WHERE id = ?`, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return prediction.Record{}, false, nil
	case err != nil:
		return prediction.Record{}, false, fmt.Errorf("get prediction: %w", err)
	}

	var rec prediction.Record
	if err := sonic.Unmarshal(detail, &rec); err != nil {
		return prediction.Record{}, false, fmt.Errorf("decode prediction detail: %w", err)
	}

	return rec, true, nil
}

func (s *Store) RollingAccuracy(ctx context.Context, since time.Time) (prediction.AccuracyReport, error) {
	var row struct {
		Total   int `db:"total"`
		Correct int `db:"correct"`
	}
	err := s.db.GetContext(ctx, &row, `
		SELECT COUNT(*) AS total,
		       COALESCE(SUM(CASE WHEN p.predicted = o.result THEN 1 ELSE 0 END), 0) AS correct
		FROM predictions p
		JOIN outcomes o ON o.fixture_ref = p.fixture_ref
		WHERE p.created_at >= ?`, since.UTC().Unix())
	if err != nil {
		return prediction.AccuracyReport{}, fmt.Errorf("rolling accuracy: %w", err)
	}

	return report(row.Total, row.Correct), nil
}

func (s *Store) ModelAccuracy(ctx context.Context, since time.Time) (map[string]prediction.AccuracyReport, error) {
	var rows []struct {
		Family  string `db:"family"`
		Total   int    `db:"total"`
		Correct int    `db:"correct"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT m.family AS family,
		       COUNT(*) AS total,
		       SUM(CASE WHEN m.predicted = o.result THEN 1 ELSE 0 END) AS correct
		FROM model_predictions m
		JOIN outcomes o ON o.fixture_ref = m.fixture_ref
		WHERE m.created_at >= ? AND m.failed = 0
		GROUP BY m.family`, since.UTC().Unix())
	if err != nil {
		return nil, fmt.Errorf("model accuracy: %w", err)
	}

	out := make(map[string]prediction.AccuracyReport, len(rows))
	for _, row := range rows {
		out[row.Family] = report(row.Total, row.Correct)
	}
	return out, nil
}

// Confidence bands follow the reporting buckets used for calibration review.
var confidenceBuckets = []struct {
	Name string
	Low  float64
	High float64
}{
	{"low", 0, 0.4},
	{"medium", 0.4, 0.55},
	{"high", 0.55, 0.7},
	{"very_high", 0.7, 1.01},
}

func (s *Store) ConfidenceBucketAccuracy(ctx context.Context, since time.Time) ([]prediction.BucketAccuracy, error) {
	out := make([]prediction.BucketAccuracy, 0, len(confidenceBuckets))
	for _, bucket := range confidenceBuckets {
		var row struct {
			Total   int `db:"total"`
			Correct int `db:"correct"`
		}
		err := s.db.GetContext(ctx, &row, `
			SELECT COUNT(*) AS total,
			       COALESCE(SUM(CASE WHEN p.predicted = o.result THEN 1 ELSE 0 END), 0) AS correct
			FROM predictions p
			JOIN outcomes o ON o.fixture_ref = p.fixture_ref
			WHERE p.created_at >= ? AND p.confidence >= ? AND p.confidence < ?`,
			since.UTC().Unix(), bucket.Low, bucket.High)
		if err != nil {
			return nil, fmt.Errorf("bucket accuracy %s: %w", bucket.Name, err)
		}
		out = append(out, prediction.BucketAccuracy{
			Bucket:         bucket.Name,
			AccuracyReport: report(row.Total, row.Correct),
		})
	}
	return out, nil
}

func (s *Store) LeagueAccuracy(ctx context.Context, since time.Time) (map[int64]prediction.AccuracyReport, error) {
	var rows []struct {
		LeagueID int64 `db:"league_id"`
		Total    int   `db:"total"`
		Correct  int   `db:"correct"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT p.league_id AS league_id,
		       COUNT(*) AS total,
		       SUM(CASE WHEN p.predicted = o.result THEN 1 ELSE 0 END) AS correct
		FROM predictions p
		JOIN outcomes o ON o.fixture_ref = p.fixture_ref
		WHERE p.created_at >= ?
		GROUP BY p.league_id`, since.UTC().Unix())
	if err != nil {
		return nil, fmt.Errorf("league accuracy: %w", err)
	}

	out := make(map[int64]prediction.AccuracyReport, len(rows))
	for _, row := range rows {
		out[row.LeagueID] = report(row.Total, row.Correct)
	}
	return out, nil
}

func (s *Store) CountOutcomesSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM outcomes WHERE observed_at >= ?`, since.UTC().Unix())
	if err != nil {
		return 0, fmt.Errorf("count outcomes: %w", err)
	}
	return count, nil
}

func (s *Store) ListLabeledSince(ctx context.Context, since time.Time, limit int) ([]prediction.LabeledSample, error) {
	if limit <= 0 {
		limit = 10000
	}

	var rows []struct {
		Detail     []byte `db:"detail"`
		Result     string `db:"result"`
		GoalsHome  int    `db:"goals_home"`
		GoalsAway  int    `db:"goals_away"`
		ObservedAt int64  `db:"observed_at"`
		FixtureRef string `db:"fixture_ref"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT p.detail AS detail, p.fixture_ref AS fixture_ref,
		       o.result AS result, o.goals_home AS goals_home,
		       o.goals_away AS goals_away, o.observed_at AS observed_at
		FROM predictions p
		JOIN outcomes o ON o.fixture_ref = p.fixture_ref
		WHERE p.created_at >= ?
		ORDER BY p.created_at ASC
		LIMIT ?`, since.UTC().Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("list labeled samples: %w", err)
	}

	out := make([]prediction.LabeledSample, 0, len(rows))
	for _, row := range rows {
		var rec prediction.Record
		if err := sonic.Unmarshal(row.Detail, &rec); err != nil {
			s.logger.Warn("skip undecodable ledger row", "fixture_ref", row.FixtureRef, "error", err)
			continue
		}
		out = append(out, prediction.LabeledSample{
			Record: rec,
			Outcome: prediction.Outcome{
				FixtureRef: row.FixtureRef,
				Result:     row.Result,
				GoalsHome:  row.GoalsHome,
				GoalsAway:  row.GoalsAway,
				ObservedAt: time.Unix(row.ObservedAt, 0).UTC(),
			},
		})
	}

	return out, nil
}

func report(total, correct int) prediction.AccuracyReport {
	out := prediction.AccuracyReport{Total: total, Correct: correct}
	if total > 0 {
		out.Accuracy = float64(correct) / float64(total)
	}
	return out
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
