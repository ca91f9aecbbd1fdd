package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/tahminlab/matchcast/internal/domain/matchdata"
	"github.com/tahminlab/matchcast/internal/domain/prediction"
	"github.com/tahminlab/matchcast/internal/domain/team"
	"github.com/tahminlab/matchcast/internal/infrastructure/registry"
)

// memLedger is an in-memory prediction.Ledger for service tests.
type memLedger struct {
	mu       sync.Mutex
	records  []prediction.Record
	outcomes map[string]prediction.Outcome

	appendErr error
	rolling   prediction.AccuracyReport
}

func newMemLedger() *memLedger {
	return &memLedger{outcomes: make(map[string]prediction.Outcome)}
}

func (l *memLedger) Append(_ context.Context, rec prediction.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.appendErr != nil {
		return l.appendErr
	}
	l.records = append(l.records, rec)
	return nil
}

func (l *memLedger) IngestOutcome(_ context.Context, out prediction.Outcome) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	existing, ok := l.outcomes[out.FixtureRef]
	if ok {
		if existing.Result == out.Result && existing.GoalsHome == out.GoalsHome && existing.GoalsAway == out.GoalsAway {
			return false, nil
		}
		return false, prediction.ErrOutcomeConflict
	}
	l.outcomes[out.FixtureRef] = out
	return true, nil
}

func (l *memLedger) Get(_ context.Context, id string) (prediction.Record, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, rec := range l.records {
		if rec.ID == id {
			return rec, true, nil
		}
	}
	return prediction.Record{}, false, nil
}

func (l *memLedger) RollingAccuracy(context.Context, time.Time) (prediction.AccuracyReport, error) {
	return l.rolling, nil
}

func (l *memLedger) ModelAccuracy(context.Context, time.Time) (map[string]prediction.AccuracyReport, error) {
	return map[string]prediction.AccuracyReport{}, nil
}

func (l *memLedger) ConfidenceBucketAccuracy(context.Context, time.Time) ([]prediction.BucketAccuracy, error) {
	return nil, nil
}

func (l *memLedger) LeagueAccuracy(context.Context, time.Time) (map[int64]prediction.AccuracyReport, error) {
	return map[int64]prediction.AccuracyReport{}, nil
}

func (l *memLedger) CountOutcomesSince(context.Context, time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.outcomes), nil
}

func (l *memLedger) ListLabeledSince(context.Context, time.Time, int) ([]prediction.LabeledSample, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]prediction.LabeledSample, 0, len(l.records))
	for _, rec := range l.records {
		outcome, ok := l.outcomes[rec.FixtureRef]
		if !ok {
			continue
		}
		out = append(out, prediction.LabeledSample{Record: rec, Outcome: outcome})
	}
	return out, nil
}

func (l *memLedger) recordCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// memCache is an in-memory SlotCache.
type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	saves   int
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string][]byte)}
}

func cacheKeyOf(category string, kwargs map[string]string) string {
	key := category
	for _, name := range []string{"team", "season", "league", "h2h", "fixture"} {
		if v, ok := kwargs[name]; ok {
			key += "|" + name + "=" + v
		}
	}
	return key
}

func (c *memCache) Lookup(_ context.Context, category string, kwargs map[string]string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.entries[cacheKeyOf(category, kwargs)]
	return raw, ok
}

func (c *memCache) Save(_ context.Context, category string, kwargs map[string]string, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKeyOf(category, kwargs)] = payload
	c.saves++
}

// memRatings is a fixed-rating team.RatingStore that counts updates.
type memRatings struct {
	mu      sync.Mutex
	ratings map[int64]float64
	applied int
}

func newMemRatings() *memRatings {
	return &memRatings{ratings: make(map[int64]float64)}
}

func (r *memRatings) Rating(_ context.Context, teamID int64) (team.Rating, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	value, ok := r.ratings[teamID]
	if !ok {
		value = team.DefaultRating
	}
	return team.Rating{Rating: value}, nil
}

func (r *memRatings) ApplyResult(_ context.Context, homeID, awayID int64, goalsHome, goalsAway int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied++
	return nil
}

func (r *memRatings) Snapshot(context.Context) (map[int64]team.Rating, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[int64]team.Rating, len(r.ratings))
	for id, v := range r.ratings {
		out[id] = team.Rating{Rating: v}
	}
	return out, nil
}

// stubScorer returns a fixed distribution or error.
type stubScorer struct {
	dist prediction.Distribution
	err  error
}

func (s stubScorer) Predict(prediction.FactorVector) (prediction.Distribution, error) {
	return s.dist, s.err
}

// stubModels is a ModelProvider and ModelRegistry test double.
type stubModels struct {
	mu      sync.Mutex
	active  map[string]stubScorer
	metas   map[string]registry.ModelMeta
	saved   map[string][]byte
	flipped map[string]string
}

func newStubModels() *stubModels {
	return &stubModels{
		active:  make(map[string]stubScorer),
		metas:   make(map[string]registry.ModelMeta),
		saved:   make(map[string][]byte),
		flipped: make(map[string]string),
	}
}

func (m *stubModels) Active(family string) (registry.Scorer, registry.ModelMeta, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	scorer, ok := m.active[family]
	if !ok {
		return nil, registry.ModelMeta{}, false
	}
	return scorer, m.metas[family], true
}

func (m *stubModels) SaveVersion(_ context.Context, meta registry.ModelMeta, artifact []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[meta.Family+"/"+meta.Version] = artifact
	return nil
}

func (m *stubModels) Activate(_ context.Context, family, version string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flipped[family] = version
	return nil
}

// stubFetcher returns a canned bundle.
type stubFetcher struct {
	bundle matchdata.Bundle
	err    error
}

func (f stubFetcher) Fetch(_ context.Context, req BundleRequest) (matchdata.Bundle, error) {
	if f.err != nil {
		return matchdata.Bundle{}, f.err
	}
	bundle := f.bundle
	bundle.HomeID = req.HomeID
	bundle.AwayID = req.AwayID
	bundle.LeagueID = req.LeagueID
	bundle.Season = req.Season
	bundle.AsOf = req.AsOf
	return bundle, nil
}
