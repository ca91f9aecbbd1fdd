package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cenkalti/backoff/v4"
	"github.com/sourcegraph/conc/pool"

	"github.com/tahminlab/matchcast/external/footballapi"
	"github.com/tahminlab/matchcast/internal/domain/matchdata"
	"github.com/tahminlab/matchcast/internal/domain/team"
	"github.com/tahminlab/matchcast/internal/observability"
	"github.com/tahminlab/matchcast/internal/platform/logging"
)

// recentFixtureCount is how many past matches are pulled per team.
const recentFixtureCount = 10

// h2hFixtureCount bounds the head-to-head history request.
const h2hFixtureCount = 10

// DataSource is the slice of the statistics provider the fetcher consumes.
type DataSource interface {
	TeamInfo(ctx context.Context, teamID int64) (footballapi.TeamInfo, bool, error)
	Standings(ctx context.Context, leagueID int64, season int) ([]footballapi.StandingRow, error)
	TeamFixtures(ctx context.Context, teamID int64, last int) ([]footballapi.FixtureItem, error)
	HeadToHead(ctx context.Context, homeID, awayID int64, last int) ([]footballapi.FixtureItem, error)
	Injuries(ctx context.Context, teamID int64, season int) ([]footballapi.InjuryItem, error)
	Transfers(ctx context.Context, teamID int64) ([]footballapi.TransferItem, error)
	LeagueFixtures(ctx context.Context, leagueID int64, season int) ([]footballapi.FixtureItem, error)
	Odds(ctx context.Context, fixtureID int64) ([]footballapi.OddsItem, error)
}

// SlotCache is the write-through cache in front of every fetch slot.
type SlotCache interface {
	Lookup(ctx context.Context, category string, kwargs map[string]string) ([]byte, bool)
	Save(ctx context.Context, category string, kwargs map[string]string, payload []byte)
}

// BundleRequest identifies the matchup to assemble data for.
type BundleRequest struct {
	HomeID   int64
	AwayID   int64
	LeagueID int64
	Season   int
	AsOf     time.Time
}

// FetchConfig tunes the fan-out behavior.
type FetchConfig struct {
	Parallelism    int
	SlotTimeout    time.Duration
	SlotRetries    int
	BackoffInitial time.Duration
}

// FetchService assembles the analysis bundle for a fixture: a bounded
// fan-out of provider calls, each behind the fingerprint cache, plus local
// rating lookups. Failed slots are recorded on the bundle instead of
// failing the whole fetch.
type FetchService struct {
	source  DataSource
	cache   SlotCache
	ratings team.RatingStore
	cfg     FetchConfig
	logger  *logging.Logger
	metrics *observability.Metrics
}

func NewFetchService(source DataSource, cache SlotCache, ratings team.RatingStore,
	cfg FetchConfig, logger *logging.Logger, metrics *observability.Metrics) *FetchService {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Parallelism < 1 {
		cfg.Parallelism = 8
	}
	if cfg.SlotTimeout <= 0 {
		cfg.SlotTimeout = 10 * time.Second
	}
	return &FetchService{
		source:  source,
		cache:   cache,
		ratings: ratings,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
	}
}

// Fetch resolves every slot, successful or not, before returning. The
// returned bundle lists failed slots in Missing; only a fetch where no slot
// succeeded is reported as an error. A canceled context aborts outstanding
// slots and discards partial results.
func (s *FetchService) Fetch(ctx context.Context, req BundleRequest) (matchdata.Bundle, error) {
	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	bundle := matchdata.Bundle{
		HomeID:   req.HomeID,
		AwayID:   req.AwayID,
		LeagueID: req.LeagueID,
		Season:   req.Season,
		AsOf:     asOf,
		Home:     matchdata.TeamSnapshot{TeamID: req.HomeID},
		Away:     matchdata.TeamSnapshot{TeamID: req.AwayID},
	}

	var mu sync.Mutex
	succeeded := 0
	attempted := 0

	p := pool.New().WithContext(ctx).WithMaxGoroutines(s.cfg.Parallelism)
	slot := func(name string, run func(ctx context.Context) error) {
		attempted++
		p.Go(func(ctx context.Context) error {
			start := time.Now()
			err := run(ctx)

			mu.Lock()
			if err != nil {
				bundle.Missing = append(bundle.Missing, name)
			} else {
				succeeded++
			}
			mu.Unlock()

			if s.metrics != nil {
				result := "ok"
				if err != nil {
					result = "error"
				}
				s.metrics.RecordFetchSlot(name, result, time.Since(start).Seconds())
			}
			if err != nil {
				s.logger.Warn("fetch slot failed", "slot", name, "error", err)
			}
			// Slot failures never cancel sibling slots.
			return nil
		})
	}

	teamKw := func(id int64) map[string]string {
		return map[string]string{"team": fmt.Sprintf("%d", id), "season": fmt.Sprintf("%d", req.Season)}
	}

	slot("home_team_info", func(ctx context.Context) error {
		info, err := fetchCached(ctx, s, "team_info", map[string]string{"team": fmt.Sprintf("%d", req.HomeID)},
			func(ctx context.Context) (footballapi.TeamInfo, error) {
				info, _, err := s.source.TeamInfo(ctx, req.HomeID)
				return info, err
			})
		if err != nil {
			return err
		}
		mu.Lock()
		applyTeamInfo(&bundle.Home, info)
		mu.Unlock()
		return nil
	})
	slot("away_team_info", func(ctx context.Context) error {
		info, err := fetchCached(ctx, s, "team_info", map[string]string{"team": fmt.Sprintf("%d", req.AwayID)},
			func(ctx context.Context) (footballapi.TeamInfo, error) {
				info, _, err := s.source.TeamInfo(ctx, req.AwayID)
				return info, err
			})
		if err != nil {
			return err
		}
		mu.Lock()
		applyTeamInfo(&bundle.Away, info)
		mu.Unlock()
		return nil
	})

	slot("standings", func(ctx context.Context) error {
		kwargs := map[string]string{"league": fmt.Sprintf("%d", req.LeagueID), "season": fmt.Sprintf("%d", req.Season)}
		rows, err := fetchCached(ctx, s, "standings", kwargs,
			func(ctx context.Context) ([]footballapi.StandingRow, error) {
				return s.source.Standings(ctx, req.LeagueID, req.Season)
			})
		if err != nil {
			return err
		}
		mu.Lock()
		bundle.Home.Standing = standingFor(rows, req.HomeID)
		bundle.Away.Standing = standingFor(rows, req.AwayID)
		mu.Unlock()
		return nil
	})

	slot("home_fixtures", func(ctx context.Context) error {
		items, err := fetchCached(ctx, s, "fixtures", teamKw(req.HomeID),
			func(ctx context.Context) ([]footballapi.FixtureItem, error) {
				return s.source.TeamFixtures(ctx, req.HomeID, recentFixtureCount)
			})
		if err != nil {
			return err
		}
		mu.Lock()
		bundle.Home.Recent = pastMatches(items)
		mu.Unlock()
		return nil
	})
	slot("away_fixtures", func(ctx context.Context) error {
		items, err := fetchCached(ctx, s, "fixtures", teamKw(req.AwayID),
			func(ctx context.Context) ([]footballapi.FixtureItem, error) {
				return s.source.TeamFixtures(ctx, req.AwayID, recentFixtureCount)
			})
		if err != nil {
			return err
		}
		mu.Lock()
		bundle.Away.Recent = pastMatches(items)
		mu.Unlock()
		return nil
	})

	slot("home_injuries", func(ctx context.Context) error {
		items, err := fetchCached(ctx, s, "injuries", teamKw(req.HomeID),
			func(ctx context.Context) ([]footballapi.InjuryItem, error) {
				return s.source.Injuries(ctx, req.HomeID, req.Season)
			})
		if err != nil {
			return err
		}
		mu.Lock()
		bundle.Home.Injuries = injuries(items)
		mu.Unlock()
		return nil
	})
	slot("away_injuries", func(ctx context.Context) error {
		items, err := fetchCached(ctx, s, "injuries", teamKw(req.AwayID),
			func(ctx context.Context) ([]footballapi.InjuryItem, error) {
				return s.source.Injuries(ctx, req.AwayID, req.Season)
			})
		if err != nil {
			return err
		}
		mu.Lock()
		bundle.Away.Injuries = injuries(items)
		mu.Unlock()
		return nil
	})

	slot("home_transfers", func(ctx context.Context) error {
		items, err := fetchCached(ctx, s, "transfers", map[string]string{"team": fmt.Sprintf("%d", req.HomeID)},
			func(ctx context.Context) ([]footballapi.TransferItem, error) {
				return s.source.Transfers(ctx, req.HomeID)
			})
		if err != nil {
			return err
		}
		mu.Lock()
		bundle.Home.Transfers = transfers(items, req.HomeID)
		mu.Unlock()
		return nil
	})
	slot("away_transfers", func(ctx context.Context) error {
		items, err := fetchCached(ctx, s, "transfers", map[string]string{"team": fmt.Sprintf("%d", req.AwayID)},
			func(ctx context.Context) ([]footballapi.TransferItem, error) {
				return s.source.Transfers(ctx, req.AwayID)
			})
		if err != nil {
			return err
		}
		mu.Lock()
		bundle.Away.Transfers = transfers(items, req.AwayID)
		mu.Unlock()
		return nil
	})

	slot("h2h", func(ctx context.Context) error {
		kwargs := map[string]string{"h2h": fmt.Sprintf("%d-%d", req.HomeID, req.AwayID)}
		items, err := fetchCached(ctx, s, "h2h", kwargs,
			func(ctx context.Context) ([]footballapi.FixtureItem, error) {
				return s.source.HeadToHead(ctx, req.HomeID, req.AwayID, h2hFixtureCount)
			})
		if err != nil {
			return err
		}
		mu.Lock()
		bundle.HeadToHead = pastMatches(items)
		mu.Unlock()
		return nil
	})

	var leagueItems []footballapi.FixtureItem
	slot("league_fixtures", func(ctx context.Context) error {
		kwargs := map[string]string{"league": fmt.Sprintf("%d", req.LeagueID), "season": fmt.Sprintf("%d", req.Season)}
		items, err := fetchCached(ctx, s, "league_fixtures", kwargs,
			func(ctx context.Context) ([]footballapi.FixtureItem, error) {
				return s.source.LeagueFixtures(ctx, req.LeagueID, req.Season)
			})
		if err != nil {
			return err
		}
		mu.Lock()
		leagueItems = items
		bundle.LeagueFixtures = pastMatches(items)
		mu.Unlock()
		return nil
	})

	if err := p.Wait(); err != nil {
		// Only context failure reaches here; slot errors stay on the bundle.
		return matchdata.Bundle{}, err
	}

	// Bookmaker odds need the upcoming fixture id, which the league fixture
	// list provides, so they resolve in a second phase.
	if fixtureID, kickoff, ok := upcomingFixture(leagueItems, req.HomeID, req.AwayID, asOf); ok {
		bundle.KickoffAt = kickoff
		items, err := fetchCached(ctx, s, "odds", map[string]string{"fixture": fmt.Sprintf("%d", fixtureID)},
			func(ctx context.Context) ([]footballapi.OddsItem, error) {
				return s.source.Odds(ctx, fixtureID)
			})
		result := "ok"
		if err != nil {
			result = "error"
			bundle.Missing = append(bundle.Missing, "odds")
			s.logger.Warn("fetch slot failed", "slot", "odds", "error", err)
		} else {
			bundle.Odds = matchOdds(items)
			succeeded++
		}
		if s.metrics != nil {
			s.metrics.RecordFetchSlot("odds", result, 0)
		}
	}

	if succeeded == 0 {
		return bundle, fmt.Errorf("%w: all %d fetch slots failed", ErrUpstreamUnavailable, attempted)
	}

	s.attachRatings(ctx, &bundle)
	return bundle, nil
}

// attachRatings is best effort: a missing rating falls back to the baseline
// rather than failing the fetch.
func (s *FetchService) attachRatings(ctx context.Context, bundle *matchdata.Bundle) {
	if s.ratings == nil {
		return
	}
	for _, side := range []*matchdata.TeamSnapshot{&bundle.Home, &bundle.Away} {
		rating, err := s.ratings.Rating(ctx, side.TeamID)
		if err != nil {
			s.logger.Warn("rating lookup failed, using baseline", "team_id", side.TeamID, "error", err)
			side.Rating = team.DefaultRating
			continue
		}
		side.Rating = rating.Rating
	}
}

// fetchCached runs one slot: cache lookup, provider call with per-slot
// timeout and retry on transient failures, write-through on success.
func fetchCached[T any](ctx context.Context, s *FetchService, category string,
	kwargs map[string]string, fetch func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if s.cache != nil {
		if raw, ok := s.cache.Lookup(ctx, category, kwargs); ok {
			var cached T
			if err := sonic.Unmarshal(raw, &cached); err == nil {
				return cached, nil
			}
			s.logger.Warn("discarding undecodable cache entry", "category", category)
		}
	}

	var value T
	operation := func() error {
		slotCtx, cancel := context.WithTimeout(ctx, s.cfg.SlotTimeout)
		defer cancel()

		fetched, err := fetch(slotCtx)
		if err != nil {
			if footballapi.IsTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		value = fetched
		return nil
	}

	strategy := backoff.NewExponentialBackOff()
	if s.cfg.BackoffInitial > 0 {
		strategy.InitialInterval = s.cfg.BackoffInitial
	}
	err := backoff.Retry(operation,
		backoff.WithContext(backoff.WithMaxRetries(strategy, uint64(s.cfg.SlotRetries)), ctx))
	if err != nil {
		return zero, err
	}

	if s.cache != nil {
		if raw, err := sonic.Marshal(value); err == nil {
			s.cache.Save(ctx, category, kwargs, raw)
		}
	}
	return value, nil
}
