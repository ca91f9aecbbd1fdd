package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tahminlab/matchcast/external/footballapi"
)

// stubSource is an in-memory DataSource with per-method failure injection
// and call counting.
type stubSource struct {
	mu      sync.Mutex
	calls   map[string]int
	failing map[string]error

	teams     map[int64]footballapi.TeamInfo
	standings []footballapi.StandingRow
	fixtures  map[int64][]footballapi.FixtureItem
	h2h       []footballapi.FixtureItem
	injuries  map[int64][]footballapi.InjuryItem
	transfers map[int64][]footballapi.TransferItem
	league    []footballapi.FixtureItem
	odds      []footballapi.OddsItem
}

func newStubSource() *stubSource {
	return &stubSource{
		calls:     make(map[string]int),
		failing:   make(map[string]error),
		teams:     make(map[int64]footballapi.TeamInfo),
		fixtures:  make(map[int64][]footballapi.FixtureItem),
		injuries:  make(map[int64][]footballapi.InjuryItem),
		transfers: make(map[int64][]footballapi.TransferItem),
	}
}

func (s *stubSource) record(method string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[method]++
	return s.failing[method]
}

func (s *stubSource) callCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func (s *stubSource) totalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

func (s *stubSource) failAll(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, method := range []string{
		"team_info", "standings", "team_fixtures", "h2h",
		"injuries", "transfers", "league_fixtures", "odds",
	} {
		s.failing[method] = err
	}
}

func (s *stubSource) TeamInfo(_ context.Context, teamID int64) (footballapi.TeamInfo, bool, error) {
	if err := s.record("team_info"); err != nil {
		return footballapi.TeamInfo{}, false, err
	}
	info, ok := s.teams[teamID]
	return info, ok, nil
}

func (s *stubSource) Standings(context.Context, int64, int) ([]footballapi.StandingRow, error) {
	if err := s.record("standings"); err != nil {
		return nil, err
	}
	return s.standings, nil
}

func (s *stubSource) TeamFixtures(_ context.Context, teamID int64, _ int) ([]footballapi.FixtureItem, error) {
	if err := s.record("team_fixtures"); err != nil {
		return nil, err
	}
	return s.fixtures[teamID], nil
}

func (s *stubSource) HeadToHead(context.Context, int64, int64, int) ([]footballapi.FixtureItem, error) {
	if err := s.record("h2h"); err != nil {
		return nil, err
	}
	return s.h2h, nil
}

func (s *stubSource) Injuries(_ context.Context, teamID int64, _ int) ([]footballapi.InjuryItem, error) {
	if err := s.record("injuries"); err != nil {
		return nil, err
	}
	return s.injuries[teamID], nil
}

func (s *stubSource) Transfers(_ context.Context, teamID int64) ([]footballapi.TransferItem, error) {
	if err := s.record("transfers"); err != nil {
		return nil, err
	}
	return s.transfers[teamID], nil
}

func (s *stubSource) LeagueFixtures(context.Context, int64, int) ([]footballapi.FixtureItem, error) {
	if err := s.record("league_fixtures"); err != nil {
		return nil, err
	}
	return s.league, nil
}

func (s *stubSource) Odds(context.Context, int64) ([]footballapi.OddsItem, error) {
	if err := s.record("odds"); err != nil {
		return nil, err
	}
	return s.odds, nil
}

func teamInfoOf(id int64, name, country string) footballapi.TeamInfo {
	var info footballapi.TeamInfo
	info.Team.ID = id
	info.Team.Name = name
	info.Team.Country = country
	info.Team.Founded = 1905
	info.Venue.Capacity = 52000
	return info
}

func standingRowOf(rank int, teamID int64, points, played int) footballapi.StandingRow {
	var row footballapi.StandingRow
	row.Rank = rank
	row.Team.ID = teamID
	row.Points = points
	row.Form = "WWDWL"
	row.All.Played = played
	row.All.Win = points / 3
	row.All.Goals.For = 20
	row.All.Goals.Against = 10
	return row
}

func finishedFixture(id int64, date string, homeID, awayID int64, goalsHome, goalsAway int) footballapi.FixtureItem {
	var f footballapi.FixtureItem
	f.Fixture.ID = id
	f.Fixture.Date = date
	f.Fixture.Status.Short = "FT"
	f.League.ID = 203
	f.Teams.Home.ID = homeID
	f.Teams.Away.ID = awayID
	f.Goals.Home = &goalsHome
	f.Goals.Away = &goalsAway
	return f
}

func upcomingFixtureItem(id int64, date string, homeID, awayID int64) footballapi.FixtureItem {
	var f footballapi.FixtureItem
	f.Fixture.ID = id
	f.Fixture.Date = date
	f.Fixture.Status.Short = "NS"
	f.League.ID = 203
	f.Teams.Home.ID = homeID
	f.Teams.Away.ID = awayID
	return f
}

func injuryOf(playerID int64, name string) footballapi.InjuryItem {
	var item footballapi.InjuryItem
	item.Player.ID = playerID
	item.Player.Name = name
	item.Player.Type = "Missing Fixture"
	item.Player.Reason = "Knee Injury"
	return item
}

// Anonymous nested slices make literal construction unwieldy, so transfer
// and odds payloads decode from provider-shaped JSON instead.
func transferHistory(t *testing.T, playerID int64, date string, inID, outID int64) footballapi.TransferItem {
	t.Helper()
	raw := fmt.Sprintf(`{"player":{"id":%d},"transfers":[{"date":%q,"type":"Loan","teams":{"in":{"id":%d},"out":{"id":%d}}}]}`,
		playerID, date, inID, outID)
	var item footballapi.TransferItem
	require.NoError(t, sonic.Unmarshal([]byte(raw), &item))
	return item
}

func matchWinnerOdds(t *testing.T, home, draw, away string) []footballapi.OddsItem {
	t.Helper()
	raw := fmt.Sprintf(`[{"bookmakers":[{"name":"book","bets":[{"name":"Match Winner","values":[`+
		`{"value":"Home","odd":%q},{"value":"Draw","odd":%q},{"value":"Away","odd":%q}]}]}]}]`,
		home, draw, away)
	var items []footballapi.OddsItem
	require.NoError(t, sonic.Unmarshal([]byte(raw), &items))
	return items
}

func populatedSource(t *testing.T) *stubSource {
	t.Helper()
	source := newStubSource()
	source.teams[645] = teamInfoOf(645, "Galatasaray", "Turkey")
	source.teams[1005] = teamInfoOf(1005, "Kayserispor", "Turkey")
	source.standings = []footballapi.StandingRow{
		standingRowOf(1, 645, 30, 12),
		standingRowOf(14, 1005, 11, 12),
	}
	source.fixtures[645] = []footballapi.FixtureItem{
		finishedFixture(9001, "2025-08-10T17:00:00Z", 645, 998, 3, 0),
		finishedFixture(9002, "2025-08-03T17:00:00Z", 549, 645, 1, 1),
	}
	source.fixtures[1005] = []footballapi.FixtureItem{
		finishedFixture(9003, "2025-08-09T14:00:00Z", 1005, 611, 0, 2),
	}
	source.h2h = []footballapi.FixtureItem{
		finishedFixture(8001, "2025-03-02T17:00:00Z", 645, 1005, 2, 0),
		finishedFixture(8002, "2024-10-20T14:00:00Z", 1005, 645, 1, 3),
	}
	source.injuries[1005] = []footballapi.InjuryItem{injuryOf(501, "M. Bennacer")}
	source.transfers[645] = []footballapi.TransferItem{
		transferHistory(t, 700, "2025-07-15", 645, 496),
	}
	source.league = []footballapi.FixtureItem{
		finishedFixture(9001, "2025-08-10T17:00:00Z", 645, 998, 3, 0),
		upcomingFixtureItem(9100, "2025-08-24T17:00:00Z", 645, 1005),
	}
	source.odds = matchWinnerOdds(t, "1.45", "4.50", "7.00")
	return source
}

func fetchRequest() BundleRequest {
	return BundleRequest{
		HomeID:   645,
		AwayID:   1005,
		LeagueID: 203,
		Season:   2025,
		AsOf:     time.Date(2025, 8, 20, 12, 0, 0, 0, time.UTC),
	}
}

func newFetchService(source DataSource, cache SlotCache) *FetchService {
	ratings := newMemRatings()
	ratings.ratings[645] = 1612
	ratings.ratings[1005] = 1433
	cfg := FetchConfig{
		Parallelism:    4,
		SlotTimeout:    time.Second,
		SlotRetries:    2,
		BackoffInitial: time.Millisecond,
	}
	return NewFetchService(source, cache, ratings, cfg, nil, nil)
}

func TestFetch_AssemblesBundle(t *testing.T) {
	source := populatedSource(t)
	service := newFetchService(source, newMemCache())

	bundle, err := service.Fetch(context.Background(), fetchRequest())
	require.NoError(t, err)

	assert.True(t, bundle.Complete(), "no slot should be missing: %v", bundle.Missing)
	assert.Equal(t, "Galatasaray", bundle.Home.Name)
	assert.Equal(t, "Kayserispor", bundle.Away.Name)

	require.NotNil(t, bundle.Home.Standing)
	require.NotNil(t, bundle.Away.Standing)
	assert.Equal(t, 1, bundle.Home.Standing.Rank)
	assert.Equal(t, 14, bundle.Away.Standing.Rank)
	assert.Equal(t, 2, bundle.Home.Standing.TableSize)

	require.Len(t, bundle.Home.Recent, 2)
	assert.Equal(t, int64(9001), bundle.Home.Recent[0].FixtureID)
	require.Len(t, bundle.Away.Recent, 1)
	require.Len(t, bundle.HeadToHead, 2)

	require.Len(t, bundle.Away.Injuries, 1)
	assert.Equal(t, "M. Bennacer", bundle.Away.Injuries[0].PlayerName)
	assert.Empty(t, bundle.Home.Injuries)

	require.Len(t, bundle.Home.Transfers, 1)
	assert.True(t, bundle.Home.Transfers[0].Incoming)

	require.NotNil(t, bundle.Odds)
	assert.InDelta(t, 1.0/1.45, bundle.Odds.Home, 1e-9)
	assert.InDelta(t, 1.0/4.50, bundle.Odds.Draw, 1e-9)
	assert.InDelta(t, 1.0/7.00, bundle.Odds.Away, 1e-9)
	assert.Equal(t, time.Date(2025, 8, 24, 17, 0, 0, 0, time.UTC), bundle.KickoffAt)

	assert.InDelta(t, 1612, bundle.Home.Rating, 1e-9)
	assert.InDelta(t, 1433, bundle.Away.Rating, 1e-9)
}

func TestFetch_CacheServesRepeatRequests(t *testing.T) {
	source := populatedSource(t)
	cache := newMemCache()
	service := newFetchService(source, cache)

	first, err := service.Fetch(context.Background(), fetchRequest())
	require.NoError(t, err)
	callsAfterFirst := source.totalCalls()
	assert.Positive(t, callsAfterFirst)

	second, err := service.Fetch(context.Background(), fetchRequest())
	require.NoError(t, err)

	assert.Equal(t, callsAfterFirst, source.totalCalls(),
		"a repeat fetch must be answered entirely from cache")
	assert.Equal(t, first.Home.Standing, second.Home.Standing)
	assert.Equal(t, first.HeadToHead, second.HeadToHead)
	assert.Equal(t, first.Odds, second.Odds)
}

func TestFetch_FailedSlotRecordedNotFatal(t *testing.T) {
	source := populatedSource(t)
	source.failing["injuries"] = errors.New("provider 500")
	service := newFetchService(source, newMemCache())

	bundle, err := service.Fetch(context.Background(), fetchRequest())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"home_injuries", "away_injuries"}, bundle.Missing)
	assert.NotNil(t, bundle.Home.Standing)
	assert.NotNil(t, bundle.Odds)
	// Non-transient provider errors must not be retried.
	assert.Equal(t, 2, source.callCount("injuries"))
}

func TestFetch_AllSlotsFailedIsFatal(t *testing.T) {
	source := newStubSource()
	source.failAll(errors.New("provider down"))
	service := newFetchService(source, newMemCache())

	bundle, err := service.Fetch(context.Background(), fetchRequest())
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Len(t, bundle.Missing, 11)
}

func TestFetch_EmptyProviderDataIsNotFailure(t *testing.T) {
	source := newStubSource()
	source.teams[645] = teamInfoOf(645, "Galatasaray", "Turkey")
	source.teams[1005] = teamInfoOf(1005, "Kayserispor", "Turkey")
	service := newFetchService(source, newMemCache())

	bundle, err := service.Fetch(context.Background(), fetchRequest())
	require.NoError(t, err)

	assert.True(t, bundle.Complete())
	assert.Nil(t, bundle.Home.Standing)
	assert.Empty(t, bundle.Home.Recent)
	assert.Empty(t, bundle.HeadToHead)
	// No upcoming meeting in the calendar means the odds phase is skipped
	// entirely rather than reported missing.
	assert.Nil(t, bundle.Odds)
	assert.Equal(t, 0, source.callCount("odds"))
}
