// Package matchdata holds the provider-agnostic snapshot of everything known
// about a fixture at analysis time. The upstream client maps provider
// payloads into these types; the factor engine consumes them.
package matchdata

import "time"

// Standing is one team's league-table row.
type Standing struct {
	Rank         int    `json:"rank"`
	Points       int    `json:"points"`
	Played       int    `json:"played"`
	Wins         int    `json:"wins"`
	Draws        int    `json:"draws"`
	Losses       int    `json:"losses"`
	GoalsFor     int    `json:"goals_for"`
	GoalsAgainst int    `json:"goals_against"`
	Form         string `json:"form"`
	TableSize    int    `json:"table_size"`
}

// PastMatch is one finished fixture.
type PastMatch struct {
	FixtureID  int64     `json:"fixture_id"`
	LeagueID   int64     `json:"league_id"`
	HomeTeamID int64     `json:"home_team_id"`
	AwayTeamID int64     `json:"away_team_id"`
	GoalsHome  int       `json:"goals_home"`
	GoalsAway  int       `json:"goals_away"`
	KickoffAt  time.Time `json:"kickoff_at"`
}

// Winner returns the winning team id, 0 for a draw.
func (m PastMatch) Winner() int64 {
	switch {
	case m.GoalsHome > m.GoalsAway:
		return m.HomeTeamID
	case m.GoalsAway > m.GoalsHome:
		return m.AwayTeamID
	default:
		return 0
	}
}

// Involves reports whether teamID played in the match.
func (m PastMatch) Involves(teamID int64) bool {
	return m.HomeTeamID == teamID || m.AwayTeamID == teamID
}

// GoalsScoredBy returns goals for teamID, goals against it, and whether the
// team took part at all.
func (m PastMatch) GoalsScoredBy(teamID int64) (scored, conceded int, ok bool) {
	switch teamID {
	case m.HomeTeamID:
		return m.GoalsHome, m.GoalsAway, true
	case m.AwayTeamID:
		return m.GoalsAway, m.GoalsHome, true
	default:
		return 0, 0, false
	}
}

// Injury is one unavailable player.
type Injury struct {
	PlayerID   int64  `json:"player_id"`
	PlayerName string `json:"player_name"`
	Type       string `json:"type"`
	Reason     string `json:"reason"`
}

// Transfer is one squad movement.
type Transfer struct {
	PlayerID int64     `json:"player_id"`
	Date     time.Time `json:"date"`
	Incoming bool      `json:"incoming"`
}

// TeamSnapshot aggregates everything fetched for one side of a fixture.
type TeamSnapshot struct {
	TeamID        int64       `json:"team_id"`
	Name          string      `json:"name"`
	Country       string      `json:"country"`
	Founded       int         `json:"founded"`
	VenueCapacity int         `json:"venue_capacity"`
	Rating        float64     `json:"rating"`
	Standing      *Standing   `json:"standing,omitempty"`
	Recent        []PastMatch `json:"recent,omitempty"`
	Injuries      []Injury    `json:"injuries,omitempty"`
	Transfers     []Transfer  `json:"transfers,omitempty"`
}

// MatchOdds is the bookmaker consensus as implied 1X2 probabilities.
type MatchOdds struct {
	Home float64 `json:"home"`
	Draw float64 `json:"draw"`
	Away float64 `json:"away"`
}

// Weather at the venue around kickoff.
type Weather struct {
	TemperatureC    float64 `json:"temperature_c"`
	PrecipitationMM float64 `json:"precipitation_mm"`
	WindKmh         float64 `json:"wind_kmh"`
}

// Referee history for the appointed official.
type Referee struct {
	Name        string  `json:"name"`
	HomeWinRate float64 `json:"home_win_rate"`
}

// Bundle is the full analysis input for one fixture at one instant. Missing
// lists the fetch slots that produced no data; factor computation imputes
// neutral values for whatever they would have fed.
type Bundle struct {
	HomeID    int64     `json:"home_id"`
	AwayID    int64     `json:"away_id"`
	LeagueID  int64     `json:"league_id"`
	Season    int       `json:"season"`
	KickoffAt time.Time `json:"kickoff_at"`
	AsOf      time.Time `json:"as_of"`

	Home TeamSnapshot `json:"home"`
	Away TeamSnapshot `json:"away"`

	HeadToHead     []PastMatch `json:"head_to_head,omitempty"`
	LeagueFixtures []PastMatch `json:"league_fixtures,omitempty"`
	Odds           *MatchOdds  `json:"odds,omitempty"`
	Weather        *Weather    `json:"weather,omitempty"`
	Referee        *Referee    `json:"referee,omitempty"`

	Missing []string `json:"missing,omitempty"`
}

// Complete reports whether every fetch slot delivered.
func (b Bundle) Complete() bool {
	return len(b.Missing) == 0
}
