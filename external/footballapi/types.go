package footballapi

// Provider payloads arrive wrapped in a "response" array. An empty array is
// a valid answer meaning the provider has no data for the query.

type teamsEnvelope struct {
	Response []TeamInfo `json:"response"`
}

type standingsEnvelope struct {
	Response []struct {
		League struct {
			ID        int64           `json:"id"`
			Season    int             `json:"season"`
			Standings [][]StandingRow `json:"standings"`
		} `json:"league"`
	} `json:"response"`
}

type fixturesEnvelope struct {
	Response []FixtureItem `json:"response"`
}

type injuriesEnvelope struct {
	Response []InjuryItem `json:"response"`
}

type transfersEnvelope struct {
	Response []TransferItem `json:"response"`
}

type oddsEnvelope struct {
	Response []OddsItem `json:"response"`
}

// TeamInfo describes one team plus its home venue.
type TeamInfo struct {
	Team struct {
		ID      int64  `json:"id"`
		Name    string `json:"name"`
		Country string `json:"country"`
		Founded int    `json:"founded"`
	} `json:"team"`
	Venue struct {
		Name     string `json:"name"`
		City     string `json:"city"`
		Capacity int    `json:"capacity"`
	} `json:"venue"`
}

// StandingRow is one row of a league table.
type StandingRow struct {
	Rank int `json:"rank"`
	Team struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"team"`
	Points    int    `json:"points"`
	GoalsDiff int    `json:"goalsDiff"`
	Form      string `json:"form"`
	All       struct {
		Played int `json:"played"`
		Win    int `json:"win"`
		Draw   int `json:"draw"`
		Lose   int `json:"lose"`
		Goals  struct {
			For     int `json:"for"`
			Against int `json:"against"`
		} `json:"goals"`
	} `json:"all"`
}

// FixtureItem is one fixture row, past or upcoming.
type FixtureItem struct {
	Fixture struct {
		ID     int64  `json:"id"`
		Date   string `json:"date"`
		Status struct {
			Short string `json:"short"`
		} `json:"status"`
	} `json:"fixture"`
	League struct {
		ID     int64  `json:"id"`
		Season int    `json:"season"`
		Round  string `json:"round"`
	} `json:"league"`
	Teams struct {
		Home FixtureTeam `json:"home"`
		Away FixtureTeam `json:"away"`
	} `json:"teams"`
	Goals struct {
		Home *int `json:"home"`
		Away *int `json:"away"`
	} `json:"goals"`
}

type FixtureTeam struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Winner *bool  `json:"winner"`
}

// Finished reports whether the fixture has a final result.
func (f FixtureItem) Finished() bool {
	switch f.Fixture.Status.Short {
	case "FT", "AET", "PEN":
		return true
	default:
		return false
	}
}

// InjuryItem is one player unavailable for a team.
type InjuryItem struct {
	Player struct {
		ID     int64  `json:"id"`
		Name   string `json:"name"`
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"player"`
	Team struct {
		ID int64 `json:"id"`
	} `json:"team"`
}

// TransferItem is a player's transfer history entry.
type TransferItem struct {
	Player struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"player"`
	Transfers []struct {
		Date  string `json:"date"`
		Type  string `json:"type"`
		Teams struct {
			In struct {
				ID int64 `json:"id"`
			} `json:"in"`
			Out struct {
				ID int64 `json:"id"`
			} `json:"out"`
		} `json:"teams"`
	} `json:"transfers"`
}

// OddsItem carries bookmaker prices for one fixture.
type OddsItem struct {
	Bookmakers []struct {
		Name string `json:"name"`
		Bets []struct {
			Name   string `json:"name"`
			Values []struct {
				Value string `json:"value"`
				Odd   string `json:"odd"`
			} `json:"values"`
		} `json:"bets"`
	} `json:"bookmakers"`
}
