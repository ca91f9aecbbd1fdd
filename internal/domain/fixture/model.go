package fixture

import (
	"fmt"
	"time"
)

// Result codes for a finished match, seen from the home side.
const (
	ResultHome = "H"
	ResultDraw = "D"
	ResultAway = "A"
)

// Fixture identifies one scheduled match. Fixtures are immutable once observed.
type Fixture struct {
	HomeTeamID int64
	AwayTeamID int64
	LeagueID   int64
	Season     int
	KickoffAt  time.Time
}

// Ref builds the stable reference string used to join predictions and outcomes.
func (f Fixture) Ref() string {
	return fmt.Sprintf("%d-%d-%d-%d", f.LeagueID, f.Season, f.HomeTeamID, f.AwayTeamID)
}

func (f Fixture) Validate() error {
	if f.HomeTeamID <= 0 || f.AwayTeamID <= 0 {
		return fmt.Errorf("team ids must be greater than zero")
	}
	if f.HomeTeamID == f.AwayTeamID {
		return fmt.Errorf("home and away team must differ")
	}
	if f.LeagueID <= 0 {
		return fmt.Errorf("league id must be greater than zero")
	}
	return nil
}

// ResultFromScore maps a final score to a result code.
func ResultFromScore(goalsHome, goalsAway int) string {
	switch {
	case goalsHome > goalsAway:
		return ResultHome
	case goalsHome < goalsAway:
		return ResultAway
	default:
		return ResultDraw
	}
}

func ValidResult(code string) bool {
	switch code {
	case ResultHome, ResultDraw, ResultAway:
		return true
	default:
		return false
	}
}
