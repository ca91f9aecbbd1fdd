package factors

import (
	"github.com/tahminlab/matchcast/internal/domain/matchdata"
)

// xgPerformance approximates expected-goals overperformance from recent
// scoring rates. True shot-quality data is not in the fetch bundle, so the
// proxy compares each side's attacking output against what it concedes.
func (e *Engine) xgPerformance(b matchdata.Bundle) factorResult {
	home := recentBefore(b.Home.Recent, b)
	away := recentBefore(b.Away.Recent, b)
	if len(home) == 0 || len(away) == 0 {
		return e.imputed("xg_performance", "recent matches unavailable")
	}

	homeRate := scoringBalance(home, b.HomeID)
	awayRate := scoringBalance(away, b.AwayID)
	value := clamp((homeRate-awayRate)/3, -1, 1)
	return computed(value, "scoring balance per game %.2f vs %.2f over last %d",
		homeRate, awayRate, recentWindow)
}

// scoringBalance is goals scored minus conceded per game.
func scoringBalance(matches []matchdata.PastMatch, teamID int64) float64 {
	if len(matches) == 0 {
		return 0
	}
	total := 0
	for _, m := range matches {
		scored, conceded, ok := m.GoalsScoredBy(teamID)
		if !ok {
			continue
		}
		total += scored - conceded
	}
	return float64(total) / float64(len(matches))
}
