package factors

import (
	"time"

	"github.com/tahminlab/matchcast/internal/domain/matchdata"
)

func (e *Engine) form(b matchdata.Bundle) factorResult {
	home := recentBefore(b.Home.Recent, b)
	away := recentBefore(b.Away.Recent, b)
	if len(home) == 0 || len(away) == 0 {
		return e.imputed("form", "recent matches unavailable")
	}

	homePPG := pointsPerGame(home, b.HomeID)
	awayPPG := pointsPerGame(away, b.AwayID)
	// Points per game tops out at 3, so the differential maps onto [-1, 1].
	value := clamp((homePPG-awayPPG)/3, -1, 1)
	return computed(value, "points per game %.2f vs %.2f over last %d", homePPG, awayPPG, recentWindow)
}

func (e *Engine) recentPerformance(b matchdata.Bundle) factorResult {
	home := recentBefore(b.Home.Recent, b)
	away := recentBefore(b.Away.Recent, b)
	if len(home) == 0 || len(away) == 0 {
		return e.imputed("recent_performance", "recent matches unavailable")
	}

	homeGD := goalDifferenceTotal(home, b.HomeID)
	awayGD := goalDifferenceTotal(away, b.AwayID)
	value := clamp(float64(homeGD-awayGD)/10, -1, 1)
	return computed(value, "goal difference %+d vs %+d over last %d", homeGD, awayGD, recentWindow)
}

func (e *Engine) fatigue(b matchdata.Bundle) factorResult {
	homeRest, okHome := restDays(b.Home.Recent, b.AsOf)
	awayRest, okAway := restDays(b.Away.Recent, b.AsOf)
	if !okHome || !okAway {
		return e.imputed("fatigue", "last match date unavailable")
	}

	// A week of extra rest is the full edge; both capped so a winter break
	// does not dominate.
	value := clamp((homeRest-awayRest)/7, -1, 1)
	return computed(value, "rest days %.1f vs %.1f", homeRest, awayRest)
}

func pointsPerGame(matches []matchdata.PastMatch, teamID int64) float64 {
	if len(matches) == 0 {
		return 0
	}
	total := 0.0
	for _, m := range matches {
		total += points(m, teamID)
	}
	return total / float64(len(matches))
}

func goalDifferenceTotal(matches []matchdata.PastMatch, teamID int64) int {
	total := 0
	for _, m := range matches {
		scored, conceded, ok := m.GoalsScoredBy(teamID)
		if !ok {
			continue
		}
		total += scored - conceded
	}
	return total
}

// restDays is the time since the team's most recent finished match, capped
// at two weeks.
func restDays(matches []matchdata.PastMatch, asOf time.Time) (float64, bool) {
	var last time.Time
	for _, m := range matches {
		if m.KickoffAt.Before(asOf) && m.KickoffAt.After(last) {
			last = m.KickoffAt
		}
	}
	if last.IsZero() {
		return 0, false
	}
	days := asOf.Sub(last).Hours() / 24
	if days > 14 {
		days = 14
	}
	return days, true
}
