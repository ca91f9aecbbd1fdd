package factors

import (
	"github.com/tahminlab/matchcast/internal/domain/matchdata"
)

// eloScale maps a 400-point rating gap onto the full factor range.
const eloScale = 400.0

func (e *Engine) eloDiff(b matchdata.Bundle) factorResult {
	if b.Home.Rating == 0 || b.Away.Rating == 0 {
		return e.imputed("elo_diff", "rating missing for at least one team")
	}
	diff := b.Home.Rating - b.Away.Rating
	return computed(clamp(diff/eloScale, -1, 1),
		"rating gap %.0f (home %.0f, away %.0f)", diff, b.Home.Rating, b.Away.Rating)
}

func (e *Engine) leaguePosition(b matchdata.Bundle) factorResult {
	home, away := b.Home.Standing, b.Away.Standing
	if home == nil || away == nil {
		return e.imputed("league_position", "standings unavailable")
	}
	size := home.TableSize
	if size < 2 {
		size = 20
	}
	// Lower rank is better, so a home team above the away team scores
	// positive.
	value := clamp(float64(away.Rank-home.Rank)/float64(size-1), -1, 1)
	return computed(value, "home rank %d vs away rank %d of %d", home.Rank, away.Rank, size)
}

func (e *Engine) homeAdvantage(b matchdata.Bundle) factorResult {
	recent := recentBefore(b.Home.Recent, b)

	var homeGames, homeWins float64
	for _, m := range recent {
		if m.HomeTeamID != b.HomeID {
			continue
		}
		homeGames++
		if m.Winner() == b.HomeID {
			homeWins++
		}
	}
	if homeGames == 0 {
		return e.imputed("home_advantage", "no recent home matches, using league baseline")
	}
	return computed(homeWins/homeGames,
		"won %.0f of last %.0f home matches", homeWins, homeGames)
}
