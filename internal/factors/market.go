package factors

import (
	"github.com/tahminlab/matchcast/internal/domain/matchdata"
)

func (e *Engine) bettingOdds(b matchdata.Bundle) factorResult {
	if b.Odds == nil {
		return e.imputed("betting_odds", "no bookmaker prices")
	}

	total := b.Odds.Home + b.Odds.Draw + b.Odds.Away
	if total <= 0 {
		return e.imputed("betting_odds", "degenerate bookmaker prices")
	}

	// Overround-normalized implied probabilities; the home-away gap is the
	// market's view of the edge.
	homeProb := b.Odds.Home / total
	awayProb := b.Odds.Away / total
	value := clamp(homeProb-awayProb, -1, 1)
	return computed(value, "implied home %.0f%% away %.0f%%", homeProb*100, awayProb*100)
}

func (e *Engine) weather(b matchdata.Bundle) factorResult {
	if b.Weather == nil {
		// Neutral: no penalty when conditions are unknown.
		return factorResult{value: 0, imputed: true, detail: "no weather data"}
	}

	w := b.Weather
	penalty := 0.0
	penalty += clamp(w.PrecipitationMM/10, 0, 1) * 0.5
	penalty += clamp(w.WindKmh/50, 0, 1) * 0.3
	if w.TemperatureC < -5 || w.TemperatureC > 35 {
		penalty += 0.2
	}

	value := -clamp(penalty, 0, 1)
	return computed(value, "precip %.1fmm wind %.0fkm/h temp %.0fC", w.PrecipitationMM, w.WindKmh, w.TemperatureC)
}

// neutralHomeWinRate is the long-run share of home wins across leagues; a
// referee above it historically favors home sides.
const neutralHomeWinRate = 0.45

func (e *Engine) referee(b matchdata.Bundle) factorResult {
	if b.Referee == nil || b.Referee.HomeWinRate <= 0 {
		return e.imputed("referee", "no referee history")
	}

	value := clamp((b.Referee.HomeWinRate-neutralHomeWinRate)/neutralHomeWinRate, -1, 1)
	return computed(value, "%s home win rate %.0f%%", b.Referee.Name, b.Referee.HomeWinRate*100)
}
