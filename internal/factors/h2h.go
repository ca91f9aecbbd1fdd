package factors

import (
	"github.com/tahminlab/matchcast/internal/domain/matchdata"
)

// minMeetings is the smallest head-to-head sample worth a non-neutral signal.
const minMeetings = 3

func (e *Engine) headToHead(b matchdata.Bundle) factorResult {
	var homeWins, awayWins, total int
	for _, m := range b.HeadToHead {
		if !m.KickoffAt.Before(b.AsOf) {
			continue
		}
		if !m.Involves(b.HomeID) || !m.Involves(b.AwayID) {
			continue
		}
		total++
		switch m.Winner() {
		case b.HomeID:
			homeWins++
		case b.AwayID:
			awayWins++
		}
	}

	if total < minMeetings {
		return e.imputed("h2h", "fewer than three past meetings")
	}

	value := float64(homeWins-awayWins) / float64(total)
	return computed(value, "%d-%d in %d meetings (home-away wins)", homeWins, awayWins, total)
}
