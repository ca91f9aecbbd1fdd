package factors

import (
	"github.com/tahminlab/matchcast/internal/domain/matchdata"
)

// DerbyList recognizes fixtures between historic rivals by team id pair.
type DerbyList struct {
	pairs map[[2]int64]struct{}
}

func NewDerbyList(pairs [][2]int64) *DerbyList {
	list := &DerbyList{pairs: make(map[[2]int64]struct{}, len(pairs)*2)}
	for _, pair := range pairs {
		list.pairs[[2]int64{pair[0], pair[1]}] = struct{}{}
		list.pairs[[2]int64{pair[1], pair[0]}] = struct{}{}
	}
	return list
}

func (l *DerbyList) IsDerby(homeID, awayID int64) bool {
	if l == nil {
		return false
	}
	_, ok := l.pairs[[2]int64{homeID, awayID}]
	return ok
}

// BuiltinDerbies covers the fixtures the service is most often asked about.
// Beşiktaş appears under both provider ids, 549 and 641; upstream data uses
// either depending on endpoint vintage, so both stay on the list.
func BuiltinDerbies() *DerbyList {
	return NewDerbyList([][2]int64{
		{645, 611}, // Galatasaray - Fenerbahçe
		{645, 549}, // Galatasaray - Beşiktaş
		{645, 641},
		{611, 549}, // Fenerbahçe - Beşiktaş
		{611, 641},
		{998, 611}, // Trabzonspor - Fenerbahçe
		{529, 541}, // Barcelona - Real Madrid
		{33, 40},   // Manchester United - Liverpool
		{489, 505}, // Milan - Inter
	})
}

// stake scores how much a team has riding on the match from its table
// position: title race, European spots, or relegation danger.
func stake(standing *matchdata.Standing) float64 {
	if standing == nil {
		return 0
	}
	size := standing.TableSize
	if size < 8 {
		size = 20
	}
	switch {
	case standing.Rank <= 3:
		return 0.5
	case standing.Rank <= 6:
		return 0.3
	case standing.Rank >= size-3:
		return 0.6
	default:
		return 0
	}
}

func (e *Engine) motivation(b matchdata.Bundle) factorResult {
	if b.Home.Standing == nil && b.Away.Standing == nil && !e.derbies.IsDerby(b.HomeID, b.AwayID) {
		return e.imputed("motivation", "standings unavailable")
	}

	value := clamp(stake(b.Home.Standing)-stake(b.Away.Standing), -1, 1)
	if e.derbies.IsDerby(b.HomeID, b.AwayID) {
		// Derbies lift both sides; the slight home tilt reflects crowd
		// pressure in rivalry games.
		value = clamp(value+0.1, -1, 1)
		return computed(value, "derby fixture, stakes %+.2f", value)
	}
	return computed(value, "table stakes home vs away %+.2f", value)
}

func (e *Engine) matchImportance(b matchdata.Bundle) factorResult {
	home, away := b.Home.Standing, b.Away.Standing
	if home == nil || away == nil {
		if e.derbies.IsDerby(b.HomeID, b.AwayID) {
			return computed(0.9, "derby fixture")
		}
		return e.imputed("match_importance", "standings unavailable")
	}

	importance := 0.5
	if e.derbies.IsDerby(b.HomeID, b.AwayID) {
		importance = 0.9
	}
	importance += (stake(home) + stake(away)) * 0.25

	// Close points make the meeting matter more; two mid-table sides with
	// nothing at stake matter less.
	pointGap := home.Points - away.Points
	if pointGap < 0 {
		pointGap = -pointGap
	}
	if pointGap <= 3 {
		importance += 0.1
	}
	if stake(home) == 0 && stake(away) == 0 && !e.derbies.IsDerby(b.HomeID, b.AwayID) {
		importance -= 0.15
	}

	value := clamp(importance, 0, 1)
	return computed(value, "stakes home %.2f away %.2f, point gap %d", stake(home), stake(away), pointGap)
}
