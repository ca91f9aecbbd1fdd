// Package weights resolves the per-factor multiplier profile applied by the
// rule-based scorer. Profiles compose three layers by pointwise
// multiplication: a base of all ones, a league overlay, and a match-type
// overlay. The boosted models never see these multipliers.
package weights

import (
	"fmt"
	"sync"

	"github.com/tahminlab/matchcast/internal/domain/matchdata"
	"github.com/tahminlab/matchcast/internal/domain/prediction"
)

// MatchType classifies a fixture for overlay selection.
type MatchType string

const (
	MatchTypeDerby      MatchType = "derby"
	MatchTypeTitleRace  MatchType = "title_race"
	MatchTypeRelegation MatchType = "relegation"
	MatchTypeMidTable   MatchType = "mid_table"
	MatchTypeUnknown    MatchType = "unknown"
)

// Overlay is a sparse set of per-factor multipliers. Factors an overlay does
// not name inherit the prior layer's value unchanged.
type Overlay map[string]float64

// Vector is the dense multiplier vector aligned with prediction.FactorNames.
type Vector [prediction.FactorCount]float64

// Profile is a resolved multiplier vector plus the reference string stored
// alongside each ledger record.
type Profile struct {
	Ref    string `json:"ref"`
	Vector Vector `json:"vector"`
}

// Apply scales a factor vector by the profile.
func (p Profile) Apply(v prediction.FactorVector) prediction.FactorVector {
	var out prediction.FactorVector
	for i := range v {
		out[i] = v[i] * p.Vector[i]
	}
	return out
}

func baseVector() Vector {
	var v Vector
	for i := range v {
		v[i] = 1.0
	}
	return v
}

func (v Vector) apply(overlay Overlay) Vector {
	for name, mult := range overlay {
		if idx := prediction.FactorIndex(name); idx >= 0 {
			v[idx] *= mult
		}
	}
	return v
}

// builtinLeagueOverlays tilt the rule scorer per competition. Keys are the
// provider league ids.
func builtinLeagueOverlays() map[int64]Overlay {
	return map[int64]Overlay{
		// Süper Lig: passionate crowds and travel distances amplify the
		// home factors.
		203: {
			"home_advantage": 1.2,
			"motivation":     1.1,
			"referee":        1.1,
		},
		// Premier League: dense fixture lists make rotation and rest
		// matter more than table stakes.
		39: {
			"fatigue":          1.2,
			"match_importance": 0.9,
		},
		// La Liga: technical sides, matchup style counts.
		140: {
			"tactical_matchup": 1.2,
		},
	}
}

func builtinMatchTypeOverlays() map[MatchType]Overlay {
	return map[MatchType]Overlay{
		MatchTypeDerby: {
			"motivation":     1.5,
			"h2h":            1.3,
			"home_advantage": 1.1,
		},
		MatchTypeTitleRace: {
			"match_importance": 1.4,
			"form":             1.2,
			"motivation":       1.2,
		},
		MatchTypeRelegation: {
			"motivation":       1.3,
			"match_importance": 1.3,
			"fatigue":          1.1,
		},
		MatchTypeMidTable: {},
	}
}

// DetectMatchType classifies a fixture from both standings and the derby
// pair list. Derby rivalry outranks table context; without standings the
// result is unknown. The top and bottom bands scale with table size rather
// than assuming twenty teams.
func DetectMatchType(home, away *matchdata.Standing, derby bool) MatchType {
	if derby {
		return MatchTypeDerby
	}
	if home == nil || away == nil {
		return MatchTypeUnknown
	}

	size := home.TableSize
	if size < 8 {
		size = 20
	}
	topBand := 4 * size / 20
	if topBand < 2 {
		topBand = 2
	}
	bottomStart := size - topBand

	if home.Rank <= topBand && away.Rank <= topBand {
		return MatchTypeTitleRace
	}
	if home.Rank > bottomStart || away.Rank > bottomStart {
		return MatchTypeRelegation
	}
	return MatchTypeMidTable
}

type cacheKey struct {
	leagueID  int64
	matchType MatchType
}

// Resolver composes and caches weight profiles by (league, match type).
type Resolver struct {
	leagues    map[int64]Overlay
	matchTypes map[MatchType]Overlay

	mu    sync.RWMutex
	cache map[cacheKey]Profile
}

type ResolverOption func(*Resolver)

// WithLeagueOverlay registers or replaces a league overlay.
func WithLeagueOverlay(leagueID int64, overlay Overlay) ResolverOption {
	return func(r *Resolver) {
		r.leagues[leagueID] = overlay
	}
}

// WithMatchTypeOverlay registers or replaces a match-type overlay.
func WithMatchTypeOverlay(matchType MatchType, overlay Overlay) ResolverOption {
	return func(r *Resolver) {
		r.matchTypes[matchType] = overlay
	}
}

func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		leagues:    builtinLeagueOverlays(),
		matchTypes: builtinMatchTypeOverlays(),
		cache:      make(map[cacheKey]Profile),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the composed profile for a league and match type. Unknown
// match types resolve as mid table; leagues without an overlay keep the base
// layer.
func (r *Resolver) Resolve(leagueID int64, matchType MatchType) Profile {
	if matchType == MatchTypeUnknown || matchType == "" {
		matchType = MatchTypeMidTable
	}
	key := cacheKey{leagueID: leagueID, matchType: matchType}

	r.mu.RLock()
	profile, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return profile
	}

	vector := baseVector()
	if overlay, ok := r.leagues[leagueID]; ok {
		vector = vector.apply(overlay)
	}
	if overlay, ok := r.matchTypes[matchType]; ok {
		vector = vector.apply(overlay)
	}
	profile = Profile{
		Ref:    fmt.Sprintf("league:%d/%s", leagueID, matchType),
		Vector: vector,
	}

	r.mu.Lock()
	r.cache[key] = profile
	r.mu.Unlock()
	return profile
}
