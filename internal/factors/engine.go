// Package factors derives the ordered 17-factor feature vector from a
// fetched match bundle. Computation is pure: identical bundles (including
// the as-of instant) yield bit-identical vectors.
package factors

import (
	"fmt"
	"math"

	"github.com/tahminlab/matchcast/internal/domain/matchdata"
	"github.com/tahminlab/matchcast/internal/domain/prediction"
)

// recentWindow is how many finished matches feed the form-style factors.
const recentWindow = 5

// Engine computes factor vectors. Imputation defaults are configurable per
// factor name; anything unset falls back to the factor's neutral midpoint.
type Engine struct {
	defaults map[string]float64
	derbies  *DerbyList
}

type Option func(*Engine)

// WithImputationDefaults overrides the neutral value used when a factor's
// inputs are missing.
func WithImputationDefaults(defaults map[string]float64) Option {
	return func(e *Engine) {
		for name, v := range defaults {
			e.defaults[name] = v
		}
	}
}

// WithDerbyList replaces the built-in derby pair list.
func WithDerbyList(list *DerbyList) Option {
	return func(e *Engine) {
		e.derbies = list
	}
}

func New(opts ...Option) *Engine {
	e := &Engine{
		defaults: map[string]float64{
			"home_advantage":   0.6,
			"match_importance": 0.5,
		},
		derbies: BuiltinDerbies(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type factorResult struct {
	value   float64
	imputed bool
	detail  string
}

func computed(value float64, format string, args ...any) factorResult {
	return factorResult{value: value, detail: fmt.Sprintf(format, args...)}
}

func (e *Engine) imputed(name, reason string) factorResult {
	return factorResult{value: e.defaults[name], imputed: true, detail: reason}
}

// Compute maps a bundle onto the factor roster. The returned explanations
// are positionally aligned with prediction.FactorNames.
func (e *Engine) Compute(b matchdata.Bundle) (prediction.FactorVector, []prediction.FactorExplanation) {
	results := [prediction.FactorCount]factorResult{
		e.eloDiff(b),
		e.leaguePosition(b),
		e.form(b),
		e.headToHead(b),
		e.homeAdvantage(b),
		e.motivation(b),
		e.fatigue(b),
		e.recentPerformance(b),
		e.injuries(b),
		e.matchImportance(b),
		e.xgPerformance(b),
		e.weather(b),
		e.referee(b),
		e.bettingOdds(b),
		e.tacticalMatchup(b),
		e.transferImpact(b),
		e.squadExperience(b),
	}

	var vector prediction.FactorVector
	explanations := make([]prediction.FactorExplanation, prediction.FactorCount)
	for i, res := range results {
		vector[i] = res.value
		explanations[i] = prediction.FactorExplanation{
			Name:    prediction.FactorNames[i],
			Value:   res.value,
			Imputed: res.imputed,
			Detail:  res.detail,
		}
	}

	return vector, explanations
}

// recentBefore returns up to recentWindow finished matches strictly before
// the as-of instant, newest first.
func recentBefore(matches []matchdata.PastMatch, b matchdata.Bundle) []matchdata.PastMatch {
	out := make([]matchdata.PastMatch, 0, recentWindow)
	for _, m := range matches {
		if !m.KickoffAt.Before(b.AsOf) {
			continue
		}
		out = append(out, m)
		if len(out) == recentWindow {
			break
		}
	}
	return out
}

func clamp(v, low, high float64) float64 {
	return math.Max(low, math.Min(high, v))
}

// points is the league points earned by teamID in one match.
func points(m matchdata.PastMatch, teamID int64) float64 {
	scored, conceded, ok := m.GoalsScoredBy(teamID)
	if !ok {
		return 0
	}
	switch {
	case scored > conceded:
		return 3
	case scored == conceded:
		return 1
	default:
		return 0
	}
}
