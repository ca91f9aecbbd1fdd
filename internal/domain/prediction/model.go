package prediction

import (
	"fmt"
	"math"
	"time"
)

// FactorCount is the width of the feature vector shared by training and
// serving. The order in FactorNames is part of the inference contract; a
// loaded model whose declared order disagrees is rejected.
const FactorCount = 17

// FactorNames is the authoritative factor order.
var FactorNames = [FactorCount]string{
	"elo_diff",
	"league_position",
	"form",
	"h2h",
	"home_advantage",
	"motivation",
	"fatigue",
	"recent_performance",
	"injuries",
	"match_importance",
	"xg_performance",
	"weather",
	"referee",
	"betting_odds",
	"tactical_matchup",
	"transfer_impact",
	"squad_experience",
}

// FactorIndex maps a factor name to its slot, or -1.
func FactorIndex(name string) int {
	for i, n := range FactorNames {
		if n == name {
			return i
		}
	}
	return -1
}

// FactorVector is the ordered 17-tuple of normalized factor values.
type FactorVector [FactorCount]float64

// Factor explanations travel beside the vector into the ledger only; models
// never see them.
type FactorExplanation struct {
	Name    string  `json:"name"`
	Value   float64 `json:"value"`
	Imputed bool    `json:"imputed,omitempty"`
	Detail  string  `json:"detail,omitempty"`
}

// Labels of the output distribution, in order.
var LabelOrder = [3]string{"home_win", "draw", "away_win"}

// Distribution is a point on the 3-simplex over {home win, draw, away win}.
type Distribution [3]float64

func (d Distribution) Home() float64 { return d[0] }
func (d Distribution) Draw() float64 { return d[1] }
func (d Distribution) Away() float64 { return d[2] }

func (d Distribution) Sum() float64 {
	return d[0] + d[1] + d[2]
}

// Valid reports whether d is a usable simplex point: finite, non-negative
// entries summing to one within tolerance.
func (d Distribution) Valid() bool {
	for _, v := range d {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return false
		}
	}
	return math.Abs(d.Sum()-1.0) <= 1e-6
}

// ArgMax returns the index of the most likely class.
func (d Distribution) ArgMax() int {
	best := 0
	for i := 1; i < len(d); i++ {
		if d[i] > d[best] {
			best = i
		}
	}
	return best
}

// Confidence is the maximum entry.
func (d Distribution) Confidence() float64 {
	return d[d.ArgMax()]
}

// ResultCode maps the argmax class onto the H/D/A result codes.
func (d Distribution) ResultCode() string {
	return ResultCodeOf(d.ArgMax())
}

// ResultCodeOf maps a class index onto the H/D/A result codes.
func ResultCodeOf(class int) string {
	switch class {
	case 0:
		return "H"
	case 2:
		return "A"
	default:
		return "D"
	}
}

// Normalize rescales non-negative entries to sum to one. A degenerate input
// falls back to uniform.
func (d Distribution) Normalize() Distribution {
	sum := 0.0
	for _, v := range d {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return Distribution{1.0 / 3, 1.0 / 3, 1.0 / 3}
		}
		sum += v
	}
	if sum <= 0 {
		return Distribution{1.0 / 3, 1.0 / 3, 1.0 / 3}
	}
	return Distribution{d[0] / sum, d[1] / sum, d[2] / sum}
}

// WeightProfile multiplies factors before the rule-based scorer combines
// them. ML models never see it.
type WeightProfile map[string]float64

// Vector expands the profile into factor order; missing names default to 1.
func (p WeightProfile) Vector() [FactorCount]float64 {
	var out [FactorCount]float64
	for i, name := range FactorNames {
		out[i] = 1.0
		if p == nil {
			continue
		}
		if w, ok := p[name]; ok && w > 0 {
			out[i] = w
		}
	}
	return out
}

// Compose applies overlay on top of p by pointwise multiplication. Keys
// absent from the overlay inherit p's value.
func (p WeightProfile) Compose(overlay WeightProfile) WeightProfile {
	out := make(WeightProfile, len(p)+len(overlay))
	for name, w := range p {
		out[name] = w
	}
	for name, w := range overlay {
		if w <= 0 {
			continue
		}
		if base, ok := out[name]; ok {
			out[name] = base * w
		} else {
			out[name] = w
		}
	}
	return out
}

// ModelOutput is one predictor's contribution to the ensemble.
type ModelOutput struct {
	Model        string       `json:"model"`
	Version      string       `json:"version,omitempty"`
	Distribution Distribution `json:"distribution"`
	Confidence   float64      `json:"confidence"`
	Failed       bool         `json:"failed,omitempty"`
	FailReason   string       `json:"fail_reason,omitempty"`
}

// Record is one persisted prediction. Append-only.
type Record struct {
	ID             string
	FixtureRef     string
	LeagueID       int64
	Season         int
	AsOf           time.Time
	Factors        FactorVector
	Explanations   []FactorExplanation
	WeightProfile  WeightProfile
	MatchType      string
	ModelOutputs   []ModelOutput
	EnsembleMethod string
	Final          Distribution
	Predicted      string
	Confidence     float64
	ModelVersions  map[string]string
	Partial        bool
	CreatedAt      time.Time
}

// Outcome is the observed result attached to a fixture. Written once; a
// conflicting rewrite is rejected.
type Outcome struct {
	FixtureRef string
	Result     string
	GoalsHome  int
	GoalsAway  int
	ObservedAt time.Time
}

func (o Outcome) Validate() error {
	switch o.Result {
	case "H", "D", "A":
	default:
		return fmt.Errorf("invalid result code %q", o.Result)
	}
	if o.GoalsHome < 0 || o.GoalsAway < 0 {
		return fmt.Errorf("goals cannot be negative")
	}
	return nil
}
