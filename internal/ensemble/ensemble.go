// Package ensemble fuses the per-model outcome distributions into the final
// prediction under one of three policies.
package ensemble

import (
	"sort"

	"github.com/cockroachdb/errors"

	"github.com/tahminlab/matchcast/internal/domain/prediction"
	"github.com/tahminlab/matchcast/internal/platform/logging"
)

// Method selects the fusion policy.
type Method string

const (
	MethodVoting    Method = "voting"
	MethodAveraging Method = "averaging"
	MethodWeighted  Method = "weighted"
)

// ValidMethod reports whether m names a known fusion policy.
func ValidMethod(m Method) bool {
	switch m {
	case MethodVoting, MethodAveraging, MethodWeighted:
		return true
	}
	return false
}

// Input is one predictor's contribution, tagged by model family.
type Input struct {
	Family string
	Dist   prediction.Distribution
}

// Result is the fused distribution plus which inputs had to be discarded.
// Winner is the predicted class; it matches Dist's argmax except on a voting
// tie, which the summed probability mass decides without touching Dist.
type Result struct {
	Method     Method
	Dist       prediction.Distribution
	Winner     int
	Confidence float64
	Used       []string
	Discarded  []string
}

// ErrNoUsableInputs means every predictor output was degenerate.
var ErrNoUsableInputs = errors.New("no usable predictor outputs")

// Fuser combines predictor distributions. Weights apply only to the
// weighted policy and are renormalized over the families actually present.
type Fuser struct {
	weights map[string]float64
	logger  *logging.Logger
}

func New(weights map[string]float64, logger *logging.Logger) *Fuser {
	if logger == nil {
		logger = logging.Default()
	}
	return &Fuser{weights: weights, logger: logger}
}

// Fuse applies the policy over the valid inputs. Inputs whose distribution
// is not a simplex point are dropped with a warning; the survivors carry the
// full fusion mass.
func (f *Fuser) Fuse(method Method, inputs []Input) (Result, error) {
	if !ValidMethod(method) {
		return Result{}, errors.Newf("unknown ensemble method %q", method)
	}

	usable := make([]Input, 0, len(inputs))
	result := Result{Method: method}
	for _, in := range inputs {
		if !in.Dist.Valid() {
			f.logger.Warn("discarding degenerate predictor output",
				"family", in.Family, "dist", in.Dist)
			result.Discarded = append(result.Discarded, in.Family)
			continue
		}
		usable = append(usable, in)
		result.Used = append(result.Used, in.Family)
	}
	if len(usable) == 0 {
		return Result{}, ErrNoUsableInputs
	}

	var dist prediction.Distribution
	var winner int
	switch method {
	case MethodVoting:
		dist, winner = fuseVoting(usable)
	case MethodAveraging:
		dist = fuseAveraging(usable)
		winner = dist.ArgMax()
	case MethodWeighted:
		dist = f.fuseWeighted(usable)
		winner = dist.ArgMax()
	}

	result.Dist = dist
	result.Winner = winner
	result.Confidence = dist[winner]
	return result, nil
}

// fuseVoting lets each predictor cast one vote for its argmax class. The
// fused distribution is the normalized tallies; a tied vote goes to the
// class with the larger summed probability mass across voters, leaving the
// distribution itself untouched.
func fuseVoting(inputs []Input) (prediction.Distribution, int) {
	var votes, mass prediction.Distribution
	for _, in := range inputs {
		votes[in.Dist.ArgMax()]++
		for i, p := range in.Dist {
			mass[i] += p
		}
	}

	classes := []int{0, 1, 2}
	sort.Slice(classes, func(a, b int) bool {
		if votes[classes[a]] != votes[classes[b]] {
			return votes[classes[a]] > votes[classes[b]]
		}
		return mass[classes[a]] > mass[classes[b]]
	})

	return votes.Normalize(), classes[0]
}

func fuseAveraging(inputs []Input) prediction.Distribution {
	var dist prediction.Distribution
	for _, in := range inputs {
		for i, p := range in.Dist {
			dist[i] += p
		}
	}
	for i := range dist {
		dist[i] /= float64(len(inputs))
	}
	return dist
}

// fuseWeighted blends by configured family weight, renormalized over the
// families present. Families without a configured weight fall back to the
// mean of the configured ones so a new model still participates.
func (f *Fuser) fuseWeighted(inputs []Input) prediction.Distribution {
	fallback := 0.0
	if len(f.weights) > 0 {
		total := 0.0
		for _, w := range f.weights {
			total += w
		}
		fallback = total / float64(len(f.weights))
	}
	if fallback == 0 {
		fallback = 1.0
	}

	weights := make([]float64, len(inputs))
	sum := 0.0
	for i, in := range inputs {
		w, ok := f.weights[in.Family]
		if !ok {
			w = fallback
		}
		weights[i] = w
		sum += w
	}
	if sum <= 0 {
		return fuseAveraging(inputs)
	}

	var dist prediction.Distribution
	for i, in := range inputs {
		share := weights[i] / sum
		for j, p := range in.Dist {
			dist[j] += share * p
		}
	}
	return dist
}
