package models

import (
	"math"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/errors"

	"github.com/tahminlab/matchcast/internal/domain/prediction"
)

// treeNode is one node of a regression tree in flattened array form. Leaf
// values are already scaled by the learning rate at training time.
type treeNode struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Leaf      bool    `json:"leaf,omitempty"`
	Value     float64 `json:"v"`
}

type tree struct {
	Nodes []treeNode `json:"nodes"`
}

// score walks the tree for one sample. Malformed child indices abort the
// walk; the caller treats that as a corrupted artifact.
func (t tree) score(factors prediction.FactorVector) (float64, error) {
	idx := 0
	for steps := 0; steps <= len(t.Nodes); steps++ {
		if idx < 0 || idx >= len(t.Nodes) {
			return 0, errors.Newf("node index %d out of range", idx)
		}
		node := t.Nodes[idx]
		if node.Leaf {
			return node.Value, nil
		}
		if node.Feature < 0 || node.Feature >= prediction.FactorCount {
			return 0, errors.Newf("split on unknown feature %d", node.Feature)
		}
		if factors[node.Feature] < node.Threshold {
			idx = node.Left
		} else {
			idx = node.Right
		}
	}
	return 0, errors.New("tree walk did not terminate")
}

// Artifact is the stored form of a boosted model: one tree per class per
// round, plus the raw-score baseline.
type Artifact struct {
	Family    string    `json:"family"`
	Classes   int       `json:"classes"`
	Features  int       `json:"features"`
	BaseScore []float64 `json:"base_score"`
	Trees     [][]tree  `json:"trees"`
}

// Encode serializes the artifact for the registry.
func (a Artifact) Encode() ([]byte, error) {
	raw, err := sonic.Marshal(a)
	if err != nil {
		return nil, errors.Wrap(err, "encode model artifact")
	}
	return raw, nil
}

func (a Artifact) validate(family string) error {
	if a.Family != family {
		return errors.Newf("artifact family %q does not match %q", a.Family, family)
	}
	if a.Classes != len(prediction.LabelOrder) {
		return errors.Newf("artifact has %d classes, want %d", a.Classes, len(prediction.LabelOrder))
	}
	if a.Features != prediction.FactorCount {
		return errors.Newf("artifact has %d features, want %d", a.Features, prediction.FactorCount)
	}
	if len(a.BaseScore) != a.Classes {
		return errors.Newf("base score length %d, want %d", len(a.BaseScore), a.Classes)
	}
	if len(a.Trees) == 0 {
		return errors.New("artifact has no boosting rounds")
	}
	for round, perClass := range a.Trees {
		if len(perClass) != a.Classes {
			return errors.Newf("round %d has %d trees, want %d", round, len(perClass), a.Classes)
		}
		for class, t := range perClass {
			if len(t.Nodes) == 0 {
				return errors.Newf("round %d class %d tree is empty", round, class)
			}
		}
	}
	return nil
}

// GBTModel serves a decoded boosted artifact. It is immutable after decode
// and safe for concurrent use.
type GBTModel struct {
	family   string
	artifact Artifact
}

// Decode rebuilds a serving model from a stored artifact, failing closed on
// anything structurally off. Shape matches the registry's decoder hook.
func Decode(family string, raw []byte) (*GBTModel, error) {
	if family != FamilyXGB && family != FamilyLGBM {
		return nil, errors.Newf("unknown model family %q", family)
	}

	var artifact Artifact
	if err := sonic.Unmarshal(raw, &artifact); err != nil {
		return nil, errors.Wrap(err, "decode model artifact")
	}
	if err := artifact.validate(family); err != nil {
		return nil, err
	}
	return &GBTModel{family: family, artifact: artifact}, nil
}

func (m *GBTModel) Family() string { return m.family }

// Rounds is the number of boosting iterations in the artifact.
func (m *GBTModel) Rounds() int { return len(m.artifact.Trees) }

// Predict sums the per-class raw scores over all rounds and maps them
// through softmax. Label order is home, draw, away.
func (m *GBTModel) Predict(factors prediction.FactorVector) (prediction.Distribution, error) {
	raw := make([]float64, m.artifact.Classes)
	copy(raw, m.artifact.BaseScore)

	for _, perClass := range m.artifact.Trees {
		for class, t := range perClass {
			v, err := t.score(factors)
			if err != nil {
				return prediction.Distribution{}, errors.Wrapf(err, "%s inference", m.family)
			}
			raw[class] += v
		}
	}

	return softmax3(raw), nil
}

func softmax3(raw []float64) prediction.Distribution {
	maxRaw := raw[0]
	for _, v := range raw[1:] {
		if v > maxRaw {
			maxRaw = v
		}
	}

	var dist prediction.Distribution
	sum := 0.0
	for i := range dist {
		dist[i] = math.Exp(raw[i] - maxRaw)
		sum += dist[i]
	}
	for i := range dist {
		dist[i] /= sum
	}
	return dist
}
