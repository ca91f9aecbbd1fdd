package models

import (
	"math/rand"
	"sort"

	"github.com/cockroachdb/errors"

	"github.com/tahminlab/matchcast/internal/domain/prediction"
)

// Sample is one labeled training row. Label indexes prediction.LabelOrder.
type Sample struct {
	Factors prediction.FactorVector `json:"factors"`
	Label   int                     `json:"label"`
}

// Predictor is the inference contract shared by all serving models.
type Predictor interface {
	Predict(factors prediction.FactorVector) (prediction.Distribution, error)
}

// TrainConfig are the boosting hyperparameters. The two families share the
// objective and differ only in tree growth: the XGB-like family grows
// level-wise to MaxDepth, the LGBM-like family grows best-gain-first to
// MaxLeaves.
type TrainConfig struct {
	Rounds       int
	MaxDepth     int
	MaxLeaves    int
	LearningRate float64
	Subsample    float64
	Lambda       float64
	MinLeafSize  int
	Seed         int64
}

func DefaultTrainConfig(family string) TrainConfig {
	cfg := TrainConfig{
		Rounds:       100,
		MaxDepth:     6,
		MaxLeaves:    31,
		LearningRate: 0.1,
		Subsample:    0.8,
		Lambda:       1.0,
		MinLeafSize:  2,
		Seed:         1,
	}
	if family == FamilyLGBM {
		// Leaf-wise growth needs a depth ceiling only as a guard.
		cfg.MaxDepth = 12
	}
	return cfg
}

// minTrainSamples is the floor below which boosting overfits trivially.
const minTrainSamples = 20

// Train fits a softmax-objective boosted ensemble over the labeled samples
// and returns the storable artifact. Training is deterministic for a fixed
// seed.
func Train(family string, samples []Sample, cfg TrainConfig) (Artifact, error) {
	if family != FamilyXGB && family != FamilyLGBM {
		return Artifact{}, errors.Newf("unknown model family %q", family)
	}
	if len(samples) < minTrainSamples {
		return Artifact{}, errors.Newf("need at least %d samples, got %d", minTrainSamples, len(samples))
	}
	for i, s := range samples {
		if s.Label < 0 || s.Label >= len(prediction.LabelOrder) {
			return Artifact{}, errors.Newf("sample %d has label %d outside the class range", i, s.Label)
		}
	}

	classes := len(prediction.LabelOrder)
	n := len(samples)
	raw := make([][]float64, n)
	for i := range raw {
		raw[i] = make([]float64, classes)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	artifact := Artifact{
		Family:    family,
		Classes:   classes,
		Features:  prediction.FactorCount,
		BaseScore: make([]float64, classes),
		Trees:     make([][]tree, 0, cfg.Rounds),
	}

	grad := make([]float64, n)
	hess := make([]float64, n)

	probs := make([]prediction.Distribution, n)

	for round := 0; round < cfg.Rounds; round++ {
		indices := subsampleIndices(rng, n, cfg.Subsample)
		perClass := make([]tree, classes)
		for _, i := range indices {
			probs[i] = softmax3(raw[i])
		}

		for class := 0; class < classes; class++ {
			for _, i := range indices {
				target := 0.0
				if samples[i].Label == class {
					target = 1.0
				}
				grad[i] = probs[i][class] - target
				hess[i] = probs[i][class] * (1.0 - probs[i][class])
			}

			builder := &treeBuilder{
				samples: samples,
				grad:    grad,
				hess:    hess,
				cfg:     cfg,
			}
			var t tree
			if family == FamilyXGB {
				t = builder.growLevelWise(indices)
			} else {
				t = builder.growLeafWise(indices)
			}
			perClass[class] = t

			for _, i := range indices {
				v, err := t.score(samples[i].Factors)
				if err != nil {
					return Artifact{}, errors.Wrap(err, "apply round")
				}
				raw[i][class] += v
			}
		}

		artifact.Trees = append(artifact.Trees, perClass)
	}

	return artifact, nil
}

// Evaluate returns the argmax accuracy of a predictor over labeled samples.
func Evaluate(p Predictor, samples []Sample) (float64, error) {
	if len(samples) == 0 {
		return 0, errors.New("no samples to evaluate")
	}
	correct := 0
	for _, s := range samples {
		dist, err := p.Predict(s.Factors)
		if err != nil {
			return 0, err
		}
		if dist.ArgMax() == s.Label {
			correct++
		}
	}
	return float64(correct) / float64(len(samples)), nil
}

func subsampleIndices(rng *rand.Rand, n int, fraction float64) []int {
	if fraction >= 1.0 || fraction <= 0 {
		indices := make([]int, n)
		for i := range indices {
			indices[i] = i
		}
		return indices
	}
	k := int(float64(n) * fraction)
	if k < 1 {
		k = 1
	}
	perm := rng.Perm(n)[:k]
	sort.Ints(perm)
	return perm
}

type treeBuilder struct {
	samples []Sample
	grad    []float64
	hess    []float64
	cfg     TrainConfig
}

type split struct {
	feature   int
	threshold float64
	gain      float64
	left      []int
	right     []int
}

func (b *treeBuilder) sums(indices []int) (g, h float64) {
	for _, i := range indices {
		g += b.grad[i]
		h += b.hess[i]
	}
	return g, h
}

// leafValue is the Newton step for the squared-loss approximation, scaled by
// the learning rate so inference is a plain sum.
func (b *treeBuilder) leafValue(indices []int) float64 {
	g, h := b.sums(indices)
	return -g / (h + b.cfg.Lambda) * b.cfg.LearningRate
}

// bestSplit greedily scans every feature for the gain-maximizing threshold.
func (b *treeBuilder) bestSplit(indices []int) (split, bool) {
	if len(indices) < 2*b.cfg.MinLeafSize {
		return split{}, false
	}

	gTotal, hTotal := b.sums(indices)
	parentScore := gTotal * gTotal / (hTotal + b.cfg.Lambda)

	best := split{gain: 0}
	found := false
	sorted := make([]int, len(indices))

	for feature := 0; feature < prediction.FactorCount; feature++ {
		copy(sorted, indices)
		sort.Slice(sorted, func(x, y int) bool {
			vx := b.samples[sorted[x]].Factors[feature]
			vy := b.samples[sorted[y]].Factors[feature]
			if vx == vy {
				return sorted[x] < sorted[y]
			}
			return vx < vy
		})

		var gLeft, hLeft float64
		for pos := 0; pos < len(sorted)-1; pos++ {
			i := sorted[pos]
			gLeft += b.grad[i]
			hLeft += b.hess[i]

			cur := b.samples[i].Factors[feature]
			next := b.samples[sorted[pos+1]].Factors[feature]
			if cur == next {
				continue
			}
			if pos+1 < b.cfg.MinLeafSize || len(sorted)-pos-1 < b.cfg.MinLeafSize {
				continue
			}

			gRight := gTotal - gLeft
			hRight := hTotal - hLeft
			gain := gLeft*gLeft/(hLeft+b.cfg.Lambda) +
				gRight*gRight/(hRight+b.cfg.Lambda) - parentScore
			if gain <= best.gain+1e-12 {
				continue
			}

			best = split{
				feature:   feature,
				threshold: (cur + next) / 2,
				gain:      gain,
			}
			best.left = append([]int(nil), sorted[:pos+1]...)
			best.right = append([]int(nil), sorted[pos+1:]...)
			found = true
		}
	}

	return best, found
}

type openLeaf struct {
	nodeIdx int
	depth   int
	indices []int
	split   split
	canGrow bool
}

// growLevelWise expands every splittable node breadth-first until MaxDepth.
func (b *treeBuilder) growLevelWise(indices []int) tree {
	t := tree{Nodes: []treeNode{{Leaf: true}}}
	queue := []openLeaf{{nodeIdx: 0, depth: 0, indices: indices}}

	for len(queue) > 0 {
		leaf := queue[0]
		queue = queue[1:]

		if leaf.depth >= b.cfg.MaxDepth {
			t.Nodes[leaf.nodeIdx] = treeNode{Leaf: true, Value: b.leafValue(leaf.indices)}
			continue
		}
		s, ok := b.bestSplit(leaf.indices)
		if !ok {
			t.Nodes[leaf.nodeIdx] = treeNode{Leaf: true, Value: b.leafValue(leaf.indices)}
			continue
		}

		left := len(t.Nodes)
		right := left + 1
		t.Nodes = append(t.Nodes, treeNode{Leaf: true}, treeNode{Leaf: true})
		t.Nodes[leaf.nodeIdx] = treeNode{
			Feature:   s.feature,
			Threshold: s.threshold,
			Left:      left,
			Right:     right,
		}
		queue = append(queue,
			openLeaf{nodeIdx: left, depth: leaf.depth + 1, indices: s.left},
			openLeaf{nodeIdx: right, depth: leaf.depth + 1, indices: s.right},
		)
	}

	return t
}

// growLeafWise repeatedly splits the open leaf with the highest gain until
// the leaf budget is spent.
func (b *treeBuilder) growLeafWise(indices []int) tree {
	t := tree{Nodes: []treeNode{{Leaf: true}}}

	root := openLeaf{nodeIdx: 0, depth: 0, indices: indices}
	root.split, root.canGrow = b.bestSplit(indices)
	open := []openLeaf{root}
	leaves := 1

	for leaves < b.cfg.MaxLeaves {
		bestAt := -1
		for i, leaf := range open {
			if !leaf.canGrow || leaf.depth >= b.cfg.MaxDepth {
				continue
			}
			if bestAt < 0 || leaf.split.gain > open[bestAt].split.gain {
				bestAt = i
			}
		}
		if bestAt < 0 {
			break
		}

		leaf := open[bestAt]
		open = append(open[:bestAt], open[bestAt+1:]...)

		leftIdx := len(t.Nodes)
		rightIdx := leftIdx + 1
		t.Nodes = append(t.Nodes, treeNode{Leaf: true}, treeNode{Leaf: true})
		t.Nodes[leaf.nodeIdx] = treeNode{
			Feature:   leaf.split.feature,
			Threshold: leaf.split.threshold,
			Left:      leftIdx,
			Right:     rightIdx,
		}

		left := openLeaf{nodeIdx: leftIdx, depth: leaf.depth + 1, indices: leaf.split.left}
		left.split, left.canGrow = b.bestSplit(left.indices)
		right := openLeaf{nodeIdx: rightIdx, depth: leaf.depth + 1, indices: leaf.split.right}
		right.split, right.canGrow = b.bestSplit(right.indices)
		open = append(open, left, right)
		leaves++
	}

	for _, leaf := range open {
		t.Nodes[leaf.nodeIdx] = treeNode{Leaf: true, Value: b.leafValue(leaf.indices)}
	}

	return t
}
