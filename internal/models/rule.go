// Package models holds the serving predictors: the parameter-free rule
// scorer and the two gradient-boosted tree families, together with the
// artifact codec and the pure-Go trainer that produces them.
package models

import (
	"math"

	"github.com/tahminlab/matchcast/internal/domain/prediction"
)

// Model family names as stored in the registry and the ledger.
const (
	FamilyRule = "rule"
	FamilyXGB  = "xgb"
	FamilyLGBM = "lgbm"
)

// drawBaseline is the fixed draw share; the remaining mass is split between
// the sides by the compressed factor score.
const drawBaseline = 0.25

// scoreScale controls how fast the factor score saturates the home share.
const scoreScale = 0.4

// ruleSigns orients each factor so that a positive weighted value favors the
// home side. Factor construction already encodes direction (weather is
// penalizing both sides equally and stays neutral in sign), so the table is
// uniform today; it exists so a future factor with inverted polarity has a
// place to declare it.
var ruleSigns = [prediction.FactorCount]float64{
	1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
}

// RuleScorer is the weighted rule-based predictor. Callers pass the factor
// vector already scaled by the resolved weight profile; the scorer has no
// trainable parameters.
type RuleScorer struct{}

func NewRuleScorer() *RuleScorer {
	return &RuleScorer{}
}

// Predict compresses the signed weighted score into a home share, keeps the
// draw mass fixed, and splits the remainder. An all-zero vector yields the
// near-uniform no-information distribution.
func (s *RuleScorer) Predict(factors prediction.FactorVector) (prediction.Distribution, error) {
	score := 0.0
	allZero := true
	for i, v := range factors {
		if v != 0 {
			allZero = false
		}
		score += ruleSigns[i] * v
	}
	if allZero {
		return prediction.Distribution{0.33, 0.34, 0.33}, nil
	}

	homeRatio := 1.0 / (1.0 + math.Exp(-scoreScale*score))
	remaining := 1.0 - drawBaseline
	return prediction.Distribution{
		remaining * homeRatio,
		drawBaseline,
		remaining * (1.0 - homeRatio),
	}, nil
}
