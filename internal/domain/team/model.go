package team

import (
	"math"
	"time"
)

const (
	// DefaultRating seeds teams that have never been rated.
	DefaultRating = 1500.0
	kFactor       = 30.0
)

// Team carries the metadata fetched from the statistics provider.
type Team struct {
	ID       int64
	Name     string
	LeagueID int64
	Country  string
	Founded  int
}

// Rating is one team's ELO entry. Mutated only when an observed result is
// ingested, never during prediction.
type Rating struct {
	Rating      float64   `json:"rating"`
	LastUpdated time.Time `json:"last_updated"`
}

// ExpectedScore is the classic ELO win expectancy of side A against side B.
func ExpectedScore(ratingA, ratingB float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (ratingB-ratingA)/400.0))
}

// UpdateRatings applies one finished match to both sides' ratings. A win by
// more than one goal scales the K factor so convincing results move ratings
// faster.
func UpdateRatings(ratingHome, ratingAway float64, goalsHome, goalsAway int) (float64, float64) {
	expectedHome := ExpectedScore(ratingHome, ratingAway)
	expectedAway := ExpectedScore(ratingAway, ratingHome)

	var actualHome, actualAway float64
	switch {
	case goalsHome > goalsAway:
		actualHome, actualAway = 1.0, 0.0
	case goalsHome < goalsAway:
		actualHome, actualAway = 0.0, 1.0
	default:
		actualHome, actualAway = 0.5, 0.5
	}

	multiplier := 1.0
	if diff := absInt(goalsHome - goalsAway); diff > 1 {
		multiplier = 1.0 + float64(diff-1)*0.25
	}

	newHome := ratingHome + kFactor*multiplier*(actualHome-expectedHome)
	newAway := ratingAway + kFactor*multiplier*(actualAway-expectedAway)
	return math.Round(newHome), math.Round(newAway)
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
