package team

import "context"

// RatingStore keeps per-team strength ratings.
type RatingStore interface {
	// Rating returns the stored rating for a team, or the baseline when the
	// team has never been rated.
	Rating(ctx context.Context, teamID int64) (Rating, error)

	// ApplyResult updates both teams' ratings from a finished match.
	ApplyResult(ctx context.Context, homeID, awayID int64, goalsHome, goalsAway int) error

	// Snapshot returns all known ratings keyed by team id.
	Snapshot(ctx context.Context) (map[int64]Rating, error)
}
