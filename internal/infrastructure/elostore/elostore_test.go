package elostore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/tahminlab/matchcast/internal/domain/team"
	"github.com/tahminlab/matchcast/internal/platform/logging"
)

func TestStore_BaselineForUnknownTeam(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "ratings.json"), logging.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	rating, err := store.Rating(context.Background(), 645)
	if err != nil {
		t.Fatalf("rating: %v", err)
	}
	if rating.Rating != team.DefaultRating {
		t.Fatalf("expected baseline %v, got %v", team.DefaultRating, rating.Rating)
	}
}

func TestStore_ApplyResultPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ratings.json")
	store, err := Open(path, logging.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	ctx := context.Background()
	if err := store.ApplyResult(ctx, 645, 541, 3, 0); err != nil {
		t.Fatalf("apply result: %v", err)
	}

	home, _ := store.Rating(ctx, 645)
	away, _ := store.Rating(ctx, 541)
	if home.Rating <= team.DefaultRating {
		t.Fatalf("winner rating must rise, got %v", home.Rating)
	}
	if away.Rating >= team.DefaultRating {
		t.Fatalf("loser rating must fall, got %v", away.Rating)
	}
	if home.LastUpdated.IsZero() || away.LastUpdated.IsZero() {
		t.Fatalf("expected last_updated to be set")
	}

	// Reopen from disk: state must survive.
	reopened, err := Open(path, logging.NewNop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	persisted, _ := reopened.Rating(ctx, 645)
	if persisted.Rating != home.Rating {
		t.Fatalf("expected persisted rating %v, got %v", home.Rating, persisted.Rating)
	}
}

func TestStore_BiggerWinMovesMore(t *testing.T) {
	ctx := context.Background()

	narrow, err := Open(filepath.Join(t.TempDir(), "narrow.json"), logging.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := narrow.ApplyResult(ctx, 1, 2, 1, 0); err != nil {
		t.Fatalf("apply narrow: %v", err)
	}

	wide, err := Open(filepath.Join(t.TempDir(), "wide.json"), logging.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := wide.ApplyResult(ctx, 1, 2, 4, 0); err != nil {
		t.Fatalf("apply wide: %v", err)
	}

	narrowHome, _ := narrow.Rating(ctx, 1)
	wideHome, _ := wide.Rating(ctx, 1)
	if wideHome.Rating <= narrowHome.Rating {
		t.Fatalf("expected 4-0 to move ratings more than 1-0: %v vs %v", wideHome.Rating, narrowHome.Rating)
	}
}

func TestStore_Snapshot(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "ratings.json"), logging.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	ctx := context.Background()
	if err := store.ApplyResult(ctx, 645, 541, 2, 2); err != nil {
		t.Fatalf("apply result: %v", err)
	}

	snap, err := store.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap) != 2 {
		t.Fatalf("expected two rated teams, got=%d", len(snap))
	}

	// Mutating the snapshot must not leak back into the store.
	snap[645] = team.Rating{Rating: 1}
	rating, _ := store.Rating(ctx, 645)
	if rating.Rating == 1 {
		t.Fatalf("snapshot must be a copy")
	}
}
