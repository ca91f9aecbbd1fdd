package registry

import (
	"context"
	"testing"
	"time"

	"github.com/tahminlab/matchcast/internal/domain/prediction"
	"github.com/tahminlab/matchcast/internal/platform/logging"
)

type stubScorer struct {
	dist prediction.Distribution
}

func (s stubScorer) Predict(prediction.FactorVector) (prediction.Distribution, error) {
	return s.dist, nil
}

func stubDecoder(_ string, artifact []byte) (Scorer, error) {
	// The artifact byte picks the favored class, enough to tell versions apart.
	dist := prediction.Distribution{0.34, 0.33, 0.33}
	if len(artifact) > 0 && artifact[0] == 'A' {
		dist = prediction.Distribution{0.2, 0.2, 0.6}
	}
	return stubScorer{dist: dist}, nil
}

func liveFeatureOrder() []string {
	return append([]string(nil), prediction.FactorNames[:]...)
}

func openTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := Open(t.TempDir(), stubDecoder, logging.NewNop(), nil)
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}
	return reg
}

func TestRegistry_SaveActivateServe(t *testing.T) {
	reg := openTestRegistry(t)
	ctx := context.Background()

	meta := ModelMeta{
		Family:       "xgb",
		Version:      "v1",
		TrainedAt:    time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		Samples:      500,
		FeatureOrder: liveFeatureOrder(),
	}
	if err := reg.SaveVersion(ctx, meta, []byte("H")); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, _, ok := reg.Active("xgb"); ok {
		t.Fatalf("save must not activate")
	}

	if err := reg.Activate(ctx, "xgb", "v1"); err != nil {
		t.Fatalf("activate: %v", err)
	}

	scorer, gotMeta, ok := reg.Active("xgb")
	if !ok {
		t.Fatalf("expected active model")
	}
	if gotMeta.Version != "v1" || gotMeta.Samples != 500 {
		t.Fatalf("unexpected meta: %+v", gotMeta)
	}
	if _, err := scorer.Predict(prediction.FactorVector{}); err != nil {
		t.Fatalf("predict: %v", err)
	}
}

func TestRegistry_ActivateUnknownVersionFails(t *testing.T) {
	reg := openTestRegistry(t)

	if err := reg.Activate(context.Background(), "xgb", "missing"); err == nil {
		t.Fatalf("expected error for unknown version")
	}
}

func TestRegistry_FeatureOrderGate(t *testing.T) {
	reg := openTestRegistry(t)
	ctx := context.Background()

	shuffled := liveFeatureOrder()
	shuffled[0], shuffled[1] = shuffled[1], shuffled[0]

	err := reg.SaveVersion(ctx, ModelMeta{
		Family:       "lgbm",
		Version:      "v1",
		FeatureOrder: shuffled,
	}, []byte("H"))
	if err == nil {
		t.Fatalf("expected save to refuse mismatched feature order")
	}

	truncated := liveFeatureOrder()[:5]
	err = reg.SaveVersion(ctx, ModelMeta{
		Family:       "lgbm",
		Version:      "v2",
		FeatureOrder: truncated,
	}, []byte("H"))
	if err == nil {
		t.Fatalf("expected save to refuse truncated feature order")
	}
}

func TestRegistry_FlipKeepsServingOldUntilActivate(t *testing.T) {
	reg := openTestRegistry(t)
	ctx := context.Background()

	order := liveFeatureOrder()
	if err := reg.SaveVersion(ctx, ModelMeta{Family: "xgb", Version: "v1", FeatureOrder: order}, []byte("H")); err != nil {
		t.Fatalf("save v1: %v", err)
	}
	if err := reg.Activate(ctx, "xgb", "v1"); err != nil {
		t.Fatalf("activate v1: %v", err)
	}
	if err := reg.SaveVersion(ctx, ModelMeta{Family: "xgb", Version: "v2", FeatureOrder: order}, []byte("A")); err != nil {
		t.Fatalf("save v2: %v", err)
	}

	scorer, meta, _ := reg.Active("xgb")
	dist, _ := scorer.Predict(prediction.FactorVector{})
	if meta.Version != "v1" || dist.ArgMax() != 0 {
		t.Fatalf("expected v1 to keep serving, got version=%s argmax=%d", meta.Version, dist.ArgMax())
	}

	if err := reg.Activate(ctx, "xgb", "v2"); err != nil {
		t.Fatalf("activate v2: %v", err)
	}
	scorer, meta, _ = reg.Active("xgb")
	dist, _ = scorer.Predict(prediction.FactorVector{})
	if meta.Version != "v2" || dist.ArgMax() != 2 {
		t.Fatalf("expected v2 after flip, got version=%s argmax=%d", meta.Version, dist.ArgMax())
	}
}

func TestRegistry_ReopenRestoresActivePointers(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	reg, err := Open(dir, stubDecoder, logging.NewNop(), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	order := liveFeatureOrder()
	if err := reg.SaveVersion(ctx, ModelMeta{Family: "rule", Version: "v7", FeatureOrder: order}, []byte("H")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := reg.Activate(ctx, "rule", "v7"); err != nil {
		t.Fatalf("activate: %v", err)
	}

	reopened, err := Open(dir, stubDecoder, logging.NewNop(), nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := reopened.ActiveVersions(); got["rule"] != "v7" {
		t.Fatalf("expected rule v7 active after reopen, got %v", got)
	}
}

func TestRegistry_Versions(t *testing.T) {
	reg := openTestRegistry(t)
	ctx := context.Background()

	order := liveFeatureOrder()
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	must(t, reg.SaveVersion(ctx, ModelMeta{Family: "xgb", Version: "v1", TrainedAt: older, FeatureOrder: order}, []byte("H")))
	must(t, reg.SaveVersion(ctx, ModelMeta{Family: "xgb", Version: "v2", TrainedAt: newer, FeatureOrder: order}, []byte("H")))
	must(t, reg.SaveVersion(ctx, ModelMeta{Family: "lgbm", Version: "v1", TrainedAt: newer, FeatureOrder: order}, []byte("H")))

	versions, err := reg.Versions("xgb")
	if err != nil {
		t.Fatalf("versions: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("expected two xgb versions, got=%d", len(versions))
	}
	if versions[0].Version != "v2" {
		t.Fatalf("expected newest first, got %s", versions[0].Version)
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
