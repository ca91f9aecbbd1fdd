package usecase

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tahminlab/matchcast/internal/domain/fixture"
	"github.com/tahminlab/matchcast/internal/domain/prediction"
	"github.com/tahminlab/matchcast/internal/infrastructure/registry"
	"github.com/tahminlab/matchcast/internal/models"
)

// seedLabeledLedger fills the ledger with resolved predictions whose label
// follows the sign of elo_diff plus form, so a retrained model has real
// structure to find.
func seedLabeledLedger(t *testing.T, ledger *memLedger, n int) {
	t.Helper()
	rng := rand.New(rand.NewSource(7))
	results := [3]string{fixture.ResultHome, fixture.ResultDraw, fixture.ResultAway}
	base := time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)

	for i := 0; i < n; i++ {
		var factors prediction.FactorVector
		for j := range factors {
			factors[j] = rng.Float64()*0.2 - 0.1
		}
		factors[0] = rng.Float64()*2 - 1
		factors[2] = rng.Float64()*2 - 1

		signal := factors[0] + factors[2]
		label := 1
		if signal > 0.3 {
			label = 0
		} else if signal < -0.3 {
			label = 2
		}

		ref := fmt.Sprintf("203-2025-%d-%d", 100+i, 500+i)
		require.NoError(t, ledger.Append(context.Background(), prediction.Record{
			ID:         fmt.Sprintf("rec-%d", i),
			FixtureRef: ref,
			LeagueID:   203,
			Season:     2025,
			AsOf:       base.AddDate(0, 0, i),
			Factors:    factors,
		}))

		goalsHome, goalsAway := 1, 1
		switch label {
		case 0:
			goalsHome = 2
		case 2:
			goalsAway = 2
		}
		inserted, err := ledger.IngestOutcome(context.Background(), prediction.Outcome{
			FixtureRef: ref,
			Result:     results[label],
			GoalsHome:  goalsHome,
			GoalsAway:  goalsAway,
			ObservedAt: base.AddDate(0, 0, i+1),
		})
		require.NoError(t, err)
		require.True(t, inserted)
	}
}

func TestRetrainRun_TrainsAndActivatesBothFamilies(t *testing.T) {
	ledger := newMemLedger()
	seedLabeledLedger(t, ledger, 80)
	reg := newStubModels()
	service := NewRetrainService(ledger, reg, nil, RetrainConfig{MinSamples: 20}, nil, nil)

	report, err := service.Run(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, TriggerManual, report.Trigger)
	assert.Equal(t, 80, report.Samples)
	require.Len(t, report.Families, 2)

	for _, fr := range report.Families {
		assert.Empty(t, fr.Error, "family %s", fr.Family)
		assert.True(t, fr.Activated, "family %s", fr.Family)
		assert.NotEmpty(t, fr.Version)
		assert.Greater(t, fr.ValidationAccuracy, 0.34, "family %s should beat chance", fr.Family)
		assert.Equal(t, fr.Version, reg.flipped[fr.Family])
		assert.NotEmpty(t, reg.saved[fr.Family+"/"+fr.Version])
	}
}

type recordingCache struct {
	invalidated []string
}

func (c *recordingCache) Invalidate(_ context.Context, category string) (int64, error) {
	c.invalidated = append(c.invalidated, category)
	return 1, nil
}

func TestRetrainRun_ActivationFlushesLongLivedCaches(t *testing.T) {
	ledger := newMemLedger()
	seedLabeledLedger(t, ledger, 80)
	cache := &recordingCache{}
	service := NewRetrainService(ledger, newStubModels(), cache, RetrainConfig{MinSamples: 20}, nil, nil)

	report, err := service.Run(context.Background(), TriggerVolume)
	require.NoError(t, err)
	require.True(t, report.Families[0].Activated)

	assert.ElementsMatch(t, []string{"team_info", "transfers", "h2h"}, cache.invalidated)
}

func TestRetrainRun_RejectedRunLeavesCachesAlone(t *testing.T) {
	ledger := newMemLedger()
	seedLabeledLedger(t, ledger, 80)
	reg := newStubModels()
	for _, family := range []string{models.FamilyXGB, models.FamilyLGBM} {
		reg.active[family] = stubScorer{}
		reg.metas[family] = registry.ModelMeta{
			Family:             family,
			Version:            "incumbent",
			ValidationAccuracy: 0.99,
		}
	}
	cache := &recordingCache{}
	service := NewRetrainService(ledger, reg, cache, RetrainConfig{MinSamples: 20}, nil, nil)

	_, err := service.Run(context.Background(), TriggerScheduled)
	require.NoError(t, err)

	assert.Empty(t, cache.invalidated, "rejected runs must not drop cache entries")
}

func TestRetrainRun_RejectedWhenActiveIsBetter(t *testing.T) {
	ledger := newMemLedger()
	seedLabeledLedger(t, ledger, 80)
	reg := newStubModels()
	for _, family := range []string{models.FamilyXGB, models.FamilyLGBM} {
		reg.active[family] = stubScorer{}
		reg.metas[family] = registry.ModelMeta{
			Family:             family,
			Version:            "incumbent",
			ValidationAccuracy: 0.99,
		}
	}
	service := NewRetrainService(ledger, reg, nil, RetrainConfig{MinSamples: 20}, nil, nil)

	report, err := service.Run(context.Background(), TriggerScheduled)
	require.NoError(t, err)

	for _, fr := range report.Families {
		assert.True(t, fr.Rejected, "family %s", fr.Family)
		assert.False(t, fr.Activated)
		assert.InDelta(t, 0.99, fr.PreviousAccuracy, 1e-9)
	}
	assert.Empty(t, reg.flipped, "no version may be flipped after rejection")
}

func TestRetrainRun_TooFewSamples(t *testing.T) {
	ledger := newMemLedger()
	seedLabeledLedger(t, ledger, 5)
	service := NewRetrainService(ledger, newStubModels(), nil, RetrainConfig{MinSamples: 20}, nil, nil)

	_, err := service.Run(context.Background(), TriggerVolume)
	assert.ErrorIs(t, err, ErrRetrainRejected)
}

func TestShouldRetrain_ScheduleTrigger(t *testing.T) {
	service := NewRetrainService(newMemLedger(), newStubModels(), nil,
		RetrainConfig{Interval: time.Hour, VolumeThreshold: 1000, MinSamples: 20}, nil, nil)
	service.lastRetrain = time.Now().UTC().Add(-2 * time.Hour)

	trigger, ok := service.ShouldRetrain(context.Background())
	require.True(t, ok)
	assert.Equal(t, TriggerScheduled, trigger)
}

func TestShouldRetrain_VolumeTrigger(t *testing.T) {
	ledger := newMemLedger()
	seedLabeledLedger(t, ledger, 5)
	service := NewRetrainService(ledger, newStubModels(), nil,
		RetrainConfig{Interval: 24 * time.Hour, VolumeThreshold: 3, MinSamples: 20}, nil, nil)

	trigger, ok := service.ShouldRetrain(context.Background())
	require.True(t, ok)
	assert.Equal(t, TriggerVolume, trigger)
}

func TestShouldRetrain_DegradationTrigger(t *testing.T) {
	ledger := newMemLedger()
	ledger.rolling = prediction.AccuracyReport{Total: 50, Correct: 20, Accuracy: 0.40}
	reg := newStubModels()
	reg.active[models.FamilyXGB] = stubScorer{}
	reg.metas[models.FamilyXGB] = registry.ModelMeta{
		Family:             models.FamilyXGB,
		Version:            "v1",
		ValidationAccuracy: 0.60,
	}
	service := NewRetrainService(ledger, reg, nil,
		RetrainConfig{Interval: 24 * time.Hour, VolumeThreshold: 1000, MinSamples: 20, AccuracyDrop: 0.05}, nil, nil)

	trigger, ok := service.ShouldRetrain(context.Background())
	require.True(t, ok)
	assert.Equal(t, TriggerDegradation, trigger)
}

func TestShouldRetrain_NothingFires(t *testing.T) {
	ledger := newMemLedger()
	ledger.rolling = prediction.AccuracyReport{Total: 50, Correct: 29, Accuracy: 0.58}
	reg := newStubModels()
	reg.active[models.FamilyXGB] = stubScorer{}
	reg.metas[models.FamilyXGB] = registry.ModelMeta{ValidationAccuracy: 0.60}
	service := NewRetrainService(ledger, reg, nil,
		RetrainConfig{Interval: 24 * time.Hour, VolumeThreshold: 1000, MinSamples: 20, AccuracyDrop: 0.05}, nil, nil)

	_, ok := service.ShouldRetrain(context.Background())
	assert.False(t, ok)
}
