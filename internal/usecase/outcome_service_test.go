package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tahminlab/matchcast/internal/domain/fixture"
)

func outcomeInput() OutcomeInput {
	return OutcomeInput{
		HomeTeamID: 645,
		AwayTeamID: 1005,
		LeagueID:   203,
		Season:     2025,
		GoalsHome:  2,
		GoalsAway:  0,
		ObservedAt: time.Date(2025, 8, 24, 19, 0, 0, 0, time.UTC),
	}
}

func TestOutcomeIngest_RecordsAndMovesRatings(t *testing.T) {
	ledger := newMemLedger()
	ratings := newMemRatings()
	service := NewOutcomeService(ledger, ratings, nil)

	outcome, err := service.Ingest(context.Background(), outcomeInput())
	require.NoError(t, err)

	assert.Equal(t, "203-2025-645-1005", outcome.FixtureRef)
	assert.Equal(t, fixture.ResultHome, outcome.Result)
	assert.Equal(t, 1, ratings.applied)
}

func TestOutcomeIngest_RepeatIsIdempotent(t *testing.T) {
	ledger := newMemLedger()
	ratings := newMemRatings()
	service := NewOutcomeService(ledger, ratings, nil)

	first, err := service.Ingest(context.Background(), outcomeInput())
	require.NoError(t, err)

	second, err := service.Ingest(context.Background(), outcomeInput())
	require.NoError(t, err)
	assert.Equal(t, first.FixtureRef, second.FixtureRef)
	assert.Equal(t, first.Result, second.Result)

	// An identical re-report must not move the ratings a second time.
	assert.Equal(t, 1, ratings.applied)
}

func TestOutcomeIngest_ConflictingResultRejected(t *testing.T) {
	ledger := newMemLedger()
	ratings := newMemRatings()
	service := NewOutcomeService(ledger, ratings, nil)

	_, err := service.Ingest(context.Background(), outcomeInput())
	require.NoError(t, err)

	conflicting := outcomeInput()
	conflicting.GoalsHome = 0
	conflicting.GoalsAway = 3
	_, err = service.Ingest(context.Background(), conflicting)
	assert.ErrorIs(t, err, ErrOutcomeConflict)
	assert.Equal(t, 1, ratings.applied)
}

func TestOutcomeIngest_InvalidInput(t *testing.T) {
	service := NewOutcomeService(newMemLedger(), newMemRatings(), nil)

	cases := map[string]func(*OutcomeInput){
		"same team on both sides": func(in *OutcomeInput) { in.AwayTeamID = in.HomeTeamID },
		"missing home team":       func(in *OutcomeInput) { in.HomeTeamID = 0 },
		"negative score":          func(in *OutcomeInput) { in.GoalsAway = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			input := outcomeInput()
			mutate(&input)
			_, err := service.Ingest(context.Background(), input)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestAccuracy_CollectsEveryView(t *testing.T) {
	ledger := newMemLedger()
	ledger.rolling.Total = 40
	ledger.rolling.Correct = 26
	service := NewOutcomeService(ledger, nil, nil)

	since := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	summary, err := service.Accuracy(context.Background(), since)
	require.NoError(t, err)

	assert.Equal(t, since, summary.Since)
	assert.Equal(t, 40, summary.Rolling.Total)
	assert.Equal(t, 26, summary.Rolling.Correct)
	assert.NotNil(t, summary.PerModel)
	assert.NotNil(t, summary.PerLeague)
}
