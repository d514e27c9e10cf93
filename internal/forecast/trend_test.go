package forecast

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alias1177/GlucoPredictor/models"
)

func risingSnapshot() *models.FeatureSnapshot {
	snap := snapshot(130)
	snap.GlucoseTrend = []models.GlucosePoint{
		{Value: 100, At: snap.AsOf.Add(-30 * time.Minute)},
		{Value: 110, At: snap.AsOf.Add(-20 * time.Minute)},
		{Value: 120, At: snap.AsOf.Add(-10 * time.Minute)},
		{Value: 130, At: snap.AsOf},
	}
	return snap
}

func TestTrendScorerFollowsSlope(t *testing.T) {
	s := NewTrendScorer(DefaultTrendParams())

	score, err := s.Score(context.Background(), risingSnapshot(), 30*time.Minute)
	require.NoError(t, err)
	assert.Nil(t, score.Certainty)
	assert.Greater(t, score.Value, 130.0)
	assert.Len(t, score.Path, 6)
	assert.Equal(t, score.Value, score.Path[len(score.Path)-1])
	assert.Greater(t, score.Contributions[models.SignalGlucoseTrend], 0.0)
}

func TestTrendScorerFlatWithoutHistory(t *testing.T) {
	s := NewTrendScorer(DefaultTrendParams())

	score, err := s.Score(context.Background(), snapshot(110), 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 110.0, score.Value)
	assert.Empty(t, score.Contributions)
}

func TestTrendScorerSignalEffects(t *testing.T) {
	s := NewTrendScorer(DefaultTrendParams())

	meal := snapshot(110)
	meal.MinutesSinceLastMeal = 15
	meal.LastMealCarbs = 60
	score, err := s.Score(context.Background(), meal, 30*time.Minute)
	require.NoError(t, err)
	// 60g * 4 mg/dL over 30 of 180 minutes
	assert.InDelta(t, 40, score.Contributions[models.SignalMeal], 0.01)

	insulin := snapshot(160)
	insulin.ActiveMedications = []models.ActiveMedication{{
		Type:      "insulin_rapid",
		Dosage:    2,
		LastTaken: insulin.AsOf.Add(-10 * time.Minute),
	}}
	score, err = s.Score(context.Background(), insulin, 30*time.Minute)
	require.NoError(t, err)
	// 2u * 40 mg/dL over 30 of 240 minutes
	assert.InDelta(t, -10, score.Contributions[models.SignalMedication], 0.01)
	assert.Less(t, score.Value, 160.0)

	active := snapshot(110)
	active.ActivityRecency = 60
	active.ActivityLevel = "high"
	score, err = s.Score(context.Background(), active, 30*time.Minute)
	require.NoError(t, err)
	assert.InDelta(t, -12.5, score.Contributions[models.SignalActivity], 0.01)
}

func TestTrendScorerClampsPhysiologicalRange(t *testing.T) {
	s := NewTrendScorer(DefaultTrendParams())

	snap := snapshot(30)
	snap.GlucoseTrend = []models.GlucosePoint{
		{Value: 120, At: snap.AsOf.Add(-10 * time.Minute)},
		{Value: 30, At: snap.AsOf},
	}
	score, err := s.Score(context.Background(), snap, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 20.0, score.Value)
}

func TestTrendScorerHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewTrendScorer(DefaultTrendParams()).Score(ctx, snapshot(100), 30*time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRegistryNames(t *testing.T) {
	r := NewRegistry(NewTrendScorer(DefaultTrendParams()), &stubScorer{name: "alpha"})
	assert.Equal(t, []string{"alpha", TrendModelName}, r.Names())

	_, ok := r.Get("beta")
	assert.False(t, ok)
}
