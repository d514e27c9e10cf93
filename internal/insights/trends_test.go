package insights

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alias1177/GlucoPredictor/internal/database"
	"github.com/Alias1177/GlucoPredictor/models"
)

func readings(values ...float64) []models.GlucoseReading {
	out := make([]models.GlucoseReading, len(values))
	for i, v := range values {
		out[i] = models.GlucoseReading{Value: v}
	}
	return out
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name      string
		current   []models.GlucoseReading
		previous  []models.GlucoseReading
		direction TrendDirection
		change    float64
	}{
		{"rising", readings(120, 130), readings(100, 110), TrendRising, 19},
		{"declining", readings(100), readings(120), TrendDeclining, -16.7},
		{"inside band", readings(104), readings(100), TrendStable, 4},
		{"no previous week", readings(150), nil, TrendStable, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trend := Summarize(tt.current, tt.previous, 180, 5)
			require.NotNil(t, trend)
			assert.Equal(t, tt.direction, trend.Direction)
			assert.Equal(t, tt.change, trend.PercentageChange)
			assert.NotEmpty(t, trend.Recommendation)
		})
	}

	assert.Nil(t, Summarize(nil, readings(100), 180, 5))
}

func TestRiskPeriod(t *testing.T) {
	current := []models.GlucoseReading{
		{Value: 200, ReadingType: "after_meal"},
		{Value: 210, ReadingType: "after_meal"},
		{Value: 190, ReadingType: "fasting"},
		{Value: 120, ReadingType: "fasting"},
	}
	assert.Equal(t, "Post-meal readings tend to spike", Summarize(current, nil, 180, 5).RiskPeriod)
	assert.Equal(t, "No high-risk periods detected", Summarize(readings(110), nil, 180, 5).RiskPeriod)
	assert.Equal(t, "Some random readings are elevated", Summarize(readings(250), nil, 180, 5).RiskPeriod)
}

func TestAnalyzerWeekly(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	store := database.NewMemoryStore()
	store.AddGlucose(models.GlucoseReading{UserID: "u1", Value: 100, RecordedAt: now.Add(-10 * 24 * time.Hour)})
	store.AddGlucose(models.GlucoseReading{UserID: "u1", Value: 130, RecordedAt: now.Add(-2 * 24 * time.Hour)})
	store.AddGlucose(models.GlucoseReading{UserID: "u1", Value: 500, RecordedAt: now.Add(-30 * 24 * time.Hour)})

	trend, err := NewAnalyzer(store, 180).Weekly(context.Background(), "u1", now)
	require.NoError(t, err)
	require.NotNil(t, trend)
	assert.Equal(t, TrendRising, trend.Direction)
	assert.Equal(t, 130.0, trend.CurrentAverage)
	require.NotNil(t, trend.PreviousAverage)
	assert.Equal(t, 100.0, *trend.PreviousAverage)
	assert.Equal(t, 1, trend.TotalReadings)

	empty, err := NewAnalyzer(store, 180).Weekly(context.Background(), "nobody", now)
	require.NoError(t, err)
	assert.Nil(t, empty)
}
