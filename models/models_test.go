package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeframe(t *testing.T) {
	tests := []struct {
		label   string
		want    time.Duration
		wantErr bool
	}{
		{label: "30 minutes", want: 30 * time.Minute},
		{label: "45min", want: 45 * time.Minute},
		{label: "1 hour", want: time.Hour},
		{label: "2 hrs", want: 2 * time.Hour},
		{label: "90m", want: 90 * time.Minute},
		{label: "1h30m", want: 90 * time.Minute},
		{label: "", wantErr: true},
		{label: "soon", wantErr: true},
		{label: "30 parsecs", wantErr: true},
		{label: "0 minutes", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, err := ParseTimeframe(tt.label)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatTimeframeRoundTrip(t *testing.T) {
	for _, d := range []time.Duration{time.Minute, 30 * time.Minute, time.Hour, 3 * time.Hour} {
		got, err := ParseTimeframe(FormatTimeframe(d))
		require.NoError(t, err)
		assert.Equal(t, d, got)
	}
	assert.Equal(t, DefaultTimeframe, FormatTimeframe(30*time.Minute))
}

func TestDirectionPresentation(t *testing.T) {
	assert.Equal(t, "↑", DirectionRising.Arrow())
	assert.Equal(t, "Dropping", DirectionDropping.Label())
	assert.Equal(t, "→", DirectionStable.Arrow())
	assert.False(t, Direction("sideways").Valid())
}

func TestSignalPriority(t *testing.T) {
	assert.Less(t, SignalGlucoseTrend.Priority(), SignalMedication.Priority())
	assert.Less(t, SignalMeal.Priority(), SignalActivity.Priority())
	assert.Less(t, SignalMood.Priority(), SignalLifestyle.Priority())
	assert.Equal(t, len(SignalPriority), SignalType("weather").Priority())
}

func TestAvailableSignals(t *testing.T) {
	s := FeatureSnapshot{
		GlucoseTrend:         []GlucosePoint{{Value: 100}},
		MinutesSinceLastMeal: Unknown,
		ActivityRecency:      Unknown,
		MoodState:            MoodUnknown,
	}
	assert.Empty(t, s.AvailableSignals())

	s.GlucoseTrend = append(s.GlucoseTrend, GlucosePoint{Value: 110})
	s.MinutesSinceLastMeal = 20
	s.MoodState = "Good"
	assert.Equal(t, []SignalType{SignalGlucoseTrend, SignalMeal, SignalMood}, s.AvailableSignals())
}

func TestNotificationPayloadJSON(t *testing.T) {
	in := NotificationRecord{
		ID:      "n1",
		UserID:  "u1",
		Type:    NotificationPrediction,
		Title:   "Glucose rising",
		Message: "Predicted 150 mg/dL",
		Data: &PredictionPayload{
			ForecastID: "f1",
			Direction:  DirectionRising,
		},
	}
	b, err := json.Marshal(in)
	require.NoError(t, err)

	var out NotificationRecord
	require.NoError(t, json.Unmarshal(b, &out))
	p, ok := out.Data.(*PredictionPayload)
	require.True(t, ok, "payload decoded as %T", out.Data)
	assert.Equal(t, "f1", p.ForecastID)
	assert.Equal(t, "f1", out.ForecastID())
}

func TestNotificationValidate(t *testing.T) {
	valid := NotificationRecord{UserID: "u1", Type: NotificationSystem, Title: "t", Message: "m"}
	assert.NoError(t, valid.Validate())

	mismatched := valid
	mismatched.Data = &ReminderPayload{Subject: "log glucose"}
	assert.Error(t, mismatched.Validate())

	long := valid
	long.Title = string(make([]rune, MaxNotificationTitleLength+1))
	assert.Error(t, long.Validate())

	unknown := valid
	unknown.Type = "promo"
	assert.Error(t, unknown.Validate())
}

func TestForecastDueAt(t *testing.T) {
	created := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	f := ForecastRecord{Timeframe: DefaultTimeframe, CreatedAt: created}
	due, err := f.DueAt()
	require.NoError(t, err)
	assert.Equal(t, created.Add(30*time.Minute), due)

	f.Timeframe = "later"
	_, err = f.DueAt()
	assert.Error(t, err)
}
