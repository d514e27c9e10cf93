package mlservice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alias1177/GlucoPredictor/models"
)

func testSnapshot() *models.FeatureSnapshot {
	return &models.FeatureSnapshot{
		UserID:               "u1",
		AsOf:                 time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
		CurrentGlucose:       120,
		MinutesSinceLastMeal: models.Unknown,
		ActivityRecency:      models.Unknown,
		MoodState:            models.MoodUnknown,
	}
}

func TestScoreDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/predict", r.URL.Path)
		var req predictRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 30.0, req.HorizonMinutes)
		assert.Equal(t, "u1", req.Snapshot.UserID)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"predictedGlucose":142.5,"certainty":0.74,"contributions":{"meal":18,"glucose_trend":4.5},"path":[125,131,137,142.5]}`))
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL + "/", RequestsPerSec: 100})
	score, err := c.Score(context.Background(), testSnapshot(), 30*time.Minute)
	require.NoError(t, err)

	assert.Equal(t, 142.5, score.Value)
	require.NotNil(t, score.Certainty)
	assert.Equal(t, 0.74, *score.Certainty)
	assert.Equal(t, 18.0, score.Contributions[models.SignalMeal])
	assert.Len(t, score.Path, 4)
	assert.Equal(t, ModelName, c.Name())
}

func TestScoreFailuresAreModelUnavailable(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		payload string
	}{
		{"server error", http.StatusInternalServerError, `{}`},
		{"bad request", http.StatusBadRequest, `{}`},
		{"missing prediction", http.StatusOK, `{"certainty":0.5}`},
		{"malformed json", http.StatusOK, `{"predictedGlucose":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.payload))
			}))
			defer srv.Close()

			c := NewClient(ClientOptions{BaseURL: srv.URL, RequestsPerSec: 100, MaxRetries: 1, MaxRetryTimeout: time.Second})
			_, err := c.Score(context.Background(), testSnapshot(), 30*time.Minute)
			require.Error(t, err)
			assert.True(t, models.IsModelUnavailable(err))
		})
	}
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{
		BaseURL:          srv.URL,
		RequestsPerSec:   100,
		MinRequests:      3,
		FailureThreshold: 0.5,
		OpenTimeout:      time.Minute,
	})
	for i := 0; i < 3; i++ {
		_, err := c.Score(context.Background(), testSnapshot(), 30*time.Minute)
		require.Error(t, err)
	}
	require.Equal(t, int32(3), atomic.LoadInt32(&calls))

	_, err := c.Score(context.Background(), testSnapshot(), 30*time.Minute)
	require.Error(t, err)
	assert.True(t, models.IsModelUnavailable(err))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls), "open breaker short-circuits")
}
