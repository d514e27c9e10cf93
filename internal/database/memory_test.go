package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alias1177/GlucoPredictor/models"
)

var base = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func TestMemoryForecastLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.SaveForecast(ctx, &models.ForecastRecord{
			ID:        fmt.Sprintf("f%d", i),
			UserID:    "u1",
			Timeframe: models.DefaultTimeframe,
			Factors:   []string{"meal"},
			CreatedAt: base.Add(time.Duration(i) * 10 * time.Minute),
		}))
	}

	latest, err := s.LatestForecast(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "f2", latest.ID)

	latest.Factors[0] = "mutated"
	again, err := s.GetForecast(ctx, "f2")
	require.NoError(t, err)
	assert.Equal(t, "meal", again.Factors[0], "reads return copies")

	history, err := s.ListForecasts(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "f2", history[0].ID)

	pending, err := s.PendingForecasts(ctx, "u1", base, base.Add(15*time.Minute))
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "f0", pending[0].ID)

	bounded, err := s.PendingForecasts(ctx, "u1", base.Add(5*time.Minute), base.Add(15*time.Minute))
	require.NoError(t, err)
	require.Len(t, bounded, 1)
	assert.Equal(t, "f1", bounded[0].ID)

	ok, err := s.AttachActual(ctx, "f0", 120, base.Add(31*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.AttachActual(ctx, "f0", 90, base.Add(40*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	f0, err := s.GetForecast(ctx, "f0")
	require.NoError(t, err)
	assert.Equal(t, 120.0, *f0.ActualGlucose)

	_, err = s.AttachActual(ctx, "missing", 1, base)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = s.LatestForecast(ctx, "nobody")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMemoryNotifications(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.SaveNotification(ctx, &models.NotificationRecord{
			ID:        fmt.Sprintf("n%d", i),
			UserID:    "u1",
			Type:      models.NotificationSystem,
			Title:     "Title",
			Message:   "Message",
			IsRead:    i%2 == 0,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.Error(t, s.SaveNotification(ctx, &models.NotificationRecord{UserID: "u1", Type: "promo", Title: "x", Message: "y"}))

	page, total, err := s.ListNotifications(ctx, models.NotificationQuery{UserID: "u1", Offset: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page, 2)
	assert.Equal(t, "n3", page[0].ID)

	unread, total, err := s.ListNotifications(ctx, models.NotificationQuery{UserID: "u1", UnreadOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, unread, 2)

	recent, _, err := s.ListNotifications(ctx, models.NotificationQuery{UserID: "u1", Since: base.Add(3 * time.Minute)})
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	count, err := s.CountUnread(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	n, err := s.MarkRead(ctx, "n1")
	require.NoError(t, err)
	assert.True(t, n.IsRead)

	updated, err := s.MarkAllRead(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)

	require.NoError(t, s.DeleteNotification(ctx, "n0"))
	assert.ErrorIs(t, s.DeleteNotification(ctx, "n0"), models.ErrNotFound)
	_, err = s.MarkRead(ctx, "n0")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMemorySignals(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	r := &models.GlucoseReading{UserID: "u1", Value: 110, RecordedAt: base}
	require.NoError(t, s.InsertGlucose(ctx, r))
	assert.NotEmpty(t, r.ID)
	s.AddGlucose(models.GlucoseReading{UserID: "u1", Value: 100, RecordedAt: base.Add(-time.Hour)})
	s.AddGlucose(models.GlucoseReading{UserID: "u2", Value: 140, RecordedAt: base.Add(-48 * time.Hour)})

	readings, err := s.GlucoseReadings(ctx, "u1", base.Add(-2*time.Hour), base)
	require.NoError(t, err)
	require.Len(t, readings, 2)
	assert.Equal(t, 100.0, readings[0].Value)

	latest, err := s.LatestGlucose(ctx, "u1", base.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 100.0, latest.Value)

	none, err := s.LatestGlucose(ctx, "u3", base)
	require.NoError(t, err)
	assert.Nil(t, none)

	users, err := s.ActiveUsers(ctx, base.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, users)

	require.NoError(t, s.SetChat(ctx, "u1", 42))
	chat, ok, err := s.ChatFor(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(42), chat)
}
