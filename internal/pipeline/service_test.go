package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Alias1177/GlucoPredictor/internal/database"
	"github.com/Alias1177/GlucoPredictor/internal/forecast"
	"github.com/Alias1177/GlucoPredictor/internal/notify"
	"github.com/Alias1177/GlucoPredictor/internal/observability"
	"github.com/Alias1177/GlucoPredictor/internal/reconcile"
	"github.com/Alias1177/GlucoPredictor/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

// fixedScorer predicts whatever value it is currently set to
type fixedScorer struct {
	mu    sync.Mutex
	name  string
	value float64
	err   error
}

func (f *fixedScorer) Name() string { return f.name }

func (f *fixedScorer) Score(ctx context.Context, snap *models.FeatureSnapshot, horizon time.Duration) (*forecast.Score, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	certainty := 0.9
	return &forecast.Score{
		Value:         f.value,
		Certainty:     &certainty,
		Contributions: map[models.SignalType]float64{models.SignalGlucoseTrend: f.value - snap.CurrentGlucose},
	}, nil
}

func (f *fixedScorer) set(v float64) {
	f.mu.Lock()
	f.value = v
	f.mu.Unlock()
}

type harness struct {
	svc    *Service
	store  *database.MemoryStore
	scorer *fixedScorer
	now    time.Time
}

func newHarness(t *testing.T, store models.Store, mem *database.MemoryStore, options ...Option) *harness {
	t.Helper()
	h := &harness{store: mem, scorer: &fixedScorer{name: "fixed"}, now: t0}

	engine, err := forecast.NewEngine(forecast.DefaultConfig(), forecast.NewRegistry(
		h.scorer,
		&fixedScorer{name: "broken", err: errors.New("connection refused")},
	))
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.DefaultModel = "fixed"
	opts.FallbackModel = ""
	options = append([]Option{WithClock(func() time.Time { return h.now })}, options...)
	h.svc = New(store, engine, notify.DefaultPolicy(), reconcile.New(store, 10*time.Minute), 180, opts, options...)
	t.Cleanup(h.svc.Close)
	return h
}

func newMemoryHarness(t *testing.T, options ...Option) *harness {
	mem := database.NewMemoryStore()
	return newHarness(t, mem, mem, options...)
}

func (h *harness) trigger(t *testing.T, at time.Time) *models.ForecastRecord {
	t.Helper()
	h.now = at
	record, err := h.svc.HandleTrigger(context.Background(), Trigger{UserID: "u1", At: at, Event: models.TriggerManual})
	require.NoError(t, err)
	return record
}

func (h *harness) notifications(t *testing.T) []models.NotificationRecord {
	t.Helper()
	list, _, err := h.store.ListNotifications(context.Background(), models.NotificationQuery{UserID: "u1"})
	require.NoError(t, err)
	return list
}

func TestRisingForecastCreatesPrediction(t *testing.T) {
	h := newMemoryHarness(t)
	h.store.AddGlucose(models.GlucoseReading{UserID: "u1", Value: 95, RecordedAt: t0.Add(-time.Minute)})
	h.scorer.set(150)

	record := h.trigger(t, t0)
	assert.Equal(t, models.DirectionRising, record.Direction)
	assert.Nil(t, record.RiskAlert)
	assert.Equal(t, 95.0, record.CurrentGlucose)
	assert.Equal(t, 150.0, record.PredictedGlucose)

	stored, err := h.store.LatestForecast(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, record.ID, stored.ID)

	list := h.notifications(t)
	require.Len(t, list, 1)
	assert.Equal(t, models.NotificationPrediction, list[0].Type)
	assert.Equal(t, record.ID, list[0].ForecastID())
	assert.False(t, list[0].IsRead)
}

func TestRiskAlertBypassesCooldown(t *testing.T) {
	h := newMemoryHarness(t)
	h.store.AddGlucose(models.GlucoseReading{UserID: "u1", Value: 140, RecordedAt: t0.Add(-time.Minute)})

	h.scorer.set(120)
	first := h.trigger(t, t0)
	assert.Equal(t, models.DirectionDropping, first.Direction)
	require.Len(t, h.notifications(t), 1)

	h.scorer.set(65)
	second := h.trigger(t, t0.Add(5*time.Minute))
	assert.Equal(t, models.DirectionDropping, second.Direction)
	require.NotNil(t, second.RiskAlert)
	assert.Equal(t, models.RiskHypoglycemia, second.RiskAlert.Condition)

	list := h.notifications(t)
	require.Len(t, list, 2)
	payload, ok := list[0].Data.(*models.PredictionPayload)
	require.True(t, ok)
	assert.Equal(t, second.ID, payload.ForecastID)
	assert.Equal(t, models.RiskHypoglycemia, payload.RiskCondition)
}

func TestRepeatedDirectionSuppressedWithinCooldown(t *testing.T) {
	h := newMemoryHarness(t)
	h.store.AddGlucose(models.GlucoseReading{UserID: "u1", Value: 95, RecordedAt: t0.Add(-time.Minute)})
	h.scorer.set(150)

	h.trigger(t, t0)
	h.trigger(t, t0.Add(10*time.Minute))
	assert.Len(t, h.notifications(t), 1)

	history, err := h.svc.ForecastHistory(context.Background(), "u1", 0)
	require.NoError(t, err)
	assert.Len(t, history, 2, "suppression never drops the forecast")

	h.trigger(t, t0.Add(45*time.Minute))
	assert.Len(t, h.notifications(t), 2)
}

func TestUnreadRiskAlertNotRepeated(t *testing.T) {
	h := newMemoryHarness(t)
	h.store.AddGlucose(models.GlucoseReading{UserID: "u1", Value: 140, RecordedAt: t0.Add(-time.Minute)})
	h.scorer.set(60)

	h.trigger(t, t0)
	// outside the cooldown window but still unread
	h.trigger(t, t0.Add(2*time.Hour))
	require.Len(t, h.notifications(t), 1)

	_, err := h.svc.MarkAllRead(context.Background(), "u1")
	require.NoError(t, err)
	h.trigger(t, t0.Add(3*time.Hour))
	assert.Len(t, h.notifications(t), 2)
}

func TestGlucoseReadingReconcilesDueForecast(t *testing.T) {
	h := newMemoryHarness(t)
	ctx := context.Background()
	h.scorer.set(140)

	h.now = t0
	first, err := h.svc.RecordGlucose(ctx, &models.GlucoseReading{UserID: "u1", Value: 120, RecordedAt: t0})
	require.NoError(t, err)
	require.NotNil(t, first)

	h.now = t0.Add(31 * time.Minute)
	_, err = h.svc.RecordGlucose(ctx, &models.GlucoseReading{UserID: "u1", Value: 137, RecordedAt: h.now})
	require.NoError(t, err)

	reconciled, err := h.svc.Forecast(ctx, first.ID)
	require.NoError(t, err)
	require.True(t, reconciled.IsReconciled())
	assert.Equal(t, 137.0, *reconciled.ActualGlucose)

	h.now = t0.Add(90 * time.Minute)
	_, err = h.svc.RecordGlucose(ctx, &models.GlucoseReading{UserID: "u1", Value: 88, RecordedAt: h.now})
	require.NoError(t, err)

	again, err := h.svc.Forecast(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 137.0, *again.ActualGlucose)
	assert.Equal(t, t0.Add(31*time.Minute), *again.ActualLoggedAt)
}

func TestFutureReadingRejected(t *testing.T) {
	h := newMemoryHarness(t)
	ctx := context.Background()
	h.scorer.set(140)

	h.now = t0
	first, err := h.svc.RecordGlucose(ctx, &models.GlucoseReading{UserID: "u1", Value: 120, RecordedAt: t0})
	require.NoError(t, err)
	require.NotNil(t, first)

	h.now = t0.Add(time.Minute)
	_, err = h.svc.RecordGlucose(ctx, &models.GlucoseReading{UserID: "u1", Value: 300, RecordedAt: t0.Add(35 * time.Minute)})
	require.Error(t, err)
	assert.True(t, models.IsFutureTimestamp(err))

	stored, err := h.svc.Forecast(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsReconciled())

	latest, err := h.svc.LatestForecast(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, latest.ID)

	readings, err := h.store.GlucoseReadings(ctx, "u1", t0, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, readings, 1)

	_, err = h.svc.RecordMeal(ctx, &models.MealLog{UserID: "u1", MealType: "lunch", Timestamp: t0.Add(time.Hour)})
	assert.True(t, models.IsFutureTimestamp(err))

	// within the skew allowance
	_, err = h.svc.RecordGlucose(ctx, &models.GlucoseReading{UserID: "u1", Value: 125, RecordedAt: t0.Add(3 * time.Minute)})
	assert.NoError(t, err)
}

func TestNoGlucoseHistoryProducesNoForecast(t *testing.T) {
	h := newMemoryHarness(t)
	h.scorer.set(150)

	_, err := h.svc.HandleTrigger(context.Background(), Trigger{UserID: "ghost", At: t0, Event: models.TriggerManual})
	require.Error(t, err)
	assert.True(t, models.IsInsufficientData(err))

	_, err = h.svc.LatestForecast(context.Background(), "ghost")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMealWithoutBaselineStillStored(t *testing.T) {
	h := newMemoryHarness(t)
	meal := &models.MealLog{UserID: "u1", MealType: "lunch", CarbsEstimate: 50, Timestamp: t0}

	record, err := h.svc.RecordMeal(context.Background(), meal)
	require.NoError(t, err)
	assert.Nil(t, record)
	assert.NotEmpty(t, meal.ID)

	meals, err := h.store.Meals(context.Background(), "u1", t0.Add(-time.Hour), t0)
	require.NoError(t, err)
	assert.Len(t, meals, 1)
}

func TestFallbackModelUsedWhenPrimaryUnavailable(t *testing.T) {
	h := newMemoryHarness(t)
	h.store.AddGlucose(models.GlucoseReading{UserID: "u1", Value: 110, RecordedAt: t0})
	h.scorer.set(112)
	ctx := context.Background()

	_, err := h.svc.HandleTrigger(ctx, Trigger{UserID: "u1", At: t0, Event: models.TriggerManual, Model: "broken"})
	require.Error(t, err)
	assert.True(t, models.IsModelUnavailable(err))
	_, err = h.svc.LatestForecast(ctx, "u1")
	assert.ErrorIs(t, err, models.ErrNotFound)

	record, err := h.svc.HandleTrigger(ctx, Trigger{UserID: "u1", At: t0, Event: models.TriggerManual, Model: "broken", Fallback: "fixed"})
	require.NoError(t, err)
	assert.Equal(t, "fixed", record.ModelUsed)
	assert.Equal(t, models.DirectionStable, record.Direction)
}

func TestTriggerValidation(t *testing.T) {
	h := newMemoryHarness(t)
	_, err := h.svc.HandleTrigger(context.Background(), Trigger{UserID: "u1", Event: "whenever"})
	assert.Error(t, err)
	_, err = h.svc.HandleTrigger(context.Background(), Trigger{Event: models.TriggerManual})
	assert.Error(t, err)
}

type failingNotifications struct {
	*database.MemoryStore
}

func (failingNotifications) SaveNotification(ctx context.Context, n *models.NotificationRecord) error {
	return errors.New("disk full")
}

func TestNotificationFailureKeepsForecast(t *testing.T) {
	mem := database.NewMemoryStore()
	h := newHarness(t, failingNotifications{mem}, mem)
	mem.AddGlucose(models.GlucoseReading{UserID: "u1", Value: 95, RecordedAt: t0})
	h.scorer.set(150)

	record := h.trigger(t, t0)
	stored, err := mem.GetForecast(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, 150.0, stored.PredictedGlucose)
	assert.Empty(t, h.notifications(t))
}

func TestSinkReceivesPersistedNotifications(t *testing.T) {
	var (
		mu        sync.Mutex
		delivered []models.NotificationRecord
	)
	sink := notify.SinkFunc(func(ctx context.Context, n *models.NotificationRecord) error {
		mu.Lock()
		defer mu.Unlock()
		delivered = append(delivered, *n)
		return nil
	})
	h := newMemoryHarness(t, WithSink(sink), WithMetrics(observability.NewCollector("test")))
	h.store.AddGlucose(models.GlucoseReading{UserID: "u1", Value: 95, RecordedAt: t0})
	h.scorer.set(150)

	h.trigger(t, t0)
	h.svc.Close()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, delivered, 1)
	assert.NotEmpty(t, delivered[0].ID)
	assert.Equal(t, models.NotificationPrediction, delivered[0].Type)
}

func TestAutoTickCoversActiveUsers(t *testing.T) {
	h := newMemoryHarness(t)
	h.now = t0
	h.scorer.set(130)
	h.store.AddGlucose(models.GlucoseReading{UserID: "u1", Value: 120, RecordedAt: t0.Add(-time.Hour)})
	h.store.AddGlucose(models.GlucoseReading{UserID: "u2", Value: 100, RecordedAt: t0.Add(-2 * time.Hour)})
	h.store.AddGlucose(models.GlucoseReading{UserID: "dormant", Value: 100, RecordedAt: t0.Add(-72 * time.Hour)})

	produced, err := h.svc.RunAutoTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, produced)

	for _, user := range []string{"u1", "u2"} {
		f, err := h.svc.LatestForecast(context.Background(), user)
		require.NoError(t, err)
		assert.Equal(t, models.TriggerAuto, f.TriggerEvent)
	}
	_, err = h.svc.LatestForecast(context.Background(), "dormant")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSchedulerStopsWithContext(t *testing.T) {
	mem := database.NewMemoryStore()
	h := newHarness(t, mem, mem)
	h.svc.opts.AutoTickInterval = 5 * time.Millisecond
	mem.AddGlucose(models.GlucoseReading{UserID: "u1", Value: 120, RecordedAt: t0})
	h.scorer.set(121)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.svc.RunScheduler(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		list, err := mem.ListForecasts(context.Background(), "u1", 10)
		return err == nil && len(list) > 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestNotificationAccessors(t *testing.T) {
	h := newMemoryHarness(t)
	ctx := context.Background()

	for i, title := range []string{"Log your lunch", "Take metformin", "7 day streak"} {
		n := &models.NotificationRecord{
			UserID:    "u1",
			Type:      models.NotificationReminder,
			Title:     title,
			Message:   "  " + title + " today.  ",
			CreatedAt: t0.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, h.svc.CreateNotification(ctx, n))
		assert.Equal(t, title+" today.", n.Message)
	}
	assert.Error(t, h.svc.CreateNotification(ctx, &models.NotificationRecord{UserID: "u1", Type: models.NotificationSystem, Title: " "}))

	page, err := h.svc.Notifications(ctx, "u1", false, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.Pages)
	assert.Equal(t, 3, page.UnreadCount)
	require.Len(t, page.Notifications, 2)
	assert.Equal(t, "7 day streak", page.Notifications[0].Title)

	read, err := h.svc.MarkRead(ctx, page.Notifications[0].ID)
	require.NoError(t, err)
	assert.True(t, read.IsRead)

	unread, err := h.svc.UnreadCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, unread)

	require.NoError(t, h.svc.DeleteNotification(ctx, read.ID))
	assert.ErrorIs(t, h.svc.DeleteNotification(ctx, read.ID), models.ErrNotFound)

	empty, err := h.svc.Notifications(ctx, "nobody", true, 0, 0)
	require.NoError(t, err)
	assert.NotNil(t, empty.Notifications)
	assert.Equal(t, 0, empty.Pages)
}

func TestWeeklyTrendUsesClock(t *testing.T) {
	h := newMemoryHarness(t)
	h.now = t0
	h.store.AddGlucose(models.GlucoseReading{UserID: "u1", Value: 150, RecordedAt: t0.Add(-24 * time.Hour)})

	trend, err := h.svc.WeeklyTrend(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, trend)
	assert.Equal(t, 150.0, trend.CurrentAverage)
}
