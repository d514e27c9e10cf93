package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Alias1177/GlucoPredictor/internal/features"
	"github.com/Alias1177/GlucoPredictor/internal/forecast"
	"github.com/Alias1177/GlucoPredictor/internal/insights"
	"github.com/Alias1177/GlucoPredictor/internal/notify"
	"github.com/Alias1177/GlucoPredictor/internal/observability"
	"github.com/Alias1177/GlucoPredictor/internal/platform/locks"
	"github.com/Alias1177/GlucoPredictor/internal/reconcile"
	"github.com/Alias1177/GlucoPredictor/models"
)

// Options tunes the trigger pipeline
type Options struct {
	DefaultModel  string
	FallbackModel string

	TriggerTimeout  time.Duration
	DeliveryTimeout time.Duration
	// MaxClockSkew is how far past now a log timestamp may lie
	MaxClockSkew time.Duration

	AutoTickInterval    time.Duration
	AutoTickConcurrency int
	// ActiveWindow bounds which users receive auto ticks
	ActiveWindow time.Duration

	Features features.Options
}

// DefaultOptions mirrors the configuration defaults
func DefaultOptions() Options {
	return Options{
		DefaultModel:        forecast.TrendModelName,
		FallbackModel:       forecast.TrendModelName,
		TriggerTimeout:      5 * time.Second,
		DeliveryTimeout:     10 * time.Second,
		MaxClockSkew:        5 * time.Minute,
		AutoTickInterval:    15 * time.Minute,
		AutoTickConcurrency: 8,
		ActiveWindow:        24 * time.Hour,
		Features:            features.DefaultOptions(),
	}
}

// Trigger is one request for a forecast cycle
type Trigger struct {
	UserID string
	At     time.Time // zero means now
	Event  models.TriggerEvent
	// Model overrides the default scorer
	Model string
	// Fallback is tried once when Model is unavailable; empty disables it
	Fallback string
}

// Service runs the Trigger → Snapshot → Forecast → Persist → Notify pipeline
type Service struct {
	store      models.Store
	assembler  *features.Assembler
	engine     *forecast.Engine
	policy     notify.Policy
	reconciler *reconcile.Reconciler
	analyzer   *insights.Analyzer
	sink       notify.Sink
	metrics    *observability.Collector
	opts       Options

	notifyLocks *locks.Keyed
	deliveries  sync.WaitGroup
	now         func() time.Time
	logger      zerolog.Logger
}

// Option customizes a Service
type Option func(*Service)

// WithSink mirrors persisted notifications to an external channel
func WithSink(sink notify.Sink) Option {
	return func(s *Service) { s.sink = sink }
}

// WithMetrics records pipeline metrics
func WithMetrics(c *observability.Collector) Option {
	return func(s *Service) { s.metrics = c }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New wires the pipeline around a store
func New(store models.Store, engine *forecast.Engine, policy notify.Policy, reconciler *reconcile.Reconciler, hyperThreshold float64, opts Options, options ...Option) *Service {
	if opts.DefaultModel == "" {
		opts.DefaultModel = forecast.TrendModelName
	}
	if opts.TriggerTimeout <= 0 {
		opts.TriggerTimeout = 5 * time.Second
	}
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = 10 * time.Second
	}
	if opts.MaxClockSkew <= 0 {
		opts.MaxClockSkew = 5 * time.Minute
	}
	if opts.AutoTickConcurrency <= 0 {
		opts.AutoTickConcurrency = 1
	}
	if opts.ActiveWindow <= 0 {
		opts.ActiveWindow = 24 * time.Hour
	}

	s := &Service{
		store:       store,
		assembler:   features.NewAssembler(store, opts.Features),
		engine:      engine,
		policy:      policy,
		reconciler:  reconciler,
		analyzer:    insights.NewAnalyzer(store, hyperThreshold),
		opts:        opts,
		notifyLocks: locks.NewKeyed(),
		now:         time.Now,
		logger:      log.With().Str("component", "pipeline").Logger(),
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// HandleTrigger runs one forecast cycle. Notification failures are logged and never undo the forecast.
func (s *Service) HandleTrigger(ctx context.Context, t Trigger) (*models.ForecastRecord, error) {
	start := time.Now()
	if t.UserID == "" {
		return nil, fmt.Errorf("trigger: user id is required")
	}
	if !t.Event.Valid() {
		return nil, fmt.Errorf("trigger: unknown event %q", t.Event)
	}
	if t.At.IsZero() {
		t.At = s.now()
	}
	if t.Model == "" {
		t.Model = s.opts.DefaultModel
	}

	record, err := s.forecast(ctx, t)
	if err != nil {
		outcome := "error"
		if models.IsInsufficientData(err) {
			outcome = "insufficient_data"
			s.logger.Warn().Str("user_id", t.UserID).Str("trigger", string(t.Event)).Msg("No glucose baseline, skipping forecast")
		} else {
			s.logger.Error().Err(err).Str("user_id", t.UserID).Str("trigger", string(t.Event)).Msg("Forecast failed")
		}
		s.metrics.RecordTrigger(string(t.Event), outcome, time.Since(start))
		return nil, err
	}
	s.metrics.RecordForecast(record.ModelUsed, string(record.Direction), record.RiskAlert != nil)

	// The forecast is already durable; notify on a context that outlives the trigger deadline.
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.TriggerTimeout)
	defer cancel()
	s.notify(nctx, record)

	s.metrics.RecordTrigger(string(t.Event), "ok", time.Since(start))
	return record, nil
}

func (s *Service) forecast(ctx context.Context, t Trigger) (*models.ForecastRecord, error) {
	tctx, cancel := context.WithTimeout(ctx, s.opts.TriggerTimeout)
	defer cancel()

	snap, err := s.assembler.Assemble(tctx, t.UserID, t.At, t.Event)
	if err != nil {
		return nil, err
	}

	record, err := s.engine.Predict(tctx, snap, t.Model)
	if err != nil && models.IsModelUnavailable(err) && t.Fallback != "" && t.Fallback != t.Model && tctx.Err() == nil {
		s.logger.Warn().Err(err).Str("user_id", t.UserID).Str("fallback", t.Fallback).Msg("Model unavailable, using fallback")
		record, err = s.engine.Predict(tctx, snap, t.Fallback)
	}
	if err != nil {
		return nil, err
	}

	if err := s.store.SaveForecast(tctx, record); err != nil {
		return nil, fmt.Errorf("save forecast: %w", err)
	}

	s.logger.Debug().
		Str("user_id", record.UserID).
		Str("forecast_id", record.ID).
		Str("model", record.ModelUsed).
		Float64("predicted", record.PredictedGlucose).
		Str("direction", string(record.Direction)).
		Msg("Forecast saved")
	return record, nil
}

// notify applies the policy and persists the result. Decide and save are serialized per user.
func (s *Service) notify(ctx context.Context, f *models.ForecastRecord) {
	unlock := s.notifyLocks.Lock(f.UserID)
	defer unlock()

	recent, err := s.recentNotifications(ctx, f)
	if err != nil {
		s.logger.Error().Err(err).Str("forecast_id", f.ID).Msg("Failed to load notification history")
		s.metrics.RecordNotification("none", "error")
		return
	}

	n, err := s.policy.Decide(f, recent)
	if err != nil {
		s.logger.Error().Err(err).Str("forecast_id", f.ID).Msg("Notification policy rejected forecast")
		s.metrics.RecordNotification("none", "error")
		return
	}
	if n == nil {
		s.logger.Debug().Str("forecast_id", f.ID).Msg("Notification suppressed")
		s.metrics.RecordNotification("none", "suppressed")
		return
	}

	if err := s.store.SaveNotification(ctx, n); err != nil {
		s.logger.Error().Err(err).Str("forecast_id", f.ID).Msg("Failed to save notification")
		s.metrics.RecordNotification(string(n.Type), "error")
		return
	}
	s.metrics.RecordNotification(string(n.Type), "created")
	s.deliver(n)
}

// recentNotifications is the user's cooldown window plus every unread notification
func (s *Service) recentNotifications(ctx context.Context, f *models.ForecastRecord) ([]models.NotificationRecord, error) {
	windowed, _, err := s.store.ListNotifications(ctx, models.NotificationQuery{
		UserID: f.UserID,
		Since:  f.CreatedAt.Add(-s.policy.Cooldown),
	})
	if err != nil {
		return nil, err
	}
	unread, _, err := s.store.ListNotifications(ctx, models.NotificationQuery{UserID: f.UserID, UnreadOnly: true})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(windowed))
	out := make([]models.NotificationRecord, 0, len(windowed)+len(unread))
	for _, group := range [][]models.NotificationRecord{windowed, unread} {
		for _, n := range group {
			if seen[n.ID] {
				continue
			}
			seen[n.ID] = true
			out = append(out, n)
		}
	}
	return out, nil
}

// deliver hands a copy of n to the sink without blocking the caller
func (s *Service) deliver(n *models.NotificationRecord) {
	if s.sink == nil {
		return
	}
	copied := *n
	s.deliveries.Add(1)
	go func() {
		defer s.deliveries.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.DeliveryTimeout)
		defer cancel()

		err := s.sink.Deliver(ctx, &copied)
		s.metrics.RecordDelivery(err)
		if err != nil {
			s.logger.Warn().Err(err).Str("notification_id", copied.ID).Msg("Notification delivery failed")
		}
	}()
}

func (s *Service) reconcile(ctx context.Context, reading models.GlucoseReading) {
	matched, err := s.reconciler.Reconcile(ctx, reading)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", reading.UserID).Msg("Reconciliation failed")
		return
	}
	s.metrics.RecordReconciliation(matched != nil)
}

// RecordGlucose stores a reading, reconciles it and forecasts from it.
// Only the write can fail; a forecast that cannot be produced yields nil.
func (s *Service) RecordGlucose(ctx context.Context, r *models.GlucoseReading) (*models.ForecastRecord, error) {
	if err := s.checkNotFuture("recordedAt", r.RecordedAt); err != nil {
		return nil, err
	}
	if err := s.store.InsertGlucose(ctx, r); err != nil {
		return nil, fmt.Errorf("insert glucose: %w", err)
	}
	s.reconcile(ctx, *r)
	return s.forecastAfterLog(ctx, r.UserID, r.RecordedAt, models.TriggerGlucoseLog), nil
}

// RecordMeal stores a meal and triggers a forecast
func (s *Service) RecordMeal(ctx context.Context, m *models.MealLog) (*models.ForecastRecord, error) {
	if err := s.checkNotFuture("timestamp", m.Timestamp); err != nil {
		return nil, err
	}
	if err := s.store.InsertMeal(ctx, m); err != nil {
		return nil, fmt.Errorf("insert meal: %w", err)
	}
	return s.forecastAfterLog(ctx, m.UserID, m.Timestamp, models.TriggerMealLog), nil
}

// RecordActivity stores an activity and triggers a forecast
func (s *Service) RecordActivity(ctx context.Context, a *models.ActivityLog) (*models.ForecastRecord, error) {
	if err := s.checkNotFuture("timestamp", a.Timestamp); err != nil {
		return nil, err
	}
	if err := s.store.InsertActivity(ctx, a); err != nil {
		return nil, fmt.Errorf("insert activity: %w", err)
	}
	return s.forecastAfterLog(ctx, a.UserID, a.Timestamp, models.TriggerActivityLog), nil
}

// RecordMedication stores a dose and triggers a forecast
func (s *Service) RecordMedication(ctx context.Context, m *models.MedicationLog) (*models.ForecastRecord, error) {
	if err := s.checkNotFuture("takenAt", m.TakenAt); err != nil {
		return nil, err
	}
	if err := s.store.InsertMedication(ctx, m); err != nil {
		return nil, fmt.Errorf("insert medication: %w", err)
	}
	return s.forecastAfterLog(ctx, m.UserID, m.TakenAt, models.TriggerMedicationLog), nil
}

// RecordMood stores a mood log; moods only feed later snapshots
func (s *Service) RecordMood(ctx context.Context, m *models.MoodLog) error {
	if err := s.store.InsertMood(ctx, m); err != nil {
		return fmt.Errorf("insert mood: %w", err)
	}
	return nil
}

// RecordLifestyle stores a lifestyle log
func (s *Service) RecordLifestyle(ctx context.Context, l *models.LifestyleLog) error {
	if err := s.store.InsertLifestyle(ctx, l); err != nil {
		return fmt.Errorf("insert lifestyle: %w", err)
	}
	return nil
}

// MaxClockSkew reports how far ahead of now a log timestamp is accepted
func (s *Service) MaxClockSkew() time.Duration {
	return s.opts.MaxClockSkew
}

// checkNotFuture rejects timestamps beyond now plus the allowed clock skew
func (s *Service) checkNotFuture(field string, at time.Time) error {
	now := s.now()
	if at.After(now.Add(s.opts.MaxClockSkew)) {
		return &models.FutureTimestampError{Field: field, At: at, Now: now}
	}
	return nil
}

// forecastAfterLog forecasts at the later of the log time and now, so backdated logs still see current glucose.
// HandleTrigger already reports failures.
func (s *Service) forecastAfterLog(ctx context.Context, userID string, at time.Time, event models.TriggerEvent) *models.ForecastRecord {
	if now := s.now(); at.IsZero() || now.After(at) {
		at = now
	}
	record, err := s.HandleTrigger(ctx, Trigger{UserID: userID, At: at, Event: event, Fallback: s.opts.FallbackModel})
	if err != nil {
		return nil
	}
	return record
}

// RunAutoTick forecasts for every recently active user and reports how many forecasts were produced.
// A failing user never stops the others.
func (s *Service) RunAutoTick(ctx context.Context) (int, error) {
	now := s.now()
	users, err := s.store.ActiveUsers(ctx, now.Add(-s.opts.ActiveWindow))
	if err != nil {
		return 0, fmt.Errorf("active users: %w", err)
	}

	var produced atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(s.opts.AutoTickConcurrency)
	for _, userID := range users {
		if ctx.Err() != nil {
			break
		}
		userID := userID
		g.Go(func() error {
			_, err := s.HandleTrigger(ctx, Trigger{UserID: userID, At: now, Event: models.TriggerAuto, Fallback: s.opts.FallbackModel})
			if err == nil {
				produced.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info().Int("users", len(users)).Int64("forecasts", produced.Load()).Msg("Auto tick finished")
	return int(produced.Load()), ctx.Err()
}

// RunScheduler fires auto ticks until ctx is done
func (s *Service) RunScheduler(ctx context.Context) {
	if s.opts.AutoTickInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.opts.AutoTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunAutoTick(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Msg("Auto tick failed")
			}
		}
	}
}

// Close waits for in-flight deliveries
func (s *Service) Close() {
	s.deliveries.Wait()
}
