package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/GlucoPredictor/internal/platform/locks"
	"github.com/Alias1177/GlucoPredictor/models"
)

// DefaultMaxHorizon bounds how far back pending forecasts are loaded
const DefaultMaxHorizon = 4 * time.Hour

// Reconciler attaches observed glucose readings to forecasts whose horizon has elapsed.
// Work for one user is serialized; different users proceed in parallel.
type Reconciler struct {
	repo       models.ForecastRepository
	tolerance  time.Duration
	maxHorizon time.Duration
	locks      *locks.Keyed
	logger     zerolog.Logger
}

// Option configures a Reconciler
type Option func(*Reconciler)

// WithMaxHorizon sets the longest forecast timeframe still expected to be pending.
// Forecasts with a longer timeframe are never matched.
func WithMaxHorizon(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.maxHorizon = d
		}
	}
}

// New creates a reconciler that matches readings arriving at most tolerance after a forecast is due
func New(repo models.ForecastRepository, tolerance time.Duration, opts ...Option) *Reconciler {
	r := &Reconciler{
		repo:       repo,
		tolerance:  tolerance,
		maxHorizon: DefaultMaxHorizon,
		locks:      locks.NewKeyed(),
		logger:     log.With().Str("component", "reconcile").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile closes out the pending forecast whose horizon elapsed closest to the reading.
// It returns nil without error when no forecast matches.
func (r *Reconciler) Reconcile(ctx context.Context, reading models.GlucoseReading) (*models.ForecastRecord, error) {
	unlock := r.locks.Lock(reading.UserID)
	defer unlock()

	// a forecast due at most tolerance ago was created no earlier than this
	at := reading.RecordedAt
	from := at.Add(-r.maxHorizon - r.tolerance)
	pending, err := r.repo.PendingForecasts(ctx, reading.UserID, from, at)
	if err != nil {
		return nil, fmt.Errorf("pending forecasts: %w", err)
	}

	var (
		best    *models.ForecastRecord
		bestLag time.Duration
	)
	for i := range pending {
		f := &pending[i]
		due, err := f.DueAt()
		if err != nil {
			r.logger.Warn().Err(err).Str("forecast_id", f.ID).Msg("Skipping forecast with unreadable timeframe")
			continue
		}
		if due.After(at) {
			continue
		}
		lag := at.Sub(due)
		if lag > r.tolerance {
			continue
		}
		if best == nil || lag < bestLag || (lag == bestLag && f.ID < best.ID) {
			best, bestLag = f, lag
		}
	}
	if best == nil {
		return nil, nil
	}

	attached, err := r.repo.AttachActual(ctx, best.ID, reading.Value, at)
	if err != nil {
		return nil, fmt.Errorf("attach actual to %s: %w", best.ID, err)
	}
	if !attached {
		return nil, nil
	}

	value := reading.Value
	best.ActualGlucose = &value
	best.ActualLoggedAt = &at

	r.logger.Info().
		Str("user_id", reading.UserID).
		Str("forecast_id", best.ID).
		Float64("predicted", best.PredictedGlucose).
		Float64("actual", value).
		Dur("lag", bestLag).
		Msg("Forecast reconciled")

	return best, nil
}
