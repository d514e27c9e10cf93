package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/GlucoPredictor/models"
)

// Config holds the policy constants of the engine
type Config struct {
	DeadBand       float64
	HypoThreshold  float64
	HyperThreshold float64
	MinConfidence  float64
	Timeframe      string
}

// DefaultConfig returns the engine defaults
func DefaultConfig() Config {
	return Config{
		DeadBand:       5,
		HypoThreshold:  70,
		HyperThreshold: 180,
		MinConfidence:  0.2,
		Timeframe:      models.DefaultTimeframe,
	}
}

// Engine turns feature snapshots into forecast records
type Engine struct {
	cfg      Config
	horizon  time.Duration
	registry *Registry
	logger   zerolog.Logger
}

// NewEngine validates cfg and creates an engine backed by registry
func NewEngine(cfg Config, registry *Registry) (*Engine, error) {
	horizon, err := models.ParseTimeframe(cfg.Timeframe)
	if err != nil {
		return nil, fmt.Errorf("forecast timeframe: %w", err)
	}
	if cfg.HypoThreshold >= cfg.HyperThreshold {
		return nil, fmt.Errorf("hypo threshold %.1f must be below hyper threshold %.1f", cfg.HypoThreshold, cfg.HyperThreshold)
	}
	if cfg.DeadBand < 0 {
		return nil, fmt.Errorf("dead-band must not be negative")
	}
	if cfg.MinConfidence <= 0 || cfg.MinConfidence > 1 {
		return nil, fmt.Errorf("min confidence %.2f out of (0,1]", cfg.MinConfidence)
	}
	return &Engine{
		cfg:      cfg,
		horizon:  horizon,
		registry: registry,
		logger:   log.With().Str("component", "forecast").Logger(),
	}, nil
}

// Horizon returns the parsed forecast timeframe
func (e *Engine) Horizon() time.Duration {
	return e.horizon
}

// Predict scores snap with the named model and derives the forecast record.
// A missing or failing scorer yields *models.ModelUnavailableError.
func (e *Engine) Predict(ctx context.Context, snap *models.FeatureSnapshot, model string) (*models.ForecastRecord, error) {
	scorer, ok := e.registry.Get(model)
	if !ok {
		return nil, &models.ModelUnavailableError{Model: model, Err: errors.New("not registered")}
	}

	score, err := scorer.Score(ctx, snap, e.horizon)
	if err != nil {
		var unavailable *models.ModelUnavailableError
		if errors.As(err, &unavailable) {
			return nil, err
		}
		return nil, &models.ModelUnavailableError{Model: model, Err: err}
	}
	if score == nil || math.IsNaN(score.Value) || math.IsInf(score.Value, 0) {
		return nil, &models.ModelUnavailableError{Model: model, Err: errors.New("invalid score")}
	}

	current := round1(snap.CurrentGlucose)
	predicted := round1(score.Value)
	direction := ClassifyDirection(predicted, current, e.cfg.DeadBand)
	risk := e.assessRisk(current, predicted, score.Path)
	factors := RankFactors(score.Contributions)

	dominant := models.SignalType("")
	if len(factors) > 0 {
		dominant = models.SignalType(factors[0])
	}

	record := &models.ForecastRecord{
		ID:               uuid.NewString(),
		UserID:           snap.UserID,
		PredictedGlucose: predicted,
		CurrentGlucose:   current,
		Direction:        direction,
		DirectionArrow:   direction.Arrow(),
		DirectionLabel:   direction.Label(),
		Confidence:       e.confidence(snap, score.Certainty),
		Timeframe:        e.cfg.Timeframe,
		Recommendation:   Recommend(direction, risk, dominant),
		RiskAlert:        risk,
		Factors:          factors,
		ModelUsed:        scorer.Name(),
		TriggerEvent:     snap.Trigger,
		CreatedAt:        snap.AsOf,
	}

	e.logger.Debug().
		Str("user_id", snap.UserID).
		Str("model", record.ModelUsed).
		Float64("current", current).
		Float64("predicted", predicted).
		Str("direction", string(direction)).
		Float64("confidence", record.Confidence).
		Msg("Forecast computed")

	return record, nil
}

// ClassifyDirection maps the predicted change onto a direction using a symmetric dead-band.
// A change exactly on the band edge is stable.
func ClassifyDirection(predicted, current, deadBand float64) models.Direction {
	diff := predicted - current
	switch {
	case diff > deadBand:
		return models.DirectionRising
	case diff < -deadBand:
		return models.DirectionDropping
	default:
		return models.DirectionStable
	}
}

// confidence uses the scorer certainty when present, otherwise the share of available signal types
func (e *Engine) confidence(snap *models.FeatureSnapshot, certainty *float64) float64 {
	if certainty != nil && !math.IsNaN(*certainty) {
		return clamp(*certainty, 0, 1)
	}
	available := len(snap.AvailableSignals())
	return clamp(0.3+0.1*float64(available), e.cfg.MinConfidence, 1)
}

func (e *Engine) assessRisk(current, predicted float64, path []float64) *models.RiskAlert {
	if alert := e.thresholdAlert(predicted, false); alert != nil {
		return alert
	}
	if current < e.cfg.HypoThreshold || current > e.cfg.HyperThreshold {
		return nil
	}
	for _, v := range path {
		if alert := e.thresholdAlert(v, true); alert != nil {
			return alert
		}
	}
	return nil
}

func (e *Engine) thresholdAlert(value float64, projected bool) *models.RiskAlert {
	when := "is predicted"
	if projected {
		when = "may pass"
	}
	switch {
	case value < e.cfg.HypoThreshold:
		return &models.RiskAlert{
			Condition: models.RiskHypoglycemia,
			Message:   fmt.Sprintf("Glucose %s below %.0f mg/dL within %s", when, e.cfg.HypoThreshold, e.cfg.Timeframe),
			Projected: projected,
		}
	case value > e.cfg.HyperThreshold:
		return &models.RiskAlert{
			Condition: models.RiskHyperglycemia,
			Message:   fmt.Sprintf("Glucose %s above %.0f mg/dL within %s", when, e.cfg.HyperThreshold, e.cfg.Timeframe),
			Projected: projected,
		}
	}
	return nil
}

// RankFactors orders signal types by absolute contribution, breaking ties by signal priority.
// Zero contributions are dropped.
func RankFactors(contributions map[models.SignalType]float64) []string {
	types := make([]models.SignalType, 0, len(contributions))
	for t, c := range contributions {
		if round1(math.Abs(c)) == 0 {
			continue
		}
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool {
		ai, aj := round1(math.Abs(contributions[types[i]])), round1(math.Abs(contributions[types[j]]))
		if ai != aj {
			return ai > aj
		}
		if types[i].Priority() != types[j].Priority() {
			return types[i].Priority() < types[j].Priority()
		}
		return types[i] < types[j]
	})

	factors := make([]string, 0, len(types))
	for _, t := range types {
		factors = append(factors, string(t))
	}
	return factors
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
