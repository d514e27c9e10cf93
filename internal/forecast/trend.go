package forecast

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/Alias1177/GlucoPredictor/models"
)

// TrendModelName identifies the rule-based scorer
const TrendModelName = "trend-v1"

// TrendParams tunes the rule-based scorer
type TrendParams struct {
	EMAPeriod          int
	MaxSlope           float64 // mg/dL per minute
	Damping            float64
	CarbFactor         float64 // mg/dL per gram of carbohydrate
	CarbAbsorption     time.Duration
	InsulinSensitivity float64 // mg/dL per unit of rapid insulin
	InsulinDuration    time.Duration
	ActivityWindow     time.Duration
	Step               time.Duration
}

// DefaultTrendParams returns conservative adult defaults
func DefaultTrendParams() TrendParams {
	return TrendParams{
		EMAPeriod:          3,
		MaxSlope:           3,
		Damping:            0.8,
		CarbFactor:         4,
		CarbAbsorption:     180 * time.Minute,
		InsulinSensitivity: 40,
		InsulinDuration:    240 * time.Minute,
		ActivityWindow:     120 * time.Minute,
		Step:               5 * time.Minute,
	}
}

var activityEffect = map[string]float64{
	"low":    -5,
	"medium": -15,
	"high":   -25,
}

// TrendScorer projects glucose from the recent slope plus additive signal effects.
// It never reports a certainty.
type TrendScorer struct {
	params TrendParams
}

// NewTrendScorer creates the rule-based scorer
func NewTrendScorer(params TrendParams) *TrendScorer {
	if params.Step <= 0 {
		params.Step = 5 * time.Minute
	}
	if params.EMAPeriod <= 0 {
		params.EMAPeriod = 1
	}
	return &TrendScorer{params: params}
}

func (s *TrendScorer) Name() string {
	return TrendModelName
}

// Score evaluates the projection at every step up to horizon
func (s *TrendScorer) Score(ctx context.Context, snap *models.FeatureSnapshot, horizon time.Duration) (*Score, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if horizon <= 0 {
		horizon = 30 * time.Minute
	}

	slope := s.slope(snap.GlucoseTrend)
	total := horizon.Minutes()

	var path []float64
	var contributions map[models.SignalType]float64
	for t := s.params.Step; ; t += s.params.Step {
		if t > horizon {
			t = horizon
		}
		effects := s.effects(snap, slope, t.Minutes(), total)
		value := snap.CurrentGlucose
		for _, v := range effects {
			value += v
		}
		path = append(path, clamp(value, 20, 600))
		if t == horizon {
			contributions = effects
			break
		}
	}

	return &Score{
		Value:         path[len(path)-1],
		Contributions: contributions,
		Path:          path,
	}, nil
}

// effects returns each signal's additive change after t of total minutes
func (s *TrendScorer) effects(snap *models.FeatureSnapshot, slope, t, total float64) map[models.SignalType]float64 {
	p := s.params
	effects := make(map[models.SignalType]float64)
	share := t / total

	if len(snap.GlucoseTrend) >= 2 {
		effects[models.SignalGlucoseTrend] = slope * t * p.Damping
	}

	if snap.MinutesSinceLastMeal != models.Unknown && snap.LastMealCarbs > 0 {
		absorb := p.CarbAbsorption.Minutes()
		since := snap.MinutesSinceLastMeal
		absorbed := fraction(since+t, absorb) - fraction(since, absorb)
		effects[models.SignalMeal] = snap.LastMealCarbs * p.CarbFactor * absorbed
	}

	if snap.ActivityRecency != models.Unknown {
		weight := math.Max(0, 1-snap.ActivityRecency/p.ActivityWindow.Minutes())
		effects[models.SignalActivity] = activityEffect[strings.ToLower(snap.ActivityLevel)] * weight * share
	}

	if len(snap.ActiveMedications) > 0 {
		var med float64
		for _, m := range snap.ActiveMedications {
			since := snap.AsOf.Sub(m.LastTaken).Minutes()
			switch m.Type {
			case "insulin_rapid", "insulin_mixed":
				dia := p.InsulinDuration.Minutes()
				used := fraction(since+t, dia) - fraction(since, dia)
				med -= m.Dosage * p.InsulinSensitivity * used
			case "insulin_long":
				med -= 3 * share
			case "metformin", "sulfonylurea":
				med -= 5 * share
			}
		}
		effects[models.SignalMedication] = med
	}

	switch snap.MoodState {
	case "Low", "Rough":
		effects[models.SignalMood] = 5 * share
	}

	if snap.Lifestyle.Known {
		var l float64
		if snap.Lifestyle.StressLevel >= 4 {
			l += 4
		}
		if snap.Lifestyle.SleepQuality > 0 && snap.Lifestyle.SleepQuality <= 2 {
			l += 3
		}
		if snap.Lifestyle.ExerciseFrequency == "frequent" {
			l -= 2
		}
		effects[models.SignalLifestyle] = l * share
	}

	return effects
}

// slope fits a least-squares line through the EMA-smoothed trend, in mg/dL per minute
func (s *TrendScorer) slope(points []models.GlucosePoint) float64 {
	if len(points) < 2 {
		return 0
	}
	values := make([]float64, len(points))
	for i, pt := range points {
		values[i] = pt.Value
	}
	smoothed := emaSeries(values, s.params.EMAPeriod)

	origin := points[0].At
	var sumX, sumY, sumXY, sumXX float64
	n := float64(len(points))
	for i, pt := range points {
		x := pt.At.Sub(origin).Minutes()
		y := smoothed[i]
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	slope := (n*sumXY - sumX*sumY) / denom
	return clamp(slope, -s.params.MaxSlope, s.params.MaxSlope)
}

// emaSeries returns the running EMA of values, seeded with the first value
func emaSeries(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	multiplier := 2.0 / float64(period+1)
	ema := values[0]
	for i, v := range values {
		if i > 0 {
			ema = (v-ema)*multiplier + ema
		}
		out[i] = ema
	}
	return out
}

// fraction is the linear share of a process of length total completed after x minutes
func fraction(x, total float64) float64 {
	if total <= 0 {
		return 1
	}
	return clamp(x/total, 0, 1)
}
