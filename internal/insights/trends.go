package insights

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/Alias1177/GlucoPredictor/models"
)

const week = 7 * 24 * time.Hour

// TrendDirection compares this week's average with last week's
type TrendDirection string

const (
	TrendRising    TrendDirection = "rising"
	TrendStable    TrendDirection = "stable"
	TrendDeclining TrendDirection = "declining"
)

// WeeklyTrend summarizes the last seven days of readings
type WeeklyTrend struct {
	Direction        TrendDirection `json:"direction"`
	CurrentAverage   float64        `json:"currentAverage"`
	PreviousAverage  *float64       `json:"previousAverage"`
	PercentageChange float64        `json:"percentageChange"`
	TotalReadings    int            `json:"totalReadings"`
	RiskPeriod       string         `json:"riskPeriod"`
	Recommendation   string         `json:"recommendation"`
}

var riskPeriodLabels = map[string]string{
	"fasting":     "Fasting readings tend to run high",
	"after_meal":  "Post-meal readings tend to spike",
	"before_meal": "Pre-meal readings tend to run high",
	"bedtime":     "Bedtime readings tend to be elevated",
	"random":      "Some random readings are elevated",
}

// Analyzer computes trends from the signal store
type Analyzer struct {
	store          models.SignalReader
	hyperThreshold float64
	band           float64
}

// NewAnalyzer creates an analyzer; readings above hyperThreshold count as high
func NewAnalyzer(store models.SignalReader, hyperThreshold float64) *Analyzer {
	return &Analyzer{store: store, hyperThreshold: hyperThreshold, band: 5}
}

// Weekly returns nil when the user has no reading in the last seven days
func (a *Analyzer) Weekly(ctx context.Context, userID string, now time.Time) (*WeeklyTrend, error) {
	readings, err := a.store.GlucoseReadings(ctx, userID, now.Add(-2*week), now)
	if err != nil {
		return nil, fmt.Errorf("glucose readings: %w", err)
	}

	var current, previous []models.GlucoseReading
	cutoff := now.Add(-week)
	for _, r := range readings {
		if r.RecordedAt.Before(cutoff) {
			previous = append(previous, r)
		} else {
			current = append(current, r)
		}
	}
	return Summarize(current, previous, a.hyperThreshold, a.band), nil
}

// Summarize compares two weeks of readings. band is the percentage change treated as stable.
func Summarize(current, previous []models.GlucoseReading, hyperThreshold, band float64) *WeeklyTrend {
	if len(current) == 0 {
		return nil
	}

	currentAvg := average(current)
	trend := &WeeklyTrend{
		Direction:      TrendStable,
		CurrentAverage: math.Round(currentAvg),
		TotalReadings:  len(current),
		RiskPeriod:     riskPeriod(current, hyperThreshold),
	}

	if len(previous) > 0 {
		previousAvg := average(previous)
		rounded := math.Round(previousAvg)
		trend.PreviousAverage = &rounded

		change := (currentAvg - previousAvg) / previousAvg * 100
		trend.PercentageChange = math.Round(change*10) / 10
		switch {
		case change > band:
			trend.Direction = TrendRising
		case change < -band:
			trend.Direction = TrendDeclining
		}
	}

	switch trend.Direction {
	case TrendRising:
		trend.Recommendation = "Your average glucose has been rising. Consider reviewing your meals and activity."
	case TrendDeclining:
		trend.Recommendation = "Your average glucose is trending down. Good progress!"
	default:
		trend.Recommendation = "Your glucose levels are looking stable. Keep it up!"
	}
	return trend
}

func average(readings []models.GlucoseReading) float64 {
	var sum float64
	for _, r := range readings {
		sum += r.Value
	}
	return sum / float64(len(readings))
}

// riskPeriod names the reading type that most often runs above the threshold
func riskPeriod(readings []models.GlucoseReading, hyperThreshold float64) string {
	counts := make(map[string]int)
	for _, r := range readings {
		if r.Value <= hyperThreshold {
			continue
		}
		kind := r.ReadingType
		if kind == "" {
			kind = "random"
		}
		counts[kind]++
	}
	if len(counts) == 0 {
		return "No high-risk periods detected"
	}

	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool {
		if counts[kinds[i]] != counts[kinds[j]] {
			return counts[kinds[i]] > counts[kinds[j]]
		}
		return kinds[i] < kinds[j]
	})

	if label, ok := riskPeriodLabels[kinds[0]]; ok {
		return label
	}
	return "Some readings are elevated"
}
