package features

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/GlucoPredictor/models"
)

// Options bounds the windows the assembler reads
type Options struct {
	GlucoseLookback time.Duration
	MealWindow      time.Duration
	ActivityWindow  time.Duration
	MaxTrendPoints  int
}

// DefaultOptions returns the standard relevance windows
func DefaultOptions() Options {
	return Options{
		GlucoseLookback: 3 * time.Hour,
		MealWindow:      3 * time.Hour,
		ActivityWindow:  2 * time.Hour,
		MaxTrendPoints:  36,
	}
}

// MaxActivityDuration is the longest session the API accepts
const MaxActivityDuration = 24 * time.Hour

// MedicationActionWindow is how long a dose of each medication type is treated as active
var MedicationActionWindow = map[string]time.Duration{
	"insulin_rapid": 4 * time.Hour,
	"insulin_mixed": 12 * time.Hour,
	"insulin_long":  24 * time.Hour,
	"metformin":     12 * time.Hour,
	"sulfonylurea":  24 * time.Hour,
	"other":         6 * time.Hour,
}

// DefaultMealCarbs is used when a meal was logged without a carbohydrate estimate
var DefaultMealCarbs = map[string]float64{
	"breakfast": 45,
	"lunch":     60,
	"dinner":    70,
	"snack":     20,
}

func longestMedicationWindow() time.Duration {
	var longest time.Duration
	for _, w := range MedicationActionWindow {
		if w > longest {
			longest = w
		}
	}
	return longest
}

// Assembler builds feature snapshots from the signal store
type Assembler struct {
	store  models.SignalReader
	opts   Options
	logger zerolog.Logger
}

// NewAssembler creates an assembler reading from store
func NewAssembler(store models.SignalReader, opts Options) *Assembler {
	defaults := DefaultOptions()
	if opts.GlucoseLookback <= 0 {
		opts.GlucoseLookback = defaults.GlucoseLookback
	}
	if opts.MealWindow <= 0 {
		opts.MealWindow = defaults.MealWindow
	}
	if opts.ActivityWindow <= 0 {
		opts.ActivityWindow = defaults.ActivityWindow
	}
	if opts.MaxTrendPoints <= 0 {
		opts.MaxTrendPoints = defaults.MaxTrendPoints
	}
	return &Assembler{
		store:  store,
		opts:   opts,
		logger: log.With().Str("component", "features").Logger(),
	}
}

// Assemble gathers the signals relevant at asOf into one snapshot.
// Only a missing glucose baseline is an error; every other gap becomes a neutral marker.
func (a *Assembler) Assemble(ctx context.Context, userID string, asOf time.Time, trigger models.TriggerEvent) (*models.FeatureSnapshot, error) {
	latest, err := a.store.LatestGlucose(ctx, userID, asOf)
	if err != nil {
		return nil, fmt.Errorf("latest glucose: %w", err)
	}
	if latest == nil {
		return nil, &models.InsufficientDataError{UserID: userID}
	}

	snap := &models.FeatureSnapshot{
		UserID:               userID,
		AsOf:                 asOf,
		Trigger:              trigger,
		CurrentGlucose:       latest.Value,
		MinutesSinceLastMeal: models.Unknown,
		ActivityRecency:      models.Unknown,
		ActiveMedications:    []models.ActiveMedication{},
		MoodState:            models.MoodUnknown,
	}

	if err := a.glucoseTrend(ctx, snap, latest); err != nil {
		return nil, err
	}
	if err := a.lastMeal(ctx, snap); err != nil {
		return nil, err
	}
	if err := a.lastActivity(ctx, snap); err != nil {
		return nil, err
	}
	if err := a.activeMedications(ctx, snap); err != nil {
		return nil, err
	}

	mood, err := a.store.LatestMood(ctx, userID, asOf)
	if err != nil {
		return nil, fmt.Errorf("latest mood: %w", err)
	}
	if mood != nil && mood.Mood != "" {
		snap.MoodState = mood.Mood
	}

	lifestyle, err := a.store.LatestLifestyle(ctx, userID, asOf)
	if err != nil {
		return nil, fmt.Errorf("latest lifestyle: %w", err)
	}
	if lifestyle != nil {
		snap.Lifestyle = models.LifestyleFactors{
			Known:             true,
			ExerciseFrequency: lifestyle.ExerciseFrequency,
			SleepQuality:      lifestyle.SleepQuality,
			StressLevel:       lifestyle.StressLevel,
		}
	}

	a.logger.Debug().
		Str("user_id", userID).
		Str("trigger", string(trigger)).
		Int("trend_points", len(snap.GlucoseTrend)).
		Int("signals", len(snap.AvailableSignals())).
		Msg("Snapshot assembled")

	return snap, nil
}

func (a *Assembler) glucoseTrend(ctx context.Context, snap *models.FeatureSnapshot, latest *models.GlucoseReading) error {
	readings, err := a.store.GlucoseReadings(ctx, snap.UserID, snap.AsOf.Add(-a.opts.GlucoseLookback), snap.AsOf)
	if err != nil {
		return fmt.Errorf("glucose readings: %w", err)
	}
	if len(readings) == 0 {
		readings = []models.GlucoseReading{*latest}
	}
	if len(readings) > a.opts.MaxTrendPoints {
		readings = readings[len(readings)-a.opts.MaxTrendPoints:]
	}

	snap.GlucoseTrend = make([]models.GlucosePoint, 0, len(readings))
	for _, r := range readings {
		snap.GlucoseTrend = append(snap.GlucoseTrend, models.GlucosePoint{Value: r.Value, At: r.RecordedAt})
	}
	return nil
}

func (a *Assembler) lastMeal(ctx context.Context, snap *models.FeatureSnapshot) error {
	meals, err := a.store.Meals(ctx, snap.UserID, snap.AsOf.Add(-a.opts.MealWindow), snap.AsOf)
	if err != nil {
		return fmt.Errorf("meals: %w", err)
	}
	if len(meals) == 0 {
		return nil
	}

	last := meals[len(meals)-1]
	snap.MinutesSinceLastMeal = snap.AsOf.Sub(last.Timestamp).Minutes()
	snap.LastMealCarbs = last.CarbsEstimate
	if snap.LastMealCarbs <= 0 {
		snap.LastMealCarbs = DefaultMealCarbs[strings.ToLower(last.MealType)]
	}
	return nil
}

// lastActivity picks the session that ended most recently inside the activity window.
// Sessions are stored by start time, so the query reaches back one maximum duration further.
func (a *Assembler) lastActivity(ctx context.Context, snap *models.FeatureSnapshot) error {
	windowStart := snap.AsOf.Add(-a.opts.ActivityWindow)
	activities, err := a.store.Activities(ctx, snap.UserID, windowStart.Add(-MaxActivityDuration), snap.AsOf)
	if err != nil {
		return fmt.Errorf("activities: %w", err)
	}

	var (
		last  *models.ActivityLog
		ended time.Time
	)
	for i := range activities {
		act := &activities[i]
		end := act.Timestamp.Add(time.Duration(act.DurationMinutes) * time.Minute)
		if end.After(snap.AsOf) {
			end = snap.AsOf
		}
		if end.Before(windowStart) {
			continue
		}
		if last == nil || !end.Before(ended) {
			last, ended = act, end
		}
	}
	if last == nil {
		return nil
	}

	snap.ActivityRecency = snap.AsOf.Sub(ended).Minutes()
	snap.ActivityLevel = strings.ToLower(last.ActivityLevel)
	return nil
}

// activeMedications keeps the latest dose per medication that is still inside its action window
func (a *Assembler) activeMedications(ctx context.Context, snap *models.FeatureSnapshot) error {
	logs, err := a.store.MedicationLogs(ctx, snap.UserID, snap.AsOf.Add(-longestMedicationWindow()), snap.AsOf)
	if err != nil {
		return fmt.Errorf("medication logs: %w", err)
	}

	latest := make(map[string]models.MedicationLog)
	for _, m := range logs {
		window, ok := MedicationActionWindow[m.MedicationType]
		if !ok {
			window = MedicationActionWindow["other"]
		}
		if snap.AsOf.Sub(m.TakenAt) > window {
			continue
		}
		key := m.MedicationName + "|" + m.MedicationType
		if prev, ok := latest[key]; !ok || !m.TakenAt.Before(prev.TakenAt) {
			latest[key] = m
		}
	}

	for _, m := range latest {
		snap.ActiveMedications = append(snap.ActiveMedications, models.ActiveMedication{
			Name:      m.MedicationName,
			Type:      m.MedicationType,
			Dosage:    m.Dosage,
			LastTaken: m.TakenAt,
		})
	}
	sort.Slice(snap.ActiveMedications, func(i, j int) bool {
		mi, mj := snap.ActiveMedications[i], snap.ActiveMedications[j]
		if !mi.LastTaken.Equal(mj.LastTaken) {
			return mi.LastTaken.Before(mj.LastTaken)
		}
		return mi.Name+mi.Type < mj.Name+mj.Type
	})
	return nil
}
