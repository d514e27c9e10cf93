package models

import (
	"time"
)

// TriggerEvent identifies what started a forecast cycle
type TriggerEvent string

const (
	TriggerGlucoseLog    TriggerEvent = "glucose_log"
	TriggerMealLog       TriggerEvent = "meal_log"
	TriggerActivityLog   TriggerEvent = "activity_log"
	TriggerMedicationLog TriggerEvent = "medication_log"
	TriggerManual        TriggerEvent = "manual"
	TriggerAuto          TriggerEvent = "auto"
)

// Valid reports whether t is one of the known trigger events
func (t TriggerEvent) Valid() bool {
	switch t {
	case TriggerGlucoseLog, TriggerMealLog, TriggerActivityLog, TriggerMedicationLog, TriggerManual, TriggerAuto:
		return true
	}
	return false
}

// Direction is the forecast trend relative to the current reading
type Direction string

const (
	DirectionRising   Direction = "rising"
	DirectionStable   Direction = "stable"
	DirectionDropping Direction = "dropping"
)

// Valid reports whether d is one of the known directions
func (d Direction) Valid() bool {
	return d == DirectionRising || d == DirectionStable || d == DirectionDropping
}

// Arrow returns the glyph shown next to a forecast
func (d Direction) Arrow() string {
	switch d {
	case DirectionRising:
		return "↑"
	case DirectionDropping:
		return "↓"
	default:
		return "→"
	}
}

// Label returns the human readable direction
func (d Direction) Label() string {
	switch d {
	case DirectionRising:
		return "Rising"
	case DirectionDropping:
		return "Dropping"
	default:
		return "Stable"
	}
}

// SignalType names a family of health signals that can drive a forecast
type SignalType string

const (
	SignalGlucoseTrend SignalType = "glucose_trend"
	SignalMedication   SignalType = "medication"
	SignalMeal         SignalType = "meal"
	SignalActivity     SignalType = "activity"
	SignalMood         SignalType = "mood"
	SignalLifestyle    SignalType = "lifestyle"
)

// SignalPriority is the fixed order used to break ties between equally influential signals
var SignalPriority = []SignalType{
	SignalGlucoseTrend,
	SignalMedication,
	SignalMeal,
	SignalActivity,
	SignalMood,
	SignalLifestyle,
}

// Priority returns the position of s in SignalPriority; unknown signals sort last
func (s SignalType) Priority() int {
	for i, p := range SignalPriority {
		if p == s {
			return i
		}
	}
	return len(SignalPriority)
}

// GlucoseReading is a single blood glucose measurement in mg/dL
type GlucoseReading struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId" validate:"required"`
	Value       float64   `json:"value" validate:"required,min=20,max=600"`
	ReadingType string    `json:"readingType,omitempty" validate:"omitempty,oneof=fasting before_meal after_meal bedtime random other"`
	RecordedAt  time.Time `json:"recordedAt" validate:"required"`
}

// MealLog records a meal and its estimated carbohydrates
type MealLog struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	CarbsEstimate float64   `json:"carbsEstimate,omitempty"` // grams, 0 when unknown
	MealType      string    `json:"mealType"`                // breakfast, lunch, dinner, snack
	Timestamp     time.Time `json:"timestamp"`
}

// ActivityLog records a bout of physical activity
type ActivityLog struct {
	ID              string    `json:"id"`
	UserID          string    `json:"userId"`
	ActivityLevel   string    `json:"activityLevel"` // low, medium, high
	ActivityType    string    `json:"activityType,omitempty"`
	DurationMinutes int       `json:"durationMinutes,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// MedicationLog records a dose taken
type MedicationLog struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	MedicationName string    `json:"medicationName"`
	MedicationType string    `json:"medicationType"` // insulin_rapid, insulin_long, insulin_mixed, metformin, sulfonylurea, other
	Dosage         float64   `json:"dosage"`
	DoseUnit       string    `json:"doseUnit"`
	TakenAt        time.Time `json:"takenAt"`
}

// MoodLog records a self-reported mood
type MoodLog struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Mood      string    `json:"mood"`   // Great, Good, Okay, Low, Rough
	Period    string    `json:"period"` // morning, afternoon, evening
	CreatedAt time.Time `json:"createdAt"`
}

// LifestyleLog records slowly changing lifestyle state
type LifestyleLog struct {
	ID                string    `json:"id"`
	UserID            string    `json:"userId"`
	ExerciseFrequency string    `json:"exerciseFrequency"` // rare, moderate, frequent
	SleepQuality      int       `json:"sleepQuality"`      // 1-5
	StressLevel       int       `json:"stressLevel"`       // 1-5
	CreatedAt         time.Time `json:"createdAt"`
}

// Unknown marks a numeric snapshot field whose signal was not available
const Unknown = -1.0

// MoodUnknown marks a snapshot without any mood log
const MoodUnknown = "unknown"

// GlucosePoint is one value of the recent glucose trend
type GlucosePoint struct {
	Value float64   `json:"value"`
	At    time.Time `json:"at"`
}

// ActiveMedication is a dose that may still be acting at snapshot time
type ActiveMedication struct {
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Dosage    float64   `json:"dosage"`
	LastTaken time.Time `json:"lastTaken"`
}

// LifestyleFactors is the latest known lifestyle state
type LifestyleFactors struct {
	Known             bool   `json:"known"`
	ExerciseFrequency string `json:"exerciseFrequency"`
	SleepQuality      int    `json:"sleepQuality"`
	StressLevel       int    `json:"stressLevel"`
}

// FeatureSnapshot is the fixed-shape input of a forecast. It is built per trigger and never stored.
type FeatureSnapshot struct {
	UserID               string             `json:"userId"`
	AsOf                 time.Time          `json:"asOf"`
	Trigger              TriggerEvent       `json:"trigger"`
	CurrentGlucose       float64            `json:"currentGlucose"`
	GlucoseTrend         []GlucosePoint     `json:"glucoseTrend"` // oldest first, last is current
	MinutesSinceLastMeal float64            `json:"minutesSinceLastMeal"`
	LastMealCarbs        float64            `json:"lastMealCarbs"`
	ActivityRecency      float64            `json:"activityRecency"` // minutes since the last activity ended
	ActivityLevel        string             `json:"activityLevel"`
	ActiveMedications    []ActiveMedication `json:"activeMedications"`
	MoodState            string             `json:"moodState"`
	Lifestyle            LifestyleFactors   `json:"lifestyle"`
}

// AvailableSignals lists the signal types that carry real data in the snapshot
func (s *FeatureSnapshot) AvailableSignals() []SignalType {
	var out []SignalType
	if len(s.GlucoseTrend) >= 2 {
		out = append(out, SignalGlucoseTrend)
	}
	if len(s.ActiveMedications) > 0 {
		out = append(out, SignalMedication)
	}
	if s.MinutesSinceLastMeal != Unknown {
		out = append(out, SignalMeal)
	}
	if s.ActivityRecency != Unknown {
		out = append(out, SignalActivity)
	}
	if s.MoodState != "" && s.MoodState != MoodUnknown {
		out = append(out, SignalMood)
	}
	if s.Lifestyle.Known {
		out = append(out, SignalLifestyle)
	}
	return out
}

// RiskCondition names the glucose threshold a forecast crosses
type RiskCondition string

const (
	RiskHypoglycemia  RiskCondition = "hypoglycemia"
	RiskHyperglycemia RiskCondition = "hyperglycemia"
)

// RiskAlert is attached to a forecast that crosses a clinically significant threshold
type RiskAlert struct {
	Condition RiskCondition `json:"condition"`
	Message   string        `json:"message"`
	// Projected is set when only the trajectory, not the endpoint, crosses the threshold
	Projected bool `json:"projected,omitempty"`
}

// DefaultTimeframe is the horizon used when none is configured
const DefaultTimeframe = "30 minutes"

// MaxRecommendationLength bounds ForecastRecord.Recommendation
const MaxRecommendationLength = 500

// ForecastRecord is a persisted short-horizon glucose prediction
type ForecastRecord struct {
	ID               string       `json:"id"`
	UserID           string       `json:"userId"`
	PredictedGlucose float64      `json:"predictedGlucose"`
	CurrentGlucose   float64      `json:"currentGlucose"`
	Direction        Direction    `json:"direction"`
	DirectionArrow   string       `json:"directionArrow"`
	DirectionLabel   string       `json:"directionLabel"`
	Confidence       float64      `json:"confidence"`
	Timeframe        string       `json:"timeframe"`
	Recommendation   string       `json:"recommendation"`
	RiskAlert        *RiskAlert   `json:"riskAlert"`
	Factors          []string     `json:"factors"`
	ModelUsed        string       `json:"modelUsed"`
	TriggerEvent     TriggerEvent `json:"triggerEvent"`
	ActualGlucose    *float64     `json:"actualGlucose,omitempty"`
	ActualLoggedAt   *time.Time   `json:"actualLoggedAt,omitempty"`
	CreatedAt        time.Time    `json:"createdAt"`
}

// IsReconciled reports whether the actual outcome has been attached
func (f *ForecastRecord) IsReconciled() bool {
	return f.ActualGlucose != nil
}

// DueAt returns the moment the forecast horizon elapses
func (f *ForecastRecord) DueAt() (time.Time, error) {
	horizon, err := ParseTimeframe(f.Timeframe)
	if err != nil {
		return time.Time{}, err
	}
	return f.CreatedAt.Add(horizon), nil
}

// RiskCondition returns the alert condition or "" when there is none
func (f *ForecastRecord) RiskCondition() RiskCondition {
	if f.RiskAlert == nil {
		return ""
	}
	return f.RiskAlert.Condition
}

// NotificationType categorizes notifications shown to the user
type NotificationType string

const (
	NotificationPrediction  NotificationType = "prediction"
	NotificationReminder    NotificationType = "reminder"
	NotificationMedication  NotificationType = "medication"
	NotificationInsight     NotificationType = "insight"
	NotificationAchievement NotificationType = "achievement"
	NotificationSystem      NotificationType = "system"
)

// Valid reports whether t is one of the known notification types
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationPrediction, NotificationReminder, NotificationMedication,
		NotificationInsight, NotificationAchievement, NotificationSystem:
		return true
	}
	return false
}

const (
	MaxNotificationTitleLength   = 200
	MaxNotificationMessageLength = 500
)

// NotificationRecord is a user-facing notification
type NotificationRecord struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	IsRead    bool             `json:"isRead"`
	Data      Payload          `json:"data,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
}

// ForecastID returns the originating forecast id when the payload references one
func (n *NotificationRecord) ForecastID() string {
	switch p := n.Data.(type) {
	case *PredictionPayload:
		return p.ForecastID
	case *InsightPayload:
		return p.ForecastID
	}
	return ""
}

// NotificationQuery filters notification listings
type NotificationQuery struct {
	UserID     string
	UnreadOnly bool
	Since      time.Time // zero means no lower bound
	Offset     int
	Limit      int // 0 means no limit
}

// NotificationPage is one page of a notification listing
type NotificationPage struct {
	Notifications []NotificationRecord `json:"notifications"`
	UnreadCount   int                  `json:"unreadCount"`
	Total         int                  `json:"total"`
	Page          int                  `json:"page"`
	Limit         int                  `json:"limit"`
	Pages         int                  `json:"pages"`
}
