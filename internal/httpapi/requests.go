package httpapi

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/Alias1177/GlucoPredictor/models"
)

type glucoseRequest struct {
	UserID      string     `json:"userId" validate:"required"`
	Value       float64    `json:"value" validate:"required,min=20,max=600"`
	ReadingType string     `json:"readingType" validate:"omitempty,oneof=fasting before_meal after_meal bedtime random other"`
	RecordedAt  *time.Time `json:"recordedAt"`
}

func (r glucoseRequest) toModel(now time.Time) *models.GlucoseReading {
	return &models.GlucoseReading{
		UserID:      r.UserID,
		Value:       r.Value,
		ReadingType: r.ReadingType,
		RecordedAt:  orNow(r.RecordedAt, now),
	}
}

type mealRequest struct {
	UserID        string     `json:"userId" validate:"required"`
	MealType      string     `json:"mealType" validate:"required,oneof=breakfast lunch dinner snack"`
	CarbsEstimate float64    `json:"carbsEstimate" validate:"gte=0,lte=500"`
	Timestamp     *time.Time `json:"timestamp"`
}

func (r mealRequest) toModel(now time.Time) *models.MealLog {
	return &models.MealLog{
		UserID:        r.UserID,
		MealType:      r.MealType,
		CarbsEstimate: r.CarbsEstimate,
		Timestamp:     orNow(r.Timestamp, now),
	}
}

type activityRequest struct {
	UserID          string     `json:"userId" validate:"required"`
	ActivityLevel   string     `json:"activityLevel" validate:"required,oneof=low medium high"`
	ActivityType    string     `json:"activityType"`
	DurationMinutes int        `json:"durationMinutes" validate:"gte=0,lte=1440"`
	Timestamp       *time.Time `json:"timestamp"`
}

func (r activityRequest) toModel(now time.Time) *models.ActivityLog {
	return &models.ActivityLog{
		UserID:          r.UserID,
		ActivityLevel:   r.ActivityLevel,
		ActivityType:    r.ActivityType,
		DurationMinutes: r.DurationMinutes,
		Timestamp:       orNow(r.Timestamp, now),
	}
}

type medicationRequest struct {
	UserID         string     `json:"userId" validate:"required"`
	MedicationName string     `json:"medicationName" validate:"required,max=100"`
	MedicationType string     `json:"medicationType" validate:"required,oneof=insulin_rapid insulin_long insulin_mixed metformin sulfonylurea other"`
	Dosage         float64    `json:"dosage" validate:"gt=0"`
	DoseUnit       string     `json:"doseUnit" validate:"required"`
	TakenAt        *time.Time `json:"takenAt"`
}

func (r medicationRequest) toModel(now time.Time) *models.MedicationLog {
	return &models.MedicationLog{
		UserID:         r.UserID,
		MedicationName: r.MedicationName,
		MedicationType: r.MedicationType,
		Dosage:         r.Dosage,
		DoseUnit:       r.DoseUnit,
		TakenAt:        orNow(r.TakenAt, now),
	}
}

type moodRequest struct {
	UserID string `json:"userId" validate:"required"`
	Mood   string `json:"mood" validate:"required,oneof=Great Good Okay Low Rough"`
	Period string `json:"period" validate:"omitempty,oneof=morning afternoon evening"`
}

type lifestyleRequest struct {
	UserID            string `json:"userId" validate:"required"`
	ExerciseFrequency string `json:"exerciseFrequency" validate:"required,oneof=rare moderate frequent"`
	SleepQuality      int    `json:"sleepQuality" validate:"required,min=1,max=5"`
	StressLevel       int    `json:"stressLevel" validate:"required,min=1,max=5"`
}

type predictRequest struct {
	UserID string `json:"userId" validate:"required"`
	Model  string `json:"model"`
}

type notificationRequest struct {
	UserID  string          `json:"userId" validate:"required"`
	Type    string          `json:"type" validate:"required,oneof=reminder medication achievement system"`
	Title   string          `json:"title" validate:"required,max=200"`
	Message string          `json:"message" validate:"required,max=500"`
	Data    json.RawMessage `json:"data"`
}

func (r notificationRequest) toModel() (*models.NotificationRecord, error) {
	kind := models.NotificationType(r.Type)
	payload, err := models.UnmarshalPayload(kind, r.Data)
	if err != nil {
		return nil, err
	}
	return &models.NotificationRecord{
		UserID:  r.UserID,
		Type:    kind,
		Title:   strings.TrimSpace(r.Title),
		Message: strings.TrimSpace(r.Message),
		Data:    payload,
	}, nil
}

type userRequest struct {
	UserID string `json:"userId" validate:"required"`
}

type logResponse struct {
	Log      any                    `json:"log"`
	Forecast *models.ForecastRecord `json:"forecast"`
}

func orNow(t *time.Time, now time.Time) time.Time {
	if t == nil || t.IsZero() {
		return now
	}
	return *t
}
