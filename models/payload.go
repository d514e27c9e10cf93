package models

import (
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"
)

// Payload is the typed data attached to a notification. The concrete type is selected by
// the notification type, so consumers switch on the variant instead of probing a map.
type Payload interface {
	Kind() NotificationType
}

// PredictionPayload links a prediction notification to its forecast
type PredictionPayload struct {
	ForecastID       string        `json:"forecastId"`
	Direction        Direction     `json:"direction"`
	RiskCondition    RiskCondition `json:"riskCondition,omitempty"`
	PredictedGlucose float64       `json:"predictedGlucose"`
	Confidence       float64       `json:"confidence"`
}

func (*PredictionPayload) Kind() NotificationType { return NotificationPrediction }

// InsightPayload links a low-confidence forecast notification to its forecast
type InsightPayload struct {
	ForecastID string    `json:"forecastId"`
	Direction  Direction `json:"direction"`
	Confidence float64   `json:"confidence"`
}

func (*InsightPayload) Kind() NotificationType { return NotificationInsight }

type ReminderPayload struct {
	Subject string     `json:"subject"`
	DueAt   *time.Time `json:"dueAt,omitempty"`
}

func (*ReminderPayload) Kind() NotificationType { return NotificationReminder }

type MedicationPayload struct {
	MedicationName string  `json:"medicationName"`
	Dosage         float64 `json:"dosage,omitempty"`
	DoseUnit       string  `json:"doseUnit,omitempty"`
}

func (*MedicationPayload) Kind() NotificationType { return NotificationMedication }

type AchievementPayload struct {
	Badge string `json:"badge"`
}

func (*AchievementPayload) Kind() NotificationType { return NotificationAchievement }

type SystemPayload struct {
	Code string `json:"code"`
}

func (*SystemPayload) Kind() NotificationType { return NotificationSystem }

// newPayload returns an empty variant for kind
func newPayload(kind NotificationType) (Payload, error) {
	switch kind {
	case NotificationPrediction:
		return &PredictionPayload{}, nil
	case NotificationInsight:
		return &InsightPayload{}, nil
	case NotificationReminder:
		return &ReminderPayload{}, nil
	case NotificationMedication:
		return &MedicationPayload{}, nil
	case NotificationAchievement:
		return &AchievementPayload{}, nil
	case NotificationSystem:
		return &SystemPayload{}, nil
	}
	return nil, fmt.Errorf("unknown notification type %q", kind)
}

// MarshalPayload encodes p; a nil payload encodes to nil
func MarshalPayload(p Payload) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	return json.Marshal(p)
}

// UnmarshalPayload decodes raw into the variant selected by kind
func UnmarshalPayload(kind NotificationType, raw []byte) (Payload, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	p, err := newPayload(kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", kind, err)
	}
	return p, nil
}

// UnmarshalJSON decodes the payload according to the notification type
func (n *NotificationRecord) UnmarshalJSON(b []byte) error {
	type alias NotificationRecord
	aux := struct {
		*alias
		Data json.RawMessage `json:"data,omitempty"`
	}{alias: (*alias)(n)}

	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	p, err := UnmarshalPayload(n.Type, aux.Data)
	if err != nil {
		return err
	}
	n.Data = p
	return nil
}

// Validate checks the notification against its storage constraints
func (n *NotificationRecord) Validate() error {
	if n.UserID == "" {
		return fmt.Errorf("notification user id is required")
	}
	if !n.Type.Valid() {
		return fmt.Errorf("unknown notification type %q", n.Type)
	}
	if n.Title == "" || utf8.RuneCountInString(n.Title) > MaxNotificationTitleLength {
		return fmt.Errorf("notification title must be 1-%d characters", MaxNotificationTitleLength)
	}
	if n.Message == "" || utf8.RuneCountInString(n.Message) > MaxNotificationMessageLength {
		return fmt.Errorf("notification message must be 1-%d characters", MaxNotificationMessageLength)
	}
	if n.Data != nil && n.Data.Kind() != n.Type {
		return fmt.Errorf("%s payload attached to %s notification", n.Data.Kind(), n.Type)
	}
	return nil
}

// Truncate shortens s to at most max runes
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}
