package models

import (
	"context"
	"time"
)

// SignalReader gives read-only access to the per-user health logs.
// Window queries return entries with from <= timestamp <= to, oldest first.
type SignalReader interface {
	GlucoseReadings(ctx context.Context, userID string, from, to time.Time) ([]GlucoseReading, error)
	// LatestGlucose returns nil when the user has no reading at or before asOf
	LatestGlucose(ctx context.Context, userID string, asOf time.Time) (*GlucoseReading, error)
	Meals(ctx context.Context, userID string, from, to time.Time) ([]MealLog, error)
	Activities(ctx context.Context, userID string, from, to time.Time) ([]ActivityLog, error)
	MedicationLogs(ctx context.Context, userID string, from, to time.Time) ([]MedicationLog, error)
	LatestMood(ctx context.Context, userID string, asOf time.Time) (*MoodLog, error)
	LatestLifestyle(ctx context.Context, userID string, asOf time.Time) (*LifestyleLog, error)
	// ActiveUsers lists users with at least one glucose reading since the given time
	ActiveUsers(ctx context.Context, since time.Time) ([]string, error)
}

// ForecastRepository stores forecast records
type ForecastRepository interface {
	SaveForecast(ctx context.Context, f *ForecastRecord) error
	GetForecast(ctx context.Context, id string) (*ForecastRecord, error)
	LatestForecast(ctx context.Context, userID string) (*ForecastRecord, error)
	ListForecasts(ctx context.Context, userID string, limit int) ([]ForecastRecord, error)
	// PendingForecasts returns unreconciled forecasts with from <= created_at <= to, oldest first
	PendingForecasts(ctx context.Context, userID string, from, to time.Time) ([]ForecastRecord, error)
	// AttachActual sets the actual outcome once. It reports false when the record was already reconciled.
	AttachActual(ctx context.Context, id string, value float64, at time.Time) (bool, error)
}

// NotificationRepository stores notification records
type NotificationRepository interface {
	SaveNotification(ctx context.Context, n *NotificationRecord) error
	ListNotifications(ctx context.Context, q NotificationQuery) ([]NotificationRecord, int, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, id string) (*NotificationRecord, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	DeleteNotification(ctx context.Context, id string) error
}

// SignalWriter appends health logs. Implementations assign ids when empty.
type SignalWriter interface {
	InsertGlucose(ctx context.Context, r *GlucoseReading) error
	InsertMeal(ctx context.Context, m *MealLog) error
	InsertActivity(ctx context.Context, a *ActivityLog) error
	InsertMedication(ctx context.Context, m *MedicationLog) error
	InsertMood(ctx context.Context, m *MoodLog) error
	InsertLifestyle(ctx context.Context, l *LifestyleLog) error
}

// ChatDirectory maps users to the Telegram chat that mirrors their notifications
type ChatDirectory interface {
	SetChat(ctx context.Context, userID string, chatID int64) error
	ChatFor(ctx context.Context, userID string) (int64, bool, error)
}

// Store is everything the service needs from persistence
type Store interface {
	SignalReader
	SignalWriter
	ForecastRepository
	NotificationRepository
	ChatDirectory
}
