package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Alias1177/GlucoPredictor/models"
)

func (db *DB) InsertGlucose(ctx context.Context, r *models.GlucoseReading) error {
	r.ID = newID(r.ID)
	_, err := db.ExecContext(ctx, `
		INSERT INTO glucose_readings (id, user_id, value, reading_type, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
	`, r.ID, r.UserID, r.Value, r.ReadingType, r.RecordedAt)
	return err
}

func (db *DB) InsertMeal(ctx context.Context, m *models.MealLog) error {
	m.ID = newID(m.ID)
	_, err := db.ExecContext(ctx, `
		INSERT INTO meal_logs (id, user_id, carbs_estimate, meal_type, logged_at)
		VALUES ($1, $2, $3, $4, $5)
	`, m.ID, m.UserID, m.CarbsEstimate, m.MealType, m.Timestamp)
	return err
}

func (db *DB) InsertActivity(ctx context.Context, a *models.ActivityLog) error {
	a.ID = newID(a.ID)
	_, err := db.ExecContext(ctx, `
		INSERT INTO activity_logs (id, user_id, activity_level, activity_type, duration_minutes, logged_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, a.ID, a.UserID, a.ActivityLevel, a.ActivityType, a.DurationMinutes, a.Timestamp)
	return err
}

func (db *DB) InsertMedication(ctx context.Context, m *models.MedicationLog) error {
	m.ID = newID(m.ID)
	_, err := db.ExecContext(ctx, `
		INSERT INTO medication_logs (id, user_id, medication_name, medication_type, dosage, dose_unit, taken_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, m.ID, m.UserID, m.MedicationName, m.MedicationType, m.Dosage, m.DoseUnit, m.TakenAt)
	return err
}

func (db *DB) InsertMood(ctx context.Context, m *models.MoodLog) error {
	m.ID = newID(m.ID)
	_, err := db.ExecContext(ctx, `
		INSERT INTO mood_logs (id, user_id, mood, period, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, m.ID, m.UserID, m.Mood, m.Period, m.CreatedAt)
	return err
}

func (db *DB) InsertLifestyle(ctx context.Context, l *models.LifestyleLog) error {
	l.ID = newID(l.ID)
	_, err := db.ExecContext(ctx, `
		INSERT INTO lifestyle_logs (id, user_id, exercise_frequency, sleep_quality, stress_level, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, l.ID, l.UserID, l.ExerciseFrequency, l.SleepQuality, l.StressLevel, l.CreatedAt)
	return err
}

// GlucoseReadings returns readings in [from, to], oldest first
func (db *DB) GlucoseReadings(ctx context.Context, userID string, from, to time.Time) ([]models.GlucoseReading, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, user_id, value, COALESCE(reading_type, ''), recorded_at
		FROM glucose_readings
		WHERE user_id = $1 AND recorded_at >= $2 AND recorded_at <= $3
		ORDER BY recorded_at ASC, id ASC
	`, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.GlucoseReading
	for rows.Next() {
		var r models.GlucoseReading
		if err := rows.Scan(&r.ID, &r.UserID, &r.Value, &r.ReadingType, &r.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LatestGlucose returns nil when the user has no reading at or before asOf
func (db *DB) LatestGlucose(ctx context.Context, userID string, asOf time.Time) (*models.GlucoseReading, error) {
	var r models.GlucoseReading
	err := db.QueryRowContext(ctx, `
		SELECT id, user_id, value, COALESCE(reading_type, ''), recorded_at
		FROM glucose_readings
		WHERE user_id = $1 AND recorded_at <= $2
		ORDER BY recorded_at DESC, id DESC
		LIMIT 1
	`, userID, asOf).Scan(&r.ID, &r.UserID, &r.Value, &r.ReadingType, &r.RecordedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}

func (db *DB) Meals(ctx context.Context, userID string, from, to time.Time) ([]models.MealLog, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, user_id, carbs_estimate, meal_type, logged_at
		FROM meal_logs
		WHERE user_id = $1 AND logged_at >= $2 AND logged_at <= $3
		ORDER BY logged_at ASC, id ASC
	`, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.MealLog
	for rows.Next() {
		var m models.MealLog
		if err := rows.Scan(&m.ID, &m.UserID, &m.CarbsEstimate, &m.MealType, &m.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (db *DB) Activities(ctx context.Context, userID string, from, to time.Time) ([]models.ActivityLog, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, user_id, activity_level, COALESCE(activity_type, ''), duration_minutes, logged_at
		FROM activity_logs
		WHERE user_id = $1 AND logged_at >= $2 AND logged_at <= $3
		ORDER BY logged_at ASC, id ASC
	`, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ActivityLog
	for rows.Next() {
		var a models.ActivityLog
		if err := rows.Scan(&a.ID, &a.UserID, &a.ActivityLevel, &a.ActivityType, &a.DurationMinutes, &a.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (db *DB) MedicationLogs(ctx context.Context, userID string, from, to time.Time) ([]models.MedicationLog, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, user_id, medication_name, medication_type, dosage, COALESCE(dose_unit, ''), taken_at
		FROM medication_logs
		WHERE user_id = $1 AND taken_at >= $2 AND taken_at <= $3
		ORDER BY taken_at ASC, id ASC
	`, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.MedicationLog
	for rows.Next() {
		var m models.MedicationLog
		if err := rows.Scan(&m.ID, &m.UserID, &m.MedicationName, &m.MedicationType, &m.Dosage, &m.DoseUnit, &m.TakenAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (db *DB) LatestMood(ctx context.Context, userID string, asOf time.Time) (*models.MoodLog, error) {
	var m models.MoodLog
	err := db.QueryRowContext(ctx, `
		SELECT id, user_id, mood, COALESCE(period, ''), created_at
		FROM mood_logs
		WHERE user_id = $1 AND created_at <= $2
		ORDER BY created_at DESC
		LIMIT 1
	`, userID, asOf).Scan(&m.ID, &m.UserID, &m.Mood, &m.Period, &m.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (db *DB) LatestLifestyle(ctx context.Context, userID string, asOf time.Time) (*models.LifestyleLog, error) {
	var l models.LifestyleLog
	var sleep, stress sql.NullInt64
	var exercise sql.NullString
	err := db.QueryRowContext(ctx, `
		SELECT id, user_id, exercise_frequency, sleep_quality, stress_level, created_at
		FROM lifestyle_logs
		WHERE user_id = $1 AND created_at <= $2
		ORDER BY created_at DESC
		LIMIT 1
	`, userID, asOf).Scan(&l.ID, &l.UserID, &exercise, &sleep, &stress, &l.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if exercise.Valid {
		l.ExerciseFrequency = exercise.String
	}
	if sleep.Valid {
		l.SleepQuality = int(sleep.Int64)
	}
	if stress.Valid {
		l.StressLevel = int(stress.Int64)
	}
	return &l, nil
}

// ActiveUsers lists users with a glucose reading since the given time
func (db *DB) ActiveUsers(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT DISTINCT user_id
		FROM glucose_readings
		WHERE recorded_at >= $1
		ORDER BY user_id
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		users = append(users, id)
	}
	return users, rows.Err()
}
