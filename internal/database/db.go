package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/Alias1177/GlucoPredictor/models"
)

// DB represents a database connection
type DB struct {
	*sql.DB
}

var _ models.Store = (*DB)(nil)

// ConnectionParams holds PostgreSQL connection parameters
type ConnectionParams struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// New creates a new database connection
func New(params ConnectionParams) (*DB, error) {
	// Create PostgreSQL connection string
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		params.Host, params.Port, params.User, params.Password, params.DBName, params.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Check connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	// Create tables if they don't exist
	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return &DB{db}, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS glucose_readings (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		value DOUBLE PRECISION NOT NULL,
		reading_type TEXT,
		recorded_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_glucose_user_time ON glucose_readings (user_id, recorded_at)`,
	`CREATE TABLE IF NOT EXISTS meal_logs (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		carbs_estimate DOUBLE PRECISION NOT NULL DEFAULT 0,
		meal_type TEXT NOT NULL,
		logged_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_meal_user_time ON meal_logs (user_id, logged_at)`,
	`CREATE TABLE IF NOT EXISTS activity_logs (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		activity_level TEXT NOT NULL,
		activity_type TEXT,
		duration_minutes INTEGER NOT NULL DEFAULT 0,
		logged_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_activity_user_time ON activity_logs (user_id, logged_at)`,
	`CREATE TABLE IF NOT EXISTS medication_logs (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		medication_name TEXT NOT NULL,
		medication_type TEXT NOT NULL,
		dosage DOUBLE PRECISION NOT NULL,
		dose_unit TEXT,
		taken_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_medication_user_time ON medication_logs (user_id, taken_at)`,
	`CREATE TABLE IF NOT EXISTS mood_logs (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		mood TEXT NOT NULL,
		period TEXT,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS lifestyle_logs (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		exercise_frequency TEXT,
		sleep_quality INTEGER,
		stress_level INTEGER,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS forecast_logs (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		predicted_glucose DOUBLE PRECISION NOT NULL,
		current_glucose DOUBLE PRECISION NOT NULL,
		direction TEXT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL CHECK (confidence >= 0 AND confidence <= 1),
		timeframe TEXT NOT NULL,
		recommendation TEXT NOT NULL,
		risk_condition TEXT,
		risk_message TEXT,
		risk_projected BOOLEAN NOT NULL DEFAULT FALSE,
		factors TEXT[] NOT NULL DEFAULT '{}',
		model_used TEXT NOT NULL,
		trigger_event TEXT NOT NULL,
		actual_glucose DOUBLE PRECISION,
		actual_logged_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_forecast_user_time ON forecast_logs (user_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_forecast_pending ON forecast_logs (user_id, created_at) WHERE actual_glucose IS NULL`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		type TEXT NOT NULL,
		title VARCHAR(200) NOT NULL,
		message VARCHAR(500) NOT NULL,
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		data JSONB,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_user_time ON notifications (user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS user_chats (
		user_id TEXT PRIMARY KEY,
		chat_id BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
}

// createTables creates the necessary tables if they don't exist
func createTables(db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// SetChat links a user to the Telegram chat that mirrors their notifications
func (db *DB) SetChat(ctx context.Context, userID string, chatID int64) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO user_chats (user_id, chat_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id)
		DO UPDATE SET chat_id = EXCLUDED.chat_id
	`, userID, chatID, time.Now())

	return err
}

// ChatFor returns the linked chat, reporting false when the user has none
func (db *DB) ChatFor(ctx context.Context, userID string) (int64, bool, error) {
	var chatID int64
	err := db.QueryRowContext(ctx, `
		SELECT chat_id
		FROM user_chats
		WHERE user_id = $1
	`, userID).Scan(&chatID)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}

	return chatID, true, nil
}
