package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/Alias1177/GlucoPredictor/models"
)

const forecastColumns = `
	id, user_id, predicted_glucose, current_glucose, direction, confidence, timeframe,
	recommendation, risk_condition, risk_message, risk_projected, factors, model_used,
	trigger_event, actual_glucose, actual_logged_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanForecast(row rowScanner) (*models.ForecastRecord, error) {
	var f models.ForecastRecord
	var riskCondition, riskMessage sql.NullString
	var riskProjected bool
	var actual sql.NullFloat64
	var actualAt sql.NullTime

	err := row.Scan(
		&f.ID, &f.UserID, &f.PredictedGlucose, &f.CurrentGlucose, &f.Direction, &f.Confidence, &f.Timeframe,
		&f.Recommendation, &riskCondition, &riskMessage, &riskProjected, pq.Array(&f.Factors), &f.ModelUsed,
		&f.TriggerEvent, &actual, &actualAt, &f.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	f.DirectionArrow = f.Direction.Arrow()
	f.DirectionLabel = f.Direction.Label()
	if f.Factors == nil {
		f.Factors = []string{}
	}
	if riskCondition.Valid {
		f.RiskAlert = &models.RiskAlert{
			Condition: models.RiskCondition(riskCondition.String),
			Message:   riskMessage.String,
			Projected: riskProjected,
		}
	}
	if actual.Valid {
		v := actual.Float64
		f.ActualGlucose = &v
	}
	if actualAt.Valid {
		at := actualAt.Time
		f.ActualLoggedAt = &at
	}
	return &f, nil
}

// SaveForecast inserts a new forecast record
func (db *DB) SaveForecast(ctx context.Context, f *models.ForecastRecord) error {
	f.ID = newID(f.ID)
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}

	var riskCondition, riskMessage sql.NullString
	var riskProjected bool
	if f.RiskAlert != nil {
		riskCondition = sql.NullString{String: string(f.RiskAlert.Condition), Valid: true}
		riskMessage = sql.NullString{String: f.RiskAlert.Message, Valid: true}
		riskProjected = f.RiskAlert.Projected
	}
	factors := f.Factors
	if factors == nil {
		factors = []string{}
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO forecast_logs (`+forecastColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NULL, NULL, $15)
	`,
		f.ID, f.UserID, f.PredictedGlucose, f.CurrentGlucose, f.Direction, f.Confidence, f.Timeframe,
		f.Recommendation, riskCondition, riskMessage, riskProjected, pq.Array(factors), f.ModelUsed,
		f.TriggerEvent, f.CreatedAt)

	return err
}

func (db *DB) GetForecast(ctx context.Context, id string) (*models.ForecastRecord, error) {
	f, err := scanForecast(db.QueryRowContext(ctx, `
		SELECT `+forecastColumns+`
		FROM forecast_logs
		WHERE id = $1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	return f, err
}

func (db *DB) LatestForecast(ctx context.Context, userID string) (*models.ForecastRecord, error) {
	f, err := scanForecast(db.QueryRowContext(ctx, `
		SELECT `+forecastColumns+`
		FROM forecast_logs
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	return f, err
}

func (db *DB) ListForecasts(ctx context.Context, userID string, limit int) ([]models.ForecastRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	return db.queryForecasts(ctx, `
		SELECT `+forecastColumns+`
		FROM forecast_logs
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
}

// PendingForecasts returns unreconciled forecasts created inside [from, to], oldest first
func (db *DB) PendingForecasts(ctx context.Context, userID string, from, to time.Time) ([]models.ForecastRecord, error) {
	return db.queryForecasts(ctx, `
		SELECT `+forecastColumns+`
		FROM forecast_logs
		WHERE user_id = $1 AND actual_glucose IS NULL AND created_at >= $2 AND created_at <= $3
		ORDER BY created_at ASC, id ASC
	`, userID, from, to)
}

// AttachActual writes the outcome only while the record is still pending
func (db *DB) AttachActual(ctx context.Context, id string, value float64, at time.Time) (bool, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE forecast_logs
		SET actual_glucose = $1, actual_logged_at = $2
		WHERE id = $3 AND actual_glucose IS NULL
	`, value, at, id)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}

	// distinguish an unknown id from an already reconciled record
	if _, err := db.GetForecast(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (db *DB) queryForecasts(ctx context.Context, query string, args ...any) ([]models.ForecastRecord, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ForecastRecord
	for rows.Next() {
		f, err := scanForecast(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}
