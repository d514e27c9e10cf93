package notify

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Alias1177/GlucoPredictor/models"
)

// Policy decides whether a forecast becomes a user-facing notification.
// It holds no state; the caller passes the relevant notification history.
type Policy struct {
	Cooldown      time.Duration
	LowConfidence float64
}

// DefaultPolicy aligns the cooldown with the default forecast timeframe
func DefaultPolicy() Policy {
	return Policy{Cooldown: 30 * time.Minute, LowConfidence: 0.5}
}

// Decide returns the notification to persist for f, or nil when it should be suppressed.
// recent must hold the user's notifications created within the cooldown plus any unread ones.
func (p Policy) Decide(f *models.ForecastRecord, recent []models.NotificationRecord) (*models.NotificationRecord, error) {
	if err := validateForecast(f); err != nil {
		return nil, err
	}

	if f.RiskAlert != nil {
		for i := range recent {
			n := &recent[i]
			if n.UserID != f.UserID || n.IsRead {
				continue
			}
			if payload, ok := n.Data.(*models.PredictionPayload); ok && payload.RiskCondition == f.RiskAlert.Condition {
				return nil, nil
			}
		}
		return p.build(f), nil
	}

	if last := p.lastForecastNotification(f, recent); last != nil {
		direction, risk := origin(last)
		if direction == f.Direction && risk == "" {
			return nil, nil
		}
	}
	return p.build(f), nil
}

// lastForecastNotification finds the newest forecast-originated notification inside the cooldown
func (p Policy) lastForecastNotification(f *models.ForecastRecord, recent []models.NotificationRecord) *models.NotificationRecord {
	cutoff := f.CreatedAt.Add(-p.Cooldown)
	var last *models.NotificationRecord
	for i := range recent {
		n := &recent[i]
		if n.UserID != f.UserID || n.ForecastID() == "" {
			continue
		}
		if n.CreatedAt.Before(cutoff) {
			continue
		}
		if last == nil || n.CreatedAt.After(last.CreatedAt) {
			last = n
		}
	}
	return last
}

func origin(n *models.NotificationRecord) (models.Direction, models.RiskCondition) {
	switch payload := n.Data.(type) {
	case *models.PredictionPayload:
		return payload.Direction, payload.RiskCondition
	case *models.InsightPayload:
		return payload.Direction, ""
	}
	return "", ""
}

func (p Policy) build(f *models.ForecastRecord) *models.NotificationRecord {
	n := &models.NotificationRecord{
		UserID:    f.UserID,
		IsRead:    false,
		CreatedAt: f.CreatedAt,
	}

	switch {
	case f.RiskAlert != nil:
		n.Type = models.NotificationPrediction
		n.Title = riskTitle(f.RiskAlert.Condition)
		n.Message = fmt.Sprintf("%s. Predicted %.0f mg/dL in %s, currently %.0f mg/dL. %s",
			f.RiskAlert.Message, f.PredictedGlucose, f.Timeframe, f.CurrentGlucose, f.Recommendation)
		if f.Confidence < p.LowConfidence {
			n.Message = "Low confidence forecast. " + n.Message
		}
		n.Data = &models.PredictionPayload{
			ForecastID:       f.ID,
			Direction:        f.Direction,
			RiskCondition:    f.RiskAlert.Condition,
			PredictedGlucose: f.PredictedGlucose,
			Confidence:       f.Confidence,
		}
	case f.Confidence < p.LowConfidence:
		n.Type = models.NotificationInsight
		n.Title = fmt.Sprintf("Glucose insight: %s", strings.ToLower(f.Direction.Label()))
		n.Message = fmt.Sprintf("Early signs suggest your glucose may be %s, around %.0f mg/dL in %s. Log another reading to sharpen this forecast.",
			insightPhrase(f.Direction), f.PredictedGlucose, f.Timeframe)
		n.Data = &models.InsightPayload{
			ForecastID: f.ID,
			Direction:  f.Direction,
			Confidence: f.Confidence,
		}
	default:
		n.Type = models.NotificationPrediction
		n.Title = fmt.Sprintf("Glucose %s %s", f.Direction.Label(), f.Direction.Arrow())
		n.Message = fmt.Sprintf("Predicted %.0f mg/dL in %s, currently %.0f mg/dL. %s",
			f.PredictedGlucose, f.Timeframe, f.CurrentGlucose, f.Recommendation)
		n.Data = &models.PredictionPayload{
			ForecastID:       f.ID,
			Direction:        f.Direction,
			PredictedGlucose: f.PredictedGlucose,
			Confidence:       f.Confidence,
		}
	}

	n.Title = models.Truncate(n.Title, models.MaxNotificationTitleLength)
	n.Message = models.Truncate(n.Message, models.MaxNotificationMessageLength)
	return n
}

func riskTitle(c models.RiskCondition) string {
	if c == models.RiskHypoglycemia {
		return "Low glucose risk"
	}
	return "High glucose risk"
}

func insightPhrase(d models.Direction) string {
	switch d {
	case models.DirectionRising:
		return "rising"
	case models.DirectionDropping:
		return "dropping"
	default:
		return "holding steady"
	}
}

func validateForecast(f *models.ForecastRecord) error {
	if f == nil {
		return &models.PolicyError{Reason: "nil forecast"}
	}
	fail := func(format string, args ...any) error {
		return &models.PolicyError{ForecastID: f.ID, Reason: fmt.Sprintf(format, args...)}
	}

	switch {
	case f.ID == "":
		return fail("missing id")
	case f.UserID == "":
		return fail("missing user id")
	case math.IsNaN(f.Confidence) || f.Confidence < 0 || f.Confidence > 1:
		return fail("confidence %v out of [0,1]", f.Confidence)
	case !f.Direction.Valid():
		return fail("unknown direction %q", f.Direction)
	case f.Direction == models.DirectionRising && f.PredictedGlucose <= f.CurrentGlucose:
		return fail("rising forecast predicts %.1f from %.1f", f.PredictedGlucose, f.CurrentGlucose)
	case f.Direction == models.DirectionDropping && f.PredictedGlucose >= f.CurrentGlucose:
		return fail("dropping forecast predicts %.1f from %.1f", f.PredictedGlucose, f.CurrentGlucose)
	}
	if f.RiskAlert != nil && f.RiskAlert.Condition != models.RiskHypoglycemia && f.RiskAlert.Condition != models.RiskHyperglycemia {
		return fail("unknown risk condition %q", f.RiskAlert.Condition)
	}
	return nil
}
