package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/Alias1177/GlucoPredictor/internal/pipeline"
	"github.com/Alias1177/GlucoPredictor/models"
)

// Handler exposes the pipeline over HTTP
type Handler struct {
	svc           *pipeline.Service
	fallbackModel string
	now           func() time.Time
	logger        zerolog.Logger
}

func (h *Handler) logGlucose(w http.ResponseWriter, r *http.Request) {
	var req glucoseRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	reading := req.toModel(h.now())
	if !h.notFuture(w, "recordedAt", reading.RecordedAt) {
		return
	}
	f, err := h.svc.RecordGlucose(r.Context(), reading)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, logResponse{Log: reading, Forecast: f})
}

func (h *Handler) logMeal(w http.ResponseWriter, r *http.Request) {
	var req mealRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	meal := req.toModel(h.now())
	if !h.notFuture(w, "timestamp", meal.Timestamp) {
		return
	}
	f, err := h.svc.RecordMeal(r.Context(), meal)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, logResponse{Log: meal, Forecast: f})
}

func (h *Handler) logActivity(w http.ResponseWriter, r *http.Request) {
	var req activityRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	activity := req.toModel(h.now())
	if !h.notFuture(w, "timestamp", activity.Timestamp) {
		return
	}
	f, err := h.svc.RecordActivity(r.Context(), activity)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, logResponse{Log: activity, Forecast: f})
}

func (h *Handler) logMedication(w http.ResponseWriter, r *http.Request) {
	var req medicationRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	dose := req.toModel(h.now())
	if !h.notFuture(w, "takenAt", dose.TakenAt) {
		return
	}
	f, err := h.svc.RecordMedication(r.Context(), dose)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, logResponse{Log: dose, Forecast: f})
}

func (h *Handler) logMood(w http.ResponseWriter, r *http.Request) {
	var req moodRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	mood := &models.MoodLog{UserID: req.UserID, Mood: req.Mood, Period: req.Period, CreatedAt: h.now()}
	if err := h.svc.RecordMood(r.Context(), mood); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, mood)
}

func (h *Handler) logLifestyle(w http.ResponseWriter, r *http.Request) {
	var req lifestyleRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	entry := &models.LifestyleLog{
		UserID:            req.UserID,
		ExerciseFrequency: req.ExerciseFrequency,
		SleepQuality:      req.SleepQuality,
		StressLevel:       req.StressLevel,
		CreatedAt:         h.now(),
	}
	if err := h.svc.RecordLifestyle(r.Context(), entry); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, entry)
}

func (h *Handler) predict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	f, err := h.svc.HandleTrigger(r.Context(), pipeline.Trigger{
		UserID:   req.UserID,
		At:       h.now(),
		Event:    models.TriggerManual,
		Model:    req.Model,
		Fallback: h.fallbackModel,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, f)
}

func (h *Handler) latestForecast(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	f, err := h.svc.LatestForecast(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, f)
}

func (h *Handler) forecastHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	list, err := h.svc.ForecastHistory(r.Context(), userID, queryInt(r, "limit", 0))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if list == nil {
		list = []models.ForecastRecord{}
	}
	respondJSON(w, http.StatusOK, list)
}

func (h *Handler) getForecast(w http.ResponseWriter, r *http.Request) {
	f, err := h.svc.Forecast(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, f)
}

func (h *Handler) weeklyTrend(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	trend, err := h.svc.WeeklyTrend(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if trend == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "No glucose readings in the last 7 days")
		return
	}
	respondJSON(w, http.StatusOK, trend)
}

func (h *Handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	unreadOnly, _ := strconv.ParseBool(r.URL.Query().Get("unreadOnly"))
	page, err := h.svc.Notifications(r.Context(), userID, unreadOnly, queryInt(r, "page", 1), queryInt(r, "limit", 0))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (h *Handler) unreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	count, err := h.svc.UnreadCount(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (h *Handler) createNotification(w http.ResponseWriter, r *http.Request) {
	var req notificationRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	n, err := req.toModel()
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	if err := h.svc.CreateNotification(r.Context(), n); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, n)
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.MarkRead(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, n)
}

func (h *Handler) markAllRead(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	count, err := h.svc.MarkAllRead(r.Context(), req.UserID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"count": count})
}

func (h *Handler) deleteNotification(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteNotification(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// notFuture rejects client timestamps beyond the service's clock skew allowance
func (h *Handler) notFuture(w http.ResponseWriter, field string, at time.Time) bool {
	now := h.now()
	if at.After(now.Add(h.svc.MaxClockSkew())) {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", fmt.Sprintf("%s must not be in the future", field))
		return false
	}
	return true
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "userId is required")
		return "", false
	}
	return userID, true
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return v
}
