package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/Alias1177/GlucoPredictor/internal/insights"
	"github.com/Alias1177/GlucoPredictor/models"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
	defaultPageSize     = 20
	maxPageSize         = 100
)

// LatestForecast returns models.ErrNotFound when the user has no forecast yet
func (s *Service) LatestForecast(ctx context.Context, userID string) (*models.ForecastRecord, error) {
	return s.store.LatestForecast(ctx, userID)
}

func (s *Service) Forecast(ctx context.Context, id string) (*models.ForecastRecord, error) {
	return s.store.GetForecast(ctx, id)
}

// ForecastHistory lists the newest forecasts first
func (s *Service) ForecastHistory(ctx context.Context, userID string, limit int) ([]models.ForecastRecord, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return s.store.ListForecasts(ctx, userID, limit)
}

// Notifications returns one page, newest first. page is 1-based.
func (s *Service) Notifications(ctx context.Context, userID string, unreadOnly bool, page, limit int) (*models.NotificationPage, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	list, total, err := s.store.ListNotifications(ctx, models.NotificationQuery{
		UserID:     userID,
		UnreadOnly: unreadOnly,
		Offset:     (page - 1) * limit,
		Limit:      limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	unread, err := s.store.CountUnread(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count unread: %w", err)
	}
	if list == nil {
		list = []models.NotificationRecord{}
	}

	return &models.NotificationPage{
		Notifications: list,
		UnreadCount:   unread,
		Total:         total,
		Page:          page,
		Limit:         limit,
		Pages:         (total + limit - 1) / limit,
	}, nil
}

func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.store.CountUnread(ctx, userID)
}

func (s *Service) MarkRead(ctx context.Context, id string) (*models.NotificationRecord, error) {
	return s.store.MarkRead(ctx, id)
}

func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return s.store.MarkAllRead(ctx, userID)
}

func (s *Service) DeleteNotification(ctx context.Context, id string) error {
	return s.store.DeleteNotification(ctx, id)
}

// CreateNotification stores a notification raised outside the forecast policy and mirrors it to the sink
func (s *Service) CreateNotification(ctx context.Context, n *models.NotificationRecord) error {
	n.Title = strings.TrimSpace(n.Title)
	n.Message = strings.TrimSpace(n.Message)
	n.IsRead = false
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	if err := n.Validate(); err != nil {
		return err
	}
	if err := s.store.SaveNotification(ctx, n); err != nil {
		return fmt.Errorf("save notification: %w", err)
	}
	s.metrics.RecordNotification(string(n.Type), "created")
	s.deliver(n)
	return nil
}

// WeeklyTrend returns nil when the user logged nothing in the last seven days
func (s *Service) WeeklyTrend(ctx context.Context, userID string) (*insights.WeeklyTrend, error) {
	return s.analyzer.Weekly(ctx, userID, s.now())
}
