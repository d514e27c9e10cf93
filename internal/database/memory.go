package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Alias1177/GlucoPredictor/models"
)

// MemoryStore keeps signals, forecasts and notifications in process memory.
// It backs tests and local runs without DB_HOST.
type MemoryStore struct {
	mu sync.RWMutex

	glucose     map[string][]models.GlucoseReading
	meals       map[string][]models.MealLog
	activities  map[string][]models.ActivityLog
	medications map[string][]models.MedicationLog
	moods       map[string][]models.MoodLog
	lifestyles  map[string][]models.LifestyleLog

	forecasts     map[string]*models.ForecastRecord
	notifications map[string]*models.NotificationRecord
	chats         map[string]int64
}

var _ models.Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		glucose:       make(map[string][]models.GlucoseReading),
		meals:         make(map[string][]models.MealLog),
		activities:    make(map[string][]models.ActivityLog),
		medications:   make(map[string][]models.MedicationLog),
		moods:         make(map[string][]models.MoodLog),
		lifestyles:    make(map[string][]models.LifestyleLog),
		forecasts:     make(map[string]*models.ForecastRecord),
		notifications: make(map[string]*models.NotificationRecord),
		chats:         make(map[string]int64),
	}
}

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

// AddGlucose appends a reading and returns it with its id set
func (s *MemoryStore) AddGlucose(r models.GlucoseReading) models.GlucoseReading {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = newID(r.ID)
	list := append(s.glucose[r.UserID], r)
	sort.SliceStable(list, func(i, j int) bool { return list[i].RecordedAt.Before(list[j].RecordedAt) })
	s.glucose[r.UserID] = list
	return r
}

func (s *MemoryStore) AddMeal(m models.MealLog) models.MealLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = newID(m.ID)
	list := append(s.meals[m.UserID], m)
	sort.SliceStable(list, func(i, j int) bool { return list[i].Timestamp.Before(list[j].Timestamp) })
	s.meals[m.UserID] = list
	return m
}

func (s *MemoryStore) AddActivity(a models.ActivityLog) models.ActivityLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = newID(a.ID)
	list := append(s.activities[a.UserID], a)
	sort.SliceStable(list, func(i, j int) bool { return list[i].Timestamp.Before(list[j].Timestamp) })
	s.activities[a.UserID] = list
	return a
}

func (s *MemoryStore) AddMedication(m models.MedicationLog) models.MedicationLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = newID(m.ID)
	list := append(s.medications[m.UserID], m)
	sort.SliceStable(list, func(i, j int) bool { return list[i].TakenAt.Before(list[j].TakenAt) })
	s.medications[m.UserID] = list
	return m
}

func (s *MemoryStore) AddMood(m models.MoodLog) models.MoodLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = newID(m.ID)
	list := append(s.moods[m.UserID], m)
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	s.moods[m.UserID] = list
	return m
}

func (s *MemoryStore) AddLifestyle(l models.LifestyleLog) models.LifestyleLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.ID = newID(l.ID)
	list := append(s.lifestyles[l.UserID], l)
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	s.lifestyles[l.UserID] = list
	return l
}

func (s *MemoryStore) InsertGlucose(ctx context.Context, r *models.GlucoseReading) error {
	*r = s.AddGlucose(*r)
	return ctx.Err()
}

func (s *MemoryStore) InsertMeal(ctx context.Context, m *models.MealLog) error {
	*m = s.AddMeal(*m)
	return ctx.Err()
}

func (s *MemoryStore) InsertActivity(ctx context.Context, a *models.ActivityLog) error {
	*a = s.AddActivity(*a)
	return ctx.Err()
}

func (s *MemoryStore) InsertMedication(ctx context.Context, m *models.MedicationLog) error {
	*m = s.AddMedication(*m)
	return ctx.Err()
}

func (s *MemoryStore) InsertMood(ctx context.Context, m *models.MoodLog) error {
	*m = s.AddMood(*m)
	return ctx.Err()
}

func (s *MemoryStore) InsertLifestyle(ctx context.Context, l *models.LifestyleLog) error {
	*l = s.AddLifestyle(*l)
	return ctx.Err()
}

func (s *MemoryStore) SetChat(ctx context.Context, userID string, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats[userID] = chatID
	return ctx.Err()
}

func (s *MemoryStore) ChatFor(ctx context.Context, userID string) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chatID, ok := s.chats[userID]
	return chatID, ok, ctx.Err()
}

func inWindow(t, from, to time.Time) bool {
	return !t.Before(from) && !t.After(to)
}

func (s *MemoryStore) GlucoseReadings(ctx context.Context, userID string, from, to time.Time) ([]models.GlucoseReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.GlucoseReading
	for _, r := range s.glucose[userID] {
		if inWindow(r.RecordedAt, from, to) {
			out = append(out, r)
		}
	}
	return out, ctx.Err()
}

func (s *MemoryStore) LatestGlucose(ctx context.Context, userID string, asOf time.Time) (*models.GlucoseReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.glucose[userID]
	for i := len(list) - 1; i >= 0; i-- {
		if !list[i].RecordedAt.After(asOf) {
			r := list[i]
			return &r, ctx.Err()
		}
	}
	return nil, ctx.Err()
}

func (s *MemoryStore) Meals(ctx context.Context, userID string, from, to time.Time) ([]models.MealLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.MealLog
	for _, m := range s.meals[userID] {
		if inWindow(m.Timestamp, from, to) {
			out = append(out, m)
		}
	}
	return out, ctx.Err()
}

func (s *MemoryStore) Activities(ctx context.Context, userID string, from, to time.Time) ([]models.ActivityLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ActivityLog
	for _, a := range s.activities[userID] {
		if inWindow(a.Timestamp, from, to) {
			out = append(out, a)
		}
	}
	return out, ctx.Err()
}

func (s *MemoryStore) MedicationLogs(ctx context.Context, userID string, from, to time.Time) ([]models.MedicationLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.MedicationLog
	for _, m := range s.medications[userID] {
		if inWindow(m.TakenAt, from, to) {
			out = append(out, m)
		}
	}
	return out, ctx.Err()
}

func (s *MemoryStore) LatestMood(ctx context.Context, userID string, asOf time.Time) (*models.MoodLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.moods[userID]
	for i := len(list) - 1; i >= 0; i-- {
		if !list[i].CreatedAt.After(asOf) {
			m := list[i]
			return &m, ctx.Err()
		}
	}
	return nil, ctx.Err()
}

func (s *MemoryStore) LatestLifestyle(ctx context.Context, userID string, asOf time.Time) (*models.LifestyleLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.lifestyles[userID]
	for i := len(list) - 1; i >= 0; i-- {
		if !list[i].CreatedAt.After(asOf) {
			l := list[i]
			return &l, ctx.Err()
		}
	}
	return nil, ctx.Err()
}

func (s *MemoryStore) ActiveUsers(ctx context.Context, since time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var users []string
	for userID, list := range s.glucose {
		if len(list) > 0 && !list[len(list)-1].RecordedAt.Before(since) {
			users = append(users, userID)
		}
	}
	sort.Strings(users)
	return users, ctx.Err()
}

func cloneForecast(f *models.ForecastRecord) *models.ForecastRecord {
	c := *f
	if f.Factors != nil {
		c.Factors = append([]string(nil), f.Factors...)
	}
	if f.RiskAlert != nil {
		alert := *f.RiskAlert
		c.RiskAlert = &alert
	}
	if f.ActualGlucose != nil {
		v := *f.ActualGlucose
		c.ActualGlucose = &v
	}
	if f.ActualLoggedAt != nil {
		at := *f.ActualLoggedAt
		c.ActualLoggedAt = &at
	}
	return &c
}

func (s *MemoryStore) SaveForecast(ctx context.Context, f *models.ForecastRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f.ID = newID(f.ID)
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	s.forecasts[f.ID] = cloneForecast(f)
	return nil
}

func (s *MemoryStore) GetForecast(ctx context.Context, id string) (*models.ForecastRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.forecasts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return cloneForecast(f), ctx.Err()
}

// userForecasts returns the user's forecasts newest first
func (s *MemoryStore) userForecasts(userID string) []*models.ForecastRecord {
	var out []*models.ForecastRecord
	for _, f := range s.forecasts {
		if f.UserID == userID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *MemoryStore) LatestForecast(ctx context.Context, userID string) (*models.ForecastRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.userForecasts(userID)
	if len(list) == 0 {
		return nil, models.ErrNotFound
	}
	return cloneForecast(list[0]), ctx.Err()
}

func (s *MemoryStore) ListForecasts(ctx context.Context, userID string, limit int) ([]models.ForecastRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.userForecasts(userID)
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	out := make([]models.ForecastRecord, 0, len(list))
	for _, f := range list {
		out = append(out, *cloneForecast(f))
	}
	return out, ctx.Err()
}

func (s *MemoryStore) PendingForecasts(ctx context.Context, userID string, from, to time.Time) ([]models.ForecastRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ForecastRecord
	for _, f := range s.userForecasts(userID) {
		if f.ActualGlucose == nil && inWindow(f.CreatedAt, from, to) {
			out = append(out, *cloneForecast(f))
		}
	}
	// oldest first, same as the postgres query
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, ctx.Err()
}

func (s *MemoryStore) AttachActual(ctx context.Context, id string, value float64, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.forecasts[id]
	if !ok {
		return false, models.ErrNotFound
	}
	if f.ActualGlucose != nil {
		return false, nil
	}
	f.ActualGlucose = &value
	f.ActualLoggedAt = &at
	return true, nil
}

func (s *MemoryStore) SaveNotification(ctx context.Context, n *models.NotificationRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := n.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n.ID = newID(n.ID)
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	c := *n
	s.notifications[n.ID] = &c
	return nil
}

func (s *MemoryStore) ListNotifications(ctx context.Context, q models.NotificationQuery) ([]models.NotificationRecord, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []models.NotificationRecord
	for _, n := range s.notifications {
		if n.UserID != q.UserID {
			continue
		}
		if q.UnreadOnly && n.IsRead {
			continue
		}
		if !q.Since.IsZero() && n.CreatedAt.Before(q.Since) {
			continue
		}
		matched = append(matched, *n)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if q.Offset >= total {
		return []models.NotificationRecord{}, total, ctx.Err()
	}
	matched = matched[q.Offset:]
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, total, ctx.Err()
}

func (s *MemoryStore) CountUnread(ctx context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, n := range s.notifications {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, ctx.Err()
}

func (s *MemoryStore) MarkRead(ctx context.Context, id string) (*models.NotificationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	n.IsRead = true
	c := *n
	return &c, ctx.Err()
}

func (s *MemoryStore) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var updated int64
	for _, n := range s.notifications {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			updated++
		}
	}
	return updated, ctx.Err()
}

func (s *MemoryStore) DeleteNotification(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notifications[id]; !ok {
		return models.ErrNotFound
	}
	delete(s.notifications, id)
	return ctx.Err()
}
