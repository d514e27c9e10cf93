package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alias1177/GlucoPredictor/internal/database"
	"github.com/Alias1177/GlucoPredictor/models"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func riskNotification(userID string) *models.NotificationRecord {
	return &models.NotificationRecord{
		UserID:  userID,
		Type:    models.NotificationPrediction,
		Title:   "Low glucose risk",
		Message: "Predicted 65 mg/dL in 30 minutes.",
		Data:    &models.PredictionPayload{ForecastID: "f1", RiskCondition: models.RiskHypoglycemia},
	}
}

func TestSinkDeliversToLinkedChat(t *testing.T) {
	store := database.NewMemoryStore()
	require.NoError(t, store.SetChat(context.Background(), "u1", 555))
	sender := &fakeSender{}

	require.NoError(t, NewSink(sender, store, 0).Deliver(context.Background(), riskNotification("u1")))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, int64(555), sender.sent[0].ChatID)
	assert.Equal(t, "⚠️ Low glucose risk\n\nPredicted 65 mg/dL in 30 minutes.", sender.sent[0].Text)
}

func TestSinkFallsBackToDefaultChat(t *testing.T) {
	sender := &fakeSender{}
	store := database.NewMemoryStore()

	require.NoError(t, NewSink(sender, store, 0).Deliver(context.Background(), riskNotification("u2")))
	assert.Empty(t, sender.sent)

	require.NoError(t, NewSink(sender, store, -100).Deliver(context.Background(), riskNotification("u2")))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, int64(-100), sender.sent[0].ChatID)
}

func TestSinkReportsSendErrors(t *testing.T) {
	sender := &fakeSender{err: errors.New("forbidden")}
	err := NewSink(sender, database.NewMemoryStore(), 7).Deliver(context.Background(), riskNotification("u1"))
	assert.ErrorContains(t, err, "forbidden")
}

func TestLinkerLinksChat(t *testing.T) {
	store := database.NewMemoryStore()
	sender := &fakeSender{}
	l := NewLinker(sender, store)

	l.HandleMessage(context.Background(), &tgbotapi.Message{Text: "/start u9", Chat: &tgbotapi.Chat{ID: 31}})
	chat, ok, err := store.ChatFor(context.Background(), "u9")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(31), chat)

	l.HandleMessage(context.Background(), &tgbotapi.Message{Text: "hello", Chat: &tgbotapi.Chat{ID: 32}})
	require.Len(t, sender.sent, 2)
	assert.Contains(t, sender.sent[1].Text, "/start")
}

func TestLinkerRunStopsOnClosedChannel(t *testing.T) {
	updates := make(chan tgbotapi.Update, 1)
	updates <- tgbotapi.Update{Message: &tgbotapi.Message{Text: "/start u1", Chat: &tgbotapi.Chat{ID: 1}}}
	close(updates)

	store := database.NewMemoryStore()
	NewLinker(&fakeSender{}, store).Run(context.Background(), updates)

	_, ok, err := store.ChatFor(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, ok)
}
