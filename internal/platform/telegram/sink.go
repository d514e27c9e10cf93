package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/GlucoPredictor/models"
)

// Sender is the part of *tgbotapi.BotAPI the sink uses
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Sink mirrors notifications into each user's linked Telegram chat.
// Users without a linked chat go to the default chat when one is configured.
type Sink struct {
	sender      Sender
	chats       models.ChatDirectory
	defaultChat int64
	logger      zerolog.Logger
}

// NewSink creates a sink; defaultChat 0 disables the fallback
func NewSink(sender Sender, chats models.ChatDirectory, defaultChat int64) *Sink {
	return &Sink{
		sender:      sender,
		chats:       chats,
		defaultChat: defaultChat,
		logger:      log.With().Str("component", "telegram_sink").Logger(),
	}
}

// Deliver sends n to the user's chat; a user without any chat is skipped silently
func (s *Sink) Deliver(ctx context.Context, n *models.NotificationRecord) error {
	chatID, ok, err := s.chats.ChatFor(ctx, n.UserID)
	if err != nil {
		return fmt.Errorf("resolving chat for %s: %w", n.UserID, err)
	}
	if !ok {
		if s.defaultChat == 0 {
			s.logger.Debug().Str("user_id", n.UserID).Msg("No chat linked, skipping delivery")
			return nil
		}
		chatID = s.defaultChat
	}

	msg := tgbotapi.NewMessage(chatID, FormatNotification(n))
	if _, err := s.sender.Send(msg); err != nil {
		return fmt.Errorf("sending to chat %d: %w", chatID, err)
	}
	return nil
}

var typeIcons = map[models.NotificationType]string{
	models.NotificationPrediction:  "📈",
	models.NotificationInsight:     "💡",
	models.NotificationReminder:    "⏰",
	models.NotificationMedication:  "💊",
	models.NotificationAchievement: "🏆",
	models.NotificationSystem:      "ℹ️",
}

// FormatNotification renders n as a plain text chat message
func FormatNotification(n *models.NotificationRecord) string {
	var b strings.Builder
	icon := typeIcons[n.Type]
	if p, ok := n.Data.(*models.PredictionPayload); ok && p.RiskCondition != "" {
		icon = "⚠️"
	}
	if icon != "" {
		b.WriteString(icon)
		b.WriteString(" ")
	}
	b.WriteString(n.Title)
	b.WriteString("\n\n")
	b.WriteString(n.Message)
	return b.String()
}
