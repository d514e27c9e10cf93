package telegram

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/GlucoPredictor/models"
)

// Linker answers bot commands that connect a chat to a user account
type Linker struct {
	sender Sender
	chats  models.ChatDirectory
	logger zerolog.Logger
}

func NewLinker(sender Sender, chats models.ChatDirectory) *Linker {
	return &Linker{
		sender: sender,
		chats:  chats,
		logger: log.With().Str("component", "telegram_linker").Logger(),
	}
}

// Run consumes updates until ctx is done or the channel closes
func (l *Linker) Run(ctx context.Context, updates <-chan tgbotapi.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message != nil {
				l.HandleMessage(ctx, update.Message)
			}
		}
	}
}

// HandleMessage processes "/start <userId>" links and replies with usage otherwise
func (l *Linker) HandleMessage(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	text := strings.TrimSpace(message.Text)

	if !strings.HasPrefix(text, "/start") {
		l.reply(chatID, "Send /start <your user id> to receive glucose alerts here.")
		return
	}

	parts := strings.Fields(text)
	if len(parts) < 2 {
		l.reply(chatID, "Welcome! Open the app and use the Telegram link, or send /start <your user id>.")
		return
	}

	userID := parts[1]
	if err := l.chats.SetChat(ctx, userID, chatID); err != nil {
		l.logger.Error().Err(err).Str("user_id", userID).Int64("chat_id", chatID).Msg("Error linking chat")
		l.reply(chatID, "Sorry, there was an error. Please try again later.")
		return
	}

	l.logger.Info().Str("user_id", userID).Int64("chat_id", chatID).Msg("Chat linked")
	l.reply(chatID, "You're all set. Glucose forecasts and alerts will appear in this chat.")
}

func (l *Linker) reply(chatID int64, text string) {
	if _, err := l.sender.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		l.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("Error sending reply")
	}
}
