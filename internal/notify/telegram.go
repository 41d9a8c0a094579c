package notify

import (
	"context"
	"fmt"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"bot-core/pkg/i18n"
)

// TelegramNotifier pushes event summaries to an operations chat.
type TelegramNotifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramNotifier authorizes the bot token and binds it to one chat.
func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	log.Printf(i18n.Get("TelegramNotifierEnabled"), chatID)
	return &TelegramNotifier{api: api, chatID: chatID}, nil
}

func (t *TelegramNotifier) Name() string { return "telegram" }

// Notify sends the event as a plain text message.
func (t *TelegramNotifier) Notify(ctx context.Context, event string, payload []byte) error {
	msg := tgbotapi.NewMessage(t.chatID, fmt.Sprintf("[%s] %s", event, payload))
	_, err := t.api.Send(msg)
	return err
}
