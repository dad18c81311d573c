package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramSender implements Sender against the Telegram Bot API, the
// outbound channel the original anxiousbot notifier.py and bot_handler.py
// use (python-telegram-bot's Bot.send_message). defaultChatID is used
// when a Message carries no explicit ChatID.
type TelegramSender struct {
	bot           *tgbotapi.BotAPI
	defaultChatID int64
}

// NewTelegramSender constructs a sender authenticated with token, spec.md
// section 6's bot_token.
func NewTelegramSender(token string, defaultChatID int64) (*TelegramSender, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("notify: telegram auth failed: %w", err)
	}
	return &TelegramSender{bot: bot, defaultChatID: defaultChatID}, nil
}

// Send implements Sender. The Bot API call is synchronous and has no
// context parameter; ctx is still accepted to satisfy Sender and to allow
// a future context-aware HTTP client swap.
func (s *TelegramSender) Send(_ context.Context, msg Message) error {
	_, err := s.bot.Send(tgbotapi.NewMessage(resolveChatID(msg.ChatID, s.defaultChatID), msg.Text))
	return err
}

// resolveChatID parses raw as an int64 chat ID, falling back to
// defaultChatID when raw is empty or unparseable.
func resolveChatID(raw string, defaultChatID int64) int64 {
	if raw == "" {
		return defaultChatID
	}
	var parsed int64
	if _, err := fmt.Sscanf(raw, "%d", &parsed); err != nil {
		return defaultChatID
	}
	return parsed
}
