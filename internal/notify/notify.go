// Package notify implements the control plane's alert sink, generalized
// from the control plane's original bot.TelegramBot (command-driven,
// feature-specific notification methods) into the single uniform
// Notify(subject, message, critical) surface that risk, position, scheduler
// and reconcile all depend on.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// Sink is the common alert interface every control-plane component that
// fires notifications depends on.
type Sink interface {
	Notify(ctx context.Context, subject, message string, critical bool)
}

// DedupeWindow is the duration within which an identical (subject, message)
// pair is suppressed, per the control plane's alert-noise requirement.
const DedupeWindow = 5 * time.Minute

// Telegram sends alerts to a single configured chat, deduplicating
// identical notifications within DedupeWindow.
type Telegram struct {
	api    *tgbotapi.BotAPI
	chatID int64

	mu   sync.Mutex
	last map[string]time.Time
}

// NewTelegram constructs a Telegram sink. token/chatID come from
// internal/config.Config.TelegramToken / TelegramChatID.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("notify: creating telegram client: %w", err)
	}
	log.Info().Str("username", api.Self.UserName).Msg("notify: telegram sink initialized")
	return &Telegram{api: api, chatID: chatID, last: make(map[string]time.Time)}, nil
}

// Notify sends subject/message to the configured chat, unless an identical
// pair was already sent within DedupeWindow. Send failures are logged, never
// propagated — a broken notification channel must not interrupt trading.
func (t *Telegram) Notify(_ context.Context, subject, message string, critical bool) {
	key := subject + "|" + message
	now := time.Now()

	t.mu.Lock()
	if last, ok := t.last[key]; ok && now.Sub(last) < DedupeWindow {
		t.mu.Unlock()
		return
	}
	t.last[key] = now
	t.mu.Unlock()

	prefix := "ℹ️"
	if critical {
		prefix = "🔴"
	}
	text := fmt.Sprintf("%s *%s*\n\n%s", prefix, subject, message)

	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := t.api.Send(msg); err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("notify: telegram send failed")
	}
}

// NoOp discards every notification. Used in paper mode and tests where no
// Telegram credentials are configured.
type NoOp struct{}

func (NoOp) Notify(_ context.Context, subject, message string, critical bool) {
	log.Debug().Str("subject", subject).Bool("critical", critical).Msg("notify: no-op sink discarded notification")
}
