// Package alert delivers operational alerts to an admin Telegram chat.
// It backs the logx alert sink; broadcast traffic itself never flows
// through here.
package alert

import (
	"context"
	"errors"
	"strings"

	tele "gopkg.in/telebot.v4"
)

type Config struct {
	Token  string
	ChatID int64
}

// Telegram implements logx.Notifier over a bot API chat.
type Telegram struct {
	bot    *tele.Bot
	chatID int64
}

func NewTelegram(cfg Config) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat id is empty")
	}
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, err
	}
	return &Telegram{bot: b, chatID: cfg.ChatID}, nil
}

func (t *Telegram) Notify(ctx context.Context, text string) error {
	if ctx != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	chat := &tele.Chat{ID: t.chatID}
	_, err := t.bot.Send(chat, text, &tele.SendOptions{DisableWebPagePreview: true})
	return err
}
