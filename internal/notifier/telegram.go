package notifier

import (
	"context"
	"errors"
	"strings"

	tele "gopkg.in/telebot.v4"

	"postpilot/pkg/logx"
)

// TelegramConfig configures the optional Telegram push sink.
type TelegramConfig struct {
	Enabled bool
	Token   string
	ChatID  int64
}

// TelegramSink pushes notifications to a Telegram chat. Send-only: the bot
// never polls for updates.
type TelegramSink struct {
	bot    *tele.Bot
	chatID int64
	log    logx.Logger
}

func NewTelegramSink(cfg TelegramConfig, log logx.Logger) (*TelegramSink, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is empty")
	}
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, err
	}
	return &TelegramSink{bot: b, chatID: cfg.ChatID, log: log}, nil
}

func (s *TelegramSink) Send(ctx context.Context, n Notification) error {
	// telebot has no context-aware send; honor cancellation before the call.
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	_, err := s.bot.Send(tele.ChatID(s.chatID), Format(n), &tele.SendOptions{
		DisableWebPagePreview: true,
	})
	if err != nil {
		s.log.Debug("telegram notification send failed", logx.Err(err),
			logx.String("kind", string(n.Kind)), logx.String("post_id", n.PostID))
	}
	return err
}
