// Package telegram delivers operator alerts to a Telegram chat.
package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"cryptoSignalBot/internal/ports"
)

// sender is the subset of *tgbotapi.BotAPI the notifier uses.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier implements ports.Notifier by messaging one chat.
type Notifier struct {
	bot    sender
	chatID int64
	prefix string
	logger ports.Logger
}

// Config holds the bot credentials and target chat.
type Config struct {
	Token  string
	ChatID int64
	Prefix string // Prepended to every message, e.g. "[signal-bot]"
	Logger ports.Logger
}

// New authenticates the bot and returns a notifier.
func New(cfg Config) (*Notifier, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Telegram notifier")
	}
	if cfg.Token == "" || cfg.ChatID == 0 {
		return nil, fmt.Errorf("telegram token and chat id are required: %w", ports.ErrConfiguration)
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate telegram bot: %w", err)
	}
	cfg.Logger.Info(context.Background(), "Telegram notifier authorized", map[string]interface{}{"account": bot.Self.UserName})
	return newWithSender(bot, cfg), nil
}

func newWithSender(bot sender, cfg Config) *Notifier {
	return &Notifier{bot: bot, chatID: cfg.ChatID, prefix: cfg.Prefix, logger: cfg.Logger}
}

// Notify sends msg to the configured chat.
func (n *Notifier) Notify(ctx context.Context, msg string) error {
	text := msg
	if n.prefix != "" {
		text = n.prefix + " " + msg
	}
	if _, err := n.bot.Send(tgbotapi.NewMessage(n.chatID, text)); err != nil {
		n.logger.Error(ctx, err, "Failed to deliver operator alert", map[string]interface{}{"chatID": n.chatID, "message": msg})
		return fmt.Errorf("telegram send failed: %w", err)
	}
	return nil
}
