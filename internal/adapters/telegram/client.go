package telegram

import (
	"context"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"gapsentry/pkg/errors"
	"gapsentry/pkg/logger"
)

// Sender delivers one text message to one chat
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Bot is a send-only Telegram client
type Bot struct {
	api         *tgbotapi.BotAPI
	log         *logger.Logger
	rateLimiter *rate.Limiter
}

// Config contains Telegram bot configuration
type Config struct {
	Token          string
	Debug          bool
	HTTPTimeout    time.Duration
	RateLimitBurst int // Default: 30
	RateLimitRate  int // messages per second, default: 20 (Telegram allows 30)
}

// NewBot creates a bot and verifies the token with getMe
func NewBot(cfg Config) (*Bot, error) {
	if cfg.Token == "" {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "telegram bot token is required")
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 30
	}
	if cfg.RateLimitRate == 0 {
		cfg.RateLimitRate = 20
	}

	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	api, err := tgbotapi.NewBotAPIWithClient(cfg.Token, tgbotapi.APIEndpoint, httpClient)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create telegram bot")
	}
	api.Debug = cfg.Debug

	log := logger.Get().With("component", "telegram_bot")
	log.Infow("Telegram bot authorized", "username", api.Self.UserName)

	return &Bot{
		api:         api,
		log:         log,
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RateLimitRate), cfg.RateLimitBurst),
	}, nil
}

// SendMessage sends plain text. Symbols contain underscores that would
// break Markdown parsing, so no parse mode is set.
func (b *Bot) SendMessage(ctx context.Context, chatID int64, text string) error {
	if err := b.rateLimiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limiter wait failed")
	}

	start := time.Now()
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true

	if _, err := b.api.Send(msg); err != nil {
		b.log.Warnw("Failed to send message",
			"chat_id", chatID,
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return errors.Wrap(err, "failed to send message")
	}

	b.log.Debugw("Message sent", "chat_id", chatID, "duration_ms", time.Since(start).Milliseconds())
	return nil
}
