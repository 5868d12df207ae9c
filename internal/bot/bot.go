// Package bot is the Telegram command surface: /start, /info, and freeform
// payout-address registration. It also implements the engine's Notifier.
package bot

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/bcxlabs/buybackd/internal/config"
	"github.com/bcxlabs/buybackd/internal/registry"
)

// TelegramClient is the minimal tgbotapi surface the bot needs. Allows
// driving the bot with a fake in tests.
type TelegramClient interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// InfoLedger exposes the totals shown by /info.
type InfoLedger interface {
	SumAmountIn() (*big.Int, error)
}

// Terms describes the swap conditions shown to users.
type Terms struct {
	PricePerUnit     string
	FeePercent       string
	MinSwapSize      int64
	MaxSwapSize      int64
	TotalLimit       int64
	CustodialAddress string
}

// Bot routes Telegram updates and delivers settlement notifications.
type Bot struct {
	client   TelegramClient
	registry *registry.Store
	ledger   InfoLedger
	terms    Terms
	limiter  *rate.Limiter
}

// New creates the bot.
func New(client TelegramClient, reg *registry.Store, ledger InfoLedger, terms Terms) *Bot {
	return &Bot{
		client:   client,
		registry: reg,
		ledger:   ledger,
		terms:    terms,
		limiter:  rate.NewLimiter(rate.Limit(config.TelegramSendRateLimit), 1),
	}
}

// Run consumes Telegram updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = config.TelegramPollTimeout

	updates := b.client.GetUpdatesChan(u)
	slog.Info("telegram bot polling started")

	for {
		select {
		case <-ctx.Done():
			b.client.StopReceivingUpdates()
			slog.Info("telegram bot polling stopped")
			return

		case update, ok := <-updates:
			if !ok {
				slog.Info("telegram update channel closed")
				return
			}
			b.handleUpdate(update)
		}
	}
}

func (b *Bot) handleUpdate(update tgbotapi.Update) {
	if update.Message == nil {
		return
	}

	chatID := update.Message.Chat.ID
	text := strings.TrimSpace(update.Message.Text)

	reply, ok := b.replyFor(chatID, text)
	if !ok {
		// Unrecognized text is silently ignored.
		return
	}

	b.NotifySession(chatID, reply)
}

// replyFor computes the response for an inbound message. The second return is
// false when the message should be ignored.
func (b *Bot) replyFor(chatID int64, text string) (string, bool) {
	switch text {
	case "/start":
		return b.startMessage(), true

	case "/info":
		return b.infoMessage(), true

	default:
		if !common.IsHexAddress(text) {
			slog.Debug("ignoring unrecognized message", "chatID", chatID)
			return "", false
		}
		return b.registerAddress(chatID, text), true
	}
}

func (b *Bot) registerAddress(chatID int64, address string) string {
	err := b.registry.Register(chatID, address)
	switch {
	case err == nil:
		slog.Info("payout address registered via chat",
			"chatID", chatID,
			"address", address,
		)
		return registeredMessage(address, b.terms.CustodialAddress)

	case errors.Is(err, config.ErrAttemptLimitExceeded):
		slog.Info("registration refused, attempt limit",
			"chatID", chatID,
			"address", address,
		)
		return "❌ This address has reached its swap limit and cannot register again."

	case errors.Is(err, config.ErrInvalidAddress):
		return "❌ That does not look like a valid payout address."

	default:
		slog.Error("registration failed",
			"chatID", chatID,
			"address", address,
			"error", err,
		)
		return "⚠️ Could not record your address right now. Please try again."
	}
}

// NotifySession sends status text to a chat session. Send failures are logged,
// not propagated: a lost notification must not fail a settlement.
func (b *Bot) NotifySession(sessionID int64, text string) {
	if err := b.limiter.Wait(context.Background()); err != nil {
		slog.Warn("notification rate limiter interrupted", "error", err)
		return
	}

	msg := tgbotapi.NewMessage(sessionID, text)
	if _, err := b.client.Send(msg); err != nil {
		slog.Error("failed to send telegram message",
			"sessionID", sessionID,
			"error", err,
		)
	}
}
