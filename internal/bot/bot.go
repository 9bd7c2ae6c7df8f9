package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Houeta/price-flow/internal/models"
	"gopkg.in/telebot.v4"
)

const requestTimeout = 10 * time.Second

// Bot contains the bot API instance and other information.
type Bot struct {
	bot  API
	log  *slog.Logger
	repo Store
}

func NewBot(log *slog.Logger, token string, poller time.Duration, repo Store) (*Bot, error) {
	bot, err := telebot.NewBot(telebot.Settings{
		Token:  token,
		Poller: &telebot.LongPoller{Timeout: poller},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Telegram bot: %w", err)
	}
	log.Info("Authorized on account", "account", bot.Me.Username)

	botInstance := &Bot{bot: bot, log: log, repo: repo}

	botInstance.registerRoutes()

	return botInstance, nil
}

// Start launches the bot to listen for updates.
func (b *Bot) Start() {
	b.log.Info("Telegram bot is starting...")
	b.bot.Start()
}

// Stop gracefully stops the Telegram bot and logs the action.
func (b *Bot) Stop() {
	b.log.Info("Telegram bot is stopped...")
	b.bot.Stop()
}

// registerRoutes configures all routes (commands).
func (b *Bot) registerRoutes() {
	// Public routes.
	b.bot.Handle("/start", b.startHandler)
	b.bot.Handle("/subscribe", b.subscribeHandler)
	b.bot.Handle("/unsubscribe", b.unsubscribeHandler)
	b.bot.Handle("/list", b.listHandler)
}

// NotifyPriceDrops sends one message per drop to every subscribed chat.
func (b *Bot) NotifyPriceDrops(ctx context.Context, drops []models.PriceDrop) error {
	const opn = "bot.NotifyPriceDrops"

	if len(drops) == 0 {
		return nil
	}

	chats, err := b.repo.GetSubscribedChats(ctx)
	if err != nil {
		return fmt.Errorf("%s: failed to get subscribed chats: %w", opn, err)
	}

	var errs []error
	for _, chatID := range chats {
		for _, drop := range drops {
			if _, err = b.bot.Send(&telebot.Chat{ID: chatID}, formatDrop(drop)); err != nil {
				b.log.ErrorContext(ctx, "Failed to send price drop", "op", opn, "chat_id", chatID, "product_id", drop.ProductID, "error", err)
				errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
			}
		}
	}

	b.log.InfoContext(ctx, "Price drops sent", "op", opn, "chats", len(chats), "drops", len(drops), "errors", len(errs))

	if len(errs) > 0 {
		return fmt.Errorf("%s: %w", opn, errors.Join(errs...))
	}

	return nil
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}
