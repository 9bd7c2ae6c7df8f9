package bot

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Houeta/price-flow/internal/models"
	"gopkg.in/telebot.v4"
)

const (
	startMessage = "Hello! I track product prices.\n" +
		"/subscribe - get a message when a lowest price drops\n" +
		"/unsubscribe - stop the messages\n" +
		"/list - show tracked products"
	subscribedMessage   = "Subscribed to price drop alerts."
	unsubscribedMessage = "Unsubscribed from price drop alerts."
	emptyListMessage    = "No products are tracked yet."
	failureMessage      = "Something went wrong, please try again later."

	// Telegram rejects longer messages.
	maxMessageLen = 4096
)

// startHandler process command /start.
func (b *Bot) startHandler(ctx telebot.Context) error {
	b.log.Info("User started the bot", "username", ctx.Sender().Username)

	if err := ctx.Send(startMessage); err != nil {
		return fmt.Errorf("failed to send greeting message: %w", err)
	}

	return nil
}

func (b *Bot) subscribeHandler(ctx telebot.Context) error {
	reqCtx, cancel := requestContext()
	defer cancel()

	if err := b.repo.SubscribeChat(reqCtx, ctx.Chat().ID); err != nil {
		b.log.Error("Failed to subscribe chat", "chat_id", ctx.Chat().ID, "error", err)
		return b.reply(ctx, failureMessage)
	}

	return b.reply(ctx, subscribedMessage)
}

func (b *Bot) unsubscribeHandler(ctx telebot.Context) error {
	reqCtx, cancel := requestContext()
	defer cancel()

	if err := b.repo.UnsubscribeChat(reqCtx, ctx.Chat().ID); err != nil {
		b.log.Error("Failed to unsubscribe chat", "chat_id", ctx.Chat().ID, "error", err)
		return b.reply(ctx, failureMessage)
	}

	return b.reply(ctx, unsubscribedMessage)
}

func (b *Bot) listHandler(ctx telebot.Context) error {
	reqCtx, cancel := requestContext()
	defer cancel()

	records, err := b.repo.GetAllRecords(reqCtx)
	if err != nil {
		b.log.Error("Failed to list products", "error", err)
		return b.reply(ctx, failureMessage)
	}

	if len(records) == 0 {
		return b.reply(ctx, emptyListMessage)
	}

	lines := make([]string, len(records))
	for i, rec := range records {
		lines[i] = formatRecord(rec)
	}

	for _, msg := range splitMessage(lines, maxMessageLen) {
		if err = b.reply(ctx, msg); err != nil {
			return err
		}
	}

	return nil
}

func (b *Bot) reply(ctx telebot.Context, msg string) error {
	if err := ctx.Send(msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	return nil
}

func formatRecord(rec models.ProductRecord) string {
	minPrice := "no price yet"
	if rec.MinPrice.Valid {
		minPrice = "lowest " + rec.MinPrice.Decimal.StringFixed(2)
	}

	line := fmt.Sprintf("%s [%s]: %s", rec.DisplayName(), rec.ProductID, minPrice)
	if rec.Unavailable {
		line += " (sold out)"
	}

	return line
}

func formatDrop(drop models.PriceDrop) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Lowest price dropped: %s\n%s -> %s",
		drop.ProductName, drop.Previous.StringFixed(2), drop.Current.StringFixed(2))
	if drop.Href != "" {
		b.WriteString("\n" + drop.Href)
	}

	return b.String()
}

// splitMessage joins lines into messages no longer than limit.
func splitMessage(lines []string, limit int) []string {
	var (
		messages []string
		current  strings.Builder
		size     int // runes in current
	)
	for _, line := range lines {
		line = truncate(line, limit)
		n := utf8.RuneCountInString(line)
		if size > 0 && size+1+n > limit {
			messages = append(messages, current.String())
			current.Reset()
			size = 0
		}
		if size > 0 {
			current.WriteByte('\n')
			size++
		}
		current.WriteString(line)
		size += n
	}
	if current.Len() > 0 {
		messages = append(messages, current.String())
	}

	return messages
}

// truncate cuts s to at most limit runes.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}

	runes := 0
	for i := range s {
		if runes == limit {
			return s[:i]
		}
		runes++
	}

	return s
}
