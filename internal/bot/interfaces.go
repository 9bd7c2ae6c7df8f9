package bot

import (
	"context"

	"github.com/Houeta/price-flow/internal/models"
	"github.com/Houeta/price-flow/internal/repository"
	"gopkg.in/telebot.v4"
)

// API is the part of *telebot.Bot the price bot uses.
type API interface {
	// Handle lets you set the handler for some command name or one of the supported endpoints. It also applies middleware if such passed to the function.
	Handle(endpoint interface{}, h telebot.HandlerFunc, m ...telebot.MiddlewareFunc)
	// Start brings bot into motion by consuming incoming updates (see Bot.Updates channel).
	Start()
	// Stop gracefully shuts the poller down.
	Stop()
	// Send delivers a message to a chat; price drop alerts go through it.
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// Store is the storage the bot reads tracked products and subscriptions from.
type Store interface {
	repository.Subscriptions
	GetAllRecords(ctx context.Context) ([]models.ProductRecord, error)
}
