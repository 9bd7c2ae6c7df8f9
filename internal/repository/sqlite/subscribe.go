package sqlite

import (
	"context"
	"fmt"

	"github.com/Houeta/price-flow/internal/repository"
)

const (
	subscribeQuery   = "INSERT INTO subscriptions (chat_id) VALUES (?) ON CONFLICT (chat_id) DO NOTHING"
	unsubscribeQuery = "DELETE FROM subscriptions WHERE chat_id = ?"
)

// SubscribeChat adds chatID to the price drop audience. Subscribing twice is a no-op.
func (r *Repository) SubscribeChat(ctx context.Context, chatID int64) error {
	return r.execChat(ctx, "repository.sqlite.SubscribeChat", subscribeQuery, chatID)
}

// UnsubscribeChat removes chatID from the audience.
func (r *Repository) UnsubscribeChat(ctx context.Context, chatID int64) error {
	return r.execChat(ctx, "repository.sqlite.UnsubscribeChat", unsubscribeQuery, chatID)
}

func (r *Repository) execChat(ctx context.Context, opn, query string, chatID int64) error {
	res, err := r.db.ExecContext(ctx, query, chatID)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", opn, repository.ErrPersistence, err)
	}

	affected, _ := res.RowsAffected()
	r.log.DebugContext(ctx, "Subscription changed", "op", opn, "chat_id", chatID, "affected", affected)

	return nil
}

// GetSubscribedChats returns the audience ordered by chat id.
func (r *Repository) GetSubscribedChats(ctx context.Context) ([]int64, error) {
	const opn = "repository.sqlite.GetSubscribedChats"

	rows, err := r.db.QueryContext(ctx, "SELECT chat_id FROM subscriptions ORDER BY chat_id")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opn, err)
	}
	defer rows.Close()

	chats := make([]int64, 0)
	for rows.Next() {
		var chatID int64
		if err = rows.Scan(&chatID); err != nil {
			return nil, fmt.Errorf("%s: failed to scan chat_id: %w", opn, err)
		}
		chats = append(chats, chatID)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows iteration error: %w", opn, err)
	}

	return chats, nil
}
