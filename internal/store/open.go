package store

import (
	"context"

	logx "pushherd/pkg/logx"
)

// Store is the persistence API consumed by the dispatcher and the HTTP
// handlers.
//
// DeleteByID is idempotent: deleting an id that is already gone is not
// an error, so two concurrent dispatches may both prune the same dead
// subscription safely.
type Store interface {
	SaveSubscription(ctx context.Context, s Subscription) (id string, err error)
	ListAllWithTier(ctx context.Context) ([]SubscriptionWithTier, error)
	DeleteByID(ctx context.Context, id string) error
	SetTier(ctx context.Context, userID, tier string) error
	CountSubscriptions(ctx context.Context) (int, error)
	Close() error
}

// Open initializes the sqlite-backed store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	return openSQLite(cfg, log)
}
