package store

import (
	"errors"
	"time"

	"pushherd/internal/push"
)

var (
	// ErrClosed is returned after Close() or when the store never opened.
	ErrClosed = errors.New("store closed")
)

// Config configures the subscription store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Subscription is one stored browser push registration.
// Mutated only by deletion; endpoints are never updated in place.
type Subscription struct {
	ID         string
	UserID     string
	Credential push.Credential
	CreatedAt  time.Time
}

// SubscriptionWithTier joins the owning account's tier onto a
// Subscription at read time. Tier is the raw stored text ("", "free",
// "gratuito", "premium", "vip"); empty means the account is unknown or
// has no tier row.
type SubscriptionWithTier struct {
	Subscription
	Tier string
}
