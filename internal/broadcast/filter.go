package broadcast

import (
	"fmt"
	"strings"

	"pushherd/internal/store"
)

// TargetFilter selects which subscriptions a broadcast reaches.
type TargetFilter string

const (
	FilterAll     TargetFilter = "all"
	FilterFree    TargetFilter = "free"
	FilterPremium TargetFilter = "premium"
)

// ParseFilter parses caller input; empty defaults to FilterAll.
func ParseFilter(s string) (TargetFilter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return FilterAll, nil
	case "free":
		return FilterFree, nil
	case "premium":
		return FilterPremium, nil
	default:
		return "", fmt.Errorf("unknown audience filter %q (want all, free or premium)", s)
	}
}

// Matches reports whether a stored tier value qualifies for the filter.
//
// Tier text is matched case-insensitively. An absent tier counts as
// free; "gratuito" is a legacy alias of free and "vip" of premium.
func (f TargetFilter) Matches(tier string) bool {
	t := strings.ToLower(strings.TrimSpace(tier))
	switch f {
	case FilterFree:
		return t == "" || t == "free" || t == "gratuito"
	case FilterPremium:
		return t == "premium" || t == "vip"
	default:
		// FilterAll matches everything, unresolved tiers included.
		return true
	}
}

// SelectAudience narrows subs to those matching f. Pure and
// order-preserving: the store's ordering survives filtering.
func SelectAudience(subs []store.SubscriptionWithTier, f TargetFilter) []store.SubscriptionWithTier {
	if f == FilterAll || f == "" {
		return subs
	}
	out := make([]store.SubscriptionWithTier, 0, len(subs))
	for _, s := range subs {
		if f.Matches(s.Tier) {
			out = append(out, s)
		}
	}
	return out
}
