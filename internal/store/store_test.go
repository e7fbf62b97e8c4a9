package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"pushherd/internal/push"
	logx "pushherd/pkg/logx"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{
		Path:        filepath.Join(t.TempDir(), "pushherd.db"),
		BusyTimeout: time.Second,
	}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func testSub(user, endpoint string, at time.Time) Subscription {
	return Subscription{
		UserID: user,
		Credential: push.Credential{
			Endpoint: endpoint,
			P256DH:   "BKey",
			Auth:     "auth",
		},
		CreatedAt: at,
	}
}

func TestSaveAndListWithTier(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	if _, err := st.SaveSubscription(ctx, testSub("alice", "https://push.example/a", base)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := st.SaveSubscription(ctx, testSub("bob", "https://push.example/b", base.Add(time.Minute))); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := st.SetTier(ctx, "bob", "premium"); err != nil {
		t.Fatalf("set tier: %v", err)
	}

	subs, err := st.ListAllWithTier(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("listed %d subscriptions, want 2", len(subs))
	}
	// Most recently created first.
	if subs[0].UserID != "bob" || subs[1].UserID != "alice" {
		t.Fatalf("order = [%s %s], want [bob alice]", subs[0].UserID, subs[1].UserID)
	}
	if subs[0].Tier != "premium" {
		t.Errorf("bob tier = %q, want premium", subs[0].Tier)
	}
	// No account row: tier resolves empty, not an error.
	if subs[1].Tier != "" {
		t.Errorf("alice tier = %q, want empty", subs[1].Tier)
	}
	if subs[0].Credential.Endpoint != "https://push.example/b" {
		t.Errorf("endpoint = %q", subs[0].Credential.Endpoint)
	}
}

func TestSaveSubscriptionUpsertsByEndpoint(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	id1, err := st.SaveSubscription(ctx, testSub("alice", "https://push.example/same", time.Now()))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	// Same endpoint re-registered by another account: refresh, no duplicate.
	id2, err := st.SaveSubscription(ctx, testSub("carol", "https://push.example/same", time.Now()))
	if err != nil {
		t.Fatalf("save again: %v", err)
	}
	if id1 != id2 {
		t.Errorf("ids differ for same endpoint: %s vs %s", id1, id2)
	}

	n, err := st.CountSubscriptions(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}

	subs, err := st.ListAllWithTier(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if subs[0].UserID != "carol" {
		t.Errorf("owner = %q, want carol after re-register", subs[0].UserID)
	}
}

func TestDeleteByIDIsIdempotent(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	id, err := st.SaveSubscription(ctx, testSub("alice", "https://push.example/x", time.Now()))
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := st.DeleteByID(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	// Deleting again (or an id that never existed) is not an error.
	if err := st.DeleteByID(ctx, id); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if err := st.DeleteByID(ctx, "sub:never-existed"); err != nil {
		t.Fatalf("unknown delete: %v", err)
	}

	subs, err := st.ListAllWithTier(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 0 {
		t.Fatalf("%d subscriptions remain after delete", len(subs))
	}
}

func TestSetTierOverwrites(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	if _, err := st.SaveSubscription(ctx, testSub("dora", "https://push.example/d", time.Now())); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := st.SetTier(ctx, "dora", "free"); err != nil {
		t.Fatalf("set tier: %v", err)
	}
	if err := st.SetTier(ctx, "dora", "vip"); err != nil {
		t.Fatalf("update tier: %v", err)
	}

	subs, err := st.ListAllWithTier(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if subs[0].Tier != "vip" {
		t.Fatalf("tier = %q, want vip", subs[0].Tier)
	}
}
