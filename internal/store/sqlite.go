package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "pushherd/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveSubscription upserts by endpoint: a browser re-subscribing the same
// endpoint refreshes its keys and owner instead of creating a duplicate.
func (s *sqliteStore) SaveSubscription(ctx context.Context, sub Subscription) (string, error) {
	if s == nil || s.db == nil {
		return "", ErrClosed
	}
	id := sub.ID
	if id == "" {
		id = subscriptionID(sub.Credential.Endpoint)
	}
	at := sub.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions(id, user_id, endpoint, p256dh, auth, created_at)
		 VALUES(?,?,?,?,?,?)
		 ON CONFLICT(endpoint) DO UPDATE SET
		   user_id=excluded.user_id, p256dh=excluded.p256dh, auth=excluded.auth`,
		id, sub.UserID, sub.Credential.Endpoint, sub.Credential.P256DH, sub.Credential.Auth,
		at.Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// ListAllWithTier returns every subscription joined with its account tier,
// most recently created first. A missing account row yields an empty tier.
func (s *sqliteStore) ListAllWithTier(ctx context.Context) ([]SubscriptionWithTier, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.user_id, s.endpoint, s.p256dh, s.auth, s.created_at, COALESCE(a.tier, '')
		 FROM subscriptions s
		 LEFT JOIN accounts a ON a.user_id = s.user_id
		 ORDER BY s.created_at DESC, s.id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SubscriptionWithTier
	for rows.Next() {
		var it SubscriptionWithTier
		var createdAt string
		if err := rows.Scan(&it.ID, &it.UserID, &it.Credential.Endpoint, &it.Credential.P256DH,
			&it.Credential.Auth, &createdAt, &it.Tier); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			it.CreatedAt = t
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *sqliteStore) DeleteByID(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	if id == "" {
		return nil
	}
	// Zero affected rows is fine: deletes must stay idempotent.
	_, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = ?`, id)
	return err
}

func (s *sqliteStore) SetTier(ctx context.Context, userID, tier string) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	if strings.TrimSpace(userID) == "" {
		return errors.New("user id is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts(user_id, tier) VALUES(?,?)
		 ON CONFLICT(user_id) DO UPDATE SET tier=excluded.tier`,
		userID, tier,
	)
	return err
}

func (s *sqliteStore) CountSubscriptions(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrClosed
	}
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM subscriptions`).Scan(&n)
	return n, err
}

// subscriptionID derives a stable id from the endpoint URL so the same
// browser registration always maps to the same row.
func subscriptionID(endpoint string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(endpoint))
	return fmt.Sprintf("sub:%016x", h.Sum64())
}
