package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"anilife_bot/internal/model"
	"anilife_bot/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// One connection serialises writers from the poller and the handlers
	// and keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateSubscription inserts a new subscription and populates its ID and
// CreatedAt. Duplicate (owner, query) pairs are accepted.
func (s *SQLite) CreateSubscription(ctx context.Context, sub *model.Subscription) error {
	ids, err := encodeIDs(sub.LastSeenIDs)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions (owner_id, query, last_seen_ids_json, created_at)
		 VALUES (?, ?, ?, ?)`,
		sub.OwnerID, sub.Query, ids, now,
	)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	sub.ID = id
	sub.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// DeleteSubscriptions removes every subscription of owner whose query equals
// query exactly and returns how many rows went away.
func (s *SQLite) DeleteSubscriptions(ctx context.Context, ownerID int64, query string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE owner_id = ? AND query = ?`, ownerID, query,
	)
	if err != nil {
		return 0, fmt.Errorf("delete subscriptions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// ListQueries returns the query text of every subscription of owner in
// storage order.
func (s *SQLite) ListQueries(ctx context.Context, ownerID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT query FROM subscriptions WHERE owner_id = ? ORDER BY id`, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var queries []string
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, fmt.Errorf("scan query: %w", err)
		}
		queries = append(queries, q)
	}
	return queries, rows.Err()
}

// ListSubscriptions returns a snapshot of all subscriptions.
func (s *SQLite) ListSubscriptions(ctx context.Context) ([]model.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, query, last_seen_ids_json, created_at FROM subscriptions ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var subs []model.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

// UpdateLastSeen replaces the seen-id set of a subscription. Updating a row
// that has been deleted in the meantime is a no-op.
func (s *SQLite) UpdateLastSeen(ctx context.Context, id int64, ids []string) error {
	encoded, err := encodeIDs(ids)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE subscriptions SET last_seen_ids_json = ? WHERE id = ?`, encoded, id,
	)
	if err != nil {
		return fmt.Errorf("update last seen: %w", err)
	}
	return nil
}

// AppendHistory records an action for owner.
func (s *SQLite) AppendHistory(ctx context.Context, ownerID int64, action string) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO history (owner_id, action, created_at) VALUES (?, ?, ?)`,
		ownerID, action, now,
	)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

// ListHistory returns up to limit history entries of owner, newest first.
func (s *SQLite) ListHistory(ctx context.Context, ownerID int64, limit int) ([]model.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, action, created_at FROM history
		 WHERE owner_id = ? ORDER BY id DESC LIMIT ?`, ownerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.HistoryEntry
	for rows.Next() {
		var e model.HistoryEntry
		var created string
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.Action, &created); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.CreatedAt, _ = time.Parse(timeLayout, created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func encodeIDs(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("encode last seen ids: %w", err)
	}
	return string(b), nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSubscription(row scannable) (*model.Subscription, error) {
	var sub model.Subscription
	var idsJSON sql.NullString
	var created string
	if err := row.Scan(&sub.ID, &sub.OwnerID, &sub.Query, &idsJSON, &created); err != nil {
		return nil, fmt.Errorf("scan subscription: %w", err)
	}
	sub.LastSeenIDs = []string{}
	if idsJSON.Valid && idsJSON.String != "" {
		if err := json.Unmarshal([]byte(idsJSON.String), &sub.LastSeenIDs); err != nil {
			return nil, fmt.Errorf("decode last seen ids of subscription %d: %w", sub.ID, err)
		}
	}
	sub.CreatedAt, _ = time.Parse(timeLayout, created)
	return &sub, nil
}
