// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"

	"anilife_bot/internal/model"
)

// Storage is the interface for all persistence operations. Every method is
// a single atomic statement; callers never hold a transaction across calls.
type Storage interface {
	CreateSubscription(ctx context.Context, sub *model.Subscription) error
	DeleteSubscriptions(ctx context.Context, ownerID int64, query string) (int64, error)
	ListQueries(ctx context.Context, ownerID int64) ([]string, error)
	ListSubscriptions(ctx context.Context) ([]model.Subscription, error)
	UpdateLastSeen(ctx context.Context, id int64, ids []string) error

	AppendHistory(ctx context.Context, ownerID int64, action string) error
	ListHistory(ctx context.Context, ownerID int64, limit int) ([]model.HistoryEntry, error)

	Ping(ctx context.Context) error
	Close() error
}
