// Package subscription implements the add/remove/list operations that chat
// commands perform on stored subscriptions.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"anilife_bot/internal/model"
	"anilife_bot/internal/storage"
)

// ErrEmptyQuery is returned by Add when the query is blank.
var ErrEmptyQuery = errors.New("query is empty")

// SeedPolicy decides what a new subscription's seen-id set starts with.
type SeedPolicy string

// Supported seed policies.
const (
	// SeedNone starts with an empty set, so the first poll cycle reports
	// everything the search currently returns.
	SeedNone SeedPolicy = "none"
	// SeedCurrent fills the set with the current search result, so only
	// releases appearing after subscription time are reported.
	SeedCurrent SeedPolicy = "current"
)

// Searcher fetches catalog releases for a query.
type Searcher interface {
	Fetch(ctx context.Context, query string, limit int) ([]model.Release, error)
}

// Service manages subscriptions on behalf of chat owners.
type Service struct {
	store  storage.Storage
	search Searcher
	seed   SeedPolicy
	limit  int
	log    *slog.Logger
}

// New creates a Service. search may be nil when seed is SeedNone.
func New(store storage.Storage, search Searcher, seed SeedPolicy, limit int, log *slog.Logger) *Service {
	if seed == "" {
		seed = SeedNone
	}
	return &Service{
		store:  store,
		search: search,
		seed:   seed,
		limit:  limit,
		log:    log,
	}
}

// Add subscribes owner to query. The query is trimmed; duplicates of an
// existing subscription are allowed.
func (s *Service) Add(ctx context.Context, ownerID int64, query string) (*model.Subscription, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	sub := &model.Subscription{
		OwnerID:     ownerID,
		Query:       query,
		LastSeenIDs: s.seedIDs(ctx, query),
	}
	if err := s.store.CreateSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}

	s.log.Info("subscription added", "sub_id", sub.ID, "chat_id", ownerID, "query", query, "seeded", len(sub.LastSeenIDs))
	return sub, nil
}

// Remove deletes every subscription of owner with exactly this query.
// Removing a query that is not subscribed is not an error.
func (s *Service) Remove(ctx context.Context, ownerID int64, query string) error {
	n, err := s.store.DeleteSubscriptions(ctx, ownerID, query)
	if err != nil {
		return fmt.Errorf("remove subscription: %w", err)
	}
	s.log.Info("subscription removed", "chat_id", ownerID, "query", query, "deleted", n)
	return nil
}

// List returns the queries owner is subscribed to.
func (s *Service) List(ctx context.Context, ownerID int64) ([]string, error) {
	queries, err := s.store.ListQueries(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return queries, nil
}

func (s *Service) seedIDs(ctx context.Context, query string) []string {
	if s.seed != SeedCurrent || s.search == nil {
		return []string{}
	}

	releases, err := s.search.Fetch(ctx, query, s.limit)
	if err != nil {
		s.log.Warn("seed subscription", "query", query, "error", err)
		return []string{}
	}

	return model.ReleaseIDs(releases)
}
