// Package scheduler runs the subscription poll cycle: it re-runs every
// stored query, notifies owners about releases they have not seen yet and
// stores the new seen-id set.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"anilife_bot/internal/bot"
	"anilife_bot/internal/metrics"
	"anilife_bot/internal/model"
	"anilife_bot/internal/storage"
)

// Searcher fetches catalog releases for a query.
type Searcher interface {
	Fetch(ctx context.Context, query string, limit int) ([]model.Release, error)
}

// Sender delivers notifications to a chat.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendPhoto(ctx context.Context, chatID int64, photoURL, caption string) error
}

// FailurePolicy decides what a failed search does to a subscription's
// seen-id set.
type FailurePolicy string

// Supported failure policies.
const (
	// FailureReset treats a failed search as an empty result, so the seen
	// set is cleared and every item is reported again once search recovers.
	FailureReset FailurePolicy = "reset"
	// FailureKeep leaves the seen set untouched until a search succeeds.
	FailureKeep FailurePolicy = "keep"
)

// Options configures a Scheduler. Zero values fall back to defaults.
type Options struct {
	Interval      time.Duration
	Limit         int
	Timeout       time.Duration
	OnFailure     FailurePolicy
	SiteSearchURL string
}

const (
	defaultInterval = 1800 * time.Second
	defaultLimit    = 6
	defaultTimeout  = 10 * time.Second
)

// Scheduler periodically checks subscriptions and sends notifications.
type Scheduler struct {
	store  storage.Storage
	search Searcher
	sender Sender
	log    *slog.Logger
	opts   Options
}

// New creates a Scheduler.
func New(store storage.Storage, search Searcher, sender Sender, opts Options, log *slog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.Limit <= 0 {
		opts.Limit = defaultLimit
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.OnFailure == "" {
		opts.OnFailure = FailureReset
	}
	return &Scheduler{
		store:  store,
		search: search,
		sender: sender,
		log:    log,
		opts:   opts,
	}
}

// Run polls all subscriptions right away and then every interval, blocking
// until ctx is cancelled. Cycles never overlap: a cycle that outlives the
// interval pushes the next run back.
func (s *Scheduler) Run(ctx context.Context) error {
	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(s.opts.Interval),
		gocron.NewTask(func() { s.checkAll(ctx) }),
		gocron.WithName("poll-subscriptions"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("schedule poll job: %w", err)
	}

	sched.Start()
	<-ctx.Done()

	if err := sched.Shutdown(); err != nil {
		return fmt.Errorf("stop scheduler: %w", err)
	}
	return nil
}

func (s *Scheduler) checkAll(ctx context.Context) {
	start := time.Now()
	defer func() {
		metrics.PollCycles.Inc()
		metrics.PollCycleDuration.Observe(time.Since(start).Seconds())
	}()

	subs, err := s.store.ListSubscriptions(ctx)
	if err != nil {
		s.log.Error("list subscriptions", "error", err)
		return
	}

	var failed int
	for _, sub := range subs {
		if ctx.Err() != nil {
			return
		}
		if err := s.processSubscription(ctx, sub); err != nil {
			failed++
			metrics.SubscriptionsProcessed.WithLabelValues(metrics.ResultError).Inc()
			s.log.Error("process subscription", "sub_id", sub.ID, "query", sub.Query, "error", err)
			continue
		}
		metrics.SubscriptionsProcessed.WithLabelValues(metrics.ResultOK).Inc()
	}

	s.log.Debug("poll cycle finished", "subscriptions", len(subs), "failed", failed, "took", time.Since(start))
}

func (s *Scheduler) processSubscription(ctx context.Context, sub model.Subscription) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	s.log.Debug("checking subscription", "sub_id", sub.ID, "query", sub.Query)

	releases, err := s.search.Fetch(ctx, sub.Query, s.opts.Limit)
	if err != nil {
		if s.opts.OnFailure == FailureKeep {
			return fmt.Errorf("search: %w", err)
		}
		s.log.Error("search subscription", "sub_id", sub.ID, "query", sub.Query, "error", err)
		releases = nil
	}

	current, novel := Diff(sub.LastSeenIDs, releases)

	sent := 0
	for _, r := range novel {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.notify(ctx, sub, r); err != nil {
			metrics.Notifications.WithLabelValues(metrics.ResultFailed).Inc()
			s.log.Error("send notification", "sub_id", sub.ID, "chat_id", sub.OwnerID, "release_id", r.ID, "error", err)
			continue
		}
		metrics.Notifications.WithLabelValues(metrics.ResultSent).Inc()
		sent++
	}

	if sent > 0 {
		s.log.Info("sent notifications", "sub_id", sub.ID, "query", sub.Query, "count", sent)
	}

	if err := s.store.UpdateLastSeen(ctx, sub.ID, current); err != nil {
		return fmt.Errorf("update last seen: %w", err)
	}
	return nil
}

func (s *Scheduler) notify(ctx context.Context, sub model.Subscription, r model.Release) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	text := bot.FormatNotification(sub.Query, r, bot.SearchLink(s.opts.SiteSearchURL, r.Title))
	if r.PosterURL != "" {
		return s.sender.SendPhoto(ctx, sub.OwnerID, r.PosterURL, text)
	}
	return s.sender.SendMessage(ctx, sub.OwnerID, text)
}
