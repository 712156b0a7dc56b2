package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"anilife_bot/internal/model"
	"anilife_bot/internal/storage"
	"anilife_bot/internal/subscription"
)

type sentMessage struct {
	ChatID   int64
	Text     string
	PhotoURL string
}

type mockSender struct {
	mu       sync.Mutex
	messages []sentMessage
	failFor  map[int64]bool
}

func (m *mockSender) SendMessage(_ context.Context, chatID int64, text string) error {
	return m.record(sentMessage{ChatID: chatID, Text: text})
}

func (m *mockSender) SendPhoto(_ context.Context, chatID int64, photoURL, caption string) error {
	return m.record(sentMessage{ChatID: chatID, Text: caption, PhotoURL: photoURL})
}

func (m *mockSender) record(msg sentMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor[msg.ChatID] {
		return errors.New("bot was blocked by the user")
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *mockSender) getMessages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]sentMessage, len(m.messages))
	copy(cp, m.messages)
	return cp
}

type mockSearcher struct {
	mu      sync.Mutex
	results map[string][]model.Release
	errs    map[string]error
	panics  map[string]bool
	calls   int
	onFetch func(query string)
}

func (m *mockSearcher) Fetch(_ context.Context, query string, _ int) ([]model.Release, error) {
	m.mu.Lock()
	m.calls++
	hook := m.onFetch
	res, err, boom := m.results[query], m.errs[query], m.panics[query]
	m.mu.Unlock()

	if hook != nil {
		hook(query)
	}
	if boom {
		panic("upstream exploded")
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (m *mockSearcher) set(query string, releases ...model.Release) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.results == nil {
		m.results = map[string][]model.Release{}
	}
	m.results[query] = releases
}

func (m *mockSearcher) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func rel(ids ...string) []model.Release {
	out := make([]model.Release, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.Release{ID: id, Title: "Title " + id})
	}
	return out
}

func newTestStore(t *testing.T) *storage.SQLite {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedSub(t *testing.T, store *storage.SQLite, ownerID int64, query string, seen ...string) *model.Subscription {
	t.Helper()
	sub := &model.Subscription{OwnerID: ownerID, Query: query, LastSeenIDs: seen}
	if err := store.CreateSubscription(context.Background(), sub); err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	return sub
}

func lastSeen(t *testing.T, store *storage.SQLite, id int64) []string {
	t.Helper()
	subs, err := store.ListSubscriptions(context.Background())
	if err != nil {
		t.Fatalf("list subscriptions: %v", err)
	}
	for _, s := range subs {
		if s.ID == id {
			return s.LastSeenIDs
		}
	}
	t.Fatalf("subscription %d not found", id)
	return nil
}

func newTestScheduler(store storage.Storage, search Searcher, sender Sender, policy FailurePolicy) *Scheduler {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, search, sender, Options{
		Limit:         6,
		Timeout:       time.Second,
		OnFailure:     policy,
		SiteSearchURL: "https://site.test/search?q=",
	}, log)
}

func TestDiff(t *testing.T) {
	tests := []struct {
		name        string
		seen        []string
		releases    []model.Release
		wantCurrent []string
		wantNovel   []string
	}{
		{
			name:        "novel items",
			seen:        []string{"a", "b"},
			releases:    rel("b", "c", "d"),
			wantCurrent: []string{"b", "c", "d"},
			wantNovel:   []string{"c", "d"},
		},
		{
			name:        "id-less records dropped",
			seen:        nil,
			releases:    append(rel("1"), model.Release{Title: "ghost"}),
			wantCurrent: []string{"1"},
			wantNovel:   []string{"1"},
		},
		{
			name:        "duplicate ids reported once",
			releases:    rel("1", "1", "2"),
			wantCurrent: []string{"1", "2"},
			wantNovel:   []string{"1", "2"},
		},
		{
			name:        "empty fetch forgets everything",
			seen:        []string{"a"},
			releases:    nil,
			wantCurrent: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			current, novel := Diff(tt.seen, tt.releases)
			if diff := cmp.Diff(tt.wantCurrent, current); diff != "" {
				t.Errorf("current mismatch (-want +got):\n%s", diff)
			}
			var novelIDs []string
			for _, r := range novel {
				novelIDs = append(novelIDs, r.ID)
			}
			if diff := cmp.Diff(tt.wantNovel, novelIDs); diff != "" {
				t.Errorf("novel mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNovelItemsNotified(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sub := seedSub(t, store, 100, "Naruto", "a", "b")

	search := &mockSearcher{}
	search.set("Naruto", rel("b", "c", "d")...)
	sender := &mockSender{}

	newTestScheduler(store, search, sender, FailureReset).checkAll(ctx)

	msgs := sender.getMessages()
	if diff := cmp.Diff(2, len(msgs)); diff != "" {
		t.Fatalf("message count mismatch (-want +got):\n%s", diff)
	}
	for i, want := range []string{"Title c", "Title d"} {
		if msgs[i].ChatID != 100 {
			t.Errorf("msg[%d] chat = %d, want 100", i, msgs[i].ChatID)
		}
		if !strings.Contains(msgs[i].Text, want) {
			t.Errorf("msg[%d] = %q, want it to mention %q", i, msgs[i].Text, want)
		}
		if !strings.Contains(msgs[i].Text, "https://site.test/search?q=") {
			t.Errorf("msg[%d] has no site link: %q", i, msgs[i].Text)
		}
	}

	if diff := cmp.Diff([]string{"b", "c", "d"}, lastSeen(t, store, sub.ID)); diff != "" {
		t.Errorf("last seen mismatch (-want +got):\n%s", diff)
	}
}

func TestReplaceNotUnion(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sub := seedSub(t, store, 100, "Naruto")

	search := &mockSearcher{}
	sender := &mockSender{}
	sched := newTestScheduler(store, search, sender, FailureReset)

	cycles := [][]string{
		{"1", "2", "3"},
		{"3", "4"},
		{"5"},
		{"1", "5"},
	}
	wantSent := []int{3, 1, 1, 1}

	for i, ids := range cycles {
		before := len(sender.getMessages())
		search.set("Naruto", rel(ids...)...)
		sched.checkAll(ctx)

		if diff := cmp.Diff(ids, lastSeen(t, store, sub.ID)); diff != "" {
			t.Errorf("cycle %d last seen mismatch (-want +got):\n%s", i+1, diff)
		}
		if diff := cmp.Diff(wantSent[i], len(sender.getMessages())-before); diff != "" {
			t.Errorf("cycle %d notifications (-want +got):\n%s", i+1, diff)
		}
	}
}

func TestIDLessRecordsIgnored(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sub := seedSub(t, store, 100, "Naruto")

	search := &mockSearcher{}
	search.set("Naruto", model.Release{Title: "ghost"}, model.Release{ID: "7", Title: "real"})
	sender := &mockSender{}

	newTestScheduler(store, search, sender, FailureReset).checkAll(ctx)

	msgs := sender.getMessages()
	if diff := cmp.Diff(1, len(msgs)); diff != "" {
		t.Fatalf("message count (-want +got):\n%s", diff)
	}
	if strings.Contains(msgs[0].Text, "ghost") {
		t.Errorf("id-less record notified: %q", msgs[0].Text)
	}
	if diff := cmp.Diff([]string{"7"}, lastSeen(t, store, sub.ID)); diff != "" {
		t.Errorf("last seen mismatch (-want +got):\n%s", diff)
	}
}

func TestPosterSentAsPhoto(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedSub(t, store, 100, "Naruto")

	search := &mockSearcher{}
	search.set("Naruto", model.Release{ID: "1", Title: "Naruto", PosterURL: "https://cdn.test/1.jpg"})
	sender := &mockSender{}

	newTestScheduler(store, search, sender, FailureReset).checkAll(ctx)

	msgs := sender.getMessages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if diff := cmp.Diff("https://cdn.test/1.jpg", msgs[0].PhotoURL); diff != "" {
		t.Errorf("photo URL (-want +got):\n%s", diff)
	}
}

func TestSendFailureIsolated(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	a := seedSub(t, store, 1, "Naruto")
	b := seedSub(t, store, 2, "Bleach")

	search := &mockSearcher{}
	search.set("Naruto", rel("n1", "n2")...)
	search.set("Bleach", rel("b1")...)
	sender := &mockSender{failFor: map[int64]bool{1: true}}

	newTestScheduler(store, search, sender, FailureReset).checkAll(ctx)

	msgs := sender.getMessages()
	if diff := cmp.Diff(1, len(msgs)); diff != "" {
		t.Fatalf("message count (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(int64(2), msgs[0].ChatID); diff != "" {
		t.Errorf("chat (-want +got):\n%s", diff)
	}

	// Failed sends are not retried: the ids count as seen.
	if diff := cmp.Diff([]string{"n1", "n2"}, lastSeen(t, store, a.ID)); diff != "" {
		t.Errorf("A last seen (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"b1"}, lastSeen(t, store, b.ID)); diff != "" {
		t.Errorf("B last seen (-want +got):\n%s", diff)
	}
}

func TestPanicIsolated(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	a := seedSub(t, store, 1, "Cursed", "old")
	b := seedSub(t, store, 2, "Bleach")

	search := &mockSearcher{panics: map[string]bool{"Cursed": true}}
	search.set("Bleach", rel("b1")...)
	sender := &mockSender{}

	newTestScheduler(store, search, sender, FailureReset).checkAll(ctx)

	if diff := cmp.Diff([]string{"old"}, lastSeen(t, store, a.ID)); diff != "" {
		t.Errorf("panicking subscription state changed (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"b1"}, lastSeen(t, store, b.ID)); diff != "" {
		t.Errorf("B last seen (-want +got):\n%s", diff)
	}
}

func TestSearchFailurePolicy(t *testing.T) {
	tests := []struct {
		name   string
		policy FailurePolicy
		want   []string
	}{
		{name: "reset clears seen ids", policy: FailureReset, want: []string{}},
		{name: "keep preserves seen ids", policy: FailureKeep, want: []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := newTestStore(t)
			sub := seedSub(t, store, 1, "Naruto", "a", "b")

			search := &mockSearcher{errs: map[string]error{"Naruto": errors.New("timeout")}}
			sender := &mockSender{}

			newTestScheduler(store, search, sender, tt.policy).checkAll(ctx)

			if n := len(sender.getMessages()); n != 0 {
				t.Errorf("expected no notifications, got %d", n)
			}
			if diff := cmp.Diff(tt.want, lastSeen(t, store, sub.ID)); diff != "" {
				t.Errorf("last seen (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEmptyResultResets(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sub := seedSub(t, store, 1, "Naruto", "a", "b")

	search := &mockSearcher{}
	search.set("Naruto")
	newTestScheduler(store, search, &mockSender{}, FailureKeep).checkAll(ctx)

	if diff := cmp.Diff([]string{}, lastSeen(t, store, sub.ID)); diff != "" {
		t.Errorf("last seen (-want +got):\n%s", diff)
	}
}

func TestDeleteDuringCycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedSub(t, store, 1, "Naruto")
	other := seedSub(t, store, 2, "Bleach")

	search := &mockSearcher{}
	search.set("Naruto", rel("1", "2")...)
	search.set("Bleach", rel("b1")...)
	search.onFetch = func(query string) {
		if query == "Naruto" {
			if _, err := store.DeleteSubscriptions(ctx, 1, "Naruto"); err != nil {
				t.Errorf("delete during cycle: %v", err)
			}
		}
	}
	sender := &mockSender{}

	newTestScheduler(store, search, sender, FailureReset).checkAll(ctx)

	subs, err := store.ListSubscriptions(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if diff := cmp.Diff(1, len(subs)); diff != "" {
		t.Fatalf("subscription count (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(other.ID, subs[0].ID); diff != "" {
		t.Errorf("deleted subscription resurrected (-want +got):\n%s", diff)
	}
}

func TestSeededSubscriptionQuietOnFirstCycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	search := &mockSearcher{}
	search.set("Naruto", rel("1", "2")...)
	sender := &mockSender{}

	subs := subscription.New(store, search, subscription.SeedCurrent, 6, slog.New(slog.NewTextHandler(io.Discard, nil)))
	sub, err := subs.Add(ctx, 1, "Naruto")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if diff := cmp.Diff([]string{"1", "2"}, lastSeen(t, store, sub.ID)); diff != "" {
		t.Fatalf("seeded ids (-want +got):\n%s", diff)
	}

	newTestScheduler(store, search, sender, FailureReset).checkAll(ctx)

	if n := len(sender.getMessages()); n != 0 {
		t.Errorf("expected no notifications for unchanged results, got %d", n)
	}
}

func TestCancelledContext(t *testing.T) {
	store := newTestStore(t)
	seedSub(t, store, 1, "Naruto")

	search := &mockSearcher{}
	search.set("Naruto", rel("1")...)
	sender := &mockSender{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	newTestScheduler(store, search, sender, FailureReset).checkAll(ctx)

	if n := len(sender.getMessages()); n != 0 {
		t.Errorf("expected no messages with cancelled context, got %d", n)
	}
}

func TestRunPollsOnInterval(t *testing.T) {
	store := newTestStore(t)
	seedSub(t, store, 1, "Naruto")

	search := &mockSearcher{}
	search.set("Naruto", rel("1")...)
	sender := &mockSender{}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	sched := New(store, search, sender, Options{Interval: 20 * time.Millisecond, Timeout: time.Second}, log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	deadline := time.Now().Add(3 * time.Second)
	for search.callCount() < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if n := search.callCount(); n < 3 {
		t.Errorf("expected at least 3 poll cycles, got %d", n)
	}
	if diff := cmp.Diff(1, len(sender.getMessages())); diff != "" {
		t.Errorf("a stable result must be notified once (-want +got):\n%s", diff)
	}
}
