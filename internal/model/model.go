// Package model defines the domain types used across the application.
package model

import "time"

// Subscription is a stored (owner, query) pair together with the catalog
// ids already reported for it.
type Subscription struct {
	ID          int64
	OwnerID     int64
	Query       string
	LastSeenIDs []string
	CreatedAt   time.Time
}

// HistoryEntry is one line of a chat's action log.
type HistoryEntry struct {
	ID        int64
	OwnerID   int64
	Action    string
	CreatedAt time.Time
}

// UntitledRelease is shown when a catalog record carries no usable title.
const UntitledRelease = "Untitled"

// Release is a canonical catalog search result. ID is empty when the
// upstream record had nothing that could serve as an identifier.
type Release struct {
	ID          string
	Title       string
	Description string
	PosterURL   string
}

// HasID reports whether the release can take part in seen-id tracking.
func (r Release) HasID() bool {
	return r.ID != ""
}

// ReleaseIDs returns the distinct ids of releases in order, skipping
// releases without one.
func ReleaseIDs(releases []Release) []string {
	ids := make([]string, 0, len(releases))
	seen := make(map[string]struct{}, len(releases))
	for _, r := range releases {
		if !r.HasID() {
			continue
		}
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		ids = append(ids, r.ID)
	}
	return ids
}
