package scheduler

import "anilife_bot/internal/model"

// Diff compares a fresh search result against the ids already seen.
// current is the id set to persist: fetch order, no duplicates, no id-less
// records. novel holds the releases whose id is not in seen, once per id.
func Diff(seen []string, releases []model.Release) (current []string, novel []model.Release) {
	known := make(map[string]struct{}, len(seen)+len(releases))
	for _, id := range seen {
		known[id] = struct{}{}
	}

	for _, r := range releases {
		if !r.HasID() {
			continue
		}
		if _, ok := known[r.ID]; ok {
			continue
		}
		known[r.ID] = struct{}{}
		novel = append(novel, r)
	}
	return model.ReleaseIDs(releases), novel
}
