package catalog

import (
	"encoding/json"
	"slices"
	"strconv"
	"strings"

	"anilife_bot/internal/model"
)

// Field names seen across upstream payload shapes, in lookup order.
var (
	idKeys          = []string{"id", "release_id", "releaseId", "anime_id", "_id"}
	localTitleKeys  = []string{"title_ru", "russian", "name_ru"}
	titleKeys       = []string{"title", "name", "names"}
	titleLangKeys   = []string{"ru", "main", "russian", "en", "english", "romaji", "original"}
	descriptionKeys = []string{"description", "synopsis", "overview"}
	posterKeys      = []string{"poster_url", "poster", "image", "cover"}
	posterURLKeys   = []string{"url", "src", "original", "optimized", "preview"}
	listKeys        = []string{"data", "results", "items", "list", "releases"}
)

// Canonicalize turns one upstream record into a Release. It never fails:
// missing fields become empty strings and a missing title becomes
// model.UntitledRelease.
func Canonicalize(rec map[string]any) model.Release {
	r := model.Release{
		ID:          firstScalar(rec, idKeys),
		Description: firstString(rec, descriptionKeys),
		PosterURL:   posterURL(rec),
	}

	r.Title = firstString(rec, localTitleKeys)
	if r.Title == "" {
		for _, k := range titleKeys {
			if t := textOf(rec[k]); t != "" {
				r.Title = t
				break
			}
		}
	}
	if r.Title == "" {
		r.Title = model.UntitledRelease
	}
	return r
}

// records extracts the list of record objects from a decoded payload, which
// is either a bare array or an object wrapping one.
func records(payload any) []map[string]any {
	var items []any
	switch v := payload.(type) {
	case []any:
		items = v
	case map[string]any:
		for _, k := range listKeys {
			if list, ok := v[k].([]any); ok {
				items = list
				break
			}
		}
	}

	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		if m, ok := it.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func firstScalar(rec map[string]any, keys []string) string {
	for _, k := range keys {
		if s := scalar(rec[k]); s != "" {
			return s
		}
	}
	return ""
}

func scalar(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	}
	return ""
}

func firstString(rec map[string]any, keys []string) string {
	for _, k := range keys {
		if s, ok := rec[k].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

// textOf reads a title that may be a string, a language map or a list.
func textOf(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case map[string]any:
		if s := firstString(x, titleLangKeys); s != "" {
			return s
		}
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		return firstString(x, keys)
	case []any:
		for _, it := range x {
			if s := textOf(it); s != "" {
				return s
			}
		}
	}
	return ""
}

func posterURL(rec map[string]any) string {
	for _, k := range posterKeys {
		switch x := rec[k].(type) {
		case string:
			if s := strings.TrimSpace(x); s != "" {
				return s
			}
		case map[string]any:
			if s := firstString(x, posterURLKeys); s != "" {
				return s
			}
			for _, nk := range posterURLKeys {
				if nested, ok := x[nk].(map[string]any); ok {
					if s := firstString(nested, posterURLKeys); s != "" {
						return s
					}
				}
			}
		}
	}
	return ""
}
