package bot

import (
	"fmt"
	"html"
	"net/url"
	"strings"
	"time"

	"anilife_bot/internal/model"
)

const (
	maxTitle       = 200
	maxDescription = 300
	historyLayout  = "2006-01-02 15:04:05"
)

const helpText = `👋 <b>AniLife</b>

I can search anime, give quick links to the site and notify you about new releases.

Commands:
/new [title] — latest releases (link)
/add &lt;title&gt; — subscribe
/remove &lt;title&gt; — unsubscribe
/list — your subscriptions
/history — your recent actions
/random — random title
/play &lt;title or episode + title&gt; — watch link
/find &lt;title&gt; — search link
/webapp — open the site
/help — this message

Any other text is searched in the catalog.`

// SearchLink returns the site search URL for query.
func SearchLink(base, query string) string {
	return base + url.QueryEscape(strings.TrimSpace(query))
}

// FormatNotification formats a newly seen release of a subscription.
func FormatNotification(query string, r model.Release, link string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔔 New for «%s»: <b>%s</b>",
		html.EscapeString(truncate(query, maxTitle)), html.EscapeString(truncate(r.Title, maxTitle)))
	if r.Description != "" {
		b.WriteString("\n\n")
		b.WriteString(html.EscapeString(truncate(r.Description, maxDescription)))
	}
	if link != "" {
		b.WriteString("\n\n")
		b.WriteString(html.EscapeString(link))
	}
	return b.String()
}

// FormatDetails formats a single release for the details view.
func FormatDetails(r model.Release, link string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>", html.EscapeString(truncate(r.Title, maxTitle)))
	if r.Description != "" {
		b.WriteString("\n\n")
		b.WriteString(html.EscapeString(truncate(r.Description, maxDescription)))
	}
	fmt.Fprintf(&b, "\n\n%s", html.EscapeString(link))
	return b.String()
}

// FormatSearchResults formats a numbered list of search results.
func FormatSearchResults(query string, releases []model.Release) string {
	q := html.EscapeString(query)
	if len(releases) == 0 {
		return fmt.Sprintf("Nothing found for <b>%s</b>.", q)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🔎 Results for <b>%s</b>:\n", q)
	for i, r := range releases {
		fmt.Fprintf(&b, "\n%d. %s", i+1, html.EscapeString(r.Title))
	}
	b.WriteString("\n\nTap a number for details.")
	return b.String()
}

// FormatSubscriptions formats the query list of a chat.
func FormatSubscriptions(queries []string) string {
	if len(queries) == 0 {
		return "You have no subscriptions. Use /add &lt;title&gt; to add one."
	}
	var b strings.Builder
	b.WriteString("📝 Your subscriptions:")
	for _, q := range queries {
		fmt.Fprintf(&b, "\n- %s", html.EscapeString(q))
	}
	return b.String()
}

// FormatHistory formats history entries in the given location.
func FormatHistory(entries []model.HistoryEntry, loc *time.Location) string {
	if len(entries) == 0 {
		return "History is empty."
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("%s: %s", e.CreatedAt.In(loc).Format(historyLayout), html.EscapeString(e.Action)))
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
