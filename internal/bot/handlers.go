package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"anilife_bot/internal/subscription"
)

const resultButtonsPerRow = 4

func (b *Bot) handleStart(ctx context.Context, chatID int64) {
	if b.sessions != nil {
		b.sessions.Drop(chatID)
	}
	b.reply(ctx, chatID, helpText)
	b.logHistory(ctx, chatID, "/start")
}

func (b *Bot) handleHelp(ctx context.Context, chatID int64) {
	b.reply(ctx, chatID, helpText)
	b.logHistory(ctx, chatID, "/help")
}

func (b *Bot) handleNew(ctx context.Context, chatID int64, query string) {
	label := query
	if label == "" {
		label = "everything"
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("📥 Open releases", SearchLink(b.cfg.SiteSearchURL, query)),
		),
	)
	b.replyWithKeyboard(ctx, chatID, fmt.Sprintf("Latest releases for «%s»:", html.EscapeString(label)), kb)
	b.logHistory(ctx, chatID, "/new "+query)
}

func (b *Bot) handleAdd(ctx context.Context, chatID int64, query string) {
	sub, err := b.subs.Add(ctx, chatID, query)
	if errors.Is(err, subscription.ErrEmptyQuery) {
		b.reply(ctx, chatID, "Usage: /add &lt;title&gt;")
		return
	}
	if err != nil {
		b.log.Error("add subscription", "chat_id", chatID, "query", query, "error", err)
		b.reply(ctx, chatID, "⚠️ Could not save the subscription. Please try again later.")
		return
	}
	b.reply(ctx, chatID, fmt.Sprintf("✅ Subscribed to «%s».", html.EscapeString(sub.Query)))
	b.logHistory(ctx, chatID, "/add "+sub.Query)
}

func (b *Bot) handleRemove(ctx context.Context, chatID int64, query string) {
	if query == "" {
		b.reply(ctx, chatID, "Usage: /remove &lt;title&gt;")
		return
	}
	if err := b.subs.Remove(ctx, chatID, query); err != nil {
		b.log.Error("remove subscription", "chat_id", chatID, "query", query, "error", err)
		b.reply(ctx, chatID, "⚠️ Could not remove the subscription. Please try again later.")
		return
	}
	b.reply(ctx, chatID, fmt.Sprintf("❌ Unsubscribed from «%s».", html.EscapeString(query)))
	b.logHistory(ctx, chatID, "/remove "+query)
}

func (b *Bot) handleList(ctx context.Context, chatID int64) {
	queries, err := b.subs.List(ctx, chatID)
	if err != nil {
		b.log.Error("list subscriptions", "chat_id", chatID, "error", err)
		b.reply(ctx, chatID, "⚠️ Could not load your subscriptions. Please try again later.")
		return
	}
	b.reply(ctx, chatID, FormatSubscriptions(queries))
	b.logHistory(ctx, chatID, "/list")
}

func (b *Bot) handleHistory(ctx context.Context, chatID int64) {
	entries, err := b.store.ListHistory(ctx, chatID, historyLimit)
	if err != nil {
		b.log.Error("list history", "chat_id", chatID, "error", err)
		b.reply(ctx, chatID, "⚠️ Could not load your history. Please try again later.")
		return
	}
	b.reply(ctx, chatID, FormatHistory(entries, b.loc))
}

func (b *Bot) handleRandom(ctx context.Context, chatID int64) {
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("🎲 Open a random title", b.siteURL("random")),
		),
	)
	b.replyWithKeyboard(ctx, chatID, "Random title:", kb)
	b.logHistory(ctx, chatID, "/random")
}

func (b *Bot) handleWebApp(ctx context.Context, chatID int64) {
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("Open WebApp 🚀", b.siteURL("")),
		),
	)
	b.replyWithKeyboard(ctx, chatID, "Tap the button to open the site.", kb)
	b.logHistory(ctx, chatID, "/webapp")
}

// handleLink answers /play and /find with links to the site search.
func (b *Bot) handleLink(ctx context.Context, chatID int64, query, label string) {
	if query == "" {
		b.reply(ctx, chatID, fmt.Sprintf("Usage: %s &lt;title&gt;", label))
		return
	}
	repeat := query
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("🌐 Open in browser", SearchLink(b.cfg.SiteSearchURL, query)),
			tgbotapi.NewInlineKeyboardButtonURL("🚀 Open WebApp", b.siteURL("")),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.InlineKeyboardButton{Text: "🔁 Repeat search in chat", SwitchInlineQueryCurrentChat: &repeat},
		),
	)
	b.replyWithKeyboard(ctx, chatID,
		fmt.Sprintf("🔎 Results for <b>%s</b>\n\nTap a button below to open the search results.", html.EscapeString(query)), kb)
	b.logHistory(ctx, chatID, label+" "+query)
}

// handleText searches the catalog for free text and remembers the results
// for the details buttons.
func (b *Bot) handleText(ctx context.Context, chatID int64, text string) {
	query := strings.TrimSpace(text)
	if query == "" {
		return
	}

	releases := b.search.Search(ctx, query, b.cfg.ResultLimit)
	if b.sessions != nil {
		b.sessions.Put(chatID, releases)
	}

	rows := resultRows(len(releases))
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonURL("🔎 Open results", SearchLink(b.cfg.SiteSearchURL, query)),
		tgbotapi.NewInlineKeyboardButtonURL("🚀 Open WebApp", b.siteURL("")),
	))
	b.replyWithKeyboard(ctx, chatID, FormatSearchResults(query, releases), tgbotapi.NewInlineKeyboardMarkup(rows...))
	b.logHistory(ctx, chatID, "search "+query)
}

func resultRows(n int) [][]tgbotapi.InlineKeyboardButton {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for i := range n {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("ℹ️ %d", i+1), detailsData(i)))
		if len(row) == resultButtonsPerRow {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return rows
}

func (b *Bot) siteURL(path string) string {
	return strings.TrimRight(b.cfg.SiteURL, "/") + "/" + path
}
