package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID
	b.ackCallback(cb.ID, "")

	action, idx, err := ParseCallbackData(cb.Data)
	if err != nil {
		b.log.Debug("ignore callback", "data", cb.Data, "error", err)
		return
	}

	b.log.Info("callback",
		"action", action,
		"index", idx,
		"chat_id", chatID,
		"user_id", cb.From.ID,
		"username", cb.From.UserName,
	)

	if action == actionDetails {
		b.handleDetails(ctx, chatID, idx)
	}
}

func (b *Bot) handleDetails(ctx context.Context, chatID int64, idx int) {
	if b.sessions == nil {
		return
	}
	r, ok := b.sessions.Get(chatID, idx)
	if !ok {
		b.reply(ctx, chatID, "These results have expired. Send the title again to search.")
		return
	}

	caption := FormatDetails(r, SearchLink(b.cfg.SiteSearchURL, r.Title))
	if r.PosterURL != "" {
		err := b.SendPhoto(ctx, chatID, r.PosterURL, caption)
		if err == nil {
			return
		}
		b.log.Warn("send details photo", "chat_id", chatID, "release_id", r.ID, "error", err)
	}
	b.reply(ctx, chatID, caption)
}
