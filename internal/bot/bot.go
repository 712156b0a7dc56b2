package bot

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"anilife_bot/internal/config"
	"anilife_bot/internal/model"
	"anilife_bot/internal/session"
	"anilife_bot/internal/storage"
	"anilife_bot/internal/subscription"
)

const (
	longPollSeconds = 50
	historyLimit    = 30
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Searcher runs catalog searches for chat requests.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) []model.Release
}

// Bot is the Telegram bot that handles user commands and sends notifications.
type Bot struct {
	api      telegramAPI
	updates  telegramAPI
	store    storage.Storage
	subs     *subscription.Service
	search   Searcher
	sessions *session.Cache
	cfg      *config.Config
	limiter  *rate.Limiter
	loc      *time.Location
	log      *slog.Logger
}

// New creates a Bot. Outgoing calls are bounded by cfg.RequestTimeout;
// update polling uses a separate client so long polls are not cut short.
func New(cfg *config.Config, store storage.Storage, subs *subscription.Service, search Searcher,
	sessions *session.Cache, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPIWithClient(cfg.TelegramBotToken, tgbotapi.APIEndpoint,
		&http.Client{Timeout: cfg.RequestTimeout})
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	updates, err := tgbotapi.NewBotAPIWithClient(cfg.TelegramBotToken, tgbotapi.APIEndpoint,
		&http.Client{Timeout: longPollSeconds*time.Second + cfg.RequestTimeout})
	if err != nil {
		return nil, fmt.Errorf("create updates api: %w", err)
	}

	log.Info("authorized", "username", api.Self.UserName)

	return &Bot{
		api:      api,
		updates:  updates,
		store:    store,
		subs:     subs,
		search:   search,
		sessions: sessions,
		cfg:      cfg,
		limiter:  rate.NewLimiter(rate.Limit(cfg.SendRate), max(1, int(cfg.SendRate))),
		loc:      time.Local,
		log:      log,
	}, nil
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = longPollSeconds

	src := b.updates
	if src == nil {
		src = b.api
	}
	updates := src.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			src.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if cb := update.CallbackQuery; cb != nil {
		if cb.Message == nil || cb.From == nil {
			return
		}
		if !b.cfg.IsUserAllowed(cb.From.ID) {
			b.ackCallback(cb.ID, "Access denied.")
			return
		}
		b.handleCallback(ctx, cb)
		return
	}

	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	if !b.cfg.IsUserAllowed(msg.From.ID) {
		b.reply(ctx, msg.Chat.ID, "Access denied.")
		return
	}
	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}
	b.handleText(ctx, msg.Chat.ID, msg.Text)
}

// SendMessage sends an HTML text message to the given chat.
func (b *Bot) SendMessage(ctx context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if err := b.send(ctx, msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// SendPhoto sends a photo by URL with an HTML caption.
func (b *Bot) SendPhoto(ctx context.Context, chatID int64, photoURL, caption string) error {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(photoURL))
	photo.Caption = caption
	photo.ParseMode = tgbotapi.ModeHTML
	if err := b.send(ctx, photo); err != nil {
		return fmt.Errorf("send photo: %w", err)
	}
	return nil
}

func (b *Bot) send(ctx context.Context, c tgbotapi.Chattable) error {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}
	_, err := b.api.Send(c)
	return err
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if err := b.SendMessage(ctx, chatID, text); err != nil {
		b.log.Error("reply", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) replyWithKeyboard(ctx context.Context, chatID int64, text string, kb tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = kb
	if err := b.send(ctx, msg); err != nil {
		b.log.Error("reply with keyboard", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) ackCallback(id, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(id, text)); err != nil {
		b.log.Error("send callback ack", "error", err)
	}
}

// logHistory records an action; failures are logged and otherwise ignored.
func (b *Bot) logHistory(ctx context.Context, chatID int64, action string) {
	if err := b.store.AppendHistory(ctx, chatID, strings.TrimSpace(action)); err != nil {
		b.log.Error("log history", "chat_id", chatID, "action", action, "error", err)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := ParseQueryArg(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(ctx, chatID)
	case "help":
		b.handleHelp(ctx, chatID)
	case "new":
		b.handleNew(ctx, chatID, args)
	case "add":
		b.handleAdd(ctx, chatID, args)
	case "remove":
		b.handleRemove(ctx, chatID, args)
	case "list":
		b.handleList(ctx, chatID)
	case "history":
		b.handleHistory(ctx, chatID)
	case "random":
		b.handleRandom(ctx, chatID)
	case "play":
		b.handleLink(ctx, chatID, args, "/play")
	case "find":
		b.handleLink(ctx, chatID, args, "/find")
	case "webapp":
		b.handleWebApp(ctx, chatID)
	default:
		b.reply(ctx, chatID, "Unknown command. Use /help for a list of commands.")
	}
}
