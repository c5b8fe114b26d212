package telegram

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// processTimeout bounds handling of one update, automation call included.
const processTimeout = 5 * time.Minute

// API is the Bot API surface the dispatch loop needs. *Client implements it.
type API interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	GetUpdates(ctx context.Context, offset int64, timeoutSecs int) ([]Update, error)
}

// Handler turns one inbound message into ordered replies.
type Handler interface {
	Handle(ctx context.Context, userID, text string) []string
}

// Bot connects the Bot API to the conversation engine, via webhook or
// polling.
type Bot struct {
	api     API
	handler Handler
}

// NewBot creates a bot over the given API client and message handler.
func NewBot(api API, handler Handler) *Bot {
	return &Bot{api: api, handler: handler}
}

// WebhookHandler returns the HTTP handler for Bot API webhook deliveries.
// It acknowledges immediately and processes the update in the background;
// a slow automation call must not stall Telegram's delivery queue.
func (b *Bot) WebhookHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var upd Update
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&upd); err != nil {
			slog.Warn("Malformed webhook payload", "error", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)

		go b.process(upd)
	}
}

// process routes one update through the handler and sends the replies.
func (b *Bot) process(upd Update) {
	msg := upd.Message
	if msg == nil || msg.From == nil || msg.Text == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
	defer cancel()

	userID := strconv.FormatInt(msg.From.ID, 10)
	for _, reply := range b.handler.Handle(ctx, userID, msg.Text) {
		if err := b.api.SendMessage(ctx, msg.Chat.ID, reply); err != nil {
			slog.Error("Failed to send reply", "user_id", userID, "error", err)
			return // later chunks would arrive out of order
		}
	}
}
