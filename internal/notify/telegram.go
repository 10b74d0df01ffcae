// Package notify implements the operator notification/approval channel:
// Telegram alerts plus a blocking yes/no prompt for the recovery
// protocol's last step, and an optional Firebase push fan-out. Both
// collaborators follow the same nil-safe degrade pattern: a constructor
// that returns nil when credentials are absent, with every method on the
// nil receiver a safe no-op, so the rest of the engine never needs a
// feature flag to ask "is notification configured."
package notify

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const chatIDFile = "chat_id.txt"

// Telegram wraps a bot session plus the persisted operator chat ID.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64

	mu       sync.Mutex
	pending  map[string]chan bool
}

// NewTelegram initializes the bot from TELEGRAM_BOT_TOKEN. It returns nil
// if the token is absent or the bot fails to authenticate — callers treat
// a nil *Telegram as "notifications disabled," never as an error.
func NewTelegram() *Telegram {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		log.Println("⚠️ TELEGRAM_BOT_TOKEN not found. Notifications disabled.")
		return nil
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		log.Printf("⚠️ Failed to init Telegram bot: %v", err)
		return nil
	}
	log.Printf("✅ Authorized on account %s", bot.Self.UserName)

	t := &Telegram{bot: bot, pending: make(map[string]chan bool)}

	if chatIDStr := os.Getenv("TELEGRAM_CHAT_ID"); chatIDStr != "" {
		if id, err := strconv.ParseInt(chatIDStr, 10, 64); err == nil {
			t.chatID = id
		}
	}
	if t.chatID == 0 {
		t.chatID = t.loadChatID()
	}
	if t.chatID != 0 {
		log.Printf("✅ loaded persistent chat id: %d", t.chatID)
	}

	go t.listen()
	return t
}

func (t *Telegram) loadChatID() int64 {
	data, err := os.ReadFile(chatIDFile)
	if err != nil {
		return 0
	}
	id, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func (t *Telegram) saveChatID(id int64) {
	if err := os.WriteFile(chatIDFile, []byte(fmt.Sprintf("%d", id)), 0o644); err != nil {
		log.Printf("⚠️ failed to save chat id: %v", err)
	}
}

// listen drains Telegram updates, auto-detecting the chat id on first
// contact and routing approval-button callbacks to waiting Confirm calls.
func (t *Telegram) listen() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := t.bot.GetUpdatesChan(u)

	for update := range updates {
		if update.CallbackQuery != nil {
			t.routeCallback(update.CallbackQuery)
			continue
		}
		if update.Message == nil {
			continue
		}
		if t.chatID == 0 {
			t.chatID = update.Message.Chat.ID
			t.saveChatID(t.chatID)
			log.Printf("✅ telegram chat id detected: %d", t.chatID)
		}
	}
}

func (t *Telegram) routeCallback(cb *tgbotapi.CallbackQuery) {
	answer := strings.HasPrefix(cb.Data, "YES_")
	id := strings.TrimPrefix(strings.TrimPrefix(cb.Data, "YES_"), "NO_")

	t.mu.Lock()
	ch, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	t.mu.Unlock()

	ack := "🗑️ Discarded"
	if answer {
		ack = "✅ Confirmed"
	}
	t.bot.Send(tgbotapi.NewCallback(cb.ID, ack))
	if ok {
		ch <- answer
	}
}

// Notify sends a plain alert. Safe to call on a nil receiver.
func (t *Telegram) Notify(message string) {
	if t == nil || t.chatID == 0 {
		return
	}
	msg := tgbotapi.NewMessage(t.chatID, message)
	msg.ParseMode = "Markdown"
	if _, err := t.bot.Send(msg); err != nil {
		log.Printf("⚠️ telegram send failed: %v", err)
	}
}

// AlertGhost notifies the operator that a position was closed as GHOST.
func (t *Telegram) AlertGhost(poolID string) {
	t.Notify(fmt.Sprintf("👻 *GHOST*: position on pool `%s` had zero LP balance and was closed.", poolID))
}

// AlertBlacklisted notifies the operator that a pool was permanently banned.
func (t *Telegram) AlertBlacklisted(poolID, reason string) {
	t.Notify(fmt.Sprintf("⛔ *BLACKLISTED*: pool `%s` — %s", poolID, reason))
}

// AlertKillSwitch notifies the operator that the master kill switch tripped.
func (t *Telegram) AlertKillSwitch(reason string) {
	t.Notify(fmt.Sprintf("🛑 *KILL SWITCH*: %s", reason))
}

// Confirm implements recovery.Prompter: it posts an inline yes/no keyboard
// and blocks until the operator answers or ctx is cancelled, in which case
// it returns false (treated by the caller as "do not force-close") together
// with ctx's error — a stale prompt should never auto-trigger a destructive
// action.
func (t *Telegram) Confirm(ctx context.Context, question string) (bool, error) {
	if t == nil || t.chatID == 0 {
		return false, fmt.Errorf("telegram not configured")
	}

	id := fmt.Sprintf("%d", time.Now().UnixNano())
	ch := make(chan bool, 1)
	t.mu.Lock()
	t.pending[id] = ch
	t.mu.Unlock()

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Yes", "YES_"+id),
			tgbotapi.NewInlineKeyboardButtonData("❌ No", "NO_"+id),
		),
	)
	msg := tgbotapi.NewMessage(t.chatID, question)
	msg.ReplyMarkup = keyboard
	if _, err := t.bot.Send(msg); err != nil {
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
		return false, err
	}

	select {
	case answer := <-ch:
		return answer, nil
	case <-ctx.Done():
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
		return false, ctx.Err()
	}
}
