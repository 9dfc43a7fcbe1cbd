package channels

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"sidekick/internal/bus"
)

const (
	telegramAPIBase      = "https://api.telegram.org"
	telegramSendMsg      = "/sendMessage"
	telegramChatAction   = "/sendChatAction"
	telegramSetWebhook   = "/setWebhook"
	telegramActionTyping = "typing"
	telegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

	// Telegram rejects messages longer than this.
	telegramMaxMessage = 4096
)

type TelegramConfig struct {
	BotToken string
	// AllowFrom lists user ids or usernames allowed to talk to the bot. Empty
	// allows everyone.
	AllowFrom []string
	// WebhookURL, when set, is registered with Telegram on Start.
	WebhookURL    string
	WebhookSecret string
	APIBase       string
}

// TelegramConfigFromSettings reads a [channels.*.settings] table.
func TelegramConfigFromSettings(s map[string]string) TelegramConfig {
	cfg := TelegramConfig{
		BotToken:      s["bot_token"],
		WebhookURL:    s["webhook_url"],
		WebhookSecret: s["webhook_secret"],
		APIBase:       s["api_base"],
	}
	for _, v := range strings.Split(s["allow_from"], ",") {
		if v = strings.TrimSpace(v); v != "" {
			cfg.AllowFrom = append(cfg.AllowFrom, v)
		}
	}
	return cfg
}

type Telegram struct {
	cfg    TelegramConfig
	bus    *bus.MessageBus
	apiURL string
	client *http.Client
	allow  map[string]bool
}

func NewTelegram(cfg TelegramConfig, b *bus.MessageBus) (*Telegram, error) {
	if cfg.BotToken == "" {
		return nil, errors.New("telegram bot_token is required")
	}
	base := cfg.APIBase
	if base == "" {
		base = telegramAPIBase
	}
	t := &Telegram{
		cfg:    cfg,
		bus:    b,
		apiURL: strings.TrimSuffix(base, "/") + "/bot" + cfg.BotToken,
		client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	if len(cfg.AllowFrom) > 0 {
		t.allow = make(map[string]bool, len(cfg.AllowFrom))
		for _, v := range cfg.AllowFrom {
			t.allow[strings.TrimPrefix(v, "@")] = true
		}
	}
	return t, nil
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhook/telegram", t.handleWebhook)
}

// Start registers the webhook when configured, then waits for ctx.
// Updates arrive through the gateway route.
func (t *Telegram) Start(ctx context.Context) error {
	if t.cfg.WebhookURL != "" {
		req := map[string]any{"url": t.cfg.WebhookURL}
		if t.cfg.WebhookSecret != "" {
			req["secret_token"] = t.cfg.WebhookSecret
		}
		if err := t.call(ctx, telegramSetWebhook, req); err != nil {
			return fmt.Errorf("setting webhook: %w", err)
		}
		slog.Info("telegram: webhook registered", "url", t.cfg.WebhookURL)
	}
	<-ctx.Done()
	return ctx.Err()
}

type telegramUpdate struct {
	Message *telegramMessage `json:"message"`
}

type telegramMessage struct {
	Chat telegramChat  `json:"chat"`
	From *telegramUser `json:"from"`
	Text string        `json:"text"`
}

type telegramChat struct {
	ID int64 `json:"id"`
}

type telegramUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type telegramSendRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

func (t *Telegram) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if t.cfg.WebhookSecret != "" {
		got := r.Header.Get(telegramSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(t.cfg.WebhookSecret)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	var update telegramUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		slog.Error("telegram: failed to decode update", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	// Telegram retries on non-2xx, so everything below acknowledges.
	w.WriteHeader(http.StatusOK)

	if update.Message == nil || update.Message.Text == "" {
		return
	}
	msg := update.Message
	if !t.allowed(msg.From) {
		slog.Warn("telegram: sender not allowed", "chat_id", msg.Chat.ID)
		return
	}

	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	sender := chatID
	if msg.From != nil {
		sender = strconv.FormatInt(msg.From.ID, 10)
	}
	slog.Info("telegram: received message", "chat_id", chatID)

	t.sendTyping(r.Context(), msg.Chat.ID)
	t.bus.PublishInbound(bus.InboundMessage{
		Channel:   t.Name(),
		SenderID:  sender,
		ChatID:    chatID,
		Content:   msg.Text,
		Timestamp: time.Now(),
	})
}

func (t *Telegram) allowed(from *telegramUser) bool {
	if t.allow == nil {
		return true
	}
	if from == nil {
		return false
	}
	return t.allow[strconv.FormatInt(from.ID, 10)] || (from.Username != "" && t.allow[from.Username])
}

func (t *Telegram) Send(ctx context.Context, msg bus.OutboundMessage) error {
	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q", msg.ChatID)
	}
	for _, part := range splitMessage(msg.Content, telegramMaxMessage) {
		if err := t.call(ctx, telegramSendMsg, telegramSendRequest{ChatID: chatID, Text: part}); err != nil {
			return err
		}
	}
	return nil
}

func (t *Telegram) sendTyping(ctx context.Context, chatID int64) {
	err := t.call(ctx, telegramChatAction, map[string]any{
		"chat_id": chatID,
		"action":  telegramActionTyping,
	})
	if err != nil {
		slog.Warn("telegram: failed to send typing action", "chat_id", chatID, "error", err)
	}
}

func (t *Telegram) call(ctx context.Context, method string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.apiURL+method, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram API %s returned %d: %s", method, resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}

// splitMessage cuts s into chunks of at most limit bytes, preferring line
// breaks and never splitting a UTF-8 sequence.
func splitMessage(s string, limit int) []string {
	var parts []string
	for len(s) > limit {
		cut := strings.LastIndex(s[:limit], "\n")
		if cut <= 0 {
			cut = limit
			for cut > 0 && !utf8.RuneStart(s[cut]) {
				cut--
			}
		}
		parts = append(parts, s[:cut])
		s = strings.TrimPrefix(s[cut:], "\n")
	}
	if s != "" || len(parts) == 0 {
		parts = append(parts, s)
	}
	return parts
}
