// Package telegram broadcasts signals to Telegram chats through the Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"tradepulse/pkg/strategy"
)

const (
	defaultBaseURL     = "https://api.telegram.org"
	defaultHTTPTimeout = 10 * time.Second
)

// Bot is a minimal Bot API client. It only needs sendMessage.
type Bot struct {
	token      string
	chatIDs    []int64
	baseURL    string
	httpClient *http.Client
}

// Option configures a Bot.
type Option func(*Bot)

// WithHTTPClient injects a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(b *Bot) {
		if hc != nil {
			b.httpClient = hc
		}
	}
}

// WithBaseURL overrides the API endpoint (fakes in tests).
func WithBaseURL(u string) Option {
	return func(b *Bot) {
		if u != "" {
			b.baseURL = u
		}
	}
}

// NewBot constructs a bot for the given token and recipient chats.
func NewBot(token string, chatIDs []int64, opts ...Option) *Bot {
	b := &Bot{
		token:      token,
		chatIDs:    chatIDs,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type sendMessageRequest struct {
	ChatID    int64  `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send delivers text to every configured chat. Per-chat failures are
// collected; one unreachable chat does not stop the rest.
func (b *Bot) Send(ctx context.Context, text string) error {
	var lastErr error
	for _, chatID := range b.chatIDs {
		if err := b.sendOne(ctx, chatID, text); err != nil {
			logx.WithContext(ctx).Errorf("telegram send to %d: %v", chatID, err)
			lastErr = err
		}
	}
	return lastErr
}

func (b *Bot) sendOne(ctx context.Context, chatID int64, text string) error {
	payload, err := json.Marshal(sendMessageRequest{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "MarkdownV2",
	})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", b.baseURL, b.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return err
	}
	body, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr != nil {
		return readErr
	}
	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return fmt.Errorf("telegram: decode response: %w", err)
	}
	if !parsed.OK {
		return fmt.Errorf("telegram: api error: %s", parsed.Description)
	}
	return nil
}

// Subscriber adapts the bot into a signal-manager callback.
func (b *Bot) Subscriber() func(ctx context.Context, sig *strategy.Signal) {
	return func(ctx context.Context, sig *strategy.Signal) {
		_ = b.Send(ctx, FormatSignal(sig))
	}
}

// FormatSignal renders a signal as MarkdownV2.
func FormatSignal(sig *strategy.Signal) string {
	arrow := "🟢 LONG"
	if sig.Direction == strategy.Short {
		arrow = "🔴 SHORT"
	}
	lines := []string{
		fmt.Sprintf("*%s* %s", Escape(sig.Symbol), Escape(arrow)),
		fmt.Sprintf("Strategy: %s \\(%s\\)", Escape(sig.Strategy), Escape(string(sig.Interval))),
		fmt.Sprintf("Price: %s", Escape(fmt.Sprintf("%.4f", sig.Price))),
		fmt.Sprintf("Confidence: %s", Escape(fmt.Sprintf("%.0f%%", sig.Confidence*100))),
		Escape(sig.Reason),
	}
	if sig.Narrative != "" {
		lines = append(lines, "", Escape(sig.Narrative))
	}
	return strings.Join(lines, "\n")
}

var markdownV2Escaper = strings.NewReplacer(
	"_", "\\_", "*", "\\*", "[", "\\[", "]", "\\]", "(", "\\(", ")", "\\)",
	"~", "\\~", "`", "\\`", ">", "\\>", "#", "\\#", "+", "\\+", "-", "\\-",
	"=", "\\=", "|", "\\|", "{", "\\{", "}", "\\}", ".", "\\.", "!", "\\!",
)

// Escape quotes MarkdownV2 special characters.
func Escape(s string) string {
	return markdownV2Escaper.Replace(s)
}
