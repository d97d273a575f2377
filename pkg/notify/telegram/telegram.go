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

	"riskwatch/pkg/notify"
)

const (
	defaultBaseURL     = "https://api.telegram.org"
	defaultHTTPTimeout = 10 * time.Second
)

// Notifier sends messages through the Telegram Bot API.
type Notifier struct {
	baseURL    string
	botToken   string
	chatID     string
	httpClient *http.Client
}

// Option customises the Telegram notifier.
type Option func(*Notifier)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(n *Notifier) {
		if httpClient != nil {
			n.httpClient = httpClient
		}
	}
}

// WithBaseURL overrides the API base URL (primarily for testing).
func WithBaseURL(baseURL string) Option {
	return func(n *Notifier) {
		if baseURL != "" {
			n.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// New constructs a Telegram notifier for one chat.
func New(botToken, chatID string, opts ...Option) (*Notifier, error) {
	if botToken == "" {
		return nil, fmt.Errorf("telegram: bot token is required")
	}
	if chatID == "" {
		return nil, fmt.Errorf("telegram: chat id is required")
	}
	n := &Notifier{
		baseURL:    defaultBaseURL,
		botToken:   botToken,
		chatID:     chatID,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

func init() {
	notify.RegisterNotifier("telegram", func(cfg *notify.Config) (notify.Notifier, error) {
		opts := []Option{}
		if cfg.TimeoutRaw != "" {
			d, err := time.ParseDuration(cfg.TimeoutRaw)
			if err != nil {
				return nil, fmt.Errorf("telegram: invalid timeout %q: %w", cfg.TimeoutRaw, err)
			}
			opts = append(opts, WithHTTPClient(&http.Client{Timeout: d}))
		}
		return New(cfg.BotToken, cfg.ChatID, opts...)
	})
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send implements notify.Notifier.
func (n *Notifier) Send(ctx context.Context, msg notify.Message) error {
	text := msg.Text
	if msg.Title != "" {
		prefix := "<b>" + msg.Title + "</b>"
		if msg.Severity == notify.SeverityAlert {
			prefix = "⚠ " + prefix
		}
		text = prefix + "\n" + text
	}
	payload, err := json.Marshal(sendMessageRequest{
		ChatID:    n.chatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return fmt.Errorf("telegram: encode sendMessage: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("telegram: build sendMessage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return fmt.Errorf("telegram: read sendMessage response: %w", readErr)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram: sendMessage http status %d: %s", resp.StatusCode, string(body))
	}
	var out sendMessageResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("telegram: decode sendMessage response: %w", err)
	}
	if !out.OK {
		return fmt.Errorf("telegram: sendMessage rejected: %s", out.Description)
	}
	return nil
}

var _ notify.Notifier = (*Notifier)(nil)
