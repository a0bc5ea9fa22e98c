package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ds124wfegd/linktracker/pkg/queue"
)

const (
	DefaultAPIURL  = "https://api.telegram.org"
	DefaultTimeout = 10 * time.Second
	// MaxMessageLength is the Bot API limit for one message text.
	MaxMessageLength = 4096
)

var ErrNotConfigured = errors.New("telegram bot token or chat id is empty")

// APIError is a non-OK answer of the Bot API.
type APIError struct {
	StatusCode  int
	Description string
	RetryAfterS int
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("telegram API error %d: %s", e.StatusCode, e.Description)
	}
	return fmt.Sprintf("telegram API error %d", e.StatusCode)
}

func (e *APIError) RetryAfter() time.Duration {
	return time.Duration(e.RetryAfterS) * time.Second
}

// Retriable reports whether the same request may succeed later.
func (e *APIError) Retriable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type Bot struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
}

type Option func(*Bot)

func WithAPIURL(apiURL string) Option {
	return func(b *Bot) {
		if apiURL != "" {
			b.baseURL = strings.TrimRight(apiURL, "/") + "/bot" + b.token
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(b *Bot) {
		if timeout > 0 {
			b.client.Timeout = timeout
		}
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(b *Bot) { b.client = client }
}

func NewBot(token, chatID string, opts ...Option) *Bot {
	b := &Bot{
		token:   token,
		chatID:  chatID,
		baseURL: DefaultAPIURL + "/bot" + token,
		client:  &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Send delivers text to the configured chat.
func (b *Bot) Send(ctx context.Context, text string) error {
	return b.SendMessage(ctx, b.chatID, text)
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// SendMessage posts an HTML message. Errors that cannot succeed on retry
// are wrapped with queue.Permanent.
func (b *Bot) SendMessage(ctx context.Context, chatID, text string) error {
	if b.token == "" || chatID == "" {
		return queue.Permanent(ErrNotConfigured)
	}
	if text == "" {
		return queue.Permanent(errors.New("telegram: empty message text"))
	}

	body, err := json.Marshal(sendMessageRequest{
		ChatID:                chatID,
		Text:                  text,
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return queue.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/sendMessage", bytes.NewReader(body))
	if err != nil {
		return queue.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var parsed apiResponse
	_ = json.Unmarshal(raw, &parsed)

	if resp.StatusCode == http.StatusOK && parsed.OK {
		return nil
	}

	apiErr := &APIError{
		StatusCode:  resp.StatusCode,
		Description: parsed.Description,
		RetryAfterS: parsed.Parameters.RetryAfter,
	}
	if apiErr.Description == "" {
		apiErr.Description = strings.TrimSpace(http.StatusText(resp.StatusCode))
	}
	if apiErr.Retriable() {
		return apiErr
	}
	return queue.Permanent(apiErr)
}
