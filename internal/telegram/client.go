package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultAPIBase = "https://api.telegram.org"

// Client talks to the Telegram Bot API. It is a constructed capability passed
// into consumers, never an ambient singleton.
type Client struct {
	token   string
	apiBase string
	http    *http.Client
}

type Option func(*Client)

// WithAPIBase overrides the API host, used by tests.
func WithAPIBase(base string) Option {
	return func(c *Client) { c.apiBase = base }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		token:   token,
		apiBase: defaultAPIBase,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendOptions carries the optional parts of an outbound message.
type SendOptions struct {
	ParseMode   string
	ReplyMarkup *InlineKeyboardMarkup
}

// SendMessage sends a new message and returns its message id.
func (c *Client) SendMessage(ctx context.Context, chatID string, text string, opts *SendOptions) (int, error) {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	applyOptions(payload, opts)

	var sent MessageIn
	if err := c.call(ctx, "sendMessage", payload, &sent); err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

// EditMessageText replaces the text (and keyboard) of a previously sent message.
func (c *Client) EditMessageText(ctx context.Context, chatID string, messageID int, text string, opts *SendOptions) error {
	payload := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
	}
	applyOptions(payload, opts)
	return c.call(ctx, "editMessageText", payload, nil)
}

// AnswerCallbackQuery acknowledges a button press so the client stops its spinner.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID string, text string) error {
	payload := map[string]any{
		"callback_query_id": callbackID,
	}
	if text != "" {
		payload["text"] = text
	}
	return c.call(ctx, "answerCallbackQuery", payload, nil)
}

// SetWebhook registers the webhook target with Telegram.
func (c *Client) SetWebhook(ctx context.Context, url string) error {
	return c.call(ctx, "setWebhook", map[string]any{"url": url}, nil)
}

// GetMe returns the bot's own identity, used as a startup credential check.
func (c *Client) GetMe(ctx context.Context) (UserIn, error) {
	var me UserIn
	err := c.call(ctx, "getMe", map[string]any{}, &me)
	return me, err
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

func (c *Client) call(ctx context.Context, method string, payload map[string]any, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.apiBase, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("telegram %s: read response: %w", method, err)
	}

	var api apiResponse
	if err := json.Unmarshal(raw, &api); err != nil {
		return fmt.Errorf("telegram %s: status %d: %s", method, resp.StatusCode, string(raw))
	}
	if !api.OK {
		return fmt.Errorf("telegram %s failed: %s", method, api.Description)
	}
	if result != nil && len(api.Result) > 0 {
		if err := json.Unmarshal(api.Result, result); err != nil {
			return fmt.Errorf("telegram %s: decode result: %w", method, err)
		}
	}
	return nil
}

func applyOptions(payload map[string]any, opts *SendOptions) {
	if opts == nil {
		return
	}
	if opts.ParseMode != "" {
		payload["parse_mode"] = opts.ParseMode
	}
	if opts.ReplyMarkup != nil {
		payload["reply_markup"] = opts.ReplyMarkup
	}
}

// FormatUserName picks a human-readable label for a Telegram user.
func FormatUserName(user *UserIn) string {
	if user == nil {
		return "Unknown"
	}
	if user.FirstName != "" {
		return user.FirstName
	}
	if user.Username != "" {
		return "@" + user.Username
	}
	return fmt.Sprintf("User_%d", user.ID)
}
