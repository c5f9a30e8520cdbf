// Package telegram is a minimal Telegram Bot API client: long-poll
// update fetching and message delivery, nothing more.
package telegram

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client talks to the Bot API over plain HTTP.
type Client struct {
	apiBase    string
	httpClient *http.Client
}

// NewClient creates a client for the given bot API base URL
// (e.g. "https://api.telegram.org/bot<token>"). requestTimeout must
// exceed the long-poll timeout passed to GetUpdates.
func NewClient(apiBase string, requestTimeout time.Duration) *Client {
	return &Client{
		apiBase: strings.TrimRight(apiBase, "/"),
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// Response is the generic Telegram API response wrapper.
type Response struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

// Update is one inbound event: either a message or a callback query.
type Update struct {
	UpdateID int64     `json:"update_id"`
	Message  *Message  `json:"message,omitempty"`
	Callback *Callback `json:"callback_query,omitempty"`
}

// Message is an inbound chat message.
type Message struct {
	Chat Chat   `json:"chat"`
	From *User  `json:"from,omitempty"`
	Text string `json:"text"`
	Date int64  `json:"date"`
}

// Chat identifies the conversation a message belongs to.
type Chat struct {
	ID int64 `json:"id"`
}

// User identifies the sender.
type User struct {
	ID int64 `json:"id"`
}

// Callback is an inline-button press.
type Callback struct {
	ID      string   `json:"id"`
	From    *User    `json:"from,omitempty"`
	Data    string   `json:"data"`
	Message *Message `json:"message,omitempty"`
}

// GetUpdates calls the getUpdates API with the given offset and
// long-poll timeout in seconds.
func (c *Client) GetUpdates(offset int64, timeout int) ([]Update, error) {
	params := url.Values{}
	params.Set("offset", strconv.FormatInt(offset, 10))
	params.Set("timeout", strconv.Itoa(timeout))

	resp, err := c.httpClient.Get(c.apiBase + "/getUpdates?" + params.Encode())
	if err != nil {
		return nil, fmt.Errorf("telegram getUpdates request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read getUpdates response: %w", err)
	}

	var tgResp Response
	if err := json.Unmarshal(body, &tgResp); err != nil {
		return nil, fmt.Errorf("failed to parse getUpdates response: %w", err)
	}
	if !tgResp.OK {
		return nil, fmt.Errorf("telegram getUpdates rejected: %s", tgResp.Description)
	}

	var updates []Update
	if err := json.Unmarshal(tgResp.Result, &updates); err != nil {
		return nil, fmt.Errorf("failed to parse getUpdates result: %w", err)
	}
	return updates, nil
}

// SendMessage sends a text message to the given chat.
func (c *Client) SendMessage(chatID int64, text string) error {
	payload := fmt.Sprintf(`{"chat_id":%d,"text":%s}`, chatID, jsonString(text))
	return c.post("/sendMessage", payload)
}

// SendContextPrompt sends a message with an inline "Show context"
// button; pressing it arrives as a callback with the given data.
func (c *Client) SendContextPrompt(chatID int64, text, buttonText, callbackData string) error {
	payload := fmt.Sprintf(
		`{"chat_id":%d,"text":%s,"reply_markup":{"inline_keyboard":[[{"text":%s,"callback_data":%s}]]}}`,
		chatID, jsonString(text), jsonString(buttonText), jsonString(callbackData),
	)
	return c.post("/sendMessage", payload)
}

// AnswerCallback acknowledges an inline-button press so the client
// stops showing a progress indicator.
func (c *Client) AnswerCallback(callbackID string) error {
	callbackID = strings.TrimSpace(callbackID)
	if callbackID == "" {
		return nil
	}
	payload := fmt.Sprintf(`{"callback_query_id":%s}`, jsonString(callbackID))
	return c.post("/answerCallbackQuery", payload)
}

func (c *Client) post(method, payload string) error {
	resp, err := c.httpClient.Post(c.apiBase+method, "application/json", strings.NewReader(payload))
	if err != nil {
		return fmt.Errorf("telegram %s request failed: %w", strings.TrimPrefix(method, "/"), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", strings.TrimPrefix(method, "/"), err)
	}
	var tgResp Response
	if err := json.Unmarshal(body, &tgResp); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", strings.TrimPrefix(method, "/"), err)
	}
	if !tgResp.OK {
		return fmt.Errorf("telegram %s rejected: %s", strings.TrimPrefix(method, "/"), tgResp.Description)
	}
	return nil
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
