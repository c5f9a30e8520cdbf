package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/ssergeev/membot/internal/chat"
)

// FailureKind classifies a failed completion call.
type FailureKind string

const (
	FailureTimeout    FailureKind = "timeout"
	FailureConnection FailureKind = "connection"
	FailureStatus     FailureKind = "status"
	FailureUnknown    FailureKind = "unknown"
)

// Fixed user-facing replies per failure category. Raw error text stays
// in the logs and never reaches the end user.
const (
	msgTimeout    = "The service took too long to respond. Please try again later."
	msgConnection = "Could not reach the service. Check your connection and try again."
	msgStatus     = "The service returned a temporary error. Please try again later."
	msgUnknown    = "Something went wrong while handling the request. Please try again later."
)

// NoResponse is the reply used when the model legitimately returns no
// text; an empty completion is not a transport failure.
const NoResponse = "No response from the model."

// TruncationMarker is the suffix appended to message content cut at the
// character cap, signaling lossy truncation to the service and any
// consumer.
const TruncationMarker = "… [truncated]"

// Failure is a classified completion error. The underlying error is
// kept for logging and unwrapping; UserMessage is what the end user may
// see.
type Failure struct {
	Kind FailureKind
	Err  error
}

func (f *Failure) Error() string { return fmt.Sprintf("completion %s: %v", f.Kind, f.Err) }

func (f *Failure) Unwrap() error { return f.Err }

// UserMessage returns the fixed reply text for the failure category.
func (f *Failure) UserMessage() string {
	switch f.Kind {
	case FailureTimeout:
		return msgTimeout
	case FailureConnection:
		return msgConnection
	case FailureStatus:
		return msgStatus
	}
	return msgUnknown
}

// Completer sends assembled prompts to the completion service: one
// attempt per call, bounded by the configured timeout, with every
// message's content independently capped at maxChars characters.
type Completer struct {
	client   Client
	model    string
	timeout  time.Duration
	maxChars int
	log      *slog.Logger
}

// NewCompleter wires a completer around the given client.
func NewCompleter(client Client, model string, timeout time.Duration, maxChars int, log *slog.Logger) *Completer {
	return &Completer{client: client, model: model, timeout: timeout, maxChars: maxChars, log: log}
}

// Complete sends the messages and returns the assistant's reply. There
// are no retries; exceeding the timeout is the only cancellation path
// and surfaces as a timeout Failure. On failure the returned error is
// always a *Failure.
func (c *Completer) Complete(ctx context.Context, msgs []chat.Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(msgs)),
	}
	for _, m := range msgs {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: Truncate(m.Content, c.maxChars),
		})
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		f := &Failure{Kind: classify(err), Err: err}
		c.log.Error("completion failed", "kind", string(f.Kind), "model", c.model, "error", err)
		return "", f
	}

	if len(resp.Choices) == 0 {
		return NoResponse, nil
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return NoResponse, nil
	}
	return text, nil
}

// Truncate caps content at max characters. When content is cut, the
// marker replaces the tail so the result is exactly max characters
// long.
func Truncate(content string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(content)
	if len(r) <= max {
		return content
	}
	marker := []rune(TruncationMarker)
	if max <= len(marker) {
		return string(marker[len(marker)-max:])
	}
	return string(r[:max-len(marker)]) + TruncationMarker
}

// classify maps an error from the completion call onto the failure
// taxonomy. Checked in priority order: timeout, connection, service
// status, unknown.
func classify(err error) FailureKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return FailureTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return FailureConnection
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return FailureConnection
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return FailureStatus
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return FailureStatus
	}
	return FailureUnknown
}
