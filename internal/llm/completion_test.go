package llm

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"github.com/ssergeev/membot/internal/chat"
)

type mockClient struct {
	gotReq openai.ChatCompletionRequest
	resp   openai.ChatCompletionResponse
	err    error
}

func (m *mockClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	m.gotReq = req
	return m.resp, m.err
}

func newTestCompleter(client Client, maxChars int) *Completer {
	return NewCompleter(client, "gpt-test", time.Second, maxChars, slog.New(slog.DiscardHandler))
}

func TestCompleteSuccess(t *testing.T) {
	client := &mockClient{resp: openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "  an answer \n"}}},
	}}
	c := newTestCompleter(client, 4000)

	out, err := c.Complete(context.Background(), []chat.Message{
		{Role: chat.RoleSystem, Content: "sys"},
		{Role: chat.RoleUser, Content: "hi"},
	})
	require.NoError(t, err)
	require.Equal(t, "an answer", out)
	require.Equal(t, "gpt-test", client.gotReq.Model)
	require.Len(t, client.gotReq.Messages, 2)
	require.Equal(t, "system", client.gotReq.Messages[0].Role)
}

func TestCompleteEmptyResponseIsSuccess(t *testing.T) {
	for name, resp := range map[string]openai.ChatCompletionResponse{
		"no choices":    {},
		"empty content": {Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "   "}}}},
	} {
		t.Run(name, func(t *testing.T) {
			c := newTestCompleter(&mockClient{resp: resp}, 4000)
			out, err := c.Complete(context.Background(), []chat.Message{{Role: chat.RoleUser, Content: "hi"}})
			require.NoError(t, err)
			require.Equal(t, NoResponse, out)
		})
	}
}

func TestCompleteTruncatesEachMessage(t *testing.T) {
	client := &mockClient{resp: openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "ok"}}},
	}}
	c := newTestCompleter(client, 50)

	long := strings.Repeat("я", 120)
	_, err := c.Complete(context.Background(), []chat.Message{
		{Role: chat.RoleUser, Content: long},
		{Role: chat.RoleAssistant, Content: "short"},
	})
	require.NoError(t, err)

	sent := client.gotReq.Messages[0].Content
	require.Equal(t, 50, utf8.RuneCountInString(sent))
	require.True(t, strings.HasSuffix(sent, TruncationMarker))
	require.True(t, strings.HasPrefix(long, strings.TrimSuffix(sent, TruncationMarker)))
	require.Equal(t, "short", client.gotReq.Messages[1].Content)
}

func TestCompleteFailureTaxonomy(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		kind     FailureKind
		userMsg  string
		internal string
	}{
		{
			name:     "timeout",
			err:      context.DeadlineExceeded,
			kind:     FailureTimeout,
			userMsg:  msgTimeout,
			internal: "deadline",
		},
		{
			name:     "connection",
			err:      &net.OpError{Op: "dial", Err: errors.New("connection refused")},
			kind:     FailureConnection,
			userMsg:  msgConnection,
			internal: "refused",
		},
		{
			name:     "status",
			err:      &openai.APIError{HTTPStatusCode: 500, Message: "internal backend exploded"},
			kind:     FailureStatus,
			userMsg:  msgStatus,
			internal: "exploded",
		},
		{
			name:     "unknown",
			err:      errors.New("totally unexpected parse problem"),
			kind:     FailureUnknown,
			userMsg:  msgUnknown,
			internal: "parse",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestCompleter(&mockClient{err: tc.err}, 4000)
			_, err := c.Complete(context.Background(), []chat.Message{{Role: chat.RoleUser, Content: "hi"}})

			var f *Failure
			require.ErrorAs(t, err, &f)
			require.Equal(t, tc.kind, f.Kind)
			require.Equal(t, tc.userMsg, f.UserMessage())
			// The user message never leaks internal detail.
			require.NotContains(t, f.UserMessage(), tc.internal)
		})
	}
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "short", Truncate("short", 100))
	require.Equal(t, "", Truncate("anything", 0))

	got := Truncate(strings.Repeat("a", 200), 100)
	require.Equal(t, 100, utf8.RuneCountInString(got))
	require.True(t, strings.HasSuffix(got, TruncationMarker))

	exact := strings.Repeat("b", 100)
	require.Equal(t, exact, Truncate(exact, 100))
}
