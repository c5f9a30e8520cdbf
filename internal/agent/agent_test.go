package agent

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ssergeev/membot/internal/chat"
	"github.com/ssergeev/membot/internal/history"
	"github.com/ssergeev/membot/internal/llm"
)

type fakeBuilder struct {
	msgs []chat.Message
	err  error
}

func (b *fakeBuilder) Build(ctx context.Context, userID int64, input string) ([]chat.Message, error) {
	if b.err != nil {
		return nil, b.err
	}
	out := append([]chat.Message{}, b.msgs...)
	return append(out, chat.Message{Role: chat.RoleUser, Content: input}), nil
}

type fakeCompleter struct {
	reply  string
	err    error
	gotMsg []chat.Message
}

func (c *fakeCompleter) Complete(ctx context.Context, msgs []chat.Message) (string, error) {
	c.gotMsg = msgs
	if c.err != nil {
		return "", c.err
	}
	return c.reply, nil
}

type fakeHistory struct {
	appended [][2]string
	err      error
}

func (h *fakeHistory) AppendExchange(ctx context.Context, userID int64, userText, assistantText string) error {
	if h.err != nil {
		return h.err
	}
	h.appended = append(h.appended, [2]string{userText, assistantText})
	return nil
}

func newTestAgent(b Builder, c Completer, h History) *Agent {
	return New(b, c, h, slog.New(slog.DiscardHandler))
}

func TestProcessSuccessPersistsExchange(t *testing.T) {
	builder := &fakeBuilder{msgs: []chat.Message{{Role: chat.RoleSystem, Content: "sys"}}}
	completer := &fakeCompleter{reply: "the answer"}
	hist := &fakeHistory{}

	out, err := newTestAgent(builder, completer, hist).Process(context.Background(), 42, "the question")
	require.NoError(t, err)
	require.Equal(t, "the answer", out)

	require.Len(t, hist.appended, 1)
	require.Equal(t, [2]string{"the question", "the answer"}, hist.appended[0])

	require.Equal(t, chat.Message{Role: chat.RoleUser, Content: "the question"}, completer.gotMsg[len(completer.gotMsg)-1])
}

func TestProcessCompletionFailureSkipsPersistence(t *testing.T) {
	failure := &llm.Failure{Kind: llm.FailureTimeout, Err: context.DeadlineExceeded}
	hist := &fakeHistory{}

	_, err := newTestAgent(&fakeBuilder{}, &fakeCompleter{err: failure}, hist).
		Process(context.Background(), 1, "hi")

	var f *llm.Failure
	require.ErrorAs(t, err, &f)
	require.Equal(t, llm.FailureTimeout, f.Kind)
	require.Empty(t, hist.appended, "a failed completion must not write history")
}

func TestProcessAssemblyFailure(t *testing.T) {
	storageErr := &history.StorageError{Op: "read", Err: errors.New("locked")}
	hist := &fakeHistory{}

	_, err := newTestAgent(&fakeBuilder{err: storageErr}, &fakeCompleter{reply: "unused"}, hist).
		Process(context.Background(), 1, "hi")

	var se *history.StorageError
	require.ErrorAs(t, err, &se)
	require.Equal(t, "read", se.Op)
	require.Empty(t, hist.appended)
}

func TestProcessFailureLeavesStoreUntouched(t *testing.T) {
	store, err := history.Open(t.TempDir()+"/memory.db", 5, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.AppendExchange(ctx, 7, "old question", "old answer"))
	before, err := store.Read(ctx, 7)
	require.NoError(t, err)

	failure := &llm.Failure{Kind: llm.FailureConnection, Err: errors.New("refused")}
	_, err = newTestAgent(&fakeBuilder{}, &fakeCompleter{err: failure}, store).
		Process(ctx, 7, "new question")
	require.Error(t, err)

	after, err := store.Read(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestProcessPersistFailureSurfaces(t *testing.T) {
	storageErr := &history.StorageError{Op: "append_exchange", Err: errors.New("disk full")}

	_, err := newTestAgent(&fakeBuilder{}, &fakeCompleter{reply: "ok"}, &fakeHistory{err: storageErr}).
		Process(context.Background(), 1, "hi")

	var se *history.StorageError
	require.ErrorAs(t, err, &se)
	require.Equal(t, "append_exchange", se.Op)
}
