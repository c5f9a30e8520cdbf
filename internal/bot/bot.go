// Package bot routes Telegram updates into the exchange pipeline:
// commands, inline-button callbacks, and plain text that becomes a
// completion request with bounded memory.
package bot

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ssergeev/membot/internal/chat"
	"github.com/ssergeev/membot/internal/chunk"
	"github.com/ssergeev/membot/internal/history"
	"github.com/ssergeev/membot/internal/llm"
	"github.com/ssergeev/membot/internal/telegram"
)

const callbackShowContext = "show_context"

const helpText = `Commands:
/start — greeting
/help — list commands
/reset — clear your dialog history (yours only)
/context — button to view the stored dialog

Any other text is answered with your history in mind, and the exchange is remembered.`

const (
	greetingText      = "Hi! I remember the recent messages of our dialog.\n\n" + helpText
	contextPromptText = "Press the button to see the current dialog context:"
	contextButtonText = "Show context"
	emptyContextText  = "The context is empty. Write something to start the dialog."
	resetDoneText     = "Dialog history cleared."
	resetFailedText   = "Could not clear the history. Please try again later."
	contextFailedText = "Could not load the context. Please try again later."
	genericErrorText  = "Something went wrong. Please try again later."
)

// Transport is the slice of the Telegram client the bot uses; tests
// substitute a fake.
type Transport interface {
	GetUpdates(offset int64, timeout int) ([]telegram.Update, error)
	SendMessage(chatID int64, text string) error
	SendContextPrompt(chatID int64, text, buttonText, callbackData string) error
	AnswerCallback(callbackID string) error
}

// Exchanger runs one completion exchange for a user.
type Exchanger interface {
	Process(ctx context.Context, userID int64, input string) (string, error)
}

// Store is the slice of the history store the command handlers need.
type Store interface {
	Read(ctx context.Context, userID int64) ([]history.Message, error)
	Clear(ctx context.Context, userID int64) error
}

// Bot polls the transport and dispatches updates.
type Bot struct {
	transport   Transport
	agent       Exchanger
	store       Store
	chunkLen    int
	pollTimeout int
	log         *slog.Logger
}

// New creates a bot. chunkLen is the transport's per-message character
// limit; pollTimeout is the long-poll timeout in seconds.
func New(transport Transport, agent Exchanger, store Store, chunkLen, pollTimeout int, log *slog.Logger) *Bot {
	return &Bot{
		transport:   transport,
		agent:       agent,
		store:       store,
		chunkLen:    chunkLen,
		pollTimeout: pollTimeout,
		log:         log,
	}
}

// Run polls for updates until the context is canceled. Transport errors
// are logged and polling continues after a short pause; nothing that
// happens inside a single update can stop the loop.
func (b *Bot) Run(ctx context.Context) error {
	b.log.Info("bot started", "poll_timeout_seconds", b.pollTimeout)
	var offset int64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		updates, err := b.transport.GetUpdates(offset, b.pollTimeout)
		if err != nil {
			b.log.Error("getUpdates failed", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(3 * time.Second):
			}
			continue
		}
		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			b.handleUpdate(ctx, u)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, u telegram.Update) {
	switch {
	case u.Callback != nil:
		b.handleCallback(ctx, u.Callback)
	case u.Message != nil:
		b.handleMessage(ctx, u.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, m *telegram.Message) {
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return
	}
	userID := m.Chat.ID
	if m.From != nil {
		userID = m.From.ID
	}

	switch text {
	case "/start":
		b.send(m.Chat.ID, greetingText)
	case "/help":
		b.send(m.Chat.ID, helpText)
	case "/reset":
		if err := b.store.Clear(ctx, userID); err != nil {
			b.log.Error("failed to clear history", "user_id", userID, "error", err)
			b.send(m.Chat.ID, resetFailedText)
			return
		}
		b.log.Info("history cleared", "user_id", userID)
		b.send(m.Chat.ID, resetDoneText)
	case "/context":
		if err := b.transport.SendContextPrompt(m.Chat.ID, contextPromptText, contextButtonText, callbackShowContext); err != nil {
			b.log.Error("failed to send context prompt", "chat_id", m.Chat.ID, "error", err)
		}
	default:
		b.log.Info("message received", "user_id", userID)
		reply, err := b.agent.Process(ctx, userID, text)
		if err != nil {
			b.send(m.Chat.ID, userFacing(err))
			return
		}
		b.reply(m.Chat.ID, reply)
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *telegram.Callback) {
	defer func() {
		if err := b.transport.AnswerCallback(cb.ID); err != nil {
			b.log.Warn("failed to answer callback", "error", err)
		}
	}()

	if cb.Data != callbackShowContext || cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	userID := chatID
	if cb.From != nil {
		userID = cb.From.ID
	}

	msgs, err := b.store.Read(ctx, userID)
	if err != nil {
		b.log.Error("failed to read history for context view", "user_id", userID, "error", err)
		b.send(chatID, contextFailedText)
		return
	}
	if len(msgs) == 0 {
		b.send(chatID, emptyContextText)
		return
	}
	b.reply(chatID, formatContext(msgs))
	b.log.Info("context shown", "user_id", userID, "messages", len(msgs))
}

// reply delivers text, chunked to the transport limit. Past MaxChunks
// pieces the reply collapses to a tail-only view instead of flooding
// the chat.
func (b *Bot) reply(chatID int64, text string) {
	chunks := chunk.Split(text, b.chunkLen)
	if len(chunks) > chunk.MaxChunks {
		b.send(chatID, chunk.TailView(chunks, b.chunkLen))
		return
	}
	for _, c := range chunks {
		b.send(chatID, c)
	}
}

func (b *Bot) send(chatID int64, text string) {
	if err := b.transport.SendMessage(chatID, text); err != nil {
		b.log.Error("sendMessage failed", "chat_id", chatID, "error", err)
	}
}

// formatContext renders stored history as "User: …" / "Assistant: …"
// blocks separated by blank lines.
func formatContext(msgs []history.Message) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		label := string(m.Role)
		switch m.Role {
		case chat.RoleUser:
			label = "User"
		case chat.RoleAssistant:
			label = "Assistant"
		}
		parts = append(parts, label+": "+m.Content)
	}
	return strings.Join(parts, "\n\n")
}

// userFacing converts a pipeline error into the fixed reply the end
// user may see; raw error text never leaves the logs.
func userFacing(err error) string {
	var f *llm.Failure
	if errors.As(err, &f) {
		return f.UserMessage()
	}
	return genericErrorText
}
