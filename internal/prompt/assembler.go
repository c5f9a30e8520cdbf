package prompt

import (
	"context"

	"github.com/ssergeev/membot/internal/chat"
	"github.com/ssergeev/membot/internal/history"
)

// Reader is the read-only slice of the history store the assembler
// needs.
type Reader interface {
	Read(ctx context.Context, userID int64) ([]history.Message, error)
}

// Assembler builds the ordered prompt for one exchange: system
// instruction, retained history, then the new user input. It never
// writes; persisting the exchange is the caller's decision and happens
// only after a successful completion.
type Assembler struct {
	History      Reader
	SystemPrompt string
}

// Build returns [system] ++ stored history ++ [input as user].
func (a *Assembler) Build(ctx context.Context, userID int64, input string) ([]chat.Message, error) {
	stored, err := a.History.Read(ctx, userID)
	if err != nil {
		return nil, err
	}
	msgs := make([]chat.Message, 0, len(stored)+2)
	msgs = append(msgs, chat.Message{Role: chat.RoleSystem, Content: a.SystemPrompt})
	for _, m := range stored {
		msgs = append(msgs, chat.Message{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, chat.Message{Role: chat.RoleUser, Content: input})
	return msgs, nil
}
