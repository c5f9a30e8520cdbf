package history

import (
	"time"

	"github.com/ssergeev/membot/internal/chat"
)

// Message is one persisted conversational turn. Rows are immutable once
// written and ordered by ID, which is the only ordering that matters
// (timestamps may collide).
type Message struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Role      chat.Role `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
