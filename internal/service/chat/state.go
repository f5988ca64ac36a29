package chat

import (
	"time"

	"vibesession/internal/domain/models"
)

// ClientMessage is one message in the client-visible transcript snapshot.
// The core merges into these snapshots but never owns the canonical copy;
// the relational store does.
type ClientMessage struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content string `json:"content"`
	Order   int    `json:"order"`
	Saved   bool   `json:"saved"`
	Saving  bool   `json:"saving"`
	Error   string `json:"error,omitempty"`
}

// ClientChatState is the chat snapshot held by the polling client.
type ClientChatState struct {
	CurrentChatID string          `json:"currentChatId"`
	Messages      []ClientMessage `json:"messages"`
	IsLoading     bool            `json:"isLoading,omitempty"`
}

// ErrorToast is a dismissible, non-blocking error surfaced to the user,
// distinct from inline message errors.
type ErrorToast struct {
	MessageID string `json:"messageId,omitempty"`
	Stage     string `json:"stage"`
	Error     string `json:"error"`
}

// TickResult is the outcome of one render-loop tick: the merged snapshot,
// whether anything changed, and the interval until the next tick.
type TickResult struct {
	State           ClientChatState         `json:"state"`
	Toasts          []ErrorToast            `json:"toasts"`
	Sessions        []models.SessionSummary `json:"sessions"`
	SessionsChanged bool                    `json:"sessionsChanged"`
	Changed         bool                    `json:"changed"`
	NextInterval    time.Duration           `json:"-"`
	NextIntervalMS  int64                   `json:"nextIntervalMs"`
}

// maxOrder returns the highest order in the snapshot, or -1 when empty.
func maxOrder(messages []ClientMessage) int {
	max := -1
	for _, m := range messages {
		if m.Order > max {
			max = m.Order
		}
	}
	return max
}
