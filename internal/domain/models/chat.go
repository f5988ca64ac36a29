package models

import "time"

// MessageRole identifies who authored a persisted message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// ChatSession is one conversation owned by a user.
type ChatSession struct {
	ID        string    `json:"id"`
	UserName  string    `json:"user_name"`
	Title     *string   `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one persisted chat message. MessageOrder is strictly increasing
// within a chat; two messages in the same chat never share an order.
type Message struct {
	ID           string      `json:"id"`
	ChatID       string      `json:"chat_id"`
	UserName     string      `json:"user_name"`
	Role         MessageRole `json:"role"`
	Content      string      `json:"content"`
	MessageOrder int         `json:"message_order"`
	CreatedAt    time.Time   `json:"created_at"`
}

// SessionSummary is the sessions-list projection of a ChatSession.
type SessionSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SimilarMessage is one vector-search hit over stored message embeddings.
type SimilarMessage struct {
	Content      string      `json:"content"`
	Role         MessageRole `json:"role"`
	ChatID       string      `json:"chat_id"`
	MessageOrder int         `json:"message_order"`
	CreatedAt    time.Time   `json:"created_at"`
	Distance     float64     `json:"distance"`
}
