package repositories

import (
	"context"

	"vibesession/internal/domain/models"
)

// SessionRepository persists chat sessions.
type SessionRepository interface {
	CreateSession(ctx context.Context, session *models.ChatSession) error
	GetSession(ctx context.Context, sessionID, userName string) (*models.ChatSession, error)
	ListSessions(ctx context.Context, userName string) ([]models.SessionSummary, error)
	RenameSession(ctx context.Context, sessionID, userName, title string) error
	DeleteSession(ctx context.Context, sessionID, userName string) (bool, error)
}

// MessageRepository persists chat messages and their embeddings.
type MessageRepository interface {
	// CreateMessage inserts a message; the embedding (when non-nil) is stored
	// in the same logical operation so an embedding failure fails the save.
	CreateMessage(ctx context.Context, msg *models.Message, embedding []float32) error
	LoadHistory(ctx context.Context, chatID, userName string) ([]models.Message, error)
	// SearchSimilar runs a cosine-distance search over stored message
	// embeddings, filtered by user and optionally chat.
	SearchSimilar(ctx context.Context, embedding []float32, userName, chatID string, k int) ([]models.SimilarMessage, error)
}
