package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"vibesession/internal/agent"
	"vibesession/internal/domain"
	"vibesession/internal/domain/models"
	"vibesession/internal/domain/repositories"
	"vibesession/internal/prompts"
)

// Generator produces assistant replies and auxiliary text through serving
// endpoints.
type Generator interface {
	Generate(ctx context.Context, userName string, history []agent.Message) (string, error)
	GenerateText(ctx context.Context, endpoint, prompt string) (string, error)
}

// Embedder computes embedding vectors for message content.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ServiceOptions configures a chat service.
type ServiceOptions struct {
	Sessions      repositories.SessionRepository
	Messages      repositories.MessageRepository
	TxManager     repositories.TransactionManager
	Generator     Generator
	Embedder      Embedder
	Prompts       *prompts.Registry
	ContextLimit  int    // recent messages included in generation context
	TitleEndpoint string // serving endpoint for chat-title generation
	Logger        *slog.Logger
}

// Service owns chat persistence and generation. The controller schedules its
// methods onto queue workers; every method is safe for concurrent use.
type Service struct {
	sessions      repositories.SessionRepository
	messages      repositories.MessageRepository
	txManager     repositories.TransactionManager
	generator     Generator
	embedder      Embedder
	prompts       *prompts.Registry
	contextLimit  int
	titleEndpoint string
	logger        *slog.Logger
}

// NewService creates a chat service.
func NewService(opts ServiceOptions) *Service {
	contextLimit := opts.ContextLimit
	if contextLimit <= 0 {
		contextLimit = 5
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		sessions:      opts.Sessions,
		messages:      opts.Messages,
		txManager:     opts.TxManager,
		generator:     opts.Generator,
		embedder:      opts.Embedder,
		prompts:       opts.Prompts,
		contextLimit:  contextLimit,
		titleEndpoint: opts.TitleEndpoint,
		logger:        logger,
	}
}

// CreateSession creates an untitled session for the user.
func (s *Service) CreateSession(ctx context.Context, userName string) (*models.ChatSession, error) {
	if err := validation.Validate(userName, validation.Required, validation.Length(1, 255)); err != nil {
		return nil, &domain.ValidationError{Message: fmt.Sprintf("user_name: %v", err)}
	}

	session := &models.ChatSession{
		ID:       uuid.NewString(),
		UserName: userName,
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.logger.Info("session created", "session_id", session.ID, "user", userName)
	return session, nil
}

// GetSession fetches one session owned by the user.
func (s *Service) GetSession(ctx context.Context, sessionID, userName string) (*models.ChatSession, error) {
	return s.sessions.GetSession(ctx, sessionID, userName)
}

// ListSessions returns the user's sessions, most recently updated first.
func (s *Service) ListSessions(ctx context.Context, userName string) ([]models.SessionSummary, error) {
	return s.sessions.ListSessions(ctx, userName)
}

// RenameSession sets a session title.
func (s *Service) RenameSession(ctx context.Context, sessionID, userName, title string) error {
	if err := validation.Validate(title, validation.Required, validation.Length(1, 200)); err != nil {
		return &domain.ValidationError{Message: fmt.Sprintf("title: %v", err)}
	}
	return s.sessions.RenameSession(ctx, sessionID, userName, title)
}

// DeleteSession removes a session with its messages and embeddings in one
// transaction. Returns false when the session does not exist for the user.
func (s *Service) DeleteSession(ctx context.Context, sessionID, userName string) (bool, error) {
	var deleted bool
	err := s.txManager.ExecTx(ctx, func(ctx context.Context) error {
		var txErr error
		deleted, txErr = s.sessions.DeleteSession(ctx, sessionID, userName)
		return txErr
	})
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	if deleted {
		s.logger.Info("session deleted", "session_id", sessionID, "user", userName)
	}
	return deleted, nil
}

// LoadHistory returns the session transcript as client messages. Persisted
// messages always come back marked saved.
func (s *Service) LoadHistory(ctx context.Context, userName, chatID string) ([]ClientMessage, error) {
	stored, err := s.messages.LoadHistory(ctx, chatID, userName)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	history := make([]ClientMessage, 0, len(stored))
	for _, m := range stored {
		history = append(history, ClientMessage{
			ID:      m.ID,
			Role:    string(m.Role),
			Content: m.Content,
			Order:   m.MessageOrder,
			Saved:   true,
		})
	}
	return history, nil
}

// SaveMessage embeds the content and persists message plus embedding in one
// transaction. An embedding failure fails the save; the caller surfaces it
// and the transcript keeps the message unsaved.
func (s *Service) SaveMessage(ctx context.Context, userName, chatID string, role models.MessageRole, content string, order int) error {
	embedding, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("embed message: %w", err)
	}

	msg := &models.Message{
		ID:           uuid.NewString(),
		ChatID:       chatID,
		UserName:     userName,
		Role:         role,
		Content:      content,
		MessageOrder: order,
	}

	err = s.txManager.ExecTx(ctx, func(ctx context.Context) error {
		return s.messages.CreateMessage(ctx, msg, embedding)
	})
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}

	s.logger.Debug("message saved", "chat_id", chatID, "role", role, "order", order)
	return nil
}

// GenerateReply asks the agent endpoint for the next assistant turn. Context
// is the most recent messages of the transcript, capped at the configured
// limit, with the system prompt prepended.
func (s *Service) GenerateReply(ctx context.Context, userName string, history []ClientMessage) (string, error) {
	recent := make([]agent.Message, 0, s.contextLimit+1)
	if system := s.prompts.SystemPrompt(); system != "" {
		recent = append(recent, agent.Message{Role: "system", Content: system})
	}

	start := len(history) - s.contextLimit
	if start < 0 {
		start = 0
	}
	for _, m := range history[start:] {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		recent = append(recent, agent.Message{Role: m.Role, Content: m.Content})
	}

	reply, err := s.generator.Generate(ctx, userName, recent)
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}
	return reply, nil
}

// SearchMessages embeds the query and runs a similarity search over the
// user's stored messages. chatID narrows the search to one session when set.
func (s *Service) SearchMessages(ctx context.Context, userName, chatID, query string, k int) ([]models.SimilarMessage, error) {
	if err := validation.Validate(query, validation.Required); err != nil {
		return nil, &domain.ValidationError{Message: fmt.Sprintf("query: %v", err)}
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	return s.messages.SearchSimilar(ctx, embedding, userName, chatID, k)
}
