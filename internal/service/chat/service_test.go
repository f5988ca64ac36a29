package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"vibesession/internal/agent"
	"vibesession/internal/domain"
	"vibesession/internal/domain/models"
	"vibesession/internal/domain/repositories"
	"vibesession/internal/prompts"
)

type fakeSessionRepo struct {
	renamed map[string]string
}

func (f *fakeSessionRepo) CreateSession(ctx context.Context, session *models.ChatSession) error {
	return nil
}

func (f *fakeSessionRepo) GetSession(ctx context.Context, sessionID, userName string) (*models.ChatSession, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeSessionRepo) ListSessions(ctx context.Context, userName string) ([]models.SessionSummary, error) {
	return []models.SessionSummary{}, nil
}

func (f *fakeSessionRepo) RenameSession(ctx context.Context, sessionID, userName, title string) error {
	if f.renamed == nil {
		f.renamed = make(map[string]string)
	}
	f.renamed[sessionID] = title
	return nil
}

func (f *fakeSessionRepo) DeleteSession(ctx context.Context, sessionID, userName string) (bool, error) {
	return true, nil
}

type fakeMessageRepo struct {
	created []*models.Message
}

func (f *fakeMessageRepo) CreateMessage(ctx context.Context, msg *models.Message, embedding []float32) error {
	f.created = append(f.created, msg)
	return nil
}

func (f *fakeMessageRepo) LoadHistory(ctx context.Context, chatID, userName string) ([]models.Message, error) {
	return nil, nil
}

func (f *fakeMessageRepo) SearchSimilar(ctx context.Context, embedding []float32, userName, chatID string, k int) ([]models.SimilarMessage, error) {
	return []models.SimilarMessage{}, nil
}

type fakeTxManager struct{}

func (fakeTxManager) ExecTx(ctx context.Context, fn repositories.TxFn) error {
	return fn(ctx)
}

type fakeGenerator struct {
	lastHistory []agent.Message
	reply       string
	textErr     error
}

func (f *fakeGenerator) Generate(ctx context.Context, userName string, history []agent.Message) (string, error) {
	f.lastHistory = history
	return f.reply, nil
}

func (f *fakeGenerator) GenerateText(ctx context.Context, endpoint, prompt string) (string, error) {
	return f.reply, f.textErr
}

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2}, nil
}

func newTestService(t *testing.T, sessions *fakeSessionRepo, messages *fakeMessageRepo, gen *fakeGenerator, emb *fakeEmbedder) *Service {
	t.Helper()
	registry, err := prompts.NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry() error: %v", err)
	}
	return NewService(ServiceOptions{
		Sessions:      sessions,
		Messages:      messages,
		TxManager:     fakeTxManager{},
		Generator:     gen,
		Embedder:      emb,
		Prompts:       registry,
		ContextLimit:  2,
		TitleEndpoint: "title-endpoint",
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestGenerateReplyCapsContext(t *testing.T) {
	gen := &fakeGenerator{reply: "ok"}
	svc := newTestService(t, &fakeSessionRepo{}, &fakeMessageRepo{}, gen, &fakeEmbedder{})

	history := []ClientMessage{
		{Role: "user", Content: "one"},
		{Role: "assistant", Content: "two"},
		{Role: "user", Content: "three"},
		{Role: "assistant", Content: "four"},
		{Role: "user", Content: "five"},
	}

	if _, err := svc.GenerateReply(context.Background(), "alice", history); err != nil {
		t.Fatalf("GenerateReply() error: %v", err)
	}

	// System prompt plus the two most recent messages.
	if len(gen.lastHistory) != 3 {
		t.Fatalf("sent %d messages, want 3", len(gen.lastHistory))
	}
	if gen.lastHistory[0].Role != "system" {
		t.Fatalf("first message role = %q, want system", gen.lastHistory[0].Role)
	}
	if gen.lastHistory[1].Content != "four" || gen.lastHistory[2].Content != "five" {
		t.Fatalf("context = %+v, want the two most recent turns", gen.lastHistory[1:])
	}
}

func TestGenerateReplyDropsEmptyMessages(t *testing.T) {
	gen := &fakeGenerator{reply: "ok"}
	svc := newTestService(t, &fakeSessionRepo{}, &fakeMessageRepo{}, gen, &fakeEmbedder{})

	history := []ClientMessage{
		{Role: "user", Content: "question"},
		{Role: "assistant", Content: ""}, // placeholder
	}

	if _, err := svc.GenerateReply(context.Background(), "alice", history); err != nil {
		t.Fatalf("GenerateReply() error: %v", err)
	}

	for _, m := range gen.lastHistory {
		if m.Content == "" {
			t.Fatal("empty placeholder was sent to the endpoint")
		}
	}
}

func TestSaveMessageEmbeddingFailureFailsSave(t *testing.T) {
	messages := &fakeMessageRepo{}
	svc := newTestService(t, &fakeSessionRepo{}, messages, &fakeGenerator{}, &fakeEmbedder{err: errors.New("endpoint 503")})

	err := svc.SaveMessage(context.Background(), "alice", "chat-1", models.RoleUser, "hi", 0)
	if err == nil {
		t.Fatal("SaveMessage() = nil, want embedding error")
	}
	if len(messages.created) != 0 {
		t.Fatal("message persisted despite embedding failure")
	}
}

func TestSaveMessagePersistsWithEmbedding(t *testing.T) {
	messages := &fakeMessageRepo{}
	svc := newTestService(t, &fakeSessionRepo{}, messages, &fakeGenerator{}, &fakeEmbedder{})

	if err := svc.SaveMessage(context.Background(), "alice", "chat-1", models.RoleAssistant, "reply", 3); err != nil {
		t.Fatalf("SaveMessage() error: %v", err)
	}

	if len(messages.created) != 1 {
		t.Fatalf("created %d messages, want 1", len(messages.created))
	}
	msg := messages.created[0]
	if msg.ChatID != "chat-1" || msg.Role != models.RoleAssistant || msg.MessageOrder != 3 {
		t.Fatalf("persisted message = %+v", msg)
	}
	if msg.ID == "" {
		t.Fatal("persisted message missing id")
	}
}

func TestGenerateTitleFallsBackOnEndpointFailure(t *testing.T) {
	sessions := &fakeSessionRepo{}
	gen := &fakeGenerator{textErr: errors.New("endpoint down")}
	svc := newTestService(t, sessions, &fakeMessageRepo{}, gen, &fakeEmbedder{})

	history := []ClientMessage{{Role: "user", Content: "help me plan a garden"}}
	title, err := svc.GenerateTitle(context.Background(), "chat-1", "alice", history)
	if err != nil {
		t.Fatalf("GenerateTitle() error: %v", err)
	}

	if title != "help me plan a garden" {
		t.Fatalf("title = %q, want truncated first user message", title)
	}
	if sessions.renamed["chat-1"] != title {
		t.Fatalf("rename not persisted: %+v", sessions.renamed)
	}
}

func TestGenerateTitleUsesEndpoint(t *testing.T) {
	sessions := &fakeSessionRepo{}
	gen := &fakeGenerator{reply: `"Garden Planning Help"`}
	svc := newTestService(t, sessions, &fakeMessageRepo{}, gen, &fakeEmbedder{})

	history := []ClientMessage{{Role: "user", Content: "help me plan a garden"}}
	title, err := svc.GenerateTitle(context.Background(), "chat-1", "alice", history)
	if err != nil {
		t.Fatalf("GenerateTitle() error: %v", err)
	}

	if title != "Garden Planning Help" {
		t.Fatalf("title = %q, want sanitized endpoint reply", title)
	}
}

func TestSearchMessagesRequiresQuery(t *testing.T) {
	svc := newTestService(t, &fakeSessionRepo{}, &fakeMessageRepo{}, &fakeGenerator{}, &fakeEmbedder{})

	_, err := svc.SearchMessages(context.Background(), "alice", "", "", 3)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("SearchMessages() error = %v, want validation error", err)
	}
}
