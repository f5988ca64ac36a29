package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"vibesession/internal/domain"
	"vibesession/internal/domain/models"
	"vibesession/internal/domain/repositories"
)

// PostgresSessionRepository implements SessionRepository using PostgreSQL
type PostgresSessionRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewSessionRepository creates a new PostgresSessionRepository
func NewSessionRepository(config *RepositoryConfig) repositories.SessionRepository {
	return &PostgresSessionRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// CreateSession inserts a new chat session
func (r *PostgresSessionRepository) CreateSession(ctx context.Context, session *models.ChatSession) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, user_name, title, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, r.tables.Sessions)

	now := time.Now()
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		session.ID,
		session.UserName,
		session.Title,
		now,
		now,
	).Scan(&session.CreatedAt, &session.UpdatedAt)

	if err != nil {
		if IsPgDuplicateError(err) {
			return &domain.ConflictError{
				Message:      fmt.Sprintf("session %s already exists", session.ID),
				ResourceType: "session",
				ResourceID:   session.ID,
			}
		}
		return fmt.Errorf("create session: %w", err)
	}

	return nil
}

// GetSession retrieves a session by ID scoped to its owner
func (r *PostgresSessionRepository) GetSession(ctx context.Context, sessionID, userName string) (*models.ChatSession, error) {
	query := fmt.Sprintf(`
		SELECT id, user_name, title, created_at, updated_at
		FROM %s
		WHERE id = $1 AND user_name = $2
	`, r.tables.Sessions)

	var session models.ChatSession
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, sessionID, userName).Scan(
		&session.ID,
		&session.UserName,
		&session.Title,
		&session.CreatedAt,
		&session.UpdatedAt,
	)

	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	return &session, nil
}

// ListSessions retrieves session summaries for a user, most recent first
func (r *PostgresSessionRepository) ListSessions(ctx context.Context, userName string) ([]models.SessionSummary, error) {
	query := fmt.Sprintf(`
		SELECT id, COALESCE(title, ''), updated_at
		FROM %s
		WHERE user_name = $1
		ORDER BY updated_at DESC
	`, r.tables.Sessions)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, userName)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.SessionSummary
	for rows.Next() {
		var s models.SessionSummary
		if err := rows.Scan(&s.ID, &s.Title, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	// Return empty slice instead of nil
	if sessions == nil {
		sessions = []models.SessionSummary{}
	}

	return sessions, nil
}

// RenameSession updates a session title
func (r *PostgresSessionRepository) RenameSession(ctx context.Context, sessionID, userName, title string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET title = $1, updated_at = $2
		WHERE id = $3 AND user_name = $4
	`, r.tables.Sessions)

	executor := GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, title, time.Now(), sessionID, userName)
	if err != nil {
		return fmt.Errorf("rename session: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}

	return nil
}

// DeleteSession removes a session with its messages and embeddings.
// Returns false when the session did not exist.
func (r *PostgresSessionRepository) DeleteSession(ctx context.Context, sessionID, userName string) (bool, error) {
	// Embeddings first, then history, then the session row; run inside
	// ExecTx so a partial delete never survives.
	executor := GetExecutor(ctx, r.pool)

	embQuery := fmt.Sprintf(`DELETE FROM %s WHERE chat_id = $1 AND user_name = $2`, r.tables.Embeddings)
	if _, err := executor.Exec(ctx, embQuery, sessionID, userName); err != nil {
		return false, fmt.Errorf("delete embeddings: %w", err)
	}

	histQuery := fmt.Sprintf(`DELETE FROM %s WHERE chat_id = $1 AND user_name = $2`, r.tables.History)
	if _, err := executor.Exec(ctx, histQuery, sessionID, userName); err != nil {
		return false, fmt.Errorf("delete history: %w", err)
	}

	sessQuery := fmt.Sprintf(`DELETE FROM %s WHERE id = $1 AND user_name = $2`, r.tables.Sessions)
	result, err := executor.Exec(ctx, sessQuery, sessionID, userName)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}

	return result.RowsAffected() > 0, nil
}
