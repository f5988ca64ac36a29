package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"vibesession/internal/domain"
	"vibesession/internal/domain/models"
	"vibesession/internal/domain/repositories"
)

// PostgresMessageRepository implements MessageRepository using PostgreSQL
// with pgvector for message embeddings.
type PostgresMessageRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewMessageRepository creates a new PostgresMessageRepository
func NewMessageRepository(config *RepositoryConfig) repositories.MessageRepository {
	return &PostgresMessageRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// CreateMessage inserts a message and, when an embedding is provided, its
// embedding row. Both writes go through the context executor so an enclosing
// transaction keeps them atomic; an embedding failure fails the whole save.
func (r *PostgresMessageRepository) CreateMessage(ctx context.Context, msg *models.Message, embedding []float32) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, chat_id, user_name, message_type, message_content, message_order, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, r.tables.History)

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		msg.ID,
		msg.ChatID,
		msg.UserName,
		string(msg.Role),
		msg.Content,
		msg.MessageOrder,
		time.Now(),
	).Scan(&msg.CreatedAt)

	if err != nil {
		if IsPgDuplicateError(err) {
			return &domain.ConflictError{
				Message:      fmt.Sprintf("message order %d already taken in chat %s", msg.MessageOrder, msg.ChatID),
				ResourceType: "message",
				ResourceID:   msg.ID,
			}
		}
		return fmt.Errorf("create message: %w", err)
	}

	if embedding == nil {
		return nil
	}

	embQuery := fmt.Sprintf(`
		INSERT INTO %s (id, message_id, user_name, chat_id, embedding)
		VALUES ($1, $2, $3, $4, CAST($5 AS vector))
	`, r.tables.Embeddings)

	_, err = executor.Exec(ctx, embQuery,
		uuid.NewString(),
		msg.ID,
		msg.UserName,
		msg.ChatID,
		vectorLiteral(embedding),
	)
	if err != nil {
		if IsPgForeignKeyError(err) {
			return &domain.NotFoundError{
				Message: fmt.Sprintf("message %s no longer exists for embedding", msg.ID),
			}
		}
		return fmt.Errorf("create message embedding: %w", err)
	}

	return nil
}

// LoadHistory retrieves a chat transcript ordered by message_order
func (r *PostgresMessageRepository) LoadHistory(ctx context.Context, chatID, userName string) ([]models.Message, error) {
	query := fmt.Sprintf(`
		SELECT id, chat_id, user_name, message_type, message_content, message_order, created_at
		FROM %s
		WHERE chat_id = $1 AND user_name = $2
		ORDER BY message_order ASC
	`, r.tables.History)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, chatID, userName)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		var role string
		err := rows.Scan(
			&m.ID,
			&m.ChatID,
			&m.UserName,
			&role,
			&m.Content,
			&m.MessageOrder,
			&m.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = models.MessageRole(role)
		messages = append(messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	if messages == nil {
		messages = []models.Message{}
	}

	return messages, nil
}

// SearchSimilar runs a cosine-distance search over stored message embeddings.
// chatID may be empty to search across all of the user's chats.
func (r *PostgresMessageRepository) SearchSimilar(ctx context.Context, embedding []float32, userName, chatID string, k int) ([]models.SimilarMessage, error) {
	if k <= 0 {
		k = 3
	}

	conditions := []string{"me.user_name = $2"}
	args := []interface{}{vectorLiteral(embedding), userName}
	if chatID != "" {
		conditions = append(conditions, fmt.Sprintf("me.chat_id = $%d", len(args)+1))
		args = append(args, chatID)
	}
	args = append(args, k)

	query := fmt.Sprintf(`
		SELECT
			ch.message_content,
			ch.message_type,
			me.chat_id,
			ch.message_order,
			ch.created_at,
			(me.embedding <=> CAST($1 AS vector)) AS distance
		FROM %s me
		JOIN %s ch ON me.message_id = ch.id
		WHERE %s
		ORDER BY me.embedding <=> CAST($1 AS vector)
		LIMIT $%d
	`, r.tables.Embeddings, r.tables.History, strings.Join(conditions, " AND "), len(args))

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search similar messages: %w", err)
	}
	defer rows.Close()

	var hits []models.SimilarMessage
	for rows.Next() {
		var hit models.SimilarMessage
		var role string
		err := rows.Scan(
			&hit.Content,
			&role,
			&hit.ChatID,
			&hit.MessageOrder,
			&hit.CreatedAt,
			&hit.Distance,
		)
		if err != nil {
			return nil, fmt.Errorf("scan similar message: %w", err)
		}
		hit.Role = models.MessageRole(role)
		hits = append(hits, hit)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate similar messages: %w", err)
	}

	return hits, nil
}

// vectorLiteral formats an embedding as a pgvector input literal, e.g.
// "[0.1,0.2,0.3]".
func vectorLiteral(embedding []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range embedding {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}
