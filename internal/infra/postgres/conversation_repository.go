package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/mo"

	"github.com/jinford/kb-chat/internal/core/conversation"
)

// ConversationRepository は core/conversation.Repository を実装する PostgreSQL リポジトリ。
type ConversationRepository struct {
	pool *pgxpool.Pool
}

// NewConversationRepository は新しい ConversationRepository を返す。
func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{pool: pool}
}

var _ conversation.Repository = (*ConversationRepository)(nil)

func (r *ConversationRepository) CreateConversation(ctx context.Context, projectID uuid.UUID, title string) (*conversation.Conversation, error) {
	c := &conversation.Conversation{
		ID:        uuid.New(),
		ProjectID: projectID,
		Title:     title,
		CreatedAt: time.Now().UTC(),
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO conversations (id, project_id, title, created_at)
		 VALUES ($1, $2, $3, $4)`,
		UUIDToPgtype(c.ID), UUIDToPgtype(c.ProjectID), c.Title, TimeToPgtype(c.CreatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return c, nil
}

func (r *ConversationRepository) GetConversationByID(ctx context.Context, id uuid.UUID) (mo.Option[*conversation.Conversation], error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, project_id, title, created_at FROM conversations WHERE id = $1`,
		UUIDToPgtype(id),
	)

	var (
		c         conversation.Conversation
		cid, pid  pgtype.UUID
		createdAt pgtype.Timestamp
	)
	if err := row.Scan(&cid, &pid, &c.Title, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return mo.None[*conversation.Conversation](), nil
		}
		return mo.None[*conversation.Conversation](), fmt.Errorf("failed to get conversation: %w", err)
	}
	c.ID = PgtypeToUUID(cid)
	c.ProjectID = PgtypeToUUID(pid)
	c.CreatedAt = PgtypeToTime(createdAt)
	return mo.Some(&c), nil
}

func (r *ConversationRepository) ListConversationsByProject(ctx context.Context, projectID uuid.UUID) ([]*conversation.Conversation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, project_id, title, created_at
		 FROM conversations WHERE project_id = $1
		 ORDER BY created_at DESC, id ASC`,
		UUIDToPgtype(projectID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	conversations := make([]*conversation.Conversation, 0)
	for rows.Next() {
		var (
			c         conversation.Conversation
			cid, pid  pgtype.UUID
			createdAt pgtype.Timestamp
		)
		if err := rows.Scan(&cid, &pid, &c.Title, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		c.ID = PgtypeToUUID(cid)
		c.ProjectID = PgtypeToUUID(pid)
		c.CreatedAt = PgtypeToTime(createdAt)
		conversations = append(conversations, &c)
	}
	return conversations, rows.Err()
}

func (r *ConversationRepository) CreateMessage(ctx context.Context, conversationID uuid.UUID, role conversation.Role, mode conversation.Mode, content string, sources []conversation.SourceRef) (*conversation.Message, error) {
	m := &conversation.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Role:           role,
		Mode:           mode,
		Content:        content,
		Sources:        sources,
		CreatedAt:      time.Now().UTC(),
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO messages (id, conversation_id, role, mode, content, sources, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		UUIDToPgtype(m.ID), UUIDToPgtype(m.ConversationID), string(m.Role), string(m.Mode),
		m.Content, JSONBFromSources(m.Sources), TimeToPgtype(m.CreatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	return m, nil
}

func (r *ConversationRepository) ListMessagesByConversation(ctx context.Context, conversationID uuid.UUID) ([]*conversation.Message, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, conversation_id, role, mode, content, sources, created_at
		 FROM messages WHERE conversation_id = $1
		 ORDER BY created_at ASC, id ASC`,
		UUIDToPgtype(conversationID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*conversation.Message, 0)
	for rows.Next() {
		var (
			m          conversation.Message
			mid, cid   pgtype.UUID
			role, mode string
			sources    []byte
			createdAt  pgtype.Timestamp
		)
		if err := rows.Scan(&mid, &cid, &role, &mode, &m.Content, &sources, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.ID = PgtypeToUUID(mid)
		m.ConversationID = PgtypeToUUID(cid)
		m.Role = conversation.Role(role)
		m.Mode = conversation.Mode(mode)
		m.Sources = SourcesFromJSONB(sources)
		m.CreatedAt = PgtypeToTime(createdAt)
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}
