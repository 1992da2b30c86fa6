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
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/samber/mo"

	"github.com/jinford/kb-chat/internal/core/ingestion"
)

// IngestionRepository は core/ingestion.Repository を実装する PostgreSQL リポジトリ。
type IngestionRepository struct {
	pool *pgxpool.Pool
}

// NewIngestionRepository は新しい IngestionRepository を返す。
func NewIngestionRepository(pool *pgxpool.Pool) *IngestionRepository {
	return &IngestionRepository{pool: pool}
}

var _ ingestion.Repository = (*IngestionRepository)(nil)

func (r *IngestionRepository) CreateDocument(ctx context.Context, projectID uuid.UUID, title, content, fileName string, sourceType ingestion.SourceType) (*ingestion.Document, error) {
	now := time.Now().UTC()
	doc := &ingestion.Document{
		ID:         uuid.New(),
		ProjectID:  projectID,
		Title:      title,
		Content:    content,
		FileName:   fileName,
		SourceType: sourceType,
		Status:     ingestion.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO documents (id, project_id, title, content, file_name, source_type, status, chunk_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $8)`,
		UUIDToPgtype(doc.ID), UUIDToPgtype(doc.ProjectID), doc.Title, doc.Content, doc.FileName,
		string(doc.SourceType), string(doc.Status), TimeToPgtype(now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}
	return doc, nil
}

func (r *IngestionRepository) GetDocumentByID(ctx context.Context, id uuid.UUID) (mo.Option[*ingestion.Document], error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, project_id, title, content, file_name, source_type, status, chunk_count, error_message, created_at, updated_at
		 FROM documents WHERE id = $1`,
		UUIDToPgtype(id),
	)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return mo.None[*ingestion.Document](), nil
		}
		return mo.None[*ingestion.Document](), fmt.Errorf("failed to get document: %w", err)
	}
	return mo.Some(doc), nil
}

func (r *IngestionRepository) ListDocumentsByProject(ctx context.Context, projectID uuid.UUID) ([]*ingestion.Document, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, project_id, title, content, file_name, source_type, status, chunk_count, error_message, created_at, updated_at
		 FROM documents WHERE project_id = $1
		 ORDER BY created_at ASC, id ASC`,
		UUIDToPgtype(projectID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := make([]*ingestion.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (r *IngestionRepository) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	// chunks はON DELETE CASCADEで連鎖削除される
	_, err := r.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, UUIDToPgtype(id))
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

func (r *IngestionRepository) TryMarkProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	// 条件付きUPDATEによるCAS。既にPROCESSINGの行は更新されず獲得失敗となる
	tag, err := r.pool.Exec(ctx,
		`UPDATE documents
		 SET status = $1, error_message = NULL, updated_at = $2
		 WHERE id = $3 AND status <> $1`,
		string(ingestion.StatusProcessing), TimeToPgtype(time.Now().UTC()), UUIDToPgtype(id),
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark document processing: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *IngestionRepository) CompleteDocument(ctx context.Context, documentID uuid.UUID, chunks []*ingestion.Chunk) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, UUIDToPgtype(documentID)); err != nil {
		return fmt.Errorf("failed to delete old chunks: %w", err)
	}

	for _, c := range chunks {
		_, err := tx.Exec(ctx,
			`INSERT INTO chunks (id, document_id, project_id, seq, content, embedding, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			UUIDToPgtype(c.ID), UUIDToPgtype(c.DocumentID), UUIDToPgtype(c.ProjectID),
			int32(c.Seq), c.Content, pgvector.NewVector(c.Vector), TimeToPgtype(c.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk: %w", err)
		}
	}

	tag, err := tx.Exec(ctx,
		`UPDATE documents
		 SET status = $1, chunk_count = $2, error_message = NULL, updated_at = $3
		 WHERE id = $4`,
		string(ingestion.StatusReady), int32(len(chunks)), TimeToPgtype(time.Now().UTC()), UUIDToPgtype(documentID),
	)
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document not found: %s", documentID)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *IngestionRepository) FailDocument(ctx context.Context, documentID uuid.UUID, message string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, UUIDToPgtype(documentID)); err != nil {
		return fmt.Errorf("failed to delete old chunks: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE documents
		 SET status = $1, chunk_count = 0, error_message = $2, updated_at = $3
		 WHERE id = $4`,
		string(ingestion.StatusFailed), message, TimeToPgtype(time.Now().UTC()), UUIDToPgtype(documentID),
	)
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func scanDocument(row pgx.Row) (*ingestion.Document, error) {
	var (
		doc                  ingestion.Document
		id, pid              pgtype.UUID
		sourceType, status   string
		errorMessage         pgtype.Text
		chunkCount           int32
		createdAt, updatedAt pgtype.Timestamp
	)
	if err := row.Scan(&id, &pid, &doc.Title, &doc.Content, &doc.FileName, &sourceType, &status, &chunkCount, &errorMessage, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	doc.ID = PgtypeToUUID(id)
	doc.ProjectID = PgtypeToUUID(pid)
	doc.SourceType = ingestion.SourceType(sourceType)
	doc.Status = ingestion.DocumentStatus(status)
	doc.ChunkCount = int(chunkCount)
	doc.ErrorMessage = PgtextToStringPtr(errorMessage)
	doc.CreatedAt = PgtypeToTime(createdAt)
	doc.UpdatedAt = PgtypeToTime(updatedAt)
	return &doc, nil
}
