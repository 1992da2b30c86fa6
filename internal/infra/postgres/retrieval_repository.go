package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/jinford/kb-chat/internal/core/ingestion"
	"github.com/jinford/kb-chat/internal/core/retrieval"
)

// RetrievalRepository は core/retrieval.Index を実装する PostgreSQL リポジトリ。
type RetrievalRepository struct {
	pool *pgxpool.Pool
}

// NewRetrievalRepository は新しい RetrievalRepository を返す。
func NewRetrievalRepository(pool *pgxpool.Pool) *RetrievalRepository {
	return &RetrievalRepository{pool: pool}
}

var _ retrieval.Index = (*RetrievalRepository)(nil)

func (r *RetrievalRepository) SearchChunks(ctx context.Context, projectID uuid.UUID, queryVector []float32, limit int) ([]*retrieval.Source, error) {
	// <=> はコサイン距離。1 - 距離 を [0,1] にクランプして正規化スコアとする。
	// 同点時の並びが決定的になるよう created_at と seq で二次・三次ソートする。
	rows, err := r.pool.Query(ctx,
		`SELECT c.id, c.document_id, d.title, c.seq, c.content,
		        GREATEST(1 - (c.embedding <=> $1), 0) AS score
		 FROM chunks c
		 JOIN documents d ON d.id = c.document_id
		 WHERE c.project_id = $2 AND d.status = $3
		 ORDER BY score DESC, d.created_at ASC, c.seq ASC
		 LIMIT $4`,
		pgvector.NewVector(queryVector), UUIDToPgtype(projectID), string(ingestion.StatusReady), int32(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	sources := make([]*retrieval.Source, 0, limit)
	for rows.Next() {
		var (
			s       retrieval.Source
			id, did pgtype.UUID
			seq     int32
		)
		if err := rows.Scan(&id, &did, &s.DocumentTitle, &seq, &s.Content, &s.Score); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		s.ChunkID = PgtypeToUUID(id)
		s.DocumentID = PgtypeToUUID(did)
		s.Seq = int(seq)
		sources = append(sources, &s)
	}
	return sources, rows.Err()
}
