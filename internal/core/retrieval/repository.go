package retrieval

import (
	"context"

	"github.com/google/uuid"
)

// Index はチャンクインデックスへの類似度検索インターフェース
// テスト時のモック用に消費者側で定義
type Index interface {
	// SearchChunks はプロジェクトスコープでコサイン類似度の上位limit件を返す
	// 並び順は類似度の降順、同点はドキュメント作成日時の昇順→チャンク連番の昇順
	// （テスト再現性のため決定的であることが必須）
	SearchChunks(ctx context.Context, projectID uuid.UUID, queryVector []float32, limit int) ([]*Source, error)
}

// Embedder はクエリのEmbedding生成インターフェース
type Embedder interface {
	// Embed は単一テキストのEmbeddingを生成する
	Embed(ctx context.Context, text string) ([]float32, error)
}
