package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// DefaultTopK はlimit未指定時の検索上位件数
const DefaultTopK = 5

// Retriever はクエリEmbedding生成とインデックス検索を合成する
// 状態を持たず、インジェスションと並行して安全に呼び出せる
type Retriever struct {
	index    Index
	embedder Embedder
	topK     int
	logger   *slog.Logger
}

type retrieverOptions struct {
	topK   int
	logger *slog.Logger
}

// RetrieverOption は Retriever のオプション設定
type RetrieverOption func(*retrieverOptions)

// WithTopK はデフォルトの検索上位件数を上書きする
func WithTopK(k int) RetrieverOption {
	return func(o *retrieverOptions) {
		o.topK = k
	}
}

// WithRetrieverLogger は Retriever にロガーを設定する
func WithRetrieverLogger(logger *slog.Logger) RetrieverOption {
	return func(o *retrieverOptions) {
		o.logger = logger
	}
}

// NewRetriever は新しいRetrieverを作成する
func NewRetriever(index Index, embedder Embedder, opts ...RetrieverOption) *Retriever {
	options := retrieverOptions{
		topK:   DefaultTopK,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.topK <= 0 {
		options.topK = DefaultTopK
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	return &Retriever{
		index:    index,
		embedder: embedder,
		topK:     options.topK,
		logger:   options.logger,
	}
}

// Retrieve はクエリをEmbeddingに変換し、類似度上位k件のソースを返す
func (r *Retriever) Retrieve(ctx context.Context, projectID uuid.UUID, query string, k int) ([]*Source, error) {
	if projectID == uuid.Nil {
		return nil, fmt.Errorf("projectID is required")
	}
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if k <= 0 {
		k = r.topK
	}

	queryVector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	sources, err := r.index.SearchChunks(ctx, projectID, queryVector, k)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	r.logger.Debug("検索が完了",
		"projectID", projectID,
		"query", query,
		"k", k,
		"hits", len(sources),
	)

	return sources, nil
}
