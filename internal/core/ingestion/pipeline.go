package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jinford/kb-chat/internal/core/ingestion/chunk"
)

const (
	// DefaultDocumentWorkerCount はドキュメント並行処理のデフォルトワーカー数
	DefaultDocumentWorkerCount = 4
	// DefaultEmbeddingBatchSize はEmbedding APIのデフォルトバッチサイズ
	DefaultEmbeddingBatchSize = 100
	// MinBatchSize は最小バッチサイズ（MaxBatchSize()が0を返した場合のフォールバック）
	MinBatchSize = 1
)

// PipelineConfig はパイプライン処理の設定
type PipelineConfig struct {
	// DocumentWorkerCount はドキュメント並行処理ワーカー数（I/O バウンド）
	DocumentWorkerCount int
	// EmbeddingBatchSize はEmbeddingバッチサイズ（Embedder.MaxBatchSize()でクリップされる）
	EmbeddingBatchSize int
}

// DefaultPipelineConfig はデフォルトのパイプライン設定を返す
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		DocumentWorkerCount: DefaultDocumentWorkerCount,
		EmbeddingBatchSize:  DefaultEmbeddingBatchSize,
	}
}

// Pipeline は1ドキュメントのチャンク分割→Embedding生成→チャンク置き換えを実行する
// ドキュメント単位で全件成功か全件破棄のどちらかに必ず倒れる
type Pipeline struct {
	repository Repository
	embedder   Embedder
	chunker    *chunk.TextChunker
	logger     *slog.Logger

	// 実際に使用するバッチサイズ（Embedder.MaxBatchSize()でクリップ済み）
	effectiveBatchSize int
}

// NewPipeline は新しいPipelineを作成する
func NewPipeline(
	repository Repository,
	embedder Embedder,
	chunker *chunk.TextChunker,
	config *PipelineConfig,
	logger *slog.Logger,
) *Pipeline {
	if config == nil {
		config = DefaultPipelineConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	// バッチサイズをEmbedderの最大値でクリップ
	effectiveBatchSize := config.EmbeddingBatchSize
	maxBatchSize := embedder.MaxBatchSize()

	if maxBatchSize <= 0 {
		logger.Warn("Embedder.MaxBatchSize()が無効な値を返しました。フォールバック値を使用します",
			"returned", maxBatchSize,
			"fallback", MinBatchSize,
		)
		maxBatchSize = MinBatchSize
	}

	if effectiveBatchSize > maxBatchSize {
		logger.Info("EmbeddingBatchSizeをEmbedderの最大値でクリップ",
			"configured", effectiveBatchSize,
			"max", maxBatchSize,
		)
		effectiveBatchSize = maxBatchSize
	}
	if effectiveBatchSize <= 0 {
		effectiveBatchSize = MinBatchSize
	}

	return &Pipeline{
		repository:         repository,
		embedder:           embedder,
		chunker:            chunker,
		logger:             logger,
		effectiveBatchSize: effectiveBatchSize,
	}
}

// Run はドキュメントをチャンク分割してEmbeddingを生成し、チャンク集合を原子的に置き換える
// いずれかの段階が失敗した場合はエラーを返し、チャンクは1件も確定しない
func (p *Pipeline) Run(ctx context.Context, doc *Document) error {
	// チャンク分割（同一入力に対して常に同一の結果）
	kind := chunk.DetectContentKind(doc.FileName, doc.Content)
	texts, err := p.chunker.Chunk(doc.Content, kind)
	if err != nil {
		return fmt.Errorf("チャンク分割に失敗: %w", err)
	}

	p.logger.Debug("チャンク分割が完了",
		"documentID", doc.ID,
		"kind", kind,
		"chunks", len(texts),
	)

	// バッチでEmbeddingを生成（1バッチでも失敗すればドキュメント全体を失敗扱い）
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += p.effectiveBatchSize {
		end := start + p.effectiveBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := p.embedder.BatchEmbed(ctx, texts[start:end])
		if err != nil {
			return fmt.Errorf("embedding生成に失敗 (batch %d-%d): %w", start, end-1, err)
		}
		if len(batch) != end-start {
			return fmt.Errorf("embeddingベクトル数が不一致: expected=%d actual=%d", end-start, len(batch))
		}
		vectors = append(vectors, batch...)
	}

	now := time.Now().UTC()
	chunks := make([]*Chunk, 0, len(texts))
	for i, text := range texts {
		chunks = append(chunks, &Chunk{
			ID:         uuid.New(),
			DocumentID: doc.ID,
			ProjectID:  doc.ProjectID,
			Seq:        i,
			Content:    text,
			Vector:     vectors[i],
			CreatedAt:  now,
		})
	}

	// 置き換えは単一の原子操作: 旧チャンク全削除＋新チャンク全書き込み＋READY遷移
	if err := p.repository.CompleteDocument(ctx, doc.ID, chunks); err != nil {
		return fmt.Errorf("チャンク集合の置き換えに失敗: %w", err)
	}

	return nil
}
