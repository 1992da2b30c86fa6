package ingestion

import "context"

// Embedder はテキストのEmbedding生成インターフェース
// 外部のEmbedding能力（OpenAI等）を差し替え可能にする薄いラッパー
type Embedder interface {
	// Embed は単一テキストのEmbeddingを生成する
	Embed(ctx context.Context, text string) ([]float32, error)

	// BatchEmbed はバッチでEmbeddingを生成する
	// 返却ベクトル数は入力テキスト数と一致しなければならない
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)

	// MaxBatchSize はバッチ処理の最大サイズを返す
	MaxBatchSize() int

	// Dimension はベクトル次元数を返す
	Dimension() int

	// ModelName はモデル名を返す
	ModelName() string
}
