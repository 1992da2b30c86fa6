package retrieval

import (
	"github.com/google/uuid"
)

// Source は検索でヒットしたチャンクと出典情報を表す
// Scoreは正規化済みコサイン類似度（0-1）で、保存・API応答でも同じスケールを使う
type Source struct {
	ChunkID       uuid.UUID
	DocumentID    uuid.UUID
	DocumentTitle string
	Seq           int
	Content       string
	Score         float64
}
