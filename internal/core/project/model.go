package project

import (
	"time"

	"github.com/google/uuid"
)

// Project はひとつのナレッジ領域を表すコンテナ
// 配下のドキュメント・チャンク・会話はすべてこのプロジェクトにスコープされる
type Project struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	Name        string
	Description string
	CreatedAt   time.Time
}

// TenantStats はテナント単位の集計情報を表す
type TenantStats struct {
	Projects      int
	Documents     int
	Chunks        int
	Conversations int
}
