package project

import (
	"context"

	"github.com/google/uuid"
	"github.com/samber/mo"
)

// Repository はプロジェクト集約へのデータアクセスを提供するインターフェース
// テスト時のモック用に消費者側で定義
type Repository interface {
	CreateProject(ctx context.Context, tenantID uuid.UUID, name string, description string) (*Project, error)
	GetProjectByID(ctx context.Context, id uuid.UUID) (mo.Option[*Project], error)
	ListProjectsByTenant(ctx context.Context, tenantID uuid.UUID) ([]*Project, error)

	// DeleteProject はプロジェクトを削除する
	// 配下のドキュメント・チャンク・会話・メッセージもあわせて削除される
	DeleteProject(ctx context.Context, id uuid.UUID) error

	// GetTenantStats はテナント配下のプロジェクト/ドキュメント/チャンク/会話数を返す
	GetTenantStats(ctx context.Context, tenantID uuid.UUID) (*TenantStats, error)
}
