package ingestion

import (
	"context"

	"github.com/google/uuid"
	"github.com/samber/mo"
)

// Repository はドキュメントストアとチャンクインデックスへのデータアクセスを統合するインターフェース
// テスト時のモック用に消費者側で定義
type Repository interface {
	// Document
	CreateDocument(ctx context.Context, projectID uuid.UUID, title, content, fileName string, sourceType SourceType) (*Document, error)
	GetDocumentByID(ctx context.Context, id uuid.UUID) (mo.Option[*Document], error)
	ListDocumentsByProject(ctx context.Context, projectID uuid.UUID) ([]*Document, error)

	// DeleteDocument はドキュメントとそのチャンクを削除する
	DeleteDocument(ctx context.Context, id uuid.UUID) error

	// TryMarkProcessing はPENDINGまたは終端状態からPROCESSINGへのCAS遷移を試みる
	// 既にPROCESSINGの場合はfalseを返す（多重起動ガード）
	TryMarkProcessing(ctx context.Context, id uuid.UUID) (bool, error)

	// CompleteDocument はチャンク集合の置き換えとREADY遷移を単一の原子操作として行う
	// 既存チャンクの削除・新チャンクの書き込み・chunk_count更新・ステータス遷移が
	// ひとつのトランザクションで確定し、読み手が中間状態を観測することはない
	CompleteDocument(ctx context.Context, documentID uuid.UUID, chunks []*Chunk) error

	// FailDocument は既存チャンクをすべて破棄してFAILEDへ遷移する
	// chunk_countは0になり、messageがエラー内容として記録される
	FailDocument(ctx context.Context, documentID uuid.UUID, message string) error
}
