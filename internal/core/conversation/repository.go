package conversation

import (
	"context"

	"github.com/google/uuid"
	"github.com/samber/mo"
)

// Repository は会話とメッセージへのデータアクセスを提供するインターフェース
// テスト時のモック用に消費者側で定義
type Repository interface {
	// Conversation
	CreateConversation(ctx context.Context, projectID uuid.UUID, title string) (*Conversation, error)
	GetConversationByID(ctx context.Context, id uuid.UUID) (mo.Option[*Conversation], error)
	ListConversationsByProject(ctx context.Context, projectID uuid.UUID) ([]*Conversation, error)

	// Message
	// CreateMessage は完成したターンのメッセージを1件書き込む
	// ストリーム途中の部分的なメッセージが書き込まれることはない
	CreateMessage(ctx context.Context, conversationID uuid.UUID, role Role, mode Mode, content string, sources []SourceRef) (*Message, error)
	ListMessagesByConversation(ctx context.Context, conversationID uuid.UUID) ([]*Message, error)
}

// Generator は外部の回答生成能力への薄いラッパー
// 増分断片はonDeltaへ順序どおりに渡され、完了時に連結済み全文が返る
// onDeltaがエラーを返した場合は生成を中断する（クライアント切断時など）
type Generator interface {
	GenerateStream(ctx context.Context, prompt string, onDelta func(delta string) error) (string, error)
}
