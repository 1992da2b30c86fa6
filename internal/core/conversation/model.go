package conversation

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Conversation はプロジェクトにスコープされたメッセージのスレッドを表す
type Conversation struct {
	ID        uuid.UUID
	ProjectID uuid.UUID
	Title     string
	CreatedAt time.Time
}

// Role はメッセージの発話者種別
type Role string

const (
	// RoleUser は利用者の発話
	RoleUser Role = "user"
	// RoleAssistant はアシスタントの応答
	RoleAssistant Role = "assistant"
)

// Mode は回答生成のモード
type Mode string

const (
	// ModeKBOnly はナレッジベースの内容のみから回答する制約モード
	// 十分な根拠が見つからない場合は回答を拒否する
	ModeKBOnly Mode = "KB_ONLY"
	// ModeHybrid はナレッジベースを参考情報として使いつつ一般知識でも回答するモード
	ModeHybrid Mode = "HYBRID"
)

// ParseMode は文字列からModeを解釈する
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeKBOnly, ModeHybrid:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown mode: %q", s)
	}
}

// SourceRef はアシスタント応答の根拠となったチャンクへの参照を表す
// ScoreはRetrieverが内部で使うのと同じスケール（0-1）のまま保存・返却される
type SourceRef struct {
	ChunkID       uuid.UUID `json:"chunkId"`
	DocumentTitle string    `json:"documentTitle"`
	Score         float64   `json:"score"`
}

// Message は会話の1ターンを表す
// アシスタントメッセージのSourcesは生成時点でREADYだったドキュメントの
// 実在チャンクのみを参照する（捏造参照は存在しない）
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Role           Role
	// Mode はアシスタント応答にのみ設定される（トリガーしたリクエストから引き継ぐ）
	Mode      Mode
	Content   string
	Sources   []SourceRef
	CreatedAt time.Time
}

// EventType はストリームイベントの種別
type EventType string

const (
	// EventDelta は生成テキストの増分断片
	EventDelta EventType = "delta"
	// EventDone はストリーム完了を示す終端イベント（全文と確定ソース一覧を運ぶ）
	EventDone EventType = "done"
	// EventError は終端のエラーイベント（このターンは永続化されない）
	EventError EventType = "error"
)

// StreamEvent は応答ストリームの1イベントを表す
// 単一の生成元が順序どおりに書き込み、単一の読み手が消費する
type StreamEvent struct {
	Type EventType

	// Delta はEventDeltaの増分テキスト
	Delta string

	// Content はEventDoneでの連結済み全文
	Content string
	// Sources はEventDoneでの確定ソース一覧
	Sources []SourceRef

	// Err はEventErrorの原因
	Err error
}
