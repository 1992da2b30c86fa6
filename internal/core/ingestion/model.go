package ingestion

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DocumentStatus はドキュメント処理の状態を表す
// 永続化層とAPIレスポンスの間で文字列表現がそのまま往復する
type DocumentStatus string

const (
	// StatusPending は登録済みで未処理の状態
	StatusPending DocumentStatus = "PENDING"
	// StatusProcessing はチャンク分割・Embedding生成の実行中
	StatusProcessing DocumentStatus = "PROCESSING"
	// StatusReady はチャンクが検索可能になった終端状態
	StatusReady DocumentStatus = "READY"
	// StatusFailed は処理に失敗した終端状態
	StatusFailed DocumentStatus = "FAILED"
)

// ParseDocumentStatus は文字列からDocumentStatusを解釈する
func ParseDocumentStatus(s string) (DocumentStatus, error) {
	switch DocumentStatus(s) {
	case StatusPending, StatusProcessing, StatusReady, StatusFailed:
		return DocumentStatus(s), nil
	default:
		return "", fmt.Errorf("unknown document status: %q", s)
	}
}

// IsTerminal は終端状態（READY / FAILED）かどうかを返す
func (s DocumentStatus) IsTerminal() bool {
	return s == StatusReady || s == StatusFailed
}

// String はステータスの文字列表現を返す
func (s DocumentStatus) String() string {
	return string(s)
}

// SourceType はドキュメントの投入元種別を表す
type SourceType string

const (
	// SourceTypeText はチャット画面等から直接貼り付けられたテキスト
	SourceTypeText SourceType = "TEXT"
	// SourceTypeFile はアップロードされたファイル
	SourceTypeFile SourceType = "FILE"
)

// ParseSourceType は文字列からSourceTypeを解釈する
func ParseSourceType(s string) (SourceType, error) {
	switch SourceType(s) {
	case SourceTypeText, SourceTypeFile:
		return SourceType(s), nil
	default:
		return "", fmt.Errorf("unknown source type: %q", s)
	}
}

// Document はナレッジベースへ投入された1件のソースコンテンツを表す
type Document struct {
	ID        uuid.UUID
	ProjectID uuid.UUID
	Title     string
	Content   string
	// FileName はSourceTypeFileの場合のアップロード時ファイル名（チャンカー選択に使用）
	FileName   string
	SourceType SourceType
	Status     DocumentStatus

	// ChunkCount は現在永続化されているチャンク数と常に一致する
	// READY以外のステータスでは0
	ChunkCount int

	// ErrorMessage はFAILED時の人間可読なエラー内容
	ErrorMessage *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Chunk はドキュメント本文の順序付き断片とそのEmbeddingを表す
// ドキュメントに排他的に所有され、ドキュメントより長生きしない
type Chunk struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	// ProjectID はプロジェクトスコープ検索をJOINなしで行うための非正規化カラム
	ProjectID uuid.UUID
	// Seq はドキュメント内の連番（0始まり・連続・重複なし）
	Seq       int
	Content   string
	Vector    []float32
	CreatedAt time.Time
}
