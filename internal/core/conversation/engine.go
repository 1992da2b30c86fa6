package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jinford/kb-chat/internal/core/retrieval"
)

// ErrConversationNotFound は会話が存在しない場合のエラー
var ErrConversationNotFound = errors.New("conversation not found")

// DefaultScoreThreshold はKB_ONLYモードで回答を許可する最小類似度のデフォルト値
// 誤った根拠で回答するよりは拒否に倒す保守的な値
const DefaultScoreThreshold = 0.35

// Engine は会話とデュアルモード回答生成のユースケースを提供する
type Engine struct {
	repository Repository
	retriever  *retrieval.Retriever
	generator  Generator

	topK           int
	scoreThreshold float64
	logger         *slog.Logger
}

type engineOptions struct {
	topK           int
	scoreThreshold float64
	logger         *slog.Logger
}

// EngineOption は Engine のオプション設定
type EngineOption func(*engineOptions)

// WithEngineTopK は検索の上位件数を上書きする
func WithEngineTopK(k int) EngineOption {
	return func(o *engineOptions) {
		o.topK = k
	}
}

// WithScoreThreshold はKB_ONLYモードの類似度閾値を上書きする
func WithScoreThreshold(threshold float64) EngineOption {
	return func(o *engineOptions) {
		o.scoreThreshold = threshold
	}
}

// WithEngineLogger は Engine にロガーを設定する
func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// NewEngine は新しいEngineを作成する
func NewEngine(
	repository Repository,
	retriever *retrieval.Retriever,
	generator Generator,
	opts ...EngineOption,
) *Engine {
	options := engineOptions{
		topK:           retrieval.DefaultTopK,
		scoreThreshold: DefaultScoreThreshold,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.topK <= 0 {
		options.topK = retrieval.DefaultTopK
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	return &Engine{
		repository:     repository,
		retriever:      retriever,
		generator:      generator,
		topK:           options.topK,
		scoreThreshold: options.scoreThreshold,
		logger:         options.logger,
	}
}

// CreateConversation は新しい会話を作成する
func (e *Engine) CreateConversation(ctx context.Context, projectID uuid.UUID, title string) (*Conversation, error) {
	if projectID == uuid.Nil {
		return nil, fmt.Errorf("projectID is required")
	}
	if title == "" {
		title = "新しい会話"
	}

	conv, err := e.repository.CreateConversation(ctx, projectID, title)
	if err != nil {
		return nil, fmt.Errorf("会話の作成に失敗: %w", err)
	}

	e.logger.Info("会話を作成", "conversationID", conv.ID, "projectID", conv.ProjectID)
	return conv, nil
}

// ListConversations はプロジェクト配下の会話一覧を返す
func (e *Engine) ListConversations(ctx context.Context, projectID uuid.UUID) ([]*Conversation, error) {
	if projectID == uuid.Nil {
		return nil, fmt.Errorf("projectID is required")
	}
	convs, err := e.repository.ListConversationsByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("会話一覧の取得に失敗: %w", err)
	}
	return convs, nil
}

// ListMessages は会話のメッセージを時系列順で返す
func (e *Engine) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*Message, error) {
	convOpt, err := e.repository.GetConversationByID(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("会話の取得に失敗: %w", err)
	}
	if convOpt.IsAbsent() {
		return nil, ErrConversationNotFound
	}

	messages, err := e.repository.ListMessagesByConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("メッセージ一覧の取得に失敗: %w", err)
	}
	return messages, nil
}

// SendMessageParams はメッセージ送信のパラメータ
type SendMessageParams struct {
	ConversationID uuid.UUID
	Content        string
	Mode           Mode
}

// SendMessage はユーザーメッセージを受け付け、応答ストリームを返す
//
// バリデーションエラーは同期的に返り、ストリームは開始されない
// ストリームは増分断片（EventDelta）の列と、終端イベント1件
// （EventDoneまたはEventError）で構成される
// ターン（ユーザー＋アシスタントのメッセージ）はストリーム完了後に一度だけ
// 永続化され、中断やエラーで途切れたターンが書き込まれることはない
func (e *Engine) SendMessage(ctx context.Context, params SendMessageParams) (<-chan StreamEvent, error) {
	if params.Content == "" {
		return nil, fmt.Errorf("content is required")
	}
	if _, err := ParseMode(string(params.Mode)); err != nil {
		return nil, err
	}

	convOpt, err := e.repository.GetConversationByID(ctx, params.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("会話の取得に失敗: %w", err)
	}
	if convOpt.IsAbsent() {
		return nil, ErrConversationNotFound
	}
	conv := convOpt.MustGet()

	events := make(chan StreamEvent, 16)
	go func() {
		defer close(events)
		e.generateTurn(ctx, conv, params, events)
	}()

	return events, nil
}

// generateTurn は1ターンの検索・生成・永続化を実行し、イベントを書き込む
func (e *Engine) generateTurn(ctx context.Context, conv *Conversation, params SendMessageParams, events chan<- StreamEvent) {
	// ソース検索（両モード共通）
	sources, err := e.retriever.Retrieve(ctx, conv.ProjectID, params.Content, e.topK)
	if err != nil {
		// KB_ONLYを根拠なし回答へ静かに降格させることはない
		// 検索失敗はどちらのモードでも明示的なエラーとして呼び出し側へ返す
		e.logger.Warn("ソース検索に失敗", "conversationID", conv.ID, "error", err)
		e.emit(ctx, events, StreamEvent{Type: EventError, Err: fmt.Errorf("ソース検索に失敗: %w", err)})
		return
	}

	// 閾値以上のソースのみを根拠として採用する
	grounded := make([]*retrieval.Source, 0, len(sources))
	for _, src := range sources {
		if src.Score >= e.scoreThreshold {
			grounded = append(grounded, src)
		}
	}

	e.logger.Info("ソース検索が完了",
		"conversationID", conv.ID,
		"mode", params.Mode,
		"retrieved", len(sources),
		"grounded", len(grounded),
	)

	// KB_ONLY: 根拠が閾値を超えない場合は生成をスキップして固定の拒否応答を返す
	// LLMのプロンプト遵守には依存せず、エンジン側で独立に閾値を強制する
	if params.Mode == ModeKBOnly && len(grounded) == 0 {
		e.completeTurn(ctx, conv, params, RefusalMessage, nil, events)
		return
	}

	var prompt string
	var turnSources []*retrieval.Source
	switch params.Mode {
	case ModeKBOnly:
		prompt = BuildKnowledgeOnlyPrompt(params.Content, grounded)
		turnSources = grounded
	case ModeHybrid:
		// HYBRIDは根拠が弱くても常に回答を試みる
		// 実際にコンテキストへ渡したソースのみを追跡用に添付する
		prompt = BuildHybridPrompt(params.Content, grounded)
		turnSources = grounded
	}

	content, err := e.generator.GenerateStream(ctx, prompt, func(delta string) error {
		if !e.emit(ctx, events, StreamEvent{Type: EventDelta, Delta: delta}) {
			// 読み手の切断: これ以上ストリームを消費しない
			return context.Canceled
		}
		return nil
	})
	if err != nil {
		e.logger.Warn("回答生成に失敗", "conversationID", conv.ID, "error", err)
		e.emit(ctx, events, StreamEvent{Type: EventError, Err: fmt.Errorf("回答生成に失敗: %w", err)})
		return
	}

	e.completeTurn(ctx, conv, params, content, turnSources, events)
}

// completeTurn はターンを永続化し、終端イベントを書き込む
// 拒否応答の場合はsourcesがnilで、Sourcesは空のまま確定する
func (e *Engine) completeTurn(
	ctx context.Context,
	conv *Conversation,
	params SendMessageParams,
	content string,
	sources []*retrieval.Source,
	events chan<- StreamEvent,
) {
	refs := make([]SourceRef, 0, len(sources))
	for _, src := range sources {
		refs = append(refs, SourceRef{
			ChunkID:       src.ChunkID,
			DocumentTitle: src.DocumentTitle,
			Score:         src.Score,
		})
	}

	// 拒否応答は断片イベントを1件だけ流す
	if sources == nil {
		if !e.emit(ctx, events, StreamEvent{Type: EventDelta, Delta: content}) {
			return
		}
	}

	if _, err := e.repository.CreateMessage(ctx, conv.ID, RoleUser, "", params.Content, nil); err != nil {
		e.emit(ctx, events, StreamEvent{Type: EventError, Err: fmt.Errorf("メッセージの保存に失敗: %w", err)})
		return
	}
	if _, err := e.repository.CreateMessage(ctx, conv.ID, RoleAssistant, params.Mode, content, refs); err != nil {
		e.emit(ctx, events, StreamEvent{Type: EventError, Err: fmt.Errorf("メッセージの保存に失敗: %w", err)})
		return
	}

	e.logger.Info("ターンが完了",
		"conversationID", conv.ID,
		"mode", params.Mode,
		"contentLength", len(content),
		"sources", len(refs),
	)

	e.emit(ctx, events, StreamEvent{Type: EventDone, Content: content, Sources: refs})
}

// emit はイベントを書き込む。コンテキストが打ち切られた場合はfalseを返す
func (e *Engine) emit(ctx context.Context, events chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
