package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jinford/kb-chat/internal/core/ingestion/chunk"
)

// ErrDocumentNotFound はドキュメントが存在しない場合のエラー
var ErrDocumentNotFound = errors.New("document not found")

// SubmitParams はドキュメント登録のパラメータ
type SubmitParams struct {
	ProjectID  uuid.UUID
	Title      string
	Content    string
	FileName   string // SourceTypeFileの場合のみ
	SourceType SourceType
}

// ProcessResult は一括処理の結果を表す
type ProcessResult struct {
	Processed int
	Failed    int
	Skipped   int
	Duration  time.Duration
}

// Service はドキュメント投入と処理のユースケースを提供する
type Service struct {
	repository Repository
	embedder   Embedder
	chunker    *chunk.TextChunker
	config     *PipelineConfig
	logger     *slog.Logger
	pipeline   *Pipeline
}

type serviceOptions struct {
	config *PipelineConfig
	logger *slog.Logger
}

// ServiceOption は Service のオプション設定
type ServiceOption func(*serviceOptions)

// WithLogger は Service にロガーを設定する
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// WithPipelineConfig はパイプライン設定を上書きする
func WithPipelineConfig(cfg *PipelineConfig) ServiceOption {
	return func(o *serviceOptions) {
		o.config = cfg
	}
}

// NewService は新しいServiceを作成する
func NewService(
	repository Repository,
	embedder Embedder,
	chunker *chunk.TextChunker,
	opts ...ServiceOption,
) *Service {
	options := serviceOptions{
		config: DefaultPipelineConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	if options.config == nil {
		options.config = DefaultPipelineConfig()
	}

	return &Service{
		repository: repository,
		embedder:   embedder,
		chunker:    chunker,
		config:     options.config,
		logger:     options.logger,
		pipeline:   NewPipeline(repository, embedder, chunker, options.config, options.logger),
	}
}

// Submit はドキュメントをPENDING状態で登録し、即座に返る
// パイプライン処理はProcessが呼ばれるまで開始しない
func (s *Service) Submit(ctx context.Context, params SubmitParams) (*Document, error) {
	if params.ProjectID == uuid.Nil {
		return nil, fmt.Errorf("projectID is required")
	}
	if params.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if params.Content == "" {
		return nil, fmt.Errorf("content is required")
	}
	if _, err := ParseSourceType(string(params.SourceType)); err != nil {
		return nil, err
	}

	doc, err := s.repository.CreateDocument(
		ctx,
		params.ProjectID,
		params.Title,
		params.Content,
		params.FileName,
		params.SourceType,
	)
	if err != nil {
		return nil, fmt.Errorf("ドキュメントの登録に失敗: %w", err)
	}

	s.logger.Info("ドキュメントを登録",
		"documentID", doc.ID,
		"projectID", doc.ProjectID,
		"title", doc.Title,
		"sourceType", doc.SourceType,
	)

	return doc, nil
}

// Process はドキュメントのインデックス化パイプラインを実行する
//
// 多重起動に対して冪等: 既にPROCESSINGの場合は何もせず正常終了する
// （CAS遷移で保護し、パイプライン全体を覆うロックは持たない）
// パイプライン内の失敗はドキュメントのFAILEDステータスに記録され、
// 呼び出し側へはエラーとして伝播しない
func (s *Service) Process(ctx context.Context, documentID uuid.UUID) error {
	docOpt, err := s.repository.GetDocumentByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("ドキュメントの取得に失敗: %w", err)
	}
	if docOpt.IsAbsent() {
		return ErrDocumentNotFound
	}
	doc := docOpt.MustGet()

	// PENDING/終端 → PROCESSING のCAS遷移
	// 同一ドキュメントへの同時トリガーはどちらか一方のみが通る
	acquired, err := s.repository.TryMarkProcessing(ctx, documentID)
	if err != nil {
		return fmt.Errorf("ステータス遷移に失敗: %w", err)
	}
	if !acquired {
		s.logger.Info("ドキュメントは処理中のためスキップ", "documentID", documentID)
		return nil
	}

	startTime := time.Now()
	s.logger.Info("ドキュメント処理を開始",
		"documentID", doc.ID,
		"title", doc.Title,
	)

	if err := s.pipeline.Run(ctx, doc); err != nil {
		s.logger.Warn("ドキュメント処理に失敗",
			"documentID", doc.ID,
			"error", err,
		)

		// 失敗の記録は呼び出し元のキャンセルに巻き込まれないようにする
		failCtx := context.WithoutCancel(ctx)
		if failErr := s.repository.FailDocument(failCtx, doc.ID, err.Error()); failErr != nil {
			return fmt.Errorf("失敗ステータスの記録に失敗: %w", failErr)
		}
		return nil
	}

	s.logger.Info("ドキュメント処理が完了",
		"documentID", doc.ID,
		"duration", time.Since(startTime),
	)

	return nil
}

// ProcessPending はプロジェクト配下の未処理ドキュメントをワーカープールで並行処理する
// 各ドキュメントの処理は独立しており、1件の失敗が他のドキュメントを妨げることはない
func (s *Service) ProcessPending(ctx context.Context, projectID uuid.UUID) (*ProcessResult, error) {
	startTime := time.Now()

	docs, err := s.repository.ListDocumentsByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("ドキュメント一覧の取得に失敗: %w", err)
	}

	pending := make([]*Document, 0, len(docs))
	for _, doc := range docs {
		if doc.Status == StatusPending {
			pending = append(pending, doc)
		}
	}

	if len(pending) == 0 {
		return &ProcessResult{Duration: time.Since(startTime)}, nil
	}

	docChan := make(chan *Document, len(pending))
	for _, doc := range pending {
		docChan <- doc
	}
	close(docChan)

	var mu sync.Mutex
	result := &ProcessResult{}

	workerCount := s.config.DocumentWorkerCount
	if workerCount <= 0 {
		workerCount = DefaultDocumentWorkerCount
	}

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go func() {
			defer wg.Done()
			for doc := range docChan {
				select {
				case <-ctx.Done():
					return
				default:
				}

				if err := s.Process(ctx, doc.ID); err != nil {
					s.logger.Warn("ドキュメント処理の起動に失敗",
						"documentID", doc.ID,
						"error", err,
					)
					mu.Lock()
					result.Skipped++
					mu.Unlock()
					continue
				}

				// 終端ステータスを確認して集計
				docOpt, err := s.repository.GetDocumentByID(ctx, doc.ID)
				mu.Lock()
				if err == nil && docOpt.IsPresent() && docOpt.MustGet().Status == StatusReady {
					result.Processed++
				} else {
					result.Failed++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	result.Duration = time.Since(startTime)

	s.logger.Info("一括処理が完了",
		"projectID", projectID,
		"processed", result.Processed,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"duration", result.Duration,
	)

	return result, nil
}

// Get はドキュメントを1件取得する
func (s *Service) Get(ctx context.Context, documentID uuid.UUID) (*Document, error) {
	docOpt, err := s.repository.GetDocumentByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("ドキュメントの取得に失敗: %w", err)
	}
	if docOpt.IsAbsent() {
		return nil, ErrDocumentNotFound
	}
	return docOpt.MustGet(), nil
}

// List はプロジェクト配下のドキュメント一覧を返す
func (s *Service) List(ctx context.Context, projectID uuid.UUID) ([]*Document, error) {
	if projectID == uuid.Nil {
		return nil, fmt.Errorf("projectID is required")
	}
	docs, err := s.repository.ListDocumentsByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("ドキュメント一覧の取得に失敗: %w", err)
	}
	return docs, nil
}

// Delete はドキュメントとそのチャンクを削除する
func (s *Service) Delete(ctx context.Context, documentID uuid.UUID) error {
	docOpt, err := s.repository.GetDocumentByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("ドキュメントの取得に失敗: %w", err)
	}
	if docOpt.IsAbsent() {
		return ErrDocumentNotFound
	}

	if err := s.repository.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("ドキュメントの削除に失敗: %w", err)
	}

	s.logger.Info("ドキュメントを削除", "documentID", documentID)
	return nil
}
