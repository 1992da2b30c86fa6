package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/jinford/kb-chat/internal/core/ingestion"
)

// IngestAction はファイルをドキュメントとして登録し、その場で処理するコマンドのアクション
func IngestAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	filePath := cmd.String("file")

	projectID, err := uuid.Parse(cmd.String("project"))
	if err != nil {
		return fmt.Errorf("不正なプロジェクトID: %w", err)
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("ファイルの読み込みに失敗: %w", err)
	}

	title := cmd.String("title")
	if title == "" {
		title = filepath.Base(filePath)
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	doc, err := appCtx.Documents.Submit(ctx, ingestion.SubmitParams{
		ProjectID:  projectID,
		Title:      title,
		Content:    string(content),
		FileName:   filepath.Base(filePath),
		SourceType: ingestion.SourceTypeFile,
	})
	if err != nil {
		return err
	}

	fmt.Printf("ドキュメントを登録しました: %s (%s)\n", doc.Title, doc.ID)

	if err := appCtx.Documents.Process(ctx, doc.ID); err != nil {
		return err
	}

	processed, err := appCtx.Documents.Get(ctx, doc.ID)
	if err != nil {
		return err
	}
	switch processed.Status {
	case ingestion.StatusReady:
		fmt.Printf("処理が完了しました: %d チャンク\n", processed.ChunkCount)
	case ingestion.StatusFailed:
		msg := ""
		if processed.ErrorMessage != nil {
			msg = *processed.ErrorMessage
		}
		return fmt.Errorf("処理に失敗しました: %s", msg)
	default:
		fmt.Printf("ステータス: %s\n", processed.Status)
	}
	return nil
}

// ProcessPendingAction はプロジェクト配下のPENDINGドキュメントを一括処理するコマンドのアクション
func ProcessPendingAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	projectID, err := uuid.Parse(cmd.String("project"))
	if err != nil {
		return fmt.Errorf("不正なプロジェクトID: %w", err)
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	result, err := appCtx.Documents.ProcessPending(ctx, projectID)
	if err != nil {
		return err
	}

	fmt.Printf("処理完了: 成功=%d 失敗=%d スキップ=%d 所要時間=%s\n",
		result.Processed, result.Failed, result.Skipped, result.Duration)
	return nil
}
