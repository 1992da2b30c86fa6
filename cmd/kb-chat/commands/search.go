package commands

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"
)

// SearchAction はプロジェクトスコープの類似チャンク検索コマンドのアクション
func SearchAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	query := cmd.String("query")
	topK := int(cmd.Int("top-k"))

	projectID, err := uuid.Parse(cmd.String("project"))
	if err != nil {
		return fmt.Errorf("不正なプロジェクトID: %w", err)
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	sources, err := appCtx.Retriever.Retrieve(ctx, projectID, query, topK)
	if err != nil {
		return err
	}

	if len(sources) == 0 {
		fmt.Println("該当するチャンクが見つかりませんでした")
		return nil
	}

	for i, src := range sources {
		fmt.Printf("--- [%d] %s #%d (score=%.4f)\n", i+1, src.DocumentTitle, src.Seq, src.Score)
		fmt.Println(src.Content)
		fmt.Println()
	}
	return nil
}
