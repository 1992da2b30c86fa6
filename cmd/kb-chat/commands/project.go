package commands

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/jinford/kb-chat/internal/core/project"
)

// ProjectCreateAction はプロジェクトを作成するコマンドのアクション
func ProjectCreateAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	tenantID, err := uuid.Parse(cmd.String("tenant"))
	if err != nil {
		return fmt.Errorf("不正なテナントID: %w", err)
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	p, err := appCtx.Projects.Create(ctx, project.CreateParams{
		TenantID:    tenantID,
		Name:        cmd.String("name"),
		Description: cmd.String("description"),
	})
	if err != nil {
		return err
	}

	fmt.Printf("プロジェクトを作成しました: %s (%s)\n", p.Name, p.ID)
	return nil
}

// ProjectListAction はプロジェクト一覧を表示するコマンドのアクション
func ProjectListAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	tenantID, err := uuid.Parse(cmd.String("tenant"))
	if err != nil {
		return fmt.Errorf("不正なテナントID: %w", err)
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	projects, err := appCtx.Projects.List(ctx, tenantID)
	if err != nil {
		return err
	}

	if len(projects) == 0 {
		fmt.Println("プロジェクトがありません")
		return nil
	}
	for _, p := range projects {
		fmt.Printf("%s  %s  %s\n", p.ID, p.CreatedAt.Format("2006-01-02 15:04"), p.Name)
	}
	return nil
}
