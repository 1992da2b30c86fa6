package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/jinford/kb-chat/internal/core/conversation"
)

// AskAction は単発の質問を送り、応答をストリーム表示するコマンドのアクション
//
// 使い捨ての会話を作成して1ターンだけ実行する。モードは--modeで切り替える。
func AskAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	question := cmd.String("question")

	projectID, err := uuid.Parse(cmd.String("project"))
	if err != nil {
		return fmt.Errorf("不正なプロジェクトID: %w", err)
	}

	mode, err := conversation.ParseMode(cmd.String("mode"))
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	conv, err := appCtx.Engine.CreateConversation(ctx, projectID, question)
	if err != nil {
		return err
	}

	events, err := appCtx.Engine.SendMessage(ctx, conversation.SendMessageParams{
		ConversationID: conv.ID,
		Content:        question,
		Mode:           mode,
	})
	if err != nil {
		return err
	}

	for ev := range events {
		switch ev.Type {
		case conversation.EventDelta:
			fmt.Print(ev.Delta)
		case conversation.EventDone:
			fmt.Println()
			if len(ev.Sources) > 0 {
				fmt.Fprintln(os.Stderr, "\n参照ソース:")
				for _, src := range ev.Sources {
					fmt.Fprintf(os.Stderr, "  - %s (score=%.4f)\n", src.DocumentTitle, src.Score)
				}
			}
		case conversation.EventError:
			return ev.Err
		}
	}
	return nil
}
