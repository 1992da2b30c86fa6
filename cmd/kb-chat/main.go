package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/jinford/kb-chat/cmd/kb-chat/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 構造化ログの設定
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	envFlag := &cli.StringFlag{
		Name:  "env",
		Usage: "環境変数ファイルパス",
		Value: ".env",
	}

	app := &cli.Command{
		Name:  "kb-chat",
		Usage: "テナント別ナレッジベースと根拠付きチャットのバックエンド",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "HTTP APIサーバを起動",
				Flags:  []cli.Flag{envFlag},
				Action: commands.ServeAction,
			},
			{
				Name:  "project",
				Usage: "プロジェクト管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "create",
						Usage: "プロジェクトを作成",
						Flags: []cli.Flag{
							envFlag,
							&cli.StringFlag{
								Name:     "tenant",
								Usage:    "テナントID",
								Required: true,
							},
							&cli.StringFlag{
								Name:     "name",
								Usage:    "プロジェクト名",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "description",
								Usage: "プロジェクトの説明",
							},
						},
						Action: commands.ProjectCreateAction,
					},
					{
						Name:  "list",
						Usage: "プロジェクト一覧を表示",
						Flags: []cli.Flag{
							envFlag,
							&cli.StringFlag{
								Name:     "tenant",
								Usage:    "テナントID",
								Required: true,
							},
						},
						Action: commands.ProjectListAction,
					},
				},
			},
			{
				Name:  "ingest",
				Usage: "ファイルをドキュメントとして登録して処理",
				Flags: []cli.Flag{
					envFlag,
					&cli.StringFlag{
						Name:     "project",
						Usage:    "プロジェクトID",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "file",
						Usage:    "取り込むファイルのパス",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "title",
						Usage: "ドキュメントのタイトル（省略時はファイル名）",
					},
				},
				Action: commands.IngestAction,
			},
			{
				Name:  "process",
				Usage: "PENDINGドキュメントを一括処理",
				Flags: []cli.Flag{
					envFlag,
					&cli.StringFlag{
						Name:     "project",
						Usage:    "プロジェクトID",
						Required: true,
					},
				},
				Action: commands.ProcessPendingAction,
			},
			{
				Name:  "search",
				Usage: "類似チャンクを検索",
				Flags: []cli.Flag{
					envFlag,
					&cli.StringFlag{
						Name:     "project",
						Usage:    "プロジェクトID",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "query",
						Usage:    "検索クエリ",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "top-k",
						Usage: "取得する上位件数",
						Value: 5,
					},
				},
				Action: commands.SearchAction,
			},
			{
				Name:  "ask",
				Usage: "ナレッジベースに質問",
				Flags: []cli.Flag{
					envFlag,
					&cli.StringFlag{
						Name:     "project",
						Usage:    "プロジェクトID",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "question",
						Usage:    "質問文",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "mode",
						Usage: "回答モード（KB_ONLY / HYBRID）",
						Value: "KB_ONLY",
					},
				},
				Action: commands.AskAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatalf("エラー: %v", err)
	}
}
