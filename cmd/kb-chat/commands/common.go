package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jinford/kb-chat/internal/core/conversation"
	"github.com/jinford/kb-chat/internal/core/ingestion"
	"github.com/jinford/kb-chat/internal/core/ingestion/chunk"
	"github.com/jinford/kb-chat/internal/core/project"
	"github.com/jinford/kb-chat/internal/core/retrieval"
	"github.com/jinford/kb-chat/internal/infra/openai"
	"github.com/jinford/kb-chat/internal/infra/postgres"
	"github.com/jinford/kb-chat/internal/platform/logger"
	"github.com/jinford/kb-chat/pkg/config"
	"github.com/jinford/kb-chat/pkg/db"
)

// AppContext はコマンド実行に必要な共通コンテキストを保持する
type AppContext struct {
	Config   *config.Config
	Database *db.DB
	Logger   *slog.Logger

	Projects  *project.Service
	Documents *ingestion.Service
	Retriever *retrieval.Retriever
	Engine    *conversation.Engine
}

// NewAppContext は設定を読み込み、DBに接続して依存をすべて組み立てる
func NewAppContext(ctx context.Context, envFile string) (*AppContext, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	appLogger := logger.New(logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
	})

	database, err := db.New(ctx, db.ConnectionParams{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	embedder, err := openai.NewEmbedder(cfg.OpenAI.APIKey,
		openai.WithEmbeddingModel(cfg.OpenAI.EmbeddingModel),
		openai.WithEmbeddingDimension(cfg.OpenAI.EmbeddingDimension),
	)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("Embedderの初期化に失敗: %w", err)
	}

	generator, err := openai.NewGenerator(cfg.OpenAI.APIKey,
		openai.WithChatModel(cfg.OpenAI.ChatModel),
		openai.WithTemperature(cfg.OpenAI.Temperature),
		openai.WithMaxTokens(cfg.OpenAI.MaxTokens),
	)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("Generatorの初期化に失敗: %w", err)
	}

	chunker, err := chunk.NewTextChunker(&chunk.Config{
		TargetTokens:  cfg.Chunker.TargetTokens,
		MaxTokens:     cfg.Chunker.MaxTokens,
		MinTokens:     cfg.Chunker.MinTokens,
		OverlapTokens: cfg.Chunker.OverlapTokens,
	})
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("チャンカーの初期化に失敗: %w", err)
	}

	pool := database.Pool
	projectRepo := postgres.NewProjectRepository(pool)
	ingestionRepo := postgres.NewIngestionRepository(pool)
	retrievalRepo := postgres.NewRetrievalRepository(pool)
	conversationRepo := postgres.NewConversationRepository(pool)

	projects := project.NewService(projectRepo, project.WithLogger(appLogger))
	documents := ingestion.NewService(ingestionRepo, embedder, chunker,
		ingestion.WithLogger(appLogger),
		ingestion.WithPipelineConfig(&ingestion.PipelineConfig{
			DocumentWorkerCount: cfg.Pipeline.DocumentWorkerCount,
			EmbeddingBatchSize:  cfg.Pipeline.EmbeddingBatchSize,
		}),
	)
	retriever := retrieval.NewRetriever(retrievalRepo, embedder,
		retrieval.WithTopK(cfg.Retrieval.TopK),
		retrieval.WithRetrieverLogger(appLogger),
	)
	engine := conversation.NewEngine(conversationRepo, retriever, generator,
		conversation.WithEngineTopK(cfg.Retrieval.TopK),
		conversation.WithScoreThreshold(cfg.Retrieval.ScoreThreshold),
		conversation.WithEngineLogger(appLogger),
	)

	return &AppContext{
		Config:    cfg,
		Database:  database,
		Logger:    appLogger,
		Projects:  projects,
		Documents: documents,
		Retriever: retriever,
		Engine:    engine,
	}, nil
}

// Close はAppContextが保持するリソースをクリーンアップする
func (ac *AppContext) Close() {
	if ac.Database != nil {
		ac.Database.Close()
	}
}
