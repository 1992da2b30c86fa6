package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// Database設定
	Database DatabaseConfig

	// OpenAI設定（Embeddings + 回答生成）
	OpenAI OpenAIConfig

	// チャンク分割設定
	Chunker ChunkerConfig

	// インジェスションパイプライン設定
	Pipeline PipelineConfig

	// 検索・回答生成設定
	Retrieval RetrievalConfig

	// HTTPサーバ設定
	Server ServerConfig

	// ログ設定
	Log LogConfig
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
}

// OpenAIConfig はOpenAI API設定
type OpenAIConfig struct {
	APIKey             string
	EmbeddingModel     string
	EmbeddingDimension int
	ChatModel          string
	Temperature        float64
	MaxTokens          int
}

// ChunkerConfig はチャンク分割の設定
// 本番で使うべき値は経験的に調整する前提のため、すべて環境変数で上書き可能
type ChunkerConfig struct {
	TargetTokens  int // 目標トークン数
	MaxTokens     int // 最大トークン数
	MinTokens     int // 最小トークン数（これ未満の末尾断片は直前のチャンクへマージ）
	OverlapTokens int // オーバーラップトークン数（デフォルト0）
}

// PipelineConfig はインジェスションパイプラインの設定
type PipelineConfig struct {
	DocumentWorkerCount int // ドキュメント並行処理ワーカー数
	EmbeddingBatchSize  int // Embedding APIのバッチサイズ
}

// RetrievalConfig は検索と回答生成の設定
type RetrievalConfig struct {
	TopK int // 検索で返す上位件数

	// ScoreThreshold はKB_ONLYモードで回答を許可する最小類似度（0-1）
	// 低めに誤答するよりは回答拒否に倒す保守的な値をデフォルトとする
	ScoreThreshold float64
}

// ServerConfig はHTTPサーバ設定
type ServerConfig struct {
	Addr string
}

// LogConfig はログ出力の設定
type LogConfig struct {
	Level  string // "debug" / "info" / "warn" / "error"
	Format string // "json" / "text"
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "kbchat"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "kbchat"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvAsInt("DB_MAX_CONNS", 10),
		},
		OpenAI: OpenAIConfig{
			APIKey:             getEnv("OPENAI_API_KEY", ""),
			EmbeddingModel:     getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimension: getEnvAsInt("OPENAI_EMBEDDING_DIMENSION", 1536),
			ChatModel:          getEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
			Temperature:        getEnvAsFloat("OPENAI_TEMPERATURE", 0.2),
			MaxTokens:          getEnvAsInt("OPENAI_MAX_TOKENS", 1024),
		},
		Chunker: ChunkerConfig{
			TargetTokens:  getEnvAsInt("CHUNK_TARGET_TOKENS", 300),
			MaxTokens:     getEnvAsInt("CHUNK_MAX_TOKENS", 500),
			MinTokens:     getEnvAsInt("CHUNK_MIN_TOKENS", 40),
			OverlapTokens: getEnvAsInt("CHUNK_OVERLAP_TOKENS", 0),
		},
		Pipeline: PipelineConfig{
			DocumentWorkerCount: getEnvAsInt("PIPELINE_DOCUMENT_WORKERS", 4),
			EmbeddingBatchSize:  getEnvAsInt("PIPELINE_EMBEDDING_BATCH_SIZE", 100),
		},
		Retrieval: RetrievalConfig{
			TopK:           getEnvAsInt("RETRIEVAL_TOP_K", 5),
			ScoreThreshold: getEnvAsFloat("RETRIEVAL_SCORE_THRESHOLD", 0.35),
		},
		Server: ServerConfig{
			Addr: getEnv("SERVER_ADDR", ":8080"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat は環境変数を浮動小数点数として取得します
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
