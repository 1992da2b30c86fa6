package openai

import (
	"context"
	"fmt"
	"time"

	"github.com/jinford/kb-chat/internal/core/conversation"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const (
	// DefaultChatModel はデフォルトで使用するOpenAIモデル
	DefaultChatModel = "gpt-4o-mini"
	// DefaultGenerateTimeout は生成ストリーム全体のデフォルトタイムアウト
	DefaultGenerateTimeout = 120 * time.Second
	// DefaultTemperature はデフォルトの生成温度
	DefaultTemperature = 0.2
)

// Generator は OpenAI Chat Completions APIのストリーミングを使用した回答生成実装
type Generator struct {
	client      openai.Client
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
}

type generatorOptions struct {
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
}

// GeneratorOption は Generator のオプション設定
type GeneratorOption func(*generatorOptions)

// WithChatModel はモデル名を上書きする
func WithChatModel(model string) GeneratorOption {
	return func(o *generatorOptions) {
		o.model = model
	}
}

// WithTemperature は生成温度を上書きする
func WithTemperature(temperature float64) GeneratorOption {
	return func(o *generatorOptions) {
		o.temperature = temperature
	}
}

// WithMaxTokens は最大生成トークン数を設定する
func WithMaxTokens(maxTokens int) GeneratorOption {
	return func(o *generatorOptions) {
		o.maxTokens = maxTokens
	}
}

// WithGenerateTimeout は生成ストリーム全体のタイムアウトを上書きする
func WithGenerateTimeout(timeout time.Duration) GeneratorOption {
	return func(o *generatorOptions) {
		o.timeout = timeout
	}
}

// NewGenerator は新しい Generator を作成する
func NewGenerator(apiKey string, opts ...GeneratorOption) (*Generator, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	options := generatorOptions{
		model:       DefaultChatModel,
		temperature: DefaultTemperature,
		timeout:     DefaultGenerateTimeout,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Generator{
		client:      openai.NewClient(option.WithAPIKey(apiKey)),
		model:       options.model,
		temperature: options.temperature,
		maxTokens:   options.maxTokens,
		timeout:     options.timeout,
	}, nil
}

// ModelName はモデル名を返す
func (g *Generator) ModelName() string {
	return g.model
}

// GenerateStream はプロンプトから回答をストリーミング生成する
// 増分断片をonDeltaへ順序どおりに渡し、完了時に連結済み全文を返す
// onDeltaがエラーを返した場合はストリームの消費を即座に停止する
func (g *Generator) GenerateStream(ctx context.Context, prompt string, onDelta func(delta string) error) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(g.temperature),
	}
	if g.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(g.maxTokens))
	}

	stream := g.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)

		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}

		if err := onDelta(delta); err != nil {
			// 読み手の切断: これ以上ストリームを消費しない
			return "", err
		}
	}

	if err := stream.Err(); err != nil {
		return "", fmt.Errorf("OpenAI streaming API call failed: %w", err)
	}

	if len(acc.Choices) == 0 {
		return "", fmt.Errorf("no completion choices returned")
	}

	return acc.Choices[0].Message.Content, nil
}

// インターフェース実装の確認
var _ conversation.Generator = (*Generator)(nil)
