package chunk

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Config はチャンク分割の設定
type Config struct {
	TargetTokens  int // 目標トークン数
	MaxTokens     int // 最大トークン数（単一チャンクの上限）
	MinTokens     int // 最小トークン数（これ未満の末尾断片は直前のチャンクへマージ）
	OverlapTokens int // チャンク間のオーバーラップトークン数（デフォルト0）
}

// DefaultConfig はデフォルトのチャンク設定を返す
func DefaultConfig() *Config {
	return &Config{
		TargetTokens:  300,
		MaxTokens:     500,
		MinTokens:     40,
		OverlapTokens: 0,
	}
}

// TextChunker は社内文書（規程・手順書等）のテキストを段落・見出し境界で分割する
// 同一入力に対して常に同一のチャンク列を返す（再処理とテストの再現性に必須）
type TextChunker struct {
	encoder *tiktoken.Tiktoken
	cfg     *Config
}

// NewTextChunker は新しいTextChunkerを作成します
func NewTextChunker(cfg *Config) (*TextChunker, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.MaxTokens <= 0 || cfg.TargetTokens <= 0 {
		return nil, fmt.Errorf("invalid chunker config: target=%d max=%d", cfg.TargetTokens, cfg.MaxTokens)
	}
	if cfg.TargetTokens > cfg.MaxTokens {
		return nil, fmt.Errorf("target tokens (%d) must not exceed max tokens (%d)", cfg.TargetTokens, cfg.MaxTokens)
	}

	// cl100k_baseエンコーダを使用（text-embedding-3-smallと互換）
	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoder: %w", err)
	}

	return &TextChunker{
		encoder: encoder,
		cfg:     cfg,
	}, nil
}

// Chunk はテキストを順序付きのチャンク列に分割します
// 見出し・段落境界を優先し、最大トークン数を超える段落のみ行・トークン単位で分割する
func (c *TextChunker) Chunk(content string, kind ContentKind) ([]string, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("content is empty")
	}

	blocks := splitBlocks(content, kind)

	var chunks []string
	var current []string
	currentTokens := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, strings.Join(current, "\n\n"))
		current = nil
		currentTokens = 0
	}

	for _, block := range blocks {
		blockTokens := c.countTokens(block.text)

		// 単体で上限を超える段落は行・トークン単位で分割する
		if blockTokens > c.cfg.MaxTokens {
			flush()
			for _, part := range c.splitOversized(block.text) {
				chunks = append(chunks, part)
			}
			continue
		}

		// 見出しは新しいチャンクの先頭に置く
		startsNew := block.heading && currentTokens >= c.cfg.MinTokens

		if startsNew || (currentTokens > 0 && currentTokens+blockTokens > c.cfg.TargetTokens) {
			flush()
			if c.cfg.OverlapTokens > 0 && len(chunks) > 0 {
				if tail := c.overlapTail(chunks[len(chunks)-1]); tail != "" {
					current = append(current, tail)
					currentTokens = c.countTokens(tail)
				}
			}
		}

		current = append(current, block.text)
		currentTokens += blockTokens
	}
	flush()

	// 末尾の短い断片は独立させず直前のチャンクへマージする
	if len(chunks) >= 2 {
		last := chunks[len(chunks)-1]
		if c.countTokens(last) < c.cfg.MinTokens {
			chunks[len(chunks)-2] = chunks[len(chunks)-2] + "\n\n" + last
			chunks = chunks[:len(chunks)-1]
		}
	}

	return chunks, nil
}

// CountTokens はテキストのトークン数をカウントします
func (c *TextChunker) CountTokens(text string) int {
	return c.countTokens(text)
}

func (c *TextChunker) countTokens(text string) int {
	return len(c.encoder.Encode(text, nil, nil))
}

// splitOversized は最大トークン数を超える段落を行単位で分割します
// 単一行が上限を超える場合のみトークン窓で機械的に切る
func (c *TextChunker) splitOversized(text string) []string {
	var parts []string
	var current []string
	currentTokens := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		parts = append(parts, strings.Join(current, "\n"))
		current = nil
		currentTokens = 0
	}

	for _, line := range strings.Split(text, "\n") {
		lineTokens := c.countTokens(line)

		if lineTokens > c.cfg.MaxTokens {
			flush()
			parts = append(parts, c.splitByTokenWindow(line)...)
			continue
		}

		if currentTokens > 0 && currentTokens+lineTokens > c.cfg.MaxTokens {
			flush()
		}
		current = append(current, line)
		currentTokens += lineTokens
	}
	flush()

	// 分割で生じた末尾の短い断片も直前へマージ
	if len(parts) >= 2 {
		last := parts[len(parts)-1]
		if c.countTokens(last) < c.cfg.MinTokens {
			parts[len(parts)-2] = parts[len(parts)-2] + "\n" + last
			parts = parts[:len(parts)-1]
		}
	}

	return parts
}

// splitByTokenWindow は改行を含まない長大な行をトークン窓で分割します
func (c *TextChunker) splitByTokenWindow(line string) []string {
	tokens := c.encoder.Encode(line, nil, nil)
	var parts []string
	for start := 0; start < len(tokens); start += c.cfg.MaxTokens {
		end := start + c.cfg.MaxTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		parts = append(parts, c.encoder.Decode(tokens[start:end]))
	}
	return parts
}

// overlapTail は直前チャンクの末尾からオーバーラップ分のテキストを取り出します
func (c *TextChunker) overlapTail(prev string) string {
	tokens := c.encoder.Encode(prev, nil, nil)
	if len(tokens) <= c.cfg.OverlapTokens {
		return prev
	}
	return c.encoder.Decode(tokens[len(tokens)-c.cfg.OverlapTokens:])
}

// block は分割単位となる段落または見出し付きセクション断片
type block struct {
	text    string
	heading bool
}

// splitBlocks はテキストを段落ブロックの列に分割します
// Markdownの場合は見出し行で必ずブロック境界を作る
func splitBlocks(content string, kind ContentKind) []block {
	lines := strings.Split(content, "\n")

	var blocks []block
	var current []string
	currentHeading := false
	inCodeBlock := false

	flush := func() {
		if len(current) == 0 {
			return
		}
		text := strings.TrimRight(strings.Join(current, "\n"), " \t\n")
		if strings.TrimSpace(text) != "" {
			blocks = append(blocks, block{text: text, heading: currentHeading})
		}
		current = nil
		currentHeading = false
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		// コードブロック内は見出し・空行による分割を行わない
		if kind == KindMarkdown && strings.HasPrefix(trimmed, "```") {
			inCodeBlock = !inCodeBlock
			current = append(current, line)
			continue
		}
		if inCodeBlock {
			current = append(current, line)
			continue
		}

		// 空行は段落境界
		if trimmed == "" {
			flush()
			continue
		}

		// Markdownの見出し行は新しいブロックを開始する
		if kind == KindMarkdown && strings.HasPrefix(trimmed, "#") {
			flush()
			current = append(current, line)
			currentHeading = true
			continue
		}

		current = append(current, line)
	}
	flush()

	return blocks
}
