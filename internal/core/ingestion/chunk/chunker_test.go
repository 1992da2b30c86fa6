package chunk

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChunker(t *testing.T, cfg *Config) *TextChunker {
	t.Helper()
	chunker, err := NewTextChunker(cfg)
	require.NoError(t, err)
	return chunker
}

func TestNewTextChunker_ValidatesConfig(t *testing.T) {
	_, err := NewTextChunker(&Config{TargetTokens: 0, MaxTokens: 100})
	assert.Error(t, err)

	_, err = NewTextChunker(&Config{TargetTokens: 200, MaxTokens: 100})
	assert.Error(t, err)

	// nilはデフォルト設定で動く
	chunker, err := NewTextChunker(nil)
	require.NoError(t, err)
	assert.NotNil(t, chunker)
}

func TestChunk_EmptyContentFails(t *testing.T) {
	chunker := newTestChunker(t, nil)

	_, err := chunker.Chunk("", KindPlain)
	assert.Error(t, err)

	_, err = chunker.Chunk("   \n\n  ", KindPlain)
	assert.Error(t, err)
}

func TestChunk_Deterministic(t *testing.T) {
	chunker := newTestChunker(t, &Config{TargetTokens: 50, MaxTokens: 80, MinTokens: 5})

	var sb strings.Builder
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&sb, "第%d条 従業員は所定の手続きに従って休暇を申請しなければならない。\n\n", i+1)
	}
	content := sb.String()

	first, err := chunker.Chunk(content, KindPlain)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	// 同一入力は常に同一のチャンク列になる
	for i := 0; i < 3; i++ {
		again, err := chunker.Chunk(content, KindPlain)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestChunk_RespectsMaxTokens(t *testing.T) {
	cfg := &Config{TargetTokens: 50, MaxTokens: 80, MinTokens: 5}
	chunker := newTestChunker(t, cfg)

	// 1行の長大なテキストでも上限を超えるチャンクは作られない
	long := strings.Repeat("休暇申請の承認フローについては総務部に確認すること。", 100)
	chunks, err := chunker.Chunk(long, KindPlain)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	for i, c := range chunks {
		assert.LessOrEqual(t, chunker.CountTokens(c), cfg.MaxTokens, "chunk %d exceeds max tokens", i)
	}
}

func TestChunk_HeadingStartsNewChunk(t *testing.T) {
	chunker := newTestChunker(t, &Config{TargetTokens: 100, MaxTokens: 200, MinTokens: 5})

	content := `# 休暇規程

年次有給休暇は入社日から6ヶ月経過後に付与される。付与日数は勤続年数に応じて増加する。
休暇の取得には事前の申請が必要であり、承認は所属長が行う。繁忙期には時季変更権が行使される場合がある。

# 経費規程

出張旅費は実費精算とする。精算には領収書の添付が必須である。
交通費は最も経済的な経路で算定する。宿泊費には上限額が定められている。`

	chunks, err := chunker.Chunk(content, KindMarkdown)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 2)

	// 2つ目の見出しは先頭のチャンクに混ざらず、新しいチャンクの先頭に来る
	var expenseChunk string
	for _, c := range chunks {
		if strings.Contains(c, "# 経費規程") {
			expenseChunk = c
			break
		}
	}
	require.NotEmpty(t, expenseChunk)
	assert.True(t, strings.HasPrefix(expenseChunk, "# 経費規程"))
}

func TestChunk_ShortTailMergedIntoPrevious(t *testing.T) {
	cfg := &Config{TargetTokens: 60, MaxTokens: 100, MinTokens: 30}
	chunker := newTestChunker(t, cfg)

	body := strings.Repeat("就業規則の適用範囲は全従業員とする。", 20)
	content := body + "\n\n以上。"

	chunks, err := chunker.Chunk(content, KindPlain)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	// 末尾の短い断片は独立したチャンクにならない
	last := chunks[len(chunks)-1]
	if len(chunks) >= 2 {
		assert.GreaterOrEqual(t, chunker.CountTokens(last), cfg.MinTokens)
	}
	assert.Contains(t, last, "以上。")
}

func TestChunk_AllContentPreserved(t *testing.T) {
	chunker := newTestChunker(t, &Config{TargetTokens: 40, MaxTokens: 80, MinTokens: 5})

	paragraphs := []string{
		"年次有給休暇は20日まで繰り越しできる。",
		"育児休業は子が1歳に達するまで取得できる。",
		"介護休業は通算93日まで分割取得できる。",
		"慶弔休暇は事由発生から1週間以内に取得する。",
	}
	content := strings.Join(paragraphs, "\n\n")

	chunks, err := chunker.Chunk(content, KindPlain)
	require.NoError(t, err)

	joined := strings.Join(chunks, "\n\n")
	for _, p := range paragraphs {
		assert.Contains(t, joined, p)
	}
}

func TestChunk_CodeBlockNotSplitByHeadingMarker(t *testing.T) {
	chunker := newTestChunker(t, &Config{TargetTokens: 100, MaxTokens: 200, MinTokens: 5})

	content := "# 手順書\n\n以下を実行する。\n\n```\n# これはコメントであって見出しではない\necho hello\n```\n\n完了後に報告する。"

	chunks, err := chunker.Chunk(content, KindMarkdown)
	require.NoError(t, err)

	// コードブロック内の#行で分割されない
	joined := strings.Join(chunks, "\n\n")
	assert.Contains(t, joined, "# これはコメントであって見出しではない\necho hello")
}

func TestChunk_OverlapCarriesTailTokens(t *testing.T) {
	chunker := newTestChunker(t, &Config{TargetTokens: 30, MaxTokens: 60, MinTokens: 2, OverlapTokens: 10})

	var sb strings.Builder
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&sb, "第%d条 賃金は毎月25日に支払う。\n\n", i+1)
	}

	chunks, err := chunker.Chunk(sb.String(), KindPlain)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 2)

	// 後続チャンクの先頭ブロックは直前チャンクの末尾テキストそのもの
	carried := strings.Split(chunks[1], "\n\n")[0]
	assert.NotEmpty(t, carried)
	assert.True(t, strings.HasSuffix(chunks[0], carried))
}
