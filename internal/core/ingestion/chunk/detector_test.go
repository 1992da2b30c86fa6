package chunk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectContentKind_ByFileName(t *testing.T) {
	assert.Equal(t, KindMarkdown, DetectContentKind("readme.md", "# Title\n\nbody"))
	assert.Equal(t, KindMarkdown, DetectContentKind("規程.markdown", "本文"))
	assert.Equal(t, KindPlain, DetectContentKind("notes.txt", "# っぽい行があってもtxtはプレーン"))
}

func TestDetectContentKind_InlineText(t *testing.T) {
	assert.Equal(t, KindMarkdown, DetectContentKind("", "# 休暇規程\n\n本文"))
	assert.Equal(t, KindMarkdown, DetectContentKind("", "序文\n\n## 第2章\n\n本文"))
	assert.Equal(t, KindPlain, DetectContentKind("", "見出しのないただのテキスト。\n複数行でも同じ。"))
}
