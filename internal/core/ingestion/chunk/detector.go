package chunk

import (
	"strings"

	"github.com/go-enry/go-enry/v2"
)

// ContentKind はチャンク分割方針を決めるコンテンツ種別
type ContentKind string

const (
	// KindMarkdown は見出し構造を持つMarkdown文書
	KindMarkdown ContentKind = "markdown"
	// KindPlain は構造を仮定しないプレーンテキスト
	KindPlain ContentKind = "plain"
)

// DetectContentKind はファイル名とコンテンツからコンテンツ種別を判定します
// アップロードファイルはenryの言語判定を使い、インラインテキストは見出し記法の有無で判定する
func DetectContentKind(fileName, content string) ContentKind {
	if fileName != "" {
		if lang := enry.GetLanguage(fileName, []byte(content)); lang == "Markdown" {
			return KindMarkdown
		}
		return KindPlain
	}

	// インラインテキスト: 行頭の見出し記法があればMarkdownとして扱う
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") ||
			strings.HasPrefix(trimmed, "## ") ||
			strings.HasPrefix(trimmed, "### ") {
			return KindMarkdown
		}
	}
	return KindPlain
}
