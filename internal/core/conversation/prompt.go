package conversation

import (
	"fmt"
	"strings"

	"github.com/jinford/kb-chat/internal/core/retrieval"
)

// RefusalMessage はKB_ONLYモードで十分な根拠が見つからない場合の固定応答
const RefusalMessage = "申し訳ありませんが、ナレッジベースにこの質問に回答できる情報が見つかりませんでした。関連する文書が登録されているかご確認ください。"

// BuildKnowledgeOnlyPrompt はKB_ONLYモードのプロンプトを構築する
// 提供したソーステキストのみから回答し、不足時はその旨を答えるよう明示的に指示する
// （閾値による拒否判定はエンジン側でも独立して行い、LLMの指示遵守には依存しない）
func BuildKnowledgeOnlyPrompt(query string, sources []*retrieval.Source) string {
	var sb strings.Builder

	sb.WriteString("あなたは社内ナレッジベースに基づいて回答するアシスタントです。\n")
	sb.WriteString("以下の参考文書の抜粋だけを根拠として、ユーザーの質問に正確かつ簡潔に回答してください。\n\n")

	sb.WriteString("## 回答のガイドライン\n")
	sb.WriteString("- 参考文書に含まれる情報のみを使用して回答してください\n")
	sb.WriteString("- 参考文書に答えがない場合は、推測せずに「ナレッジベースに情報がない」旨を述べてください\n")
	sb.WriteString("- 一般知識や参考文書の外にある情報を使ってはいけません\n\n")

	writeSources(&sb, sources)
	writeQuestion(&sb, query)

	return sb.String()
}

// BuildHybridPrompt はHYBRIDモードのプロンプトを構築する
// 参考文書は任意のコンテキストであり、一般知識での回答も許可する
func BuildHybridPrompt(query string, sources []*retrieval.Source) string {
	var sb strings.Builder

	sb.WriteString("あなたは社内ナレッジベースを参照できるアシスタントです。\n")
	sb.WriteString("以下の参考文書の抜粋が質問に関連する場合は優先的に使い、関連しない場合は一般知識で回答してください。\n\n")

	sb.WriteString("## 回答のガイドライン\n")
	sb.WriteString("- 参考文書に答えがある場合はその内容を優先してください\n")
	sb.WriteString("- 参考文書に答えがない場合でも、一般知識に基づいて回答して構いません\n\n")

	writeSources(&sb, sources)
	writeQuestion(&sb, query)

	return sb.String()
}

// writeSources は参考文書セクションを整形する
func writeSources(sb *strings.Builder, sources []*retrieval.Source) {
	sb.WriteString("## 参考文書\n")
	if len(sources) == 0 {
		sb.WriteString("(該当する文書はありません)\n\n")
		return
	}

	for i, src := range sources {
		sb.WriteString(fmt.Sprintf("### [抜粋 %d] %s (関連度: %.3f)\n", i+1, src.DocumentTitle, src.Score))
		sb.WriteString(src.Content)
		sb.WriteString("\n\n")
	}
}

// writeQuestion は質問と回答セクションを整形する
func writeQuestion(sb *strings.Builder, query string) {
	sb.WriteString("## ユーザーの質問\n")
	sb.WriteString(query)
	sb.WriteString("\n\n## 回答\n")
}
