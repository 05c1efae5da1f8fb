package dispatch

import (
	"github.com/xiaobo-yang/pdf-chat/internal/models"
)

// TranslatePrefix is prepended to text for translate requests
const TranslatePrefix = "请将以下文本翻译成中文：\n"

// AnalyzePrefix is prepended to text for analyze requests
const AnalyzePrefix = `请解析以下文本的含义，并从以下几个方面进行分析：
1. 主要内容
2. 关键概念
3. 重要观点
4. 相关背景（如果有）

文本：`

// BuildPrompt returns the user message content for a request kind.
// Chat requests pass text through unchanged.
func BuildPrompt(kind models.RequestKind, text string) string {
	switch kind {
	case models.KindTranslate:
		return TranslatePrefix + text
	case models.KindAnalyze:
		return AnalyzePrefix + text
	}
	return text
}
