package fusion

import (
	"strings"
)

const (
	// ContextSeparator 片段之间的分隔
	ContextSeparator = "\n\n---\n\n"

	// DefaultContextBudgetRunes 上下文总长度上限（按 rune 计）
	DefaultContextBudgetRunes = 12000
)

// BuildNarrative 按片段顺序拼接回答上下文并截断到 budget 个 rune
// 文档片段标注 [Document: 出处]，记忆片段标注 [Memory]；空内容跳过
// 超出预算时在末尾追加 "…"，结果只依赖输入，可复现
func BuildNarrative(chunks []Chunk, budget int) string {
	if len(chunks) == 0 {
		return ""
	}
	if budget <= 0 {
		budget = DefaultContextBudgetRunes
	}

	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		txt := compactOneLine(c.Content)
		if txt == "" {
			continue
		}
		parts = append(parts, chunkLabel(c)+" "+txt)
	}
	return truncateRunes(strings.Join(parts, ContextSeparator), budget)
}

func chunkLabel(c Chunk) string {
	if c.SourceKind == SourceMemory {
		return "[Memory]"
	}
	if src := c.SourceLabel(); src != "" {
		return "[Document: " + src + "]"
	}
	return "[Document]"
}

func compactOneLine(s string) string {
	out := strings.ReplaceAll(s, "\r\n", "\n")
	out = strings.ReplaceAll(out, "\r", "\n")
	out = strings.ReplaceAll(out, "\n", " ")
	out = strings.ReplaceAll(out, "\t", " ")
	out = strings.TrimSpace(out)
	for strings.Contains(out, "  ") {
		out = strings.ReplaceAll(out, "  ", " ")
	}
	return out
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return strings.TrimSpace(string(r[:max])) + "…"
}
