package memmachine

import (
	"encoding/json"
	"strings"
)

// Memory 一条长期记忆
type Memory struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

// 文档镜像写入记忆服务时带此前缀，召回时跳过以免与文档重复
const documentMirrorPrefix = "[Document"

func decodeToolText(text string) any {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return map[string]any{}
	}
	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return map[string]any{"content": text}
	}
	return v
}

// candidates 依次取 memories、results，或顶层数组
func candidates(raw any) []any {
	switch v := raw.(type) {
	case []any:
		return v
	case map[string]any:
		if list, ok := v["memories"].([]any); ok {
			return list
		}
		if list, ok := v["results"].([]any); ok {
			return list
		}
	}
	return nil
}

// ParseMemories 把 search_memory 的返回展开为记忆条目
func ParseMemories(raw any) []Memory {
	items := candidates(raw)
	out := make([]Memory, 0, len(items))
	for _, item := range items {
		var m Memory
		switch v := item.(type) {
		case string:
			m = Memory{Content: v, Metadata: baseMetadata()}
		case map[string]any:
			m = Memory{Content: contentOf(v), Metadata: baseMetadata()}
			for k, fv := range v {
				if _, fixed := m.Metadata[k]; fixed || !isScalar(fv) {
					continue
				}
				m.Metadata[k] = fv
			}
		default:
			continue
		}
		if strings.TrimSpace(m.Content) == "" || strings.HasPrefix(m.Content, documentMirrorPrefix) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func baseMetadata() map[string]any {
	return map[string]any{"type": "memory", "source": "memmachine"}
}

func contentOf(item map[string]any) string {
	for _, key := range []string{"content", "text", "memory"} {
		if s, ok := item[key].(string); ok {
			return s
		}
	}
	b, err := json.Marshal(item)
	if err != nil {
		return ""
	}
	return string(b)
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, json.Number, float64, int, int64:
		return true
	}
	return false
}
