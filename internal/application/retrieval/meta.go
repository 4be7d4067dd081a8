package retrieval

import (
	"encoding/json"
	"strings"
)

const chunkMetaPrefix = "@@meta:"

// ChunkMeta 是写入到纯文本字段的结构化元信息。
// 仅 Milvus/chromem 这类只存文本的后端使用；不存在时应安全降级。
type ChunkMeta struct {
	Source   string         `json:"source,omitempty"`
	EntityID string         `json:"entity_id,omitempty"`
	Fields   map[string]any `json:"fields,omitempty"`
}

// EncodeChunkText 把元信息编码为首行头部
func EncodeChunkText(meta ChunkMeta, text string) string {
	b, _ := json.Marshal(meta)
	var sb strings.Builder
	sb.Grow(len(chunkMetaPrefix) + len(b) + 1 + len(text))
	sb.WriteString(chunkMetaPrefix)
	sb.Write(b)
	sb.WriteByte('\n')
	sb.WriteString(text)
	return sb.String()
}

// DecodeChunkText 拆出头部元信息与正文；数字以 json.Number 保留原始精度
func DecodeChunkText(textContent string) (ChunkMeta, string) {
	raw := strings.TrimSpace(textContent)
	if !strings.HasPrefix(raw, chunkMetaPrefix) {
		return ChunkMeta{}, raw
	}
	rest := strings.TrimPrefix(raw, chunkMetaPrefix)
	line, body, ok := strings.Cut(rest, "\n")
	if !ok {
		return ChunkMeta{}, raw
	}
	var meta ChunkMeta
	dec := json.NewDecoder(strings.NewReader(strings.TrimSpace(line)))
	dec.UseNumber()
	if err := dec.Decode(&meta); err != nil {
		return ChunkMeta{}, strings.TrimSpace(body)
	}
	return meta, strings.TrimSpace(body)
}
