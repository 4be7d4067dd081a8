package retrieval

// Document 待索引的原始文档（一行客户数据或一段自由文本）
type Document struct {
	// Source 文档来源标识，重复索引同一 Source 会先删除旧切片
	Source   string         `json:"source"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// IndexStats 一次索引的统计
type IndexStats struct {
	IDs       []string `json:"ids"`
	Documents int      `json:"documents"`
	Chunks    int      `json:"chunks"`
	Skipped   int      `json:"skipped"`
}
