package retrieval

import "errors"

var (
	// ErrVectorDisabled 表示向量检索/索引能力未配置（向量库或 Embedder 不可用）。
	ErrVectorDisabled = errors.New("vector retrieval is disabled")
	// ErrVectorUnavailable 向量检索调用失败（embedding 或向量库），融合层据此整体失败
	ErrVectorUnavailable = errors.New("vector retrieval unavailable")
	// ErrEmptyEmbedding embedder 返回空结果或数量不符
	ErrEmptyEmbedding = errors.New("empty embedding result")
)
