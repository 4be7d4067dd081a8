package dto

import (
	"ell-intel-api/internal/application/fusion"
)

// AddDocumentsRequest 批量写入文档
type AddDocumentsRequest struct {
	Texts []string `json:"texts" binding:"required,min=1,max=1000"`
	// Metadatas 为空或与 Texts 等长
	Metadatas []map[string]any `json:"metadatas,omitempty"`
	Source    string           `json:"source,omitempty" binding:"max=256"`
}

// SearchDocumentsRequest 原始向量检索
type SearchDocumentsRequest struct {
	Query string `json:"query" binding:"required,max=5000"`
	K     int    `json:"k" binding:"omitempty,min=1,max=50"`
}

// AddDocumentsResponse 写入结果
type AddDocumentsResponse struct {
	IDs       []string `json:"ids"`
	Documents int      `json:"documents"`
	Chunks    int      `json:"chunks"`
	Skipped   int      `json:"skipped"`
}

// DocumentListResponse 检索/列表结果
type DocumentListResponse struct {
	Documents []fusion.Chunk `json:"documents"`
	Count     int            `json:"count"`
}

// NewDocumentList 构造文档列表响应
func NewDocumentList(chunks []fusion.Chunk) *DocumentListResponse {
	if chunks == nil {
		chunks = []fusion.Chunk{}
	}
	return &DocumentListResponse{Documents: chunks, Count: len(chunks)}
}

// DeleteDocumentsResponse 删除结果
type DeleteDocumentsResponse struct {
	Source  string `json:"source"`
	Deleted bool   `json:"deleted"`
}
