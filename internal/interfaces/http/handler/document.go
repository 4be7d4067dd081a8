package handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"ell-intel-api/internal/application/fusion"
	"ell-intel-api/internal/application/retrieval"
	"ell-intel-api/internal/interfaces/http/dto"
	"ell-intel-api/pkg/errors"
)

const (
	defaultSearchK   = 5
	defaultListLimit = 100
	maxListLimit     = 1000
)

// DocumentIndexer 文档写入与删除
type DocumentIndexer interface {
	Index(ctx context.Context, docs []retrieval.Document) (retrieval.IndexStats, error)
	DeleteSource(ctx context.Context, source string) error
}

// DocumentSearcher 文档检索与列表
type DocumentSearcher interface {
	Search(ctx context.Context, query string, k int) ([]fusion.Chunk, error)
	List(ctx context.Context, limit int) ([]fusion.Chunk, error)
}

// DocumentHandler 文档库处理器
type DocumentHandler struct {
	indexer  DocumentIndexer
	searcher DocumentSearcher
}

// NewDocumentHandler 创建文档库处理器
func NewDocumentHandler(indexer DocumentIndexer, searcher DocumentSearcher) *DocumentHandler {
	return &DocumentHandler{indexer: indexer, searcher: searcher}
}

// Add 写入文档
// @Router /v1/documents [post]
func (h *DocumentHandler) Add(c *gin.Context) {
	var req dto.AddDocumentsRequest
	if !bindJSON(c, &req) {
		return
	}
	if len(req.Metadatas) > 0 && len(req.Metadatas) != len(req.Texts) {
		writeError(c, errors.ErrInvalidParam.WithDetail(
			fmt.Sprintf("metadatas has %d items, texts has %d", len(req.Metadatas), len(req.Texts))))
		return
	}

	docs := make([]retrieval.Document, len(req.Texts))
	for i, text := range req.Texts {
		docs[i] = retrieval.Document{Source: req.Source, Content: text}
		if len(req.Metadatas) > 0 {
			docs[i].Metadata = req.Metadatas[i]
		}
	}

	stats, err := h.indexer.Index(c.Request.Context(), docs)
	if err != nil {
		writeError(c, err)
		return
	}
	dto.Created(c, dto.AddDocumentsResponse{
		IDs:       stats.IDs,
		Documents: stats.Documents,
		Chunks:    stats.Chunks,
		Skipped:   stats.Skipped,
	})
}

// Search 原始向量检索
// @Router /v1/documents/search [post]
func (h *DocumentHandler) Search(c *gin.Context) {
	var req dto.SearchDocumentsRequest
	if !bindJSON(c, &req) {
		return
	}
	k := req.K
	if k == 0 {
		k = defaultSearchK
	}

	chunks, err := h.searcher.Search(c.Request.Context(), req.Query, k)
	if err != nil {
		writeError(c, err)
		return
	}
	dto.Success(c, dto.NewDocumentList(chunks))
}

// List 列出已索引文档
// @Router /v1/documents [get]
func (h *DocumentHandler) List(c *gin.Context) {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxListLimit {
			writeError(c, errors.ErrInvalidParam.WithDetail(fmt.Sprintf("limit must be 1..%d", maxListLimit)))
			return
		}
		limit = n
	}

	chunks, err := h.searcher.List(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	dto.Success(c, dto.NewDocumentList(chunks))
}

// Delete 按来源删除
// @Router /v1/documents [delete]
func (h *DocumentHandler) Delete(c *gin.Context) {
	source := strings.TrimSpace(c.Query("source"))
	if source == "" {
		writeError(c, errors.ErrInvalidParam.WithDetail("source is required"))
		return
	}
	if err := h.indexer.DeleteSource(c.Request.Context(), source); err != nil {
		writeError(c, err)
		return
	}
	dto.Success(c, dto.DeleteDocumentsResponse{Source: source, Deleted: true})
}
