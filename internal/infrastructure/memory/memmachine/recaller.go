package memmachine

import (
	"context"
	"strings"

	"ell-intel-api/internal/application/fusion"
)

const defaultRecallLimit = 3

// Searcher 记忆检索能力（Client 实现）
type Searcher interface {
	SearchMemories(ctx context.Context, userID, query string, limit int) ([]Memory, error)
}

// Recaller 把记忆检索结果转为融合片段，实现 fusion.MemoryRecaller
type Recaller struct {
	searcher Searcher
	limit    int
}

var _ fusion.MemoryRecaller = (*Recaller)(nil)

func NewRecaller(searcher Searcher, limit int) *Recaller {
	if limit <= 0 {
		limit = defaultRecallLimit
	}
	return &Recaller{searcher: searcher, limit: limit}
}

// Recall identity 为空时使用客户端默认用户
func (r *Recaller) Recall(ctx context.Context, query string, identity string) ([]fusion.Chunk, error) {
	if r == nil || r.searcher == nil {
		return nil, ErrMemoryUnavailable
	}
	memories, err := r.searcher.SearchMemories(ctx, strings.TrimSpace(identity), query, r.limit)
	if err != nil {
		return nil, err
	}

	out := make([]fusion.Chunk, 0, len(memories))
	for _, m := range memories {
		c := fusion.NewChunk(fusion.SourceMemory, m.Content, m.Metadata)
		c.Source = "memmachine"
		out = append(out, c)
	}
	return out, nil
}
