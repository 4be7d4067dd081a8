package fusion

import "context"

// VectorRetriever 文档向量检索（主来源），失败即整次融合失败
type VectorRetriever interface {
	Search(ctx context.Context, query string, k int) ([]Chunk, error)
}

// MemoryRecaller 长期记忆召回（增强来源），失败只导致降级
// 成功但为空与失败必须可区分：失败返回 error
type MemoryRecaller interface {
	Recall(ctx context.Context, query string, identity string) ([]Chunk, error)
}

// AnswerGenerator 由问题与上下文生成回答
type AnswerGenerator interface {
	Generate(ctx context.Context, query string, context string) (string, error)
}

// TurnRecorder 记录一轮问答，用于回写长期记忆
type TurnRecorder interface {
	RecordTurn(ctx context.Context, userID, query, answer string) error
}
