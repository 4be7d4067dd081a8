package fusion

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ell-intel-api/pkg/errors"
	"ell-intel-api/pkg/logger"
	"ell-intel-api/pkg/metrics"
	"ell-intel-api/pkg/tracer"
)

const (
	// FallbackAnswer 生成不可用时的固定回答
	FallbackAnswer = "No answer could be generated."
	// NoContextAnswer 两路均无片段时不调用生成
	NoContextAnswer = "No relevant context found."
)

// Options 融合参数
type Options struct {
	DefaultK           int
	MaxK               int
	VectorTimeout      time.Duration
	MemoryTimeout      time.Duration
	GenerationTimeout  time.Duration
	ContextBudgetRunes int
	// EntityIDField 实体 ID 字段，缺失时回退到 "id"
	EntityIDField string
}

func (o *Options) withDefaults() {
	if o.MaxK <= 0 {
		o.MaxK = 20
	}
	if o.DefaultK <= 0 || o.DefaultK > o.MaxK {
		o.DefaultK = min(5, o.MaxK)
	}
	if o.VectorTimeout <= 0 {
		o.VectorTimeout = 8 * time.Second
	}
	if o.MemoryTimeout <= 0 {
		o.MemoryTimeout = 3 * time.Second
	}
	if o.GenerationTimeout <= 0 {
		o.GenerationTimeout = 30 * time.Second
	}
	if o.ContextBudgetRunes <= 0 {
		o.ContextBudgetRunes = DefaultContextBudgetRunes
	}
	if strings.TrimSpace(o.EntityIDField) == "" {
		o.EntityIDField = "customer_id"
	}
}

// FuseInput 一次融合的输入
type FuseInput struct {
	Query           string
	K               int
	IncludeMemories bool
	Identity        string

	// SkipGeneration 只检索与合并，Answer 留空
	SkipGeneration bool
}

// Engine 上下文融合引擎
type Engine struct {
	vector    VectorRetriever
	memory    MemoryRecaller
	generator AnswerGenerator
	opts      Options
	idFields  []string
}

// NewEngine 创建融合引擎；memory 与 generator 可为 nil
func NewEngine(vector VectorRetriever, memory MemoryRecaller, generator AnswerGenerator, opts Options) *Engine {
	opts.withDefaults()
	idFields := []string{opts.EntityIDField}
	if opts.EntityIDField != "id" {
		idFields = append(idFields, "id")
	}
	return &Engine{
		vector:    vector,
		memory:    memory,
		generator: generator,
		opts:      opts,
		idFields:  idFields,
	}
}

// Options 返回生效的参数
func (e *Engine) Options() Options { return e.opts }

// ClampK k<=0 取默认值，超过上限截断到上限；从不报错
func (e *Engine) ClampK(k int) int {
	if k <= 0 {
		return e.opts.DefaultK
	}
	if k > e.opts.MaxK {
		return e.opts.MaxK
	}
	return k
}

type branchResult struct {
	chunks []Chunk
	err    error
}

// Fuse 并发召回文档与记忆，合并为 FusedResponse
// 只有向量检索失败会返回错误（RetrievalUnavailable）；记忆失败置 degraded，生成失败使用固定回答
func (e *Engine) Fuse(ctx context.Context, in FuseInput) (*FusedResponse, error) {
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return nil, errors.ErrInvalidParam.WithDetail("query is required")
	}
	if e == nil || e.vector == nil {
		return nil, errors.ErrRetrievalUnavailable.WithDetail("vector retriever is not configured")
	}
	k := e.ClampK(in.K)
	identity := strings.TrimSpace(in.Identity)
	wantMemory := in.IncludeMemories && identity != ""

	ctx, span := tracer.Start(ctx, "fusion.Fuse", trace.WithAttributes(
		attribute.Int("fusion.k", k),
		attribute.Bool("fusion.include_memories", wantMemory),
	))
	defer span.End()
	start := time.Now()

	// 提前返回时取消仍在进行的分支
	fanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	vecCh := make(chan branchResult, 1)
	go func() {
		bctx, bcancel := context.WithTimeout(fanCtx, e.opts.VectorTimeout)
		defer bcancel()
		bctx, bspan := tracer.Start(bctx, "fusion.vector")
		defer bspan.End()
		chunks, err := e.vector.Search(bctx, query, k)
		tracer.RecordError(bspan, err)
		vecCh <- branchResult{chunks: chunks, err: err}
	}()

	var memCh chan branchResult
	if wantMemory && e.memory != nil {
		memCh = make(chan branchResult, 1)
		go func() {
			bctx, bcancel := context.WithTimeout(fanCtx, e.opts.MemoryTimeout)
			defer bcancel()
			bctx, bspan := tracer.Start(bctx, "fusion.memory")
			defer bspan.End()
			chunks, err := e.memory.Recall(bctx, query, identity)
			tracer.RecordError(bspan, err)
			memCh <- branchResult{chunks: chunks, err: err}
		}()
	}

	vr := <-vecCh
	if vr.err != nil {
		tracer.RecordError(span, vr.err)
		metrics.FusionTotal.WithLabelValues("failed").Inc()
		logger.Error(ctx, "vector retrieval failed", vr.err, "k", k)
		return nil, errors.Wrap(vr.err, errors.CodeRetrievalUnavailable, "vector retrieval unavailable")
	}

	degraded := false
	var memChunks []Chunk
	switch {
	case memCh != nil:
		mr := <-memCh
		if mr.err != nil {
			degraded = true
			logger.Warn(ctx, "memory recall failed, continuing with documents only", "error", mr.err.Error())
		} else {
			memChunks = mr.chunks
		}
	case wantMemory:
		// 未配置记忆服务按跳过处理，不算降级
		logger.Debug(ctx, "memory recall requested but no recaller configured")
	}

	chunks := make([]Chunk, 0, len(vr.chunks)+len(memChunks))
	for _, c := range vr.chunks {
		chunks = append(chunks, normalizeChunk(c, SourceDocument))
	}
	for _, c := range memChunks {
		chunks = append(chunks, normalizeChunk(c, SourceMemory))
	}

	records, stats := MergeRecords(chunks, e.idFields)
	if stats.MalformedFields > 0 {
		logger.Debug(ctx, "dropped malformed metadata fields", "count", stats.MalformedFields)
	}

	resp := &FusedResponse{
		Query:     query,
		Records:   records,
		RawChunks: chunks,
		Degraded:  degraded,
	}

	if !in.SkipGeneration {
		if len(chunks) == 0 {
			resp.Answer = NoContextAnswer
		} else {
			resp.Answer = e.generate(ctx, query, BuildNarrative(chunks, e.opts.ContextBudgetRunes))
		}
	}

	status := "ok"
	if degraded {
		status = "degraded"
	}
	metrics.FusionTotal.WithLabelValues(status).Inc()
	metrics.FusionDuration.WithLabelValues(strconv.FormatBool(!in.SkipGeneration)).Observe(time.Since(start).Seconds())
	metrics.FusionRecords.Observe(float64(len(records)))
	span.SetAttributes(
		attribute.Int("fusion.records", len(records)),
		attribute.Int("fusion.chunks", len(chunks)),
		attribute.Bool("fusion.degraded", degraded),
	)

	return resp, nil
}

// generate 调用回答生成；任何失败都回落到 FallbackAnswer
func (e *Engine) generate(ctx context.Context, query, narrative string) string {
	if e.generator == nil {
		return FallbackAnswer
	}
	gctx, cancel := context.WithTimeout(ctx, e.opts.GenerationTimeout)
	defer cancel()
	gctx, span := tracer.Start(gctx, "fusion.generate")
	defer span.End()

	answer, err := e.generator.Generate(gctx, query, narrative)
	if err != nil {
		tracer.RecordError(span, err)
		logger.Warn(ctx, "answer generation failed, using fallback", "error", err.Error())
		return FallbackAnswer
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		logger.Warn(ctx, "answer generation returned empty text, using fallback")
		return FallbackAnswer
	}
	return answer
}

func normalizeChunk(c Chunk, kind SourceKind) Chunk {
	c.SourceKind = kind
	if c.Metadata == nil {
		c.Metadata = map[string]any{}
	}
	return c
}
