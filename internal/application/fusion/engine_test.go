package fusion

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ell-intel-api/pkg/errors"
)

type fakeVector struct {
	mu     sync.Mutex
	chunks []Chunk
	err    error
	delay  time.Duration
	calls  int
	lastK  int
}

func (f *fakeVector) Search(ctx context.Context, _ string, k int) ([]Chunk, error) {
	f.mu.Lock()
	f.calls++
	f.lastK = k
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.chunks, f.err
}

type fakeMemory struct {
	chunks   []Chunk
	err      error
	delay    time.Duration
	calls    int
	identity string
}

func (f *fakeMemory) Recall(ctx context.Context, _ string, identity string) ([]Chunk, error) {
	f.calls++
	f.identity = identity
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.chunks, f.err
}

type fakeGenerator struct {
	answer  string
	err     error
	calls   int
	context string
}

func (f *fakeGenerator) Generate(_ context.Context, _ string, narrative string) (string, error) {
	f.calls++
	f.context = narrative
	return f.answer, f.err
}

func newTestEngine(v VectorRetriever, m MemoryRecaller, g AnswerGenerator) *Engine {
	return NewEngine(v, m, g, Options{
		DefaultK:      5,
		MaxK:          20,
		VectorTimeout: time.Second,
		MemoryTimeout: 50 * time.Millisecond,
		EntityIDField: "customer_id",
	})
}

func TestFuseConcreteScenario(t *testing.T) {
	vector := &fakeVector{chunks: []Chunk{
		doc("A", map[string]any{"id": "1", "spent": 5}),
		doc("B", map[string]any{"id": "1", "spent": nil}),
	}}
	memory := &fakeMemory{err: stderrors.New("session not established")}
	gen := &fakeGenerator{answer: "Customer 1 spent 5."}

	resp, err := newTestEngine(vector, memory, gen).Fuse(context.Background(), FuseInput{
		Query: "how much did customer 1 spend", K: 5, IncludeMemories: true, Identity: "u-1",
	})
	require.NoError(t, err)

	assert.True(t, resp.Degraded)
	require.Len(t, resp.Records, 1)
	assert.Equal(t, "1", resp.Records[0].EntityID)
	assert.Equal(t, String("1"), resp.Records[0].Field("id"))
	assert.Equal(t, Number(5), resp.Records[0].Field("spent"))
	assert.Equal(t, 1, resp.RecordCount())
	assert.Equal(t, 2, resp.ChunkCount())
	assert.Equal(t, "Customer 1 spent 5.", resp.Answer)
}

func TestFuseVectorFailureIsFatal(t *testing.T) {
	vector := &fakeVector{err: stderrors.New("connection refused")}
	memory := &fakeMemory{chunks: []Chunk{mem("m", nil)}}

	resp, err := newTestEngine(vector, memory, &fakeGenerator{answer: "x"}).Fuse(context.Background(), FuseInput{
		Query: "q", IncludeMemories: true, Identity: "u-1",
	})
	assert.Nil(t, resp)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrRetrievalUnavailable)
	assert.Equal(t, 503, errors.AsAppError(err).HTTPStatus)
}

func TestFuseMemoryTimeoutDegrades(t *testing.T) {
	vector := &fakeVector{chunks: []Chunk{doc("A", map[string]any{"customer_id": "C1"})}}
	memory := &fakeMemory{chunks: []Chunk{mem("late", nil)}, delay: time.Second}

	start := time.Now()
	resp, err := newTestEngine(vector, memory, &fakeGenerator{answer: "ok"}).Fuse(context.Background(), FuseInput{
		Query: "q", IncludeMemories: true, Identity: "u-1",
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.True(t, resp.Degraded)
	assert.Len(t, resp.RawChunks, 1)
	assert.Equal(t, SourceDocument, resp.RawChunks[0].SourceKind)
}

func TestFuseEmptyMemoryIsNotDegraded(t *testing.T) {
	vector := &fakeVector{chunks: []Chunk{doc("A", nil)}}
	memory := &fakeMemory{chunks: []Chunk{}}

	resp, err := newTestEngine(vector, memory, &fakeGenerator{answer: "ok"}).Fuse(context.Background(), FuseInput{
		Query: "q", IncludeMemories: true, Identity: "u-1",
	})
	require.NoError(t, err)
	assert.False(t, resp.Degraded)
	assert.Equal(t, 1, memory.calls)
}

func TestFuseSkipsMemoryWithoutIdentity(t *testing.T) {
	vector := &fakeVector{chunks: []Chunk{doc("A", nil)}}
	memory := &fakeMemory{err: stderrors.New("should not be called")}

	resp, err := newTestEngine(vector, memory, &fakeGenerator{answer: "ok"}).Fuse(context.Background(), FuseInput{
		Query: "q", IncludeMemories: true, Identity: "  ",
	})
	require.NoError(t, err)
	assert.False(t, resp.Degraded)
	assert.Zero(t, memory.calls)

	resp, err = newTestEngine(vector, memory, &fakeGenerator{answer: "ok"}).Fuse(context.Background(), FuseInput{
		Query: "q", IncludeMemories: false, Identity: "u-1",
	})
	require.NoError(t, err)
	assert.False(t, resp.Degraded)
	assert.Zero(t, memory.calls)
}

func TestFuseWithoutRecallerIsSkippedNotDegraded(t *testing.T) {
	vector := &fakeVector{chunks: []Chunk{doc("A", nil)}}

	resp, err := newTestEngine(vector, nil, &fakeGenerator{answer: "ok"}).Fuse(context.Background(), FuseInput{
		Query: "q", IncludeMemories: true, Identity: "u-1",
	})
	require.NoError(t, err)
	assert.False(t, resp.Degraded)
	assert.Len(t, resp.RawChunks, 1)
}

func TestFuseOrderingDocumentsThenMemories(t *testing.T) {
	vector := &fakeVector{chunks: []Chunk{
		doc("d1", map[string]any{"customer_id": "B"}),
		doc("d2", map[string]any{"customer_id": "A"}),
	}}
	memory := &fakeMemory{chunks: []Chunk{
		{Content: "m1", Metadata: map[string]any{"customer_id": "C"}},
		{Content: "m2", Metadata: map[string]any{"customer_id": "B", "channel": "sms"}},
	}}
	gen := &fakeGenerator{answer: "ok"}

	resp, err := newTestEngine(vector, memory, gen).Fuse(context.Background(), FuseInput{
		Query: "q", IncludeMemories: true, Identity: "u-1",
	})
	require.NoError(t, err)

	contents := make([]string, 0, len(resp.RawChunks))
	for _, c := range resp.RawChunks {
		contents = append(contents, c.Content)
	}
	assert.Equal(t, []string{"d1", "d2", "m1", "m2"}, contents)
	assert.Equal(t, SourceMemory, resp.RawChunks[2].SourceKind)

	ids := []string{resp.Records[0].EntityID, resp.Records[1].EntityID, resp.Records[2].EntityID}
	assert.Equal(t, []string{"B", "A", "C"}, ids)
	assert.Equal(t, String("sms"), resp.Records[0].Field("channel"))
	assert.Equal(t, "u-1", memory.identity)
	assert.Contains(t, gen.context, "[Memory] m2")
}

func TestFuseGenerationFailureFallsBack(t *testing.T) {
	vector := &fakeVector{chunks: []Chunk{doc("A", map[string]any{"customer_id": "C1"})}}

	for _, gen := range []*fakeGenerator{
		{err: stderrors.New("rate limited")},
		{answer: "   "},
	} {
		resp, err := newTestEngine(vector, nil, gen).Fuse(context.Background(), FuseInput{Query: "q"})
		require.NoError(t, err)
		assert.Equal(t, FallbackAnswer, resp.Answer)
		assert.Len(t, resp.Records, 1)
	}

	resp, err := newTestEngine(vector, nil, nil).Fuse(context.Background(), FuseInput{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, FallbackAnswer, resp.Answer)
}

func TestFuseNoChunksSkipsGeneration(t *testing.T) {
	gen := &fakeGenerator{answer: "should not be used"}
	resp, err := newTestEngine(&fakeVector{}, nil, gen).Fuse(context.Background(), FuseInput{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, NoContextAnswer, resp.Answer)
	assert.Zero(t, gen.calls)
	assert.NotNil(t, resp.Records)
}

func TestFuseSkipGeneration(t *testing.T) {
	gen := &fakeGenerator{answer: "unused"}
	resp, err := newTestEngine(&fakeVector{chunks: []Chunk{doc("A", nil)}}, nil, gen).Fuse(context.Background(), FuseInput{
		Query: "q", SkipGeneration: true,
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Answer)
	assert.Zero(t, gen.calls)
}

func TestFuseClampsK(t *testing.T) {
	vector := &fakeVector{}
	e := newTestEngine(vector, nil, nil)

	_, err := e.Fuse(context.Background(), FuseInput{Query: "q", K: 500})
	require.NoError(t, err)
	assert.Equal(t, 20, vector.lastK)

	_, err = e.Fuse(context.Background(), FuseInput{Query: "q", K: -1})
	require.NoError(t, err)
	assert.Equal(t, 5, vector.lastK)

	_, err = e.Fuse(context.Background(), FuseInput{Query: "q", K: 7})
	require.NoError(t, err)
	assert.Equal(t, 7, vector.lastK)
}

func TestFuseRejectsEmptyQuery(t *testing.T) {
	_, err := newTestEngine(&fakeVector{}, nil, nil).Fuse(context.Background(), FuseInput{Query: " \n"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidParam)
}

func TestFuseBranchesRunConcurrently(t *testing.T) {
	vector := &fakeVector{chunks: []Chunk{doc("A", nil)}, delay: 100 * time.Millisecond}
	memory := &fakeMemory{chunks: []Chunk{mem("m", nil)}, delay: 100 * time.Millisecond}
	e := NewEngine(vector, memory, nil, Options{MemoryTimeout: time.Second, VectorTimeout: time.Second})

	start := time.Now()
	resp, err := e.Fuse(context.Background(), FuseInput{Query: "q", IncludeMemories: true, Identity: "u"})
	require.NoError(t, err)
	assert.False(t, resp.Degraded)
	assert.Less(t, time.Since(start), 180*time.Millisecond)
}
