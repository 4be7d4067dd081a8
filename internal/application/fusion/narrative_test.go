package fusion

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestBuildNarrativeOrderAndLabels(t *testing.T) {
	chunks := []Chunk{
		{Content: "Customer: Ana Diaz\nSegment: VIP", Metadata: map[string]any{"source": "customers.csv"}, SourceKind: SourceDocument},
		{Content: "   ", Metadata: map[string]any{}, SourceKind: SourceDocument},
		{Content: "Ana prefers SMS", Metadata: map[string]any{}, SourceKind: SourceMemory},
		{Content: "Spring promo", Metadata: map[string]any{}, SourceKind: SourceDocument, Source: "campaigns"},
	}

	got := BuildNarrative(chunks, 1000)
	want := strings.Join([]string{
		"[Document: customers.csv] Customer: Ana Diaz Segment: VIP",
		"[Memory] Ana prefers SMS",
		"[Document: campaigns] Spring promo",
	}, ContextSeparator)
	assert.Equal(t, want, got)
}

func TestBuildNarrativeBudget(t *testing.T) {
	long := strings.Repeat("客户", 100)
	chunks := []Chunk{{Content: long, Metadata: map[string]any{}, SourceKind: SourceMemory}}

	got := BuildNarrative(chunks, 50)
	assert.True(t, strings.HasSuffix(got, "…"))
	assert.Equal(t, 51, utf8.RuneCountInString(got))
	assert.Equal(t, got, BuildNarrative(chunks, 50), "truncation is deterministic")
}

func TestBuildNarrativeEmpty(t *testing.T) {
	assert.Empty(t, BuildNarrative(nil, 100))
}
