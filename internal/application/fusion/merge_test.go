package fusion

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaultIDFields = []string{"customer_id", "id"}

func doc(content string, meta map[string]any) Chunk {
	return NewChunk(SourceDocument, content, meta)
}

func mem(content string, meta map[string]any) Chunk {
	return NewChunk(SourceMemory, content, meta)
}

func TestMergeLastWriteWins(t *testing.T) {
	records, _ := MergeRecords([]Chunk{
		doc("C1", map[string]any{"customer_id": "E", "total_spent": 10}),
		doc("C2", map[string]any{"customer_id": "E", "total_spent": 20}),
	}, defaultIDFields)

	require.Len(t, records, 1)
	spent, ok := records[0].Field("total_spent").Float()
	require.True(t, ok)
	assert.Equal(t, 20.0, spent)
	assert.Equal(t, 2, records[0].ContributingChunks)
}

func TestMergeMissingIsNotZero(t *testing.T) {
	records, _ := MergeRecords([]Chunk{
		doc("A", map[string]any{"customer_id": "E", "total_spent": nil, "churn_risk_score": math.NaN()}),
	}, defaultIDFields)

	require.Len(t, records, 1)
	_, present := records[0].Fields["total_spent"]
	assert.False(t, present)
	_, present = records[0].Fields["churn_risk_score"]
	assert.False(t, present)
}

func TestMergeNullAndEmptyDoNotOverwrite(t *testing.T) {
	records, stats := MergeRecords([]Chunk{
		doc("A", map[string]any{"id": "1", "spent": 5, "tier": "gold"}),
		doc("B", map[string]any{"id": "1", "spent": nil, "tier": ""}),
		doc("C", map[string]any{"id": "1", "spent": math.Inf(1)}),
	}, defaultIDFields)

	require.Len(t, records, 1)
	r := records[0]
	assert.Equal(t, "1", r.EntityID)
	assert.Equal(t, String("1"), r.Field("id"))
	assert.Equal(t, Number(5), r.Field("spent"))
	assert.Equal(t, String("gold"), r.Field("tier"))
	assert.Equal(t, 3, r.ContributingChunks)
	assert.Equal(t, 1, stats.MalformedFields)
}

func TestMergeFirstAppearanceOrderAndUnattached(t *testing.T) {
	chunks := []Chunk{
		doc("b1", map[string]any{"customer_id": "B"}),
		doc("no id", map[string]any{"source": "campaigns.csv"}),
		doc("a1", map[string]any{"customer_id": "A"}),
		mem("b2", map[string]any{"customer_id": "B", "note": "prefers sms"}),
		mem("memory", map[string]any{"type": "memory"}),
	}
	records, stats := MergeRecords(chunks, defaultIDFields)

	require.Len(t, records, 2)
	assert.Equal(t, "B", records[0].EntityID)
	assert.Equal(t, "A", records[1].EntityID)
	assert.Equal(t, String("prefers sms"), records[0].Field("note"))
	assert.Equal(t, 2, stats.Unattached)
}

func TestMergeNumericIDsAreCanonical(t *testing.T) {
	records, _ := MergeRecords([]Chunk{
		doc("a", map[string]any{"customer_id": 1001.0}),
		doc("b", map[string]any{"customer_id": "1001"}),
		doc("c", map[string]any{"customer_id": true}),
		doc("d", map[string]any{"customer_id": int64(1001)}),
		doc("e", map[string]any{"customer_id": json.Number("1001")}),
	}, defaultIDFields)

	require.Len(t, records, 1)
	assert.Equal(t, "1001", records[0].EntityID)
	assert.Equal(t, 4, records[0].ContributingChunks)
	assert.Equal(t, String("1001"), records[0].Field("customer_id"))
}

func TestMergeStringIDsAreNotReparsed(t *testing.T) {
	records, _ := MergeRecords([]Chunk{
		doc("a", map[string]any{"customer_id": "007"}),
		doc("b", map[string]any{"customer_id": "7"}),
		doc("c", map[string]any{"customer_id": "9007199254740993"}),
		doc("d", map[string]any{"customer_id": "9007199254740992"}),
		doc("e", map[string]any{"customer_id": " 007 "}),
		doc("f", map[string]any{"customer_id": "1e3"}),
		doc("g", map[string]any{"customer_id": "1000"}),
	}, defaultIDFields)

	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.EntityID
	}
	assert.Equal(t, []string{"007", "7", "9007199254740993", "9007199254740992", "1e3", "1000"}, ids)
	assert.Equal(t, 2, records[0].ContributingChunks)
	assert.Equal(t, String("007"), records[0].Field("customer_id"))
}

func TestMergeLargeIntegerIDsKeepPrecision(t *testing.T) {
	records, _ := MergeRecords([]Chunk{
		doc("a", map[string]any{"customer_id": int64(9007199254740993)}),
		doc("b", map[string]any{"customer_id": int64(9007199254740992)}),
		doc("c", map[string]any{"customer_id": uint64(18446744073709551615)}),
		doc("d", map[string]any{"customer_id": "9007199254740993"}),
	}, defaultIDFields)

	require.Len(t, records, 3)
	assert.Equal(t, "9007199254740993", records[0].EntityID)
	assert.Equal(t, 2, records[0].ContributingChunks)
	assert.Equal(t, "9007199254740992", records[1].EntityID)
	assert.Equal(t, "18446744073709551615", records[2].EntityID)
}

func TestMergeRejectsUnusableIDs(t *testing.T) {
	records, stats := MergeRecords([]Chunk{
		doc("a", map[string]any{"customer_id": "null"}),
		doc("b", map[string]any{"customer_id": math.Inf(1)}),
		doc("c", map[string]any{"customer_id": []string{"x"}}),
		doc("d", map[string]any{"customer_id": "  "}),
	}, defaultIDFields)

	assert.Empty(t, records)
	assert.Equal(t, 4, stats.Unattached)
}

func TestMergeFallsBackToSecondaryIDField(t *testing.T) {
	records, _ := MergeRecords([]Chunk{
		doc("a", map[string]any{"customer_id": "", "id": "X"}),
	}, defaultIDFields)

	require.Len(t, records, 1)
	assert.Equal(t, "X", records[0].EntityID)
}

func TestMergeDeterministic(t *testing.T) {
	chunks := randomChunks(rand.New(rand.NewSource(7)), 40)
	first, _ := MergeRecords(chunks, defaultIDFields)
	for i := 0; i < 5; i++ {
		again, _ := MergeRecords(chunks, defaultIDFields)
		assert.Equal(t, first, again)
	}
}

// 随机输入下：每个实体至多一条记录，计数字段等于切片长度
func TestCountAndUniquenessInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for iter := 0; iter < 200; iter++ {
		chunks := randomChunks(rng, rng.Intn(30))
		records, _ := MergeRecords(chunks, defaultIDFields)

		seen := make(map[string]bool)
		for _, r := range records {
			assert.False(t, seen[r.EntityID], "duplicate entity %s", r.EntityID)
			seen[r.EntityID] = true
			for name, v := range r.Fields {
				assert.False(t, v.IsAbsent(), "absent value stored for %s", name)
			}
		}

		resp := FusedResponse{Query: "q", Records: records, RawChunks: chunks}
		data, err := json.Marshal(resp)
		require.NoError(t, err)

		var decoded struct {
			Records     []json.RawMessage `json:"records"`
			RawChunks   []json.RawMessage `json:"raw_chunks"`
			RecordCount int               `json:"record_count"`
			ChunkCount  int               `json:"chunk_count"`
		}
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, len(decoded.Records), decoded.RecordCount)
		assert.Equal(t, len(decoded.RawChunks), decoded.ChunkCount)
		assert.Equal(t, len(chunks), decoded.ChunkCount)
	}
}

func randomChunks(rng *rand.Rand, n int) []Chunk {
	values := []any{nil, "", "12", 3.5, math.NaN(), "true", "VIP", 0, false}
	out := make([]Chunk, 0, n)
	for i := 0; i < n; i++ {
		meta := map[string]any{}
		switch rng.Intn(4) {
		case 0:
		case 1:
			meta["customer_id"] = fmt.Sprintf("C%d", rng.Intn(5))
		case 2:
			meta["customer_id"] = rng.Intn(5)
		default:
			meta["id"] = fmt.Sprintf("C%d", rng.Intn(5))
		}
		for j := 0; j < 3; j++ {
			meta[fmt.Sprintf("f%d", rng.Intn(4))] = values[rng.Intn(len(values))]
		}
		kind := SourceDocument
		if rng.Intn(3) == 0 {
			kind = SourceMemory
		}
		out = append(out, NewChunk(kind, fmt.Sprintf("chunk %d", i), meta))
	}
	return out
}
