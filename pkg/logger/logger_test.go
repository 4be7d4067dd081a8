package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromContextInjectsKnownKeys(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "debug", "json")

	ctx := WithContext(context.Background(), RequestIDKey, "req-1")
	ctx = WithContext(ctx, UserIDKey, "u-42")
	ctx = WithContext(ctx, SessionIDKey, "")

	Info(ctx, "fused", "records", 3)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "fused", line["msg"])
	assert.Equal(t, "req-1", line["request_id"])
	assert.Equal(t, "u-42", line["user_id"])
	assert.EqualValues(t, 3, line["records"])
	assert.NotContains(t, line, "session_id")
}

func TestErrorAppendsErrorField(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "info", "json")

	Error(context.Background(), "memory recall failed", errors.New("boom"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "ERROR", line["level"])
	assert.Equal(t, "boom", line["error"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "warn", "text")

	Debug(context.Background(), "hidden")
	Info(context.Background(), "hidden too")
	assert.Empty(t, buf.String())

	Warn(context.Background(), "shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", parseLevel("debug").String())
	assert.Equal(t, "WARN", parseLevel("warning").String())
	assert.Equal(t, "INFO", parseLevel("nonsense").String())
}
