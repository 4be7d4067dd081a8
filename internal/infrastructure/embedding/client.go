// Package embedding 提供 Embedding 服务客户端
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/embedding"

	"ell-intel-api/internal/config"
)

const (
	defaultHTTPBatchSize = 32
	defaultHTTPModel     = "BAAI/bge-m3"
	httpEmbedTimeout     = 30 * time.Second
	maxErrorBodyBytes    = 512
)

// HTTPEmbedder 调用自建 embedding 服务（POST {texts, model}，默认路径 /embed）
type HTTPEmbedder struct {
	url        string
	model      string
	dimension  int
	batchSize  int
	httpClient *http.Client
}

type embedRequest struct {
	Texts []string `json:"texts"`
	Model string   `json:"model"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	TokensUsed int         `json:"tokens_used"`
}

var _ embedding.Embedder = (*HTTPEmbedder)(nil)

// NewHTTPEmbedder 在构造时解析端点，运行期不再校验
func NewHTTPEmbedder(cfg *config.EmbeddingConfig) (*HTTPEmbedder, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("embedding endpoint is required")
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid embedding endpoint: %q", cfg.Endpoint)
	}
	if u.Path == "" {
		u.Path = "/embed"
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultHTTPBatchSize
	}
	model := cfg.Model
	if model == "" {
		model = defaultHTTPModel
	}
	return &HTTPEmbedder{
		url:        u.String(),
		model:      model,
		dimension:  cfg.Dimension,
		batchSize:  batchSize,
		httpClient: &http.Client{Timeout: httpEmbedTimeout},
	}, nil
}

// EmbedStrings 分批请求，结果顺序与输入一致
func (c *HTTPEmbedder) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+c.batchSize, len(texts))

		vecs, err := c.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch [%d,%d): %w", start, end, err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (c *HTTPEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	body, err := json.Marshal(&embedRequest{Texts: texts, Model: c.model})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, fmt.Errorf("embedding service status=%d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(decoded.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: want %d, got %d", len(texts), len(decoded.Embeddings))
	}

	vecs := make([][]float64, len(decoded.Embeddings))
	for i, vec := range decoded.Embeddings {
		if c.dimension > 0 && len(vec) != c.dimension {
			return nil, fmt.Errorf("embedding dimension mismatch: want %d, got %d", c.dimension, len(vec))
		}
		v := make([]float64, len(vec))
		for j, x := range vec {
			v[j] = float64(x)
		}
		vecs[i] = v
	}
	return vecs, nil
}
