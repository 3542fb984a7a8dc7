package embedding

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"statutelex/internal/apperr"
	"statutelex/internal/common/logger"
	"statutelex/internal/config"

	"go.uber.org/zap"

	"github.com/bytedance/sonic"
)

// OpenAIClient calls an OpenAI-compatible POST /embeddings endpoint,
// adapted from the pack's single-shot embedding caller into a client
// that chunks by batch size and retries a failed batch text-by-text; if
// any single text still fails, the whole call returns an error.
type OpenAIClient struct {
	baseURL   string
	apiKey    string
	model     string
	dimension int
	batchSize int
	http      *http.Client
}

// NewOpenAIClient builds a client from the embedding section of Config.
func NewOpenAIClient(cfg config.EmbeddingConfig) *OpenAIClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 32
	}
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIClient{
		baseURL:   baseURL,
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		dimension: cfg.Dimension,
		batchSize: batchSize,
		http:      &http.Client{Timeout: timeout},
	}
}

func (c *OpenAIClient) Dimension() int {
	return c.dimension
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// EmbedBatch preserves input order: result[i] is texts[i]'s vector. A
// batch that fails outright is retried one text at a time; if any text
// still fails on its own, EmbedBatch returns a CodeEmbeddingFailure error
// and no vectors.
func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		vectors, err := c.callAPI(ctx, batch)
		if err == nil {
			copy(out[start:end], vectors)
			continue
		}

		logger.Warn("embedding batch failed, retrying per text",
			zap.Int("batch_start", start), zap.Int("batch_size", len(batch)), zap.Error(err))

		for i, text := range batch {
			single, singleErr := c.callAPI(ctx, []string{text})
			if singleErr != nil {
				return nil, apperr.WithCause(apperr.CodeEmbeddingFailure,
					fmt.Sprintf("embed text at index %d failed after batch fallback", start+i), singleErr)
			}
			out[start+i] = single[0]
		}
	}
	return out, nil
}

func (c *OpenAIClient) callAPI(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody, err := sonic.Marshal(embeddingRequest{Model: c.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	var body embeddingResponse
	decoder := sonic.ConfigDefault.NewDecoder(resp.Body)
	if err := decoder.Decode(&body); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if body.Error != nil {
			return nil, fmt.Errorf("embedding API error (HTTP %d): %s", resp.StatusCode, body.Error.Message)
		}
		return nil, fmt.Errorf("embedding API returned HTTP %d", resp.StatusCode)
	}

	vectors := make([][]float32, len(texts))
	for _, d := range body.Data {
		if d.Index >= 0 && d.Index < len(vectors) {
			vectors[d.Index] = d.Embedding
		}
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("missing embedding for input at index %d", i)
		}
	}
	return vectors, nil
}
