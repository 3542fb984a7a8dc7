package embedding

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"statutelex/internal/config"

	"github.com/bytedance/sonic"
)

func TestOpenAIClient_EmbedBatchPreservesOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		dec := sonic.ConfigDefault.NewDecoder(r.Body)
		if err := dec.Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		resp := embeddingResponse{}
		for i, text := range req.Input {
			vec := []float32{float32(len(text)), float32(i)}
			resp.Data = append(resp.Data, struct {
				Embedding []float32 `json:"embedding"`
				Index     int       `json:"index"`
			}{Embedding: vec, Index: i})
		}
		out, _ := sonic.Marshal(resp)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(out)
	}))
	defer srv.Close()

	client := NewOpenAIClient(config.EmbeddingConfig{BaseURL: srv.URL, Model: "test", BatchSize: 10})
	texts := []string{"a", "bb", "ccc"}
	vectors, err := client.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("embed batch: %v", err)
	}
	if len(vectors) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vectors))
	}
	for i, text := range texts {
		if vectors[i][0] != float32(len(text)) {
			t.Fatalf("vector %d not aligned with input %q: %+v", i, text, vectors[i])
		}
	}
}

func TestOpenAIClient_EmbedBatchFallsBackPerTextOnBatchFailure(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var req embeddingRequest
		dec := sonic.ConfigDefault.NewDecoder(r.Body)
		_ = dec.Decode(&req)

		if len(req.Input) > 1 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"message":"batch too large"}}`))
			return
		}
		resp := embeddingResponse{Data: []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}{{Embedding: []float32{1, 2}, Index: 0}}}
		out, _ := sonic.Marshal(resp)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(out)
	}))
	defer srv.Close()

	client := NewOpenAIClient(config.EmbeddingConfig{BaseURL: srv.URL, Model: "test", BatchSize: 10})
	vectors, err := client.EmbedBatch(context.Background(), []string{"x", "y"})
	if err != nil {
		t.Fatalf("embed batch: %v", err)
	}
	if len(vectors) != 2 || vectors[0] == nil || vectors[1] == nil {
		t.Fatalf("expected both texts recovered via per-text fallback, got %+v", vectors)
	}
	if calls < 3 {
		t.Fatalf("expected 1 failed batch call + 2 per-text calls, got %d calls", calls)
	}
}
