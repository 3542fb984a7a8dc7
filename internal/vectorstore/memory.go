package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"

	"statutelex/internal/apperr"
	"statutelex/internal/domain"
	"statutelex/internal/pathid"
)

// MemoryStore is the sequential-scan fallback used when no ANN-capable
// backend is configured: correctness-preserving, adapted from the pack's
// brute-force cosine-similarity vector store for the two-layer split.
type MemoryStore struct {
	mu        sync.RWMutex
	vectorDim int
	rows      map[domain.IndexingLayer]map[pathid.ChunkId]memoryRow
}

type memoryRow struct {
	documentID pathid.DocumentId
	vector     []float32
}

// NewMemoryStore builds an empty in-memory store; vectorDim<=0 disables
// dimension assertion (useful in tests).
func NewMemoryStore(vectorDim int) *MemoryStore {
	return &MemoryStore{
		vectorDim: vectorDim,
		rows: map[domain.IndexingLayer]map[pathid.ChunkId]memoryRow{
			domain.LayerSummary: {},
			domain.LayerDetail:  {},
		},
	}
}

func (m *MemoryStore) Upsert(_ context.Context, chunkID pathid.ChunkId, documentID pathid.DocumentId, vector []float32, layer domain.IndexingLayer) error {
	if m.vectorDim > 0 && len(vector) != m.vectorDim {
		return apperr.New(apperr.CodeInvalidInput, "vector dimension mismatch").WithChunk(string(chunkID))
	}
	table, err := m.tableFor(layer)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]float32, len(vector))
	copy(cp, vector)
	table[chunkID] = memoryRow{documentID: documentID, vector: cp}
	return nil
}

func (m *MemoryStore) tableFor(layer domain.IndexingLayer) (map[pathid.ChunkId]memoryRow, error) {
	switch layer {
	case domain.LayerSummary:
		return m.rows[domain.LayerSummary], nil
	case domain.LayerDetail:
		return m.rows[domain.LayerDetail], nil
	default:
		return nil, apperr.New(apperr.CodeInvalidInput, "upsert/search must target a single layer")
	}
}

func (m *MemoryStore) Search(_ context.Context, queryVector []float32, layer domain.IndexingLayer, k int, filter Filter) ([]Hit, error) {
	table, err := m.tableFor(layer)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	hits := make([]Hit, 0, len(table))
	for chunkID, row := range table {
		if !filter.allows(chunkID, row.documentID) {
			continue
		}
		hits = append(hits, Hit{ChunkID: chunkID, Score: cosineSimilarity(queryVector, row.vector)})
	}
	m.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (m *MemoryStore) DeleteForChunk(_ context.Context, chunkID pathid.ChunkId) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows[domain.LayerSummary], chunkID)
	delete(m.rows[domain.LayerDetail], chunkID)
	return nil
}

func (m *MemoryStore) DeleteForDocument(_ context.Context, documentID pathid.DocumentId) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, table := range m.rows {
		for id, row := range table {
			if row.documentID == documentID {
				delete(table, id)
			}
		}
	}
	return nil
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return -1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
