// Package vectorstore persists per-chunk embeddings in summary/detail
// layers and answers nearest-neighbor queries filtered by layer and,
// optionally, document id.
package vectorstore

import (
	"context"

	"statutelex/internal/domain"
	"statutelex/internal/pathid"
)

// Hit is one nearest-neighbor result: a chunk id and its similarity score.
type Hit struct {
	ChunkID pathid.ChunkId
	Score   float32
}

// Filter restricts a search to a set of chunk/document ids. A nil or
// empty field means "no restriction on that dimension".
type Filter struct {
	ChunkIDs    []pathid.ChunkId
	DocumentIDs []pathid.DocumentId
}

func (f Filter) allows(chunkID pathid.ChunkId, documentID pathid.DocumentId) bool {
	if len(f.ChunkIDs) > 0 && !containsChunk(f.ChunkIDs, chunkID) {
		return false
	}
	if len(f.DocumentIDs) > 0 && !containsDoc(f.DocumentIDs, documentID) {
		return false
	}
	return true
}

func containsChunk(ids []pathid.ChunkId, id pathid.ChunkId) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func containsDoc(ids []pathid.DocumentId, id pathid.DocumentId) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

// Store is the two-layer vector store contract.
type Store interface {
	// Upsert inserts or replaces the row for (chunk_id, layer). The
	// implementation asserts the vector's dimensionality against its
	// configured value and fails if it disagrees.
	Upsert(ctx context.Context, chunkID pathid.ChunkId, documentID pathid.DocumentId, vector []float32, layer domain.IndexingLayer) error
	// Search returns the top-k nearest neighbors under cosine distance
	// within one layer, honoring filter. Ties are broken deterministically
	// by lexicographic chunk_id.
	Search(ctx context.Context, queryVector []float32, layer domain.IndexingLayer, k int, filter Filter) ([]Hit, error)
	// DeleteForChunk removes all rows for chunkID across both layers.
	DeleteForChunk(ctx context.Context, chunkID pathid.ChunkId) error
	// DeleteForDocument removes all rows belonging to documentID across
	// both layers, used when index_document(force=true) replaces a document.
	DeleteForDocument(ctx context.Context, documentID pathid.DocumentId) error
}
