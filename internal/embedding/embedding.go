// Package embedding provides the embed_batch contract used by the
// indexer and retriever: turn texts into vectors, in order, retrying a
// failed batch one text at a time before giving up.
package embedding

import (
	"context"
)

// Client turns a batch of texts into equal-length vectors, preserving
// input order: result[i] is the embedding of texts[i].
type Client interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}
