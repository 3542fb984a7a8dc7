// Package indexer implements index_document/index_many: read a source
// file, chunk it, persist the tree and its closure, embed each layer's
// chunks, and upsert the resulting vectors. Concurrent attempts on the
// same document id are serialized by a DocumentLocker.
package indexer

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"

	"statutelex/internal/apperr"
	"statutelex/internal/chunker"
	"statutelex/internal/common/logger"
	"statutelex/internal/domain"
	"statutelex/internal/embedding"
	"statutelex/internal/lock"
	"statutelex/internal/pathid"
	"statutelex/internal/store"
	"statutelex/internal/vectorstore"
)

// Options parameterizes one call to IndexDocument.
type Options struct {
	Force         bool
	MaxChunkChars int
	SummaryMaxLen int
	EmbedBatch    int
	MaxRetries    int
}

// Indexer wires the chunk store, the two-layer vector store, an
// embedding client, and a document locker into index_document/index_many.
type Indexer struct {
	store    *store.Store
	vectors  vectorstore.Store
	embedder embedding.Client
	locker   lock.DocumentLocker
}

// New builds an Indexer from its already-constructed collaborators.
func New(s *store.Store, vs vectorstore.Store, embedder embedding.Client, locker lock.DocumentLocker) *Indexer {
	return &Indexer{store: s, vectors: vs, embedder: embedder, locker: locker}
}

// IndexDocument reads path, chunks it, and materializes the chunk tree,
// closure table, and both vector layers. A prior index of the same
// document is refused with CodeAlreadyIndexed unless opts.Force is set,
// in which case the old document (chunks, closure, embeddings) is
// deleted first.
func (idx *Indexer) IndexDocument(ctx context.Context, path string, opts Options) (domain.Document, error) {
	documentID := pathid.DocumentIdFromFilename(path)

	// While another attempt holds the lock, wait for it to finish, so
	// concurrent calls for the same document run one after the other.
	handle, acquired, err := idx.locker.TryLock(ctx, string(documentID))
	for err == nil && !acquired {
		select {
		case <-ctx.Done():
			return domain.Document{}, apperr.New(apperr.CodeCancelled, "waiting for document lock interrupted by context cancellation").WithFile(path)
		case <-time.After(50 * time.Millisecond):
		}
		handle, acquired, err = idx.locker.TryLock(ctx, string(documentID))
	}
	if err != nil {
		return domain.Document{}, apperr.WithCause(apperr.CodeStoreUnavailable, "acquire document lock", err).WithFile(path)
	}
	defer func() {
		if unlockErr := handle.Unlock(context.Background()); unlockErr != nil {
			logger.Warn("failed to release document lock", zap.String("document_id", string(documentID)), zap.Error(unlockErr))
		}
	}()

	exists, err := idx.store.DocumentExists(ctx, documentID)
	if err != nil {
		return domain.Document{}, err
	}
	if exists {
		if !opts.Force {
			return domain.Document{}, apperr.New(apperr.CodeAlreadyIndexed, "document already indexed; retry with force to reindex").WithFile(path)
		}
		if err := idx.store.DeleteDocument(ctx, documentID); err != nil {
			return domain.Document{}, err
		}
		if err := idx.vectors.DeleteForDocument(ctx, documentID); err != nil {
			return domain.Document{}, apperr.WithCause(apperr.CodeStoreUnavailable, "clear prior embeddings", err).WithFile(path)
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.Document{}, apperr.WithCause(apperr.CodeInvalidInput, "read source file", err).WithFile(path)
	}

	chunkOpts := chunker.Options{MaxChunkChars: opts.MaxChunkChars, SummaryMaxLen: opts.SummaryMaxLen}
	doc := chunker.Chunk(string(raw), path, documentID, chunkOpts)
	now := time.Now()
	doc.CreatedAt, doc.UpdatedAt = now, now

	if err := idx.store.SaveDocument(ctx, doc); err != nil {
		return domain.Document{}, err
	}
	if err := idx.store.SaveChunksBatch(ctx, doc.Chunks); err != nil {
		return domain.Document{}, err
	}
	if err := idx.store.BuildClosure(ctx, documentID); err != nil {
		return domain.Document{}, err
	}

	if err := idx.embedAndUpsert(ctx, doc, opts); err != nil {
		return domain.Document{}, err
	}

	logger.Info("document indexed",
		zap.String("document_id", string(documentID)),
		zap.Int("chunk_count", doc.ChunkCount()),
		zap.Int("total_chars", doc.TotalChars()))
	return doc, nil
}

// embedAndUpsert partitions a document's chunks by indexing layer,
// embeds each layer's texts in batches, and upserts every resulting
// vector into its layer's vector-store collection. A chunk with
// LayerBoth is embedded and upserted once per concrete layer.
func (idx *Indexer) embedAndUpsert(ctx context.Context, doc domain.Document, opts Options) error {
	summary := layerChunks(doc.Chunks, domain.LayerSummary)
	detail := layerChunks(doc.Chunks, domain.LayerDetail)

	if err := idx.embedLayer(ctx, doc.ID, summary, domain.LayerSummary, opts); err != nil {
		return err
	}
	return idx.embedLayer(ctx, doc.ID, detail, domain.LayerDetail, opts)
}

func layerChunks(chunks []domain.Chunk, layer domain.IndexingLayer) []domain.Chunk {
	var out []domain.Chunk
	for _, c := range chunks {
		if layer == domain.LayerSummary && c.IndexingLayer.InSummaryLayer() {
			out = append(out, c)
		}
		if layer == domain.LayerDetail && c.IndexingLayer.InDetailLayer() {
			out = append(out, c)
		}
	}
	return out
}

func (idx *Indexer) embedLayer(ctx context.Context, documentID pathid.DocumentId, chunks []domain.Chunk, layer domain.IndexingLayer, opts Options) error {
	if len(chunks) == 0 {
		return nil
	}
	batchSize := opts.EmbedBatch
	if batchSize <= 0 {
		batchSize = 32
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}

		vectors, err := embedWithRetry(ctx, idx.embedder, texts, maxRetries)
		if err != nil {
			return err
		}
		for i, c := range batch {
			if err := idx.vectors.Upsert(ctx, c.ID, documentID, vectors[i], layer); err != nil {
				return err
			}
		}
	}
	return nil
}

func embedWithRetry(ctx context.Context, embedder embedding.Client, texts []string, maxRetries int) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, apperr.New(apperr.CodeCancelled, "embedding retry interrupted by context cancellation")
			case <-time.After(backoff(attempt)):
			}
		}
		vectors, err := embedder.EmbedBatch(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		lastErr = err
		if !apperr.Is(err, apperr.CodeEmbeddingFailure) {
			return nil, err
		}
	}
	return nil, lastErr
}

func backoff(attempt int) time.Duration {
	d := time.Duration(1<<uint(attempt-1)) * 200 * time.Millisecond
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

// BatchResult reports the outcome of indexing one path within index_many.
type BatchResult struct {
	Path     string
	Document domain.Document
	Err      error
}

// IndexMany indexes each path independently; when skipErrors is false the
// first failure aborts the remaining paths, otherwise every path is
// attempted and its individual outcome is reported.
func (idx *Indexer) IndexMany(ctx context.Context, paths []string, opts Options, skipErrors bool) []BatchResult {
	results := make([]BatchResult, 0, len(paths))
	for _, p := range paths {
		doc, err := idx.IndexDocument(ctx, p, opts)
		results = append(results, BatchResult{Path: p, Document: doc, Err: err})
		if err != nil && !skipErrors {
			break
		}
	}
	return results
}
