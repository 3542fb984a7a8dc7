// Package svc holds the process-wide service context: every collaborator
// the HTTP handlers need, constructed once at startup and threaded
// through the router.
package svc

import (
	"context"

	"gorm.io/gorm"

	"statutelex/internal/config"
	"statutelex/internal/embedding"
	"statutelex/internal/indexer"
	"statutelex/internal/lock"
	"statutelex/internal/retriever"
	"statutelex/internal/store"
	"statutelex/internal/vectorstore"
)

// ServiceContext bundles the wired components a request handler needs.
type ServiceContext struct {
	Config    *config.Config
	DB        *gorm.DB
	Store     *store.Store
	Vectors   vectorstore.Store
	Embedder  embedding.Client
	Locker    lock.DocumentLocker
	Indexer   *indexer.Indexer
	Retriever *retriever.Retriever
}

// Ctx is the process-wide singleton, set once by Init at startup.
var Ctx *ServiceContext

// Init wires the chunk store, vector store, embedding client, and
// locker into an Indexer and Retriever, and publishes the result as Ctx.
func Init(ctx context.Context, cfg *config.Config, db *gorm.DB) (*ServiceContext, error) {
	chunkStore := store.New(db)
	if err := chunkStore.Migrate(); err != nil {
		return nil, err
	}

	vectors, err := newVectorStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	embedder := embedding.NewOpenAIClient(cfg.Embedding)

	locker, err := lock.NewLocker(cfg.Redis)
	if err != nil {
		return nil, err
	}

	sc := &ServiceContext{
		Config:    cfg,
		DB:        db,
		Store:     chunkStore,
		Vectors:   vectors,
		Embedder:  embedder,
		Locker:    locker,
		Indexer:   indexer.New(chunkStore, vectors, embedder, locker),
		Retriever: retriever.New(chunkStore, vectors, embedder),
	}
	Ctx = sc
	return sc, nil
}

// newVectorStore builds a Qdrant-backed store when a host is configured,
// falling back to the in-memory sequential-scan store otherwise (local
// development, tests, or a deployment with no ANN backend available).
func newVectorStore(ctx context.Context, cfg *config.Config) (vectorstore.Store, error) {
	if cfg.Qdrant.Host == "" {
		return vectorstore.NewMemoryStore(cfg.Embedding.Dimension), nil
	}
	return vectorstore.NewQdrantStore(ctx, cfg.Qdrant)
}

// IndexingOptions translates the process configuration's indexing
// section into indexer.Options, applying force per call site.
func (s *ServiceContext) IndexingOptions(force bool) indexer.Options {
	return indexer.Options{
		Force:         force,
		MaxChunkChars: s.Config.Indexing.MaxChunkChars,
		SummaryMaxLen: s.Config.Indexing.SummaryMaxLen,
		EmbedBatch:    s.Config.Indexing.EmbedBatchSize,
		MaxRetries:    s.Config.Indexing.MaxRetries,
	}
}
