package vectorstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"statutelex/internal/apperr"
	"statutelex/internal/common/logger"
	"statutelex/internal/config"
	"statutelex/internal/domain"
	"statutelex/internal/pathid"

	"go.uber.org/zap"
)

// pointID derives a Qdrant-compatible point id from a chunk id: Qdrant
// requires point ids to be a uint64 or a UUID, and chunk ids are opaque
// digests, so a deterministic UUID (namespace + chunk id) is used instead
// of the raw string.
func pointID(chunkID pathid.ChunkId) *qdrant.PointId {
	return qdrant.NewID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String())
}

// QdrantStore backs the summary and detail layers with two named
// collections: one holding summary vectors, one holding detail vectors.
type QdrantStore struct {
	client            *qdrant.Client
	summaryCollection string
	detailCollection  string
	vectorDim         int
	upsertBatchSize   int
}

// NewQdrantStore connects to Qdrant and ensures both layer collections
// exist with the configured vector dimension.
func NewQdrantStore(ctx context.Context, cfg config.QdrantConfig) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, apperr.WithCause(apperr.CodeStoreUnavailable, "connect qdrant", err)
	}

	s := &QdrantStore{
		client:            client,
		summaryCollection: cfg.SummaryCollection,
		detailCollection:  cfg.DetailCollection,
		vectorDim:         cfg.VectorDim,
		upsertBatchSize:   cfg.UpsertBatchSize,
	}
	if s.upsertBatchSize <= 0 {
		s.upsertBatchSize = 100
	}
	for _, name := range []string{s.summaryCollection, s.detailCollection} {
		if err := s.ensureCollection(ctx, name); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context, name string) error {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return apperr.WithCause(apperr.CodeStoreUnavailable, "check collection exists", err)
	}
	if exists {
		return nil
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.vectorDim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return apperr.WithCause(apperr.CodeStoreUnavailable, fmt.Sprintf("create collection %s", name), err)
	}
	logger.Info("qdrant collection created", zap.String("collection", name), zap.Int("dim", s.vectorDim))
	return nil
}

func (s *QdrantStore) collectionFor(layer domain.IndexingLayer) (string, error) {
	switch layer {
	case domain.LayerSummary:
		return s.summaryCollection, nil
	case domain.LayerDetail:
		return s.detailCollection, nil
	default:
		return "", apperr.New(apperr.CodeInvalidInput, fmt.Sprintf("upsert/search must target a single layer, got %q", layer))
	}
}

// Upsert writes one point keyed by chunk id; the layer selects which
// collection receives the row. Dimension is asserted before the call
// reaches the network.
func (s *QdrantStore) Upsert(ctx context.Context, chunkID pathid.ChunkId, documentID pathid.DocumentId, vector []float32, layer domain.IndexingLayer) error {
	if s.vectorDim > 0 && len(vector) != s.vectorDim {
		return apperr.New(apperr.CodeInvalidInput, fmt.Sprintf("vector dimension %d does not match configured dimension %d", len(vector), s.vectorDim)).WithChunk(string(chunkID))
	}
	collection, err := s.collectionFor(layer)
	if err != nil {
		return err
	}
	point := &qdrant.PointStruct{
		Id:      pointID(chunkID),
		Vectors: qdrant.NewVectors(vector...),
		Payload: qdrant.NewValueMap(map[string]any{
			"chunk_id":    string(chunkID),
			"document_id": string(documentID),
		}),
	}
	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return apperr.WithCause(apperr.CodeStoreUnavailable, "qdrant upsert", err).WithChunk(string(chunkID))
	}
	return nil
}

// Search runs a filtered kNN query in the layer's collection. Cosine
// scores are what Qdrant returns natively; ties are broken by
// lexicographic chunk_id since ANN result order for exact ties is not
// guaranteed stable.
func (s *QdrantStore) Search(ctx context.Context, queryVector []float32, layer domain.IndexingLayer, k int, filter Filter) ([]Hit, error) {
	collection, err := s.collectionFor(layer)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	qp := &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQueryDense(queryVector),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if qf := toQdrantFilter(filter); qf != nil {
		qp.Filter = qf
	}

	results, err := s.client.Query(ctx, qp)
	if err != nil {
		return nil, apperr.WithCause(apperr.CodeStoreUnavailable, "qdrant search", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		id := chunkIDFromPayload(r)
		if id == "" {
			continue
		}
		hits = append(hits, Hit{ChunkID: pathid.ChunkId(id), Score: r.GetScore()})
	}
	breakTiesLexicographically(hits)
	return hits, nil
}

func chunkIDFromPayload(r *qdrant.ScoredPoint) string {
	payload := r.GetPayload()
	if payload == nil {
		return ""
	}
	if v, ok := payload["chunk_id"]; ok {
		return v.GetStringValue()
	}
	return ""
}

func toQdrantFilter(f Filter) *qdrant.Filter {
	if len(f.ChunkIDs) == 0 && len(f.DocumentIDs) == 0 {
		return nil
	}
	var must []*qdrant.Condition
	if len(f.DocumentIDs) > 0 {
		values := make([]string, len(f.DocumentIDs))
		for i, d := range f.DocumentIDs {
			values[i] = string(d)
		}
		must = append(must, qdrant.NewMatchKeywords("document_id", values...))
	}
	if len(f.ChunkIDs) > 0 {
		values := make([]string, len(f.ChunkIDs))
		for i, c := range f.ChunkIDs {
			values[i] = string(c)
		}
		must = append(must, qdrant.NewMatchKeywords("chunk_id", values...))
	}
	return &qdrant.Filter{Must: must}
}

// breakTiesLexicographically stable-sorts equal-score hits by chunk_id so
// that repeated searches return a deterministic order regardless of the
// order Qdrant returns tied points in.
func breakTiesLexicographically(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
}

// DeleteForChunk removes the chunk's row from both layer collections.
func (s *QdrantStore) DeleteForChunk(ctx context.Context, chunkID pathid.ChunkId) error {
	for _, collection := range []string{s.summaryCollection, s.detailCollection} {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: collection,
			Points:         qdrant.NewPointsSelectorIDs([]*qdrant.PointId{pointID(chunkID)}),
		})
		if err != nil {
			return apperr.WithCause(apperr.CodeStoreUnavailable, "qdrant delete_for_chunk", err).WithChunk(string(chunkID))
		}
	}
	return nil
}

// DeleteForDocument removes every row belonging to documentID from both
// layer collections, used by index_document(force=true).
func (s *QdrantStore) DeleteForDocument(ctx context.Context, documentID pathid.DocumentId) error {
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch("document_id", string(documentID))},
	}
	for _, collection := range []string{s.summaryCollection, s.detailCollection} {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: collection,
			Points:         qdrant.NewPointsSelectorFilter(filter),
		})
		if err != nil {
			return apperr.WithCause(apperr.CodeStoreUnavailable, "qdrant delete_for_document", err)
		}
	}
	return nil
}
