package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"statutelex/internal/config"
	"statutelex/internal/domain"
	"statutelex/internal/lock"
	"statutelex/internal/store"
	"statutelex/internal/vectorstore"
)

type fakeEmbedder struct {
	dim int
}

func (f *fakeEmbedder) Dimension() int { return f.dim }

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), float32(i)}
	}
	return out, nil
}

func newTestIndexer(t *testing.T) (*Indexer, *store.Store, vectorstore.Store) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	s := store.New(db)
	if err := s.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	vs := vectorstore.NewMemoryStore(2)
	locker, err := lock.NewLocker(config.RedisConfig{Enabled: false})
	if err != nil {
		t.Fatalf("new locker: %v", err)
	}
	return New(s, vs, &fakeEmbedder{dim: 2}, locker), s, vs
}

func writeStatuteFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

const sampleStatute = "### 第 1 條\n為保障人民權益，特制定本法。\n### 第 2 條\n本法之主管機關為內政部。\n"

func TestIndexDocument_PersistsAndEmbeds(t *testing.T) {
	dir := t.TempDir()
	path := writeStatuteFile(t, dir, "civil.md", sampleStatute)
	idx, _, vs := newTestIndexer(t)

	doc, err := idx.IndexDocument(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("index document: %v", err)
	}
	if doc.ChunkCount() < 3 {
		t.Fatalf("expected root + 2 articles, got %d chunks", doc.ChunkCount())
	}

	var article domain.Chunk
	for _, c := range doc.Chunks {
		if c.Kind == domain.KindArticle {
			article = c
			break
		}
	}
	if article.ID == "" {
		t.Fatalf("no article chunk found")
	}
	hits, err := vs.Search(context.Background(), []float32{float32(article.CharCount()), 0}, domain.LayerSummary, 5, vectorstore.Filter{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) == 0 {
		t.Fatalf("expected the article's summary embedding to be searchable")
	}
}

func TestIndexDocument_RefusesReindexWithoutForce(t *testing.T) {
	dir := t.TempDir()
	path := writeStatuteFile(t, dir, "civil.md", sampleStatute)
	idx, _, _ := newTestIndexer(t)

	if _, err := idx.IndexDocument(context.Background(), path, Options{}); err != nil {
		t.Fatalf("first index: %v", err)
	}
	_, err := idx.IndexDocument(context.Background(), path, Options{})
	if err == nil {
		t.Fatalf("expected AlreadyIndexed error on second index without force")
	}
}

func TestIndexDocument_ForceReindexesCleanly(t *testing.T) {
	dir := t.TempDir()
	path := writeStatuteFile(t, dir, "civil.md", sampleStatute)
	idx, s, _ := newTestIndexer(t)

	first, err := idx.IndexDocument(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("first index: %v", err)
	}
	second, err := idx.IndexDocument(context.Background(), path, Options{Force: true})
	if err != nil {
		t.Fatalf("force reindex: %v", err)
	}
	if first.ChunkCount() != second.ChunkCount() {
		t.Fatalf("reindex produced a different chunk count: %d vs %d", first.ChunkCount(), second.ChunkCount())
	}
	loaded, err := s.LoadDocument(context.Background(), second.ID)
	if err != nil {
		t.Fatalf("load document: %v", err)
	}
	if loaded.ChunkCount() != second.ChunkCount() {
		t.Fatalf("stored document diverges from indexed result")
	}
}

func TestIndexMany_SkipErrorsContinuesPastFailure(t *testing.T) {
	dir := t.TempDir()
	good := writeStatuteFile(t, dir, "good.md", sampleStatute)
	missing := filepath.Join(dir, "does-not-exist.md")
	idx, _, _ := newTestIndexer(t)

	results := idx.IndexMany(context.Background(), []string{missing, good}, Options{}, true)
	if len(results) != 2 {
		t.Fatalf("expected both paths attempted, got %d results", len(results))
	}
	if results[0].Err == nil {
		t.Fatalf("expected missing file to fail")
	}
	if results[1].Err != nil {
		t.Fatalf("expected good file to succeed even after prior failure: %v", results[1].Err)
	}
}
