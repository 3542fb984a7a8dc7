package retriever

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
	"statutelex/internal/indexer"
	"statutelex/internal/lock"
	"statutelex/internal/pathid"
	"statutelex/internal/store"
	"statutelex/internal/vectorstore"
)

// keywordEmbedder produces a vector whose first two dimensions encode
// presence of "第1條"/"第2條" so summary/detail search is deterministic
// without a real embedding backend.
type keywordEmbedder struct{}

func (keywordEmbedder) Dimension() int { return 2 }

func (keywordEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := []float32{0, 0}
		if contains(t, "第 1 條") || contains(t, "第1條") {
			v[0] = 1
		}
		if contains(t, "第 2 條") || contains(t, "第2條") {
			v[1] = 1
		}
		out[i] = v
	}
	return out, nil
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

const statuteFixture = "## 第一章 總則\n### 第 1 條\n為保障人民權益，特制定本法。\n### 第 2 條\n本法之主管機關為內政部。\n"

func setup(t *testing.T) (*Retriever, *store.Store) {
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
		t.Fatalf("locker: %v", err)
	}
	embedder := keywordEmbedder{}
	ix := indexer.New(s, vs, embedder, locker)

	dir := t.TempDir()
	path := filepath.Join(dir, "civil.md")
	if err := os.WriteFile(path, []byte(statuteFixture), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := ix.IndexDocument(context.Background(), path, indexer.Options{}); err != nil {
		t.Fatalf("index document: %v", err)
	}

	return New(s, vs, embedder), s
}

func TestRetrieve_SummaryFirstFindsArticle(t *testing.T) {
	r, _ := setup(t)
	pack, err := r.Retrieve(context.Background(), "第 1 條", DefaultOptions())
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(pack.Groups) == 0 {
		t.Fatalf("expected at least one group")
	}
	primary := pack.Groups[0].Primary
	if primary.Kind != domain.KindArticle {
		t.Fatalf("expected article primary, got %s", primary.Kind)
	}
	if len(pack.Groups[0].Ancestors) == 0 {
		t.Fatalf("expected ancestor context (chapter) to be included by default")
	}
}

func TestRetrieve_DirectStrategy(t *testing.T) {
	r, _ := setup(t)
	opts := DefaultOptions()
	opts.Strategy = StrategyDirect
	pack, err := r.Retrieve(context.Background(), "第 2 條", opts)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(pack.Groups) == 0 {
		t.Fatalf("expected at least one group under direct strategy")
	}
}

func TestRetrieve_EmptyDocumentFilterReturnsZeroGroups(t *testing.T) {
	r, _ := setup(t)
	opts := DefaultOptions()
	opts.DocumentFilter = []pathid.DocumentId{}
	pack, err := r.Retrieve(context.Background(), "第 1 條", opts)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(pack.Groups) != 0 {
		t.Fatalf("expected zero groups for empty document filter, got %d", len(pack.Groups))
	}
}

func TestRetrieve_SummaryFirstDegradesToDirectWhenSummaryKZero(t *testing.T) {
	r, _ := setup(t)
	opts := DefaultOptions()
	opts.SummaryK = 0
	pack, err := r.Retrieve(context.Background(), "第 1 條", opts)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if pack.Strategy != StrategyDirect {
		t.Fatalf("expected degraded strategy to be direct, got %s", pack.Strategy)
	}
}

func TestRetrieve_InvalidTopKRejected(t *testing.T) {
	r, _ := setup(t)
	opts := DefaultOptions()
	opts.TopK = 100
	if _, err := r.Retrieve(context.Background(), "q", opts); err == nil {
		t.Fatalf("expected validation error for out-of-range top_k")
	}
}
