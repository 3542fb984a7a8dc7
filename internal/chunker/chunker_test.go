package chunker

import (
	"strings"
	"testing"

	"statutelex/internal/domain"
	"statutelex/internal/pathid"
)

func chunksByKind(doc domain.Document, kind domain.ChunkKind) []domain.Chunk {
	var out []domain.Chunk
	for _, c := range doc.Chunks {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

func TestChunk_ChaptersAndArticles(t *testing.T) {
	text := strings.Join([]string{
		"## 第一章 總則",
		"本章說明立法目的。",
		"### 第 1 條",
		"為保障人民權益，特制定本法。",
		"### 第 2 條",
		"本法之主管機關為內政部。",
		"## 第二章 罰則",
		"### 第 3 條",
		"違反本法者，處新臺幣一萬元以上罰鍰。",
	}, "\n")

	docID := pathid.DocumentIdFromFilename("civil-code.md")
	doc := Chunk(text, "civil-code.md", docID, DefaultOptions())

	chapters := chunksByKind(doc, domain.KindChapter)
	if len(chapters) != 2 {
		t.Fatalf("expected 2 chapters, got %d", len(chapters))
	}
	articles := chunksByKind(doc, domain.KindArticle)
	if len(articles) != 3 {
		t.Fatalf("expected 3 articles, got %d", len(articles))
	}
	for _, a := range articles {
		if a.IndexingLayer != domain.LayerBoth {
			t.Fatalf("expected small article to stay LayerBoth, got %s", a.IndexingLayer)
		}
		if a.ParentID == nil {
			t.Fatalf("article %s missing parent", a.ID)
		}
	}

	root := doc.Chunks[0]
	if root.Kind != domain.KindDocument || root.IndexingLayer != domain.LayerSummary {
		t.Fatalf("root chunk malformed: %+v", root)
	}
	if len(root.ChildrenIDs) != 2 {
		t.Fatalf("expected root to have 2 chapter children, got %d", len(root.ChildrenIDs))
	}
}

func TestChunk_SourceIndexMatchesPreOrderPosition(t *testing.T) {
	text := strings.Join([]string{
		"## 第一章 總則",
		"### 第 1 條",
		"為保障人民權益，特制定本法。",
		"## 第二章 罰則",
		"### 第 2 條",
		"違反本法者，處新臺幣一萬元以上罰鍰。",
	}, "\n")

	docID := pathid.DocumentIdFromFilename("civil-code.md")
	doc := Chunk(text, "civil-code.md", docID, DefaultOptions())

	for i, c := range doc.Chunks {
		if c.SourceIndex != i {
			t.Fatalf("chunk %d (%s) has SourceIndex %d, want %d", i, c.ID, c.SourceIndex, i)
		}
	}
}

func TestChunk_OversizedArticleSplitsIntoDetailChildren(t *testing.T) {
	longBody := strings.Repeat("本條內容過長需要切割。", 200)
	text := "### 第 1 條\n" + longBody

	docID := pathid.DocumentIdFromFilename("long.md")
	opts := Options{MaxChunkChars: 100, SummaryMaxLen: 20}
	doc := Chunk(text, "long.md", docID, opts)

	articles := chunksByKind(doc, domain.KindArticle)
	if len(articles) != 1 {
		t.Fatalf("expected 1 article, got %d", len(articles))
	}
	article := articles[0]
	if article.IndexingLayer != domain.LayerSummary {
		t.Fatalf("oversized article should demote to LayerSummary, got %s", article.IndexingLayer)
	}
	if article.CharCount() > opts.SummaryMaxLen+1 {
		t.Fatalf("summary content too long: %d chars", article.CharCount())
	}

	details := chunksByKind(doc, domain.KindDetail)
	if len(details) < 2 {
		t.Fatalf("expected multiple detail children, got %d", len(details))
	}
	for _, d := range details {
		if d.IndexingLayer != domain.LayerDetail {
			t.Fatalf("split children must be LayerDetail, got %s", d.IndexingLayer)
		}
		if d.ParentID == nil || *d.ParentID != article.ID {
			t.Fatalf("detail child not parented to article")
		}
	}
}

func TestChunk_FlatFallbackNoStructure(t *testing.T) {
	docID := pathid.DocumentIdFromFilename("notes.md")
	doc := Chunk("just some plain unstructured text with no headings at all", "notes.md", docID, DefaultOptions())

	details := chunksByKind(doc, domain.KindDetail)
	if len(details) != 1 {
		t.Fatalf("expected a single detail leaf, got %d", len(details))
	}
	if details[0].IndexingLayer != domain.LayerBoth {
		t.Fatalf("small flat document should be LayerBoth, got %s", details[0].IndexingLayer)
	}
}

func TestChunk_EmptyDocumentProducesRootOnly(t *testing.T) {
	docID := pathid.DocumentIdFromFilename("empty.md")
	doc := Chunk("   \n\n  ", "empty.md", docID, DefaultOptions())

	if len(doc.Chunks) != 1 {
		t.Fatalf("expected root-only document, got %d chunks", len(doc.Chunks))
	}
}

func TestChunk_DeterministicAcrossRuns(t *testing.T) {
	text := "### 第 1 條\n內容。"
	docID := pathid.DocumentIdFromFilename("det.md")

	first := Chunk(text, "det.md", docID, DefaultOptions())
	second := Chunk(text, "det.md", docID, DefaultOptions())

	if len(first.Chunks) != len(second.Chunks) {
		t.Fatalf("chunk count differs across runs")
	}
	for i := range first.Chunks {
		if first.Chunks[i].ID != second.Chunks[i].ID {
			t.Fatalf("chunk id %d differs across runs: %s vs %s", i, first.Chunks[i].ID, second.Chunks[i].ID)
		}
	}
}
