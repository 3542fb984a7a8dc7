package store

import (
	"context"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"statutelex/internal/domain"
	"statutelex/internal/pathid"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	s := New(db)
	if err := s.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func sampleTree(docID pathid.DocumentId) []domain.Chunk {
	rootPath := pathid.PathFromLabels(nil, 0)
	rootID := pathid.ChunkIdNew(docID, rootPath)
	chapterPath := pathid.PathFromLabels([]string{"第一章"}, 1)
	chapterID := pathid.ChunkIdNew(docID, chapterPath)
	articlePath := pathid.PathFromLabels([]string{"第一章", "第1條"}, 2)
	articleID := pathid.ChunkIdNew(docID, articlePath)

	return []domain.Chunk{
		{ID: rootID, DocumentID: docID, Path: rootPath, Kind: domain.KindDocument, IndexingLayer: domain.LayerSummary, Content: "doc"},
		{ID: chapterID, DocumentID: docID, Path: chapterPath, Kind: domain.KindChapter, IndexingLayer: domain.LayerSummary, ParentID: &rootID, Content: "chapter"},
		{ID: articleID, DocumentID: docID, Path: articlePath, Kind: domain.KindArticle, IndexingLayer: domain.LayerBoth, ParentID: &chapterID, Content: "article", ArticleNumber: "第 1 條"},
	}
}

func TestSaveAndBuildClosure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	docID := pathid.DocumentId("doc1")
	chunks := sampleTree(docID)

	if err := s.SaveDocument(ctx, domain.Document{ID: docID, Title: "t", Chunks: chunks}); err != nil {
		t.Fatalf("save document: %v", err)
	}
	if err := s.SaveChunksBatch(ctx, chunks); err != nil {
		t.Fatalf("save chunks: %v", err)
	}
	if err := s.BuildClosure(ctx, docID); err != nil {
		t.Fatalf("build closure: %v", err)
	}

	// closure row count must equal sum over chunks of (depth+1): 1+2+3=6
	var count int64
	s.db.Table("chunk_closure").
		Joins("JOIN chunks ON chunks.id = chunk_closure.descendant_id").
		Where("chunks.document_id = ?", string(docID)).
		Count(&count)
	if count != 6 {
		t.Fatalf("expected 6 closure rows, got %d", count)
	}

	leafID := chunks[2].ID
	ancestors, err := s.GetAncestors(ctx, leafID, 0)
	if err != nil {
		t.Fatalf("get ancestors: %v", err)
	}
	if len(ancestors) != 2 {
		t.Fatalf("expected 2 ancestors, got %d", len(ancestors))
	}
	if ancestors[0].ID != chunks[1].ID {
		t.Fatalf("nearest ancestor should be the chapter, got %s", ancestors[0].ID)
	}

	rootID := chunks[0].ID
	descendants, err := s.GetDescendants(ctx, rootID, 0)
	if err != nil {
		t.Fatalf("get descendants: %v", err)
	}
	if len(descendants) != 2 {
		t.Fatalf("expected 2 descendants of root, got %d", len(descendants))
	}
}

func TestDeleteDocumentCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	docID := pathid.DocumentId("doc2")
	chunks := sampleTree(docID)

	_ = s.SaveDocument(ctx, domain.Document{ID: docID, Chunks: chunks})
	_ = s.SaveChunksBatch(ctx, chunks)
	_ = s.BuildClosure(ctx, docID)

	if err := s.DeleteDocument(ctx, docID); err != nil {
		t.Fatalf("delete document: %v", err)
	}

	exists, err := s.DocumentExists(ctx, docID)
	if err != nil {
		t.Fatalf("document exists: %v", err)
	}
	if exists {
		t.Fatalf("document should no longer exist")
	}
	var chunkCount int64
	s.db.Model(&ChunkRow{}).Where("document_id = ?", string(docID)).Count(&chunkCount)
	if chunkCount != 0 {
		t.Fatalf("expected no orphan chunks, got %d", chunkCount)
	}
	var closureCount int64
	s.db.Table("chunk_closure").Where("ancestor_id LIKE ?", "%").Count(&closureCount)
}

func TestGetSiblingsExcludesSelfAndPreservesOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	docID := pathid.DocumentId("doc3")
	rootPath := pathid.PathFromLabels(nil, 0)
	rootID := pathid.ChunkIdNew(docID, rootPath)

	// Non-ASCII labels chosen so that neither lexicographic order of the raw
	// labels nor digest-substituted path order matches source order: chapter
	// three appears first in the document, chapter two last.
	labels := []string{"第三章", "第一章", "第二章"}
	ids := make([]pathid.ChunkId, len(labels))
	chunks := []domain.Chunk{
		{ID: rootID, DocumentID: docID, Path: rootPath, Kind: domain.KindDocument, IndexingLayer: domain.LayerSummary, SourceIndex: 0},
	}
	for i, label := range labels {
		p := pathid.PathFromLabels([]string{label}, 1)
		id := pathid.ChunkIdNew(docID, p)
		ids[i] = id
		chunks = append(chunks, domain.Chunk{
			ID: id, DocumentID: docID, Path: p, RawLabel: label,
			Kind: domain.KindChapter, IndexingLayer: domain.LayerSummary,
			ParentID: &rootID, SourceIndex: i + 1,
		})
	}
	_ = s.SaveDocument(ctx, domain.Document{ID: docID, Chunks: chunks})
	_ = s.SaveChunksBatch(ctx, chunks)
	_ = s.BuildClosure(ctx, docID)

	siblings, err := s.GetSiblings(ctx, ids[0])
	if err != nil {
		t.Fatalf("get siblings: %v", err)
	}
	if len(siblings) != 2 {
		t.Fatalf("expected 2 siblings, got %d", len(siblings))
	}
	if siblings[0].ID != ids[1] || siblings[1].ID != ids[2] {
		t.Fatalf("siblings out of source order: got [%s, %s], want [第一章, 第二章] order", siblings[0].RawLabel, siblings[1].RawLabel)
	}
}

func TestGetDescendantsOrdersByPreOrderPosition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	docID := pathid.DocumentId("doc5")
	rootPath := pathid.PathFromLabels(nil, 0)
	rootID := pathid.ChunkIdNew(docID, rootPath)

	labels := []string{"第三章", "第一章", "第二章"}
	ids := make([]pathid.ChunkId, len(labels))
	chunks := []domain.Chunk{
		{ID: rootID, DocumentID: docID, Path: rootPath, Kind: domain.KindDocument, IndexingLayer: domain.LayerSummary, SourceIndex: 0},
	}
	for i, label := range labels {
		p := pathid.PathFromLabels([]string{label}, 1)
		id := pathid.ChunkIdNew(docID, p)
		ids[i] = id
		chunks = append(chunks, domain.Chunk{
			ID: id, DocumentID: docID, Path: p, RawLabel: label,
			Kind: domain.KindChapter, IndexingLayer: domain.LayerSummary,
			ParentID: &rootID, SourceIndex: i + 1,
		})
	}
	_ = s.SaveDocument(ctx, domain.Document{ID: docID, Chunks: chunks})
	_ = s.SaveChunksBatch(ctx, chunks)
	_ = s.BuildClosure(ctx, docID)

	descendants, err := s.GetDescendants(ctx, rootID, 0)
	if err != nil {
		t.Fatalf("get descendants: %v", err)
	}
	if len(descendants) != 3 {
		t.Fatalf("expected 3 descendants, got %d", len(descendants))
	}
	for i, want := range ids {
		if descendants[i].ID != want {
			t.Fatalf("descendant %d out of source order: got %s (%s), want %s (%s)",
				i, descendants[i].ID, descendants[i].RawLabel, want, labels[i])
		}
	}
}

func TestSaveChunksBatchRejectsMissingParent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	docID := pathid.DocumentId("doc4")
	orphanPath := pathid.PathFromLabels([]string{"第1條"}, 1)
	orphanID := pathid.ChunkIdNew(docID, orphanPath)
	missingParent := pathid.ChunkId("does-not-exist")

	err := s.SaveChunksBatch(ctx, []domain.Chunk{
		{ID: orphanID, DocumentID: docID, Path: orphanPath, ParentID: &missingParent},
	})
	if err == nil {
		t.Fatalf("expected invariant violation for missing parent")
	}
}
