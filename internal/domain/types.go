// Package domain holds the in-memory value types shared by the chunker,
// chunk store, vector store, and orchestrators, independent of any
// particular persistence or transport encoding.
package domain

import (
	"time"

	"statutelex/internal/pathid"
)

// ChunkKind classifies a node's structural role in the statute tree.
type ChunkKind string

const (
	KindDocument ChunkKind = "document"
	KindChapter  ChunkKind = "chapter"
	KindArticle  ChunkKind = "article"
	KindSection  ChunkKind = "section"
	KindDetail   ChunkKind = "detail"
)

// IndexingLayer selects which vector table(s) a chunk is embedded into.
type IndexingLayer string

const (
	LayerSummary IndexingLayer = "summary"
	LayerDetail  IndexingLayer = "detail"
	LayerBoth    IndexingLayer = "both"
)

// InSummaryLayer reports whether chunks of this layer contribute a
// summary-table row.
func (l IndexingLayer) InSummaryLayer() bool {
	return l == LayerSummary || l == LayerBoth
}

// InDetailLayer reports whether chunks of this layer contribute a
// detail-table row.
func (l IndexingLayer) InDetailLayer() bool {
	return l == LayerDetail || l == LayerBoth
}

// Chunk is a node in a document's hierarchical tree, the unit of both
// indexing and retrieval.
type Chunk struct {
	ID             pathid.ChunkId
	DocumentID     pathid.DocumentId
	Content        string
	Path           pathid.HierarchyPath
	RawLabel       string // pre-digest display label, kept for path_display reconstruction
	Kind           ChunkKind
	IndexingLayer  IndexingLayer
	ParentID       *pathid.ChunkId
	ChildrenIDs    []pathid.ChunkId
	SourceFile     string
	PageNumber     int
	ArticleNumber  string
	ChapterNumber  string
	// SourceIndex is the chunk's pre-order position within its document as
	// produced by the chunker; since path labels are digest-substituted for
	// non-ASCII segments, path order does not track source order and this
	// field is the only reliable ordering key for siblings/descendants.
	SourceIndex int
	CreatedAt   time.Time
}

// CharCount returns the derived character count of Content, kept in sync
// by the chunker and never stored independently of Content.
func (c Chunk) CharCount() int {
	return len([]rune(c.Content))
}

// Depth is derived from the chunk's path.
func (c Chunk) Depth() int {
	return c.Path.Depth()
}

// Document is a statute's whole tree plus its aggregate metadata.
type Document struct {
	ID          pathid.DocumentId
	Title       string
	SourceFile  string
	LawCategory string
	Version     string
	Chunks      []Chunk
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TotalChars sums the char count of every chunk in the tree.
func (d Document) TotalChars() int {
	total := 0
	for _, c := range d.Chunks {
		total += c.CharCount()
	}
	return total
}

// ChunkCount returns the number of chunks in the tree.
func (d Document) ChunkCount() int {
	return len(d.Chunks)
}

// ClosureEdge is one row of the materialized transitive closure of the
// parent-child relation: Distance 0 denotes the self-edge.
type ClosureEdge struct {
	AncestorID   pathid.ChunkId
	DescendantID pathid.ChunkId
	Distance     int
}

// Embedding pairs a chunk with its vector in one indexing layer.
type Embedding struct {
	ChunkID pathid.ChunkId
	Vector  []float32
	Layer   IndexingLayer
}
