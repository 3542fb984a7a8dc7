// Package store persists documents, chunks, and their closure table via
// GORM, using a JSON-column type implementing driver.Valuer/sql.Scanner.
package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"statutelex/internal/domain"
	"statutelex/internal/pathid"
)

// Metadata is a free-form JSON-column blob attached to a chunk, carrying
// the raw (pre-digest) path label needed to reconstruct path_display.
type Metadata map[string]string

// Value implements driver.Valuer.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *Metadata) Scan(val interface{}) error {
	if val == nil {
		*m = Metadata{}
		return nil
	}
	var b []byte
	switch v := val.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("Metadata.Scan: unsupported type %T", val)
	}
	if len(b) == 0 {
		*m = Metadata{}
		return nil
	}
	return json.Unmarshal(b, m)
}

// DocumentRow is the `documents` table row (aggregate root).
type DocumentRow struct {
	ID          string `gorm:"column:id;primaryKey"`
	Title       string `gorm:"column:title"`
	SourceFile  string `gorm:"column:source_file"`
	LawCategory string `gorm:"column:law_category"`
	Version     string `gorm:"column:version"`
	TotalChars  int    `gorm:"column:total_chars"`
	ChunkCount  int    `gorm:"column:chunk_count"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

// TableName satisfies gorm.Tabler.
func (DocumentRow) TableName() string { return "documents" }

// ChunkRow is the `chunks` table row.
type ChunkRow struct {
	ID            string   `gorm:"column:id;primaryKey"`
	DocumentID    string   `gorm:"column:document_id;index"`
	Content       string   `gorm:"column:content"`
	Path          string   `gorm:"column:path;index"`
	Kind          string   `gorm:"column:kind"`
	IndexingLayer string   `gorm:"column:indexing_layer"`
	ParentID      *string  `gorm:"column:parent_id;index"`
	Depth         int      `gorm:"column:depth"`
	SourceFile    string   `gorm:"column:source_file"`
	PageNumber    int      `gorm:"column:page_number"`
	CharCount     int      `gorm:"column:char_count"`
	ArticleNumber string   `gorm:"column:article_number"`
	ChapterNumber string   `gorm:"column:chapter_number"`
	Metadata      Metadata `gorm:"column:metadata;type:text"`
	// SourceIndex is the chunk's pre-order position in its document, the
	// ordering key for siblings/descendants: path sorts by digest for
	// non-ASCII labels and cannot serve that role.
	SourceIndex int       `gorm:"column:source_index;index"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

// TableName satisfies gorm.Tabler.
func (ChunkRow) TableName() string { return "chunks" }

// ClosureRow is the `chunk_closure` table row: the materialized
// transitive closure of the parent-child relation.
type ClosureRow struct {
	AncestorID   string `gorm:"column:ancestor_id;primaryKey"`
	DescendantID string `gorm:"column:descendant_id;primaryKey"`
	Distance     int    `gorm:"column:distance"`
}

// TableName satisfies gorm.Tabler.
func (ClosureRow) TableName() string { return "chunk_closure" }

func toChunkRow(c domain.Chunk) ChunkRow {
	var parent *string
	if c.ParentID != nil {
		s := string(*c.ParentID)
		parent = &s
	}
	return ChunkRow{
		ID:            string(c.ID),
		DocumentID:    string(c.DocumentID),
		Content:       c.Content,
		Path:          c.Path.String(),
		Kind:          string(c.Kind),
		IndexingLayer: string(c.IndexingLayer),
		ParentID:      parent,
		Depth:         c.Depth(),
		SourceFile:    c.SourceFile,
		PageNumber:    c.PageNumber,
		CharCount:     c.CharCount(),
		ArticleNumber: c.ArticleNumber,
		ChapterNumber: c.ChapterNumber,
		Metadata:      Metadata{"raw_label": c.RawLabel},
		SourceIndex:   c.SourceIndex,
		CreatedAt:     c.CreatedAt,
	}
}

func fromChunkRow(r ChunkRow) domain.Chunk {
	var parent *pathid.ChunkId
	if r.ParentID != nil {
		id := pathid.ChunkId(*r.ParentID)
		parent = &id
	}
	labels := splitPath(r.Path)
	return domain.Chunk{
		ID:            pathid.ChunkId(r.ID),
		DocumentID:    pathid.DocumentId(r.DocumentID),
		Content:       r.Content,
		Path:          pathid.HierarchyPath{Labels: labels},
		RawLabel:      r.Metadata["raw_label"],
		Kind:          domain.ChunkKind(r.Kind),
		IndexingLayer: domain.IndexingLayer(r.IndexingLayer),
		ParentID:      parent,
		SourceFile:    r.SourceFile,
		PageNumber:    r.PageNumber,
		ArticleNumber: r.ArticleNumber,
		ChapterNumber: r.ChapterNumber,
		SourceIndex:   r.SourceIndex,
		CreatedAt:     r.CreatedAt,
	}
}

func splitPath(p string) []string {
	if p == "" {
		return nil
	}
	var labels []string
	start := 0
	for i := 0; i <= len(p); i++ {
		if i == len(p) || p[i] == '/' {
			labels = append(labels, p[start:i])
			start = i + 1
		}
	}
	return labels
}
