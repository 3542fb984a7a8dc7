package store

import (
	"context"
	"fmt"
	"sort"

	"gorm.io/gorm"

	"statutelex/internal/apperr"
	"statutelex/internal/domain"
	"statutelex/internal/pathid"
)

// Store implements the chunk store contract: document/chunk
// persistence plus the closure table that makes ancestor/descendant
// queries O(1) instead of recursive.
type Store struct {
	db *gorm.DB
}

// New wraps a GORM connection already opened against postgres or sqlite.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the documents/chunks/chunk_closure tables if absent.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&DocumentRow{}, &ChunkRow{}, &ClosureRow{})
}

// SaveDocument deletes any prior document row sharing the id and inserts
// the new one in one transaction; it touches only the documents table. Callers that reindex
// a document must delete its chunks and closure rows separately (see
// DeleteDocument) before calling this, since a document is never
// partially updated.
func (s *Store) SaveDocument(ctx context.Context, doc domain.Document) error {
	row := DocumentRow{
		ID:          string(doc.ID),
		Title:       doc.Title,
		SourceFile:  doc.SourceFile,
		LawCategory: doc.LawCategory,
		Version:     doc.Version,
		TotalChars:  doc.TotalChars(),
		ChunkCount:  doc.ChunkCount(),
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", row.ID).Delete(&DocumentRow{}).Error; err != nil {
			return err
		}
		return tx.Create(&row).Error
	})
	if err != nil {
		return apperr.WithCause(apperr.CodeStoreUnavailable, "replace document row", err)
	}
	return nil
}

// SaveChunksBatch inserts all chunks for a document in one transaction,
// rejecting the batch if any invariant fails: every non-root chunk's
// parent must exist in the batch and sit exactly one depth above it.
func (s *Store) SaveChunksBatch(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return apperr.New(apperr.CodeInvalidInput, "save_chunks_batch called with no chunks")
	}
	byID := make(map[pathid.ChunkId]domain.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}
	for _, c := range chunks {
		if c.ParentID == nil {
			if c.Depth() != 0 {
				return apperr.New(apperr.CodeInvariantViolation, fmt.Sprintf("root chunk %s has nonzero depth %d", c.ID, c.Depth())).WithChunk(string(c.ID))
			}
			continue
		}
		parent, ok := byID[*c.ParentID]
		if !ok {
			return apperr.New(apperr.CodeInvariantViolation, fmt.Sprintf("chunk %s references missing parent %s", c.ID, *c.ParentID)).WithChunk(string(c.ID))
		}
		if c.Depth() != parent.Depth()+1 {
			return apperr.New(apperr.CodeInvariantViolation, fmt.Sprintf("chunk %s depth %d does not follow parent depth %d", c.ID, c.Depth(), parent.Depth())).WithChunk(string(c.ID))
		}
	}

	rows := make([]ChunkRow, len(chunks))
	for i, c := range chunks {
		rows[i] = toChunkRow(c)
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(rows, 200).Error
	})
	if err != nil {
		return apperr.WithCause(apperr.CodeStoreUnavailable, "insert chunk batch", err)
	}
	return nil
}

// BuildClosure computes and atomically replaces the transitive closure of
// the parent-child edges for one document: a node at depth d contributes
// d+1 rows (itself at distance 0, plus one per ancestor).
func (s *Store) BuildClosure(ctx context.Context, documentID pathid.DocumentId) error {
	var rows []ChunkRow
	if err := s.db.WithContext(ctx).Where("document_id = ?", string(documentID)).Find(&rows).Error; err != nil {
		return apperr.WithCause(apperr.CodeStoreUnavailable, "load chunks for closure build", err)
	}
	byID := make(map[string]ChunkRow, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}

	var closure []ClosureRow
	for _, r := range rows {
		distance := 0
		cur := r
		for {
			closure = append(closure, ClosureRow{AncestorID: cur.ID, DescendantID: r.ID, Distance: distance})
			if cur.ParentID == nil {
				break
			}
			parent, ok := byID[*cur.ParentID]
			if !ok {
				return apperr.New(apperr.CodeInvariantViolation, fmt.Sprintf("chunk %s parent %s not found while building closure", cur.ID, *cur.ParentID))
			}
			cur = parent
			distance++
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("descendant_id IN (?)", chunkIDs(rows)).Delete(&ClosureRow{}).Error; err != nil {
			return err
		}
		if len(closure) == 0 {
			return nil
		}
		return tx.CreateInBatches(closure, 500).Error
	})
	if err != nil {
		return apperr.WithCause(apperr.CodeStoreUnavailable, "materialize closure table", err)
	}
	return nil
}

func chunkIDs(rows []ChunkRow) []string {
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return ids
}

// GetAncestors returns ancestors ordered by ascending distance (nearest
// first), optionally bounded by maxDistance (<=0 means unbounded).
func (s *Store) GetAncestors(ctx context.Context, chunkID pathid.ChunkId, maxDistance int) ([]domain.Chunk, error) {
	q := s.db.WithContext(ctx).
		Table("chunk_closure").
		Select("chunks.*, chunk_closure.distance AS distance").
		Joins("JOIN chunks ON chunks.id = chunk_closure.ancestor_id").
		Where("chunk_closure.descendant_id = ? AND chunk_closure.distance > 0", string(chunkID))
	if maxDistance > 0 {
		q = q.Where("chunk_closure.distance <= ?", maxDistance)
	}
	q = q.Order("chunk_closure.distance ASC")

	var rows []struct {
		ChunkRow
		Distance int
	}
	if err := q.Scan(&rows).Error; err != nil {
		return nil, apperr.WithCause(apperr.CodeStoreUnavailable, "get_ancestors", err)
	}
	out := make([]domain.Chunk, len(rows))
	for i, r := range rows {
		out[i] = fromChunkRow(r.ChunkRow)
	}
	return out, nil
}

// GetDescendants returns descendants ordered by ascending distance, then
// pre-order (source) position within that distance band.
func (s *Store) GetDescendants(ctx context.Context, chunkID pathid.ChunkId, maxDistance int) ([]domain.Chunk, error) {
	q := s.db.WithContext(ctx).
		Table("chunk_closure").
		Select("chunks.*, chunk_closure.distance AS distance").
		Joins("JOIN chunks ON chunks.id = chunk_closure.descendant_id").
		Where("chunk_closure.ancestor_id = ? AND chunk_closure.distance > 0", string(chunkID))
	if maxDistance > 0 {
		q = q.Where("chunk_closure.distance <= ?", maxDistance)
	}
	q = q.Order("chunk_closure.distance ASC, chunks.source_index ASC")

	var rows []struct {
		ChunkRow
		Distance int
	}
	if err := q.Scan(&rows).Error; err != nil {
		return nil, apperr.WithCause(apperr.CodeStoreUnavailable, "get_descendants", err)
	}
	out := make([]domain.Chunk, len(rows))
	for i, r := range rows {
		out[i] = fromChunkRow(r.ChunkRow)
	}
	return out, nil
}

// GetSiblings returns chunks sharing the same parent, excluding self,
// preserving source order.
func (s *Store) GetSiblings(ctx context.Context, chunkID pathid.ChunkId) ([]domain.Chunk, error) {
	var self ChunkRow
	if err := s.db.WithContext(ctx).Where("id = ?", string(chunkID)).First(&self).Error; err != nil {
		return nil, apperr.WithCause(apperr.CodeStoreUnavailable, "get_siblings: load self", err)
	}
	if self.ParentID == nil {
		return nil, nil
	}
	var rows []ChunkRow
	err := s.db.WithContext(ctx).
		Where("parent_id = ? AND id != ?", *self.ParentID, self.ID).
		Order("source_index ASC").
		Find(&rows).Error
	if err != nil {
		return nil, apperr.WithCause(apperr.CodeStoreUnavailable, "get_siblings", err)
	}
	out := make([]domain.Chunk, len(rows))
	for i, r := range rows {
		out[i] = fromChunkRow(r)
	}
	return out, nil
}

// GetChunk fetches a single chunk by id.
func (s *Store) GetChunk(ctx context.Context, chunkID pathid.ChunkId) (domain.Chunk, error) {
	var row ChunkRow
	if err := s.db.WithContext(ctx).Where("id = ?", string(chunkID)).First(&row).Error; err != nil {
		return domain.Chunk{}, apperr.WithCause(apperr.CodeStoreUnavailable, "get_chunk", err)
	}
	return fromChunkRow(row), nil
}

// GetChunks fetches multiple chunks by id, preserving the input order.
func (s *Store) GetChunks(ctx context.Context, ids []pathid.ChunkId) ([]domain.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = string(id)
	}
	var rows []ChunkRow
	if err := s.db.WithContext(ctx).Where("id IN (?)", strIDs).Find(&rows).Error; err != nil {
		return nil, apperr.WithCause(apperr.CodeStoreUnavailable, "get_chunks", err)
	}
	byID := make(map[string]ChunkRow, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}
	out := make([]domain.Chunk, 0, len(ids))
	for _, id := range ids {
		if r, ok := byID[string(id)]; ok {
			out = append(out, fromChunkRow(r))
		}
	}
	return out, nil
}

// DocumentExists reports whether a document with the given id is stored.
func (s *Store) DocumentExists(ctx context.Context, documentID pathid.DocumentId) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&DocumentRow{}).Where("id = ?", string(documentID)).Count(&count).Error
	if err != nil {
		return false, apperr.WithCause(apperr.CodeStoreUnavailable, "document_exists", err)
	}
	return count > 0, nil
}

// DeleteDocument deletes the document and cascades to chunks and closure
// rows; embedding-table cleanup is the caller's (indexer's) responsibility
// since embeddings live in the separate vector store.
func (s *Store) DeleteDocument(ctx context.Context, documentID pathid.DocumentId) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&ChunkRow{}).Where("document_id = ?", string(documentID)).Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) > 0 {
			if err := tx.Where("ancestor_id IN (?) OR descendant_id IN (?)", ids, ids).Delete(&ClosureRow{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("document_id = ?", string(documentID)).Delete(&ChunkRow{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", string(documentID)).Delete(&DocumentRow{}).Error
	})
	if err != nil {
		return apperr.WithCause(apperr.CodeStoreUnavailable, "delete_document", err)
	}
	return nil
}

// LoadDocument reassembles a full Document (with all its chunks, in
// pre-order) from the store.
func (s *Store) LoadDocument(ctx context.Context, documentID pathid.DocumentId) (domain.Document, error) {
	var docRow DocumentRow
	if err := s.db.WithContext(ctx).Where("id = ?", string(documentID)).First(&docRow).Error; err != nil {
		return domain.Document{}, apperr.WithCause(apperr.CodeStoreUnavailable, "load_document", err)
	}
	var rows []ChunkRow
	if err := s.db.WithContext(ctx).Where("document_id = ?", string(documentID)).Find(&rows).Error; err != nil {
		return domain.Document{}, apperr.WithCause(apperr.CodeStoreUnavailable, "load_document chunks", err)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].SourceIndex < rows[j].SourceIndex })
	chunks := make([]domain.Chunk, len(rows))
	for i, r := range rows {
		chunks[i] = fromChunkRow(r)
	}
	return domain.Document{
		ID:          pathid.DocumentId(docRow.ID),
		Title:       docRow.Title,
		SourceFile:  docRow.SourceFile,
		LawCategory: docRow.LawCategory,
		Version:     docRow.Version,
		Chunks:      chunks,
		CreatedAt:   docRow.CreatedAt,
		UpdatedAt:   docRow.UpdatedAt,
	}, nil
}
