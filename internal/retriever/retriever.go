// Package retriever implements retrieve: summary-first and direct
// strategies over the two-layer vector store, expanded with ancestor
// (and optionally sibling) context fetched from the chunk store.
package retriever

import (
	"context"
	"sort"

	"statutelex/internal/apperr"
	"statutelex/internal/domain"
	"statutelex/internal/embedding"
	"statutelex/internal/pathid"
	"statutelex/internal/store"
	"statutelex/internal/vectorstore"
)

// Strategy selects the retrieval algorithm.
type Strategy string

const (
	StrategySummaryFirst Strategy = "summary_first"
	StrategyDirect       Strategy = "direct"
)

// Options configures one retrieve call; zero-value fields are filled by
// DefaultOptions's policy where meaningful.
type Options struct {
	Strategy          Strategy
	DocumentFilter    []pathid.DocumentId // non-nil-but-empty means "restrict to nothing"
	TopK              int
	SummaryK          int
	DetailsPerSummary int
	ContentMaxLength  int
	IncludeAncestors  bool
	IncludeSiblings   bool
}

// DefaultOptions returns the standard retrieval defaults.
func DefaultOptions() Options {
	return Options{
		Strategy:          StrategySummaryFirst,
		TopK:              5,
		SummaryK:          3,
		DetailsPerSummary: 3,
		ContentMaxLength:  800,
		IncludeAncestors:  true,
		IncludeSiblings:   false,
	}
}

func (o Options) validate() error {
	if o.TopK < 1 || o.TopK > 50 {
		return apperr.New(apperr.CodeInvalidInput, "top_k must be between 1 and 50")
	}
	if o.ContentMaxLength < 100 || o.ContentMaxLength > 2000 {
		return apperr.New(apperr.CodeInvalidInput, "content_max_length must be between 100 and 2000")
	}
	return nil
}

// ChunkView is a chunk projected for presentation: path_display is
// reconstructed from raw labels, never from the digest-encoded path.
type ChunkView struct {
	ChunkID     pathid.ChunkId
	PathDisplay string
	Kind        domain.ChunkKind
	Content     string
	Score       float32
}

// Group is one retrieval hit with its provenance context.
type Group struct {
	Primary   ChunkView
	Ancestors []ChunkView
	Siblings  []ChunkView
}

// ResultPack is retrieve's output.
type ResultPack struct {
	Query          string
	Strategy       Strategy
	Groups         []Group
	TotalCharCount int
}

// Retriever wires the vector store, chunk store, and embedding client
// into summary_first/direct retrieval.
type Retriever struct {
	vectors  vectorstore.Store
	store    *store.Store
	embedder embedding.Client
}

// New builds a Retriever from its already-constructed collaborators.
func New(s *store.Store, vs vectorstore.Store, embedder embedding.Client) *Retriever {
	return &Retriever{store: s, vectors: vs, embedder: embedder}
}

// Retrieve answers query per opts, dispatching to summary_first or direct.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts Options) (ResultPack, error) {
	if opts.TopK == 0 {
		opts.TopK = DefaultOptions().TopK
	}
	if opts.ContentMaxLength == 0 {
		opts.ContentMaxLength = DefaultOptions().ContentMaxLength
	}
	if err := opts.validate(); err != nil {
		return ResultPack{}, err
	}
	if opts.Strategy == "" {
		opts.Strategy = StrategySummaryFirst
	}

	pack := ResultPack{Query: query, Strategy: opts.Strategy}

	// document_filter = {} explicitly restricts to no documents.
	if opts.DocumentFilter != nil && len(opts.DocumentFilter) == 0 {
		return pack, nil
	}

	vectors, err := r.embedder.EmbedBatch(ctx, []string{query})
	if err != nil {
		return ResultPack{}, err
	}
	queryVector := vectors[0]

	// summary_first with no Phase-1 breadth degrades to direct.
	if opts.Strategy == StrategySummaryFirst && opts.SummaryK <= 0 {
		opts.Strategy = StrategyDirect
	}

	var groups []Group
	usedStrategy := opts.Strategy
	switch opts.Strategy {
	case StrategyDirect:
		groups, err = r.direct(ctx, queryVector, opts)
	default:
		groups, usedStrategy, err = r.summaryFirst(ctx, queryVector, opts)
	}
	if err != nil {
		return ResultPack{}, err
	}

	groups = dedupeByPrimaryID(groups)
	if len(groups) > opts.TopK {
		groups = groups[:opts.TopK]
	}
	pack.Strategy = usedStrategy
	pack.Groups = groups
	pack.TotalCharCount = totalCharCount(groups)
	return pack, nil
}

func (r *Retriever) direct(ctx context.Context, queryVector []float32, opts Options) ([]Group, error) {
	hits, err := r.vectors.Search(ctx, queryVector, domain.LayerDetail, opts.TopK, vectorstore.Filter{DocumentIDs: opts.DocumentFilter})
	if err != nil {
		return nil, err
	}
	groups := make([]Group, 0, len(hits))
	for _, h := range hits {
		g, err := r.buildGroup(ctx, h.ChunkID, h.Score, opts)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, nil
}

type summaryCandidate struct {
	summaryID    pathid.ChunkId
	summaryScore float32
	bestDetail   *vectorstore.Hit
}

func (r *Retriever) summaryFirst(ctx context.Context, queryVector []float32, opts Options) ([]Group, Strategy, error) {
	summaryHits, err := r.vectors.Search(ctx, queryVector, domain.LayerSummary, opts.SummaryK, vectorstore.Filter{DocumentIDs: opts.DocumentFilter})
	if err != nil {
		return nil, "", err
	}
	if len(summaryHits) == 0 {
		groups, err := r.direct(ctx, queryVector, opts)
		return groups, StrategyDirect, err
	}

	candidates := make([]summaryCandidate, 0, len(summaryHits))
	for _, s := range summaryHits {
		descendants, err := r.store.GetDescendants(ctx, s.ChunkID, 0)
		if err != nil {
			return nil, "", err
		}
		cand := summaryCandidate{summaryID: s.ChunkID, summaryScore: s.Score}
		if len(descendants) > 0 {
			descendantIDs := make([]pathid.ChunkId, len(descendants))
			for i, d := range descendants {
				descendantIDs[i] = d.ID
			}
			detailHits, err := r.vectors.Search(ctx, queryVector, domain.LayerDetail, opts.DetailsPerSummary,
				vectorstore.Filter{ChunkIDs: descendantIDs, DocumentIDs: opts.DocumentFilter})
			if err != nil {
				return nil, "", err
			}
			if len(detailHits) > 0 {
				best := detailHits[0]
				cand.bestDetail = &best
			}
		}
		candidates = append(candidates, cand)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		si, sj := rankScore(candidates[i]), rankScore(candidates[j])
		if si != sj {
			return si > sj
		}
		if candidates[i].summaryScore != candidates[j].summaryScore {
			return candidates[i].summaryScore > candidates[j].summaryScore
		}
		return primaryID(candidates[i]) < primaryID(candidates[j])
	})

	groups := make([]Group, 0, len(candidates))
	for _, c := range candidates {
		id, score := c.summaryID, c.summaryScore
		if c.bestDetail != nil {
			id, score = c.bestDetail.ChunkID, c.bestDetail.Score
		}
		g, err := r.buildGroup(ctx, id, score, opts)
		if err != nil {
			return nil, "", err
		}
		groups = append(groups, g)
	}
	return groups, StrategySummaryFirst, nil
}

func rankScore(c summaryCandidate) float32 {
	if c.bestDetail != nil {
		return c.bestDetail.Score
	}
	return c.summaryScore
}

func primaryID(c summaryCandidate) pathid.ChunkId {
	if c.bestDetail != nil {
		return c.bestDetail.ChunkID
	}
	return c.summaryID
}

func (r *Retriever) buildGroup(ctx context.Context, chunkID pathid.ChunkId, score float32, opts Options) (Group, error) {
	chunk, err := r.store.GetChunk(ctx, chunkID)
	if err != nil {
		return Group{}, err
	}

	var ancestorChunks []domain.Chunk
	if opts.IncludeAncestors {
		ancestorChunks, err = r.store.GetAncestors(ctx, chunkID, 0)
		if err != nil {
			return Group{}, err
		}
	}

	var siblingChunks []domain.Chunk
	if opts.IncludeSiblings {
		siblingChunks, err = r.store.GetSiblings(ctx, chunkID)
		if err != nil {
			return Group{}, err
		}
	}

	primary := ChunkView{
		ChunkID:     chunk.ID,
		PathDisplay: pathDisplay(ancestorChunks, chunk),
		Kind:        chunk.Kind,
		Content:     truncate(chunk.Content, opts.ContentMaxLength),
		Score:       score,
	}
	ancestors := make([]ChunkView, len(ancestorChunks))
	for i, a := range ancestorChunks {
		ancestors[i] = ChunkView{
			ChunkID:     a.ID,
			PathDisplay: pathDisplay(nil, a),
			Kind:        a.Kind,
			Content:     truncate(a.Content, opts.ContentMaxLength),
		}
	}
	var siblings []ChunkView
	if opts.IncludeSiblings {
		siblings = make([]ChunkView, len(siblingChunks))
		for i, s := range siblingChunks {
			siblings[i] = ChunkView{
				ChunkID:     s.ID,
				PathDisplay: pathDisplay(nil, s),
				Kind:        s.Kind,
				Content:     truncate(s.Content, opts.ContentMaxLength),
			}
		}
	}

	return Group{Primary: primary, Ancestors: ancestors, Siblings: siblings}, nil
}

// pathDisplay reconstructs a human-readable path from raw labels: the
// digest-encoded internal path is never decoded for display.
func pathDisplay(ancestorsNearestFirst []domain.Chunk, self domain.Chunk) string {
	labels := make([]string, 0, len(ancestorsNearestFirst)+1)
	for i := len(ancestorsNearestFirst) - 1; i >= 0; i-- {
		if l := ancestorsNearestFirst[i].RawLabel; l != "" {
			labels = append(labels, l)
		}
	}
	if self.RawLabel != "" {
		labels = append(labels, self.RawLabel)
	}
	out := ""
	for i, l := range labels {
		if i > 0 {
			out += " / "
		}
		out += l
	}
	return out
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

// dedupeByPrimaryID keeps the earliest group for a repeated primary chunk_id.
func dedupeByPrimaryID(groups []Group) []Group {
	seen := make(map[pathid.ChunkId]struct{}, len(groups))
	out := make([]Group, 0, len(groups))
	for _, g := range groups {
		if _, ok := seen[g.Primary.ChunkID]; ok {
			continue
		}
		seen[g.Primary.ChunkID] = struct{}{}
		out = append(out, g)
	}
	return out
}

func totalCharCount(groups []Group) int {
	total := 0
	for _, g := range groups {
		total += len([]rune(g.Primary.Content))
		for _, a := range g.Ancestors {
			total += len([]rune(a.Content))
		}
		for _, s := range g.Siblings {
			total += len([]rune(s.Content))
		}
	}
	return total
}
