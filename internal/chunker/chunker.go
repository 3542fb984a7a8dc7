// Package chunker turns a normalized markdown statute into a typed chunk
// tree: it recognizes chapter and article headings (or, failing those,
// generic markdown headings) and falls back to a flat split into chunks of
// at most max_chunk_chars when no structure is recognized. Section/item
// markers inside an article are not split out; they stay in its body.
package chunker

import (
	"fmt"
	"regexp"
	"strings"

	"statutelex/internal/common/logger"
	"statutelex/internal/domain"
	"statutelex/internal/pathid"

	"go.uber.org/zap"
)

// DefaultMaxChunkChars bounds leaf-chunk length before splitting into
// sibling detail chunks; overridable per call via Options.
const DefaultMaxChunkChars = 800

// DefaultSummaryMaxLen bounds the computed summary of non-leaf chunks.
const DefaultSummaryMaxLen = 240

var (
	chapterRe = regexp.MustCompile(`^##\s*第[一二三四五六七八九十百千0-9]+章`)
	articleRe = regexp.MustCompile(`^###\s*第\s*[0-9一二三四五六七八九十百千]+\s*條`)
	sectionRe = regexp.MustCompile(`^([一二三四五六七八九十]+、|第\s*[0-9一二三四五六七八九十]+\s*[款項]|[-*]\s)`)
	headingRe = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
)

// Options parameterizes the chunker; the chunker's fallback threshold is
// policy, not contract, so callers configure it explicitly.
type Options struct {
	MaxChunkChars int
	SummaryMaxLen int
}

// DefaultOptions returns the standard chunking policy.
func DefaultOptions() Options {
	return Options{MaxChunkChars: DefaultMaxChunkChars, SummaryMaxLen: DefaultSummaryMaxLen}
}

func (o Options) normalized() Options {
	if o.MaxChunkChars <= 0 {
		o.MaxChunkChars = DefaultMaxChunkChars
	}
	if o.SummaryMaxLen <= 0 {
		o.SummaryMaxLen = DefaultSummaryMaxLen
	}
	return o
}

type line struct {
	text string
}

// strategy names which structural cue set a document matched, purely for
// logging/diagnostics; behavior is driven by which builder function runs.
type strategy string

const (
	strategyChapters strategy = "chapters_and_articles"
	strategyArticles strategy = "articles_only"
	strategyHeadings strategy = "markdown_headings"
	strategyFlat     strategy = "flat_fallback"
)

// Chunk parses docText into a Document rooted at document_id, choosing a
// structural strategy per the cues present. It never fails: for a document
// with no recognizable structure the root holds the file's base name and
// the text goes into detail children of at most max_chunk_chars under it
// (an empty document yields the root alone).
func Chunk(docText, filePath string, documentID pathid.DocumentId, opts Options) domain.Document {
	opts = opts.normalized()
	lines := splitLines(docText)

	strat := detectStrategy(lines)
	logger.Debug("chunk strategy selected", zap.String("document_id", string(documentID)), zap.String("strategy", string(strat)))

	rootPath := pathid.PathFromLabels(nil, 0)
	rootID := pathid.ChunkIdNew(documentID, rootPath)
	root := domain.Chunk{
		ID:            rootID,
		DocumentID:    documentID,
		Path:          rootPath,
		Kind:          domain.KindDocument,
		IndexingLayer: domain.LayerSummary,
		SourceFile:    filePath,
		PageNumber:    1,
	}

	b := newBuilder(documentID, filePath, opts, root)

	switch strat {
	case strategyChapters:
		b.buildChaptersAndArticles(lines, rootID, rootPath)
	case strategyArticles:
		b.buildArticlesOnly(lines, rootID, rootPath)
	case strategyHeadings:
		b.buildHeadingsOnly(lines, rootID, rootPath)
	default:
		b.buildFlatFallback(strings.Join(dropEmpty(lines), "\n"), rootID, rootPath)
	}

	if strat == strategyFlat && len(b.chunks) == 1 && strings.TrimSpace(docText) == "" {
		logger.Warn("unstructured document with empty content", zap.String("document_id", string(documentID)))
	}

	root = b.chunks[0]
	root.Content = titleOrFilename(filePath)
	root.ArticleNumber = ""
	root.IndexingLayer = domain.LayerSummary
	b.chunks[0] = root

	linkChildren(b.chunks)

	return domain.Document{
		ID:         documentID,
		Title:      titleOrFilename(filePath),
		SourceFile: filePath,
		Chunks:     b.chunks,
	}
}

func titleOrFilename(filePath string) string {
	base := filePath
	if idx := strings.LastIndex(base, "/"); idx >= 0 {
		base = base[idx+1:]
	}
	if idx := strings.LastIndex(base, "."); idx > 0 {
		base = base[:idx]
	}
	return base
}

func detectStrategy(lines []line) strategy {
	hasChapter, hasArticle, hasHeading := false, false, false
	for _, l := range lines {
		if chapterRe.MatchString(l.text) {
			hasChapter = true
		}
		if articleRe.MatchString(l.text) {
			hasArticle = true
		}
		if headingRe.MatchString(l.text) {
			hasHeading = true
		}
	}
	switch {
	case hasChapter && hasArticle:
		return strategyChapters
	case hasArticle:
		return strategyArticles
	case hasHeading:
		return strategyHeadings
	default:
		return strategyFlat
	}
}

func splitLines(text string) []line {
	raw := strings.Split(text, "\n")
	out := make([]line, len(raw))
	for i, r := range raw {
		out[i] = line{text: r}
	}
	return out
}

func dropEmpty(lines []line) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if strings.TrimSpace(l.text) != "" {
			out = append(out, l.text)
		}
	}
	return out
}

// builder accumulates the chunk tree for one document while a strategy
// method walks its lines; it keeps an id->index map so structural nodes
// (chapters, articles, sections) can receive their body text as later
// lines are folded into them.
type builder struct {
	documentID pathid.DocumentId
	sourceFile string
	opts       Options
	chunks     []domain.Chunk
	index      map[pathid.ChunkId]int
}

func newBuilder(documentID pathid.DocumentId, sourceFile string, opts Options, root domain.Chunk) *builder {
	b := &builder{documentID: documentID, sourceFile: sourceFile, opts: opts}
	b.add(root)
	return b
}

func (b *builder) add(c domain.Chunk) {
	if b.index == nil {
		b.index = make(map[pathid.ChunkId]int)
	}
	c.SourceIndex = len(b.chunks)
	b.index[c.ID] = len(b.chunks)
	b.chunks = append(b.chunks, c)
}

// appendContent folds text into the node's existing content rather than
// overwriting it, since a structural node can accumulate a preamble
// before the next heading closes it out.
func (b *builder) appendContent(id pathid.ChunkId, text string) {
	idx, ok := b.index[id]
	if !ok {
		return
	}
	c := b.chunks[idx]
	if c.Content == "" {
		c.Content = text
	} else {
		c.Content = c.Content + "\n" + text
	}
	b.chunks[idx] = c
}

func joinNonEmpty(lines []string) string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

// buildChaptersAndArticles handles the common two-level statute layout:
// "## 第X章" chapter headings containing "### 第X條" article headings.
// Chapters stay summary-only containers; articles start as LayerBoth
// leaves and are split into detail children only if oversized.
func (b *builder) buildChaptersAndArticles(lines []line, rootID pathid.ChunkId, rootPath pathid.HierarchyPath) {
	var chapterID *pathid.ChunkId
	var chapterPath pathid.HierarchyPath
	var chapterLabel string
	currentID := rootID
	var buf []string

	flush := func() {
		text := strings.TrimSpace(joinNonEmpty(buf))
		buf = nil
		if text != "" {
			b.appendContent(currentID, text)
		}
	}

	for _, l := range lines {
		switch {
		case chapterRe.MatchString(l.text):
			flush()
			label := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(l.text), "##"))
			path := rootPath.Append(label)
			id := pathid.ChunkIdNew(b.documentID, path)
			parent := rootID
			b.add(domain.Chunk{
				ID: id, DocumentID: b.documentID, Path: path, RawLabel: label,
				Kind: domain.KindChapter, IndexingLayer: domain.LayerSummary,
				ParentID: &parent, SourceFile: b.sourceFile, ChapterNumber: label,
			})
			chapterID, chapterPath, chapterLabel = &id, path, label
			currentID = id
		case articleRe.MatchString(l.text):
			flush()
			label := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(l.text), "###"))
			parentID, parentPath := rootID, rootPath
			if chapterID != nil {
				parentID, parentPath = *chapterID, chapterPath
			}
			path := parentPath.Append(label)
			id := pathid.ChunkIdNew(b.documentID, path)
			c := domain.Chunk{
				ID: id, DocumentID: b.documentID, Path: path, RawLabel: label,
				Kind: domain.KindArticle, IndexingLayer: domain.LayerBoth,
				ParentID: &parentID, SourceFile: b.sourceFile, ArticleNumber: label,
			}
			if chapterID != nil {
				c.ChapterNumber = chapterLabel
			}
			b.add(c)
			currentID = id
		default:
			buf = append(buf, l.text)
		}
	}
	flush()
	b.splitOversizedLeaves()
}

// buildArticlesOnly handles a flat article list with no chapter grouping.
func (b *builder) buildArticlesOnly(lines []line, rootID pathid.ChunkId, rootPath pathid.HierarchyPath) {
	currentID := rootID
	var buf []string

	flush := func() {
		text := strings.TrimSpace(joinNonEmpty(buf))
		buf = nil
		if text != "" {
			b.appendContent(currentID, text)
		}
	}

	for _, l := range lines {
		if articleRe.MatchString(l.text) {
			flush()
			label := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(l.text), "###"))
			path := rootPath.Append(label)
			id := pathid.ChunkIdNew(b.documentID, path)
			parent := rootID
			b.add(domain.Chunk{
				ID: id, DocumentID: b.documentID, Path: path, RawLabel: label,
				Kind: domain.KindArticle, IndexingLayer: domain.LayerBoth,
				ParentID: &parent, SourceFile: b.sourceFile, ArticleNumber: label,
			})
			currentID = id
			continue
		}
		buf = append(buf, l.text)
	}
	flush()
	b.splitOversizedLeaves()
}

// buildHeadingsOnly handles generic markdown headings with no recognized
// statute vocabulary: each heading nests under the nearest shallower one.
func (b *builder) buildHeadingsOnly(lines []line, rootID pathid.ChunkId, rootPath pathid.HierarchyPath) {
	type frame struct {
		level int
		id    pathid.ChunkId
		path  pathid.HierarchyPath
	}
	stack := []frame{{level: 0, id: rootID, path: rootPath}}
	currentID := rootID
	var buf []string

	flush := func() {
		text := strings.TrimSpace(joinNonEmpty(buf))
		buf = nil
		if text != "" {
			b.appendContent(currentID, text)
		}
	}

	for _, l := range lines {
		m := headingRe.FindStringSubmatch(l.text)
		if m == nil {
			buf = append(buf, l.text)
			continue
		}
		flush()
		level := len(m[1])
		title := strings.TrimSpace(m[2])
		for len(stack) > 1 && stack[len(stack)-1].level >= level {
			stack = stack[:len(stack)-1]
		}
		parent := stack[len(stack)-1]
		path := parent.path.Append(title)
		id := pathid.ChunkIdNew(b.documentID, path)
		kind := domain.KindSection
		if level <= 2 {
			kind = domain.KindChapter
		}
		parentID := parent.id
		b.add(domain.Chunk{
			ID: id, DocumentID: b.documentID, Path: path, RawLabel: title,
			Kind: kind, IndexingLayer: domain.LayerBoth,
			ParentID: &parentID, SourceFile: b.sourceFile,
		})
		stack = append(stack, frame{level: level, id: id, path: path})
		currentID = id
	}
	flush()
	b.splitOversizedLeaves()
}

// buildFlatFallback handles text with no recognizable structure: it is
// packed into one or more detail siblings under root, splitting on
// paragraph boundaries where possible.
func (b *builder) buildFlatFallback(text string, rootID pathid.ChunkId, rootPath pathid.HierarchyPath) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	parts := splitContent(text, b.opts.MaxChunkChars)
	layer := domain.LayerBoth
	if len(parts) > 1 {
		layer = domain.LayerDetail
	}
	for i, part := range parts {
		label := fmt.Sprintf("part_%d", i+1)
		path := rootPath.Append(label)
		id := pathid.ChunkIdNew(b.documentID, path)
		parent := rootID
		b.add(domain.Chunk{
			ID: id, DocumentID: b.documentID, Path: path, RawLabel: label,
			Kind: domain.KindDetail, IndexingLayer: layer,
			ParentID: &parent, Content: part, SourceFile: b.sourceFile,
		})
	}
}

// splitOversizedLeaves demotes any LayerBoth chunk whose content exceeds
// max_chunk_chars to a summary-only node and fans its full text out into
// LayerDetail children placed directly after it, so the chunk slice (and
// every SourceIndex) stays in pre-order.
func (b *builder) splitOversizedLeaves() {
	snapshot := b.chunks
	b.chunks = make([]domain.Chunk, 0, len(snapshot))
	b.index = nil
	for _, c := range snapshot {
		if c.IndexingLayer != domain.LayerBoth || c.CharCount() <= b.opts.MaxChunkChars {
			b.add(c)
			continue
		}
		b.splitLeaf(c)
	}
}

func (b *builder) splitLeaf(c domain.Chunk) {
	parts := splitContent(c.Content, b.opts.MaxChunkChars)
	full := c.Content
	c.IndexingLayer = domain.LayerSummary
	c.Content = truncate(full, b.opts.SummaryMaxLen)
	b.add(c)

	for i, part := range parts {
		label := fmt.Sprintf("part_%d", i+1)
		path := c.Path.Append(label)
		id := pathid.ChunkIdNew(b.documentID, path)
		parent := c.ID
		b.add(domain.Chunk{
			ID: id, DocumentID: b.documentID, Path: path, RawLabel: label,
			Kind: domain.KindDetail, IndexingLayer: domain.LayerDetail,
			ParentID: &parent, Content: part, SourceFile: c.SourceFile,
			ArticleNumber: c.ArticleNumber, ChapterNumber: c.ChapterNumber,
		})
	}
}

// splitContent packs text into <=max-char pieces, breaking on paragraph
// boundaries when possible and falling back to a hard rune split for any
// paragraph that alone exceeds max.
func splitContent(text string, max int) []string {
	paragraphs := strings.Split(text, "\n\n")
	var out []string
	var cur []string
	curLen := 0

	flush := func() {
		if len(cur) == 0 {
			return
		}
		out = append(out, strings.Join(cur, "\n\n"))
		cur = nil
		curLen = 0
	}

	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		plen := len([]rune(p))
		if plen > max {
			flush()
			out = append(out, hardSplit(p, max)...)
			continue
		}
		if curLen+plen > max && curLen > 0 {
			flush()
		}
		cur = append(cur, p)
		curLen += plen
	}
	flush()

	if len(out) == 0 {
		return hardSplit(text, max)
	}
	return out
}

func hardSplit(s string, max int) []string {
	if max <= 0 {
		max = DefaultMaxChunkChars
	}
	r := []rune(s)
	out := make([]string, 0, len(r)/max+1)
	for i := 0; i < len(r); i += max {
		end := i + max
		if end > len(r) {
			end = len(r)
		}
		out = append(out, string(r[i:end]))
	}
	return out
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}

// linkChildren populates each chunk's ChildrenIDs from the flat slice's
// ParentID pointers, in slice order.
func linkChildren(chunks []domain.Chunk) {
	byID := make(map[pathid.ChunkId]int, len(chunks))
	for i, c := range chunks {
		byID[c.ID] = i
	}
	for i := range chunks {
		chunks[i].ChildrenIDs = nil
	}
	for _, c := range chunks {
		if c.ParentID == nil {
			continue
		}
		if pi, ok := byID[*c.ParentID]; ok {
			chunks[pi].ChildrenIDs = append(chunks[pi].ChildrenIDs, c.ID)
		}
	}
}
