// Package pathid implements the path and identity primitives: ASCII-safe
// hierarchical paths and deterministic document/chunk identifiers.
package pathid

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/duke-git/lancet/v2/cryptor"
)

// RootLabel is the sentinel first label of every HierarchyPath.
const RootLabel = "root"

// digestTag prefixes an ASCII-substituted non-ASCII path label.
const digestTag = "seg_"

var nonAlnumUnderscore = regexp.MustCompile(`[^a-z0-9_]+`)

// HierarchyPath is an ordered, ASCII-safe sequence of path labels. The
// first label is always RootLabel; depth is len(Labels)-1.
type HierarchyPath struct {
	Labels []string
}

// Depth returns the path's depth (label count minus one).
func (p HierarchyPath) Depth() int {
	if len(p.Labels) == 0 {
		return 0
	}
	return len(p.Labels) - 1
}

// String renders the path as a "/"-joined token, usable as a materialized
// path storage key.
func (p HierarchyPath) String() string {
	return strings.Join(p.Labels, "/")
}

// Equals reports whether two paths have identical label sequences.
func (p HierarchyPath) Equals(other HierarchyPath) bool {
	if len(p.Labels) != len(other.Labels) {
		return false
	}
	for i := range p.Labels {
		if p.Labels[i] != other.Labels[i] {
			return false
		}
	}
	return true
}

// IsAncestorOf reports whether p is a strict prefix of other's labels.
func (p HierarchyPath) IsAncestorOf(other HierarchyPath) bool {
	if len(p.Labels) >= len(other.Labels) {
		return false
	}
	for i := range p.Labels {
		if p.Labels[i] != other.Labels[i] {
			return false
		}
	}
	return true
}

// IsDescendantOf reports whether other is a strict prefix of p's labels.
func (p HierarchyPath) IsDescendantOf(other HierarchyPath) bool {
	return other.IsAncestorOf(p)
}

// Append returns a child path with segment appended, sanitized per the
// same ASCII-safety rule as path_from_labels.
func (p HierarchyPath) Append(rawSegment string) HierarchyPath {
	labels := make([]string, len(p.Labels), len(p.Labels)+1)
	copy(labels, p.Labels)
	labels = append(labels, sanitizeLabel(rawSegment))
	return HierarchyPath{Labels: labels}
}

// PathFromLabels builds a HierarchyPath of exactly depth+1 labels. The
// first label is always RootLabel and is not taken from labels: callers
// pass the depth labels below the root only (len(labels) == depth), and
// labels[0] becomes the depth-1 label.
// Every non-ASCII label is replaced by an 8-hex-digit MD5 digest of its
// UTF-8 bytes, tagged with digestTag; ASCII labels are lowercased with
// disallowed characters folded to underscore. Digest collisions are
// accepted as probabilistically negligible within one document; the raw
// label is preserved separately (in chunk metadata) for display.
func PathFromLabels(labels []string, depth int) HierarchyPath {
	if depth < 0 {
		depth = 0
	}
	out := make([]string, 0, depth+1)
	out = append(out, RootLabel)
	for i := 0; i < depth; i++ {
		if i < len(labels) {
			out = append(out, sanitizeLabel(labels[i]))
		} else {
			out = append(out, digestOf(""))
		}
	}
	return HierarchyPath{Labels: out}
}

func sanitizeLabel(raw string) string {
	if isASCII(raw) {
		lower := strings.ToLower(raw)
		return nonAlnumUnderscore.ReplaceAllString(lower, "_")
	}
	return digestOf(raw)
}

func digestOf(raw string) string {
	sum := cryptor.Md5String(raw)
	if len(sum) > 8 {
		sum = sum[:8]
	}
	return digestTag + sum
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 127 {
			return false
		}
	}
	return true
}

// DocumentId is a stable identifier for a document, derived from its
// source filename.
type DocumentId string

const maxDocumentIDLen = 63

// DocumentIdFromFilename strips the extension, sanitizes non-ASCII
// segments the same way path labels are sanitized, and truncates to
// maxDocumentIDLen.
func DocumentIdFromFilename(name string) DocumentId {
	base := name
	if idx := strings.LastIndex(base, "/"); idx >= 0 {
		base = base[idx+1:]
	}
	if idx := strings.LastIndex(base, "."); idx > 0 {
		base = base[:idx]
	}
	sanitized := sanitizeLabel(base)
	if len(sanitized) > maxDocumentIDLen {
		sanitized = sanitized[:maxDocumentIDLen]
	}
	return DocumentId(sanitized)
}

// ChunkId is a globally unique, deterministic identifier for a node in a
// document tree: stable across re-indexings when source and position are
// stable.
type ChunkId string

// ChunkIdNew derives a ChunkId from (document_id, path). Deterministic:
// equal inputs always yield the equal output.
func ChunkIdNew(documentID DocumentId, path HierarchyPath) ChunkId {
	key := fmt.Sprintf("%s|%s", documentID, path.String())
	return ChunkId(cryptor.Md5String(key))
}
