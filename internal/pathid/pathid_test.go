package pathid

import (
	"testing"

	"pgregory.net/rapid"
)

// TestProperty_PathFromLabelsDeterministic 测试路径生成的确定性
// 对于任意标签序列与深度，重复调用 PathFromLabels 必须产生完全相同的路径。
func TestProperty_PathFromLabelsDeterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		depth := rapid.IntRange(0, 6).Draw(t, "depth")
		labels := rapid.SliceOfN(rapid.StringMatching(`[a-zA-Z0-9第一二三章條款]{1,12}`), depth, depth).Draw(t, "labels")

		p1 := PathFromLabels(labels, depth)
		p2 := PathFromLabels(labels, depth)

		if !p1.Equals(p2) {
			t.Fatalf("PathFromLabels not deterministic: %v != %v", p1, p2)
		}
		if len(p1.Labels) != depth+1 {
			t.Fatalf("expected %d labels, got %d", depth+1, len(p1.Labels))
		}
		if p1.Labels[0] != RootLabel {
			t.Fatalf("first label must be sentinel root, got %q", p1.Labels[0])
		}
		if p1.Depth() != depth {
			t.Fatalf("depth mismatch: want %d got %d", depth, p1.Depth())
		}
	})
}

// TestProperty_AncestorDescendantAreInverse 测试祖先/后代关系互逆
func TestProperty_AncestorDescendantAreInverse(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		depth := rapid.IntRange(1, 5).Draw(t, "depth")
		labels := rapid.SliceOfN(rapid.StringMatching(`[a-z0-9]{1,8}`), depth, depth).Draw(t, "labels")
		child := PathFromLabels(labels, depth)
		parent := PathFromLabels(labels[:depth-1], depth-1)

		if !parent.IsAncestorOf(child) {
			t.Fatalf("expected %v to be ancestor of %v", parent, child)
		}
		if !child.IsDescendantOf(parent) {
			t.Fatalf("expected %v to be descendant of %v", child, parent)
		}
		if parent.IsAncestorOf(parent) {
			t.Fatalf("a path must not be its own strict ancestor")
		}
	})
}

func TestPathFromLabels_NonASCIISubstitution(t *testing.T) {
	p := PathFromLabels([]string{"第一章", "第7條"}, 2)
	if len(p.Labels) != 3 {
		t.Fatalf("expected 3 labels, got %d", len(p.Labels))
	}
	if p.Labels[0] != RootLabel {
		t.Fatalf("expected root sentinel, got %q", p.Labels[0])
	}
	for _, l := range p.Labels[1:] {
		for _, r := range l {
			if r > 127 {
				t.Fatalf("label %q contains non-ASCII byte", l)
			}
		}
	}
}

func TestChunkIdNew_Deterministic(t *testing.T) {
	docID := DocumentIdFromFilename("陸海空軍懲罰法.md")
	path := PathFromLabels([]string{"第一章"}, 1)

	id1 := ChunkIdNew(docID, path)
	id2 := ChunkIdNew(docID, path)
	if id1 != id2 {
		t.Fatalf("ChunkIdNew not deterministic: %s != %s", id1, id2)
	}

	other := PathFromLabels([]string{"第二章"}, 1)
	if ChunkIdNew(docID, other) == id1 {
		t.Fatalf("different paths must not collide")
	}
}

func TestDocumentIdFromFilename_ASCIIAndLength(t *testing.T) {
	id := DocumentIdFromFilename("陸海空軍懲罰法.md")
	if len(id) == 0 || len(id) > maxDocumentIDLen {
		t.Fatalf("document id length out of bounds: %q", id)
	}
	for _, r := range string(id) {
		if r > 127 {
			t.Fatalf("document id must be ASCII, got %q", id)
		}
	}
}
