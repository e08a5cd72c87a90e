package jsast

import (
	"fmt"
	"sort"
)

// edit is one pending span replacement against the original source.
type edit struct {
	start, end int
	text       string
}

// Replace queues replacement of the node's span with newText.
func (t *Tree) Replace(n Node, newText string) {
	t.edits = append(t.edits, edit{start: n.StartByte(), end: n.EndByte(), text: newText})
}

// Remove queues deletion of the node's span.
func (t *Tree) Remove(n Node) {
	t.edits = append(t.edits, edit{start: n.StartByte(), end: n.EndByte()})
}

// RemoveSpan queues deletion of an arbitrary byte range.
func (t *Tree) RemoveSpan(start, end int) {
	t.edits = append(t.edits, edit{start: start, end: end})
}

// InsertBefore queues insertion of text immediately before the node.
func (t *Tree) InsertBefore(n Node, text string) {
	t.edits = append(t.edits, edit{start: n.StartByte(), end: n.StartByte(), text: text})
}

// InsertAfter queues insertion of text immediately after the node.
func (t *Tree) InsertAfter(n Node, text string) {
	t.edits = append(t.edits, edit{start: n.EndByte(), end: n.EndByte(), text: text})
}

// EditCount returns the number of pending edits.
func (t *Tree) EditCount() int { return len(t.edits) }

// Generate applies pending edits to the source and returns the result.
// Edits are applied right-to-left so earlier spans stay valid.
// Overlapping replacement spans are an invariant violation: a pass must
// not queue two edits over the same region.
func (t *Tree) Generate() (string, error) {
	if len(t.edits) == 0 {
		return string(t.src), nil
	}

	edits := make([]edit, len(t.edits))
	copy(edits, t.edits)
	sort.SliceStable(edits, func(i, j int) bool {
		if edits[i].start != edits[j].start {
			return edits[i].start < edits[j].start
		}
		return edits[i].end < edits[j].end
	})

	for i := 1; i < len(edits); i++ {
		prev, cur := edits[i-1], edits[i]
		// Pure insertions at the same point are allowed.
		if cur.start < prev.end {
			return "", fmt.Errorf("overlapping edits [%d,%d) and [%d,%d)",
				prev.start, prev.end, cur.start, cur.end)
		}
	}

	out := make([]byte, 0, len(t.src))
	last := 0
	for _, e := range edits {
		out = append(out, t.src[last:e.start]...)
		out = append(out, e.text...)
		last = e.end
	}
	out = append(out, t.src[last:]...)
	return string(out), nil
}
