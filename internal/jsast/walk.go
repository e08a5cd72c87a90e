package jsast

// Visitor maps node kinds to enter/exit callbacks. The empty key ""
// matches every kind. Exit callbacks are guaranteed on backtrack even
// when enter requested a skip of the subtree via Path.SkipChildren.
type Visitor struct {
	Enter map[string]func(*Path)
	Exit  map[string]func(*Path)
}

// Path is the traversal handle passed to visitor callbacks. It exposes
// the current node and its ancestor chain. Traversal state that a pass
// needs (counts, rename maps) lives in the pass, not here.
type Path struct {
	tree  *Tree
	stack []Node
	skip  bool
}

// Node returns the node the callback fires for.
func (p *Path) Node() Node { return p.stack[len(p.stack)-1] }

// Parent returns the immediate parent, invalid at the root.
func (p *Path) Parent() Node {
	if len(p.stack) < 2 {
		return Node{}
	}
	return p.stack[len(p.stack)-2]
}

// Depth returns the number of ancestors above the current node.
func (p *Path) Depth() int { return len(p.stack) - 1 }

// Ancestor returns the i-th ancestor (0 = parent), invalid when out of
// range.
func (p *Path) Ancestor(i int) Node {
	idx := len(p.stack) - 2 - i
	if idx < 0 {
		return Node{}
	}
	return p.stack[idx]
}

// ScopeID returns the enclosing function scope id of the current node.
func (p *Path) ScopeID() int {
	for i := len(p.stack) - 2; i >= 0; i-- {
		if p.stack[i].IsFunctionLike() {
			return p.stack[i].StartByte()
		}
	}
	return 0
}

// SkipChildren prevents descent into the current node's children. The
// exit callback still fires.
func (p *Path) SkipChildren() { p.skip = true }

// Walk traverses the tree depth-first, left-to-right, in document
// order. Enter fires before children, exit after; traversal always
// runs to completion.
func (t *Tree) Walk(v Visitor) {
	p := &Path{tree: t}
	walkNode(t.Root(), v, p)
}

func walkNode(n Node, v Visitor, p *Path) {
	if !n.Valid() {
		return
	}
	p.stack = append(p.stack, n)
	p.skip = false

	kind := n.Kind()
	if v.Enter != nil {
		if cb, ok := v.Enter[kind]; ok {
			cb(p)
		}
		if cb, ok := v.Enter[""]; ok {
			cb(p)
		}
	}

	if !p.skip {
		count := n.ChildCount()
		for i := 0; i < count; i++ {
			walkNode(n.Child(i), v, p)
		}
	}

	if v.Exit != nil {
		if cb, ok := v.Exit[kind]; ok {
			cb(p)
		}
		if cb, ok := v.Exit[""]; ok {
			cb(p)
		}
	}
	p.stack = p.stack[:len(p.stack)-1]
}

// WalkNamed is Walk restricted to named nodes; anonymous punctuation is
// skipped. Most passes use this.
func (t *Tree) WalkNamed(v Visitor) {
	p := &Path{tree: t}
	walkNamed(t.Root(), v, p)
}

func walkNamed(n Node, v Visitor, p *Path) {
	if !n.Valid() {
		return
	}
	p.stack = append(p.stack, n)
	p.skip = false

	kind := n.Kind()
	if v.Enter != nil {
		if cb, ok := v.Enter[kind]; ok {
			cb(p)
		}
		if cb, ok := v.Enter[""]; ok {
			cb(p)
		}
	}

	if !p.skip {
		count := n.NamedChildCount()
		for i := 0; i < count; i++ {
			walkNamed(n.NamedChild(i), v, p)
		}
	}

	if v.Exit != nil {
		if cb, ok := v.Exit[kind]; ok {
			cb(p)
		}
		if cb, ok := v.Exit[""]; ok {
			cb(p)
		}
	}
	p.stack = p.stack[:len(p.stack)-1]
}
