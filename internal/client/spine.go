package client

// findPath returns the root-to-target chain of nodes for id, searching
// depth-first through loaded children. Returns nil when id is not
// materialized. Callers that need the ancestors for count propagation
// use the full path; callers that only need the node take the last
// element.
func findPath(roots []*Node, id string) []*Node {
	for _, n := range roots {
		if n.ID == id {
			return []*Node{n}
		}
		if sub := findPath(n.Children, id); sub != nil {
			return append([]*Node{n}, sub...)
		}
	}
	return nil
}

// rebuild is the single spine-rewrite utility behind every reducer.
//
// It locates id, copies every node on the root-to-id path, relinks the
// copies into a copied tree, and calls visit once per copied node
// (target last, with isTarget true). visit may mutate the copy freely;
// nodes off the spine are shared with the old tree and must not be
// touched. The second result is false when id is not materialized, in
// which case the original tree is returned unchanged.
func (t *Tree) rebuild(id string, visit func(n *Node, isTarget bool)) (*Tree, bool) {
	path := findPath(t.Roots, id)
	if path == nil {
		return t, false
	}

	nt := t.clone()
	var parent *Node
	for i, orig := range path {
		c := orig.clone()
		if parent == nil {
			replaceNode(nt.Roots, orig, c)
		} else {
			replaceNode(parent.Children, orig, c)
		}
		visit(c, i == len(path)-1)
		parent = c
	}
	return nt, true
}

func replaceNode(nodes []*Node, old, new *Node) {
	for i, n := range nodes {
		if n == old {
			nodes[i] = new
			return
		}
	}
}
