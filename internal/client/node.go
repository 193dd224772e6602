// Package client provides the in-memory mirror of the task tree that a
// view layer reads from.
//
// The mirror holds only the portion of the tree the user has expanded,
// one page of children per expanded node. Server responses are folded in
// by pure reducer functions (Apply*) that locate the target node
// anywhere in the materialized tree and rebuild the root-to-node spine,
// so the previous tree value is never mutated. Session drives the
// request/response cycle against the REST API and owns staleness
// bookkeeping (one in-flight request per node, page tokens, fetch
// generations).
package client

import (
	"github.com/taskgrove/taskgrove/internal/task"
)

// Node mirrors one materialized task.
//
// SubtasksCount is the server-reported size of the node's whole subtree
// (direct and indirect descendants). It survives collapse so the "N
// subtasks" label stays visible without a fetch. ChildTotal is the
// direct-children total backing pagination, meaningful while the node
// is expanded.
type Node struct {
	ID          string
	Title       string
	Description string
	Status      task.Status
	ParentID    *string

	SubtasksCount int

	Expanded   bool
	Children   []*Node
	Page       int
	TotalPages int
	ChildTotal int
}

// Tree is the cache root: the current page of root-level tasks plus its
// pagination state.
type Tree struct {
	Roots      []*Node
	Page       int
	TotalPages int
	Total      int
}

// NewTree returns an empty cache.
func NewTree() *Tree {
	return &Tree{Page: 1, TotalPages: 1}
}

// PageData is one server page response, used when a reducer replaces a
// loaded page wholesale.
type PageData struct {
	Tasks       []task.Task
	Total       int
	TotalPages  int
	CurrentPage int
}

// newNode materializes a server task as a fresh, collapsed node.
func newNode(t task.Task) *Node {
	return &Node{
		ID:            t.ID,
		Title:         t.Title,
		Description:   t.Description,
		Status:        t.Status,
		ParentID:      t.ParentID,
		SubtasksCount: t.SubtasksCount,
		Page:          1,
		TotalPages:    1,
	}
}

func newNodes(tasks []task.Task) []*Node {
	nodes := make([]*Node, len(tasks))
	for i, t := range tasks {
		nodes[i] = newNode(t)
	}
	return nodes
}

// clone returns a shallow copy of n with its own Children slice, so the
// copy can be relinked without touching the original.
func (n *Node) clone() *Node {
	c := *n
	c.Children = append([]*Node(nil), n.Children...)
	return &c
}

// clone returns a copy of t with its own Roots slice.
func (t *Tree) clone() *Tree {
	c := *t
	c.Roots = append([]*Node(nil), t.Roots...)
	return &c
}

// Find returns the node with the given id anywhere in the materialized
// tree, or nil. Ids are globally unique, so the first match is the only
// match.
func (t *Tree) Find(id string) *Node {
	path := findPath(t.Roots, id)
	if path == nil {
		return nil
	}
	return path[len(path)-1]
}
