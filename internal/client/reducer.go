package client

import (
	"github.com/taskgrove/taskgrove/internal/query"
	"github.com/taskgrove/taskgrove/internal/task"
)

// Reducers fold one server response into the cache. Each is pure: the
// old tree is left untouched and a new tree is returned (the two share
// every node off the rewritten spine). A reducer that cannot locate its
// target returns the old tree unchanged; the target simply is not
// materialized anymore.

const pageSize = query.PageSize

// ApplyRootPage replaces the root-level slice with a fresh server page.
// Every item enters collapsed.
func ApplyRootPage(t *Tree, items []task.Task, page, totalPages, total int) *Tree {
	return &Tree{
		Roots:      newNodes(items),
		Page:       page,
		TotalPages: clampPages(totalPages),
		Total:      total,
	}
}

// ApplyExpand marks id expanded and installs the fetched page of its
// children, each entering collapsed.
func ApplyExpand(t *Tree, id string, items []task.Task, page, totalPages, total int) *Tree {
	nt, _ := t.rebuild(id, func(n *Node, isTarget bool) {
		if !isTarget {
			return
		}
		n.Expanded = true
		n.Children = newNodes(items)
		n.Page = page
		n.TotalPages = clampPages(totalPages)
		n.ChildTotal = total
	})
	return nt
}

// ApplyCollapse clears id's loaded children and resets its page to 1.
// SubtasksCount is untouched so the count label survives collapse.
func ApplyCollapse(t *Tree, id string) *Tree {
	nt, _ := t.rebuild(id, func(n *Node, isTarget bool) {
		if !isTarget {
			return
		}
		n.Expanded = false
		n.Children = nil
		n.Page = 1
	})
	return nt
}

// ApplyPageChange installs a different page of an already-expanded
// node's children. Re-applying the node's current page with unchanged
// totals is a no-op.
func ApplyPageChange(t *Tree, id string, items []task.Task, page, totalPages, total int) *Tree {
	n := t.Find(id)
	if n != nil && n.Page == page && n.TotalPages == clampPages(totalPages) && n.ChildTotal == total {
		return t
	}
	return ApplyExpand(t, id, items, page, totalPages, total)
}

// ApplyCreate folds a successful create. A nil parentID targets the
// root slice; otherwise the new task is appended to the parent's loaded
// page when that page is the last one and not yet full, and the
// subtask count is incremented on the parent and on every ancestor up
// to the root.
func ApplyCreate(t *Tree, parentID *string, created task.Task) *Tree {
	if parentID == nil {
		nt := t.clone()
		if nt.Page == nt.TotalPages && len(nt.Roots) < pageSize {
			nt.Roots = append(nt.Roots, newNode(created))
		}
		nt.Total++
		nt.TotalPages = pagesFor(nt.Total)
		return nt
	}

	nt, _ := t.rebuild(*parentID, func(n *Node, isTarget bool) {
		n.SubtasksCount++
		if !isTarget || !n.Expanded {
			return
		}
		if n.Page == n.TotalPages && len(n.Children) < pageSize {
			n.Children = append(n.Children, newNode(created))
		}
		n.ChildTotal++
		n.TotalPages = pagesFor(n.ChildTotal)
	})
	return nt
}

// ApplyDelete removes id from its parent's loaded children (or the root
// slice) and decrements every ancestor's subtask count by one plus the
// deleted node's own subtask count as of deletion time.
//
// When refreshed carries a server re-fetch of the parent's current page
// (used when the deletion leaves the page under-full while later pages
// have items to roll up), the loaded page is replaced wholesale instead
// of spliced; surviving siblings keep their expansion state.
func ApplyDelete(t *Tree, id string, refreshed *PageData) *Tree {
	path := findPath(t.Roots, id)
	if path == nil {
		return t
	}
	target := path[len(path)-1]
	delta := 1 + target.SubtasksCount

	if len(path) == 1 {
		nt := t.clone()
		if refreshed != nil {
			nt.Roots = mergePage(refreshed.Tasks, t.Roots)
			nt.Total = refreshed.Total
			nt.TotalPages = clampPages(refreshed.TotalPages)
			nt.Page = refreshed.CurrentPage
		} else {
			nt.Roots = splice(nt.Roots, id)
			nt.Total--
			nt.TotalPages = pagesFor(nt.Total)
			if nt.Page > nt.TotalPages {
				nt.Page = nt.TotalPages
			}
		}
		return nt
	}

	parent := path[len(path)-2]
	nt, _ := t.rebuild(parent.ID, func(n *Node, isTarget bool) {
		n.SubtasksCount -= delta
		if !isTarget {
			return
		}
		if refreshed != nil {
			n.Children = mergePage(refreshed.Tasks, n.Children)
			n.ChildTotal = refreshed.Total
			n.TotalPages = clampPages(refreshed.TotalPages)
			n.Page = refreshed.CurrentPage
		} else {
			n.Children = splice(n.Children, id)
			n.ChildTotal--
			n.TotalPages = pagesFor(n.ChildTotal)
			if n.Page > n.TotalPages {
				n.Page = n.TotalPages
			}
		}
	})
	return nt
}

// ApplyComplete marks id completed, along with every currently-loaded
// descendant. Descendants that are not materialized arrive already
// completed the next time their page is fetched.
func ApplyComplete(t *Tree, id string) *Tree {
	nt, _ := t.rebuild(id, func(n *Node, isTarget bool) {
		if !isTarget {
			return
		}
		n.Status = task.StatusCompleted
		for i, child := range n.Children {
			n.Children[i] = completeLoaded(child)
		}
	})
	return nt
}

// ApplyEdit patches id's title and description. No structural change.
func ApplyEdit(t *Tree, id, title, description string) *Tree {
	nt, _ := t.rebuild(id, func(n *Node, isTarget bool) {
		if !isTarget {
			return
		}
		n.Title = title
		n.Description = description
	})
	return nt
}

// completeLoaded returns a completed copy of n's loaded subtree.
func completeLoaded(n *Node) *Node {
	c := n.clone()
	c.Status = task.StatusCompleted
	for i, child := range c.Children {
		c.Children[i] = completeLoaded(child)
	}
	return c
}

// mergePage materializes a refreshed server page, carrying over the
// expansion state of nodes that were already loaded.
func mergePage(tasks []task.Task, existing []*Node) []*Node {
	byID := make(map[string]*Node, len(existing))
	for _, n := range existing {
		byID[n.ID] = n
	}
	nodes := make([]*Node, len(tasks))
	for i, tk := range tasks {
		fresh := newNode(tk)
		if old, ok := byID[tk.ID]; ok {
			fresh.Expanded = old.Expanded
			fresh.Children = old.Children
			fresh.Page = old.Page
			fresh.TotalPages = old.TotalPages
			fresh.ChildTotal = old.ChildTotal
		}
		nodes[i] = fresh
	}
	return nodes
}

func splice(nodes []*Node, id string) []*Node {
	out := make([]*Node, 0, len(nodes))
	for _, n := range nodes {
		if n.ID != id {
			out = append(out, n)
		}
	}
	return out
}

func pagesFor(total int) int {
	pages := (total + pageSize - 1) / pageSize
	if pages < 1 {
		pages = 1
	}
	return pages
}

func clampPages(pages int) int {
	if pages < 1 {
		return 1
	}
	return pages
}
