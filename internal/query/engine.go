// Package query wraps the task store's page reads with the pagination
// policy and produces the wire-level envelope returned to clients.
//
// The engine is stateless and side-effect-free: a call maps to one
// store read, or two when an out-of-range page has to be clamped to the
// last page.
package query

import (
	"context"

	"github.com/taskgrove/taskgrove/internal/task"
)

const (
	// PageSize is the fixed page size for both root-level and nested
	// listings.
	PageSize = 5

	// MaxLimit caps client-supplied limits; descendant counts are
	// recomputed per item, so unbounded pages would be unbounded work.
	MaxLimit = 100
)

// Pager is the slice of the store the engine needs.
type Pager interface {
	GetPage(ctx context.Context, parentID *string, page, limit int, includeCounts bool) ([]task.Task, int, error)
}

// Result is the pagination envelope. TotalPages is always at least 1 so
// an empty listing still renders as one (empty) page.
type Result struct {
	Tasks       []task.Task `json:"tasks"`
	Total       int         `json:"total"`
	TotalPages  int         `json:"totalPages"`
	CurrentPage int         `json:"currentPage"`
}

// Engine applies the page-size policy on top of a Pager.
type Engine struct {
	store    Pager
	pageSize int
}

// NewEngine creates an engine over store. pageSize <= 0 selects the
// default PageSize.
func NewEngine(store Pager, pageSize int) *Engine {
	if pageSize <= 0 {
		pageSize = PageSize
	}
	return &Engine{store: store, pageSize: pageSize}
}

// PageSize returns the engine's default page size.
func (e *Engine) PageSize() int {
	return e.pageSize
}

// Page returns one page of the direct children of parentID (nil selects
// root-level tasks).
//
// page < 1 defaults to 1; limit <= 0 defaults to the engine page size
// and is capped at MaxLimit. The returned envelope is internally
// consistent: totalPages = max(1, ceil(total/limit)) and
// 1 <= currentPage <= totalPages — a page past the end is clamped to
// the last page rather than echoed back empty.
func (e *Engine) Page(ctx context.Context, parentID *string, page, limit int, includeCounts bool) (*Result, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = e.pageSize
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	tasks, total, err := e.store.GetPage(ctx, parentID, page, limit, includeCounts)
	if err != nil {
		return nil, err
	}

	pages := totalPages(total, limit)
	if page > pages {
		page = pages
		tasks, total, err = e.store.GetPage(ctx, parentID, page, limit, includeCounts)
		if err != nil {
			return nil, err
		}
	}

	if tasks == nil {
		tasks = []task.Task{}
	}

	return &Result{
		Tasks:       tasks,
		Total:       total,
		TotalPages:  totalPages(total, limit),
		CurrentPage: page,
	}, nil
}

func totalPages(total, limit int) int {
	pages := (total + limit - 1) / limit
	if pages < 1 {
		pages = 1
	}
	return pages
}
