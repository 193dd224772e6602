package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/taskgrove/taskgrove/internal/task"
)

// ErrBusy is returned when an intent targets a node that already has a
// request in flight. The view layer disables the triggering control for
// the duration of its one request; this makes the rule enforceable even
// when it doesn't.
var ErrBusy = errors.New("request already in flight for this node")

// rootKey is the in-flight/staleness bookkeeping key for the root slice.
const rootKey = ""

// Session drives the request/response cycle for one tree view.
//
// Every user intent maps to one request; the response is folded into the
// tree by a reducer only if it is still current:
//
//   - at most one in-flight request per node (ErrBusy otherwise)
//   - a per-node "last requested page" token; a response for any other
//     page is discarded as out of order
//   - a per-node fetch generation, bumped on collapse; a child-page
//     response carrying an older generation is discarded, which is how
//     collapse logically cancels an in-flight expand
//
// The tree is only touched after a successful response; there are no
// optimistic updates. Session is safe for concurrent use.
type Session struct {
	remote *remote
	logger *slog.Logger

	mu       sync.Mutex // held across map+tree updates, never across network calls
	tree     *Tree
	inflight map[string]bool
	lastPage map[string]int
	gen      map[string]uint64
}

// NewSession creates a session against the REST API at baseURL. A nil
// http.Client gets a sensible default; a nil logger discards.
func NewSession(baseURL string, hc *http.Client, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Session{
		remote:   newRemote(baseURL, hc),
		logger:   logger,
		tree:     NewTree(),
		inflight: make(map[string]bool),
		lastPage: make(map[string]int),
		gen:      make(map[string]uint64),
	}
}

// Tree returns the current cache snapshot. Reducers never mutate a
// published tree, so the snapshot is safe to read without coordination.
func (s *Session) Tree() *Tree {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree
}

// begin reserves the in-flight slot for key and records the requested
// page token. It returns the fetch generation current at issue time.
func (s *Session) begin(key string, page int) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[key] {
		return 0, ErrBusy
	}
	s.inflight[key] = true
	s.lastPage[key] = page
	return s.gen[key], nil
}

func (s *Session) end(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, key)
}

// fold applies fn to the tree iff the response identified by (key, page,
// gen) is still the latest one requested for that node.
func (s *Session) fold(key string, page int, gen uint64, fn func(*Tree) *Tree) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen[key] != gen || s.lastPage[key] != page {
		s.logger.Debug("discarding stale response", "node", key, "page", page)
		return
	}
	s.tree = fn(s.tree)
}

// dropStale evicts id from the cache after the server reported it gone.
func (s *Session) dropStale(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree = ApplyDelete(s.tree, id, nil)
}

// LoadRoot fetches page 1 of the root-level tasks.
func (s *Session) LoadRoot(ctx context.Context) error {
	return s.rootPage(ctx, 1)
}

// ChangeRootPage navigates the root slice to the given page. Requesting
// the current page is a fast no-op.
func (s *Session) ChangeRootPage(ctx context.Context, page int) error {
	s.mu.Lock()
	current := s.tree.Page
	loaded := len(s.tree.Roots) > 0 || s.tree.Total == 0
	s.mu.Unlock()
	if loaded && page == current {
		return nil
	}
	return s.rootPage(ctx, page)
}

func (s *Session) rootPage(ctx context.Context, page int) error {
	gen, err := s.begin(rootKey, page)
	if err != nil {
		return err
	}
	defer s.end(rootKey)

	data, err := s.remote.page(ctx, nil, page)
	if err != nil {
		return err
	}
	s.fold(rootKey, page, gen, func(t *Tree) *Tree {
		return ApplyRootPage(t, data.Tasks, data.CurrentPage, data.TotalPages, data.Total)
	})
	return nil
}

// Expand materializes page 1 of id's children.
func (s *Session) Expand(ctx context.Context, id string) error {
	gen, err := s.begin(id, 1)
	if err != nil {
		return err
	}
	defer s.end(id)

	data, err := s.remote.page(ctx, &id, 1)
	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			s.dropStale(id)
		}
		return err
	}
	s.fold(id, 1, gen, func(t *Tree) *Tree {
		return ApplyExpand(t, id, data.Tasks, data.CurrentPage, data.TotalPages, data.Total)
	})
	return nil
}

// Collapse drops id's loaded children locally and bumps the node's
// fetch generation so any in-flight child fetch is ignored when it
// lands. No network call.
func (s *Session) Collapse(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen[id]++
	s.tree = ApplyCollapse(s.tree, id)
}

// ChangePage navigates an expanded node's children to the given page.
// Requesting the node's current page is a fast no-op.
func (s *Session) ChangePage(ctx context.Context, id string, page int) error {
	s.mu.Lock()
	n := s.tree.Find(id)
	if n != nil && n.Expanded && n.Page == page {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	gen, err := s.begin(id, page)
	if err != nil {
		return err
	}
	defer s.end(id)

	data, err := s.remote.page(ctx, &id, page)
	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			s.dropStale(id)
		}
		return err
	}
	s.fold(id, page, gen, func(t *Tree) *Tree {
		return ApplyPageChange(t, id, data.Tasks, data.CurrentPage, data.TotalPages, data.Total)
	})
	return nil
}

// Add creates a task under parentID (nil for root level) and folds it
// into the cache, bumping subtask counts up the ancestor chain.
func (s *Session) Add(ctx context.Context, title, description string, status task.Status, parentID *string) (*task.Task, error) {
	key := rootKey
	if parentID != nil {
		key = *parentID
	}
	gen, err := s.begin(key, s.pageOf(key))
	if err != nil {
		return nil, err
	}
	defer s.end(key)

	created, err := s.remote.create(ctx, title, description, status, parentID)
	if err != nil {
		if parentID != nil && errors.Is(err, task.ErrParentNotFound) {
			s.dropStale(*parentID)
		}
		return nil, err
	}
	s.fold(key, s.pageOf(key), gen, func(t *Tree) *Tree {
		return ApplyCreate(t, parentID, *created)
	})
	return created, nil
}

// Delete removes id server-side (cascading to its subtree), then, when
// the node's parent is expanded, re-fetches the parent's now-current
// page so a later page can roll up into the gap, and folds both into
// the cache.
func (s *Session) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	path := findPath(s.tree.Roots, id)
	s.mu.Unlock()
	if path == nil {
		return task.ErrNotFound
	}
	var parentID *string
	key := rootKey
	page := 1
	if len(path) == 1 {
		page = s.rootPageNum()
	} else {
		parent := path[len(path)-2]
		parentID = &parent.ID
		key = parent.ID
		page = parent.Page
	}

	gen, err := s.begin(key, page)
	if err != nil {
		return err
	}
	defer s.end(key)

	if err := s.remote.delete(ctx, id); err != nil {
		if errors.Is(err, task.ErrNotFound) {
			s.dropStale(id)
		}
		return err
	}

	// Two requests, no rollback: a failure of the refresh leaves the
	// splice-only fold, repaired by the next successful page fetch.
	// The server clamps a page that ran off the end after the delete.
	refreshed, err := s.remote.page(ctx, parentID, page)
	if err != nil {
		s.logger.Warn("page refresh after delete failed", "id", id, "error", err)
		refreshed = nil
	}
	s.fold(key, page, gen, func(t *Tree) *Tree {
		return ApplyDelete(t, id, refreshed)
	})
	return nil
}

// Complete marks id completed server-side (cascading down) and folds
// the cascade into every loaded descendant.
func (s *Session) Complete(ctx context.Context, id string) error {
	gen, err := s.begin(id, s.pageOf(id))
	if err != nil {
		return err
	}
	defer s.end(id)

	if err := s.remote.complete(ctx, id); err != nil {
		if errors.Is(err, task.ErrNotFound) {
			s.dropStale(id)
		}
		return err
	}
	s.fold(id, s.pageOf(id), gen, func(t *Tree) *Tree {
		return ApplyComplete(t, id)
	})
	return nil
}

// Edit updates id's title and description.
func (s *Session) Edit(ctx context.Context, id, title, description string) error {
	gen, err := s.begin(id, s.pageOf(id))
	if err != nil {
		return err
	}
	defer s.end(id)

	updated, err := s.remote.update(ctx, id, task.Patch{Title: &title, Description: &description})
	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			s.dropStale(id)
		}
		return err
	}
	s.fold(id, s.pageOf(id), gen, func(t *Tree) *Tree {
		return ApplyEdit(t, id, updated.Title, updated.Description)
	})
	return nil
}

// pageOf returns the current page token for key without changing it.
func (s *Session) pageOf(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key == rootKey {
		return s.tree.Page
	}
	if n := s.tree.Find(key); n != nil {
		return n.Page
	}
	return 1
}

func (s *Session) rootPageNum() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.Page
}
