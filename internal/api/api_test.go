package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/taskgrove/taskgrove/internal/query"
	"github.com/taskgrove/taskgrove/internal/store"
	"github.com/taskgrove/taskgrove/internal/task"
)

func newTestAPI(t *testing.T) (*httptest.Server, *store.Store) {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(filepath.Join(t.TempDir(), "tasks.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.InitSchema(ctx); err != nil {
		t.Fatalf("init schema: %v", err)
	}

	srv := NewServer(Config{Store: st, Engine: query.NewEngine(st, query.PageSize)})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, st
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

type listEnvelope struct {
	Tasks       []task.Task `json:"tasks"`
	Total       int         `json:"total"`
	TotalPages  int         `json:"totalPages"`
	CurrentPage int         `json:"currentPage"`
}

func TestCreateAndList(t *testing.T) {
	ts, _ := newTestAPI(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/tasks", map[string]any{
		"title":       "water the plants",
		"description": "balcony first",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	created := decode[task.Task](t, resp)
	if created.ID == "" || created.Status != task.StatusWaiting {
		t.Fatalf("created = %+v", created)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/tasks", nil)
	env := decode[listEnvelope](t, resp)
	if env.Total != 1 || len(env.Tasks) != 1 || env.Tasks[0].ID != created.ID {
		t.Fatalf("list = %+v", env)
	}
	if env.CurrentPage != 1 || env.TotalPages != 1 {
		t.Errorf("envelope pages = %d/%d, want 1/1", env.CurrentPage, env.TotalPages)
	}
}

func TestCreate_Validation(t *testing.T) {
	ts, _ := newTestAPI(t)

	cases := []struct {
		name string
		body map[string]any
	}{
		{"empty title", map[string]any{"title": ""}},
		{"bad status", map[string]any{"title": "x", "status": "in-progress"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doJSON(t, http.MethodPost, ts.URL+"/tasks", tc.body)
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestCreate_ParentNotFound(t *testing.T) {
	ts, _ := newTestAPI(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/tasks", map[string]any{
		"title":    "orphan",
		"parentId": "missing",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestCreate_UnderCompletedParent(t *testing.T) {
	ts, st := newTestAPI(t)
	parent, err := st.Create(context.Background(), "done", "", task.StatusCompleted, nil)
	if err != nil {
		t.Fatal(err)
	}

	resp := doJSON(t, http.MethodPost, ts.URL+"/tasks", map[string]any{
		"title":    "straggler",
		"parentId": parent.ID,
	})
	created := decode[task.Task](t, resp)
	if created.Status != task.StatusCompleted {
		t.Errorf("status = %q, want completed", created.Status)
	}
}

func TestList_Pagination(t *testing.T) {
	ts, st := newTestAPI(t)
	ctx := context.Background()
	for i := 0; i < 7; i++ {
		if _, err := st.Create(ctx, fmt.Sprintf("task %d", i), "", task.StatusWaiting, nil); err != nil {
			t.Fatal(err)
		}
	}

	resp := doJSON(t, http.MethodGet, ts.URL+"/tasks?page=1", nil)
	page1 := decode[listEnvelope](t, resp)
	if len(page1.Tasks) != 5 || page1.Total != 7 || page1.TotalPages != 2 {
		t.Fatalf("page 1 = %+v", page1)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/tasks?page=2", nil)
	page2 := decode[listEnvelope](t, resp)
	if len(page2.Tasks) != 2 || page2.CurrentPage != 2 {
		t.Fatalf("page 2 = %+v", page2)
	}

	seen := make(map[string]bool)
	for _, tk := range append(page1.Tasks, page2.Tasks...) {
		if seen[tk.ID] {
			t.Errorf("task %s appears on both pages", tk.ID)
		}
		seen[tk.ID] = true
	}
}

func TestList_ParentFilterAndCounts(t *testing.T) {
	ts, st := newTestAPI(t)
	ctx := context.Background()
	parent, err := st.Create(ctx, "parent", "", task.StatusWaiting, nil)
	if err != nil {
		t.Fatal(err)
	}
	child, err := st.Create(ctx, "child", "", task.StatusWaiting, &parent.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := st.Create(ctx, "grandchild", "", task.StatusWaiting, &child.ID); err != nil {
		t.Fatal(err)
	}

	// Root listing with counts: parent reports its whole subtree.
	resp := doJSON(t, http.MethodGet, ts.URL+"/tasks?includeSubtasks=true", nil)
	env := decode[listEnvelope](t, resp)
	if len(env.Tasks) != 1 {
		t.Fatalf("root listing = %+v", env)
	}
	if env.Tasks[0].SubtasksCount != 2 {
		t.Errorf("subtasksCount = %d, want 2", env.Tasks[0].SubtasksCount)
	}

	// Children listing returns direct children only.
	resp = doJSON(t, http.MethodGet, ts.URL+"/tasks?parentId="+parent.ID, nil)
	env = decode[listEnvelope](t, resp)
	if len(env.Tasks) != 1 || env.Tasks[0].ID != child.ID {
		t.Fatalf("children listing = %+v", env)
	}

	// "null" parentId selects roots, matching what browsers send.
	resp = doJSON(t, http.MethodGet, ts.URL+"/tasks?parentId=null", nil)
	env = decode[listEnvelope](t, resp)
	if len(env.Tasks) != 1 || env.Tasks[0].ID != parent.ID {
		t.Fatalf("parentId=null listing = %+v", env)
	}
}

func TestUpdate(t *testing.T) {
	ts, st := newTestAPI(t)
	created, err := st.Create(context.Background(), "draft", "", task.StatusWaiting, nil)
	if err != nil {
		t.Fatal(err)
	}

	resp := doJSON(t, http.MethodPut, ts.URL+"/tasks/"+created.ID, map[string]any{
		"title": "final",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	updated := decode[task.Task](t, resp)
	if updated.Title != "final" {
		t.Errorf("title = %q, want final", updated.Title)
	}

	resp = doJSON(t, http.MethodPut, ts.URL+"/tasks/nope", map[string]any{"title": "x"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown id status = %d, want 404", resp.StatusCode)
	}
}

func TestComplete_CascadesDown(t *testing.T) {
	ts, st := newTestAPI(t)
	ctx := context.Background()
	parent, err := st.Create(ctx, "parent", "", task.StatusWaiting, nil)
	if err != nil {
		t.Fatal(err)
	}
	child, err := st.Create(ctx, "child", "", task.StatusWaiting, &parent.ID)
	if err != nil {
		t.Fatal(err)
	}

	resp := doJSON(t, http.MethodPatch, ts.URL+"/tasks/"+parent.ID+"/complete", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	got, err := st.Get(ctx, child.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != task.StatusCompleted {
		t.Errorf("child status = %q, want completed", got.Status)
	}
}

func TestDelete_SubtreeThenEmptyList(t *testing.T) {
	ts, st := newTestAPI(t)
	ctx := context.Background()
	parent, err := st.Create(ctx, "parent", "", task.StatusWaiting, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := st.Create(ctx, "child", "", task.StatusWaiting, &parent.ID); err != nil {
		t.Fatal(err)
	}

	resp := doJSON(t, http.MethodDelete, ts.URL+"/tasks/"+parent.ID, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/tasks", nil)
	env := decode[listEnvelope](t, resp)
	if env.Total != 0 || len(env.Tasks) != 0 {
		t.Errorf("list after delete = %+v", env)
	}

	resp = doJSON(t, http.MethodDelete, ts.URL+"/tasks/"+parent.ID, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	ts, _ := newTestAPI(t)

	resp := doJSON(t, http.MethodGet, ts.URL+"/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decode[map[string]any](t, resp)
	if body["status"] != "ok" {
		t.Errorf("health = %+v", body)
	}
}

func TestBadJSONBody(t *testing.T) {
	ts, _ := newTestAPI(t)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/tasks", bytes.NewBufferString("{not json"))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}
