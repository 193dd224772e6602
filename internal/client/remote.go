package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/taskgrove/taskgrove/internal/query"
	"github.com/taskgrove/taskgrove/internal/task"
)

// remote talks to the REST surface. It maps HTTP status codes back onto
// the task error taxonomy so Session can react uniformly.
type remote struct {
	base string
	hc   *http.Client
}

func newRemote(baseURL string, hc *http.Client) *remote {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &remote{base: strings.TrimRight(baseURL, "/"), hc: hc}
}

type pageEnvelope struct {
	Tasks       []task.Task `json:"tasks"`
	Total       int         `json:"total"`
	TotalPages  int         `json:"totalPages"`
	CurrentPage int         `json:"currentPage"`
}

type messageEnvelope struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// page fetches one page of parentID's direct children (nil for roots).
// Counts are always requested; the cache needs them for labels.
func (r *remote) page(ctx context.Context, parentID *string, page int) (*PageData, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(query.PageSize))
	q.Set("includeSubtasks", "true")
	if parentID != nil {
		q.Set("parentId", *parentID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.base+"/tasks?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp, task.ErrNotFound)
	}

	var env pageEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}
	return &PageData{
		Tasks:       env.Tasks,
		Total:       env.Total,
		TotalPages:  env.TotalPages,
		CurrentPage: env.CurrentPage,
	}, nil
}

func (r *remote) create(ctx context.Context, title, description string, status task.Status, parentID *string) (*task.Task, error) {
	body := map[string]any{
		"title":  title,
		"status": status,
	}
	if description != "" {
		body["description"] = description
	}
	if parentID != nil {
		body["parentId"] = *parentID
	}

	resp, err := r.do(ctx, http.MethodPost, "/tasks", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, statusError(resp, task.ErrParentNotFound)
	}
	var created task.Task
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("decode created task: %w", err)
	}
	return &created, nil
}

func (r *remote) update(ctx context.Context, id string, patch task.Patch) (*task.Task, error) {
	resp, err := r.do(ctx, http.MethodPut, "/tasks/"+url.PathEscape(id), patch)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp, task.ErrNotFound)
	}
	var updated task.Task
	if err := json.NewDecoder(resp.Body).Decode(&updated); err != nil {
		return nil, fmt.Errorf("decode updated task: %w", err)
	}
	return &updated, nil
}

func (r *remote) complete(ctx context.Context, id string) error {
	resp, err := r.do(ctx, http.MethodPatch, "/tasks/"+url.PathEscape(id)+"/complete", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp, task.ErrNotFound)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

func (r *remote) delete(ctx context.Context, id string) error {
	resp, err := r.do(ctx, http.MethodDelete, "/tasks/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp, task.ErrNotFound)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

func (r *remote) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.base+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := r.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

// statusError maps a non-success response onto the error taxonomy.
// notFound is the sentinel this call site treats a 404 as.
func statusError(resp *http.Response, notFound error) error {
	var env messageEnvelope
	_ = json.NewDecoder(resp.Body).Decode(&env)

	switch resp.StatusCode {
	case http.StatusNotFound:
		return notFound
	case http.StatusBadRequest:
		reason := env.Error
		if reason == "" {
			reason = "is invalid"
		}
		return &task.ValidationError{Field: "request", Reason: reason}
	default:
		return fmt.Errorf("server error: status %d: %s", resp.StatusCode, env.Error)
	}
}
