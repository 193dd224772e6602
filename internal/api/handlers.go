package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/taskgrove/taskgrove/internal/task"
)

// handleList handles GET /tasks.
//
// parentId omitted, empty, "null", or "undefined" selects root-level
// tasks; browser clients serialize absent values both ways and the
// server accepts either.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var parentID *string
	if raw := q.Get("parentId"); raw != "" && raw != "null" && raw != "undefined" {
		parentID = &raw
	}

	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	includeCounts := q.Get("includeSubtasks") == "true"

	result, err := s.engine.Page(r.Context(), parentID, page, limit, includeCounts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// handleCreate handles POST /tasks.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title       string      `json:"title"`
		Description string      `json:"description"`
		Status      task.Status `json:"status"`
		ParentID    *string     `json:"parentId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, r, &task.ValidationError{Field: "body", Reason: "is not valid JSON"})
		return
	}
	if body.Status == "" {
		body.Status = task.StatusWaiting
	}

	created, err := s.store.Create(r.Context(), body.Title, body.Description, body.Status, body.ParentID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.feed.TaskEvent("created", created)
	s.publishStats(r)
	s.writeJSON(w, http.StatusCreated, created)
}

// handleUpdate handles PUT /tasks/{taskID}. A status change to
// completed cascades down the task's subtree.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["taskID"]

	var patch task.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		s.writeError(w, r, &task.ValidationError{Field: "body", Reason: "is not valid JSON"})
		return
	}

	updated, err := s.store.Update(r.Context(), id, patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.feed.TaskEvent("updated", updated)
	s.writeJSON(w, http.StatusOK, updated)
}

// handleComplete handles PATCH /tasks/{taskID}/complete.
func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["taskID"]

	if err := s.store.Complete(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.feed.SubtreeEvent("completed", id)
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "Task completed"})
}

// handleDelete handles DELETE /tasks/{taskID}, removing the whole
// subtree.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["taskID"]

	if err := s.store.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.feed.SubtreeEvent("deleted", id)
	s.publishStats(r)
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "Task deleted"})
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": s.feed.ClientCount(),
	})
}

func (s *Server) publishStats(r *http.Request) {
	total, err := s.store.CountAll(r.Context())
	if err != nil {
		s.logger.Warn("failed to count tasks for stats event", "error", err)
		return
	}
	s.feed.Stats(total)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *task.ValidationError

	switch {
	case errors.As(err, &ve):
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": ve.Error()})
	case errors.Is(err, task.ErrNotFound), errors.Is(err, task.ErrParentNotFound):
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Server error"})
	}
}
