// Package task provides the core data structures for taskgrove's
// hierarchical task tree.
//
// A task may reference another task as its parent, forming a forest of
// unbounded depth. Parent references are stored as ids only, never as
// direct pointers between persisted records, so the tree is acyclic by
// construction.
package task

import (
	"fmt"
	"time"
)

// Status is the completion state of a task.
type Status string

const (
	// StatusWaiting marks a task that still has work to do.
	StatusWaiting Status = "waiting"

	// StatusCompleted marks a task whose work is done. A completed task
	// implies every task in its subtree is completed as well; the store
	// enforces this at write time.
	StatusCompleted Status = "completed"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	return s == StatusWaiting || s == StatusCompleted
}

// MaxTitleLen is the upper bound on task titles.
const MaxTitleLen = 500

// Task represents a single node of the task tree.
//
// SubtasksCount is a read-time aggregate (total descendants, not just
// direct children) and is only populated by queries that request it; it
// is never written back to the store.
type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      Status    `json:"status"`
	ParentID    *string   `json:"parentId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	SubtasksCount int `json:"subtasksCount"`
}

// Validate checks that the task has valid field values.
func (t *Task) Validate() error {
	if t.ID == "" {
		return &ValidationError{Field: "id", Reason: "is required"}
	}
	if t.Title == "" {
		return &ValidationError{Field: "title", Reason: "is required"}
	}
	if len(t.Title) > MaxTitleLen {
		return &ValidationError{
			Field:  "title",
			Reason: fmt.Sprintf("must be %d characters or less (got %d)", MaxTitleLen, len(t.Title)),
		}
	}
	if !t.Status.Valid() {
		return &ValidationError{
			Field:  "status",
			Reason: fmt.Sprintf("must be %q or %q (got %q)", StatusWaiting, StatusCompleted, t.Status),
		}
	}
	return nil
}

// Patch describes a partial update to a task. Nil fields are left
// untouched.
type Patch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *Status `json:"status,omitempty"`
}
