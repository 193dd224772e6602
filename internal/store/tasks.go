package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/taskgrove/taskgrove/internal/task"
)

// timeFormat keeps fixed-width sub-second precision so that the text
// ordering of created_at matches chronological ordering; RFC3339Nano
// would trim trailing zeros and sort a whole-second timestamp after a
// fractional one in the same second.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// subtreeCTE selects the ids of a node and all of its descendants.
const subtreeCTE = `
	WITH RECURSIVE subtree(id) AS (
		SELECT id FROM tasks WHERE id = ?
		UNION ALL
		SELECT t.id FROM tasks t JOIN subtree s ON t.parent_id = s.id
	)`

// Create inserts a new task, optionally under a parent.
//
// Returns task.ErrParentNotFound when parentID is set but does not
// resolve. If the parent is completed, the new task is forced to
// completed regardless of the requested status: subtasks of a completed
// task are defined as already done.
func (s *Store) Create(ctx context.Context, title, description string, status task.Status, parentID *string) (*task.Task, error) {
	now := time.Now().UTC()
	t := &task.Task{
		ID:          uuid.New().String(),
		Title:       title,
		Description: description,
		Status:      status,
		ParentID:    parentID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if parentID != nil {
		var parentStatus task.Status
		err := tx.QueryRowContext(ctx, `SELECT status FROM tasks WHERE id = ?`, *parentID).Scan(&parentStatus)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, task.ErrParentNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to resolve parent %s: %w", *parentID, err)
		}
		if parentStatus == task.StatusCompleted {
			t.Status = task.StatusCompleted
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks (id, title, description, status, parent_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, nullString(t.Description), string(t.Status), t.ParentID,
		t.CreatedAt.Format(timeFormat), t.UpdatedAt.Format(timeFormat),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert task: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return t, nil
}

// Get returns a single task by id, or task.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*task.Task, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT id, title, description, status, parent_id, created_at, updated_at
		FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, task.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}
	return t, nil
}

// Update applies a partial update to a task.
//
// Setting status to completed cascades completed to every descendant in
// the same transaction. Setting status to waiting touches only the
// target node: ancestors are never reopened or completed automatically.
// Returns task.ErrNotFound when id does not resolve.
func (s *Store) Update(ctx context.Context, id string, patch task.Patch) (*task.Task, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT id, title, description, status, parent_id, created_at, updated_at
		FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, task.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load task %s: %w", id, err)
	}

	if patch.Title != nil {
		t.Title = *patch.Title
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.Status != nil {
		t.Status = *patch.Status
	}
	t.UpdatedAt = time.Now().UTC()
	if err := t.Validate(); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE tasks SET title = ?, description = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		t.Title, nullString(t.Description), string(t.Status), t.UpdatedAt.Format(timeFormat), t.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update task %s: %w", id, err)
	}

	if patch.Status != nil && *patch.Status == task.StatusCompleted {
		if err := completeSubtree(ctx, tx, id, t.UpdatedAt); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return t, nil
}

// Complete marks a task and its entire subtree completed.
//
// Dedicated entry point for the most frequent mutation; the cascade is
// atomic with respect to the subtree. Returns task.ErrNotFound when id
// does not resolve.
func (s *Store) Complete(ctx context.Context, id string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return task.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to resolve task %s: %w", id, err)
	}

	if err := completeSubtree(ctx, tx, id, time.Now().UTC()); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// completeSubtree marks id and every descendant completed within tx.
func completeSubtree(ctx context.Context, tx *sql.Tx, id string, now time.Time) error {
	_, err := tx.ExecContext(ctx, subtreeCTE+`
		UPDATE tasks SET status = ?, updated_at = ?
		WHERE id IN (SELECT id FROM subtree)`,
		id, string(task.StatusCompleted), now.Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("failed to cascade completion from %s: %w", id, err)
	}
	return nil
}

// Delete removes a task and its entire subtree in one transaction.
// Returns task.ErrNotFound when id does not resolve.
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return task.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to resolve task %s: %w", id, err)
	}

	// The ON DELETE CASCADE constraint would catch children too, but the
	// explicit subtree delete keeps behavior independent of pragma state.
	_, err = tx.ExecContext(ctx, subtreeCTE+`
		DELETE FROM tasks WHERE id IN (SELECT id FROM subtree)`, id)
	if err != nil {
		return fmt.Errorf("failed to delete subtree of %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetPage returns one page of the direct children of parentID (nil
// selects root-level tasks) plus the total count of direct children.
//
// Ordering is by created_at then id, so pages are stable across
// requests. When includeCounts is true each returned task carries its
// SubtasksCount, the size of its subtree excluding itself, computed at
// query time. Callers paging very large subtrees should skip counts.
func (s *Store) GetPage(ctx context.Context, parentID *string, page, limit int, includeCounts bool) ([]task.Task, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		return nil, 0, &task.ValidationError{Field: "limit", Reason: "must be positive"}
	}

	where := `parent_id IS NULL`
	args := []any{}
	if parentID != nil {
		where = `parent_id = ?`
		args = append(args, *parentID)
	}

	var total int
	err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE `+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count children: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, title, description, status, parent_id, created_at, updated_at
		FROM tasks WHERE %s
		ORDER BY created_at, id
		LIMIT ? OFFSET ?`, where)
	args = append(args, limit, (page-1)*limit)

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query page: %w", err)
	}
	defer rows.Close()

	var tasks []task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate page: %w", err)
	}

	if includeCounts {
		for i := range tasks {
			count, err := s.DescendantCount(ctx, tasks[i].ID)
			if err != nil {
				return nil, 0, err
			}
			tasks[i].SubtasksCount = count
		}
	}

	return tasks, total, nil
}

// DescendantCount returns the number of tasks in id's subtree, not
// counting id itself.
func (s *Store) DescendantCount(ctx context.Context, id string) (int, error) {
	var count int
	err := s.conn.QueryRowContext(ctx, subtreeCTE+`
		SELECT COUNT(*) - 1 FROM subtree`, id).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count descendants of %s: %w", id, err)
	}
	if count < 0 {
		count = 0
	}
	return count, nil
}

// CountAll returns the total number of tasks in the store.
func (s *Store) CountAll(ctx context.Context) (int, error) {
	var count int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return count, nil
}

// scanner abstracts *sql.Row and *sql.Rows for scanTask.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*task.Task, error) {
	var (
		t           task.Task
		description sql.NullString
		parentID    sql.NullString
		status      string
		createdAt   string
		updatedAt   string
	)
	if err := row.Scan(&t.ID, &t.Title, &description, &status, &parentID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	t.Description = description.String
	t.Status = task.Status(status)
	if parentID.Valid {
		pid := parentID.String
		t.ParentID = &pid
	}

	var err error
	if t.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
		return nil, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
	}
	if t.UpdatedAt, err = time.Parse(timeFormat, updatedAt); err != nil {
		return nil, fmt.Errorf("invalid updated_at %q: %w", updatedAt, err)
	}
	return &t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
