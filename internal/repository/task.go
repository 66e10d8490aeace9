package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/workaandrey/task-manager/internal/models"
)

const taskSelect = `SELECT t.id, t.title, t.description, t.status, t.created_by, t.assigned_to,
       t.created_at, t.updated_at,
       c.username AS creator_name,
       a.username AS assignee_name
FROM tasks t
JOIN users c ON t.created_by = c.id
LEFT JOIN users a ON t.assigned_to = a.id `

type TaskRepository struct {
	db *sqlx.DB
}

func NewTaskRepository(db *sqlx.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Create inserts task and returns the new id.
func (r *TaskRepository) Create(ctx context.Context, task *models.Task) (int64, error) {
	id, err := insertID(ctx, r.db,
		"INSERT INTO tasks (title, description, status, created_by, assigned_to) VALUES (?, ?, ?, ?, ?)",
		task.Title, task.Description, task.Status, task.CreatedBy, task.AssignedTo)
	if err != nil {
		return 0, fmt.Errorf("failed to create task: %w", err)
	}
	task.ID = id
	return id, nil
}

// Read returns the task with creator and assignee names.
func (r *TaskRepository) Read(ctx context.Context, id int64) (*models.Task, error) {
	var task models.Task
	err := r.db.GetContext(ctx, &task, r.db.Rebind(taskSelect+"WHERE t.id = ?"), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return &task, nil
}

// Update writes title, description, status and assignee of task.ID.
func (r *TaskRepository) Update(ctx context.Context, task *models.Task) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(
		`UPDATE tasks SET title = ?, description = ?, status = ?, assigned_to = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`),
		task.Title, task.Description, task.Status, task.AssignedTo, task.ID)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	return requireAffected(res)
}

func (r *TaskRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind("DELETE FROM tasks WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return requireAffected(res)
}

// ReadAll lists tasks newest first. Admins see everything; anyone else sees
// tasks they created or are assigned to, and nothing without a user id.
func (r *TaskRepository) ReadAll(ctx context.Context, userID *int64, isAdmin bool) ([]models.Task, error) {
	query := taskSelect
	var args []interface{}
	if !isAdmin {
		if userID == nil {
			return []models.Task{}, nil
		}
		query += "WHERE t.created_by = ? OR t.assigned_to = ? "
		args = append(args, *userID, *userID)
	}
	query += "ORDER BY t.created_at DESC, t.id DESC"

	tasks := []models.Task{}
	if err := r.db.SelectContext(ctx, &tasks, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// IsCreator reports whether a task with taskID exists and was created by userID.
func (r *TaskRepository) IsCreator(ctx context.Context, taskID, userID int64) (bool, error) {
	return r.exists(ctx, "SELECT COUNT(*) FROM tasks WHERE id = ? AND created_by = ?", taskID, userID)
}

// IsCreatorOrAssignee reports whether userID created or is assigned to taskID.
func (r *TaskRepository) IsCreatorOrAssignee(ctx context.Context, taskID, userID int64) (bool, error) {
	return r.exists(ctx, "SELECT COUNT(*) FROM tasks WHERE id = ? AND (created_by = ? OR assigned_to = ?)", taskID, userID, userID)
}

func (r *TaskRepository) exists(ctx context.Context, query string, args ...interface{}) (bool, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, r.db.Rebind(query), args...); err != nil {
		return false, err
	}
	return count > 0, nil
}

// MySQL connections set clientFoundRows so matched rows count as affected.
func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return nil
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
