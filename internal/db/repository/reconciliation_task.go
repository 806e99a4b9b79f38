package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"agent-bff/internal/db"
	"agent-bff/internal/domain"
)

// ReconciliationTaskRepo stores reconciliation tasks so they survive restarts.
type ReconciliationTaskRepo struct {
	write *sql.DB
	read  *sql.DB
}

// NewReconciliationTaskRepo creates a repo over the given pools.
func NewReconciliationTaskRepo(pools *db.Pools) *ReconciliationTaskRepo {
	return &ReconciliationTaskRepo{write: pools.Write, read: pools.Read}
}

const taskColumns = `id, resource_id, temp_bucket_name, user_id, project_id, state,
	polls, last_status, reason, created_at, completed_at`

// Create inserts a task. A second open task for the same temp bucket is a
// *domain.ConflictError.
func (r *ReconciliationTaskRepo) Create(ctx context.Context, t *domain.ReconciliationTask) error {
	if t.State == "" {
		t.State = domain.ReconciliationScheduled
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	_, err := r.write.ExecContext(ctx, `INSERT INTO reconciliation_tasks
		(id, resource_id, temp_bucket_name, user_id, project_id, state, polls, last_status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ResourceID, t.TempBucketName, t.ActingIdentity.UserID, t.ActingIdentity.ProjectID,
		string(t.State), t.Polls, t.LastStatus, formatTime(t.CreatedAt))
	if err != nil {
		return mapDBError(err, "reconciliation task for bucket "+t.TempBucketName)
	}
	return nil
}

// Get returns one task by id.
func (r *ReconciliationTaskRepo) Get(ctx context.Context, id string) (*domain.ReconciliationTask, error) {
	row := r.read.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM reconciliation_tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err != nil {
		return nil, mapDBError(err, "reconciliation task "+id)
	}
	return t, nil
}

// ListPending returns every task not yet completed, oldest first.
func (r *ReconciliationTaskRepo) ListPending(ctx context.Context) ([]domain.ReconciliationTask, error) {
	rows, err := r.read.QueryContext(ctx, `SELECT `+taskColumns+` FROM reconciliation_tasks
		WHERE state != 'completed' ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list pending tasks: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.ReconciliationTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// RecordPoll increments the poll counter and stores the last observed status.
func (r *ReconciliationTaskRepo) RecordPoll(ctx context.Context, id, status string) error {
	res, err := r.write.ExecContext(ctx, `UPDATE reconciliation_tasks
		SET polls = polls + 1, last_status = ?, state = 'polling'
		WHERE id = ? AND state != 'completed'`, status, id)
	if err != nil {
		return fmt.Errorf("record poll: %w", err)
	}
	return expectOne(res, id)
}

// Complete marks the task finished with reason.
func (r *ReconciliationTaskRepo) Complete(ctx context.Context, id, reason string, at time.Time) error {
	res, err := r.write.ExecContext(ctx, `UPDATE reconciliation_tasks
		SET state = 'completed', reason = ?, completed_at = ?
		WHERE id = ? AND state != 'completed'`, reason, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	return expectOne(res, id)
}

func expectOne(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound("open reconciliation task %s not found", id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*domain.ReconciliationTask, error) {
	var (
		t           domain.ReconciliationTask
		state       string
		createdAt   string
		completedAt sql.NullString
	)
	if err := s.Scan(&t.ID, &t.ResourceID, &t.TempBucketName, &t.ActingIdentity.UserID,
		&t.ActingIdentity.ProjectID, &state, &t.Polls, &t.LastStatus, &t.Reason,
		&createdAt, &completedAt); err != nil {
		return nil, err
	}
	t.State = domain.ReconciliationState(state)

	var err error
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if completedAt.Valid {
		ts, err := parseTime(completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse completed_at: %w", err)
		}
		t.CompletedAt = &ts
	}
	return &t, nil
}

var _ domain.ReconciliationTaskRepository = (*ReconciliationTaskRepo)(nil)
