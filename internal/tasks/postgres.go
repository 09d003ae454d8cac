package tasks

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

const taskColumns = `id, title, status, description, steps, extra_info, needs_enrichment,
	ai_last_run_at, created_at, updated_at, source`

// pq error code for malformed input such as a non-uuid id.
const pqInvalidTextRepresentation = "22P02"

type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]Task, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != nil {
		args = append(args, string(*f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.NeedsEnrichment != nil {
		args = append(args, *f.NeedsEnrichment)
		where = append(where, fmt.Sprintf("needs_enrichment = $%d", len(args)))
	}

	query := "SELECT " + taskColumns + " FROM tasks"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	result := []Task{}
	if err := s.db.SelectContext(ctx, &result, query, args...); err != nil {
		return nil, errors.Wrap(err, "list tasks")
	}
	return result, nil
}

func (s *PostgresStore) Create(ctx context.Context, t NewTask) (Task, error) {
	var created Task
	err := s.db.GetContext(ctx, &created, `
		INSERT INTO tasks (title, status, needs_enrichment, source)
		VALUES ($1, 'pending', TRUE, $2)
		RETURNING `+taskColumns,
		t.Title, nullIfEmpty(t.Source),
	)
	if err != nil {
		return Task{}, errors.Wrap(err, "insert task")
	}
	return created, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Task, error) {
	var t Task
	err := s.db.GetContext(ctx, &t, "SELECT "+taskColumns+" FROM tasks WHERE id = $1", id)
	if err != nil {
		return Task{}, notFoundOr(err, "get task %s", id)
	}
	return t, nil
}

func (s *PostgresStore) Update(ctx context.Context, id string, c Changes) (Task, error) {
	var (
		sets []string
		args []any
	)
	set := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if c.Title != nil {
		set("title", *c.Title)
	}
	if c.Status != nil {
		set("status", string(*c.Status))
	}
	if c.Description != nil {
		set("description", *c.Description)
	}
	if c.Steps != nil {
		set("steps", c.Steps)
	}
	if c.ExtraInfo != nil {
		set("extra_info", c.ExtraInfo)
	}
	if c.NeedsEnrichment != nil {
		set("needs_enrichment", *c.NeedsEnrichment)
	}
	sets = append(sets, "updated_at = GREATEST(now(), created_at)")

	args = append(args, id)
	query := fmt.Sprintf(
		"UPDATE tasks SET %s WHERE id = $%d RETURNING %s",
		strings.Join(sets, ", "), len(args), taskColumns,
	)

	var t Task
	if err := s.db.GetContext(ctx, &t, query, args...); err != nil {
		return Task{}, notFoundOr(err, "update task %s", id)
	}
	return t, nil
}

func (s *PostgresStore) ApplyEnrichment(ctx context.Context, id string, e Enrichment) (Task, error) {
	var t Task
	err := s.db.GetContext(ctx, &t, `
		UPDATE tasks SET
			description = CASE WHEN $1::boolean THEN $2 ELSE description END,
			steps = COALESCE($3::jsonb, steps),
			extra_info = COALESCE($4::jsonb, extra_info),
			ai_last_run_at = $5,
			needs_enrichment = FALSE,
			updated_at = GREATEST(now(), created_at)
		WHERE id = $6
		RETURNING `+taskColumns,
		e.Description != nil, derefString(e.Description),
		e.Steps, e.ExtraInfo,
		e.AILastRunAt, id,
	)
	if err != nil {
		return Task{}, notFoundOr(err, "apply enrichment to task %s", id)
	}
	return t, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = $1", id)
	if err != nil {
		if isInvalidInput(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, "delete task %s", id)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "rows affected")
	}
	return affected > 0, nil
}

func (s *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	var row struct {
		Created int `db:"created"`
		Done    int `db:"done"`
	}
	err := s.db.GetContext(ctx, &row, `
		SELECT COUNT(*) AS created,
		       COUNT(*) FILTER (WHERE status = 'done') AS done
		FROM tasks
	`)
	if err != nil {
		return Stats{}, errors.Wrap(err, "task stats")
	}
	return newStats(row.Created, row.Done), nil
}

func notFoundOr(err error, format string, args ...any) error {
	if err == sql.ErrNoRows || isInvalidInput(err) {
		return ErrNotFound
	}
	return errors.Wrapf(err, format, args...)
}

func isInvalidInput(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqInvalidTextRepresentation
}

func nullIfEmpty(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

func derefString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
