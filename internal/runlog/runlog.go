// Package runlog persists finished subagent runs.
package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"sidekick/internal/db"
)

// Run is one finished subagent task.
type Run struct {
	ID         string    `json:"id"`
	Label      string    `json:"label"`
	Task       string    `json:"task"`
	Profile    string    `json:"profile,omitempty"`
	Model      string    `json:"model,omitempty"`
	Status     string    `json:"status"`
	Result     string    `json:"result"`
	Iterations int       `json:"iterations"`
	Channel    string    `json:"channel"`
	ChatID     string    `json:"chat_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

type Store struct {
	conn *sql.DB
}

func NewStore(database *db.DB) *Store {
	return &Store{conn: database.Conn()}
}

func (s *Store) Record(ctx context.Context, r Run) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO subagent_runs
			(id, label, task, profile, model, status, result, iterations, channel, chat_id, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			result = excluded.result,
			iterations = excluded.iterations,
			finished_at = excluded.finished_at`,
		r.ID, r.Label, r.Task, r.Profile, r.Model, r.Status, r.Result, r.Iterations,
		r.Channel, r.ChatID, r.StartedAt.UTC(), r.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", r.ID, err)
	}
	return nil
}

// Recent returns up to limit runs, most recently finished first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, label, task, profile, model, status, result, iterations, channel, chat_id, started_at, finished_at
		FROM subagent_runs
		ORDER BY finished_at DESC, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Label, &r.Task, &r.Profile, &r.Model, &r.Status, &r.Result,
			&r.Iterations, &r.Channel, &r.ChatID, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
