// Package history stores main-agent conversations in SQLite so they survive
// restarts of the gateway.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"sidekick/internal/db"
	"sidekick/internal/llm"
)

type Store struct {
	conn *sql.DB
}

func NewStore(database *db.DB) *Store {
	return &Store{conn: database.Conn()}
}

// Load returns the last limit messages of a session in chronological order.
// A limit of zero or less returns the whole session.
func (s *Store) Load(ctx context.Context, key string, limit int) ([]llm.Message, error) {
	query := `SELECT id, role, content, tool_calls, tool_call_id, name FROM messages WHERE session_key = ? ORDER BY id DESC`
	args := []any{key}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	defer rows.Close()

	var msgs []llm.Message
	for rows.Next() {
		var (
			id        int64
			m         llm.Message
			toolCalls string
		)
		if err := rows.Scan(&id, &m.Role, &m.Content, &toolCalls, &m.ToolCallID, &m.Name); err != nil {
			return nil, err
		}
		if toolCalls != "" {
			if err := json.Unmarshal([]byte(toolCalls), &m.ToolCalls); err != nil {
				slog.Warn("skipping message with invalid tool calls", "id", id, "error", err)
				continue
			}
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *Store) Append(ctx context.Context, key string, msgs ...llm.Message) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, m := range msgs {
		var toolCalls string
		if len(m.ToolCalls) > 0 {
			raw, err := json.Marshal(m.ToolCalls)
			if err != nil {
				return fmt.Errorf("encoding tool calls: %w", err)
			}
			toolCalls = string(raw)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (session_key, role, content, tool_calls, tool_call_id, name) VALUES (?, ?, ?, ?, ?, ?)`,
			key, m.Role, m.Content, toolCalls, m.ToolCallID, m.Name,
		); err != nil {
			return fmt.Errorf("appending history: %w", err)
		}
	}
	return tx.Commit()
}

// Clear deletes a session's messages.
func (s *Store) Clear(ctx context.Context, key string) error {
	_, err := s.conn.ExecContext(ctx, `DELETE FROM messages WHERE session_key = ?`, key)
	return err
}
