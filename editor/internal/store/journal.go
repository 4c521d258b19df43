package store

import (
	"context"
	"fmt"
	"time"
)

// ActionRecord is one journal row.
type ActionRecord struct {
	ID        string `json:"id"`
	PageID    string `json:"page_id"`
	SessionID string `json:"session_id,omitempty"`
	Seq       int    `json:"seq"`
	Kind      string `json:"kind"`
	NodeID    string `json:"node_id,omitempty"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// InsertAction appends a journal row. CreatedAt defaults to now.
func (s *Store) InsertAction(ctx context.Context, r *ActionRecord) error {
	if r.CreatedAt == 0 {
		r.CreatedAt = time.Now().UnixMilli()
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO action_log (id, page_id, session_id, seq, kind, node_id, ok, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.PageID, r.SessionID, r.Seq, r.Kind, r.NodeID, r.OK, r.Error, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert action %s: %w", r.ID, err)
	}
	return nil
}

// ListActions returns the most recent journal rows of a page, newest first.
func (s *Store) ListActions(ctx context.Context, pageID string, limit int) ([]*ActionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, page_id, session_id, seq, kind, node_id, ok, error, created_at
		FROM action_log WHERE page_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, pageID, limit)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	var out []*ActionRecord
	for rows.Next() {
		var r ActionRecord
		if err := rows.Scan(&r.ID, &r.PageID, &r.SessionID, &r.Seq, &r.Kind, &r.NodeID, &r.OK, &r.Error, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// ActionCounts returns the number of applied and rejected actions of a page.
func (s *Store) ActionCounts(ctx context.Context, pageID string) (applied, rejected int, err error) {
	err = s.DB.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(ok), 0), COALESCE(SUM(1 - ok), 0)
		FROM action_log WHERE page_id = ?`, pageID).Scan(&applied, &rejected)
	if err != nil {
		return 0, 0, fmt.Errorf("action counts: %w", err)
	}
	return applied, rejected, nil
}
