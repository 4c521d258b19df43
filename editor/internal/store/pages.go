package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/ezpage/dbopen"
)

// Page is a stored page document.
type Page struct {
	ID        string `json:"id"`
	Content   []byte `json:"-"`
	Touched   bool   `json:"touched"`
	Revision  int64  `json:"revision"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
	Size      int    `json:"size"`
}

// Load returns the serialized document of a page.
func (s *Store) Load(ctx context.Context, pageID string) ([]byte, error) {
	var content string
	err := s.DB.QueryRowContext(ctx, `SELECT content FROM pages WHERE id = ?`, pageID).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load page %s: %w", pageID, err)
	}
	return []byte(content), nil
}

// Save stores content as the page's document, bumps its revision and marks
// it touched.
func (s *Store) Save(ctx context.Context, pageID string, content []byte) error {
	now := time.Now().UnixMilli()
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO pages (id, content, touched, revision, created_at, updated_at)
			VALUES (?, ?, 1, 1, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				content = excluded.content,
				touched = 1,
				revision = pages.revision + 1,
				updated_at = excluded.updated_at`,
			pageID, string(content), now, now)
		if err != nil {
			return fmt.Errorf("save page %s: %w", pageID, err)
		}
		return nil
	})
}

// Create stores an untouched initial document for a new page. It is a
// no-op when the page exists.
func (s *Store) Create(ctx context.Context, pageID string, content []byte) error {
	now := time.Now().UnixMilli()
	_, err := dbopen.Exec(ctx, s.DB, `
		INSERT INTO pages (id, content, touched, revision, created_at, updated_at)
		VALUES (?, ?, 0, 0, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		pageID, string(content), now, now)
	if err != nil {
		return fmt.Errorf("create page %s: %w", pageID, err)
	}
	return nil
}

// Touched reports whether the page has ever been saved by an edit. Unknown
// pages are untouched.
func (s *Store) Touched(ctx context.Context, pageID string) (bool, error) {
	var touched bool
	err := s.DB.QueryRowContext(ctx, `SELECT touched FROM pages WHERE id = ?`, pageID).Scan(&touched)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("touched %s: %w", pageID, err)
	}
	return touched, nil
}

// GetPage returns a page with its metadata, or nil if absent.
func (s *Store) GetPage(ctx context.Context, pageID string) (*Page, error) {
	var p Page
	var content string
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, content, touched, revision, created_at, updated_at
		FROM pages WHERE id = ?`, pageID).Scan(
		&p.ID, &content, &p.Touched, &p.Revision, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get page %s: %w", pageID, err)
	}
	p.Content = []byte(content)
	p.Size = len(content)
	return &p, nil
}

// ListPages returns page metadata, most recently updated first.
func (s *Store) ListPages(ctx context.Context, limit int) ([]*Page, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, touched, revision, created_at, updated_at, length(content)
		FROM pages ORDER BY updated_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	var pages []*Page
	for rows.Next() {
		var p Page
		if err := rows.Scan(&p.ID, &p.Touched, &p.Revision, &p.CreatedAt, &p.UpdatedAt, &p.Size); err != nil {
			return nil, err
		}
		pages = append(pages, &p)
	}
	return pages, rows.Err()
}

// DeletePage removes a page and its journal.
func (s *Store) DeletePage(ctx context.Context, pageID string) error {
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM action_log WHERE page_id = ?`, pageID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM pages WHERE id = ?`, pageID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}
