package editor

import (
	"context"

	"github.com/hazyhaar/ezpage/editor/internal/store"
)

// Re-export store types so callers don't import internal packages.
type (
	PageInfo     = store.Page
	ActionRecord = store.ActionRecord
)

// ErrPageNotFound is returned by Persistence.Load for unknown pages.
var ErrPageNotFound = store.ErrNotFound

// Persistence stores serialized page documents.
type Persistence interface {
	Load(ctx context.Context, pageID string) ([]byte, error)
	Save(ctx context.Context, pageID string, blob []byte) error
}

// touchReporter is implemented by persistence that records whether a page
// was ever saved by an edit. It disambiguates a never-edited page from one
// emptied by hand.
type touchReporter interface {
	Touched(ctx context.Context, pageID string) (bool, error)
}

// pageCreator records a new page as never edited.
type pageCreator interface {
	Create(ctx context.Context, pageID string, blob []byte) error
}

// pageDeleter removes a page and its journal.
type pageDeleter interface {
	DeletePage(ctx context.Context, pageID string) error
}

// actionWriter receives journal rows.
type actionWriter interface {
	InsertAction(ctx context.Context, r *store.ActionRecord) error
}

// Stats summarizes a page.
type Stats struct {
	PageID    string         `json:"page_id"`
	Nodes     int            `json:"nodes"`
	Hidden    int            `json:"hidden"`
	MaxDepth  int            `json:"max_depth"`
	Types     map[string]int `json:"types"`
	Unknown   []string       `json:"unknown_types,omitempty"`
	Recovered bool           `json:"recovered"`
	Applied   int            `json:"applied"`
	Rejected  int            `json:"rejected"`
	Revision  int64          `json:"revision"`
	Touched   bool           `json:"touched"`
	UpdatedAt int64          `json:"updated_at,omitempty"`
}
