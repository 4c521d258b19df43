// Package store provides the SQLite persistence layer for ezpage: page
// documents and the action journal.
package store

import (
	"database/sql"
	"errors"

	"github.com/hazyhaar/ezpage/dbopen"
)

// ErrNotFound is returned when a page does not exist.
var ErrNotFound = errors.New("store: page not found")

// Store is the ezpage database handle.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the ezpage SQLite database at path, applies the
// pragmas and the schema.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	allOpts := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)

	db, err := dbopen.Open(path, allOpts...)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}
