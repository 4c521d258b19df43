package document

import (
	"errors"
	"fmt"
)

// Sentinel errors. Operations wrap them in *OpError; test with errors.Is.
var (
	ErrNodeNotFound      = errors.New("node not found")
	ErrNotCanvas         = errors.New("target is not a canvas")
	ErrRootDeletion      = errors.New("node cannot be deleted")
	ErrRootMove          = errors.New("root cannot be moved")
	ErrCycle             = errors.New("move would make the node its own descendant")
	ErrNotDraggable      = errors.New("node cannot be dragged")
	ErrDuplicateID       = errors.New("duplicate node id")
	ErrInvalidSpec       = errors.New("invalid node spec")
	ErrMalformedDocument = errors.New("malformed document")
)

// OpError records the operation and node that failed.
type OpError struct {
	Op     string // "insert", "set_props", "delete", "move", "replace_all", ...
	NodeID string
	Err    error
}

func (e *OpError) Error() string {
	if e.NodeID == "" {
		return fmt.Sprintf("document: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("document: %s %s: %v", e.Op, e.NodeID, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

func opErr(op, id string, err error) error {
	return &OpError{Op: op, NodeID: id, Err: err}
}

// IsNotFound reports whether err is a node lookup miss.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNodeNotFound)
}

// IsStructural reports whether err is a refused structural edit. The
// document is unchanged after any structural error.
func IsStructural(err error) bool {
	for _, target := range []error{ErrNotCanvas, ErrRootDeletion, ErrRootMove, ErrCycle, ErrNotDraggable, ErrDuplicateID, ErrInvalidSpec} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
