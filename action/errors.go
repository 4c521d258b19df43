package action

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownComponent is returned when a component name does not
	// resolve in the registry.
	ErrUnknownComponent = errors.New("unknown component")
	// ErrMalformedAction marks an envelope whose type or payload is unusable.
	ErrMalformedAction = errors.New("malformed action")
	// ErrBufferFull is returned by Parser.Write past the configured limit.
	ErrBufferFull = errors.New("action: parser buffer full")
)

// MalformedActionError records an envelope the parser dropped.
type MalformedActionError struct {
	Seq int
	Raw string // the whole envelope text
	Err error
}

func (e *MalformedActionError) Error() string {
	return fmt.Sprintf("action: envelope #%d dropped: %v", e.Seq, e.Err)
}

func (e *MalformedActionError) Unwrap() error { return e.Err }

// ExecError reports the action that stopped a batch.
type ExecError struct {
	Index  int // position in the batch
	Action Action
	Err    error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("action: %s (batch index %d): %v", e.Action, e.Index, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }
