package editor

import (
	"errors"
	"fmt"
)

// ErrBlockNotFound is returned for operations on an unknown block id.
var ErrBlockNotFound = errors.New("block not found")

// ValidationError means the graph failed the pipeline rules; a run does not
// start.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

// ProcessingError means the backend rejected a block or could not be
// reached.
type ProcessingError struct {
	BlockID string
	Type    string
	Err     error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing %s (%s): %v", e.BlockID, e.Type, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// ConnectionRejectedError is returned for self-loops, unknown blocks and
// undeclared inputs. Front-ends drop it silently.
type ConnectionRejectedError struct {
	Connection Connection
	Reason     string
}

func (e *ConnectionRejectedError) Error() string {
	return fmt.Sprintf("connection %s -> %s.%s rejected: %s",
		e.Connection.Source, e.Connection.Target, e.Connection.InputID, e.Reason)
}

// IsConnectionRejected reports whether err is a ConnectionRejectedError.
func IsConnectionRejected(err error) bool {
	var rej *ConnectionRejectedError
	return errors.As(err, &rej)
}
