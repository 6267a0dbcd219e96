package upload

import (
	"errors"
	"fmt"
)

// ErrConcurrentOperation is returned when an operation is attempted while
// another operation on the same stream is still waiting on its store calls.
// The message is fixed; clients match on it.
var ErrConcurrentOperation = errors.New("The AsyncOutputStream does not support concurrent writing.")

// ErrStreamClosed is matched by every *StateError.
var ErrStreamClosed = errors.New("upload stream is closed")

// StateError reports an operation on a stream that has already reached a
// terminal state.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: upload stream is closed (%s)", e.Op, e.State)
}

// Is reports whether target is ErrStreamClosed.
func (e *StateError) Is(target error) bool {
	return target == ErrStreamClosed
}
