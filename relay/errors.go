package relay

import (
	"errors"
	"fmt"
)

var (
	// ErrStalled is returned when a fetch yields no items yet claims another page.
	ErrStalled    = errors.New("connection stalled")
	ErrOutOfRange = errors.New("index out of range")
	ErrNoProducer = errors.New("no producer")
	ErrNested     = errors.New("nested shared call")
)

func errorf(err error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", err, fmt.Sprintf(format, args...))
}

// fetchError marks a failure of the executor or resolver itself, as opposed
// to a malformed result.
type fetchError struct {
	err error
}

func (e fetchError) Error() string { return e.err.Error() }
func (e fetchError) Unwrap() error { return e.err }
