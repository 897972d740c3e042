package driver

import (
	"errors"
	"fmt"
)

// ErrTimeout is returned by Console.Read when no data arrived within the
// given timeout. Callers must treat it as "nothing new", never as a fault.
var ErrTimeout = errors.New("console read timeout")

// ErrClosed is returned when the console link is gone for good: the backing
// process exited or the peer closed the stream.
var ErrClosed = errors.New("console closed")

// ErrNotRunning is returned by process-backed drivers when an operation
// requires a running process and there is none. It wraps ErrClosed so
// liveness handling in callers stays uniform.
var ErrNotRunning = fmt.Errorf("%w: process not running", ErrClosed)
