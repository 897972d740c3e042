package strategy

import "fmt"

// Error is a strategy transition failure: an invalid target state, a
// missing transition path, or a hardware action that failed mid-way. It is
// fatal to the bootstrap attempt; transitions are never retried.
type Error struct {
	msg string
}

func (e *Error) Error() string { return e.msg }

func errorf(format string, args ...any) *Error {
	return &Error{msg: fmt.Sprintf(format, args...)}
}
