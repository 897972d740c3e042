package place

import (
	"context"
	"errors"
	"sync"
)

// ErrSessionClosed is returned for calls after the session shut down.
var ErrSessionClosed = errors.New("coordinator session closed")

// Session serializes all coordinator calls through one worker goroutine.
// Callers block until their call completes; there is never more than one
// in-flight coordinator call, matching the strictly sequential lease
// protocol the core needs.
type Session struct {
	transport Transport
	requests  chan sessionRequest

	closeOnce sync.Once
	done      chan struct{}
}

type sessionRequest struct {
	fn     func(ctx context.Context) error
	ctx    context.Context
	result chan error
}

// NewSession starts the session worker over the given transport.
func NewSession(transport Transport) *Session {
	s := &Session{
		transport: transport,
		requests:  make(chan sessionRequest),
		done:      make(chan struct{}),
	}
	go s.worker()
	return s
}

func (s *Session) worker() {
	for {
		select {
		case <-s.done:
			return
		case req := <-s.requests:
			// A request racing against Close must not reach the transport
			// after it was closed.
			select {
			case <-s.done:
				req.result <- ErrSessionClosed
			default:
				req.result <- req.fn(req.ctx)
			}
		}
	}
}

// call runs fn on the worker and waits for the result.
func (s *Session) call(ctx context.Context, fn func(ctx context.Context) error) error {
	req := sessionRequest{fn: fn, ctx: ctx, result: make(chan error, 1)}
	select {
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	case s.requests <- req:
	}
	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetPlace fetches the current state of a place.
func (s *Session) GetPlace(ctx context.Context, name string) (Info, error) {
	var info Info
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		info, err = s.transport.GetPlace(ctx, name)
		return err
	})
	return info, err
}

// AcquirePlace requests the lease and waits until the coordinator
// confirms the state change is visible.
func (s *Session) AcquirePlace(ctx context.Context, name string) error {
	return s.call(ctx, func(ctx context.Context) error {
		if err := s.transport.AcquirePlace(ctx, name); err != nil {
			return err
		}
		return s.transport.Sync(ctx)
	})
}

// ReleasePlace gives the lease back and waits for visibility.
func (s *Session) ReleasePlace(ctx context.Context, name string) error {
	return s.call(ctx, func(ctx context.Context) error {
		if err := s.transport.ReleasePlace(ctx, name); err != nil {
			return err
		}
		return s.transport.Sync(ctx)
	})
}

// Stop ends the coordinator session gracefully.
func (s *Session) Stop(ctx context.Context) error {
	return s.call(ctx, func(ctx context.Context) error {
		return s.transport.Stop(ctx)
	})
}

// Close shuts the worker down and closes the transport. Safe to call more
// than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.transport.Close()
	})
	return err
}
