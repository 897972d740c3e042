package driver

import (
	"fmt"
	"io"
	"os"
	"time"
)

// PipeConsole is a console backed by a pair of already-open descriptors,
// typically a serial device node or a socat/ser2net style relay. Unlike
// ProcessConsole there is no process to probe, so Alive reports true until
// an I/O operation fails: hardware links only reveal death through I/O.
type PipeConsole struct {
	in  *os.File
	out *os.File
}

// NewPipeConsole builds a console that reads target output from out and
// writes target input to in. The same file may be passed for both (a
// serial device opened read/write).
func NewPipeConsole(out, in *os.File) *PipeConsole {
	return &PipeConsole{in: in, out: out}
}

// Read reads console output with a bounded wait.
func (p *PipeConsole) Read(buf []byte, timeout time.Duration) (int, error) {
	if err := p.out.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, fmt.Errorf("set read deadline: %w", err)
	}
	n, err := p.out.Read(buf)
	switch {
	case err == nil:
		return n, nil
	case os.IsTimeout(err):
		return n, ErrTimeout
	case err == io.EOF:
		return n, ErrClosed
	default:
		return n, ErrClosed
	}
}

// Write sends console input.
func (p *PipeConsole) Write(buf []byte) (int, error) {
	n, err := p.in.Write(buf)
	if err != nil {
		return n, ErrClosed
	}
	return n, nil
}

// Alive always reports true: a descriptor-backed link has no side channel
// for liveness, death shows up as ErrClosed from Read or Write.
func (p *PipeConsole) Alive() bool { return true }

// Deactivate closes both descriptors.
func (p *PipeConsole) Deactivate() error {
	var firstErr error
	if err := p.out.Close(); err != nil {
		firstErr = err
	}
	if p.in != p.out {
		if err := p.in.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
