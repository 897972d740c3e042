// Package console multiplexes a live target console between an input
// source (keyboard, FIFO or watched file), the operator's screen and a log
// file.
package console

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// Signal classifies the outcome of an input read beyond the bytes
// themselves.
type Signal int

const (
	// More: data was read, more may follow.
	More Signal = iota
	// EOFTerminate: the source is finished and the session should end
	// (keyboard EOF).
	EOFTerminate
	// EOFWait: the source has no data right now but may produce more
	// (FIFO writer closed, watched file at its current end).
	EOFWait
	// WouldBlock: a non-blocking read found nothing.
	WouldBlock
)

// InputSource is one session input: keyboard, named pipe or watched file.
// Implementations are owned by the console loop for its whole run and are
// closed by it on every exit path.
type InputSource interface {
	// Poll waits up to timeout for readability.
	Poll(timeout time.Duration) (bool, error)
	// Read reads available bytes without blocking beyond the source's
	// own semantics.
	Read(buf []byte) (int, Signal, error)
	// ExitKeyApplies reports whether the session exit control byte is
	// recognized on this source. Only the keyboard qualifies: bytes from
	// a FIFO or file are payload, always.
	ExitKeyApplies() bool
	Close() error
}

// pollFd waits for POLLIN on fd. EINTR counts as "nothing readable" so a
// signal arriving mid-poll gets back to the loop's stop check quickly.
func pollFd(fd int, timeout time.Duration) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, int(timeout.Milliseconds()))
	if err == unix.EINTR {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("poll: %w", err)
	}
	return n > 0, nil
}

// Keyboard reads session input from a terminal or a piped stdin. On a real
// TTY the terminal is switched to raw mode on open and the previous
// settings are restored on Close, which the loop runs on every exit path.
type Keyboard struct {
	f        *os.File
	oldState *term.State
}

// OpenKeyboard prepares f (usually os.Stdin) as the session input.
func OpenKeyboard(f *os.File) (*Keyboard, error) {
	k := &Keyboard{f: f}
	fd := int(f.Fd())
	if term.IsTerminal(fd) {
		state, err := term.MakeRaw(fd)
		if err != nil {
			return nil, fmt.Errorf("set raw mode: %w", err)
		}
		k.oldState = state
	}
	return k, nil
}

func (k *Keyboard) Poll(timeout time.Duration) (bool, error) {
	return pollFd(int(k.f.Fd()), timeout)
}

// Read reads pending keyboard bytes. EOF means the operator is gone and
// the session should end.
func (k *Keyboard) Read(buf []byte) (int, Signal, error) {
	n, err := k.f.Read(buf)
	if n > 0 {
		return n, More, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return 0, EOFTerminate, nil
	}
	if errors.Is(err, unix.EAGAIN) {
		return 0, WouldBlock, nil
	}
	return 0, EOFTerminate, err
}

func (k *Keyboard) ExitKeyApplies() bool { return true }

// Close restores the terminal settings. The descriptor itself is left
// open: it belongs to the process, not the session.
func (k *Keyboard) Close() error {
	if k.oldState != nil {
		state := k.oldState
		k.oldState = nil
		return term.Restore(int(k.f.Fd()), state)
	}
	return nil
}

// NamedPipe reads session input from a FIFO opened non-blocking. A closed
// writer is not the end of the session: the next writer may open the FIFO
// at any time, so EOF maps to EOFWait.
type NamedPipe struct {
	fd int
}

// OpenNamedPipe opens the FIFO at path for non-blocking reads.
func OpenNamedPipe(path string) (*NamedPipe, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("open FIFO %s: %w", path, err)
	}
	return &NamedPipe{fd: fd}, nil
}

func (p *NamedPipe) Poll(timeout time.Duration) (bool, error) {
	return pollFd(p.fd, timeout)
}

func (p *NamedPipe) Read(buf []byte) (int, Signal, error) {
	n, err := unix.Read(p.fd, buf)
	switch {
	case n > 0:
		return n, More, nil
	case err == nil || err == io.EOF:
		return 0, EOFWait, nil
	case errors.Is(err, unix.EAGAIN):
		return 0, WouldBlock, nil
	default:
		return 0, EOFWait, fmt.Errorf("read FIFO: %w", err)
	}
}

func (p *NamedPipe) ExitKeyApplies() bool { return false }

func (p *NamedPipe) Close() error {
	return unix.Close(p.fd)
}

// WatchedFile tails a regular file: reads block only in the kernel sense
// (they return immediately for files) and hitting the current end of file
// means "wait for more", tail -f style.
type WatchedFile struct {
	f *os.File
}

// OpenWatchedFile opens path for tailing from the beginning.
func OpenWatchedFile(path string) (*WatchedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input file %s: %w", path, err)
	}
	return &WatchedFile{f: f}, nil
}

// Poll always reports readable: regular files never block, the EOFWait
// signal from Read is what paces the loop.
func (w *WatchedFile) Poll(timeout time.Duration) (bool, error) {
	return true, nil
}

func (w *WatchedFile) Read(buf []byte) (int, Signal, error) {
	n, err := w.f.Read(buf)
	if n > 0 {
		return n, More, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return 0, EOFWait, nil
	}
	return 0, EOFWait, fmt.Errorf("read input file: %w", err)
}

func (w *WatchedFile) ExitKeyApplies() bool { return false }

func (w *WatchedFile) Close() error {
	return w.f.Close()
}
