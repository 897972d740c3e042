package console

import (
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/saschahauer/barebox-bringup/internal/driver"
	"github.com/saschahauer/barebox-bringup/internal/logging"
)

// ExitKey is the single control byte that ends an interactive session
// when typed at the keyboard: Ctrl-], as in telnet.
const ExitKey = 0x1d

const (
	defaultPollInterval = 10 * time.Millisecond
	defaultReadTimeout  = 50 * time.Millisecond
	defaultQuietPeriod  = 5 * time.Second

	inputChunk   = 1024
	consoleChunk = 4096

	// maxConsecutiveReadErrors bounds the conservative "treat unknown
	// read errors as timeouts" policy. Transient driver hiccups recover
	// within a few cycles; a driver failing every cycle for this long is
	// dead, whatever it claims.
	maxConsecutiveReadErrors = 100
)

// Reason is why a console session ended.
type Reason int

const (
	// ReasonClosed: the console link died (process exited, write failed,
	// connection closed).
	ReasonClosed Reason = iota
	// ReasonTimeout: the configured session timeout elapsed.
	ReasonTimeout
	// ReasonQuiet: unattended mode saw no output for the quiet period.
	ReasonQuiet
	// ReasonDetached: the operator pressed the exit key.
	ReasonDetached
	// ReasonEOF: the keyboard input stream ended.
	ReasonEOF
	// ReasonInterrupted: a stop was requested (SIGINT).
	ReasonInterrupted
)

func (r Reason) String() string {
	switch r {
	case ReasonClosed:
		return "closed"
	case ReasonTimeout:
		return "timeout"
	case ReasonQuiet:
		return "quiet"
	case ReasonDetached:
		return "detach"
	case ReasonEOF:
		return "eof"
	case ReasonInterrupted:
		return "interrupt"
	default:
		return "closed"
	}
}

// Message returns the operator-facing description of the reason.
func (r Reason) Message() string {
	switch r {
	case ReasonClosed:
		return "Console closed"
	case ReasonTimeout:
		return "Timeout reached"
	case ReasonQuiet:
		return "No more output, done"
	case ReasonDetached:
		return "Detached"
	case ReasonEOF:
		return "End of input"
	case ReasonInterrupted:
		return "Interrupted"
	default:
		return "Console closed"
	}
}

// Loop is the session event loop: it merges input-source bytes, console
// output and liveness/timeout checks in one cooperative poll cycle.
// Exactly one Loop owns the console and the input source while Run is
// executing; there is no concurrent access from elsewhere.
type Loop struct {
	// Console is the active console link. Required.
	Console driver.Console
	// Input is the session input source, or nil for output-only capture.
	Input InputSource
	// Screen receives console output in interactive mode; nil in
	// unattended mode.
	Screen io.Writer
	// Log receives raw console output bytes; input is never echoed into
	// it. Optional.
	Log io.Writer
	// Timeout bounds the whole session; zero means unbounded.
	Timeout time.Duration
	// Interactive selects the interactive variant: screen output and
	// exit-key handling instead of the quiet-period early exit.
	Interactive bool

	// PollInterval and ReadTimeout override the poll pacing; zero means
	// the defaults (10ms input poll, 50ms console sub-poll).
	PollInterval time.Duration
	ReadTimeout  time.Duration
	// QuietPeriod overrides how long unattended mode waits without
	// output before ending early; zero means 5s.
	QuietPeriod time.Duration

	Logger *slog.Logger

	stop atomic.Bool
}

// RequestStop asks the loop to end at the next iteration. Safe to call
// from a signal handler goroutine.
func (l *Loop) RequestStop() {
	l.stop.Store(true)
}

// Run executes the loop until a termination condition holds and returns
// why it ended. The input source is closed (and the terminal restored)
// before Run returns, on every path.
func (l *Loop) Run() Reason {
	logger := logging.Ensure(l.Logger)

	pollInterval := l.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	readTimeout := l.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = defaultReadTimeout
	}
	quietPeriod := l.QuietPeriod
	if quietPeriod <= 0 {
		quietPeriod = defaultQuietPeriod
	}
	quietLimit := int(quietPeriod / readTimeout)
	if quietLimit < 1 {
		quietLimit = 1
	}

	if l.Input != nil {
		defer func() {
			if err := l.Input.Close(); err != nil {
				logger.Warn("closing input source", "error", err)
			}
		}()
	}

	start := time.Now()
	inputBuf := make([]byte, inputChunk)
	outputBuf := make([]byte, consoleChunk)
	quietCycles := 0
	readErrors := 0

	for {
		if l.stop.Load() {
			return ReasonInterrupted
		}
		if !l.Console.Alive() {
			return ReasonClosed
		}
		if l.Timeout > 0 && time.Since(start) >= l.Timeout {
			return ReasonTimeout
		}

		// Input side. Without a source there is nothing to poll, so
		// sleep one tick to keep the cycle bounded.
		if l.Input == nil {
			time.Sleep(pollInterval)
		} else {
			readable, err := l.Input.Poll(pollInterval)
			if err != nil {
				logger.Warn("input poll failed", "error", err)
			} else if readable {
				n, sig, err := l.Input.Read(inputBuf)
				if err != nil {
					logger.Debug("input read", "error", err)
				}
				switch sig {
				case EOFTerminate:
					return ReasonEOF
				case EOFWait, WouldBlock:
					// No data yet; not an error.
				case More:
					data := inputBuf[:n]
					if l.Interactive && l.Input.ExitKeyApplies() && n == 1 && data[0] == ExitKey {
						return ReasonDetached
					}
					if _, err := l.Console.Write(data); err != nil {
						// A failed write is proof of death.
						return ReasonClosed
					}
					quietCycles = 0
				}
			}
		}

		// Console side: short sub-poll, bounded chunk.
		n, err := l.Console.Read(outputBuf, readTimeout)
		if n > 0 {
			readErrors = 0
			quietCycles = 0
			data := outputBuf[:n]
			if l.Interactive && l.Screen != nil {
				if _, err := l.Screen.Write(data); err != nil {
					logger.Warn("screen write failed", "error", err)
				}
			}
			if l.Log != nil {
				if _, err := l.Log.Write(data); err != nil {
					logger.Warn("log write failed", "error", err)
				}
			}
		}
		switch {
		case err == nil:
			readErrors = 0
		case errors.Is(err, driver.ErrTimeout):
			// The normal "nothing new" case.
			readErrors = 0
			quietCycles++
		case errors.Is(err, driver.ErrClosed):
			return ReasonClosed
		default:
			// Most driver errors are transient; treating them as
			// timeouts avoids killing a live session speculatively. The
			// counter keeps a permanently broken driver from spinning
			// forever.
			logger.Debug("console read error treated as timeout", "error", err)
			quietCycles++
			readErrors++
			if readErrors >= maxConsecutiveReadErrors {
				logger.Warn("persistent console read errors, giving up", "error", err)
				return ReasonClosed
			}
		}

		// Unattended capture ends once output has settled, rather than
		// sitting out the full timeout.
		if !l.Interactive && l.Timeout > 0 && quietCycles >= quietLimit {
			return ReasonQuiet
		}
	}
}
