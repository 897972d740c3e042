package driver

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/saschahauer/barebox-bringup/internal/logging"
)

// killGracePeriod is how long Off waits for the process to exit after
// SIGTERM before sending SIGKILL.
const killGracePeriod = 2 * time.Second

// ProcessConsole runs an emulator (typically QEMU) as a child process and
// exposes its stdio as the target console. It is both the Console and the
// Power capability of an emulated target: On starts the process, Off
// terminates it, and liveness is the process exit state.
//
// The process writes console bytes to stdout and reads console input from
// stdin; -nographic (or the equivalent for other emulators) must be in the
// argument list so the emulator uses stdio at all. For QEMU commands the
// flag is appended automatically.
type ProcessConsole struct {
	command string
	args    []string
	logger  *slog.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   *os.File
	stdout  *os.File
	done    chan struct{}
	exitErr error
}

// NewProcessConsole creates a process console for the given command line.
// The process is not started until On is called.
func NewProcessConsole(command string, args []string, logger *slog.Logger) *ProcessConsole {
	if isQEMU(command) && !slices.Contains(args, "-nographic") {
		args = append(slices.Clone(args), "-nographic")
	}
	return &ProcessConsole{
		command: command,
		args:    args,
		logger:  logging.Ensure(logger),
	}
}

func isQEMU(command string) bool {
	return strings.HasPrefix(filepath.Base(command), "qemu")
}

// On starts the emulator process. Starting an already-running process is a
// no-op so that power cycling composes with repeated strategy transitions.
func (p *ProcessConsole) On() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running() {
		return nil
	}

	// The console side keeps the *os.File ends so read deadlines work;
	// the child gets the opposite ends.
	stdoutRead, stdoutWrite, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	stdinRead, stdinWrite, err := os.Pipe()
	if err != nil {
		stdoutRead.Close()
		stdoutWrite.Close()
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	cmd := exec.Command(p.command, p.args...)
	cmd.Stdin = stdinRead
	cmd.Stdout = stdoutWrite
	cmd.Stderr = stdoutWrite

	if err := cmd.Start(); err != nil {
		stdoutRead.Close()
		stdoutWrite.Close()
		stdinRead.Close()
		stdinWrite.Close()
		return fmt.Errorf("start %s: %w", p.command, err)
	}

	// The parent must drop the child's pipe ends, or EOF is never seen.
	stdoutWrite.Close()
	stdinRead.Close()

	p.cmd = cmd
	p.stdin = stdinWrite
	p.stdout = stdoutRead
	p.done = make(chan struct{})
	p.exitErr = nil

	done := p.done
	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.exitErr = err
		p.mu.Unlock()
		close(done)
	}()

	p.logger.Info("emulator started", "command", p.command, "pid", cmd.Process.Pid)
	return nil
}

// Off terminates the emulator process: SIGTERM, then SIGKILL after a short
// grace period. Off on a stopped process is a no-op.
func (p *ProcessConsole) Off() error {
	p.mu.Lock()
	if !p.running() {
		p.mu.Unlock()
		return nil
	}
	proc := p.cmd.Process
	done := p.done
	p.mu.Unlock()

	_ = proc.Signal(syscall.SIGTERM)
	select {
	case <-done:
	case <-time.After(killGracePeriod):
		_ = proc.Kill()
		<-done
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
	p.logger.Info("emulator stopped", "command", p.command)
	return nil
}

// Cycle restarts the emulator process.
func (p *ProcessConsole) Cycle() error {
	if err := p.Off(); err != nil {
		return err
	}
	return p.On()
}

// Alive reports whether the backing process is still running. It never
// blocks: the exit is recorded by the waiter goroutine.
func (p *ProcessConsole) Alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running()
}

// running reports process state; callers hold p.mu.
func (p *ProcessConsole) running() bool {
	if p.cmd == nil || p.done == nil {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Read reads console output with a bounded wait. ErrTimeout when nothing
// arrived, ErrClosed once the process is gone and the pipe drained.
func (p *ProcessConsole) Read(buf []byte, timeout time.Duration) (int, error) {
	p.mu.Lock()
	stdout := p.stdout
	p.mu.Unlock()
	if stdout == nil {
		return 0, ErrNotRunning
	}

	if err := stdout.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, fmt.Errorf("set read deadline: %w", err)
	}
	n, err := stdout.Read(buf)
	if err != nil {
		if os.IsTimeout(err) {
			return n, ErrTimeout
		}
		return n, ErrClosed
	}
	return n, nil
}

// Write sends console input to the process.
func (p *ProcessConsole) Write(buf []byte) (int, error) {
	p.mu.Lock()
	stdin := p.stdin
	p.mu.Unlock()
	if stdin == nil {
		return 0, ErrNotRunning
	}
	n, err := stdin.Write(buf)
	if err != nil {
		return n, ErrClosed
	}
	return n, nil
}

// Deactivate stops the process if it is still running and releases the
// pipes. Implements Activator so target teardown closes the console.
func (p *ProcessConsole) Deactivate() error {
	return p.Off()
}

// Activate is a no-op: the process is started by power control, not by
// console activation, so that a console can be attached before power-on to
// capture the very first boot output.
func (p *ProcessConsole) Activate() error { return nil }

// closeLocked releases pipe ends; callers hold p.mu.
func (p *ProcessConsole) closeLocked() {
	if p.stdin != nil {
		p.stdin.Close()
		p.stdin = nil
	}
	if p.stdout != nil {
		p.stdout.Close()
		p.stdout = nil
	}
	p.cmd = nil
}
