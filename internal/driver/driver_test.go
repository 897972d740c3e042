package driver

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessConsoleLifecycle(t *testing.T) {
	// cat echoes stdin to stdout and lives until its stdin closes: a
	// perfectly adequate emulator stand-in.
	p := NewProcessConsole("cat", nil, nil)

	assert.False(t, p.Alive())
	// Never started: a distinct sentinel that still reads as closed.
	_, err := p.Read(make([]byte, 16), 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrNotRunning)
	assert.ErrorIs(t, err, ErrClosed)

	require.NoError(t, p.On())
	assert.True(t, p.Alive())
	// Powering on a running process is a no-op.
	require.NoError(t, p.On())

	_, err = p.Write([]byte("barebox@board:/ \n"))
	require.NoError(t, err)

	buf := make([]byte, 64)
	var got []byte
	deadline := time.Now().Add(5 * time.Second)
	for len(got) < len("barebox@board:/ \n") && time.Now().Before(deadline) {
		n, err := p.Read(buf, 50*time.Millisecond)
		if n > 0 {
			got = append(got, buf[:n]...)
		}
		if err != nil && err != ErrTimeout {
			break
		}
	}
	assert.Equal(t, "barebox@board:/ \n", string(got))

	require.NoError(t, p.Off())
	assert.False(t, p.Alive())
	// Powering off a stopped process is a no-op too.
	require.NoError(t, p.Off())

	_, err = p.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrNotRunning)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestProcessConsoleReadTimeout(t *testing.T) {
	p := NewProcessConsole("cat", nil, nil)
	require.NoError(t, p.On())
	defer p.Off()

	start := time.Now()
	n, err := p.Read(make([]byte, 16), 30*time.Millisecond)
	assert.Zero(t, n)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestProcessConsoleCycle(t *testing.T) {
	p := NewProcessConsole("cat", nil, nil)
	require.NoError(t, p.On())
	require.NoError(t, p.Cycle())
	assert.True(t, p.Alive())
	require.NoError(t, p.Off())
}

func TestProcessConsoleDetectsExit(t *testing.T) {
	p := NewProcessConsole("true", nil, nil)
	require.NoError(t, p.On())

	assert.Eventually(t, func() bool { return !p.Alive() },
		5*time.Second, 10*time.Millisecond)
}

func TestProcessConsoleStartFailure(t *testing.T) {
	p := NewProcessConsole("/no/such/emulator", nil, nil)
	require.Error(t, p.On())
	assert.False(t, p.Alive())
}

func TestProcessConsoleDeactivateStops(t *testing.T) {
	p := NewProcessConsole("cat", nil, nil)
	require.NoError(t, p.Activate())
	require.NoError(t, p.On())
	require.NoError(t, p.Deactivate())
	assert.False(t, p.Alive())
}

func TestQEMUGetsNographic(t *testing.T) {
	p := NewProcessConsole("/usr/bin/qemu-system-arm", []string{"-M", "virt"}, nil)
	assert.Contains(t, p.args, "-nographic")

	// Only once, even if the config already has it.
	p = NewProcessConsole("qemu-system-x86_64", []string{"-nographic"}, nil)
	assert.Equal(t, []string{"-nographic"}, p.args)

	// Non-QEMU emulators keep their argument list untouched.
	p = NewProcessConsole("cat", nil, nil)
	assert.Empty(t, p.args)
}

func TestRunToolPlaceholders(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "loaded")
	l := &CommandLoader{Cmd: []string{"cp", "{image}", marker}}

	src := filepath.Join(dir, "barebox.img")
	require.NoError(t, os.WriteFile(src, []byte("image"), 0o600))
	require.NoError(t, l.Load(src))

	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Equal(t, "image", string(data))
}

func TestRunToolFailureIncludesOutput(t *testing.T) {
	l := &CommandLoader{Cmd: []string{"sh", "-c", "echo ROM not found >&2; exit 3"}}
	err := l.Load("whatever")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ROM not found")
}

func TestRunToolEmptyCommand(t *testing.T) {
	p := &CommandPower{}
	require.Error(t, p.On())
}

func TestCommandPowerCycleOrder(t *testing.T) {
	dir := t.TempDir()
	log := filepath.Join(dir, "order")
	p := &CommandPower{
		OnCmd:  []string{"sh", "-c", "echo on >> " + log},
		OffCmd: []string{"sh", "-c", "echo off >> " + log},
	}
	require.NoError(t, p.Cycle())

	data, err := os.ReadFile(log)
	require.NoError(t, err)
	assert.Equal(t, "off\non\n", string(data))
}

func TestCommandSDMuxModes(t *testing.T) {
	dir := t.TempDir()
	log := filepath.Join(dir, "modes")
	m := &CommandSDMux{Cmd: []string{"sh", "-c", "echo {mode} >> " + log}}

	require.NoError(t, m.SetMode(MuxHost))
	require.NoError(t, m.SetMode(MuxDUT))

	data, err := os.ReadFile(log)
	require.NoError(t, err)
	assert.Equal(t, "host\ndut\n", string(data))
}

func TestDDStorageArgs(t *testing.T) {
	// dd writing to a scratch file exercises the real argument building.
	dir := t.TempDir()
	src := filepath.Join(dir, "src.img")
	dst := filepath.Join(dir, "card.img")
	require.NoError(t, os.WriteFile(src, make([]byte, 1024), 0o600))

	s := &DDStorage{Device: dst}
	require.NoError(t, s.WriteImage(src, WriteOptions{}))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, int64(1024), info.Size())

	// A seek offset grows the output by whole blocks.
	require.NoError(t, s.WriteImage(src, WriteOptions{Seek: 2}))
	info, err = os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, int64(2*512+1024), info.Size())

	// Skip drops leading input blocks.
	require.NoError(t, os.Remove(dst))
	require.NoError(t, s.WriteImage(src, WriteOptions{Skip: 1}))
	info, err = os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, int64(512), info.Size())
}

// loopbackConsole records writes and plays the countdown banner once.
type loopbackConsole struct {
	mu      sync.Mutex
	written []byte
	banner  []byte
}

func (c *loopbackConsole) Read(p []byte, timeout time.Duration) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.banner) == 0 {
		return 0, ErrTimeout
	}
	n := copy(p, c.banner)
	c.banner = c.banner[n:]
	return n, nil
}

func (c *loopbackConsole) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, p...)
	return len(p), nil
}

func (c *loopbackConsole) Alive() bool { return true }

func TestConsoleShellInterrupt(t *testing.T) {
	con := &loopbackConsole{banner: []byte("Hit any key to stop autoboot: 3")}
	s := &ConsoleShell{Console: con, Interval: time.Millisecond}

	require.NoError(t, s.Interrupt())
	// The key was sent repeatedly to cover the countdown window.
	assert.Equal(t, []byte("\n\n\n\n\n\n\n\n\n\n"), con.written)
}

func TestConsoleShellCustomKey(t *testing.T) {
	con := &loopbackConsole{}
	s := &ConsoleShell{Console: con, Key: []byte(" "), Interval: time.Millisecond}
	require.NoError(t, s.Interrupt())
	assert.Equal(t, []byte("          "), con.written)
}

func TestPipeConsole(t *testing.T) {
	r1, w1, err := os.Pipe() // device -> console
	require.NoError(t, err)
	r2, w2, err := os.Pipe() // console -> device
	require.NoError(t, err)
	defer r2.Close()

	c := NewPipeConsole(r1, w2)
	assert.True(t, c.Alive())

	_, err = w1.WriteString("login: ")
	require.NoError(t, err)

	buf := make([]byte, 16)
	n, err := c.Read(buf, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "login: ", string(buf[:n]))

	// Nothing pending: bounded timeout, not a hang.
	_, err = c.Read(buf, 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)

	_, err = c.Write([]byte("root\n"))
	require.NoError(t, err)
	n, err = r2.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "root\n", string(buf[:n]))

	require.NoError(t, c.Deactivate())
	w1.Close()
}
