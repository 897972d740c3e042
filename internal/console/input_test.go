package console

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/sys/unix"
)

func TestNamedPipe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.fifo")
	require.NoError(t, unix.Mkfifo(path, 0o600))

	p, err := OpenNamedPipe(path)
	require.NoError(t, err)
	defer p.Close()

	assert.False(t, p.ExitKeyApplies())

	// No writer yet: nothing readable, read would block or waits.
	readable, err := p.Poll(10 * time.Millisecond)
	require.NoError(t, err)
	assert.False(t, readable)

	buf := make([]byte, 64)
	n, sig, err := p.Read(buf)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Contains(t, []Signal{EOFWait, WouldBlock}, sig)

	// A writer appears and sends a command.
	w, err := os.OpenFile(path, os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = w.WriteString("version\n")
	require.NoError(t, err)

	readable, err = p.Poll(time.Second)
	require.NoError(t, err)
	require.True(t, readable)

	n, sig, err = p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, More, sig)
	assert.Equal(t, "version\n", string(buf[:n]))

	// Writer leaves: EOFWait, not termination. A later writer may come.
	require.NoError(t, w.Close())
	for sig != EOFWait {
		n, sig, err = p.Read(buf)
		require.NoError(t, err)
		if n == 0 {
			break
		}
	}
	assert.Equal(t, EOFWait, sig)
}

func TestOpenNamedPipeMissing(t *testing.T) {
	_, err := OpenNamedPipe(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}

func TestWatchedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commands.txt")
	require.NoError(t, os.WriteFile(path, []byte("help\n"), 0o600))

	w, err := OpenWatchedFile(path)
	require.NoError(t, err)
	defer w.Close()

	assert.False(t, w.ExitKeyApplies())

	readable, err := w.Poll(10 * time.Millisecond)
	require.NoError(t, err)
	assert.True(t, readable)

	buf := make([]byte, 64)
	n, sig, err := w.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, More, sig)
	assert.Equal(t, "help\n", string(buf[:n]))

	// At the current end: wait, tail -f style.
	n, sig, err = w.Read(buf)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, EOFWait, sig)

	// Appended content becomes readable on the next cycle.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteString("boot\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	n, sig, err = w.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, More, sig)
	assert.Equal(t, "boot\n", string(buf[:n]))
}

func TestKeyboardOverPipe(t *testing.T) {
	// os.Pipe stands in for a non-TTY stdin; no raw mode involved.
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()

	k, err := OpenKeyboard(r)
	require.NoError(t, err)
	defer k.Close()

	assert.True(t, k.ExitKeyApplies())

	_, err = w.WriteString("md 0x1000\n")
	require.NoError(t, err)

	readable, err := k.Poll(time.Second)
	require.NoError(t, err)
	require.True(t, readable)

	buf := make([]byte, 64)
	n, sig, err := k.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, More, sig)
	assert.Equal(t, "md 0x1000\n", string(buf[:n]))

	// Writer gone: keyboard EOF ends the session.
	require.NoError(t, w.Close())
	_, sig, err = k.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, EOFTerminate, sig)

	// Close restores terminal state only; the descriptor stays usable.
	require.NoError(t, k.Close())
	_, err = r.Stat()
	require.NoError(t, err)
}

func TestLoopWithNamedPipe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.fifo")
	require.NoError(t, unix.Mkfifo(path, 0o600))

	p, err := OpenNamedPipe(path)
	require.NoError(t, err)

	con := newScriptedConsole()
	l := fastLoop(&Loop{Console: con, Input: p, Interactive: true})

	done := make(chan Reason, 1)
	go func() { done <- l.Run() }()

	w, err := os.OpenFile(path, os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = w.WriteString("boot net\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.Eventually(t, func() bool {
		return string(con.writtenBytes()) == "boot net\n"
	}, 2*time.Second, 5*time.Millisecond)

	l.RequestStop()
	assert.Equal(t, ReasonInterrupted, <-done)
}
