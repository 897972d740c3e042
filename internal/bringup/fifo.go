package bringup

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// SetupFIFO prepares the session input FIFO.
//
// An empty path means "make one for me": a uniquely named FIFO under the
// temp directory. A given path is reused when it already is a FIFO,
// created when nothing is there, and rejected when something else sits at
// that path. createdByUs tells teardown whether removing the FIFO is our
// job.
func SetupFIFO(path string) (fifoPath string, createdByUs bool, err error) {
	if path == "" {
		fifoPath = filepath.Join(os.TempDir(), fmt.Sprintf("barebox-input-%s.fifo", uuid.NewString()))
		if err := unix.Mkfifo(fifoPath, 0o644); err != nil {
			return "", false, fmt.Errorf("create FIFO %s: %w", fifoPath, err)
		}
		return fifoPath, true, nil
	}

	info, err := os.Stat(path)
	switch {
	case err == nil:
		if info.Mode()&os.ModeNamedPipe == 0 {
			return "", false, fmt.Errorf("%s exists but is not a FIFO", path)
		}
		return path, false, nil
	case os.IsNotExist(err):
		if err := unix.Mkfifo(path, 0o644); err != nil {
			return "", false, fmt.Errorf("create FIFO %s: %w", path, err)
		}
		return path, true, nil
	default:
		return "", false, fmt.Errorf("stat %s: %w", path, err)
	}
}
