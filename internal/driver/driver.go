// Package driver defines the capability interfaces a bring-up target is
// assembled from, plus the console implementations shipped with the tool.
//
// A capability is one named role a concrete piece of lab hardware plays:
// power switching, console access, USB/JTAG bootstrap loading, mass-storage
// writing, SD-card multiplexing. The strategy and console layers program
// against these interfaces only; how a driver physically reaches the
// hardware is out of scope here.
package driver

import "time"

// Power switches target power. Cycle must guarantee the target passes
// through the off state long enough to reach bootrom/recovery on the way
// back up.
type Power interface {
	On() error
	Off() error
	Cycle() error
}

// Console is a raw byte link to the target console.
//
// Read blocks for at most timeout and returns ErrTimeout when no data
// arrived; that is the normal idle case, not a failure. ErrClosed means the
// peer is gone for good. Alive is a cheap non-blocking liveness probe: a
// process-backed console reports whether the backing process still runs,
// a hardware-backed console reports true until I/O proves otherwise.
type Console interface {
	Read(p []byte, timeout time.Duration) (int, error)
	Write(p []byte) (int, error)
	Alive() bool
}

// Loader injects a firmware image into a target sitting in bootrom or
// recovery mode (USB recovery, JTAG, UUU and friends).
type Loader interface {
	Load(imagePath string) error
}

// WriteOptions carries the optional dd-style positioning attributes of an
// image write. Values are in 512-byte blocks, matching dd seek=/skip=.
type WriteOptions struct {
	Seek int64
	Skip int64
}

// Storage writes images to a target boot medium addressable from the host.
type Storage interface {
	WriteImage(imagePath string, opts WriteOptions) error
}

// MuxMode selects which side of an SD-card multiplexer owns the card.
type MuxMode string

const (
	// MuxHost routes the card to the host for writing.
	MuxHost MuxMode = "host"
	// MuxDUT routes the card to the device under test for booting.
	MuxDUT MuxMode = "dut"
)

// SDMux controls an SD-card multiplexer such as the USB-SD-MUX.
type SDMux interface {
	SetMode(mode MuxMode) error
}

// Shell interrupts the bootloader's autoboot countdown and leaves the
// target at an interactive barebox prompt.
type Shell interface {
	Interrupt() error
}

// Activator is implemented by drivers that need setup or teardown around
// use. The target layer calls these exactly once per activation cycle;
// drivers without lifecycle needs simply do not implement it.
type Activator interface {
	Activate() error
	Deactivate() error
}
