package driver

import (
	"fmt"
	"time"
)

// interruptAttempts is how many times the interrupt key is sent while
// waiting for the autoboot countdown window.
const interruptAttempts = 10

// ConsoleShell interrupts the bootloader autoboot countdown by sending a
// key over the console. Barebox aborts autoboot on any input; the key is
// repeated for a short while because the countdown window opens only after
// the bootloader banner appears.
type ConsoleShell struct {
	Console  Console
	Key      []byte        // defaults to "\n"
	Interval time.Duration // defaults to 200ms between attempts
}

func (s *ConsoleShell) Interrupt() error {
	key := s.Key
	if len(key) == 0 {
		key = []byte("\n")
	}
	interval := s.Interval
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}

	for i := 0; i < interruptAttempts; i++ {
		if _, err := s.Console.Write(key); err != nil {
			return fmt.Errorf("interrupt autoboot: %w", err)
		}
		// Drain whatever the countdown printed so the prompt comes up
		// clean for the operator.
		buf := make([]byte, 4096)
		_, _ = s.Console.Read(buf, interval)
	}
	return nil
}
