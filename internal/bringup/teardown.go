package bringup

import (
	"log/slog"

	"github.com/saschahauer/barebox-bringup/internal/logging"
)

// Sequencer runs teardown steps in a fixed order. Every step executes no
// matter what the ones before it did: a stuck power switch must not keep
// the place lease held, and a failed release must not leave the log file
// open. Step failures are logged and dropped; they never change the
// process exit code.
type Sequencer struct {
	logger *slog.Logger
	steps  []step
}

type step struct {
	name string
	run  func() error
}

// NewSequencer creates an empty teardown sequencer.
func NewSequencer(logger *slog.Logger) *Sequencer {
	return &Sequencer{logger: logging.Ensure(logger)}
}

// Add appends a step. Steps run in the order they were added.
func (s *Sequencer) Add(name string, run func() error) {
	s.steps = append(s.steps, step{name: name, run: run})
}

// Run executes all steps and returns the errors encountered, for callers
// that want to inspect them (tests mostly). The returned errors have
// already been logged.
func (s *Sequencer) Run() []error {
	var errs []error
	for _, st := range s.steps {
		if err := st.run(); err != nil {
			s.logger.Warn("cleanup step failed", "step", st.name, "error", err)
			errs = append(errs, err)
		} else {
			s.logger.Debug("cleanup step done", "step", st.name)
		}
	}
	return errs
}
