package strategy

import (
	"fmt"
	"log/slog"

	"github.com/saschahauer/barebox-bringup/internal/config"
	"github.com/saschahauer/barebox-bringup/internal/driver"
	"github.com/saschahauer/barebox-bringup/internal/logging"
	"github.com/saschahauer/barebox-bringup/internal/target"
)

// SDMux is the SD-card bring-up strategy for boards booting from a card
// behind a USB-SD-MUX: write the image to the card while the mux routes it
// to the host, switch the mux back to the device, power cycle.
//
// The image is written at most once per process lifetime (bootstrapDone),
// no matter how often On is requested. With the no-write option the write
// is skipped entirely and the card is assumed to hold a valid image.
type SDMux struct {
	tgt    *target.Target
	env    *config.Environment
	images *config.ImageSet
	logger *slog.Logger

	status        Status
	bootstrapDone bool
	noWrite       bool

	power   driver.Power
	mux     driver.SDMux
	storage driver.Storage
}

// NewSDMux resolves the capabilities the strategy needs.
func NewSDMux(tgt *target.Target, env *config.Environment, images *config.ImageSet, opts Options, logger *slog.Logger) (*SDMux, error) {
	power, err := tgt.Power()
	if err != nil {
		return nil, fmt.Errorf("sdmux strategy: %w", err)
	}
	if _, err := tgt.Console(); err != nil {
		return nil, fmt.Errorf("sdmux strategy: %w", err)
	}
	mux, err := tgt.SDMux()
	if err != nil {
		return nil, fmt.Errorf("sdmux strategy: %w", err)
	}
	storage, err := tgt.Storage()
	if err != nil {
		return nil, fmt.Errorf("sdmux strategy: %w", err)
	}
	noWrite := opts.NoWrite || env.BoolOption("no_write")
	return &SDMux{
		tgt:     tgt,
		env:     env,
		images:  images,
		logger:  logging.Ensure(logger).With("strategy", "sdmux"),
		status:  Unknown,
		noWrite: noWrite,
		power:   power,
		mux:     mux,
		storage: storage,
	}, nil
}

// Status returns the current state.
func (s *SDMux) Status() Status { return s.status }

// BootstrapDone reports whether the one-shot image write has happened (or
// was waived by the no-write option).
func (s *SDMux) BootstrapDone() bool { return s.bootstrapDone }

// Transition drives the target to the given state.
func (s *SDMux) Transition(status Status) error {
	return s.transition(status, make(map[Status]bool))
}

func (s *SDMux) transition(status Status, visited map[Status]bool) error {
	if status == Unknown {
		return errorf("cannot transition to %s", status)
	}
	if status == s.status {
		s.logger.Info("transition skipped, already there", "status", status.String())
		return nil
	}
	if visited[status] {
		return errorf("transition cycle detected at %s", status)
	}
	visited[status] = true

	switch status {
	case Off:
		// The card must be routed to the device before cutting power, so
		// a later boot finds it in place.
		if err := s.tgt.Activate(target.SDMux); err != nil {
			return errorf("transition to off: %v", err)
		}
		if err := s.mux.SetMode(driver.MuxDUT); err != nil {
			return errorf("mux to dut: %v", err)
		}
		if err := s.tgt.Deactivate(target.Console); err != nil {
			return errorf("transition to off: %v", err)
		}
		if err := s.tgt.Activate(target.Power); err != nil {
			return errorf("transition to off: %v", err)
		}
		if err := s.power.Off(); err != nil {
			return errorf("power off: %v", err)
		}

	case On:
		if s.status != Off {
			if err := s.transition(Off, visited); err != nil {
				return err
			}
		}
		if err := s.tgt.Activate(target.Console); err != nil {
			return errorf("transition to on: %v", err)
		}
		if err := s.prepareCard(); err != nil {
			return err
		}
		if err := s.power.Cycle(); err != nil {
			return errorf("power cycle: %v", err)
		}

	case Barebox:
		if err := s.transition(On, visited); err != nil {
			return err
		}
		if err := s.activateShell(); err != nil {
			return err
		}

	default:
		return errorf("no transition found from %s to %s", s.status, status)
	}

	s.status = status
	s.logger.Debug("transition complete", "status", status.String())
	return nil
}

// prepareCard writes the boot image to the card if that has not happened
// yet, and leaves the mux routed to the device either way. The write order
// is fixed: the card is only addressable from the host while the mux is in
// host mode.
func (s *SDMux) prepareCard() error {
	if s.bootstrapDone || s.noWrite {
		if err := s.tgt.Activate(target.SDMux); err != nil {
			return errorf("prepare card: %v", err)
		}
		if err := s.mux.SetMode(driver.MuxDUT); err != nil {
			return errorf("mux to dut: %v", err)
		}
		if s.noWrite && !s.bootstrapDone {
			// The operator vouches for the card contents; never write
			// for the rest of the process lifetime.
			s.bootstrapDone = true
		}
		return nil
	}

	img, err := s.images.First()
	if err != nil {
		return errorf("prepare card: %v", err)
	}

	if err := s.tgt.Activate(target.SDMux); err != nil {
		return errorf("prepare card: %v", err)
	}
	if err := s.tgt.Activate(target.Storage); err != nil {
		return errorf("prepare card: %v", err)
	}
	if err := s.mux.SetMode(driver.MuxHost); err != nil {
		return errorf("mux to host: %v", err)
	}

	path := s.env.ImagePath(img)
	s.logger.Info("writing image", "image", img.Name, "path", path, "seek", img.Seek, "skip", img.Skip)
	if err := s.storage.WriteImage(path, driver.WriteOptions{Seek: img.Seek, Skip: img.Skip}); err != nil {
		return errorf("write image %s: %v", img.Name, err)
	}

	if err := s.mux.SetMode(driver.MuxDUT); err != nil {
		return errorf("mux to dut: %v", err)
	}
	s.bootstrapDone = true
	return nil
}

func (s *SDMux) activateShell() error {
	if !s.tgt.Has(target.Shell) {
		return nil
	}
	if err := s.tgt.Activate(target.Shell); err != nil {
		return errorf("transition to barebox: %v", err)
	}
	shell, err := s.tgt.Shell()
	if err != nil {
		return errorf("transition to barebox: %v", err)
	}
	if err := shell.Interrupt(); err != nil {
		return errorf("interrupt autoboot: %v", err)
	}
	return nil
}

// Force claims the target is already at the given state. Only Barebox has
// a force rule: activate the console and waive the image write.
func (s *SDMux) Force(status Status) error {
	if status != Barebox {
		return errorf("cannot force state %s", status)
	}
	if err := s.tgt.Activate(target.Console); err != nil {
		return errorf("force %s: %v", status, err)
	}
	s.bootstrapDone = true
	s.status = status
	return nil
}
