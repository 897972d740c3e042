package strategy

import (
	"fmt"
	"log/slog"

	"github.com/saschahauer/barebox-bringup/internal/config"
	"github.com/saschahauer/barebox-bringup/internal/driver"
	"github.com/saschahauer/barebox-bringup/internal/logging"
	"github.com/saschahauer/barebox-bringup/internal/target"
)

// Bootstrap is the USB/JTAG bring-up strategy: power-cycle the target into
// bootrom/recovery mode and inject the first configured image through the
// loader capability (imx-usb-loader, OpenOCD, UUU and friends).
//
// States: Off -> On (bootstrapped, bootloader running) -> Barebox (shell
// active). Only the first image of the configured set is loaded;
// multi-stage sequenced loads are a different strategy.
type Bootstrap struct {
	tgt    *target.Target
	env    *config.Environment
	images *config.ImageSet
	logger *slog.Logger

	status Status

	power  driver.Power
	loader driver.Loader
}

// NewBootstrap resolves the capabilities the strategy needs. Resolution
// happens once, here; transitions only use the bound handles.
func NewBootstrap(tgt *target.Target, env *config.Environment, images *config.ImageSet, logger *slog.Logger) (*Bootstrap, error) {
	power, err := tgt.Power()
	if err != nil {
		return nil, fmt.Errorf("bootstrap strategy: %w", err)
	}
	if _, err := tgt.Console(); err != nil {
		return nil, fmt.Errorf("bootstrap strategy: %w", err)
	}
	loader, err := tgt.Loader()
	if err != nil {
		return nil, fmt.Errorf("bootstrap strategy: %w", err)
	}
	return &Bootstrap{
		tgt:    tgt,
		env:    env,
		images: images,
		logger: logging.Ensure(logger).With("strategy", "bootstrap"),
		status: Unknown,
		power:  power,
		loader: loader,
	}, nil
}

// Status returns the current state.
func (s *Bootstrap) Status() Status { return s.status }

// Transition drives the target to the given state.
func (s *Bootstrap) Transition(status Status) error {
	return s.transition(status, make(map[Status]bool))
}

func (s *Bootstrap) transition(status Status, visited map[Status]bool) error {
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
		if err := s.transition(Off, visited); err != nil {
			return err
		}
		// Console first: bootrom output appears immediately after the
		// power cycle and must not be lost.
		if err := s.tgt.Activate(target.Console); err != nil {
			return errorf("transition to on: %v", err)
		}
		if err := s.power.Cycle(); err != nil {
			return errorf("power cycle: %v", err)
		}
		img, err := s.images.First()
		if err != nil {
			return errorf("transition to on: %v", err)
		}
		if err := s.tgt.Activate(target.Loader); err != nil {
			return errorf("transition to on: %v", err)
		}
		path := s.env.ImagePath(img)
		s.logger.Info("loading image", "image", img.Name, "path", path)
		if err := s.loader.Load(path); err != nil {
			return errorf("load image %s: %v", img.Name, err)
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

// activateShell interrupts autoboot when a shell capability is bound.
// Boards without one simply let the loaded barebox run.
func (s *Bootstrap) activateShell() error {
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
// a force rule: activate the console and take over the running shell.
func (s *Bootstrap) Force(status Status) error {
	if status != Barebox {
		return errorf("cannot force state %s", status)
	}
	if err := s.tgt.Activate(target.Console); err != nil {
		return errorf("force %s: %v", status, err)
	}
	s.status = status
	return nil
}
