// Package target assembles a bring-up target from its configured
// capability drivers and tracks which of them are active.
//
// Capabilities are resolved by name exactly once, when the target is
// built; strategies and the console loop hold the resolved handles for
// their whole run and never look drivers up again mid-transition.
package target

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/saschahauer/barebox-bringup/internal/driver"
	"github.com/saschahauer/barebox-bringup/internal/logging"
)

// Capability names one role a driver plays for a target.
type Capability string

const (
	Power   Capability = "power"
	Console Capability = "console"
	Loader  Capability = "loader"
	Storage Capability = "storage"
	SDMux   Capability = "sdmux"
	Shell   Capability = "shell"
)

// ErrCapabilityNotBound is returned when a capability the caller needs was
// not configured for the target.
var ErrCapabilityNotBound = errors.New("capability not bound")

// Target is one named board (or emulated board) with its bound drivers.
type Target struct {
	role   string
	logger *slog.Logger

	caps   map[Capability]any
	active []Capability
}

// New creates an empty target for the given role.
func New(role string, logger *slog.Logger) *Target {
	return &Target{
		role:   role,
		logger: logging.Ensure(logger).With("role", role),
		caps:   make(map[Capability]any),
	}
}

// Role returns the target's role name.
func (t *Target) Role() string { return t.role }

// Bind registers a driver handle for a capability. Binding happens during
// target construction only.
func (t *Target) Bind(cap Capability, drv any) {
	t.caps[cap] = drv
}

// Has reports whether a capability is bound.
func (t *Target) Has(cap Capability) bool {
	_, ok := t.caps[cap]
	return ok
}

// Power returns the bound power driver.
func (t *Target) Power() (driver.Power, error) {
	return lookup[driver.Power](t, Power)
}

// Console returns the bound console driver.
func (t *Target) Console() (driver.Console, error) {
	return lookup[driver.Console](t, Console)
}

// Loader returns the bound bootstrap loader driver.
func (t *Target) Loader() (driver.Loader, error) {
	return lookup[driver.Loader](t, Loader)
}

// Storage returns the bound storage driver.
func (t *Target) Storage() (driver.Storage, error) {
	return lookup[driver.Storage](t, Storage)
}

// SDMux returns the bound SD-card mux driver.
func (t *Target) SDMux() (driver.SDMux, error) {
	return lookup[driver.SDMux](t, SDMux)
}

// Shell returns the bound bootloader shell driver.
func (t *Target) Shell() (driver.Shell, error) {
	return lookup[driver.Shell](t, Shell)
}

func lookup[T any](t *Target, cap Capability) (T, error) {
	var zero T
	drv, ok := t.caps[cap]
	if !ok {
		return zero, fmt.Errorf("%w: %s (role %s)", ErrCapabilityNotBound, cap, t.role)
	}
	typed, ok := drv.(T)
	if !ok {
		return zero, fmt.Errorf("driver bound as %s does not implement the %s capability", cap, cap)
	}
	return typed, nil
}

// Activate brings a capability's driver into use. Activating an already
// active capability is a no-op, so compound strategy transitions can
// activate prerequisites without bookkeeping.
func (t *Target) Activate(cap Capability) error {
	drv, ok := t.caps[cap]
	if !ok {
		return fmt.Errorf("%w: %s (role %s)", ErrCapabilityNotBound, cap, t.role)
	}
	if slices.Contains(t.active, cap) {
		return nil
	}
	if act, ok := drv.(driver.Activator); ok {
		if err := act.Activate(); err != nil {
			return fmt.Errorf("activate %s: %w", cap, err)
		}
	}
	t.active = append(t.active, cap)
	t.logger.Debug("capability activated", "capability", string(cap))
	return nil
}

// Deactivate takes a capability's driver out of use. Deactivating an
// inactive capability is a no-op.
func (t *Target) Deactivate(cap Capability) error {
	idx := slices.Index(t.active, cap)
	if idx < 0 {
		return nil
	}
	t.active = slices.Delete(t.active, idx, idx+1)
	if act, ok := t.caps[cap].(driver.Activator); ok {
		if err := act.Deactivate(); err != nil {
			return fmt.Errorf("deactivate %s: %w", cap, err)
		}
	}
	t.logger.Debug("capability deactivated", "capability", string(cap))
	return nil
}

// Active reports whether a capability is currently active.
func (t *Target) Active(cap Capability) bool {
	return slices.Contains(t.active, cap)
}

// DeactivateAll deactivates every active capability in reverse activation
// order. Errors are collected, never short-circuited: one stuck driver
// must not leave the others dangling.
func (t *Target) DeactivateAll() []error {
	var errs []error
	for i := len(t.active) - 1; i >= 0; i-- {
		cap := t.active[i]
		if err := t.Deactivate(cap); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
