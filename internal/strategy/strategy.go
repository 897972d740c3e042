package strategy

import (
	"fmt"
	"log/slog"

	"github.com/saschahauer/barebox-bringup/internal/config"
	"github.com/saschahauer/barebox-bringup/internal/target"
)

// Strategy sequences a target through its bootstrap states.
type Strategy interface {
	// Transition drives the target to the given state, recursing through
	// prerequisite states first. Transitioning to the current state is a
	// no-op; transitioning to Unknown is an error.
	Transition(status Status) error

	// Force claims the target is already in the given state, performing
	// only the minimal activation for that state. It does not verify the
	// claim against the hardware.
	Force(status Status) error

	// Status returns the current state.
	Status() Status
}

// Options tunes strategy behavior from the command line.
type Options struct {
	// NoWrite skips image writing in the SD-mux strategy, assuming the
	// medium already holds a valid image.
	NoWrite bool
}

// New builds the strategy named in the target configuration. The empty
// name means the board has no strategy; callers handle that as
// console-only mode.
func New(kind string, tgt *target.Target, env *config.Environment, images *config.ImageSet, opts Options, logger *slog.Logger) (Strategy, error) {
	switch kind {
	case "bootstrap":
		return NewBootstrap(tgt, env, images, logger)
	case "sdmux":
		return NewSDMux(tgt, env, images, opts, logger)
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", kind)
	}
}
