package target

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/saschahauer/barebox-bringup/internal/config"
	"github.com/saschahauer/barebox-bringup/internal/driver"
)

// Build resolves the configured capabilities of a role into concrete
// driver handles and returns the assembled target. Resolution happens here
// once; nothing re-reads the configuration later.
//
// The console of an emulated target (driver "qemu" or "process") doubles
// as its power control unless an explicit power capability is configured,
// matching how an emulator process is its own power switch.
func Build(role string, cfg *config.TargetConfig, logger *slog.Logger) (*Target, error) {
	t := New(role, logger)

	var processConsole *driver.ProcessConsole

	for name, capCfg := range cfg.Capabilities {
		cap := Capability(name)
		if cap == Shell {
			// Needs the console handle; bound after the loop.
			continue
		}
		drv, err := buildDriver(cap, capCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("target %s: %w", role, err)
		}
		t.Bind(cap, drv)
		if pc, ok := drv.(*driver.ProcessConsole); ok && cap == Console {
			processConsole = pc
		}
	}

	if processConsole != nil && !t.Has(Power) {
		t.Bind(Power, processConsole)
	}

	// The shell capability interrupts autoboot over the console; there is
	// no standalone shell hardware.
	if shellCfg, ok := cfg.Capabilities[string(Shell)]; ok {
		if shellCfg.Driver != "console" && shellCfg.Driver != "" {
			return nil, fmt.Errorf("target %s: unknown shell driver %q", role, shellCfg.Driver)
		}
		console, err := t.Console()
		if err != nil {
			return nil, fmt.Errorf("target %s: shell capability needs a console: %w", role, err)
		}
		t.Bind(Shell, &driver.ConsoleShell{Console: console})
	}

	return t, nil
}

func buildDriver(cap Capability, cfg config.CapabilityConfig, logger *slog.Logger) (any, error) {
	switch cap {
	case Console:
		switch cfg.Driver {
		case "qemu", "process":
			if cfg.Command == "" {
				return nil, fmt.Errorf("console driver %q requires a command", cfg.Driver)
			}
			return driver.NewProcessConsole(cfg.Command, cfg.Args, logger), nil
		case "serial", "pipe":
			if cfg.Port == "" {
				return nil, fmt.Errorf("console driver %q requires a port", cfg.Driver)
			}
			f, err := os.OpenFile(cfg.Port, os.O_RDWR, 0)
			if err != nil {
				return nil, fmt.Errorf("open console port %s: %w", cfg.Port, err)
			}
			return driver.NewPipeConsole(f, f), nil
		default:
			return nil, fmt.Errorf("unknown console driver %q", cfg.Driver)
		}
	case Power:
		switch cfg.Driver {
		case "command":
			on := stringList(cfg.Settings, "on")
			off := stringList(cfg.Settings, "off")
			if len(on) == 0 || len(off) == 0 {
				return nil, fmt.Errorf("power driver %q requires on and off commands", cfg.Driver)
			}
			return &driver.CommandPower{OnCmd: on, OffCmd: off, Logger: logger}, nil
		default:
			return nil, fmt.Errorf("unknown power driver %q", cfg.Driver)
		}
	case Loader:
		switch cfg.Driver {
		case "command":
			if cfg.Command == "" {
				return nil, fmt.Errorf("loader driver %q requires a command", cfg.Driver)
			}
			argv := append([]string{cfg.Command}, cfg.Args...)
			return &driver.CommandLoader{Cmd: argv, Logger: logger}, nil
		default:
			return nil, fmt.Errorf("unknown loader driver %q", cfg.Driver)
		}
	case Storage:
		switch cfg.Driver {
		case "dd":
			if cfg.Port == "" {
				return nil, fmt.Errorf("storage driver %q requires a port (block device)", cfg.Driver)
			}
			return &driver.DDStorage{Device: cfg.Port, Logger: logger}, nil
		default:
			return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
		}
	case SDMux:
		switch cfg.Driver {
		case "command", "usbsdmux":
			command := cfg.Command
			if command == "" && cfg.Driver == "usbsdmux" {
				command = "usbsdmux"
			}
			if command == "" {
				return nil, fmt.Errorf("sdmux driver %q requires a command", cfg.Driver)
			}
			argv := append([]string{command}, cfg.Args...)
			if len(argv) == 1 {
				argv = append(argv, cfg.Port, "{mode}")
			}
			return &driver.CommandSDMux{Cmd: argv, Logger: logger}, nil
		default:
			return nil, fmt.Errorf("unknown sdmux driver %q", cfg.Driver)
		}
	default:
		return nil, fmt.Errorf("unknown capability %q", cap)
	}
}

func stringList(settings map[string]any, key string) []string {
	raw, ok := settings[key]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil
			}
			out = append(out, s)
		}
		return out
	case []string:
		return v
	case string:
		return []string{v}
	default:
		return nil
	}
}
