package driver

import (
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"github.com/saschahauer/barebox-bringup/internal/logging"
)

// The command drivers shell out to external lab tools: a power switch CLI,
// imx-usb-loader, usbsdmux, dd. Argument lists may contain the
// placeholders {image} and {mode}, replaced at invocation time.

func runTool(logger *slog.Logger, argv []string, replacements map[string]string) error {
	if len(argv) == 0 {
		return fmt.Errorf("empty command")
	}
	expanded := make([]string, len(argv))
	for i, arg := range argv {
		for key, val := range replacements {
			arg = strings.ReplaceAll(arg, key, val)
		}
		expanded[i] = arg
	}
	logger.Debug("running tool", "command", strings.Join(expanded, " "))
	cmd := exec.Command(expanded[0], expanded[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w (output: %s)", expanded[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}

// CommandPower drives a power switch through external on/off commands.
type CommandPower struct {
	OnCmd  []string
	OffCmd []string
	Logger *slog.Logger
}

func (p *CommandPower) On() error {
	return runTool(logging.Ensure(p.Logger), p.OnCmd, nil)
}

func (p *CommandPower) Off() error {
	return runTool(logging.Ensure(p.Logger), p.OffCmd, nil)
}

// Cycle powers off then on again. There is no separate cycle command:
// external switches rarely have one, and off-then-on is what bootrom entry
// needs anyway.
func (p *CommandPower) Cycle() error {
	if err := p.Off(); err != nil {
		return err
	}
	return p.On()
}

// CommandLoader bootstraps a target through an external loader tool such
// as imx-usb-loader. The argument list must contain the {image}
// placeholder.
type CommandLoader struct {
	Cmd    []string
	Logger *slog.Logger
}

func (l *CommandLoader) Load(imagePath string) error {
	return runTool(logging.Ensure(l.Logger), l.Cmd, map[string]string{"{image}": imagePath})
}

// CommandSDMux switches an SD-card multiplexer through an external tool
// such as usbsdmux. The argument list must contain the {mode} placeholder.
type CommandSDMux struct {
	Cmd    []string
	Logger *slog.Logger
}

func (m *CommandSDMux) SetMode(mode MuxMode) error {
	return runTool(logging.Ensure(m.Logger), m.Cmd, map[string]string{"{mode}": string(mode)})
}

// DDStorage writes images to a block device with dd. The device is only
// reachable while the mux is in host mode; sequencing that is the
// strategy's job.
type DDStorage struct {
	Device string
	Logger *slog.Logger
}

func (s *DDStorage) WriteImage(imagePath string, opts WriteOptions) error {
	argv := []string{
		"dd",
		"if=" + imagePath,
		"of=" + s.Device,
		"bs=512",
		"conv=fsync",
	}
	if opts.Seek > 0 {
		argv = append(argv, "seek="+strconv.FormatInt(opts.Seek, 10))
	}
	if opts.Skip > 0 {
		argv = append(argv, "skip="+strconv.FormatInt(opts.Skip, 10))
	}
	return runTool(logging.Ensure(s.Logger), argv, nil)
}
