// Package bringup orchestrates one bring-up run: acquire the target,
// bootstrap it through its strategy, hand the console to the operator (or
// the capture loop), and tear everything down in a fixed order no matter
// how the run ended.
package bringup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/saschahauer/barebox-bringup/internal/config"
	"github.com/saschahauer/barebox-bringup/internal/console"
	"github.com/saschahauer/barebox-bringup/internal/driver"
	"github.com/saschahauer/barebox-bringup/internal/logging"
	"github.com/saschahauer/barebox-bringup/internal/place"
	"github.com/saschahauer/barebox-bringup/internal/strategy"
	"github.com/saschahauer/barebox-bringup/internal/target"
)

// ErrInterrupted is returned when the run ended on a user interrupt; the
// process maps it to exit code 130 after teardown has run.
var ErrInterrupted = errors.New("interrupted by user")

// teardownTimeout bounds each coordinator call during cleanup.
const teardownTimeout = 10 * time.Second

// Options is the full configuration of one run, assembled from flags.
type Options struct {
	ConfigPath     string
	Role           string
	NonInteractive bool
	OutputPath     string
	// FIFORequested with an empty InputFIFO means auto-create one.
	FIFORequested bool
	InputFIFO     string
	// InputFile tails a regular file as the input source.
	InputFile      string
	Coordinator    string
	Place          string
	NoPowerCycle   bool
	NoWrite        bool
	Timeout        time.Duration
	BuildDir       string
	ImageOverrides []string // name=path

	// Dial opens the coordinator transport for a given address. Left nil
	// when no coordinator client is wired in; place acquisition is then
	// skipped with a warning.
	Dial func(addr string) (place.Transport, error)

	Stdin  *os.File
	Stdout io.Writer
	Logger *slog.Logger
}

// Runner executes bring-up runs.
type Runner struct {
	opts     Options
	settings *config.Settings
	logger   *slog.Logger
	stdout   io.Writer
}

// NewRunner builds a runner from options and tool settings.
func NewRunner(opts Options, settings *config.Settings) *Runner {
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	return &Runner{
		opts:     opts,
		settings: settings,
		logger:   logging.Ensure(opts.Logger),
		stdout:   stdout,
	}
}

// runState carries everything teardown has to release. Fields stay nil or
// zero until the matching resource exists, so teardown after an early
// failure only touches what was actually set up.
type runState struct {
	fifoPath    string
	fifoCreated bool
	logFile     *os.File
	session     *place.Session
	lease       *place.Manager
	tgt         *target.Target
	strat       strategy.Strategy
}

// Run performs one bring-up run end to end. Teardown executes on every
// exit path, including errors and interrupts.
func (r *Runner) Run(ctx context.Context) (err error) {
	st := &runState{}
	defer r.teardown(st)

	opts := r.opts

	buildDir, err := config.ResolveBuildDir(opts.BuildDir, r.settings)
	if err != nil {
		return fmt.Errorf("resolve build directory: %w", err)
	}
	r.logger.Debug("build directory", "dir", buildDir)

	if opts.FIFORequested {
		fifoPath, created, err := SetupFIFO(opts.InputFIFO)
		if err != nil {
			return err
		}
		st.fifoPath = fifoPath
		st.fifoCreated = created
		if created {
			fmt.Fprintf(r.stdout, "Created FIFO: %s\n", fifoPath)
		}
	}

	// The log file is created before any hardware work so the operator
	// can tail -f it from the start.
	if opts.OutputPath != "" {
		f, err := os.OpenFile(opts.OutputPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return fmt.Errorf("open output file: %w", err)
		}
		st.logFile = f
		fmt.Fprintf(r.stdout, "Output logging to: %s\n", opts.OutputPath)
	}

	fmt.Fprintf(r.stdout, "Loading configuration: %s\n", opts.ConfigPath)
	env, err := config.LoadEnvironment(opts.ConfigPath, buildDir)
	if err != nil {
		return err
	}

	tcfg, err := env.Target(opts.Role)
	if err != nil {
		return err
	}

	images, err := env.SelectImages(tcfg)
	if err != nil {
		return err
	}
	for _, override := range opts.ImageOverrides {
		name, path, ok := strings.Cut(override, "=")
		if !ok {
			return fmt.Errorf("invalid image override %q, want name=path", override)
		}
		if err := images.Override(name, path); err != nil {
			return err
		}
	}

	placeName := opts.Place
	if placeName == "" {
		placeName = env.StringOption("place")
	}
	if placeName != "" {
		if err := r.acquirePlace(ctx, st, env, placeName); err != nil {
			return err
		}
	}

	tgt, err := target.Build(opts.Role, tcfg, r.logger)
	if err != nil {
		return err
	}
	st.tgt = tgt

	record, store := r.startRecord(placeName)
	recordDone := false
	defer func() {
		if !recordDone {
			r.finishRecord(record, store, "error")
		}
	}()

	// Console first, before any power action: the earliest bootrom
	// output appears right after the power cycle and must be captured.
	fmt.Fprintln(r.stdout, "Activating console...")
	if err := tgt.Activate(target.Console); err != nil {
		return err
	}
	con, err := tgt.Console()
	if err != nil {
		return err
	}

	// Interrupts during bootstrap and the console session both funnel
	// through the loop's stop flag; either way teardown still runs.
	loop := &console.Loop{
		Console:     con,
		Log:         st.logFile,
		Timeout:     opts.Timeout,
		Interactive: !opts.NonInteractive,
		Logger:      r.logger,
	}
	if loop.Interactive {
		loop.Screen = r.stdout
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		loop.RequestStop()
	}()

	if err := r.bootstrap(st, tgt, env, images, tcfg.Strategy, con); err != nil {
		return err
	}

	input, err := r.openInput(st)
	if err != nil {
		return err
	}
	loop.Input = input

	r.printBanner(st)
	reason := loop.Run()
	fmt.Fprintf(r.stdout, "\n=== %s ===\n", reason.Message())

	r.finishRecord(record, store, reason.String())
	recordDone = true
	if reason == console.ReasonInterrupted {
		return ErrInterrupted
	}
	return nil
}

// acquirePlace connects the coordinator session and takes (or borrows)
// the lease. A place held by a different identity is fatal.
func (r *Runner) acquirePlace(ctx context.Context, st *runState, env *config.Environment, placeName string) error {
	if r.opts.Dial == nil {
		r.logger.Warn("no coordinator client configured, skipping place acquisition", "place", placeName)
		return nil
	}
	addr := env.CoordinatorAddress(r.opts.Coordinator, r.settings)
	transport, err := r.opts.Dial(addr)
	if err != nil {
		return fmt.Errorf("connect coordinator %s: %w", addr, err)
	}
	st.session = place.NewSession(transport)

	identity, err := place.LocalIdentity()
	if err != nil {
		return err
	}
	st.lease = place.NewManager(st.session, identity, r.logger)
	owned, err := st.lease.Acquire(ctx, placeName)
	if err != nil {
		return err
	}
	if !owned {
		fmt.Fprintf(r.stdout, "Place %s already acquired by us, reusing\n", placeName)
	}
	return nil
}

// bootstrap drives the target to the barebox state, or handles the
// strategy-less cases: an emulated console that doubles as power control,
// or plain console-only manual mode.
func (r *Runner) bootstrap(st *runState, tgt *target.Target, env *config.Environment, images *config.ImageSet, strategyKind string, con driver.Console) error {
	strat, err := strategy.New(strategyKind, tgt, env, images, strategy.Options{NoWrite: r.opts.NoWrite}, r.logger)
	if err != nil {
		return err
	}
	st.strat = strat

	if strat == nil {
		if pc, ok := con.(*driver.ProcessConsole); ok {
			if r.opts.NoPowerCycle {
				fmt.Fprintln(r.stdout, "Skipping emulator start (--no-power-cycle)")
				if !pc.Alive() {
					r.logger.Warn("emulator is not running, consider removing --no-power-cycle")
				}
				return nil
			}
			fmt.Fprintln(r.stdout, "Starting emulator...")
			if err := tgt.Activate(target.Power); err != nil {
				return err
			}
			if err := pc.On(); err != nil {
				return err
			}
			fmt.Fprintln(r.stdout, "Emulator is running!")
			return nil
		}
		fmt.Fprintln(r.stdout, "No strategy configured - console ready for manual control")
		return nil
	}

	if r.opts.NoPowerCycle {
		fmt.Fprintln(r.stdout, "Skipping power cycle (--no-power-cycle)")
		fmt.Fprintln(r.stdout, "Resuming control over running target")
		return strat.Force(strategy.Barebox)
	}

	fmt.Fprintln(r.stdout, "Bootstrapping target...")
	if err := strat.Transition(strategy.Barebox); err != nil {
		return err
	}
	fmt.Fprintln(r.stdout, "Target is ready!")
	return nil
}

// openInput picks the session input source: FIFO when one was set up, a
// watched file when given, the keyboard in interactive mode, nothing in
// unattended capture.
func (r *Runner) openInput(st *runState) (console.InputSource, error) {
	switch {
	case st.fifoPath != "":
		return console.OpenNamedPipe(st.fifoPath)
	case r.opts.InputFile != "":
		return console.OpenWatchedFile(r.opts.InputFile)
	case !r.opts.NonInteractive:
		stdin := r.opts.Stdin
		if stdin == nil {
			stdin = os.Stdin
		}
		return console.OpenKeyboard(stdin)
	default:
		return nil, nil
	}
}

func (r *Runner) printBanner(st *runState) {
	if r.opts.NonInteractive {
		fmt.Fprintln(r.stdout, "=== Non-Interactive Console (output to file only) ===")
		if st.fifoPath != "" {
			fmt.Fprintf(r.stdout, "Reading from FIFO: %s\n", st.fifoPath)
		}
		fmt.Fprintln(r.stdout, "Press Ctrl-C to stop")
	} else {
		fmt.Fprintln(r.stdout, "=== Interactive Console ===")
		switch {
		case st.fifoPath != "":
			fmt.Fprintf(r.stdout, "Reading commands from FIFO: %s\n", st.fifoPath)
			fmt.Fprintln(r.stdout, "Press Ctrl-C to exit")
		case r.opts.InputFile != "":
			fmt.Fprintf(r.stdout, "Reading commands from file: %s\n", r.opts.InputFile)
			fmt.Fprintln(r.stdout, "Press Ctrl-C to exit")
		default:
			fmt.Fprintln(r.stdout, "Press Ctrl-] to exit")
		}
	}
	fmt.Fprintln(r.stdout, strings.Repeat("=", 40))
}

// startRecord begins the persisted run record. Records are best-effort:
// failures only log, never abort a run.
func (r *Runner) startRecord(placeName string) (*Record, *RecordStore) {
	store, err := NewRecordStore(r.settings.StateDir)
	if err != nil {
		r.logger.Warn("run records unavailable", "error", err)
		return nil, nil
	}
	record := NewRecord(r.opts.Role, r.opts.ConfigPath)
	record.Place = placeName
	record.OutputFile = r.opts.OutputPath
	record.Interactive = !r.opts.NonInteractive
	if err := store.Save(record); err != nil {
		r.logger.Warn("saving run record", "error", err)
	}
	return record, store
}

func (r *Runner) finishRecord(record *Record, store *RecordStore, reason string) {
	if record == nil || store == nil {
		return
	}
	record.Finish(reason)
	if err := store.Save(record); err != nil {
		r.logger.Warn("saving run record", "error", err)
	}
}

// teardown releases everything the run set up, in the fixed order:
// console down, power off, remaining capabilities down, lease released,
// coordinator session stopped and closed, log file closed, self-created
// FIFO removed. Each step runs regardless of earlier failures.
func (r *Runner) teardown(st *runState) {
	seq := NewSequencer(r.logger)

	if st.tgt != nil {
		seq.Add("deactivate console", func() error {
			return st.tgt.Deactivate(target.Console)
		})
		seq.Add("power off", func() error {
			if st.strat != nil {
				return st.strat.Transition(strategy.Off)
			}
			power, err := st.tgt.Power()
			if err != nil {
				// No power capability at all; nothing to switch off.
				return nil
			}
			return power.Off()
		})
		seq.Add("deactivate capabilities", func() error {
			return errors.Join(st.tgt.DeactivateAll()...)
		})
	}
	if st.lease != nil {
		seq.Add("release place", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
			defer cancel()
			return st.lease.Release(ctx)
		})
	}
	if st.session != nil {
		seq.Add("stop coordinator session", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
			defer cancel()
			return st.session.Stop(ctx)
		})
		seq.Add("close coordinator session", st.session.Close)
	}
	if st.logFile != nil {
		seq.Add("close log file", st.logFile.Close)
	}
	if st.fifoCreated {
		seq.Add("remove FIFO", func() error {
			err := os.Remove(st.fifoPath)
			if err == nil {
				fmt.Fprintf(r.stdout, "Removed FIFO: %s\n", st.fifoPath)
			}
			return err
		})
	}

	seq.Run()
}
