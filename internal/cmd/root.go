// Package cmd wires the barebox-bringup command line.
package cmd

import (
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/saschahauer/barebox-bringup/internal/bringup"
	"github.com/saschahauer/barebox-bringup/internal/config"
	"github.com/saschahauer/barebox-bringup/internal/logging"
)

var (
	cfgFile        string
	nonInteractive bool
	outputPath     string
	inputFIFO      string
	inputFile      string
	role           string
	coordinator    string
	placeName      string
	noPowerCycle   bool
	noWrite        bool
	timeoutSec     int
	buildDir       string
	imageOverrides []string
	verbosity      int
)

var rootCmd = &cobra.Command{
	Use:   "barebox-bringup",
	Short: "Bring up barebox on target hardware and attach to its console",
	Long: `Bring up barebox on target hardware (or an emulator) and provide raw
console access.

The target is described by an environment file naming its capabilities
(power, console, bootstrap loader, storage, SD mux) and images. A
strategy sequences the bring-up; the console is then multiplexed between
your keyboard (or a FIFO/file) and a log file.

Examples:
  # Interactive mode (default)
  barebox-bringup -c boards/imx6s-riotboard.yaml

  # Interactive with output logging, tail -f in another terminal
  barebox-bringup -c boards/imx6s-riotboard.yaml -o session.log

  # Auto-created FIFO for programmatic control
  barebox-bringup -c boards/imx6s-riotboard.yaml -i -o boot.log &
  echo "version" > /tmp/barebox-input-<id>.fifo

  # FIFO at a path you control (the value must be attached: --input=path)
  barebox-bringup -c boards/imx6s-riotboard.yaml --input=/tmp/cmds.fifo -o boot.log &
  echo "version" > /tmp/cmds.fifo

  # Non-interactive capture, end when output settles
  barebox-bringup -c boards/imx6s-riotboard.yaml -n -o boot.log --timeout 30`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runBringup,
}

// Execute runs the command line.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Flags().StringVarP(&cfgFile, "config", "c", "", "environment configuration file (YAML)")
	_ = rootCmd.MarkFlagRequired("config")

	rootCmd.Flags().BoolVarP(&nonInteractive, "non-interactive", "n", false, "no keyboard input, output to file only")
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file for console log")
	rootCmd.Flags().StringVarP(&inputFIFO, "input", "i", "", "input FIFO; bare -i auto-creates one, a path must be attached (--input=path)")
	rootCmd.Flags().Lookup("input").NoOptDefVal = " "
	rootCmd.Flags().StringVar(&inputFile, "input-file", "", "tail a regular file as console input")
	rootCmd.Flags().StringVarP(&role, "role", "r", "", "target role in the config file (default from settings, usually main)")
	rootCmd.Flags().StringVar(&coordinator, "coordinator", "", "coordinator address (overrides config and environment)")
	rootCmd.Flags().StringVar(&placeName, "place", "", "coordinator place to acquire (overrides config)")
	rootCmd.Flags().BoolVar(&noPowerCycle, "no-power-cycle", false, "skip bootstrap, assume the target is already running")
	rootCmd.Flags().BoolVar(&noWrite, "no-write", false, "skip SD image writing, boot from the existing card contents")
	rootCmd.Flags().IntVar(&timeoutSec, "timeout", -1, "session timeout in seconds (0 = no timeout)")
	rootCmd.Flags().StringVar(&buildDir, "build-dir", "", "build output directory for relative image paths")
	rootCmd.Flags().StringArrayVar(&imageOverrides, "image", nil, "override an image path, name=path (repeatable)")

	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase verbosity (-v, -vv)")
}

// resolveInputFIFO maps the --input flag onto the run options. Bare -i
// parses as the NoOptDefVal sentinel and means auto-create; an attached
// value names the FIFO. A space-separated value cannot bind to the flag
// at all (cobra leaves it as a positional argument, which the root
// command rejects), so the sentinel is the only non-path value here.
func resolveInputFIFO(changed bool, value string) (requested bool, path string) {
	if value == " " {
		value = ""
	}
	return changed, value
}

func runBringup(cmd *cobra.Command, args []string) error {
	logger := logging.New(os.Stderr, logging.Level(verbosity))
	slog.SetDefault(logger)

	settings, err := config.LoadSettings()
	if err != nil {
		return err
	}

	if nonInteractive && outputPath == "" {
		return errNonInteractiveNeedsOutput
	}

	if role == "" {
		role = settings.DefaultRole
	}
	if timeoutSec < 0 {
		timeoutSec = settings.TimeoutSec
	}

	fifoRequested, fifoValue := resolveInputFIFO(cmd.Flags().Changed("input"), inputFIFO)

	opts := bringup.Options{
		ConfigPath:     cfgFile,
		Role:           role,
		NonInteractive: nonInteractive,
		OutputPath:     outputPath,
		FIFORequested:  fifoRequested,
		InputFIFO:      fifoValue,
		InputFile:      inputFile,
		Coordinator:    coordinator,
		Place:          placeName,
		NoPowerCycle:   noPowerCycle,
		NoWrite:        noWrite,
		Timeout:        time.Duration(timeoutSec) * time.Second,
		BuildDir:       buildDir,
		ImageOverrides: imageOverrides,
		Logger:         logger,
	}

	runner := bringup.NewRunner(opts, settings)
	return runner.Run(cmd.Context())
}
