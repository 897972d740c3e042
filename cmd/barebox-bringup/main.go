package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/saschahauer/barebox-bringup/internal/bringup"
	"github.com/saschahauer/barebox-bringup/internal/cmd"
)

func main() {
	os.Exit(run())
}

func run() int {
	err := cmd.Execute()
	switch {
	case err == nil:
		return 0
	case errors.Is(err, bringup.ErrInterrupted):
		fmt.Fprintln(os.Stderr, "\nInterrupted by user")
		return 130
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
}
