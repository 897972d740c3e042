package cmd

import "errors"

var errNonInteractiveNeedsOutput = errors.New("--non-interactive requires --output")
