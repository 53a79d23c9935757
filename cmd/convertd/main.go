package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"convertd/internal/config"
)

// Exit codes are part of the operational contract; wrapper scripts key
// off them to distinguish misconfiguration from a missing config file.
const (
	exitOK            = 0
	exitGeneralError  = 1
	exitConfigInvalid = 2
	exitConfigMissing = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		return exitCode(err)
	}
	return exitOK
}

func exitCode(err error) int {
	var validationErr *config.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return exitConfigInvalid
	case errors.Is(err, fs.ErrNotExist):
		return exitConfigMissing
	default:
		return exitGeneralError
	}
}
