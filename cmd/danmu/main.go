package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// Exit statuses reported to the shell.
const (
	exitOK          = 0
	exitFailure     = 1
	exitUnreachable = 3
	exitInterrupted = 130
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	cmd := newRootCommand()
	cmd.SetArgs(args)
	err := cmd.Execute()
	if err == nil {
		return exitOK
	}
	code := exitCode(err)
	if code != exitInterrupted {
		fmt.Fprintf(stderr, "danmu: %v\n", err)
	}
	return code
}

// exitCode lets scripts tell a stopped daemon apart from a failed command.
func exitCode(err error) int {
	var unreachable *daemonUnreachableError
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, context.Canceled):
		return exitInterrupted
	case errors.As(err, &unreachable):
		return exitUnreachable
	default:
		return exitFailure
	}
}
