package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	exitCode := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(exitCode)
}

// run is the main entry point for the CLI, separated for testing
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	a := newApp(stdin, stdout, stderr)
	defer a.close()

	root := a.rootCommand()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		var cliErr *cliError
		if errors.As(err, &cliErr) {
			cliErr.print(stderr)
			return cliErr.code
		}
		// Flag and argument errors reported by cobra.
		fmt.Fprintf(stderr, FmtError, err.Error())
		return ExitCodeUsageError
	}
	return ExitCodeSuccess
}

// cliError carries the exit code for a failed command.
type cliError struct {
	code int
	msg  string
	err  error
}

func newCLIError(code int, msg string, err error) *cliError {
	return &cliError{code: code, msg: msg, err: err}
}

func (e *cliError) Error() string {
	if e.err == nil {
		return e.msg
	}
	return e.msg + ": " + e.err.Error()
}

func (e *cliError) Unwrap() error {
	return e.err
}

func (e *cliError) print(w io.Writer) {
	if e.err == nil {
		fmt.Fprintf(w, FmtError, e.msg)
		return
	}
	fmt.Fprintf(w, FmtErrorWithCause, e.msg, e.err)
}
