package sh

import (
	"context"
	"io"
	"os"

	"github.com/yaklabco/buildhook/internal/ish"
)

// Runner runs external commands synchronously. The zero value runs in the
// current directory with the process's standard streams.
type Runner struct {
	Dir     string    // working directory; empty means the current one
	Stdin   io.Reader // defaults to os.Stdin
	Stdout  io.Writer // defaults to os.Stdout
	Stderr  io.Writer // defaults to os.Stderr
	Verbose bool      // trace each command before running it
}

func (r *Runner) options() ish.Options {
	opts := ish.Options{
		Dir:     r.Dir,
		Stdin:   r.Stdin,
		Stdout:  r.Stdout,
		Stderr:  r.Stderr,
		Verbose: r.Verbose,
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	return opts
}

// Run runs cmd with args and waits for it to finish. env is added on top of
// the process environment. If the command exits non-zero, the returned error
// reports the same code through ExitStatus, so callers can exit with it.
// cmd and args may reference environment variables in $FOO format; these are
// expanded before the command is run.
func (r *Runner) Run(ctx context.Context, env map[string]string, cmd string, args ...string) error {
	return ish.Exec(ctx, r.options(), env, cmd, args...)
}

// ExitStatus returns the exit status carried by err: 0 if err is nil, the
// command's exit code for failed commands, 128+signal for commands killed by
// a signal, and 1 for any other error.
func ExitStatus(err error) int {
	return ish.ExitStatus(err)
}
