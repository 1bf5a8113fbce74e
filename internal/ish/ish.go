// Package ish runs external commands on behalf of the sh package.
package ish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/yaklabco/buildhook/internal/dryrun"
	"github.com/yaklabco/buildhook/internal/log"
	"github.com/yaklabco/buildhook/pkg/env"
)

// signalExitBase is added to the signal number of a killed child, as shells do.
const signalExitBase = 128

// ExitStatuser is an interface for errors that carry an exit status code.
type ExitStatuser interface {
	ExitStatus() int
}

type fatalError struct {
	code int
	error
}

func (f fatalError) ExitStatus() int {
	return f.code
}

func (f fatalError) Unwrap() error {
	return f.error
}

// fatalf returns an error carrying the given exit code.
func fatalf(code int, format string, args ...any) error {
	return fatalError{
		code:  code,
		error: fmt.Errorf(format, args...),
	}
}

// Options controls where a command runs and where its streams go.
type Options struct {
	Dir     string
	Stdin   io.Reader
	Stdout  io.Writer
	Stderr  io.Writer
	Verbose bool
}

// Exec executes the command, piping its stdout and stderr to the writers in
// opts. $VAR references in cmd and args are expanded against env first, then
// the process environment.
func Exec(ctx context.Context, opts Options, env map[string]string, cmd string, args ...string) error {
	expand := func(varName string) string {
		if s2, ok := env[varName]; ok {
			return s2
		}
		return os.Getenv(varName)
	}

	cmd = os.Expand(cmd, expand)
	expanded := make([]string, len(args))
	for i := range args {
		expanded[i] = os.Expand(args[i], expand)
	}

	ran, code, err := run(ctx, opts, env, cmd, expanded...)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf(`running "%s %s": %w`, cmd, strings.Join(expanded, " "), ctxErr)
	}
	if ran {
		return fatalf(code, `running "%s %s" failed with exit code %d`, cmd, strings.Join(expanded, " "), code)
	}
	return fmt.Errorf(`failed to run "%s %s": %w`, cmd, strings.Join(expanded, " "), err)
}

func run(ctx context.Context, opts Options, extraEnv map[string]string, cmd string, args ...string) (bool, int, error) {
	theCmd := dryrun.Wrap(ctx, cmd, args...)
	theCmd.Env = env.Overlay(extraEnv)
	theCmd.Dir = opts.Dir
	theCmd.Stderr = opts.Stderr
	theCmd.Stdout = opts.Stdout
	theCmd.Stdin = opts.Stdin

	quoted := make([]string, 0, len(args))
	for i := range args {
		quoted = append(quoted, fmt.Sprintf("%q", args[i]))
	}
	if opts.Verbose {
		log.SimpleConsoleLogger.Println("exec:", cmd, strings.Join(quoted, " "))
	}
	slog.DebugContext(ctx, "executing command",
		slog.String(log.Cmd, cmd),
		slog.Any(log.Args, args),
		slog.String(log.Dir, opts.Dir),
	)
	err := theCmd.Run()

	return cmdRan(err), ExitStatus(err), err
}

// cmdRan reports whether err came from a process that started, including
// one that was killed by a signal.
func cmdRan(err error) bool {
	if err == nil {
		return true
	}
	var ee *exec.ExitError
	return errors.As(err, &ee)
}

// ExitStatus returns the exit status carried by err: 0 for nil, the value of
// an ExitStatuser, the exit code of an exited child, 128+signal for a child
// killed by a signal, and 1 otherwise.
func ExitStatus(err error) int {
	if err == nil {
		return 0
	}
	var exit ExitStatuser
	if errors.As(err, &exit) {
		return exit.ExitStatus()
	}
	var e *exec.ExitError
	if errors.As(err, &e) {
		if code := e.ExitCode(); code >= 0 {
			return code
		}
		if ws, ok := e.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return signalExitBase + int(ws.Signal())
		}
	}
	return 1
}
