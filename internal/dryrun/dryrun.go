// Package dryrun implements the conditional checks for buildhook's dryrun
// mode.
//
// Dry-run is on when SetRequested(true) was called (the --dryrun flag) or
// when the env var `BUILDHOOK_DRYRUN` held a truthy value at the point of the
// first call to IsDryRun(). In dry-run mode external commands are echoed
// instead of executed and the upload marker is left alone. The build counter
// is still bumped.
package dryrun

import (
	"context"
	"os/exec"
	"sync"

	"github.com/yaklabco/buildhook/pkg/env"
)

// RequestedEnv is the environment variable that requests dryrun mode.
const RequestedEnv = "BUILDHOOK_DRYRUN"

//nolint:gochecknoglobals // Once/mutex patterns.
var (
	mu                      sync.Mutex
	dryRunRequestedValue    bool
	dryRunRequestedEnvValue bool
	dryRunRequestedEnvOnce  sync.Once
)

// SetRequested sets the dryrun requested state to the specified boolean value.
func SetRequested(value bool) {
	mu.Lock()
	defer mu.Unlock()
	dryRunRequestedValue = value
}

// IsDryRun checks if dry-run mode was requested, either explicitly or via an
// environment variable.
func IsDryRun() bool {
	dryRunRequestedEnvOnce.Do(func() {
		dryRunRequestedEnvValue = env.FailsafeParseBoolEnv(RequestedEnv, false)
	})

	mu.Lock()
	defer mu.Unlock()
	return dryRunRequestedEnvValue || dryRunRequestedValue
}

// Wrap creates an *exec.Cmd to run a command or simulate it in dry-run mode.
// If not in dry-run mode, it returns exec.CommandContext(ctx, cmd, args...).
// In dry-run mode, it returns a command that prints the simulated command.
func Wrap(ctx context.Context, cmd string, args ...string) *exec.Cmd {
	if !IsDryRun() {
		return exec.CommandContext(ctx, cmd, args...)
	}

	// Return an *exec.Cmd that just prints the command that would have been run.
	return exec.CommandContext(ctx, "echo", append([]string{"DRYRUN: " + cmd}, args...)...) //nolint:gosec // It's echo!
}
