// Package pipeline runs named build steps, each preceded by the pre-actions
// registered for it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/samber/lo"
	"github.com/yaklabco/buildhook/internal/log"
	"github.com/yaklabco/buildhook/pkg/buildenv"
)

// Well-known step names.
const (
	StepBuild  = "build"
	StepUpload = "upload"
)

// ErrUnknownStep is returned for a step with no configured command.
var ErrUnknownStep = errors.New("unknown pipeline step")

// Action is a blocking hook run before a step. A non-nil error aborts the
// step.
type Action func(ctx context.Context, env *buildenv.Env) error

// Runner runs an external command to completion.
type Runner interface {
	Run(ctx context.Context, env map[string]string, cmd string, args ...string) error
}

// Pipeline maps step names to commands and holds the pre-action registry.
type Pipeline struct {
	env    *buildenv.Env
	runner Runner
	steps  map[string][]string
	pre    map[string][]Action
}

// New returns a Pipeline. steps maps each step name to its command line.
func New(env *buildenv.Env, runner Runner, steps map[string][]string) *Pipeline {
	return &Pipeline{
		env:    env,
		runner: runner,
		steps:  lo.PickBy(steps, func(_ string, cmd []string) bool { return len(cmd) > 0 }),
		pre:    make(map[string][]Action),
	}
}

// AddPreAction registers action to run before step. Actions run in
// registration order.
func (p *Pipeline) AddPreAction(step string, action Action) {
	p.pre[step] = append(p.pre[step], action)
}

// Steps returns the configured step names, sorted.
func (p *Pipeline) Steps() []string {
	names := lo.Keys(p.steps)
	sort.Strings(names)
	return names
}

// Run runs the pre-actions of step and then its command with the build
// environment exported. The first failing pre-action stops the run before
// the command starts.
func (p *Pipeline) Run(ctx context.Context, step string) error {
	command, ok := p.steps[step]
	if !ok {
		return fmt.Errorf("%w %q (known: %v)", ErrUnknownStep, step, p.Steps())
	}

	for i, action := range p.pre[step] {
		if err := action(ctx, p.env); err != nil {
			slog.DebugContext(ctx, "pre-action failed",
				slog.String(log.Step, step),
				slog.Int("index", i),
				slog.Any(log.Error, err),
			)
			return err
		}
	}

	start := time.Now()
	err := p.runner.Run(ctx, p.env.Exports(), command[0], command[1:]...)
	slog.DebugContext(ctx, "step finished",
		slog.String(log.Step, step),
		slog.Duration(log.Duration, time.Since(start)),
		slog.Bool("ok", err == nil),
	)
	return err
}
