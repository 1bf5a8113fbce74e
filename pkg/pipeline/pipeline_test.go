package pipeline

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yaklabco/buildhook/pkg/buildenv"
	"github.com/yaklabco/buildhook/pkg/sh"
)

type recorder struct {
	events []string
	env    map[string]string
	err    error
}

func (r *recorder) Run(_ context.Context, env map[string]string, cmd string, _ ...string) error {
	r.events = append(r.events, "run:"+cmd)
	r.env = env
	return r.err
}

func newPipeline(rec *recorder) (*Pipeline, *buildenv.Env) {
	env := buildenv.NewWithFS("/proj", afero.NewMemMapFs())
	return New(env, rec, map[string][]string{
		StepBuild:  {"pio", "run"},
		StepUpload: {"pio", "run", "--target", "upload"},
		"empty":    nil,
	}), env
}

func TestRunOrder(t *testing.T) {
	rec := &recorder{}
	p, _ := newPipeline(rec)

	p.AddPreAction(StepUpload, func(context.Context, *buildenv.Env) error {
		rec.events = append(rec.events, "first")
		return nil
	})
	p.AddPreAction(StepUpload, func(context.Context, *buildenv.Env) error {
		rec.events = append(rec.events, "second")
		return nil
	})

	require.NoError(t, p.Run(t.Context(), StepUpload))
	assert.Equal(t, []string{"first", "second", "run:pio"}, rec.events)
}

func TestPreActionsOnlyForTheirStep(t *testing.T) {
	rec := &recorder{}
	p, _ := newPipeline(rec)
	p.AddPreAction(StepUpload, func(context.Context, *buildenv.Env) error {
		rec.events = append(rec.events, "hook")
		return nil
	})

	require.NoError(t, p.Run(t.Context(), StepBuild))
	assert.Equal(t, []string{"run:pio"}, rec.events)
}

func TestFailingPreActionAbortsStep(t *testing.T) {
	rec := &recorder{}
	p, _ := newPipeline(rec)
	boom := exitError(4)
	p.AddPreAction(StepUpload, func(context.Context, *buildenv.Env) error { return boom })
	p.AddPreAction(StepUpload, func(context.Context, *buildenv.Env) error {
		rec.events = append(rec.events, "never")
		return nil
	})

	err := p.Run(t.Context(), StepUpload)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 4, sh.ExitStatus(err))
	assert.Empty(t, rec.events)
}

func TestStepFailurePropagates(t *testing.T) {
	rec := &recorder{err: exitError(2)}
	p, _ := newPipeline(rec)

	err := p.Run(t.Context(), StepUpload)
	require.Error(t, err)
	assert.Equal(t, 2, sh.ExitStatus(err))
}

func TestExportsFlags(t *testing.T) {
	rec := &recorder{}
	p, env := newPipeline(rec)
	p.AddPreAction(StepBuild, func(_ context.Context, e *buildenv.Env) error {
		e.Define("LATE", 1)
		return nil
	})
	env.Define("BUILD_NUMBER", 9)

	require.NoError(t, p.Run(t.Context(), StepBuild))
	assert.Equal(t, "-DBUILD_NUMBER=9 -DLATE=1", rec.env[buildenv.FlagsEnvVar])
}

func TestUnknownStep(t *testing.T) {
	p, _ := newPipeline(&recorder{})

	err := p.Run(t.Context(), "uploadfs")
	require.True(t, errors.Is(err, ErrUnknownStep))

	err = p.Run(t.Context(), "empty")
	require.ErrorIs(t, err, ErrUnknownStep, "steps without a command are dropped")
	assert.Equal(t, []string{StepBuild, StepUpload}, p.Steps())
}

// exitError is a command failure carrying an exit status.
type exitError int

func (e exitError) Error() string   { return "exit status " + strconv.Itoa(int(e)) }
func (e exitError) ExitStatus() int { return int(e) }
