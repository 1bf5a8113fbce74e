package sh

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietRunner() (*Runner, *bytes.Buffer, *bytes.Buffer) {
	out, errBuf := &bytes.Buffer{}, &bytes.Buffer{}
	return &Runner{Stdout: out, Stderr: errBuf}, out, errBuf
}

func TestRunArgs(t *testing.T) {
	r, out, _ := quietRunner()
	require.NoError(t, r.Run(t.Context(), nil, os.Args[0], "-printArgs", "foo", "bar"))
	assert.Equal(t, "[foo bar]\n", out.String())
}

func TestExitCode(t *testing.T) {
	r, _, _ := quietRunner()
	err := r.Run(t.Context(), nil, os.Args[0], "-helper", "-exit", "99")
	require.Error(t, err)
	assert.Equal(t, 99, ExitStatus(err))
	assert.Contains(t, err.Error(), "failed with exit code 99")
}

func TestKilledBySignal(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("no signal exit statuses on windows")
	}
	r, _, _ := quietRunner()
	err := r.Run(t.Context(), nil, os.Args[0], "-killSelf")
	require.Error(t, err)
	assert.Equal(t, 128+9, ExitStatus(err), "SIGKILL maps to 137")
	assert.Contains(t, err.Error(), "failed with exit code 137")
	assert.NotContains(t, err.Error(), "failed to run")
}

func TestRunPipesStreams(t *testing.T) {
	r, out, errBuf := quietRunner()
	err := r.Run(t.Context(), nil, os.Args[0], "-helper", "-stdout", "hello", "-stderr", "oops")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out.String())
	assert.Equal(t, "oops\n", errBuf.String())
}

func TestEnv(t *testing.T) {
	const key = "BUILDHOOK_TEST_RUNNER_VAR"
	t.Setenv(key, "outer")

	r, out, _ := quietRunner()
	err := r.Run(t.Context(), map[string]string{key: "inner"}, os.Args[0], "-printVar", key)
	require.NoError(t, err)
	assert.Equal(t, "inner\n", out.String())
}

func TestNotRun(t *testing.T) {
	r, _, _ := quietRunner()
	err := r.Run(t.Context(), nil, "thiswontwork")
	require.Error(t, err)
	assert.Equal(t, 1, ExitStatus(err))
	assert.Contains(t, err.Error(), "failed to run")
}

func TestAutoExpand(t *testing.T) {
	t.Setenv("BUILDHOOK_FOOBAR", "baz")

	r, out, _ := quietRunner()
	require.NoError(t, r.Run(t.Context(), nil, os.Args[0], "-printArgs", "$BUILDHOOK_FOOBAR"))
	assert.Equal(t, "[baz]\n", out.String())

	out.Reset()
	require.NoError(t, r.Run(t.Context(), map[string]string{"BUILDHOOK_FOOBAR": "qux"}, os.Args[0], "-printArgs", "$BUILDHOOK_FOOBAR"))
	assert.Equal(t, "[qux]\n", out.String())
}

func TestDir(t *testing.T) {
	dir := t.TempDir()
	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)

	r, out, _ := quietRunner()
	r.Dir = dir
	require.NoError(t, r.Run(t.Context(), nil, os.Args[0], "-printDir"))

	got, err := filepath.EvalSymlinks(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, resolved, got)
}

func TestRunRespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	r, _, _ := quietRunner()
	err := r.Run(ctx, nil, os.Args[0], "-helper")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

type codeError int

func (c codeError) Error() string   { return "custom" }
func (c codeError) ExitStatus() int { return int(c) }

func TestExitStatus(t *testing.T) {
	assert.Equal(t, 0, ExitStatus(nil))
	assert.Equal(t, 1, ExitStatus(errors.New("plain")))
	assert.Equal(t, 7, ExitStatus(codeError(7)))
}
