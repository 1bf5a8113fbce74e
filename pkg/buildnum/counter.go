// Package buildnum maintains the persisted build counter and injects it into
// the build as a compile-time define.
package buildnum

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"github.com/yaklabco/buildhook/internal/log"
	"github.com/yaklabco/buildhook/pkg/buildenv"
	"github.com/yaklabco/buildhook/pkg/ui"
)

// DefaultDefineName is the define the counter is exposed as.
const DefaultDefineName = "BUILD_NUMBER"

const counterFilePerm = 0o644

// ErrInvalidCounter is returned when the counter file holds anything other
// than a non-negative decimal integer (or nothing at all).
var ErrInvalidCounter = errors.New("invalid build counter")

// Counter is a non-negative integer persisted as plain text.
type Counter struct {
	FS   afero.Fs
	Path string
}

// Read returns the stored value. A missing file reports exists=false and a
// value of 0. Empty or whitespace-only content counts as 0.
func (c Counter) Read() (int, bool, error) {
	data, err := afero.ReadFile(c.FS, c.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("reading build counter %s: %w", c.Path, err)
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return 0, true, nil
	}

	value, err := strconv.Atoi(text)
	if err != nil || value < 0 {
		return 0, true, fmt.Errorf("%w in %s: %q", ErrInvalidCounter, c.Path, text)
	}
	return value, true, nil
}

// Next increments the counter, persists it and returns the new value.
func (c Counter) Next() (int, error) {
	value, _, err := c.Read()
	if err != nil {
		return 0, err
	}

	next := value + 1
	if err := afero.WriteFile(c.FS, c.Path, []byte(strconv.Itoa(next)), counterFilePerm); err != nil {
		return 0, fmt.Errorf("writing build counter %s: %w", c.Path, err)
	}
	return next, nil
}

// Manager bumps the counter once per build and exposes it to the compiler.
type Manager struct {
	env        *buildenv.Env
	counter    Counter
	defineName string
	console    io.Writer
}

// NewManager returns a Manager storing its counter at counterPath (relative
// to the project root unless absolute). An empty defineName falls back to
// DefaultDefineName.
func NewManager(env *buildenv.Env, counterPath, defineName string, console io.Writer) *Manager {
	if defineName == "" {
		defineName = DefaultDefineName
	}
	return &Manager{
		env:        env,
		counter:    Counter{FS: env.FS, Path: env.Path(counterPath)},
		defineName: defineName,
		console:    console,
	}
}

// Counter returns the underlying counter.
func (m *Manager) Counter() Counter {
	return m.counter
}

// Apply increments the counter, appends the define and reports the number.
func (m *Manager) Apply(ctx context.Context) (int, error) {
	number, err := m.counter.Next()
	if err != nil {
		return 0, err
	}

	m.env.Define(m.defineName, number)
	slog.DebugContext(ctx, "build counter updated",
		slog.String(log.Path, m.counter.Path),
		slog.Int(log.Number, number),
	)

	if m.console != nil {
		_, _ = fmt.Fprintln(m.console, ui.Status(m.console, fmt.Sprintf("==> Build number set to %d", number)))
	}
	return number, nil
}
