// Package buildenv holds the per-invocation build environment: the project
// root, the filesystem it lives on, and the compiler-visible flags collected
// while hooks run.
package buildenv

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// FlagsEnvVar is the variable PlatformIO reads extra build flags from.
const FlagsEnvVar = "PLATFORMIO_BUILD_FLAGS"

// Env is the explicit build environment handed to every component.
type Env struct {
	// ProjectDir is the absolute project root.
	ProjectDir string

	// FS is the filesystem project files are read from and written to.
	FS afero.Fs

	flags []string
}

// New returns an Env rooted at projectDir on the OS filesystem.
func New(projectDir string) *Env {
	return NewWithFS(projectDir, afero.NewOsFs())
}

// NewWithFS returns an Env rooted at projectDir on the given filesystem.
func NewWithFS(projectDir string, fs afero.Fs) *Env {
	return &Env{
		ProjectDir: projectDir,
		FS:         fs,
	}
}

// AppendFlags appends flags to the build flag list. Flags are never removed
// or reordered.
func (e *Env) AppendFlags(flags ...string) {
	e.flags = append(e.flags, flags...)
}

// Define appends a -D<name>=<value> define.
func (e *Env) Define(name string, value any) {
	e.AppendFlags(fmt.Sprintf("-D%s=%v", name, value))
}

// Flags returns a copy of the collected build flags.
func (e *Env) Flags() []string {
	out := make([]string, len(e.flags))
	copy(out, e.flags)
	return out
}

// FlagsString joins the build flags the way build_flags expects them.
func (e *Env) FlagsString() string {
	return strings.Join(e.flags, " ")
}

// Path resolves a project-relative path. Absolute paths are returned as-is.
func (e *Env) Path(rel ...string) string {
	joined := filepath.Join(rel...)
	if filepath.IsAbs(joined) {
		return joined
	}
	return filepath.Join(append([]string{e.ProjectDir}, rel...)...)
}

// Rel renders path relative to the project root, or path unchanged if that
// is not possible.
func (e *Env) Rel(path string) string {
	rel, err := filepath.Rel(e.ProjectDir, path)
	if err != nil {
		return path
	}
	return rel
}

// Exports returns the environment assignments passed to sub-commands.
func (e *Env) Exports() map[string]string {
	exports := make(map[string]string)
	if len(e.flags) > 0 {
		exports[FlagsEnvVar] = e.FlagsString()
	}
	return exports
}
