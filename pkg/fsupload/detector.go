// Package fsupload decides whether the device filesystem image is stale and
// re-uploads it before the firmware is flashed.
//
// Staleness is judged from modification times only: any file under the data
// directory that is strictly newer than the upload marker means the image on
// the device no longer matches the sources.
package fsupload

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"

	"github.com/gobwas/glob"
	"github.com/yaklabco/buildhook/internal/log"
	"github.com/yaklabco/buildhook/pkg/buildenv"
	"github.com/yaklabco/buildhook/pkg/target"
	"github.com/yaklabco/buildhook/pkg/ui"
)

// Detector compares the data directory against the upload marker.
type Detector struct {
	env     *buildenv.Env
	dataDir string
	marker  string
	ignore  []glob.Glob
	console io.Writer
}

// NewDetector returns a Detector for dataDir and markerFile, both resolved
// against the project root. Files whose slash-separated path relative to
// dataDir, or whose base name, matches one of the ignore globs are never
// considered changed.
func NewDetector(env *buildenv.Env, dataDir, markerFile string, ignore []string, console io.Writer) (*Detector, error) {
	globs := make([]glob.Glob, 0, len(ignore))
	for _, pattern := range ignore {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("compiling ignore pattern %q: %w", pattern, err)
		}
		globs = append(globs, g)
	}

	return &Detector{
		env:     env,
		dataDir: env.Path(dataDir),
		marker:  env.Path(markerFile),
		ignore:  globs,
		console: console,
	}, nil
}

// DataDir returns the absolute data directory.
func (d *Detector) DataDir() string {
	return d.dataDir
}

// Marker returns the absolute marker path.
func (d *Detector) Marker() string {
	return d.marker
}

// LastUpload returns the marker's modification time, or the epoch when no
// upload has been recorded yet.
func (d *Detector) LastUpload() (time.Time, bool, error) {
	mtime, exists, err := target.ModTimeOrEpoch(d.env.FS, d.marker)
	if err != nil {
		return mtime, false, fmt.Errorf("reading upload marker %s: %w", d.marker, err)
	}
	return mtime, exists, nil
}

// Ignored reports whether rel (relative to the data directory, slash
// separated) matches an ignore pattern.
func (d *Detector) Ignored(rel string) bool {
	base := path.Base(rel)
	for _, g := range d.ignore {
		if g.Match(rel) || g.Match(base) {
			return true
		}
	}
	return false
}

func (d *Detector) skip(rel string, _ bool) bool {
	return d.Ignored(rel)
}

// FirstChanged returns the first file under the data directory that is newer
// than the marker. The walk stops at that file.
func (d *Detector) FirstChanged(ctx context.Context) (string, bool, error) {
	since, _, err := d.LastUpload()
	if err != nil {
		return "", false, err
	}

	changed, found, err := target.FirstNewer(d.env.FS, since, d.dataDir, d.skip)
	if err != nil {
		return "", false, fmt.Errorf("scanning %s: %w", d.dataDir, err)
	}
	slog.DebugContext(ctx, "scanned data directory",
		slog.String(log.Dir, d.dataDir),
		slog.Time(log.Since, since),
		slog.Bool("changed", found),
	)
	return changed, found, nil
}

// NeedsUpload reports whether the filesystem image must be uploaded again.
// A missing data directory needs no upload. On the first changed file it
// prints a line naming it relative to the project root.
func (d *Detector) NeedsUpload(ctx context.Context) (bool, error) {
	changed, found, err := d.FirstChanged(ctx)
	if err != nil || !found {
		return false, err
	}

	if d.console != nil {
		_, _ = fmt.Fprintln(d.console, ui.Status(d.console,
			"  ⟳ changed file detected: "+d.env.Rel(changed)))
	}
	return true, nil
}

// Newest returns the most recently modified non-ignored file in the data
// directory, or an empty path when there is none.
func (d *Detector) Newest() (string, time.Time, error) {
	newest, mtime, err := target.NewestModTime(d.env.FS, d.dataDir, d.skip)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("scanning %s: %w", d.dataDir, err)
	}
	return newest, mtime, nil
}
