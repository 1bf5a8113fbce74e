package fsupload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"github.com/yaklabco/buildhook/internal/dryrun"
	"github.com/yaklabco/buildhook/internal/log"
	"github.com/yaklabco/buildhook/pkg/buildenv"
	"github.com/yaklabco/buildhook/pkg/ui"
)

const (
	markerDirPerm  = 0o755
	markerFilePerm = 0o644

	// MarkerTimeLayout is the ctime-style layout written into the marker.
	MarkerTimeLayout = time.ANSIC
)

// ErrNoCommand is returned when no filesystem upload command is configured.
var ErrNoCommand = errors.New("no filesystem upload command configured")

// Runner runs an external command to completion.
type Runner interface {
	Run(ctx context.Context, env map[string]string, cmd string, args ...string) error
}

// Uploader runs the filesystem image upload when the detector says the
// image is stale, and records the upload in the marker.
type Uploader struct {
	detector *Detector
	runner   Runner
	command  []string
	now      func() time.Time
	console  io.Writer
}

// Option configures an Uploader.
type Option func(*Uploader)

// WithClock sets the clock used for the marker content.
func WithClock(now func() time.Time) Option {
	return func(u *Uploader) {
		u.now = now
	}
}

// WithConsole sets where progress messages are written.
func WithConsole(w io.Writer) Option {
	return func(u *Uploader) {
		u.console = w
	}
}

// NewUploader returns an Uploader that runs command (program followed by
// its arguments) to upload the filesystem image.
func NewUploader(detector *Detector, runner Runner, command []string, opts ...Option) *Uploader {
	u := &Uploader{
		detector: detector,
		runner:   runner,
		command:  command,
		now:      time.Now,
		console:  detector.console,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Detector returns the change detector.
func (u *Uploader) Detector() *Detector {
	return u.detector
}

func (u *Uploader) println(text string) {
	if u.console != nil {
		_, _ = fmt.Fprintln(u.console, text)
	}
}

// BeforeUpload is the pre-upload hook. It uploads the filesystem image and
// refreshes the marker when data changed, and otherwise reports the skip.
// A failed upload command is returned unchanged so its exit status survives.
func (u *Uploader) BeforeUpload(ctx context.Context) error {
	needed, err := u.detector.NeedsUpload(ctx)
	if err != nil {
		return err
	}
	if !needed {
		u.println(ui.Muted(u.console, "No changes in /data detected → skip LittleFS upload"))
		return nil
	}

	u.println("")
	u.println(ui.Banner(u.console, "=== Detected changes in /data → uploading LittleFS ==="))
	return u.Upload(ctx)
}

// Hook adapts BeforeUpload to the pipeline pre-action signature.
func (u *Uploader) Hook(ctx context.Context, _ *buildenv.Env) error {
	return u.BeforeUpload(ctx)
}

// Upload runs the upload command unconditionally and refreshes the marker
// once it succeeds.
func (u *Uploader) Upload(ctx context.Context) error {
	if len(u.command) == 0 {
		return ErrNoCommand
	}

	started := u.now()
	env := u.detector.env
	if err := u.runner.Run(ctx, env.Exports(), u.command[0], u.command[1:]...); err != nil {
		return err
	}
	slog.InfoContext(ctx, "filesystem image uploaded",
		slog.Any(log.Cmd, u.command),
		slog.Duration(log.Duration, u.now().Sub(started)),
	)

	if dryrun.IsDryRun() {
		slog.InfoContext(ctx, "dry run, leaving upload marker untouched", slog.String(log.Marker, u.detector.marker))
		return nil
	}
	return u.Touch(ctx)
}

// Touch (re)writes the marker with the current time as content, recording an
// upload without running one.
func (u *Uploader) Touch(ctx context.Context) error {
	fsys := u.detector.env.FS
	marker := u.detector.marker

	if err := fsys.MkdirAll(filepath.Dir(marker), markerDirPerm); err != nil {
		return fmt.Errorf("creating marker directory: %w", err)
	}
	stamp := u.now().Format(MarkerTimeLayout)
	if err := afero.WriteFile(fsys, marker, []byte(stamp), markerFilePerm); err != nil {
		return fmt.Errorf("writing upload marker %s: %w", marker, err)
	}

	slog.DebugContext(ctx, "upload marker refreshed", slog.String(log.Marker, marker))
	return nil
}
