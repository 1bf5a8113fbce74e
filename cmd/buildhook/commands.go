package buildhook

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/yaklabco/buildhook/config"
	"github.com/yaklabco/buildhook/internal/dryrun"
	"github.com/yaklabco/buildhook/internal/log"
	"github.com/yaklabco/buildhook/pkg/pipeline"
	"github.com/yaklabco/buildhook/pkg/target"
	"github.com/yaklabco/buildhook/pkg/ui"
	"github.com/yaklabco/buildhook/pkg/watch"
)

// exitUpToDate is the status of `check` when no upload is needed.
const exitUpToDate = 3

func newNumberCmd(sess *session) *cobra.Command {
	var flagsOnly bool
	cmd := &cobra.Command{
		Use:   "number",
		Short: "Increment the build number and print the build define",
		Long: `Increment the persisted build counter and emit it as a compile-time define.

With --flags only the build flags are written to stdout, so the command can
feed PlatformIO directly:

	build_flags = !buildhook number --flags`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			console := sess.stdout
			if flagsOnly {
				console = sess.stderr
			}
			if _, err := sess.manager(console).Apply(cmd.Context()); err != nil {
				return err
			}
			if flagsOnly {
				_, err := fmt.Fprintln(sess.stdout, sess.env.FlagsString())
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&flagsOnly, "flags", false, "print only the build flags on stdout")
	return cmd
}

func newCheckCmd(sess *session) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Report whether the filesystem image needs uploading",
		Long: `Report whether any file in the data directory is newer than the last
filesystem image upload. Exits 0 when an upload is needed and 3 when the
image is up to date.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			detector, err := sess.detector()
			if err != nil {
				return err
			}
			needed, err := detector.NeedsUpload(cmd.Context())
			if err != nil {
				return err
			}
			if needed {
				_, _ = fmt.Fprintln(sess.stdout, "filesystem upload needed")
				return nil
			}
			_, _ = fmt.Fprintln(sess.stdout, ui.Muted(sess.stdout, "filesystem image up to date"))
			return quietExit(exitUpToDate)
		},
	}
}

func newPreUploadCmd(sess *session) *cobra.Command {
	return &cobra.Command{
		Use:   "pre-upload",
		Short: "Upload the filesystem image if data changed since the last upload",
		Long: `Run the pre-upload hook on its own: upload the filesystem image and refresh
the marker when the data directory changed, otherwise report the skip.
Intended to be called by an external build orchestrator right before it
flashes the firmware.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			uploader, err := sess.uploader()
			if err != nil {
				return err
			}
			return uploader.BeforeUpload(cmd.Context())
		},
	}
}

func newUploadFSCmd(sess *session) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "uploadfs",
		Short: "Upload the filesystem image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			uploader, err := sess.uploader()
			if err != nil {
				return err
			}
			if force {
				return uploader.Upload(cmd.Context())
			}
			return uploader.BeforeUpload(cmd.Context())
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "upload even if nothing changed")
	return cmd
}

func newMarkCmd(sess *session) *cobra.Command {
	return &cobra.Command{
		Use:   "mark",
		Short: "Record the filesystem image as uploaded without uploading it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			uploader, err := sess.uploader()
			if err != nil {
				return err
			}
			marker := sess.env.Rel(uploader.Detector().Marker())
			if dryrun.IsDryRun() {
				_, _ = fmt.Fprintln(sess.stdout, "DRYRUN: touch "+marker)
				return nil
			}
			if err := uploader.Touch(cmd.Context()); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(sess.stdout, ui.Status(sess.stdout, "==> Upload marker refreshed: "+marker))
			return nil
		},
	}
}

func newRunCmd(sess *session) *cobra.Command {
	return &cobra.Command{
		Use:   "run <step>",
		Short: "Run a build step with the build number and pre-upload hook applied",
		Long: `Run a configured build step. The build number is incremented first and
exported through PLATFORMIO_BUILD_FLAGS. Before the "upload" step the
filesystem image is uploaded if the data directory changed.`,
		Args: cobra.ExactArgs(1),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
			if len(args) > 0 {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}
			projectDir, err := cmd.Root().PersistentFlags().GetString("project-dir")
			if err != nil {
				return nil, cobra.ShellCompDirectiveError
			}
			cfg, err := config.Load(&config.LoadOptions{ProjectDir: projectDir, Stderr: cmd.ErrOrStderr()})
			if err != nil {
				return nil, cobra.ShellCompDirectiveError
			}
			return cfg.StepNames(), cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			step := args[0]
			p, err := sess.pipeline()
			if err != nil {
				return err
			}
			if !lo.Contains(p.Steps(), step) {
				return fmt.Errorf("%w %q (known: %v)", pipeline.ErrUnknownStep, step, p.Steps())
			}

			if _, err := sess.manager(sess.stdout).Apply(cmd.Context()); err != nil {
				return err
			}
			return p.Run(cmd.Context(), step)
		},
	}
}

func formatTime(t time.Time) string {
	return t.Local().Format(time.DateTime)
}

func newStatusCmd(sess *session) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the build number and filesystem upload state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := sess.stdout
			counter := sess.manager(nil).Counter()
			number, exists, err := counter.Read()
			if err != nil {
				return err
			}
			if exists {
				_, _ = fmt.Fprintf(out, "Build number:   %d\n", number)
			} else {
				_, _ = fmt.Fprintf(out, "Build number:   %s\n", ui.Muted(out, "none yet"))
			}

			detector, err := sess.detector()
			if err != nil {
				return err
			}
			lastUpload, uploaded, err := detector.LastUpload()
			if err != nil {
				return err
			}
			if uploaded {
				_, _ = fmt.Fprintf(out, "Last upload:    %s\n", formatTime(lastUpload))
			} else {
				_, _ = fmt.Fprintf(out, "Last upload:    %s\n", ui.Muted(out, "never"))
			}

			newest, newestTime, err := detector.Newest()
			if err != nil {
				return err
			}
			if newest == "" {
				_, _ = fmt.Fprintf(out, "Newest data:    %s\n", ui.Muted(out, "no files in "+sess.env.Rel(detector.DataDir())))
				return nil
			}
			_, _ = fmt.Fprintf(out, "Newest data:    %s (%s)\n", sess.env.Rel(newest), formatTime(newestTime))

			needed, err := target.PathNewer(sess.env.FS, lastUpload, newest)
			if err != nil {
				return err
			}
			slog.DebugContext(cmd.Context(), "status computed",
				slog.Int(log.Number, number),
				slog.Time(log.Since, lastUpload),
				slog.Time(log.ModTime, newestTime),
			)
			if needed {
				_, _ = fmt.Fprintln(out, "Upload needed:  "+ui.Status(out, "yes"))
			} else {
				_, _ = fmt.Fprintln(out, "Upload needed:  no")
			}
			return nil
		},
	}
}

func newWatchCmd(sess *session) *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Upload the filesystem image whenever the data directory changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			uploader, err := sess.uploader()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("debounce") {
				debounce = sess.cfg.Watch.Debounce
			}

			detector := uploader.Detector()
			slog.InfoContext(cmd.Context(), "watching data directory",
				slog.String(log.Dir, detector.DataDir()),
				slog.Duration(log.Duration, debounce),
			)
			return watch.New(detector.DataDir(), debounce, detector.Ignored, uploader.BeforeUpload).Run(cmd.Context())
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", config.DefaultWatchDebounce, "quiet period after the last change before uploading")
	return cmd
}
