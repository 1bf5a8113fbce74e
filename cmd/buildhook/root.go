package buildhook

import (
	"context"
	"errors"
	"io"
	"os"
	"strconv"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
	"github.com/yaklabco/buildhook/cmd/buildhook/version"
	"github.com/yaklabco/buildhook/config"
	"github.com/yaklabco/buildhook/internal/dryrun"
	"github.com/yaklabco/buildhook/pkg/buildenv"
	"github.com/yaklabco/buildhook/pkg/buildnum"
	"github.com/yaklabco/buildhook/pkg/fsupload"
	"github.com/yaklabco/buildhook/pkg/pipeline"
	"github.com/yaklabco/buildhook/pkg/prettylog"
	"github.com/yaklabco/buildhook/pkg/sh"
)

const (
	shortDescription = "buildhook numbers firmware builds and re-uploads the device " +
		"filesystem image only when its sources changed."
)

// Runner runs an external command to completion.
type Runner interface {
	Run(ctx context.Context, env map[string]string, cmd string, args ...string) error
}

type rootCmdOptions struct {
	runner Runner
}

type Option func(*rootCmdOptions)

// This is intentionally designed to be unusable from outside this package,
// as it exists purely for testing purposes.
func withRunner(r Runner) Option {
	return func(opts *rootCmdOptions) {
		opts.runner = r
	}
}

type globalFlags struct {
	projectDir string
	verbose    bool
	debug      bool
	dryRun     bool
}

// session is the state every subcommand works against, built once the
// flags are parsed.
type session struct {
	flags  globalFlags
	opts   *rootCmdOptions
	cfg    *config.Config
	env    *buildenv.Env
	runner Runner
	stdout io.Writer
	stderr io.Writer
}

func (s *session) setupLogging(cmd *cobra.Command, debug, verbose bool) {
	logger := prettylog.SetupPrettyLogger(cmd.ErrOrStderr())
	logger.SetLevel(prettylog.LevelFor(debug, verbose))
}

func (s *session) setup(cmd *cobra.Command) error {
	s.stdout = cmd.OutOrStdout()
	s.stderr = cmd.ErrOrStderr()

	cfg, err := config.Load(&config.LoadOptions{
		ProjectDir: s.flags.projectDir,
		Stderr:     s.stderr,
	})
	if err != nil {
		return err
	}
	cfg.Verbose = cfg.Verbose || s.flags.verbose
	cfg.Debug = cfg.Debug || s.flags.debug
	cfg.DryRun = cfg.DryRun || s.flags.dryRun

	s.setupLogging(cmd, cfg.Debug, cfg.Verbose)
	dryrun.SetRequested(cfg.DryRun)

	s.cfg = cfg
	s.env = buildenv.New(cfg.ProjectDir)
	s.runner = s.opts.runner
	if s.runner == nil {
		s.runner = &sh.Runner{
			Dir:     cfg.ProjectDir,
			Stdout:  s.stdout,
			Stderr:  s.stderr,
			Verbose: cfg.Verbose,
		}
	}
	return nil
}

func (s *session) manager(console io.Writer) *buildnum.Manager {
	return buildnum.NewManager(s.env, s.cfg.CounterFile, s.cfg.DefineName, console)
}

func (s *session) detector() (*fsupload.Detector, error) {
	return fsupload.NewDetector(s.env, s.cfg.DataDir, s.cfg.MarkerFile, s.cfg.DataIgnore, s.stdout)
}

func (s *session) uploader() (*fsupload.Uploader, error) {
	detector, err := s.detector()
	if err != nil {
		return nil, err
	}
	return fsupload.NewUploader(detector, s.runner, s.cfg.UploadFSCommand), nil
}

func (s *session) pipeline() (*pipeline.Pipeline, error) {
	uploader, err := s.uploader()
	if err != nil {
		return nil, err
	}
	p := pipeline.New(s.env, s.runner, s.cfg.StepCommands())
	p.AddPreAction(pipeline.StepUpload, uploader.Hook)
	return p, nil
}

func NewRootCmd(ctx context.Context, opts ...Option) *cobra.Command {
	rootCmdOpts := &rootCmdOptions{}
	for _, opt := range opts {
		opt(rootCmdOpts)
	}

	sess := &session{opts: rootCmdOpts}
	rootCmd := &cobra.Command{
		Use:   "buildhook",
		Short: shortDescription,
		Example: `	# Bump the build number and print the define for build_flags
	buildhook number --flags

	# Build, then flash (uploading the filesystem image first if data/ changed)
	buildhook run build
	buildhook run upload

	# Is the filesystem image on the device stale?
	buildhook check

	# Re-upload the filesystem image on every change under data/
	buildhook watch`,
		Version: version.Colorized(),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return sess.setup(cmd)
		},
	}
	rootCmd.SetContext(ctx)

	rootCmd.PersistentFlags().StringVarP(&sess.flags.projectDir, "project-dir", "C", "", "project root (default: current directory)")
	rootCmd.PersistentFlags().BoolVarP(&sess.flags.verbose, "verbose", "v", false, "show verbose output and trace commands")
	rootCmd.PersistentFlags().BoolVarP(&sess.flags.debug, "debug", "d", false, "turn on debug messages")
	rootCmd.PersistentFlags().BoolVar(&sess.flags.dryRun, "dryrun", false, "print commands instead of executing them")

	rootCmd.AddCommand(
		newNumberCmd(sess),
		newCheckCmd(sess),
		newPreUploadCmd(sess),
		newUploadFSCmd(sess),
		newMarkCmd(sess),
		newRunCmd(sess),
		newStatusCmd(sess),
		newWatchCmd(sess),
		newConfigCmd(sess),
	)

	return rootCmd
}

// quietExit ends the process with a status code and no error output.
type quietExit int

func (q quietExit) Error() string {
	return "exit status " + strconv.Itoa(int(q))
}

func (q quietExit) ExitStatus() int {
	return int(q)
}

func errorHandler(w io.Writer, styles fang.Styles, err error) {
	var quiet quietExit
	if errors.As(err, &quiet) {
		return
	}
	fang.DefaultErrorHandler(w, styles, err)
}

// ExecuteWithFang runs the root Cobra command with Fang-specific options.
// Interrupts cancel the command context so running sub-commands are stopped.
func ExecuteWithFang(ctx context.Context, rootCmd *cobra.Command) error {
	//nolint:wrapcheck // top-level error from cobra, wrapping not needed
	return fang.Execute(
		ctx, rootCmd,
		fang.WithVersion(rootCmd.Version),
		fang.WithoutManpage(),
		fang.WithErrorHandler(errorHandler),
		fang.WithNotifySignal(os.Interrupt, syscall.SIGTERM),
	)
}
