package buildhook

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/yaklabco/buildhook/config"
)

func newConfigCmd(sess *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage buildhook configuration",
		Example: `	buildhook config           # Show effective configuration
	buildhook config init      # Create buildhook.yaml in the project
	buildhook config path      # Show config file locations`,
		Args: cobra.NoArgs,
		// Skips the root setup so a broken config can still be inspected.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			sess.stdout = cmd.OutOrStdout()
			sess.stderr = cmd.ErrOrStderr()
			sess.setupLogging(cmd, sess.flags.debug, sess.flags.verbose)
			return nil
		},
		RunE: func(_ *cobra.Command, _ []string) error {
			return runConfigShow(sess)
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Display the effective configuration",
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				return runConfigShow(sess)
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Show configuration file paths",
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				return runConfigPath(sess)
			},
		},
		&cobra.Command{
			Use:   "init",
			Short: "Create a default project configuration file",
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				return runConfigInit(sess)
			},
		},
	)
	return cmd
}

func loadForConfigCmd(sess *session) (*config.Config, error) {
	cfg, err := config.Load(&config.LoadOptions{
		ProjectDir: sess.flags.projectDir,
		Stderr:     sess.stderr,
	})
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func runConfigShow(sess *session) error {
	cfg, err := loadForConfigCmd(sess)
	if err != nil {
		return err
	}
	writeConfig(sess.stdout, cfg)
	return nil
}

func writeConfig(w io.Writer, cfg *config.Config) {
	_, _ = fmt.Fprintln(w, "# Effective buildhook configuration")
	_, _ = fmt.Fprintf(w, "# Project: %s\n", cfg.ProjectDir)
	if files := cfg.ConfigFiles(); len(files) > 0 {
		_, _ = fmt.Fprintf(w, "# Loaded from: %s\n", strings.Join(files, ", "))
	} else {
		_, _ = fmt.Fprintln(w, "# (using defaults, no config file found)")
	}
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintf(w, "counter_file: %s\n", cfg.CounterFile)
	_, _ = fmt.Fprintf(w, "define_name: %s\n", cfg.DefineName)
	_, _ = fmt.Fprintf(w, "data_dir: %s\n", cfg.DataDir)
	_, _ = fmt.Fprintf(w, "marker_file: %s\n", cfg.MarkerFile)
	_, _ = fmt.Fprintf(w, "uploadfs_command: %s\n", cfg.UploadFSCommand)
	_, _ = fmt.Fprintln(w, "steps:")
	for _, name := range cfg.StepNames() {
		_, _ = fmt.Fprintf(w, "  %s: %s\n", name, cfg.Steps[name])
	}
	if len(cfg.DataIgnore) == 0 {
		_, _ = fmt.Fprintln(w, "data_ignore: []")
	} else {
		_, _ = fmt.Fprintln(w, "data_ignore:")
		for _, pattern := range cfg.DataIgnore {
			_, _ = fmt.Fprintf(w, "  - %q\n", pattern)
		}
	}
	_, _ = fmt.Fprintln(w, "watch:")
	_, _ = fmt.Fprintf(w, "  debounce: %s\n", cfg.Watch.Debounce)
	_, _ = fmt.Fprintf(w, "verbose: %v\n", cfg.Verbose)
	_, _ = fmt.Fprintf(w, "debug: %v\n", cfg.Debug)
	_, _ = fmt.Fprintf(w, "dryrun: %v\n", cfg.DryRun)
}

func runConfigPath(sess *session) error {
	paths := config.ResolveXDGPaths()
	w := sess.stdout

	_, _ = fmt.Fprintln(w, "Configuration Paths:")
	_, _ = fmt.Fprintf(w, "  User config:    %s\n", paths.ConfigFilePath())
	_, _ = fmt.Fprintf(w, "  Config dir:     %s\n", paths.ConfigDir())

	projectDir, err := config.ProjectDir(sess.flags.projectDir)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "  Project config: %s\n", config.ProjectConfigPath(projectDir))

	cfg, err := loadForConfigCmd(sess)
	if err != nil {
		_, _ = fmt.Fprintf(w, "\nConfig could not be loaded: %v\n", err)
		return nil
	}
	if files := cfg.ConfigFiles(); len(files) > 0 {
		_, _ = fmt.Fprintln(w, "\nActive config files:")
		for _, f := range files {
			_, _ = fmt.Fprintf(w, "  %s\n", f)
		}
	} else {
		_, _ = fmt.Fprintln(w, "\nNo config file currently loaded (using defaults)")
	}
	return nil
}

func runConfigInit(sess *session) error {
	projectDir, err := config.ProjectDir(sess.flags.projectDir)
	if err != nil {
		return err
	}
	path, err := config.WriteProjectConfig(projectDir)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(sess.stdout, "Created config file: %s\n", path)
	return nil
}
