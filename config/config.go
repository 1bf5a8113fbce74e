package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/google/shlex"
	"github.com/spf13/viper"
	"github.com/yaklabco/buildhook/pkg/env"
	"github.com/yaklabco/buildhook/pkg/fsutils"
)

// Command is a program followed by its arguments. In configuration files it
// may be written either as a list or as a single shell-quoted string.
type Command []string

// String renders the command shell-style.
func (c Command) String() string {
	quoted := make([]string, len(c))
	for i, arg := range c {
		if arg == "" || strings.ContainsAny(arg, " \t\"'\\") {
			arg = "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
		}
		quoted[i] = arg
	}
	return strings.Join(quoted, " ")
}

// ParseCommand splits a shell-quoted command line.
func ParseCommand(line string) (Command, error) {
	parts, err := shlex.Split(line)
	if err != nil {
		return nil, fmt.Errorf("parsing command %q: %w", line, err)
	}
	return Command(parts), nil
}

// WatchConfig configures `buildhook watch`.
type WatchConfig struct {
	// Debounce is how long to wait after the last change before uploading.
	Debounce time.Duration `mapstructure:"debounce"`
}

// Config holds all buildhook configuration values.
type Config struct {
	// ProjectDir is the project root. Relative paths below resolve against it.
	ProjectDir string `mapstructure:"-"`

	// CounterFile holds the persisted build number.
	CounterFile string `mapstructure:"counter_file"`

	// DefineName is the compile-time define carrying the build number.
	DefineName string `mapstructure:"define_name"`

	// DataDir is the directory packed into the filesystem image.
	DataDir string `mapstructure:"data_dir"`

	// MarkerFile records the time of the last filesystem image upload.
	MarkerFile string `mapstructure:"marker_file"`

	// UploadFSCommand uploads the filesystem image.
	UploadFSCommand Command `mapstructure:"uploadfs_command"`

	// Steps maps pipeline step names to commands.
	Steps map[string]Command `mapstructure:"steps"`

	// DataIgnore lists glob patterns of data files that never trigger an upload.
	DataIgnore []string `mapstructure:"data_ignore"`

	// Watch configures the data directory watcher.
	Watch WatchConfig `mapstructure:"watch"`

	// Verbose enables informational logging and command tracing.
	Verbose bool `mapstructure:"verbose"`

	// Debug enables debug messages.
	Debug bool `mapstructure:"debug"`

	// DryRun prints external commands instead of running them.
	DryRun bool `mapstructure:"dryrun"`

	// configFiles are the config files that were loaded, in load order.
	configFiles []string
}

// ConfigFiles returns the configuration files that were loaded.
func (c *Config) ConfigFiles() []string {
	return c.configFiles
}

// StepCommands returns the steps as plain string slices.
func (c *Config) StepCommands() map[string][]string {
	out := make(map[string][]string, len(c.Steps))
	for name, cmd := range c.Steps {
		out[name] = cmd
	}
	return out
}

// StepNames returns the configured step names, sorted.
func (c *Config) StepNames() []string {
	names := make([]string, 0, len(c.Steps))
	for name := range c.Steps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadOptions configures how configuration is loaded.
type LoadOptions struct {
	// ProjectDir is the project root to search for project-level config.
	// If empty, BUILDHOOK_PROJECT_DIR and then the working directory are used.
	ProjectDir string

	// Stderr is where warnings are written.
	// If nil, os.Stderr is used.
	Stderr io.Writer

	// SkipProjectConfig skips loading project-level configuration.
	SkipProjectConfig bool

	// SkipUserConfig skips loading user-level configuration.
	SkipUserConfig bool

	// SkipEnv skips reading environment variables.
	SkipEnv bool
}

// Load reads configuration from all sources and returns a Config struct.
// Configuration is loaded in the following order (later sources override earlier):
//  1. Defaults
//  2. User config file (~/.config/buildhook/config.yaml)
//  3. Project config file (<project>/buildhook.yaml)
//  4. Environment variables (BUILDHOOK_*)
//
// If opts is nil, default options are used.
func Load(opts *LoadOptions) (*Config, error) {
	if opts == nil {
		opts = &LoadOptions{}
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	projectDir, err := resolveProjectDir(opts)
	if err != nil {
		return nil, err
	}

	viperInstance := viper.New()
	setDefaults(viperInstance)
	viperInstance.SetConfigType("yaml")

	var configFiles []string

	if !opts.SkipUserConfig {
		paths := ResolveXDGPaths()
		viperInstance.SetConfigName(ConfigFileName)
		viperInstance.AddConfigPath(paths.ConfigDir())

		if err := viperInstance.ReadInConfig(); err != nil {
			var configFileNotFoundError viper.ConfigFileNotFoundError
			if !errors.As(err, &configFileNotFoundError) {
				return nil, fmt.Errorf("failed to read user config file: %w", err)
			}
		} else {
			configFiles = append(configFiles, viperInstance.ConfigFileUsed())
		}
	}

	if !opts.SkipProjectConfig {
		projectConfigPath := ProjectConfigPath(projectDir)
		if _, err := os.Stat(projectConfigPath); err == nil {
			viperInstance.SetConfigFile(projectConfigPath)
			if err := viperInstance.MergeInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read project config file: %w", err)
			}
			configFiles = append(configFiles, projectConfigPath)
		}
	}

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		stringToCommandHook,
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err := viperInstance.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if !opts.SkipEnv {
		if err := applyEnvironmentOverrides(&cfg); err != nil {
			return nil, err
		}
	}

	cfg.ProjectDir = projectDir
	cfg.configFiles = configFiles

	result := cfg.Validate()
	if result.HasWarnings() {
		result.WriteWarnings(opts.Stderr)
	}
	if result.HasErrors() {
		return nil, errors.New(result.ErrorMessage())
	}

	return &cfg, nil
}

// ProjectDir resolves the project root the way Load does: explicit, then
// BUILDHOOK_PROJECT_DIR, then the working directory.
func ProjectDir(explicit string) (string, error) {
	return resolveProjectDir(&LoadOptions{ProjectDir: explicit})
}

func resolveProjectDir(opts *LoadOptions) (string, error) {
	projectDir := opts.ProjectDir
	if projectDir == "" && !opts.SkipEnv {
		projectDir = os.Getenv("BUILDHOOK_PROJECT_DIR")
	}
	if projectDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get working directory: %w", err)
		}
		projectDir = wd
	}

	truePath, err := fsutils.TruePath(projectDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve project directory %q: %w", projectDir, err)
	}
	return truePath, nil
}

// stringToCommandHook lets a command be written as one shell-quoted string.
func stringToCommandHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(Command{}) {
		return data, nil
	}
	s, _ := data.(string)
	return ParseCommand(s)
}

// applyEnvironmentOverrides applies environment variable overrides to the config.
// Environment variables take precedence over config file values.
func applyEnvironmentOverrides(cfg *Config) error {
	strs := map[string]*string{
		"BUILDHOOK_COUNTER_FILE": &cfg.CounterFile,
		"BUILDHOOK_DEFINE_NAME":  &cfg.DefineName,
		"BUILDHOOK_DATA_DIR":     &cfg.DataDir,
		"BUILDHOOK_MARKER_FILE":  &cfg.MarkerFile,
	}
	for name, field := range strs {
		if v := os.Getenv(name); v != "" {
			*field = v
		}
	}

	if v := os.Getenv("BUILDHOOK_UPLOADFS_COMMAND"); v != "" {
		cmd, err := ParseCommand(v)
		if err != nil {
			return fmt.Errorf("BUILDHOOK_UPLOADFS_COMMAND: %w", err)
		}
		cfg.UploadFSCommand = cmd
	}

	bools := map[string]*bool{
		"BUILDHOOK_VERBOSE": &cfg.Verbose,
		"BUILDHOOK_DEBUG":   &cfg.Debug,
		"BUILDHOOK_DRYRUN":  &cfg.DryRun,
	}
	for name, field := range bools {
		b, ok, err := env.LookupBool(name)
		if err != nil {
			return err
		}
		if ok {
			*field = b
		}
	}
	return nil
}

// DefaultConfig returns a Config with all default values rooted at projectDir.
func DefaultConfig(projectDir string) *Config {
	uploadFS, _ := ParseCommand(DefaultUploadFSCommand)
	build, _ := ParseCommand(DefaultBuildCommand)
	upload, _ := ParseCommand(DefaultUploadCommand)
	return &Config{
		ProjectDir:      projectDir,
		CounterFile:     DefaultCounterFile,
		DefineName:      DefaultDefineName,
		DataDir:         DefaultDataDir,
		MarkerFile:      DefaultMarkerFile,
		UploadFSCommand: uploadFS,
		Steps: map[string]Command{
			"build":  build,
			"upload": upload,
		},
		DataIgnore: []string{},
		Watch:      WatchConfig{Debounce: DefaultWatchDebounce},
	}
}

// WriteProjectConfig writes a default project configuration file into
// projectDir and returns its path. An existing file is left alone.
func WriteProjectConfig(projectDir string) (string, error) {
	configPath := ProjectConfigPath(projectDir)

	if _, err := os.Stat(configPath); err == nil {
		return "", fmt.Errorf("config file already exists: %s", configPath)
	}

	if err := os.WriteFile(configPath, []byte(defaultConfigYAML()), 0o644); err != nil { //nolint:gosec // project file meant to be committed
		return "", fmt.Errorf("failed to write config file: %w", err)
	}

	return configPath, nil
}

// defaultConfigYAML renders DefaultConfig as a commented project file.
func defaultConfigYAML() string {
	cfg := DefaultConfig("")

	var b strings.Builder
	b.WriteString("# buildhook project configuration\n\n")
	b.WriteString("# Persisted build number, relative to the project root.\n")
	fmt.Fprintf(&b, "counter_file: %s\n\n", cfg.CounterFile)
	b.WriteString("# Compile-time define carrying the build number.\n")
	fmt.Fprintf(&b, "define_name: %s\n\n", cfg.DefineName)
	b.WriteString("# Directory packed into the device filesystem image.\n")
	fmt.Fprintf(&b, "data_dir: %s\n\n", cfg.DataDir)
	b.WriteString("# Its modification time records the last filesystem image upload.\n")
	fmt.Fprintf(&b, "marker_file: %s\n\n", cfg.MarkerFile)
	b.WriteString("# Uploads the filesystem image. A list or a shell-quoted string.\n")
	fmt.Fprintf(&b, "uploadfs_command: %s\n\n", cfg.UploadFSCommand)
	b.WriteString("# Commands run by \"buildhook run <step>\".\n")
	b.WriteString("steps:\n")
	for _, name := range cfg.StepNames() {
		fmt.Fprintf(&b, "  %s: %s\n", name, cfg.Steps[name])
	}
	b.WriteString("\n# Data files that never trigger an upload.\n")
	b.WriteString("# data_ignore:\n#   - \"*.swp\"\n#   - \".DS_Store\"\n\n")
	b.WriteString("watch:\n")
	fmt.Fprintf(&b, "  debounce: %s\n", cfg.Watch.Debounce)
	return b.String()
}
