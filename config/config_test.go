package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProjectConfig(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(ProjectConfigPath(dir), []byte(content), 0o644))
}

// tempProject returns a fresh project directory with symlinks resolved, the
// way Load reports it.
func tempProject(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	dir := tempProject(t)

	cfg, err := Load(&LoadOptions{
		ProjectDir:        dir,
		SkipUserConfig:    true,
		SkipProjectConfig: true,
		SkipEnv:           true,
	})
	require.NoError(t, err)

	want := DefaultConfig(dir)
	if diff := cmp.Diff(want, cfg, cmpopts.IgnoreUnexported(Config{}), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, Command{"pio", "run", "--target", "uploadfs"}, cfg.UploadFSCommand)
	assert.Empty(t, cfg.ConfigFiles())
}

func TestLoad_ProjectConfig(t *testing.T) {
	dir := tempProject(t)
	writeProjectConfig(t, dir, `
counter_file: fw/build.txt
define_name: FW_BUILD
data_dir: web
uploadfs_command: ["pio", "run", "-e", "esp32", "--target", "uploadfs"]
steps:
  upload: pio run -e esp32 --target upload
data_ignore:
  - "*.swp"
watch:
  debounce: 2s
verbose: true
`)

	cfg, err := Load(&LoadOptions{
		ProjectDir:     dir,
		SkipUserConfig: true,
		SkipEnv:        true,
	})
	require.NoError(t, err)

	assert.Equal(t, "fw/build.txt", cfg.CounterFile)
	assert.Equal(t, "FW_BUILD", cfg.DefineName)
	assert.Equal(t, "web", cfg.DataDir)
	assert.Equal(t, DefaultMarkerFile, cfg.MarkerFile)
	assert.Equal(t, Command{"pio", "run", "-e", "esp32", "--target", "uploadfs"}, cfg.UploadFSCommand)
	assert.Equal(t, Command{"pio", "run", "-e", "esp32", "--target", "upload"}, cfg.Steps["upload"])
	assert.Equal(t, Command{"pio", "run"}, cfg.Steps["build"], "default steps survive a partial override")
	assert.Equal(t, []string{"*.swp"}, cfg.DataIgnore)
	assert.Equal(t, 2*time.Second, cfg.Watch.Debounce)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, []string{ProjectConfigPath(dir)}, cfg.ConfigFiles())
}

func TestLoad_UserConfigThenProject(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	require.NoError(t, os.MkdirAll(filepath.Join(xdg, AppName), 0o755))
	require.NoError(t, os.WriteFile(ResolveXDGPaths().ConfigFilePath(), []byte("define_name: USER_BUILD\ndata_dir: userdata\n"), 0o644))

	dir := tempProject(t)
	writeProjectConfig(t, dir, "data_dir: projectdata\n")

	cfg, err := Load(&LoadOptions{ProjectDir: dir, SkipEnv: true})
	require.NoError(t, err)

	assert.Equal(t, "USER_BUILD", cfg.DefineName)
	assert.Equal(t, "projectdata", cfg.DataDir)
	assert.Len(t, cfg.ConfigFiles(), 2)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	dir := tempProject(t)
	t.Setenv("BUILDHOOK_VERBOSE", "true")
	t.Setenv("BUILDHOOK_DEBUG", "1")
	t.Setenv("BUILDHOOK_DATA_DIR", "assets")
	t.Setenv("BUILDHOOK_UPLOADFS_COMMAND", `pio run --target "upload fs"`)

	cfg, err := Load(&LoadOptions{
		ProjectDir:        dir,
		SkipUserConfig:    true,
		SkipProjectConfig: true,
	})
	require.NoError(t, err)

	assert.True(t, cfg.Verbose)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "assets", cfg.DataDir)
	assert.Equal(t, Command{"pio", "run", "--target", "upload fs"}, cfg.UploadFSCommand)
}

func TestLoad_InvalidEnvBool(t *testing.T) {
	t.Setenv("BUILDHOOK_DRYRUN", "sometimes")

	_, err := Load(&LoadOptions{
		ProjectDir:        t.TempDir(),
		SkipUserConfig:    true,
		SkipProjectConfig: true,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BUILDHOOK_DRYRUN")
}

func TestLoad_ProjectDirFromEnv(t *testing.T) {
	dir := tempProject(t)
	t.Setenv("BUILDHOOK_PROJECT_DIR", dir)

	cfg, err := Load(&LoadOptions{SkipUserConfig: true, SkipProjectConfig: true})
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.ProjectDir)
}

func TestLoad_MissingProjectDir(t *testing.T) {
	_, err := Load(&LoadOptions{
		ProjectDir:     filepath.Join(t.TempDir(), "missing"),
		SkipUserConfig: true,
		SkipEnv:        true,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project directory")
}

func TestLoad_ValidationError(t *testing.T) {
	dir := tempProject(t)
	writeProjectConfig(t, dir, "define_name: 9LIVES\n")

	_, err := Load(&LoadOptions{ProjectDir: dir, SkipUserConfig: true, SkipEnv: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "define_name")
}

func TestLoad_WarningsWritten(t *testing.T) {
	dir := tempProject(t)
	writeProjectConfig(t, dir, "marker_file: data/.uploaded\n")

	var stderr bytes.Buffer
	cfg, err := Load(&LoadOptions{ProjectDir: dir, SkipUserConfig: true, SkipEnv: true, Stderr: &stderr})
	require.NoError(t, err)
	assert.Equal(t, "data/.uploaded", cfg.MarkerFile)
	assert.Contains(t, stderr.String(), "config warning: marker_file")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{"empty counter file", func(c *Config) { c.CounterFile = " " }, "counter_file"},
		{"empty data dir", func(c *Config) { c.DataDir = "" }, "data_dir"},
		{"empty marker", func(c *Config) { c.MarkerFile = "" }, "marker_file"},
		{"bad define", func(c *Config) { c.DefineName = "BUILD-NUMBER" }, "define_name"},
		{"no uploadfs command", func(c *Config) { c.UploadFSCommand = nil }, "uploadfs_command"},
		{"empty step", func(c *Config) { c.Steps["flash"] = Command{} }, "steps.flash"},
		{"bad glob", func(c *Config) { c.DataIgnore = []string{"[oops"} }, "data_ignore"},
		{"negative debounce", func(c *Config) { c.Watch.Debounce = -time.Second }, "watch.debounce"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig("/proj")
			tt.mutate(cfg)

			result := cfg.Validate()
			require.True(t, result.HasErrors())
			assert.Equal(t, tt.wantField, result.Errors[0].Field)
		})
	}

	assert.False(t, DefaultConfig("/proj").Validate().HasErrors())
	assert.False(t, DefaultConfig("/proj").Validate().HasWarnings())
}

func TestConfig_ValidateMissingUploadStep(t *testing.T) {
	cfg := DefaultConfig("/proj")
	delete(cfg.Steps, "upload")

	result := cfg.Validate()
	assert.False(t, result.HasErrors())
	require.True(t, result.HasWarnings())
	assert.Equal(t, "steps", result.Warnings[0].Field)
}

func TestConfig_ValidatePathsOutsideProject(t *testing.T) {
	cfg := DefaultConfig("/proj")
	cfg.CounterFile = "/var/lib/firmware/build_number.txt"
	cfg.DataDir = "/proj/web"

	result := cfg.Validate()
	assert.False(t, result.HasErrors())
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "counter_file", result.Warnings[0].Field)
	assert.Contains(t, result.Warnings[0].Message, "outside the project")
}

func TestWithin(t *testing.T) {
	assert.True(t, within("data", "data/x"))
	assert.True(t, within("data", "./data/sub/x"))
	assert.False(t, within("data", "data"))
	assert.False(t, within("data", ".pio/data_upload_time"))
	assert.False(t, within("data", "database.txt"))
}

func TestCommand(t *testing.T) {
	cmd, err := ParseCommand(`pio run --target 'upload fs'`)
	require.NoError(t, err)
	assert.Equal(t, Command{"pio", "run", "--target", "upload fs"}, cmd)
	assert.Equal(t, `pio run --target 'upload fs'`, cmd.String())
}

func TestWriteProjectConfig(t *testing.T) {
	dir := tempProject(t)

	path, err := WriteProjectConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, ProjectConfigPath(dir), path)

	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, defaultConfigYAML(), string(written))
	assert.Contains(t, string(written), "uploadfs_command: "+DefaultUploadFSCommand)
	assert.Contains(t, string(written), "debounce: "+DefaultWatchDebounce.String())

	cfg, err := Load(&LoadOptions{ProjectDir: dir, SkipUserConfig: true, SkipEnv: true})
	require.NoError(t, err)
	if diff := cmp.Diff(DefaultConfig(dir), cfg, cmpopts.IgnoreUnexported(Config{}), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("written defaults differ (-want +got):\n%s", diff)
	}

	_, err = WriteProjectConfig(dir)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "already exists"))
}

func TestValidationResults_WriteWarnings(t *testing.T) {
	result := ValidationResults{
		Warnings: []ValidationWarning{
			{Field: "test", Message: "warning 1"},
			{Field: "test2", Message: "warning 2"},
		},
	}

	var buf bytes.Buffer
	result.WriteWarnings(&buf)

	assert.Equal(t, "config warning: test: warning 1\nconfig warning: test2: warning 2\n", buf.String())
}
