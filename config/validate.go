package config

import (
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gobwas/glob"
)

// defineNamePattern matches a valid C preprocessor identifier.
var defineNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`) //nolint:gochecknoglobals // compiled once

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
}

func (w ValidationWarning) String() string {
	return fmt.Sprintf("config warning: %s: %s", w.Field, w.Message)
}

// ValidationResults holds the results of configuration validation.
type ValidationResults struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are validation errors.
func (r ValidationResults) HasErrors() bool {
	return len(r.Errors) > 0
}

// HasWarnings returns true if there are validation warnings.
func (r ValidationResults) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// ErrorMessage returns a combined error message for all validation errors.
func (r ValidationResults) ErrorMessage() string {
	if !r.HasErrors() {
		return ""
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// WriteWarnings writes all warnings to the given writer.
func (r ValidationResults) WriteWarnings(w io.Writer) {
	for _, warn := range r.Warnings {
		_, _ = fmt.Fprintln(w, warn.String())
	}
}

func (r *ValidationResults) addError(field, format string, args ...any) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (r *ValidationResults) addWarning(field, format string, args ...any) {
	r.Warnings = append(r.Warnings, ValidationWarning{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Validate checks the configuration for errors and warnings.
// It returns errors for invalid values that would cause runtime issues,
// and warnings for issues that can be safely ignored.
func (c *Config) Validate() ValidationResults {
	var result ValidationResults

	required := []struct{ field, value string }{
		{"counter_file", c.CounterFile},
		{"data_dir", c.DataDir},
		{"marker_file", c.MarkerFile},
	}
	for _, r := range required {
		switch {
		case strings.TrimSpace(r.value) == "":
			result.addError(r.field, "must not be empty")
		case c.ProjectDir != "" && filepath.IsAbs(r.value) && !within(c.ProjectDir, r.value):
			result.addWarning(r.field, "%q lies outside the project %q", r.value, c.ProjectDir)
		}
	}

	if !defineNamePattern.MatchString(c.DefineName) {
		result.addError("define_name", "%q is not a valid preprocessor identifier", c.DefineName)
	}

	if len(c.UploadFSCommand) == 0 {
		result.addError("uploadfs_command", "must not be empty")
	}

	for _, name := range c.StepNames() {
		if len(c.Steps[name]) == 0 {
			result.addError("steps."+name, "command must not be empty")
		}
	}
	if _, ok := c.Steps["upload"]; !ok {
		result.addWarning("steps", "no %q step configured, the pre-upload hook has nothing to run before", "upload")
	}

	for _, pattern := range c.DataIgnore {
		if _, err := glob.Compile(pattern, '/'); err != nil {
			result.addError("data_ignore", "invalid pattern %q: %v", pattern, err)
		}
	}

	if c.Watch.Debounce < 0 {
		result.addError("watch.debounce", "must not be negative, got %s", c.Watch.Debounce)
	}

	if c.DataDir != "" && c.MarkerFile != "" && within(c.DataDir, c.MarkerFile) {
		result.addWarning("marker_file", "%q lies inside data_dir %q and will always look changed", c.MarkerFile, c.DataDir)
	}
	if c.DataDir != "" && c.CounterFile != "" && within(c.DataDir, c.CounterFile) {
		result.addWarning("counter_file", "%q lies inside data_dir %q, every build will trigger a filesystem upload", c.CounterFile, c.DataDir)
	}

	return result
}

// within reports whether path lies under dir (both project-relative or both
// absolute).
func within(dir, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
