// Package version reports the version the binary was built from.
package version

import (
	"runtime/debug"
	"strings"
	"time"

	"charm.land/lipgloss/v2"
	"github.com/yaklabco/buildhook/pkg/ui"
)

// Version is the CLI version. It can be overridden at build time via:
//
//	-ldflags "-X github.com/yaklabco/buildhook/cmd/buildhook/version.Version=v0.0.0"
var Version = "dev" //nolint:gochecknoglobals // Populated by goreleaser ldflags.

// Commit is the git commit hash, overridable via -ldflags like Version.
var Commit = "" //nolint:gochecknoglobals // Populated by goreleaser ldflags.

// BuildDate is the RFC3339 build timestamp, overridable via -ldflags.
var BuildDate = "" //nolint:gochecknoglobals // Populated by goreleaser ldflags.

func buildSetting(key string) string {
	bi, ok := debug.ReadBuildInfo()
	if !ok || bi == nil {
		return ""
	}
	for _, s := range bi.Settings {
		if s.Key == key {
			return s.Value
		}
	}
	return ""
}

// EffectiveVersion returns the best-effort version string for the binary.
// Precedence: ldflags, module version from `go install module@version`,
// vcs.revision (+ "-dirty"), then "dev".
func EffectiveVersion() string {
	if v := strings.TrimSpace(Version); v != "" && v != "dev" {
		return v
	}

	if bi, ok := debug.ReadBuildInfo(); ok && bi != nil {
		if mv := strings.TrimSpace(bi.Main.Version); mv != "" && mv != "(devel)" {
			return mv
		}
	}
	if rev := buildSetting("vcs.revision"); rev != "" {
		if buildSetting("vcs.modified") == "true" {
			rev += "-dirty"
		}
		return rev
	}

	return "dev"
}

// EffectiveCommit returns the commit from ldflags or Go build info.
func EffectiveCommit() string {
	if c := strings.TrimSpace(Commit); c != "" {
		return c
	}
	return buildSetting("vcs.revision")
}

// EffectiveBuildTime returns the build time from ldflags or Go build info.
func EffectiveBuildTime() (time.Time, bool) {
	for _, raw := range []string{strings.TrimSpace(BuildDate), buildSetting("vcs.time")} {
		if raw == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// String renders version, commit and build time joined by dashes.
func String() string {
	return strings.Join(parts(func(s string) string { return s }, func(s string) string { return s }, func(s string) string { return s }), "-")
}

// Colorized renders the version line with fang-consistent colors.
func Colorized() string {
	cs := ui.GetFangScheme()
	versionStyle := lipgloss.NewStyle().Foreground(cs.QuotedString)
	commitStyle := lipgloss.NewStyle().Foreground(cs.Program)
	timeStyle := lipgloss.NewStyle().Foreground(cs.Flag)
	sepStyle := lipgloss.NewStyle().Foreground(cs.Base)

	rendered := parts(
		func(s string) string { return versionStyle.Render(s) },
		func(s string) string { return commitStyle.Render(s) },
		func(s string) string { return timeStyle.Render(s) },
	)
	return strings.Join(rendered, sepStyle.Render("-"))
}

func parts(ver, commit, when func(string) string) []string {
	out := []string{ver(EffectiveVersion())}
	if c := EffectiveCommit(); c != "" && c != EffectiveVersion() {
		out = append(out, commit(c))
	}
	if t, ok := EffectiveBuildTime(); ok {
		out = append(out, when(t.In(time.Local).Format(time.RFC3339)))
	}
	return out
}
