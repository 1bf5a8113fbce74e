package ui

import (
	"io"
	"os"

	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/x/term"
)

// GetFangScheme returns the same light/dark-aware color scheme fang uses.
func GetFangScheme() fang.ColorScheme {
	// This mirrors fang.mustColorscheme(DefaultColorScheme)
	isDark := lipgloss.HasDarkBackground(os.Stdin, os.Stdout)
	return fang.DefaultColorScheme(lipgloss.LightDark(isDark))
}

type fder interface {
	Fd() uintptr
}

// IsTerminal reports whether w is attached to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(fder)
	if !ok {
		return false
	}
	return term.IsTerminal(f.Fd())
}

func render(w io.Writer, style func(fang.ColorScheme) lipgloss.Style, text string) string {
	if !IsTerminal(w) {
		return text
	}
	return style(GetFangScheme()).Render(text)
}

// Status styles a one-line progress message.
func Status(w io.Writer, text string) string {
	return render(w, func(cs fang.ColorScheme) lipgloss.Style {
		return lipgloss.NewStyle().Foreground(cs.Program)
	}, text)
}

// Banner styles a prominent announcement such as an upload about to start.
func Banner(w io.Writer, text string) string {
	return render(w, func(cs fang.ColorScheme) lipgloss.Style {
		return lipgloss.NewStyle().Bold(true).Foreground(cs.QuotedString)
	}, text)
}

// Muted styles low-importance diagnostics.
func Muted(w io.Writer, text string) string {
	return render(w, func(cs fang.ColorScheme) lipgloss.Style {
		return lipgloss.NewStyle().Foreground(cs.Flag)
	}, text)
}
