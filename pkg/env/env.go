// Package env converts between environment representations and parses
// boolean switches read from the environment.
package env

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/samber/lo"
)

const keyValueParts = 2 // Number of parts in a key=value pair.

// ToMap turns KEY=value assignments into a map. Malformed entries are dropped.
func ToMap(assignments []string) map[string]string {
	return lo.FromPairs(lo.FilterMap(assignments, func(item string, _ int) (lo.Entry[string, string], bool) {
		parts := strings.SplitN(item, "=", keyValueParts)
		if len(parts) != keyValueParts {
			return lo.Entry[string, string]{}, false
		}

		return lo.Entry[string, string]{Key: parts[0], Value: parts[1]}, true
	}))
}

// ToAssignments turns a map into KEY=value assignments sorted by key.
func ToAssignments(envMap map[string]string) []string {
	assignments := lo.MapToSlice(envMap, func(k, v string) string {
		return k + "=" + v
	})
	sort.Strings(assignments)
	return assignments
}

// Overlay returns the process environment with overrides applied on top.
func Overlay(overrides map[string]string) []string {
	return ToAssignments(lo.Assign(ToMap(os.Environ()), overrides))
}

// ErrInvalidBool is returned when a string cannot be parsed as a boolean.
var ErrInvalidBool = errors.New("invalid boolean value")

// ParseBool interprets a string as a boolean after trimming and lowercasing.
//
// Accepted values:
//   - "true", "yes", "1"  -> true
//   - "false", "no", "0"  -> false
//   - "" (empty)          -> false, nil error
//   - any other non-empty -> false, ErrInvalidBool
func ParseBool(value string) (bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return false, nil
	}

	switch strings.ToLower(value) {
	case "true", "yes", "1":
		return true, nil
	case "false", "no", "0":
		return false, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrInvalidBool, value)
	}
}

// LookupBool parses envVar when it is set and non-empty. The second result
// reports whether a value was present.
func LookupBool(envVar string) (bool, bool, error) {
	v, ok := os.LookupEnv(envVar)
	if !ok || strings.TrimSpace(v) == "" {
		return false, false, nil
	}

	b, err := ParseBool(v)
	if err != nil {
		return false, true, fmt.Errorf("%s: %w", envVar, err)
	}
	return b, true, nil
}

// FailsafeParseBoolEnv returns defaultValue if envVar is unset, empty, or
// invalid, and the parsed value otherwise.
func FailsafeParseBoolEnv(envVar string, defaultValue bool) bool {
	b, ok, err := LookupBool(envVar)
	if !ok || err != nil {
		return defaultValue
	}
	return b
}
