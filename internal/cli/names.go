// Package cli holds small helpers shared by the command-line tools.
package cli

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrNoMatch indicates a pattern selected nothing.
var ErrNoMatch = errors.New("no match")

// MatchNames resolves each pattern against names and returns the selected
// names in the order they appear in names, without duplicates. A pattern
// without glob characters (*?[) must equal one of the names.
func MatchNames(patterns, names []string) ([]string, error) {
	selected := make(map[string]bool)
	for _, p := range patterns {
		if _, err := path.Match(p, ""); err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		found := false
		for _, name := range names {
			if matchName(p, name) {
				selected[name] = true
				found = true
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %q", ErrNoMatch, p)
		}
	}

	out := make([]string, 0, len(selected))
	for _, name := range names {
		if selected[name] {
			out = append(out, name)
			delete(selected, name)
		}
	}
	return out, nil
}

func matchName(pattern, name string) bool {
	if !strings.ContainsAny(pattern, "*?[") {
		return pattern == name
	}
	ok, _ := path.Match(pattern, name)
	return ok
}
