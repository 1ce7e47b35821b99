package shim

import (
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// excluder hides virtual paths matching gitignore-style patterns.
type excluder struct {
	matcher *ignore.GitIgnore
}

// newExcluder compiles patterns; a nil excluder matches nothing.
func newExcluder(patterns []string) *excluder {
	lines := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			lines = append(lines, p)
		}
	}
	if len(lines) == 0 {
		return nil
	}
	return &excluder{matcher: ignore.CompileIgnoreLines(lines...)}
}

// match reports whether the cleaned relative path is excluded. Patterns
// also cover everything below a matched directory. The root is never
// excluded.
func (e *excluder) match(rel string) bool {
	if e == nil || rel == "" {
		return false
	}
	// "dir/" patterns only match with the trailing slash.
	return e.matcher.MatchesPath(rel) || e.matcher.MatchesPath(rel+"/")
}
