package scan

import (
	"fmt"
	"path/filepath"
	"strings"
)

// matcher decides which walked entries take part in a scan.
type matcher struct {
	excludeHidden bool
	excludeDirs   map[string]bool
	patterns      []string
}

func newMatcher(opts Options) (*matcher, error) {
	m := &matcher{
		excludeHidden: opts.ExcludeHidden,
		excludeDirs:   make(map[string]bool, len(opts.ExcludeDirs)),
	}
	for _, dir := range opts.ExcludeDirs {
		dir = strings.TrimSpace(dir)
		if dir != "" {
			m.excludeDirs[dir] = true
		}
	}
	for _, p := range opts.Patterns {
		if p == "" {
			continue
		}
		// validate up front so a bad glob fails the scan instead of matching nothing
		if _, err := filepath.Match(p, ""); err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		m.patterns = append(m.patterns, p)
	}
	return m, nil
}

func isHidden(name string) bool {
	return len(name) > 1 && strings.HasPrefix(name, ".")
}

// shouldSkipDirectory reports whether a directory below the root is pruned.
func (m *matcher) shouldSkipDirectory(name string) bool {
	if m.excludeHidden && isHidden(name) {
		return true
	}
	return m.excludeDirs[name]
}

// shouldProcessFile reports whether a regular file is part of the scan.
func (m *matcher) shouldProcessFile(name string) bool {
	if m.excludeHidden && isHidden(name) {
		return false
	}
	if len(m.patterns) == 0 {
		return true
	}
	for _, p := range m.patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}
