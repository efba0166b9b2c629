package publisher

import (
	"fmt"

	"github.com/gobwas/glob"
)

// GlobFilter filters records by token using glob patterns
type GlobFilter struct {
	tokenGlobs []glob.Glob
}

// NewGlobFilter creates a new glob-based filter
// Empty patterns match everything
func NewGlobFilter(tokenPatterns []string) (*GlobFilter, error) {
	filter := &GlobFilter{
		tokenGlobs: make([]glob.Glob, 0, len(tokenPatterns)),
	}

	for _, pattern := range tokenPatterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid token pattern %q: %w", pattern, err)
		}
		filter.tokenGlobs = append(filter.tokenGlobs, g)
	}

	return filter, nil
}

// Match returns true if the token matches any configured pattern
// If no patterns are configured, all tokens match
func (f *GlobFilter) Match(token string) bool {
	if len(f.tokenGlobs) == 0 {
		return true
	}
	for _, g := range f.tokenGlobs {
		if g.Match(token) {
			return true
		}
	}
	return false
}
