package mabipack

import (
	"fmt"
	"regexp"
)

// Filter selects entries by relative path.
//
// Patterns are regular expressions combined as a union: a path is selected
// when any pattern matches. Matching is unanchored, so a pattern matches
// anywhere in the path. An empty pattern set selects everything.
type Filter struct {
	patterns []*regexp.Regexp
}

// NewFilter compiles the given patterns. All patterns are validated before
// any is used, so a bad filter fails here and never partially processes an
// archive.
func NewFilter(patterns []string) (*Filter, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidFilterPattern, p, err)
		}
		compiled = append(compiled, re)
	}
	return &Filter{patterns: compiled}, nil
}

// Match reports whether path is selected. A nil filter selects everything.
func (f *Filter) Match(path string) bool {
	if f == nil || len(f.patterns) == 0 {
		return true
	}
	for _, re := range f.patterns {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}
