package filter

import (
	"regexp"
	"strings"
)

var (
	disallowed = regexp.MustCompile(`[^\p{L}\p{M}\p{N}_\-()&#%\[\]'.]+`)
	spaces     = regexp.MustCompile(` {2,}`)
)

// Sanitize turns a remote name into something safe to use as a path segment.
// Disallowed runs become a single space and the result is trimmed.
func Sanitize(raw string) string {
	s := disallowed.ReplaceAllString(raw, " ")
	s = spaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Filter decides which discovered links are kept
type Filter struct {
	excludedPaths     []string
	excludedFilenames []string
	searchTerms       []string
}

// New builds a Filter. Empty entries are ignored and search terms match case-insensitively.
func New(excludedPaths, excludedFilenames, searchTerms []string) *Filter {
	f := &Filter{}
	for _, p := range excludedPaths {
		if p != "" {
			f.excludedPaths = append(f.excludedPaths, p)
		}
	}
	for _, n := range excludedFilenames {
		if n != "" {
			f.excludedFilenames = append(f.excludedFilenames, n)
		}
	}
	for _, term := range searchTerms {
		if term != "" {
			f.searchTerms = append(f.searchTerms, strings.ToLower(term))
		}
	}
	return f
}

// ExcludedPath reports whether the URL contains any excluded path substring
func (f *Filter) ExcludedPath(absoluteURL string) bool {
	for _, p := range f.excludedPaths {
		if strings.Contains(absoluteURL, p) {
			return true
		}
	}
	return false
}

// ShouldInclude applies, in order: empty name, excluded path, excluded
// filename, then search terms.
func (f *Filter) ShouldInclude(absoluteURL, fileName string) bool {
	if fileName == "" {
		return false
	}
	if f.ExcludedPath(absoluteURL) {
		return false
	}
	for _, n := range f.excludedFilenames {
		if strings.Contains(fileName, n) {
			return false
		}
	}
	if len(f.searchTerms) == 0 {
		return true
	}
	lower := strings.ToLower(fileName)
	for _, term := range f.searchTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}
