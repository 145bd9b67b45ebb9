package policy

import "regexp"

// CompilePatterns compiles a list of regex pattern strings.
//
// Malformed patterns are silently skipped, never fatal. This mirrors the
// write path's strictness inversion: Store.Update rejects a whole patch if
// any pattern fails to compile, but at match time a pattern that somehow
// became invalid must not take the whole rule list down with it.
func CompilePatterns(patterns []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		compiled = append(compiled, re)
	}
	return compiled
}

// matchesAny reports whether host or path matches any compiled pattern.
func matchesAny(host, path string, regexes []*regexp.Regexp) bool {
	for _, re := range regexes {
		if re.MatchString(host) || re.MatchString(path) {
			return true
		}
	}
	return false
}
