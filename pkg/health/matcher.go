package health

import (
	"regexp"
	"sync"
)

// compiled caches string patterns so hot aggregation loops do not recompile them.
// A nil entry records an expression that failed to compile.
var compiled sync.Map

// Matches reports whether candidate satisfies re. A nil pattern matches everything.
// Matching is a regex search, so "book" matches "bookinfo".
func Matches(re *regexp.Regexp, candidate string) bool {
	if re == nil {
		return true
	}
	return re.MatchString(candidate)
}

// MatchesExpr is Matches for a pattern given as a string. An empty expression
// matches everything; an expression that does not compile matches nothing.
func MatchesExpr(expr, candidate string) bool {
	if expr == "" {
		return true
	}
	re := compileCached(expr)
	if re == nil {
		return false
	}
	return re.MatchString(candidate)
}

func compileCached(expr string) *regexp.Regexp {
	if v, ok := compiled.Load(expr); ok {
		return v.(*regexp.Regexp)
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		re = nil
	}
	v, _ := compiled.LoadOrStore(expr, re)
	return v.(*regexp.Regexp)
}
