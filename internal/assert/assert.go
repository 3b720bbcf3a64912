// Package assert provides precondition checks that are compiled in only for
// debug builds (build tag wpdebug).
//
// In release builds That never panics: callers that violate a documented
// precondition get numerically degraded output instead. The arguments are
// still evaluated at the call site, so hot paths guard calls with
// "if assert.Enabled", which the compiler removes in release builds.
package assert

import "fmt"

// That panics with the formatted message if cond is false and debug checks
// are enabled.
func That(cond bool, format string, args ...any) {
	if Enabled && !cond {
		panic(fmt.Sprintf("weightpack: precondition violated: "+format, args...))
	}
}
