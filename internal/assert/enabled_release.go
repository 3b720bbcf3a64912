//go:build !wpdebug

package assert

// Enabled reports whether debug precondition checks are compiled in.
const Enabled = false
