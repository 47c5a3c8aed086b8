package space

import "fmt"

// assertf panics when cond is false. Call sites guard it with debugChecks so
// release builds drop both the check and its arguments.
func assertf(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("regionspace: "+format, args...))
	}
}
