// Package debug provides lightweight assertions, mirroring aistore's
// cmn/debug package (Assert/AssertNoErr call sites sprinkled through
// xact/xs). Kept always-on: the module has no release/debug build
// split of its own.
package debug

import "fmt"

// Assert panics with msg when cond is false.
func Assert(cond bool, msg string) {
	if !cond {
		panic("assertion failed: " + msg)
	}
}

// Assertf is Assert with a format string, evaluated lazily only on failure.
func Assertf(cond bool, format string, args ...any) {
	if !cond {
		panic("assertion failed: " + fmt.Sprintf(format, args...))
	}
}

// AssertNoErr panics if err is non-nil, mirroring debug.AssertNoErr(err)
// call sites in the teacher.
func AssertNoErr(err error) {
	if err != nil {
		panic("assertion failed: unexpected error: " + err.Error())
	}
}
