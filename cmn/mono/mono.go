// Package mono gives a monotonic nanosecond clock, mirroring aistore's
// cmn/mono package (mono.NanoTime, mono.Since) used throughout xact/xs
// to measure quiescence and idle time without wall-clock skew.
package mono

import "time"

var start = time.Now()

// NanoTime returns nanoseconds elapsed since package init, monotonic.
func NanoTime() int64 {
	return int64(time.Since(start))
}

// Since returns the duration elapsed since a NanoTime() reading.
func Since(t int64) time.Duration {
	return time.Duration(NanoTime() - t)
}
