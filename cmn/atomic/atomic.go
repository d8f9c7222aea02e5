// Package atomic provides typed atomic counters, mirroring aistore's
// cmn/atomic package (atomic.Int64, atomic.Int32 fields on XactTCB in
// the teacher's xact/xs/tcb.go) over the stdlib sync/atomic primitives.
package atomic

import "sync/atomic"

// Int64 is an atomically accessed int64.
type Int64 struct{ v int64 }

func (i *Int64) Load() int64       { return atomic.LoadInt64(&i.v) }
func (i *Int64) Store(n int64)     { atomic.StoreInt64(&i.v, n) }
func (i *Int64) Add(n int64) int64 { return atomic.AddInt64(&i.v, n) }
func (i *Int64) Inc() int64        { return i.Add(1) }
func (i *Int64) Dec() int64        { return i.Add(-1) }
func (i *Int64) CAS(old, n int64) bool {
	return atomic.CompareAndSwapInt64(&i.v, old, n)
}

// Int32 is an atomically accessed int32.
type Int32 struct{ v int32 }

func (i *Int32) Load() int32       { return atomic.LoadInt32(&i.v) }
func (i *Int32) Store(n int32)     { atomic.StoreInt32(&i.v, n) }
func (i *Int32) Add(n int32) int32 { return atomic.AddInt32(&i.v, n) }
func (i *Int32) Inc() int32        { return i.Add(1) }
func (i *Int32) Dec() int32        { return i.Add(-1) }

// Bool is an atomically accessed boolean.
type Bool struct{ v int32 }

func (b *Bool) Load() bool { return atomic.LoadInt32(&b.v) != 0 }
func (b *Bool) Store(v bool) {
	var n int32
	if v {
		n = 1
	}
	atomic.StoreInt32(&b.v, n)
}
