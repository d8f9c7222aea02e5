// Package metrics exposes the core's ambient observability surface via
// prometheus/client_golang, the library the teacher (aistore) itself
// depends on directly for its stats subsystem. This is intentionally
// small: switch counts, action-sequence cache hit/miss, KV sync
// duration — the runtime's own health, not the external profiling-agent
// plugin §1/§9 place out of scope.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Set is one Instance's metric registry. Each Instance owns its own Set
// (and its own prometheus.Registry) so multiple Instances in one process
// -- e.g. under test -- never collide on metric names.
type Set struct {
	Registry *prometheus.Registry

	Switches        prometheus.Counter
	SeqCacheHits    prometheus.Counter
	SeqCacheMisses  prometheus.Counter
	ActionsExecuted prometheus.Counter
	KVSyncDuration  prometheus.Histogram
	SwitchDuration  prometheus.Histogram
}

// NewSet builds a fresh, registered metric Set.
func NewSet() *Set {
	reg := prometheus.NewRegistry()
	s := &Set{
		Registry: reg,
		Switches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "laik_switches_total",
			Help: "Number of completed container SwitchTo calls.",
		}),
		SeqCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "laik_action_sequence_cache_hits_total",
			Help: "Number of SwitchTo calls that reused a cached action sequence.",
		}),
		SeqCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "laik_action_sequence_cache_misses_total",
			Help: "Number of SwitchTo calls that had to (re)plan an action sequence.",
		}),
		ActionsExecuted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "laik_actions_executed_total",
			Help: "Number of individual actions dispatched to the backend.",
		}),
		KVSyncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "laik_kv_sync_seconds",
			Help:    "Wall time spent in a collective KV store sync.",
			Buckets: prometheus.DefBuckets,
		}),
		SwitchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "laik_switch_seconds",
			Help:    "Wall time spent in SwitchTo, including planning and execution.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(s.Switches, s.SeqCacheHits, s.SeqCacheMisses,
		s.ActionsExecuted, s.KVSyncDuration, s.SwitchDuration)
	return s
}
