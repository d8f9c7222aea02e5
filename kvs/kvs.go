// Package kvs implements the KV store (spec.md §4.J): a sorted
// string->bytes table with an append-only change journal between syncs.
// Grounded on original_source/src/kvs.c's laik_kvs_set/laik_kvs_sync
// semantics, backed by github.com/tidwall/buntdb instead of a
// hand-rolled sorted array+qsort, since the teacher's dependency graph
// already pulls in buntdb transitively via tidwall/btree.
package kvs

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/buntdb"

	"github.com/envelope-project/laik-go/cmn/errs"
	"github.com/envelope-project/laik-go/cmn/nlog"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Store is a synchronous, process-local KV table plus its pending
// change journal (laik_kvs_set/laik_kvs_changes_*).
type Store struct {
	name string
	log  *nlog.Logger
	db   *buntdb.DB

	mu        sync.Mutex
	journal   map[string][]byte // keys changed locally since the last sync
	inSync    bool
	roundSeen map[string][]byte // this round's already-applied values: local journal plus every peer merged so far
}

// New opens an in-memory-backed store (laik_kvs_new); the store never
// persists to disk, matching spec.md §6 "persisted state: none".
func New(name string, log *nlog.Logger) (*Store, error) {
	db, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, errs.Wrap(err, "kvs %q: open", name)
	}
	return &Store{name: name, log: log, db: db, journal: map[string][]byte{}}, nil
}

// Close releases the store's in-memory database.
func (s *Store) Close() error { return s.db.Close() }

// Set stores data under key, returning false if key already holds the
// identical value (laik_kvs_set: "returns false if key is already set to
// given value"). Returns an UpdateConflict error if an in-sync update
// collides with a different value already applied during this very sync.
func (s *Store) Set(key string, data []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, had := s.getLocked(key)
	if had && bytes.Equal(existing, data) {
		if s.log != nil {
			s.log.Infof("kvs %q: set %q (size %d): unchanged", s.name, key, len(data))
		}
		return false, nil
	}
	if s.inSync {
		if seen, ok := s.roundSeen[key]; ok && !bytes.Equal(seen, data) {
			return false, errs.NewUpdateConflict(key)
		}
	}

	if err := s.setLocked(key, data); err != nil {
		return false, err
	}
	if s.log != nil {
		what := "new"
		if had {
			what = "changed"
		}
		s.log.Infof("kvs %q: set %s entry %q (size %d)", s.name, what, key, len(data))
	}
	if !s.inSync {
		s.journal[key] = append([]byte(nil), data...)
	}
	return true, nil
}

// SetString is Set for a string value (laik_kvs_sets).
func (s *Store) SetString(key, str string) (bool, error) {
	return s.Set(key, []byte(str))
}

// SetJSON marshals v with github.com/json-iterator/go and stores the
// result, for structured snapshot values (e.g. published Partitioning
// summaries) rather than raw byte blobs.
func (s *Store) SetJSON(key string, v any) (bool, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return false, errs.Wrap(err, "kvs %q: marshal %q", s.name, key)
	}
	return s.Set(key, b)
}

// Get retrieves key's value (laik_kvs_get).
func (s *Store) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(key)
}

// GetJSON retrieves and unmarshals key's value into v.
func (s *Store) GetJSON(key string, v any) (bool, error) {
	data, ok := s.Get(key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, errs.Wrap(err, "kvs %q: unmarshal %q", s.name, key)
	}
	return true, nil
}

func (s *Store) getLocked(key string) ([]byte, bool) {
	var val string
	err := s.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(key)
		if err != nil {
			return err
		}
		val = v
		return nil
	})
	if err != nil {
		return nil, false
	}
	return []byte(val), true
}

func (s *Store) setLocked(key string, data []byte) error {
	err := s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key, string(data), nil)
		return err
	})
	if err != nil {
		return errs.Wrap(err, "kvs %q: set %q", s.name, key)
	}
	return nil
}

// Count returns the number of entries (laik_kvs_count).
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	_ = s.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend("", func(k, v string) bool { n++; return true })
	})
	return n
}

// Keys returns every key in ascending sorted order (buntdb's default
// index already keeps the table sorted, the Go analogue of kvs.c's
// sorted_upto binary-searchable array).
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	_ = s.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend("", func(k, v string) bool {
			keys = append(keys, k)
			return true
		})
	})
	return keys
}

// Journal returns a snapshot of keys changed locally since the last
// Sync/Merge (the change journal, laik_kvs_changes_*).
func (s *Store) Journal() map[string][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]byte, len(s.journal))
	for k, v := range s.journal {
		out[k] = append([]byte(nil), v...)
	}
	return out
}

// Merge applies a peer's change journal to this store (laik_kvs_changes_
// merge + laik_kvs_changes_apply), collectively invoked during Sync. A
// key this sync round has already seen -- from this store's own
// pending journal, or from a peer merged earlier in the same round --
// with a differing value is an UpdateConflict -- same sync round, two
// different writers (original's "update inconsistency" panic).
//
// Checking only against the local journal would miss a conflict
// between two *other* ranks on a process that never touched the key
// itself: roundSeen accumulates every value applied so far this round
// (seeded from the local journal by Exchange), so whichever peer is
// merged second against a conflicting earlier one trips the check,
// regardless of merge order or which rank is doing the merging. A
// standalone Merge call outside Exchange (no round in progress) seeds
// and discards its own roundSeen from the local journal, preserving the
// original one-shot-against-local-journal behavior.
func (s *Store) Merge(peerJournal map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roundSeen == nil {
		s.roundSeen = cloneJournal(s.journal)
		defer func() { s.roundSeen = nil }()
	}
	// merge-sort by key for deterministic application order, mirroring
	// laik_kvs_changes_merge's strcmp-ordered walk.
	keys := make([]string, 0, len(peerJournal))
	for k := range peerJournal {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := peerJournal[k]
		if seen, ok := s.roundSeen[k]; ok && !bytes.Equal(seen, v) {
			return errs.NewUpdateConflict(k)
		}
		if err := s.setLocked(k, v); err != nil {
			return err
		}
		s.roundSeen[k] = append([]byte(nil), v...)
	}
	return nil
}

func cloneJournal(j map[string][]byte) map[string][]byte {
	out := make(map[string][]byte, len(j))
	for k, v := range j {
		out[k] = append([]byte(nil), v...)
	}
	return out
}

// Exchange performs a collective sync round: enters sync mode, invokes
// exchange with this store's pending journal to obtain every peer's
// journal (the backend's `sync(kvs)` capability, spec.md §4.I), merges
// each one in, then clears the local journal (laik_kvs_sync).
func (s *Store) Exchange(exchange func(local map[string][]byte) ([]map[string][]byte, error)) error {
	s.mu.Lock()
	s.inSync = true
	local := make(map[string][]byte, len(s.journal))
	for k, v := range s.journal {
		local[k] = v
	}
	// seed this round's conflict baseline with the local journal and
	// keep it alive for every Merge call below, so a conflict between
	// two peers neither of which is this process is still caught.
	s.roundSeen = cloneJournal(s.journal)
	if s.log != nil {
		s.log.Infof("kvs %q: sync (propagating %d entries) ...", s.name, len(local))
	}
	s.mu.Unlock()

	peers, err := exchange(local)
	if err != nil {
		s.mu.Lock()
		s.inSync = false
		s.roundSeen = nil
		s.mu.Unlock()
		return err
	}
	for _, peerJournal := range peers {
		if err := s.Merge(peerJournal); err != nil {
			s.mu.Lock()
			s.inSync = false
			s.roundSeen = nil
			s.mu.Unlock()
			return err
		}
	}

	s.mu.Lock()
	s.journal = map[string][]byte{}
	s.inSync = false
	s.roundSeen = nil
	s.mu.Unlock()
	if s.log != nil {
		s.log.Infof("kvs %q: sync done (now %d entries)", s.name, s.Count())
	}
	return nil
}

func (s *Store) String() string {
	return fmt.Sprintf("kvs(%q,%d entries)", s.name, s.Count())
}
