// Package instance implements the top-level entry point (component
// [ADDED] instance): Init/World/Finalize/AllowWorldResize, environment
// parsing, and the wiring of group, kvs, backend and container that
// every application built on this runtime starts from. Grounded on
// spec.md §6 and original_source/examples/jac1d.c's laik_init/
// laik_world/laik_finalize call sequence.
package instance

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/envelope-project/laik-go/action"
	"github.com/envelope-project/laik-go/backend"
	"github.com/envelope-project/laik-go/cmn/metrics"
	"github.com/envelope-project/laik-go/cmn/nlog"
	"github.com/envelope-project/laik-go/container"
	"github.com/envelope-project/laik-go/group"
	"github.com/envelope-project/laik-go/kvs"
	"github.com/envelope-project/laik-go/space"
)

// Instance is the process-wide handle Init returns: one backend, one
// world group, one kvs.Store, and every container created against it
// (tracked so AllowWorldResize can migrate them when membership
// changes).
type Instance struct {
	mu sync.Mutex

	args    []string
	g       *group.Group
	backend backend.Backend
	store   *kvs.Store
	metrics *metrics.Set
	log     *nlog.Logger

	containers []*container.Container
}

// initMu/initialized guard against a second concurrent Init in the
// same process (spec.md §9 design note): laik_init is meant to run
// once per process, and a second call returns an error instead of
// silently clobbering the first instance's state.
var (
	initMu      sync.Mutex
	initialized bool
)

// Init builds the process' Instance: parses LAIK_LOG/LAIK_LOG_FILE into
// a logger, LAIK_SIZE into an expected world size (checked against the
// backend's actual size), and wires up backend.Local, the process'
// world group, and its kvs.Store. args mirrors the (argc,argv) laik_init
// historically forwarded to the transport's own init call; this module
// ships no real network backend, so args is recorded on the Instance
// (Args) but otherwise unused.
func Init(args ...string) (*Instance, error) {
	initMu.Lock()
	defer initMu.Unlock()
	if initialized {
		return nil, fmt.Errorf("instance: Init called twice in this process without an intervening Finalize")
	}

	log, err := nlog.FromEnv(0)
	if err != nil {
		return nil, err
	}

	size := 1
	if s := os.Getenv("LAIK_SIZE"); s != "" {
		n, convErr := strconv.Atoi(s)
		if convErr != nil || n <= 0 {
			return nil, fmt.Errorf("instance: invalid LAIK_SIZE %q: want a positive integer", s)
		}
		size = n
	}

	b := backend.NewLocal(log)

	g, err := group.World(size, 0)
	if err != nil {
		return nil, err
	}
	if err := b.UpdateGroup(g); err != nil {
		return nil, err
	}
	log.SetLocationID(g.MyID())

	store, err := kvs.New("instance", log)
	if err != nil {
		return nil, err
	}

	m := metrics.NewSet()

	nlog.SetDefault(log)
	initialized = true

	return &Instance{
		args:    append([]string(nil), args...),
		g:       g,
		backend: b,
		store:   store,
		metrics: m,
		log:     log,
	}, nil
}

// Args returns the arguments Init was called with.
func (i *Instance) Args() []string { return append([]string(nil), i.args...) }

// World returns the instance's current process group (laik_world).
// AllowWorldResize replaces it in place, so callers should re-fetch
// World after every resize round rather than caching the pointer.
func (i *Instance) World() *group.Group {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.g
}

// Store returns the instance's key-value store, the target of Sync.
func (i *Instance) Store() *kvs.Store { return i.store }

// Metrics returns the instance's metric registry.
func (i *Instance) Metrics() *metrics.Set { return i.metrics }

// Log returns the instance's logger.
func (i *Instance) Log() *nlog.Logger { return i.log }

// Backend returns the instance's backend, for callers that need to
// drive it directly (e.g. a second Sync outside a container's
// lifecycle).
func (i *Instance) Backend() backend.Backend { return i.backend }

// NewContainer builds a container over sp, owned by this instance's
// current world group and backend, and registers it so a future
// AllowWorldResize migrates its partitioning along with the rest.
func (i *Instance) NewContainer(sp *space.Space, elemSize int, codec action.Codec) (*container.Container, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	c, err := container.New(sp, i.g, i.backend, elemSize, codec, i.metrics, i.log)
	if err != nil {
		return nil, err
	}
	i.containers = append(i.containers, c)
	return c, nil
}

// Sync runs one collective merge of the instance's kvs.Store journal
// against every other process (laik_kv_sync equivalent).
func (i *Instance) Sync() error {
	i.mu.Lock()
	b, store := i.backend, i.store
	i.mu.Unlock()
	return b.Sync(store)
}

// AllowWorldResize implements allow_world_resize (spec.md §6, §4.J
// supplemented): it probes the backend's StatusCheck, and if any
// process is reported faulted, shrinks the world group to exclude it,
// lets the backend adjust further via EliminateNodes, migrates every
// tracked container's partitioning onto the new group, and returns it.
// iter identifies this resize round for logging only; the backend is
// not expected to use it. A StatusCheck reporting zero faults returns
// the instance's current group unchanged.
func (i *Instance) AllowWorldResize(iter int) (*group.Group, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	status, faults, err := i.backend.StatusCheck(i.g)
	if err != nil {
		return nil, err
	}
	if faults == 0 {
		return i.g, nil
	}

	var toRemove []int
	for proc, st := range status {
		if st == backend.StatusFault {
			toRemove = append(toRemove, proc)
		}
	}
	shrunk, err := i.g.Shrink(toRemove)
	if err != nil {
		return nil, err
	}
	final, err := i.backend.EliminateNodes(i.g, shrunk, status)
	if err != nil {
		return nil, err
	}
	if err := i.backend.UpdateGroup(final); err != nil {
		return nil, err
	}

	for _, c := range i.containers {
		if err := c.Migrate(final); err != nil {
			return nil, err
		}
	}

	i.g = final
	if i.log != nil {
		i.log.Infof("instance: world resize iter %d: %d process(es) removed, new size %d", iter, len(toRemove), final.Size())
	}
	return final, nil
}

// Finalize tears down the instance's backend and kvs.Store and clears
// the package-level re-init guard, letting a later test or a
// restarted process call Init again.
func (i *Instance) Finalize() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	backendErr := i.backend.Finalize()
	storeErr := i.store.Close()

	initMu.Lock()
	initialized = false
	initMu.Unlock()

	if backendErr != nil {
		return backendErr
	}
	return storeErr
}
