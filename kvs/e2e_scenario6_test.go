package kvs_test

import (
	"errors"
	"sync"

	"github.com/envelope-project/laik-go/backend"
	"github.com/envelope-project/laik-go/cmn/errs"
	"github.com/envelope-project/laik-go/kvs"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// runSync calls backends[r].Sync(stores[r]) on its own goroutine for
// every rank and returns every rank's error, since SimNet's sync
// rendezvous blocks until every rank shows up for the same round.
func runSync(backends []*backend.SimNet, stores []*kvs.Store) []error {
	n := len(backends)
	var wg sync.WaitGroup
	out := make([]error, n)
	wg.Add(n)
	for r := 0; r < n; r++ {
		r := r
		go func() {
			defer wg.Done()
			out[r] = backends[r].Sync(stores[r])
		}()
	}
	wg.Wait()
	return out
}

// Scenario 6 (spec.md §8): KV sync conflict. Two processes set key
// "x" to "A" and "B" respectively between syncs; sync() must raise
// UpdateConflict. If both set "x" to "A", sync succeeds and every
// process reads "A".
var _ = Describe("kv sync conflict", func() {
	It("raises UpdateConflict when two processes set the same key differently", func() {
		const n = 2
		backends := backend.NewSimNet(n, false, nil)
		stores := make([]*kvs.Store, n)
		for r := 0; r < n; r++ {
			s, err := kvs.New("conflict", nil)
			Expect(err).NotTo(HaveOccurred())
			stores[r] = s
		}

		_, err := stores[0].SetString("x", "A")
		Expect(err).NotTo(HaveOccurred())
		_, err = stores[1].SetString("x", "B")
		Expect(err).NotTo(HaveOccurred())

		errsOut := runSync(backends, stores)
		var sawConflict bool
		for _, e := range errsOut {
			if e == nil {
				continue
			}
			Expect(errors.Is(e, errs.ErrUpdateConflict)).To(BeTrue())
			sawConflict = true
		}
		Expect(sawConflict).To(BeTrue())
	})

	It("succeeds when both processes set the same key to the same value", func() {
		const n = 2
		backends := backend.NewSimNet(n, false, nil)
		stores := make([]*kvs.Store, n)
		for r := 0; r < n; r++ {
			s, err := kvs.New("agree", nil)
			Expect(err).NotTo(HaveOccurred())
			stores[r] = s
		}

		_, err := stores[0].SetString("x", "A")
		Expect(err).NotTo(HaveOccurred())
		_, err = stores[1].SetString("x", "A")
		Expect(err).NotTo(HaveOccurred())

		for _, e := range runSync(backends, stores) {
			Expect(e).NotTo(HaveOccurred())
		}

		for r := 0; r < n; r++ {
			v, ok := stores[r].Get("x")
			Expect(ok).To(BeTrue())
			Expect(string(v)).To(Equal("A"))
		}
	})

	// Scenario 6, extended to n=3: the two writers are ranks 0 and 1;
	// rank 2 never touches "x" itself, so a conflict check that only
	// compares an incoming peer value against this store's own pending
	// journal would let rank 2 silently apply whichever of the two
	// conflicting values it happens to merge last.
	It("raises UpdateConflict on the bystander rank too, not just the two writers", func() {
		const n = 3
		backends := backend.NewSimNet(n, false, nil)
		stores := make([]*kvs.Store, n)
		for r := 0; r < n; r++ {
			s, err := kvs.New("conflict3", nil)
			Expect(err).NotTo(HaveOccurred())
			stores[r] = s
		}

		_, err := stores[0].SetString("x", "A")
		Expect(err).NotTo(HaveOccurred())
		_, err = stores[1].SetString("x", "B")
		Expect(err).NotTo(HaveOccurred())
		// rank 2 never writes "x"

		errsOut := runSync(backends, stores)
		for r, e := range errsOut {
			Expect(e).To(HaveOccurred(), "rank %d: want UpdateConflict, got nil", r)
			Expect(errors.Is(e, errs.ErrUpdateConflict)).To(BeTrue())
		}
	})
})
