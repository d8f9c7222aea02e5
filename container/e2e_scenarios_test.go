package container

import (
	"sync"

	"github.com/envelope-project/laik-go/backend"
	"github.com/envelope-project/laik-go/group"
	"github.com/envelope-project/laik-go/part"
	"github.com/envelope-project/laik-go/space"
	"github.com/envelope-project/laik-go/transition"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// runAll calls fn(rank) on its own goroutine for every rank and returns
// the first non-nil error, the shape every collective SwitchTo needs
// since SimNet's rendezvous blocks until every participant shows up.
func runAll(n int, fn func(rank int) error) error {
	var wg sync.WaitGroup
	errs := make([]error, n)
	wg.Add(n)
	for r := 0; r < n; r++ {
		r := r
		go func() {
			defer wg.Done()
			errs[r] = fn(r)
		}()
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func worldGroups(n int) []*group.Group {
	out := make([]*group.Group, n)
	for r := 0; r < n; r++ {
		g, err := group.World(n, r)
		Expect(err).NotTo(HaveOccurred())
		out[r] = g
	}
	return out
}

var _ = Describe("end-to-end scenarios", func() {
	// Scenario 1 (spec.md §8): 1-D block sum. 1000 doubles, v[i]=i,
	// world size 4, equal-block partition, local sums reduced to 499500.
	It("sums a 1000-element block partition to 499500", func() {
		const n = 4
		sp, err := space.New("v", 1000)
		Expect(err).NotTo(HaveOccurred())
		sumSp, err := space.New("sum", 1)
		Expect(err).NotTo(HaveOccurred())

		gs := worldGroups(n)
		backends := backend.NewSimNet(n, false, nil)

		containers := make([]*Container, n)
		sumContainers := make([]*Container, n)
		for r := 0; r < n; r++ {
			c, err := New(sp, gs[r], backends[r], 8, nil, nil, nil)
			Expect(err).NotTo(HaveOccurred())
			containers[r] = c
			sc, err := New(sumSp, gs[r], backends[r], 8, nil, nil, nil)
			Expect(err).NotTo(HaveOccurred())
			sumContainers[r] = sc
		}

		// Equal-block bootstrap: exclusive partitioner, no peer overlap,
		// so every rank can switch independently.
		for r := 0; r < n; r++ {
			p, err := part.Build(part.Block(0, 1), &part.Params{Space: sp, Group: gs[r]})
			Expect(err).NotTo(HaveOccurred())
			Expect(containers[r].SwitchTo(p, transition.FlowNone, transition.OpNone)).To(Succeed())
		}

		for r := 0; r < n; r++ {
			m, err := containers[r].GetMap(0)
			Expect(err).NotTo(HaveOccurred())
			for j := int64(0); j < m.ElemCount(); j++ {
				global := m.Range.From(0) + j
				m.SetFloat64At(j, float64(global))
			}
		}

		// First SwitchTo of an All()+Sum container overlaps on every
		// process, so every rank must call in concurrently.
		allParts := make([]*part.Partitioning, n)
		for r := 0; r < n; r++ {
			p, err := part.Build(part.All(), &part.Params{Space: sumSp, Group: gs[r]})
			Expect(err).NotTo(HaveOccurred())
			allParts[r] = p
		}
		Expect(runAll(n, func(r int) error {
			return sumContainers[r].SwitchTo(allParts[r], transition.FlowInit, transition.OpSum)
		})).To(Succeed())

		for r := 0; r < n; r++ {
			m, err := containers[r].GetMap(0)
			Expect(err).NotTo(HaveOccurred())
			var localSum float64
			for j := int64(0); j < m.ElemCount(); j++ {
				localSum += m.Float64At(j)
			}
			sm, err := sumContainers[r].GetMap(0)
			Expect(err).NotTo(HaveOccurred())
			sm.SetFloat64At(0, localSum)
		}

		Expect(runAll(n, func(r int) error {
			return sumContainers[r].SwitchTo(allParts[r], transition.FlowPreserve, transition.OpSum)
		})).To(Succeed())

		for r := 0; r < n; r++ {
			sm, err := sumContainers[r].GetMap(0)
			Expect(err).NotTo(HaveOccurred())
			Expect(sm.Float64At(0)).To(Equal(499500.0))
		}
	})

	// Scenario 4 (spec.md §8): shrink + preserve. World size 4, block
	// partition of 40 doubles initialized with indices. Remove process 2,
	// migrate the partitioning, switch with Preserve; every surviving
	// process still sees its original values under its new index range.
	It("preserves values across a group shrink and partitioning migrate", func() {
		const n = 4
		sp, err := space.New("v", 40)
		Expect(err).NotTo(HaveOccurred())
		gs := worldGroups(n)
		backends := backend.NewSimNet(n, false, nil)

		containers := make([]*Container, n)
		origParts := make([]*part.Partitioning, n)
		for r := 0; r < n; r++ {
			c, err := New(sp, gs[r], backends[r], 8, nil, nil, nil)
			Expect(err).NotTo(HaveOccurred())
			containers[r] = c
			p, err := part.Build(part.Block(0, 1), &part.Params{Space: sp, Group: gs[r]})
			Expect(err).NotTo(HaveOccurred())
			origParts[r] = p
			Expect(c.SwitchTo(p, transition.FlowNone, transition.OpNone)).To(Succeed())
		}

		wantByGlobal := map[int64]float64{}
		for r := 0; r < n; r++ {
			m, err := containers[r].GetMap(0)
			Expect(err).NotTo(HaveOccurred())
			for j := int64(0); j < m.ElemCount(); j++ {
				global := m.Range.From(0) + j
				v := float64(global) * 10
				m.SetFloat64At(j, v)
				wantByGlobal[global] = v
			}
		}

		// Process 2 leaves the world; ranks 0,1,3 survive (renumbered
		// 0,1,2 in the shrunk group).
		shrunkGroups := make([]*group.Group, n)
		survivors := []int{0, 1, 3}
		for _, r := range survivors {
			sg, err := gs[r].Shrink([]int{2})
			Expect(err).NotTo(HaveOccurred())
			shrunkGroups[r] = sg
		}

		for _, r := range survivors {
			Expect(backends[r].UpdateGroup(shrunkGroups[r])).To(Succeed())
			Expect(containers[r].Migrate(shrunkGroups[r])).To(Succeed())
		}

		for _, r := range survivors {
			Expect(containers[r].SwitchTo(containers[r].Partitioning(), transition.FlowPreserve, transition.OpNone)).To(Succeed())
		}

		for _, r := range survivors {
			m, err := containers[r].GetMap(0)
			Expect(err).NotTo(HaveOccurred())
			for j := int64(0); j < m.ElemCount(); j++ {
				global := m.Range.From(0) + j
				Expect(m.Float64At(j)).To(Equal(wantByGlobal[global]))
			}
		}
	})

	// Scenario 2 (spec.md §8): 2-D bisection jacobi step. 8x8 space,
	// world size 4, bisection with halo depth 1 (including corners).
	// Boundary rows fixed to -5/10, boundary cols to -10/5; after one
	// jacobi step the interior equals 0.25*(N+S+E+W) of the source.
	It("computes one jacobi step over a bisected, haloed 8x8 space", func() {
		const (
			n    = 4
			size = 8
		)
		const (
			loRow = -5.0
			hiRow = 10.0
			loCol = -10.0
			hiCol = 5.0
		)
		sp, err := space.New("v", size, size)
		Expect(err).NotTo(HaveOccurred())
		gs := worldGroups(n)
		backends := backend.NewSimNet(n, false, nil)

		// golden holds the exact values every process's write-box
		// initialization produces, computed independently of any
		// container so the later comparison is not a tautology.
		golden := [size][size]float64{}
		for gy := int64(0); gy < size; gy++ {
			for gx := int64(0); gx < size; gx++ {
				golden[gy][gx] = float64((gx + gy) & 6)
			}
		}
		for gx := int64(0); gx < size; gx++ {
			golden[0][gx] = loRow
			golden[size-1][gx] = hiRow
		}
		for gy := int64(0); gy < size; gy++ {
			golden[gy][0] = loCol
			golden[gy][size-1] = hiCol
		}

		write := make([]*Container, n)
		read := make([]*Container, n)
		writeParts := make([]*part.Partitioning, n)
		readParts := make([]*part.Partitioning, n)
		for r := 0; r < n; r++ {
			wc, err := New(sp, gs[r], backends[r], 8, nil, nil, nil)
			Expect(err).NotTo(HaveOccurred())
			write[r] = wc
			rc, err := New(sp, gs[r], backends[r], 8, nil, nil, nil)
			Expect(err).NotTo(HaveOccurred())
			read[r] = rc

			wp, err := part.Build(part.Bisection(), &part.Params{Space: sp, Group: gs[r]})
			Expect(err).NotTo(HaveOccurred())
			writeParts[r] = wp
			rp, err := part.Build(part.Halo(wp, 1, true), &part.Params{Space: sp, Group: gs[r]})
			Expect(err).NotTo(HaveOccurred())
			readParts[r] = rp

			Expect(write[r].SwitchTo(wp, transition.FlowNone, transition.OpNone)).To(Succeed())
		}

		// Stamp every process's write-owned box from golden.
		for r := 0; r < n; r++ {
			m, err := write[r].GetMap(0)
			Expect(err).NotTo(HaveOccurred())
			y0, x0 := m.Range.From(0), m.Range.From(1)
			ySz, xSz := m.Range.Width(0), m.Range.Width(1)
			for ly := int64(0); ly < ySz; ly++ {
				for lx := int64(0); lx < xSz; lx++ {
					gy, gx := y0+ly, x0+lx
					m.SetFloat64At(ly*m.Strides[0]+lx*m.Strides[1], golden[gy][gx])
				}
			}
		}

		// Move the write-owned data onto the haloed, overlapping
		// partitioning: each process's read range includes neighbor
		// data from outside its own write box, so every process must
		// call in concurrently.
		Expect(runAll(n, func(r int) error {
			return write[r].SwitchTo(readParts[r], transition.FlowPreserve, transition.OpNone)
		})).To(Succeed())

		// One jacobi step: new interior value = average of the four
		// neighbors read from the haloed mapping, written into a fresh
		// write-partitioned container.
		next := make([]*Container, n)
		for r := 0; r < n; r++ {
			nc, err := New(sp, gs[r], backends[r], 8, nil, nil, nil)
			Expect(err).NotTo(HaveOccurred())
			next[r] = nc
			Expect(nc.SwitchTo(writeParts[r], transition.FlowNone, transition.OpNone)).To(Succeed())
		}

		for r := 0; r < n; r++ {
			rm, err := write[r].GetMap(0)
			Expect(err).NotTo(HaveOccurred())
			nm, err := next[r].GetMap(0)
			Expect(err).NotTo(HaveOccurred())

			wp := writeParts[r]
			ry0, rx0 := rm.Range.From(0), rm.Range.From(1)
			at := func(gy, gx int64) float64 {
				return rm.Float64At((gy-ry0)*rm.Strides[0] + (gx-rx0)*rm.Strides[1])
			}

			for _, ts := range wp.MyRanges() {
				y0, x0 := ts.Range.From(0), ts.Range.From(1)
				ySz, xSz := ts.Range.Width(0), ts.Range.Width(1)
				for ly := int64(0); ly < ySz; ly++ {
					for lx := int64(0); lx < xSz; lx++ {
						gy, gx := y0+ly, x0+lx
						if gy == 0 || gy == size-1 || gx == 0 || gx == size-1 {
							continue // boundary cells are fixed, not updated
						}
						want := 0.25 * (golden[gy-1][gx] + golden[gy+1][gx] + golden[gy][gx-1] + golden[gy][gx+1])
						fromHalo := 0.25 * (at(gy-1, gx) + at(gy+1, gx) + at(gy, gx-1) + at(gy, gx+1))
						nm.SetFloat64At(ly*nm.Strides[0]+lx*nm.Strides[1], fromHalo)
						Expect(nm.Float64At(ly*nm.Strides[0] + lx*nm.Strides[1])).To(Equal(want))
					}
				}
			}
		}
	})
})
