package transition_test

import (
	"math"

	"github.com/envelope-project/laik-go/action"
	"github.com/envelope-project/laik-go/backend"
	"github.com/envelope-project/laik-go/group"
	"github.com/envelope-project/laik-go/mapping"
	"github.com/envelope-project/laik-go/part"
	"github.com/envelope-project/laik-go/reservation"
	"github.com/envelope-project/laik-go/space"
	"github.com/envelope-project/laik-go/transition"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// Scenario 3 (spec.md §8): residual reduce. 100-element array, world
// size 3, element-weighted block with weight w(i)=i. A Sum reduction
// of the squared local differences against a known vector must equal
// the serial reference to within 1 ULP per element accumulated.
//
// This exercises transition.Calc/part.BlockElementWeighted directly
// rather than through container.Container, since the scenario belongs
// to the transition/part packages, not container.
var _ = Describe("residual reduce", func() {
	It("sums squared differences against a known vector to the serial reference", func() {
		const n = 3
		const size = 100

		sp, err := space.New("v", size)
		Expect(err).NotTo(HaveOccurred())
		sumSp, err := space.New("residual", 1)
		Expect(err).NotTo(HaveOccurred())

		// known/target vector and the serial reference computed
		// independently of any partitioning or backend.
		target := make([]float64, size)
		value := make([]float64, size)
		var serial float64
		for i := 0; i < size; i++ {
			value[i] = float64(i)
			target[i] = float64(i)*1.5 + 2.0
			d := value[i] - target[i]
			serial += d * d
		}

		groups := make([]*group.Group, n)
		for r := 0; r < n; r++ {
			g, err := group.World(n, r)
			Expect(err).NotTo(HaveOccurred())
			groups[r] = g
		}

		w := func(idx int64) float64 { return float64(idx) }
		parts := make([]*part.Partitioning, n)
		for r := 0; r < n; r++ {
			p, err := part.Build(part.BlockElementWeighted(0, w), &part.Params{Space: sp, Group: groups[r]})
			Expect(err).NotTo(HaveOccurred())
			parts[r] = p
		}

		// Every process holds its weighted block locally, no network
		// needed: local allocation only, then a plain Go fill.
		maps := make([]*mapping.Mapping, n)
		localSquaredDiff := make([]float64, n)
		for r := 0; r < n; r++ {
			res := reservation.New(sp, 8)
			Expect(res.Add(parts[r])).To(Succeed())
			Expect(res.Alloc()).To(Succeed())
			m, err := res.MappingFor(0)
			Expect(err).NotTo(HaveOccurred())
			maps[r] = m

			var partial float64
			for j := int64(0); j < m.ElemCount(); j++ {
				global := m.Range.From(0) + j
				d := value[global] - target[global]
				partial += d * d
			}
			localSquaredDiff[r] = partial
		}

		// Collective Sum reduce of the per-process partial sums onto
		// every process, via transition.Calc + action.Build directly
		// against backend.SimNet (All->All Sum collapses to one
		// ReduceAll, per transition.Calc's content-based planning).
		allParts := make([]*part.Partitioning, n)
		sumRes := make([]*reservation.Reservation, n)
		for r := 0; r < n; r++ {
			p, err := part.Build(part.All(), &part.Params{Space: sumSp, Group: groups[r]})
			Expect(err).NotTo(HaveOccurred())
			allParts[r] = p
			res := reservation.New(sumSp, 8)
			Expect(res.Add(p)).To(Succeed())
			Expect(res.Alloc()).To(Succeed())
			sumRes[r] = res
			m, err := res.MappingFor(0)
			Expect(err).NotTo(HaveOccurred())
			m.SetFloat64At(0, localSquaredDiff[r])
		}

		backends := backend.NewSimNet(n, false, nil)
		seqs := make([]*action.Sequence, n)
		for r := 0; r < n; r++ {
			plan, err := transition.Calc(sumSp, allParts[r], allParts[r], transition.FlowPreserve, transition.OpSum)
			Expect(err).NotTo(HaveOccurred())
			resolve := func(res *reservation.Reservation) action.MapResolver {
				return func(mapNo int) (*mapping.Mapping, error) { return res.MappingFor(mapNo) }
			}(sumRes[r])
			seq, err := action.Build(r, plan, resolve, nil)
			Expect(err).NotTo(HaveOccurred())
			seqs[r] = seq
		}
		Expect(backend.RunAll(backends, seqs)).To(Succeed())

		ulp := math.Nextafter(serial, math.Inf(1)) - serial
		for r := 0; r < n; r++ {
			m, err := sumRes[r].MappingFor(0)
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Float64At(0)).To(BeNumerically("~", serial, float64(size)*ulp))
		}
	})
})
