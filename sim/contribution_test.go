package sim

import (
	"math"
	"math/cmplx"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func polar(mag, deg float64) complex128 {
	return cmplx.Rect(mag, deg*math.Pi/180)
}

var _ = Describe("Contribution", func() {
	It("should start with no current and no scheduled update", func() {
		c := NewContribution()

		Expect(c.Current).To(Equal([NumPhases]complex128{}))
		Expect(c.NextUpdate).To(Equal(NoUpdateScheduled))
		Expect(c.HasScheduledUpdate()).To(BeFalse())
	})

	It("should add currents phase by phase", func() {
		into := NewContribution()
		Accumulate(&into, Contribution{
			Current:    [NumPhases]complex128{1, 2i, 3 + 3i},
			NextUpdate: NoUpdateScheduled,
		})
		Accumulate(&into, Contribution{
			Current:    [NumPhases]complex128{-0.5, 1, 1i},
			NextUpdate: NoUpdateScheduled,
		})

		Expect(into.Current).To(Equal([NumPhases]complex128{0.5, 1 + 2i, 3 + 4i}))
	})

	It("should keep the sentinel if nobody schedules an update", func() {
		agg := Fold(NewContribution(), NewContribution(), NewContribution())

		Expect(agg.NextUpdate).To(Equal(NoUpdateScheduled))
	})

	It("should pick the earliest scheduled update", func() {
		agg := Fold(
			Contribution{NextUpdate: NoUpdateScheduled},
			Contribution{NextUpdate: 42},
			Contribution{NextUpdate: 17},
			Contribution{NextUpdate: NoUpdateScheduled},
		)

		Expect(agg.NextUpdate).To(Equal(int32(17)))
		Expect(agg.HasScheduledUpdate()).To(BeTrue())
	})

	It("should not depend on the order of the contributions", func() {
		cs := []Contribution{
			{Current: [NumPhases]complex128{1, 2, 3}, NextUpdate: 30},
			{Current: [NumPhases]complex128{0.5i, -2, 4}, NextUpdate: NoUpdateScheduled},
			{Current: [NumPhases]complex128{-1.25, 8 + 1i, 0}, NextUpdate: 12},
			{Current: [NumPhases]complex128{2, 0.75, -3i}, NextUpdate: 99},
		}
		expected := Fold(cs...)

		orders := [][]int{
			{3, 2, 1, 0},
			{1, 3, 0, 2},
			{2, 0, 3, 1},
		}
		for _, order := range orders {
			permuted := make([]Contribution, 0, len(cs))
			for _, i := range order {
				permuted = append(permuted, cs[i])
			}

			Expect(Fold(permuted...)).To(Equal(expected))
		}
	})

	It("should fold groups the same way as a flat list", func() {
		a := Contribution{Current: [NumPhases]complex128{1, 1, 1}, NextUpdate: 5}
		b := Contribution{Current: [NumPhases]complex128{2i, 2, 0}, NextUpdate: 3}
		c := Contribution{Current: [NumPhases]complex128{-4, 0.5, 8}, NextUpdate: NoUpdateScheduled}

		Expect(Fold(Fold(a, b), c)).To(Equal(Fold(a, Fold(b, c))))
		Expect(Fold(Fold(a, b), c)).To(Equal(Fold(a, b, c)))
	})

	It("should sum polar phasors", func() {
		one := Contribution{
			Current: [NumPhases]complex128{
				polar(1, 0), polar(2, 225), polar(3, 275),
			},
			NextUpdate: NoUpdateScheduled,
		}

		agg := Fold(one, NewContribution(), one)

		Expect(real(agg.Current[0])).To(BeNumerically("~", 2, 1e-9))
		Expect(cmplx.Abs(agg.Current[1])).To(BeNumerically("~", 4, 1e-9))
		Expect(cmplx.Abs(agg.Current[2])).To(BeNumerically("~", 6, 1e-9))
		Expect(agg.NextUpdate).To(Equal(NoUpdateScheduled))
	})
})
