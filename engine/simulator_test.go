package engine

import (
	"context"
	"errors"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/metersim/sim"
)

func contribution(current complex128, next int32) sim.Contribution {
	return sim.Contribution{
		Current:    [sim.NumPhases]complex128{current, 0, 0},
		NextUpdate: next,
	}
}

var _ = Describe("Simulator", func() {
	var (
		mockCtrl  *gomock.Controller
		provider  *MockProvider
		simulator *Simulator
		ctx       context.Context
		voltage   [sim.NumPhases]complex128
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		provider = NewMockProvider(mockCtrl)
		ctx = context.Background()
		voltage = [sim.NumPhases]complex128{230, 0, 0}

		simulator = MakeBuilder().
			WithStartUTC(1_700_000_000).
			WithVoltage(voltage).
			Build()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should hand out a limited number of slots", func() {
		handles := make([]sim.Handle, 0, MaxProviders)
		for i := 0; i < MaxProviders; i++ {
			h, err := simulator.Open(provider)
			Expect(err).NotTo(HaveOccurred())
			handles = append(handles, h)
		}

		_, err := simulator.Open(provider)
		Expect(err).To(MatchError(ErrNoFreeSlot))

		handles[3].Close()
		handles[3].Close()
		Expect(simulator.NumProviders()).To(Equal(MaxProviders - 1))

		_, err = simulator.Open(provider)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should ask a new provider for its current right away", func() {
		_, err := simulator.Open(provider)
		Expect(err).NotTo(HaveOccurred())

		provider.EXPECT().
			Request(gomock.Any(), sim.Snapshot{
				Voltage: voltage,
				Now:     0,
				NowUTC:  1_700_000_000,
			}).
			Return(contribution(2, sim.NoUpdateScheduled), nil)

		Expect(simulator.StepForward(ctx, 0)).To(Succeed())

		Expect(simulator.Current()[0]).To(Equal(complex128(2)))
		Expect(simulator.NextUpdate()).To(Equal(sim.NoUpdateScheduled))
	})

	It("should stop at the scheduled updates", func() {
		_, err := simulator.Open(provider)
		Expect(err).NotTo(HaveOccurred())

		var seen []int32
		provider.EXPECT().Request(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, s sim.Snapshot) (sim.Contribution, error) {
				seen = append(seen, s.Now)
				Expect(s.NowUTC).To(Equal(1_700_000_000 + int64(s.Now)))

				if s.Now < 20 {
					return contribution(1, s.Now+10), nil
				}

				return contribution(1, sim.NoUpdateScheduled), nil
			}).Times(3)

		hook := NewMockHook(mockCtrl)
		simulator.AcceptHook(hook)
		hook.EXPECT().Func(gomock.Any()).Times(2).Do(func(ctx sim.HookCtx) {
			step := ctx.Item.(*Step)
			Expect(step.From).To(BeZero())
			Expect(step.To).To(Equal(int32(25)))

			if ctx.Pos == HookPosAfterStep {
				Expect(step.Requests).To(Equal(3))
				Expect(step.Err).NotTo(HaveOccurred())
			}
		})

		Expect(simulator.StepForward(ctx, 25)).To(Succeed())

		Expect(seen).To(Equal([]int32{0, 10, 20}))
		Expect(simulator.Uptime()).To(Equal(int32(25)))
		Expect(simulator.TimeUTC()).To(Equal(int64(1_700_000_025)))
	})

	It("should not ask twice for the same second", func() {
		_, err := simulator.Open(provider)
		Expect(err).NotTo(HaveOccurred())

		provider.EXPECT().Request(gomock.Any(), gomock.Any()).
			Return(contribution(1, sim.UpdateNeededNow), nil).
			Times(3)

		Expect(simulator.StepForward(ctx, 2)).To(Succeed())
		Expect(simulator.NextUpdate()).To(Equal(int32(3)))
	})

	It("should ask all the providers together", func() {
		other := NewMockProvider(mockCtrl)
		_, err := simulator.Open(provider)
		Expect(err).NotTo(HaveOccurred())
		_, err = simulator.Open(other)
		Expect(err).NotTo(HaveOccurred())

		provider.EXPECT().Request(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, s sim.Snapshot) (sim.Contribution, error) {
				if s.Now == 0 {
					return contribution(1, 5), nil
				}

				return contribution(1, sim.NoUpdateScheduled), nil
			}).Times(2)
		other.EXPECT().Request(gomock.Any(), gomock.Any()).
			Return(contribution(2, sim.NoUpdateScheduled), nil).
			Times(2)

		Expect(simulator.StepForward(ctx, 10)).To(Succeed())
		Expect(simulator.Current()[0]).To(Equal(complex128(3)))
	})

	It("should ask again when the voltage changes", func() {
		_, err := simulator.Open(provider)
		Expect(err).NotTo(HaveOccurred())

		provider.EXPECT().Request(gomock.Any(), gomock.Any()).
			Return(contribution(1, sim.NoUpdateScheduled), nil)
		Expect(simulator.StepForward(ctx, 0)).To(Succeed())

		dip := [sim.NumPhases]complex128{200, 0, 0}
		provider.EXPECT().
			Request(gomock.Any(), sim.Snapshot{
				Voltage: dip,
				Now:     0,
				NowUTC:  1_700_000_000,
			}).
			Return(contribution(0.5, sim.NoUpdateScheduled), nil)
		simulator.SetVoltage(dip)
		Expect(simulator.StepForward(ctx, 0)).To(Succeed())

		Expect(simulator.Current()[0]).To(Equal(complex128(0.5)))
		Expect(simulator.Voltage()).To(Equal(dip))
	})

	It("should take updates pushed by the provider", func() {
		h, err := simulator.Open(provider)
		Expect(err).NotTo(HaveOccurred())
		provider.EXPECT().Request(gomock.Any(), gomock.Any()).
			Return(contribution(1, sim.NoUpdateScheduled), nil)
		Expect(simulator.StepForward(ctx, 4)).To(Succeed())

		h.Update(contribution(7, 2))

		Expect(h.Uptime()).To(Equal(int32(4)))
		Expect(simulator.Current()[0]).To(Equal(complex128(7)))
		Expect(simulator.NextUpdate()).To(Equal(int32(5)))
	})

	It("should keep an update pushed while its request is in flight", func() {
		h, err := simulator.Open(provider)
		Expect(err).NotTo(HaveOccurred())
		provider.EXPECT().Request(gomock.Any(), gomock.Any()).
			DoAndReturn(func(context.Context, sim.Snapshot) (sim.Contribution, error) {
				h.Update(contribution(5, sim.NoUpdateScheduled))
				return contribution(0, sim.NoUpdateScheduled), nil
			})

		Expect(simulator.StepForward(ctx, 4)).To(Succeed())

		Expect(simulator.Current()[0]).To(Equal(complex128(5)))
		Expect(simulator.NextUpdate()).To(Equal(sim.NoUpdateScheduled))
		Expect(h.(sim.UTCTeller).TimeUTC()).To(Equal(int64(1_700_000_004)))
	})

	It("should ask again after a voltage change despite a pushed update", func() {
		h, err := simulator.Open(provider)
		Expect(err).NotTo(HaveOccurred())
		provider.EXPECT().Request(gomock.Any(), gomock.Any()).
			Return(contribution(1, sim.NoUpdateScheduled), nil)
		Expect(simulator.StepForward(ctx, 4)).To(Succeed())

		dip := [sim.NumPhases]complex128{180, 0, 0}
		simulator.SetVoltage(dip)
		h.Update(contribution(2, sim.NoUpdateScheduled))

		Expect(simulator.NextUpdate()).To(Equal(sim.UpdateNeededNow))

		provider.EXPECT().Request(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, snapshot sim.Snapshot) (sim.Contribution, error) {
				Expect(snapshot.Voltage).To(Equal(dip))
				return contribution(3, sim.NoUpdateScheduled), nil
			})
		Expect(simulator.StepForward(ctx, 0)).To(Succeed())
		Expect(simulator.Current()[0]).To(Equal(complex128(3)))
		Expect(simulator.NextUpdate()).To(Equal(sim.NoUpdateScheduled))
	})

	It("should report failing providers", func() {
		_, err := simulator.Open(provider)
		Expect(err).NotTo(HaveOccurred())
		provider.EXPECT().Request(gomock.Any(), gomock.Any()).
			Return(sim.NewContribution(), sim.ErrShutdown)

		err = simulator.StepForward(ctx, 3)

		Expect(errors.Is(err, sim.ErrShutdown)).To(BeTrue())
	})

	It("should not step backwards", func() {
		Expect(simulator.StepForward(ctx, -1)).To(MatchError(ErrNegativeStep))
	})

	It("should not let the uptime overflow", func() {
		Expect(simulator.StepForward(ctx, 10)).To(Succeed())

		err := simulator.StepForward(ctx, math.MaxInt32)

		Expect(err).To(MatchError(ErrUptimeOverflow))
		Expect(simulator.Uptime()).To(Equal(int32(10)))

		Expect(simulator.StepForward(ctx, math.MaxInt32-10)).To(Succeed())
		Expect(simulator.Uptime()).To(Equal(int32(math.MaxInt32)))
	})

	It("should refuse manual steps while a runner is active", func() {
		simulator.runnerActive.Store(true)

		Expect(simulator.StepForward(ctx, 1)).To(MatchError(ErrRunnerActive))
	})

	It("should integrate the active energy", func() {
		simulator.SetVoltage([sim.NumPhases]complex128{230, 230i, 0})
		_, err := simulator.Open(provider)
		Expect(err).NotTo(HaveOccurred())
		provider.EXPECT().Request(gomock.Any(), gomock.Any()).
			Return(sim.Contribution{
				Current:    [sim.NumPhases]complex128{2, 2, 0},
				NextUpdate: sim.NoUpdateScheduled,
			}, nil)

		Expect(simulator.StepForward(ctx, 1800)).To(Succeed())

		energy := simulator.Energy()
		Expect(energy[0]).To(BeNumerically("~", 230, 1e-9))
		Expect(energy[1]).To(BeNumerically("~", 0, 1e-9))
	})

	It("should move the UTC time", func() {
		Expect(simulator.StepForward(ctx, 10)).To(Succeed())

		simulator.SetTimeUTC(2_000_000_000)

		Expect(simulator.TimeUTC()).To(Equal(int64(2_000_000_000)))
		Expect(simulator.StartUTC()).To(Equal(int64(1_999_999_990)))
	})
})
