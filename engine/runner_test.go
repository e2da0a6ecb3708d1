package engine

import (
	"context"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/metersim/sim"
)

type manualTime struct {
	now atomic.Int64
}

func (t *manualTime) Unix() int64 { return t.now.Load() }

var _ = Describe("Runner", func() {
	var (
		mockCtrl  *gomock.Controller
		source    *manualTime
		simulator *Simulator
		runner    *Runner
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		source = &manualTime{}
		source.now.Store(1000)

		simulator = MakeBuilder().WithStartUTC(1000).Build()
		runner = MakeRunnerBuilder().
			WithTimeSource(source).
			WithPollInterval(time.Millisecond).
			Build(simulator)
	})

	AfterEach(func() {
		runner.Stop()
		mockCtrl.Finish()
	})

	It("should follow the time source", func() {
		Expect(runner.Start()).To(Succeed())
		Expect(runner.IsRunning()).To(BeTrue())

		source.now.Store(1030)

		Eventually(simulator.Uptime).Should(Equal(int32(30)))
	})

	It("should not go back in time", func() {
		source.now.Store(1010)
		Expect(runner.Start()).To(Succeed())
		Eventually(simulator.Uptime).Should(Equal(int32(10)))

		source.now.Store(1005)

		Consistently(simulator.Uptime, 50*time.Millisecond).
			Should(Equal(int32(10)))
	})

	It("should serve updates due at the current second", func() {
		provider := NewMockProvider(mockCtrl)
		_, err := simulator.Open(provider)
		Expect(err).NotTo(HaveOccurred())

		requested := make(chan struct{})
		provider.EXPECT().Request(gomock.Any(), gomock.Any()).
			DoAndReturn(func(context.Context, sim.Snapshot) (sim.Contribution, error) {
				close(requested)
				return sim.NewContribution(), nil
			})

		Expect(runner.Start()).To(Succeed())

		Eventually(requested).Should(BeClosed())
	})

	It("should lock out manual steps until stopped", func() {
		Expect(runner.Start()).To(Succeed())
		Expect(simulator.StepForward(context.Background(), 1)).
			To(MatchError(ErrRunnerActive))

		runner.Stop()

		Expect(runner.IsRunning()).To(BeFalse())
		Expect(simulator.StepForward(context.Background(), 1)).To(Succeed())
	})

	It("should not run twice", func() {
		other := MakeRunnerBuilder().WithTimeSource(source).Build(simulator)

		Expect(runner.Start()).To(Succeed())
		Expect(runner.Start()).To(MatchError(ErrRunnerActive))
		Expect(other.Start()).To(MatchError(ErrRunnerActive))
	})

	It("should abandon a request on stop", func() {
		provider := NewMockProvider(mockCtrl)
		_, err := simulator.Open(provider)
		Expect(err).NotTo(HaveOccurred())

		entered := make(chan struct{})
		provider.EXPECT().Request(gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, _ sim.Snapshot) (sim.Contribution, error) {
				close(entered)
				<-ctx.Done()
				return sim.NewContribution(), ctx.Err()
			})

		Expect(runner.Start()).To(Succeed())
		Eventually(entered).Should(BeClosed())

		runner.Stop()

		Expect(runner.IsRunning()).To(BeFalse())
	})
})
