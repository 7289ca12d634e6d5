package host_test

import (
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/openufs/ufshost/host"
	"github.com/openufs/ufshost/hw"
	"github.com/openufs/ufshost/hw/simdev"
	"github.com/openufs/ufshost/ufs"
)

// countingHooks counts full reset attempts.
type countingHooks struct {
	host.NopHooks
	resets int32
}

func (h *countingHooks) DeviceResetNotify(stage host.HookStage) error {
	if stage == host.PreChange {
		atomic.AddInt32(&h.resets, 1)
	}
	return nil
}

func (h *countingHooks) count() int32 {
	return atomic.LoadInt32(&h.resets)
}

var _ = Describe("Error Recovery", func() {
	var (
		c     *host.Controller
		dev   *simdev.Device
		hooks *countingHooks
	)

	BeforeEach(func() {
		hooks = &countingHooks{}
		c, dev = startController(func(b host.Builder) host.Builder {
			return b.
				WithHooks(hooks).
				WithNacRecoveryDelay(5 * time.Millisecond)
		})
	})

	AfterEach(func() {
		c.Stop()
	})

	It("should clear a lone data-link NAC without a reset", func() {
		dev.InjectUICError(hw.RegUICErrorDL, hw.DLNacReceived)

		Eventually(func() []host.ErrorEntry {
			return c.ErrorHistory(host.ErrDataLink)
		}).ShouldNot(BeEmpty())
		Eventually(c.DriverState).Should(Equal(ufs.DriverStateOperational))
		Consistently(c.DriverState, 50*time.Millisecond).
			Should(Equal(ufs.DriverStateOperational))

		Expect(c.ResetCount()).To(Equal(0))
	})

	It("should reclaim wedged commands from a non-fatal error without a reset", func() {
		// The device holds the tag forever; the stuck command rides the
		// non-fatal error handling and comes back through the clear
		// register.
		dev.DropTag(0)
		cmd := readCmd(0)
		Expect(c.Submit(cmd)).To(Succeed())

		dev.InjectUICError(hw.RegUICErrorPA, 1)

		Eventually(cmd.Done, 3*time.Second).
			Should(Receive(Equal(ufs.ResultRequeue)))
		Eventually(c.DriverState).Should(Equal(ufs.DriverStateOperational))
		Expect(hooks.count()).To(BeZero())
		Expect(c.ResetCount()).To(Equal(0))
	})

	It("should reset on a fatal data-link error", func() {
		dev.InjectUICError(hw.RegUICErrorDL, hw.DLTCxReplayExpire)

		Eventually(func() int { return c.ResetCount() }).
			Should(BeNumerically(">=", 1))
		Eventually(c.DriverState).Should(Equal(ufs.DriverStateOperational))
	})

	It("should reset on a controller-fatal interrupt", func() {
		dev.InjectFatal(hw.IrqControllerFatal)

		Eventually(func() int { return c.ResetCount() }).
			Should(BeNumerically(">=", 1))
		Eventually(c.DriverState).Should(Equal(ufs.DriverStateOperational))
		Expect(c.ErrorHistory(host.ErrFatal)).ToNot(BeEmpty())
	})

	It("should recover a lost link", func() {
		dev.BreakLink()

		Eventually(func() []host.ErrorEntry {
			return c.ErrorHistory(host.ErrLinkLost)
		}).ShouldNot(BeEmpty())
		Eventually(func() int { return c.ResetCount() }).
			Should(BeNumerically(">=", 1))
		Eventually(c.DriverState).Should(Equal(ufs.DriverStateOperational))
		Expect(c.LinkState()).To(Equal(ufs.LinkActive))
		Expect(dev.LinkIsUp()).To(BeTrue())
	})

	It("should keep completing commands after a recovery", func() {
		dev.InjectFatal(hw.IrqSystemBusFatal)
		Eventually(func() int { return c.ResetCount() }).
			Should(BeNumerically(">=", 1))
		Eventually(c.DriverState).Should(Equal(ufs.DriverStateOperational))

		result, err := c.Do(readCmd(0), time.Second)

		Expect(err).ToNot(HaveOccurred())
		Expect(result).To(Equal(ufs.ResultOk))
	})

	It("should give up after the reset attempts run out", func() {
		dev.FailNextLinkStartups(1000)
		dev.BreakLink()

		Eventually(c.DriverState, 5*time.Second).
			Should(Equal(ufs.DriverStateError))
		Expect(hooks.count()).To(Equal(int32(5)))

		err := c.Submit(readCmd(0))
		Expect(err).To(MatchError(ufs.ErrControllerDead))
	})

	It("should leave the terminal state through an explicit host reset", func() {
		dev.FailNextLinkStartups(1000)
		dev.BreakLink()
		Eventually(c.DriverState, 5*time.Second).
			Should(Equal(ufs.DriverStateError))

		dev.FailNextLinkStartups(0)
		Expect(c.HostReset()).To(Succeed())

		Expect(c.DriverState()).To(Equal(ufs.DriverStateOperational))

		result, err := c.Do(readCmd(0), time.Second)
		Expect(err).ToNot(HaveOccurred())
		Expect(result).To(Equal(ufs.ResultOk))
	})

	It("should requeue commands caught by a reset", func() {
		// The device holds the tag forever, so the command is still in
		// flight when the fatal error hits.
		dev.DropTag(0)

		cmd := readCmd(0)
		Expect(c.Submit(cmd)).To(Succeed())

		dev.InjectFatal(hw.IrqControllerFatal)

		Eventually(cmd.Done, 3*time.Second).
			Should(Receive(Equal(ufs.ResultRequeue)))
		Eventually(c.DriverState).Should(Equal(ufs.DriverStateOperational))
	})
})
