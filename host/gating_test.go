package host_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/openufs/ufshost/host"
	"github.com/openufs/ufshost/hw/simdev"
	"github.com/openufs/ufshost/ufs"
)

var _ = Describe("Clock Gating", func() {
	var (
		c   *host.Controller
		dev *simdev.Device
	)

	BeforeEach(func() {
		c, dev = startController(func(b host.Builder) host.Builder {
			return b.
				WithGatingDelay(20 * time.Millisecond).
				WithHibernateOnGate(true)
		})
	})

	AfterEach(func() {
		c.Stop()
	})

	It("should gate the clocks after the idle delay", func() {
		Eventually(c.GateState).Should(Equal(ufs.ClocksOff))
		Expect(dev.Hibernated()).To(BeTrue())
	})

	It("should ungate for a synchronous hold and re-gate on release", func() {
		Eventually(c.GateState).Should(Equal(ufs.ClocksOff))

		Expect(c.Hold(false)).To(Succeed())
		Expect(c.GateState()).To(Equal(ufs.ClocksOn))
		Expect(dev.Hibernated()).To(BeFalse())

		c.Release()
		Eventually(c.GateState).Should(Equal(ufs.ClocksOff))
	})

	It("should fail an async hold on gated clocks with a retry", func() {
		Eventually(c.GateState).Should(Equal(ufs.ClocksOff))

		err := c.Hold(true)
		Expect(err).To(MatchError(ufs.ErrRetry))

		// The failed hold kicked off the ungate; the retried hold succeeds.
		Eventually(c.GateState).Should(Equal(ufs.ClocksOn))
		Expect(c.Hold(true)).To(Succeed())
		c.Release()
	})

	It("should cancel a pending gate when a hold arrives in time", func() {
		lazyDev := simdev.MakeBuilder().Build("lazydev")
		lazy := host.MakeBuilder().
			WithRegisterBlock(lazyDev).
			WithGatingDelay(300 * time.Millisecond).
			Build("lazy")
		lazyDev.AttachMemory(lazy.Memory())
		lazyDev.SetInterruptHandler(lazy)
		Expect(lazy.Start()).To(Succeed())
		defer lazy.Stop()

		// The bring-up sequence ends with a release, so the gate work is
		// armed but far from firing.
		Eventually(lazy.GateState).Should(Equal(ufs.RequestClocksOff))

		Expect(lazy.Hold(true)).To(Succeed())
		Expect(lazy.GateState()).To(Equal(ufs.ClocksOn))
		lazy.Release()
	})

	It("should let concurrent async holds cancel a pending gate", func() {
		lazyDev := simdev.MakeBuilder().Build("lazydev2")
		lazy := host.MakeBuilder().
			WithRegisterBlock(lazyDev).
			WithGatingDelay(300 * time.Millisecond).
			Build("lazy2")
		lazyDev.AttachMemory(lazy.Memory())
		lazyDev.SetInterruptHandler(lazy)
		Expect(lazy.Start()).To(Succeed())
		defer lazy.Stop()

		Eventually(lazy.GateState).Should(Equal(ufs.RequestClocksOff))

		// Both holds race for the armed gate work; whichever wins the
		// cancel flips the state back and the other sees clocks on.
		errs := make(chan error, 2)
		for i := 0; i < 2; i++ {
			go func() { errs <- lazy.Hold(true) }()
		}
		Expect(<-errs).To(Succeed())
		Expect(<-errs).To(Succeed())
		Expect(lazy.GateState()).To(Equal(ufs.ClocksOn))

		lazy.Release()
		lazy.Release()
	})

	It("should turn concurrent async holds away while the gate work runs", func() {
		hDev := simdev.MakeBuilder().
			WithControlLatency(20 * time.Millisecond).
			Build("hdev")
		h := host.MakeBuilder().
			WithRegisterBlock(hDev).
			WithGatingDelay(30 * time.Millisecond).
			WithHibernateOnGate(true).
			Build("h")
		hDev.AttachMemory(h.Memory())
		hDev.SetInterruptHandler(h)
		Expect(h.Start()).To(Succeed())
		defer h.Stop()

		// Two rejected hibernate entries stretch the gate work so the holds
		// land while it is still running.
		hDev.FailNextHibernates(2)
		Eventually(h.GateState).Should(Equal(ufs.RequestClocksOff))
		time.Sleep(45 * time.Millisecond)
		Expect(h.GateState()).To(Equal(ufs.RequestClocksOff))

		errs := make(chan error, 2)
		for i := 0; i < 2; i++ {
			go func() { errs <- h.Hold(true) }()
		}
		Expect(<-errs).To(MatchError(ufs.ErrRetry))
		Expect(<-errs).To(MatchError(ufs.ErrRetry))

		// Retrying eventually wins once the ungate settles.
		Eventually(func() error { return h.Hold(true) }).Should(Succeed())
		Expect(h.GateState()).To(Equal(ufs.ClocksOn))
		h.Release()
	})

	It("should complete commands against gated clocks", func() {
		Eventually(c.GateState).Should(Equal(ufs.ClocksOff))

		result, err := c.Do(readCmd(0), time.Second)

		Expect(err).ToNot(HaveOccurred())
		Expect(result).To(Equal(ufs.ResultOk))
	})

	It("should not gate while a command is outstanding", func() {
		slowDev := simdev.MakeBuilder().
			WithLatency(100 * time.Millisecond).
			Build("slowdev")
		slow := host.MakeBuilder().
			WithRegisterBlock(slowDev).
			WithGatingDelay(10 * time.Millisecond).
			Build("slow")
		slowDev.AttachMemory(slow.Memory())
		slowDev.SetInterruptHandler(slow)
		Expect(slow.Start()).To(Succeed())
		defer slow.Stop()

		cmd := readCmd(0)
		Expect(slow.Submit(cmd)).To(Succeed())

		Consistently(slow.GateState, 50*time.Millisecond).
			ShouldNot(Equal(ufs.ClocksOff))

		Eventually(cmd.Done).Should(Receive(Equal(ufs.ResultOk)))
	})

	It("should panic on an unbalanced release", func() {
		Expect(func() { c.Release() }).To(Panic())
	})
})
