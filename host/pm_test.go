package host_test

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/openufs/ufshost/host"
	"github.com/openufs/ufshost/hw/simdev"
	"github.com/openufs/ufshost/ufs"
	"github.com/openufs/ufshost/upiu"
)

// glitchingHooks fails the completion of a hibernate entry and every
// hibernate exit, so a suspend fails after the link already moved and the
// rollback cannot undo it.
type glitchingHooks struct {
	host.NopHooks
}

func (glitchingHooks) HibernateNotify(stage host.HookStage, enter bool) error {
	if enter && stage == host.PostChange {
		return errors.New("hibernate settle failed")
	}
	if !enter {
		return errors.New("hibernate exit failed")
	}
	return nil
}

var _ = Describe("Power Management", func() {
	var (
		c   *host.Controller
		dev *simdev.Device
	)

	BeforeEach(func() {
		c, dev = startController(func(b host.Builder) host.Builder {
			return b.
				WithRuntimePMLevel(ufs.PMLevel1).
				WithSystemPMLevel(ufs.PMLevel3)
		})
	})

	AfterEach(func() {
		c.Stop()
	})

	It("should runtime suspend into hibernate and resume", func() {
		Expect(c.RuntimeSuspend()).To(Succeed())
		Expect(dev.Hibernated()).To(BeTrue())
		Expect(c.DevicePowerMode()).To(Equal(ufs.DeviceActive))

		Expect(c.RuntimeResume()).To(Succeed())
		Expect(dev.Hibernated()).To(BeFalse())

		result, err := c.Do(readCmd(0), time.Second)
		Expect(err).ToNot(HaveOccurred())
		Expect(result).To(Equal(ufs.ResultOk))
	})

	It("should reject submissions while suspended", func() {
		Expect(c.RuntimeSuspend()).To(Succeed())

		err := c.Submit(readCmd(0))

		Expect(err).To(MatchError(ufs.ErrBusy))
		Expect(c.RuntimeResume()).To(Succeed())
	})

	It("should system suspend the device to sleep", func() {
		Expect(c.SystemSuspend()).To(Succeed())

		Expect(c.DevicePowerMode()).To(Equal(ufs.DeviceSleep))
		Expect(dev.Hibernated()).To(BeTrue())
		Expect(dev.Flag(upiu.FlagBkopsEnable)).To(BeFalse())

		Expect(c.SystemResume()).To(Succeed())

		Expect(c.DevicePowerMode()).To(Equal(ufs.DeviceActive))
		Expect(dev.Flag(upiu.FlagBkopsEnable)).To(BeTrue())
	})

	It("should resume from a powered-off link through a full bring-up", func() {
		Expect(c.Suspend(ufs.PMLevel4)).To(Succeed())
		Expect(c.LinkState()).To(Equal(ufs.LinkOff))

		Expect(c.Resume()).To(Succeed())

		Expect(c.LinkState()).To(Equal(ufs.LinkActive))
		Expect(dev.LinkIsUp()).To(BeTrue())

		result, err := c.Do(readCmd(0), time.Second)
		Expect(err).ToNot(HaveOccurred())
		Expect(result).To(Equal(ufs.ResultOk))
	})

	It("should refuse to sleep a device that needs background ops", func() {
		dev.SetAttr(upiu.AttrBkopsStatus, uint32(upiu.BkopsCritical))

		err := c.SystemSuspend()

		Expect(err).To(MatchError(ufs.ErrBusy))
		Expect(c.DriverState()).To(Equal(ufs.DriverStateOperational))

		result, doErr := c.Do(readCmd(0), time.Second)
		Expect(doErr).ToNot(HaveOccurred())
		Expect(result).To(Equal(ufs.ResultOk))

		dev.SetAttr(upiu.AttrBkopsStatus, uint32(upiu.BkopsNotRequired))
		Expect(c.SystemSuspend()).To(Succeed())
		Expect(c.SystemResume()).To(Succeed())
	})

	It("should suspend while an idle gate is still armed", func() {
		// Bring-up ends with a release, so the gate work is armed but has
		// not fired yet.
		Eventually(c.GateState).Should(Equal(ufs.RequestClocksOff))

		Expect(c.RuntimeSuspend()).To(Succeed())
		Expect(dev.Hibernated()).To(BeTrue())
		Expect(c.RuntimeResume()).To(Succeed())
	})

	It("should escalate to recovery when a failed suspend cannot roll back", func() {
		gDev := simdev.MakeBuilder().Build("gdev")
		g := host.MakeBuilder().
			WithRegisterBlock(gDev).
			WithHooks(glitchingHooks{}).
			WithSystemPMLevel(ufs.PMLevel3).
			Build("g")
		gDev.AttachMemory(g.Memory())
		gDev.SetInterruptHandler(g)
		Expect(g.Start()).To(Succeed())
		defer g.Stop()

		err := g.SystemSuspend()

		Expect(err).To(HaveOccurred())
		Eventually(func() int { return g.ResetCount() }).
			Should(BeNumerically(">=", 1))
		Eventually(g.DriverState).Should(Equal(ufs.DriverStateOperational))
	})

	It("should treat a double suspend and a double resume as no-ops", func() {
		Expect(c.RuntimeSuspend()).To(Succeed())
		Expect(c.RuntimeSuspend()).To(Succeed())
		Expect(c.RuntimeResume()).To(Succeed())
		Expect(c.RuntimeResume()).To(Succeed())
	})
})
