package host_test

import (
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/openufs/ufshost/host"
	"github.com/openufs/ufshost/hw"
	"github.com/openufs/ufshost/hw/simdev"
	"github.com/openufs/ufshost/ufs"
	"github.com/openufs/ufshost/upiu"
)

// startController wires a simulated device to a freshly built controller and
// brings it up.
func startController(
	mod func(host.Builder) host.Builder,
) (*host.Controller, *simdev.Device) {
	dev := simdev.MakeBuilder().Build("dev")

	b := host.MakeBuilder().WithRegisterBlock(dev)
	if mod != nil {
		b = mod(b)
	}
	c := b.Build("ctrl")

	dev.AttachMemory(c.Memory())
	dev.SetInterruptHandler(c)

	Expect(c.Start()).To(Succeed())

	return c, dev
}

func readCmd(lun uint8) *host.Command {
	cmd := &host.Command{
		LUN:      lun,
		Length:   4096,
		SlotWait: host.DefaultSlotWait,
	}
	cmd.CDB[0] = 0x28
	return cmd
}

var _ = Describe("Controller", func() {
	var (
		c   *host.Controller
		dev *simdev.Device
	)

	BeforeEach(func() {
		c, dev = startController(nil)
	})

	AfterEach(func() {
		c.Stop()
	})

	It("should come up operational with an active link", func() {
		Expect(c.DriverState()).To(Equal(ufs.DriverStateOperational))
		Expect(c.LinkState()).To(Equal(ufs.LinkActive))
		Expect(dev.LinkIsUp()).To(BeTrue())
	})

	It("should negotiate the desired power mode at startup", func() {
		Expect(c.PowerInfo().GearRX).To(Equal(ufs.Gear3))
		Expect(dev.Negotiated()).To(Equal(c.PowerInfo()))
	})

	It("should enable background operations at startup", func() {
		Expect(dev.Flag(upiu.FlagBkopsEnable)).To(BeTrue())
	})

	It("should complete a command", func() {
		result, err := c.Do(readCmd(0), time.Second)

		Expect(err).ToNot(HaveOccurred())
		Expect(result).To(Equal(ufs.ResultOk))
		Expect(c.Outstanding()).To(Equal(uint32(0)))
	})

	It("should keep the outstanding set a superset of the doorbell", func() {
		slowDev := simdev.MakeBuilder().
			WithLatency(50 * time.Millisecond).
			Build("slowdev")
		slow := host.MakeBuilder().WithRegisterBlock(slowDev).Build("slow")
		slowDev.AttachMemory(slow.Memory())
		slowDev.SetInterruptHandler(slow)
		Expect(slow.Start()).To(Succeed())
		defer slow.Stop()

		cmds := make([]*host.Command, 4)
		for i := range cmds {
			cmds[i] = readCmd(0)
			Expect(slow.Submit(cmds[i])).To(Succeed())
		}

		// While the device holds the commands, every doorbell bit must be
		// mirrored in the outstanding set; a doorbell bit the engine does
		// not know about would be a lost command.
		for i := 0; i < 20; i++ {
			doorbell := slowDev.Read(hw.RegXferDoorbell)
			Expect(doorbell &^ slow.Outstanding()).To(Equal(uint32(0)))
			time.Sleep(time.Millisecond)
		}

		for _, cmd := range cmds {
			Eventually(cmd.Done).Should(Receive(Equal(ufs.ResultOk)))
		}
		Eventually(slow.Outstanding).Should(Equal(uint32(0)))
	})

	It("should map a transport-level failure to an aborted result", func() {
		dev.ForceResult(0, upiu.HeaderFatalError)

		result, err := c.Do(readCmd(0), time.Second)

		Expect(err).ToNot(HaveOccurred())
		Expect(result).To(Equal(ufs.ResultAborted))
	})

	It("should surface a device check condition", func() {
		dev.ForceStatus(0, upiu.StatusCheckCondition)

		result, err := c.Do(readCmd(0), time.Second)

		Expect(err).ToNot(HaveOccurred())
		Expect(result).To(Equal(ufs.ResultCheckCondition))
	})

	It("should reject submissions after Stop", func() {
		c.Stop()

		err := c.Submit(readCmd(0))

		Expect(err).To(MatchError(ufs.ErrStopped))
	})

	It("should run many commands on a small slot pool", func() {
		smallDev := simdev.MakeBuilder().WithXferSlots(2).Build("smalldev")
		small := host.MakeBuilder().WithRegisterBlock(smallDev).Build("small")
		smallDev.AttachMemory(small.Memory())
		smallDev.SetInterruptHandler(small)
		Expect(small.Start()).To(Succeed())
		defer small.Stop()

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 32; j++ {
					result, err := small.Do(readCmd(0), time.Second)
					Expect(err).ToNot(HaveOccurred())
					Expect(result).To(Equal(ufs.ResultOk))
				}
			}()
		}
		wg.Wait()

		Expect(small.Outstanding()).To(Equal(uint32(0)))
	})

	It("should read and write device attributes", func() {
		Expect(c.WriteAttr(upiu.AttrActiveICCLevel, 7)).To(Succeed())

		v, err := c.ReadAttr(upiu.AttrActiveICCLevel)

		Expect(err).ToNot(HaveOccurred())
		Expect(v).To(Equal(uint32(7)))
	})
})
