package host_test

import (
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/openufs/ufshost/host"
	"github.com/openufs/ufshost/hw"
	"github.com/openufs/ufshost/hw/mockhw"
	"github.com/openufs/ufshost/hw/simdev"
	"github.com/openufs/ufshost/ufs"
)

// countingRegs wraps a register block and counts writes.
type countingRegs struct {
	inner  hw.RegisterBlock
	writes int64
}

func (r *countingRegs) Read(offset uint32) uint32 { return r.inner.Read(offset) }

func (r *countingRegs) Write(offset, value uint32) {
	atomic.AddInt64(&r.writes, 1)
	r.inner.Write(offset, value)
}

func (r *countingRegs) Barrier() { r.inner.Barrier() }

var _ = Describe("Power Link Control", func() {
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

	It("should run a low-level command", func() {
		result, err := c.SendUIC(ufs.UICCommand{
			Opcode: ufs.UICDMESet,
			Arg1:   ufs.DMEAttr(ufs.AttrPATxTermination),
			Arg3:   1,
		})

		Expect(err).ToNot(HaveOccurred())
		Expect(result).To(Equal(ufs.UICResultSuccess))
	})

	It("should serialize concurrent senders", func() {
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 8; j++ {
					_, err := c.SendUIC(ufs.UICCommand{
						Opcode: ufs.UICDMESet,
						Arg1:   ufs.DMEAttr(ufs.AttrPARxTermination),
						Arg3:   1,
					})
					Expect(err).ToNot(HaveOccurred())
				}
			}()
		}
		wg.Wait()
	})

	It("should renegotiate to a new power mode", func() {
		desired := c.PowerInfo()
		desired.GearRX = ufs.Gear1
		desired.GearTX = ufs.Gear1

		Expect(c.ChangePowerMode(desired)).To(Succeed())

		Expect(c.PowerInfo()).To(Equal(desired))
		Expect(dev.Negotiated()).To(Equal(desired))
	})

	It("should touch no hardware for a no-op power mode change", func() {
		innerDev := simdev.MakeBuilder().Build("innerdev")
		regs := &countingRegs{inner: innerDev}
		quiet := host.MakeBuilder().
			WithRegisterBlock(regs).
			WithGatingDelay(time.Minute).
			Build("quiet")
		innerDev.AttachMemory(quiet.Memory())
		innerDev.SetInterruptHandler(quiet)
		Expect(quiet.Start()).To(Succeed())
		defer quiet.Stop()

		before := atomic.LoadInt64(&regs.writes)
		Expect(quiet.ChangePowerMode(quiet.PowerInfo())).To(Succeed())

		Expect(atomic.LoadInt64(&regs.writes)).To(Equal(before))
	})

	It("should finish a power command whose status interrupt lands first", func() {
		dev.SplitUICCompletion()

		desired := c.PowerInfo()
		desired.GearRX = ufs.Gear2
		desired.GearTX = ufs.Gear2

		Expect(c.ChangePowerMode(desired)).To(Succeed())
		Expect(c.ResetCount()).To(Equal(0))
		Expect(dev.Negotiated()).To(Equal(desired))
	})

	It("should treat hibernate opcodes as power affecting on the raw path", func() {
		r, err := c.SendUIC(ufs.UICCommand{Opcode: ufs.UICDMEHibernate})
		Expect(err).ToNot(HaveOccurred())
		Expect(r.Ok()).To(BeTrue())
		Expect(dev.Hibernated()).To(BeTrue())

		_, err = c.SendUIC(ufs.UICCommand{Opcode: ufs.UICDMEHibernExit})
		Expect(err).ToNot(HaveOccurred())
		Expect(dev.Hibernated()).To(BeFalse())
	})

	It("should report a rejected power mode change", func() {
		dev.FailNextPowerModes(1)

		desired := c.PowerInfo()
		desired.GearRX = ufs.Gear2

		err := c.ChangePowerMode(desired)

		Expect(err).To(MatchError(ufs.ErrUICFailure))
		Expect(c.PowerInfo()).ToNot(Equal(desired))
	})
})

var _ = Describe("Power Link Control with mock registers", func() {
	var (
		mockCtrl *gomock.Controller
		regs     *mockhw.MockRegisterBlock
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		regs = mockhw.NewMockRegisterBlock(mockCtrl)
	})

	It("should only read the capabilities to build", func() {
		regs.EXPECT().Read(hw.RegCapabilities).Return(uint32(31 | 7<<16))

		c := host.MakeBuilder().WithRegisterBlock(regs).Build("mocked")

		// A no-op change on a fresh controller runs no commands at all.
		Expect(c.ChangePowerMode(ufs.PowerInfo{})).To(Succeed())
	})
})
