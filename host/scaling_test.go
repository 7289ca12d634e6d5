package host_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/openufs/ufshost/host"
	"github.com/openufs/ufshost/host/mockhost"
	"github.com/openufs/ufshost/hw/simdev"
	"github.com/openufs/ufshost/ufs"
)

var _ = Describe("Clock Scaling", func() {
	var (
		c   *host.Controller
		dev *simdev.Device
	)

	BeforeEach(func() {
		c, dev = startController(func(b host.Builder) host.Builder {
			return b.WithClockScaling(true)
		})
	})

	AfterEach(func() {
		c.Stop()
	})

	It("should scale down to the lowest gear and back", func() {
		full := c.PowerInfo()

		Expect(c.Scale(false)).To(Succeed())
		Expect(c.ClockFreq()).To(Equal(ufs.ClockFreqLow))
		Expect(dev.Negotiated().GearRX).To(Equal(ufs.Gear1))

		Expect(c.Scale(true)).To(Succeed())
		Expect(c.ClockFreq()).To(Equal(ufs.ClockFreqHigh))
		Expect(c.PowerInfo()).To(Equal(full))
		Expect(dev.Negotiated()).To(Equal(full))
	})

	It("should treat scaling to the current level as a no-op", func() {
		Expect(c.Scale(true)).To(Succeed())
		Expect(c.ClockFreq()).To(Equal(ufs.ClockFreqHigh))
	})

	It("should report a busy fraction between zero and one", func() {
		c.Sample()

		for i := 0; i < 4; i++ {
			_, err := c.Do(readCmd(0), time.Second)
			Expect(err).ToNot(HaveOccurred())
		}

		ratio := c.Sample()
		Expect(ratio).To(BeNumerically(">=", 0.0))
		Expect(ratio).To(BeNumerically("<=", 1.0))
	})

	It("should keep completing commands across a scale", func() {
		Expect(c.Scale(false)).To(Succeed())

		result, err := c.Do(readCmd(0), time.Second)

		Expect(err).ToNot(HaveOccurred())
		Expect(result).To(Equal(ufs.ResultOk))
	})

	It("should refuse to scale when scaling is disabled", func() {
		plain, plainDev := startController(nil)
		_ = plainDev
		defer plain.Stop()

		err := plain.Scale(false)

		Expect(err).To(MatchError(ufs.ErrNotOperational))
	})
})

var _ = Describe("Clock Scaling with vendor hooks", func() {
	var (
		mockCtrl *gomock.Controller
		hooks    *mockhost.MockVendorHooks
		c        *host.Controller
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		hooks = mockhost.NewMockVendorHooks(mockCtrl)

		hooks.EXPECT().Name().Return("mock").AnyTimes()
		hooks.EXPECT().
			LinkStartupNotify(gomock.Any()).
			Return(nil).AnyTimes()
		hooks.EXPECT().
			HibernateNotify(gomock.Any(), gomock.Any()).
			Return(nil).AnyTimes()
		hooks.EXPECT().
			SetupClocks(gomock.Any(), gomock.Any()).
			Return(nil).AnyTimes()
		hooks.EXPECT().
			DeviceResetNotify(gomock.Any()).
			Return(nil).AnyTimes()
		hooks.EXPECT().
			PwrChangeNotify(gomock.Any(), gomock.Any()).
			DoAndReturn(func(
				_ host.HookStage, desired ufs.PowerInfo,
			) (ufs.PowerInfo, error) {
				return desired, nil
			}).AnyTimes()

		c, _ = startController(func(b host.Builder) host.Builder {
			return b.WithClockScaling(true).WithHooks(hooks)
		})
	})

	AfterEach(func() {
		c.Stop()
		mockCtrl.Finish()
	})

	It("should bracket a scale with pre and post notifications", func() {
		gomock.InOrder(
			hooks.EXPECT().ScaleClocksNotify(host.PreChange, false).Return(nil),
			hooks.EXPECT().ScaleClocksNotify(host.PostChange, false).Return(nil),
			hooks.EXPECT().ScaleClocksNotify(host.PreChange, true).Return(nil),
			hooks.EXPECT().ScaleClocksNotify(host.PostChange, true).Return(nil),
		)

		Expect(c.Scale(false)).To(Succeed())
		Expect(c.Scale(true)).To(Succeed())
	})
})
