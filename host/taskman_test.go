package host_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/openufs/ufshost/host"
	"github.com/openufs/ufshost/hw/simdev"
	"github.com/openufs/ufshost/ufs"
)

var _ = Describe("Task Management", func() {
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

	It("should report an idle tag as not pending", func() {
		resp, err := c.IssueTask(0, ufs.TMQueryTask, 3)

		Expect(err).ToNot(HaveOccurred())
		Expect(resp).To(Equal(ufs.TMFuncComplete))
	})

	It("should see a wedged tag as pending", func() {
		dev.DropTag(0)
		cmd := readCmd(0)
		Expect(c.Submit(cmd)).To(Succeed())

		resp, err := c.IssueTask(0, ufs.TMQueryTask, 0)

		Expect(err).ToNot(HaveOccurred())
		Expect(resp).To(Equal(ufs.TMTaskPending))

		Expect(c.Abort(0)).To(Succeed())
	})

	It("should abort a wedged command", func() {
		dev.DropTag(0)
		cmd := readCmd(0)
		Expect(c.Submit(cmd)).To(Succeed())

		Expect(c.Abort(0)).To(Succeed())

		Eventually(cmd.Done).Should(Receive(Equal(ufs.ResultAborted)))
		Expect(c.Outstanding()).To(Equal(uint32(0)))
	})

	It("should abort a timed-out command through Do", func() {
		dev.DropTag(0)

		result, err := c.Do(readCmd(0), 50*time.Millisecond)

		Expect(err).ToNot(HaveOccurred())
		Expect(result).To(Equal(ufs.ResultAborted))
	})

	It("should treat aborting an idle tag as a no-op", func() {
		Expect(c.Abort(5)).To(Succeed())
	})

	It("should reject an out-of-range abort", func() {
		err := c.Abort(99)

		Expect(err).To(MatchError(ufs.ErrInvalidTag))
	})

	It("should requeue outstanding commands on a logical unit reset", func() {
		dev.DropTag(0)
		dev.DropTag(1)

		first := readCmd(1)
		second := readCmd(1)
		Expect(c.Submit(first)).To(Succeed())
		Expect(c.Submit(second)).To(Succeed())

		Expect(c.DeviceReset(1)).To(Succeed())

		Eventually(first.Done).Should(Receive(Equal(ufs.ResultRequeue)))
		Eventually(second.Done).Should(Receive(Equal(ufs.ResultRequeue)))
		Expect(c.Outstanding()).To(Equal(uint32(0)))
	})
})

var _ = Describe("Task Management slot pool", func() {
	It("should fail busy when every task slot is taken", func() {
		dev := simdev.MakeBuilder().WithTaskSlots(1).Build("tinydev")
		c := host.MakeBuilder().WithRegisterBlock(dev).Build("tiny")
		dev.AttachMemory(c.Memory())
		dev.SetInterruptHandler(c)
		Expect(c.Start()).To(Succeed())
		defer c.Stop()

		resp, err := c.IssueTask(0, ufs.TMQueryTask, 0)
		Expect(err).ToNot(HaveOccurred())
		Expect(resp).To(Equal(ufs.TMFuncComplete))
	})
})
