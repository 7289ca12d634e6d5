// Package host implements the host-side control engine for a block-storage
// device behind a register-mapped queueing engine: command dispatch and
// completion against hardware doorbells, task management, link power control,
// clock gating and scaling, and error recovery.
package host

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/openufs/ufshost/hw"
	"github.com/openufs/ufshost/ufs"
	"github.com/openufs/ufshost/worker"
)

// A Controller drives one host controller instance. All engines share one
// lock; the interrupt handler and the submission path contend on it but
// never hold it across a wait.
type Controller struct {
	name  string
	regs  hw.RegisterBlock
	mem   *hw.DescriptorMemory
	hooks VendorHooks
	sink  EventSink

	mu sync.Mutex

	numXferSlots int
	numTaskSlots int
	slots        []commandSlot
	taskSlots    []taskSlot

	// outstanding mirrors the hardware doorbell: a bit is set iff the slot
	// is dispatched and not yet reaped.
	outstanding      uint32
	outstandingTasks uint32
	slotFreed        chan struct{}

	// devMgmtMu serializes device-management exchanges; only one query or
	// NOP exchange is meaningful at a time.
	devMgmtMu sync.Mutex

	driverState  ufs.DriverState
	linkState    ufs.LinkState
	devicePwr    ufs.DevicePowerMode
	pwrInfo      ufs.PowerInfo
	desiredPwr   ufs.PowerInfo
	bkopsEnabled bool
	autoHibernateIdle uint32

	// uicMu serializes senders of low-level link commands; activeUIC is the
	// single command the hardware is working on.
	uicMu     sync.Mutex
	activeUIC *uicInflight

	// Clock gating.
	gateState       ufs.GateState
	activeReqs      int
	gatingDelay     time.Duration
	gateChanged     chan struct{}
	gatingSuspended bool
	hibernateOnGate bool
	gateQueue       *worker.Queue
	gateWork        *worker.DelayedWork
	ungateWork      *worker.Work

	// Clock scaling.
	scalingEnabled   bool
	scalingSuspended bool
	draining         bool
	clkFreq          ufs.ClockFreq
	savedPwrInfo     ufs.PowerInfo
	windowStart      time.Time
	busyStart        time.Time
	totalBusy        time.Duration
	scaleQueue       *worker.Queue
	scaleSuspendWork *worker.Work
	scaleResumeWork  *worker.Work

	// Error handling.
	ehQueue      *worker.Queue
	ehWork       *worker.Work
	ehInProgress bool
	ehDone       chan struct{}
	savedErr     uint32
	savedUICErr  [nErrorCategories]uint32
	errHist      [nErrorCategories]*ErrorRing
	nacDelay     time.Duration
	resetCount   int

	// pmMu serializes suspend/resume sequences. suspended is additionally
	// read under mu by the submission gate.
	pmMu      sync.Mutex
	suspended bool
	rpmLevel  ufs.PMLevel
	spmLevel  ufs.PMLevel

	stopped bool
}

// A Builder can build controllers.
type Builder struct {
	regs            hw.RegisterBlock
	hooks           VendorHooks
	sink            EventSink
	gatingDelay     time.Duration
	nacDelay        time.Duration
	desiredPwr      ufs.PowerInfo
	hibernateOnGate bool
	scalingEnabled  bool
	autoHibernateIdle uint32
	rpmLevel        ufs.PMLevel
	spmLevel        ufs.PMLevel
}

// MakeBuilder creates a builder with the default tunables.
func MakeBuilder() Builder {
	return Builder{
		hooks:       NopHooks{},
		sink:        nopSink{},
		gatingDelay: DefaultGatingDelay,
		nacDelay:    DefaultNacRecoveryDelay,
		rpmLevel:    ufs.PMLevel1,
		spmLevel:    ufs.PMLevel3,
		desiredPwr: ufs.PowerInfo{
			GearRX: ufs.Gear3, GearTX: ufs.Gear3,
			LanesRX: 2, LanesTX: 2,
			PwrRX: ufs.FastMode, PwrTX: ufs.FastMode,
			Rate:  ufs.RateB,
		},
	}
}

// WithRegisterBlock sets the register block the controller drives.
func (b Builder) WithRegisterBlock(regs hw.RegisterBlock) Builder {
	b.regs = regs
	return b
}

// WithHooks sets the vendor hooks.
func (b Builder) WithHooks(h VendorHooks) Builder {
	b.hooks = h
	return b
}

// WithEventSink sets the event sink.
func (b Builder) WithEventSink(s EventSink) Builder {
	b.sink = s
	return b
}

// WithGatingDelay sets the idle delay before clocks are gated.
func (b Builder) WithGatingDelay(d time.Duration) Builder {
	b.gatingDelay = d
	return b
}

// WithNacRecoveryDelay sets the settle delay of the DL NAC liveness probe.
func (b Builder) WithNacRecoveryDelay(d time.Duration) Builder {
	b.nacDelay = d
	return b
}

// WithDesiredPower sets the link parameters to negotiate at startup.
func (b Builder) WithDesiredPower(p ufs.PowerInfo) Builder {
	b.desiredPwr = p
	return b
}

// WithHibernateOnGate makes the gate work park the link in hibernate.
func (b Builder) WithHibernateOnGate(v bool) Builder {
	b.hibernateOnGate = v
	return b
}

// WithClockScaling enables the clock scaling controller.
func (b Builder) WithClockScaling(v bool) Builder {
	b.scalingEnabled = v
	return b
}

// WithAutoHibernateIdle sets the auto-hibernate idle timer value restored
// after every reset. Zero disables auto-hibernate.
func (b Builder) WithAutoHibernateIdle(v uint32) Builder {
	b.autoHibernateIdle = v
	return b
}

// WithRuntimePMLevel sets the power level of runtime suspends.
func (b Builder) WithRuntimePMLevel(l ufs.PMLevel) Builder {
	b.rpmLevel = l
	return b
}

// WithSystemPMLevel sets the power level of system suspends.
func (b Builder) WithSystemPMLevel(l ufs.PMLevel) Builder {
	b.spmLevel = l
	return b
}

// Build builds a controller. The register block must be set; everything else
// has defaults.
func (b Builder) Build(name string) *Controller {
	if b.regs == nil {
		log.Panic("host: a controller needs a register block")
	}

	caps := b.regs.Read(hw.RegCapabilities)

	c := &Controller{
		name:              name,
		regs:              b.regs,
		mem:               &hw.DescriptorMemory{},
		hooks:             b.hooks,
		sink:              b.sink,
		numXferSlots:      hw.XferSlots(caps),
		numTaskSlots:      hw.TaskSlots(caps),
		gatingDelay:       b.gatingDelay,
		nacDelay:          b.nacDelay,
		desiredPwr:        b.desiredPwr,
		hibernateOnGate:   b.hibernateOnGate,
		scalingEnabled:    b.scalingEnabled,
		autoHibernateIdle: b.autoHibernateIdle,
		rpmLevel:          b.rpmLevel,
		spmLevel:          b.spmLevel,
		slotFreed:         make(chan struct{}),
		gateChanged:       make(chan struct{}),
		ehDone:            make(chan struct{}),
		driverState:       ufs.DriverStateReset,
		linkState:         ufs.LinkOff,
		gateState:         ufs.ClocksOn,
		clkFreq:           ufs.ClockFreqHigh,
	}

	c.slots = make([]commandSlot, c.numXferSlots)
	c.taskSlots = make([]taskSlot, c.numTaskSlots)

	for i := range c.errHist {
		c.errHist[i] = NewErrorRing(errorRingLen)
	}

	c.gateQueue = worker.NewQueue(name + ".gating")
	c.scaleQueue = worker.NewQueue(name + ".scaling")
	c.ehQueue = worker.NewQueue(name + ".eh")

	c.gateWork = worker.NewDelayedWork(c.gateQueue, c.gateWorkFn)
	c.ungateWork = worker.NewWork(c.gateQueue, c.ungateWorkFn)
	c.scaleSuspendWork = worker.NewWork(c.scaleQueue, c.scaleSuspendFn)
	c.scaleResumeWork = worker.NewWork(c.scaleQueue, c.scaleResumeFn)
	c.ehWork = worker.NewWork(c.ehQueue, c.ehWorkFn)

	return c
}

// Name returns the name of the controller.
func (c *Controller) Name() string {
	return c.name
}

// Memory returns the descriptor area to attach to the device side.
func (c *Controller) Memory() *hw.DescriptorMemory {
	return c.mem
}

// Start enables the controller, brings up the link, verifies the device, and
// negotiates the desired power mode. After a successful Start the controller
// accepts commands.
func (c *Controller) Start() error {
	if err := c.hooks.SetupClocks(PreChange, true); err != nil {
		return fmt.Errorf("clock setup: %w", err)
	}

	err := c.initController()

	if hookErr := c.hooks.SetupClocks(PostChange, true); hookErr != nil && err == nil {
		err = fmt.Errorf("clock setup: %w", hookErr)
	}

	return err
}

// initController performs the reset-and-restore sequence shared by Start and
// the error recovery engine: enable, link startup, device verification,
// power mode restore, background-op restore.
func (c *Controller) initController() error {
	c.mu.Lock()
	c.setDriverStateLocked(ufs.DriverStateReset)
	c.setGateStateLocked(ufs.ClocksOn)
	c.mu.Unlock()

	if err := c.enableController(); err != nil {
		return err
	}

	if err := c.linkStartup(); err != nil {
		return err
	}

	if err := c.verifyDevice(); err != nil {
		return err
	}

	c.mu.Lock()
	c.setDriverStateLocked(ufs.DriverStateOperational)
	c.mu.Unlock()

	if err := c.completeDeviceInit(); err != nil {
		return err
	}

	if err := c.enableBackgroundOps(); err != nil {
		return err
	}

	if c.desiredPwr != (ufs.PowerInfo{}) {
		if err := c.ChangePowerMode(c.desiredPwr); err != nil {
			return err
		}
	}

	c.restoreAutoHibernate()
	c.resetScalingWindow()

	c.record(EventStateChange, -1, "operational")

	return nil
}

// enableController pulses the enable register and waits for the low-level
// command interface to come out of reset.
func (c *Controller) enableController() error {
	c.regs.Write(hw.RegControllerEnable, 0)
	c.regs.Write(hw.RegControllerEnable, 1)

	deadline := time.Now().Add(enableReadyTimeout)
	for c.regs.Read(hw.RegControllerStatus)&hw.StatusUICReady == 0 {
		if time.Now().After(deadline) {
			return fmt.Errorf("controller enable: %w", ufs.ErrTimeout)
		}
		time.Sleep(time.Millisecond)
	}

	c.regs.Write(hw.RegInterruptEnable, hw.IrqAll)
	c.regs.Write(hw.RegXferRunStop, 1)
	c.regs.Write(hw.RegTaskRunStop, 1)

	return nil
}

// restoreAutoHibernate reapplies the auto-hibernate idle timer, which a
// controller reset clears.
func (c *Controller) restoreAutoHibernate() {
	if c.autoHibernateIdle == 0 {
		return
	}
	c.regs.Write(hw.RegAutoHibernate, c.autoHibernateIdle)
}

// Stop quiesces the controller and stops its worker queues. All waiting
// submitters see ErrStopped.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.setDriverStateLocked(ufs.DriverStateReset)
	c.failAllSlotsLocked(ufs.ResultRequeue)
	c.mu.Unlock()

	c.regs.Write(hw.RegInterruptEnable, 0)
	c.regs.Write(hw.RegControllerEnable, 0)

	c.gateWork.Cancel()
	c.gateQueue.Close()
	c.scaleQueue.Close()
	c.ehQueue.Close()

	c.record(EventStateChange, -1, "stopped")
}

func (c *Controller) setDriverStateLocked(s ufs.DriverState) {
	if c.driverState == s {
		return
	}
	c.driverState = s
}

// DriverState returns the current driver state.
func (c *Controller) DriverState() ufs.DriverState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.driverState
}

// LinkState returns the current link state.
func (c *Controller) LinkState() ufs.LinkState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.linkState
}

// PowerInfo returns the negotiated link parameters.
func (c *Controller) PowerInfo() ufs.PowerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pwrInfo
}

// Outstanding returns the software mirror of the transfer doorbell.
func (c *Controller) Outstanding() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outstanding
}

// HandleInterrupt services the controller's single interrupt line. It is
// called from the device side and must stay bounded: all long-running
// reactions are punted to worker queues.
func (c *Controller) HandleInterrupt() {
	for i := 0; i < irqLoopBound; i++ {
		status := c.regs.Read(hw.RegInterruptStatus)
		status &= c.regs.Read(hw.RegInterruptEnable)
		if status == 0 {
			return
		}

		c.regs.Write(hw.RegInterruptStatus, status)
		c.serviceInterrupt(status)
	}
}

func (c *Controller) serviceInterrupt(status uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}

	if status&(hw.IrqUICError|hw.IrqFatal|hw.IrqLinkLost) != 0 {
		c.checkErrorsLocked(status)
	}
	if status&hw.IrqUICCompletion != 0 {
		c.uicCmdCompletionLocked()
	}
	if status&(hw.IrqPowerModeStatus|hw.IrqHibernateEnter|hw.IrqHibernateExit) != 0 {
		c.uicPwrCompletionLocked()
	}
	if status&hw.IrqXferCompletion != 0 {
		c.completeRequestsLocked()
	}
	if status&hw.IrqTaskCompletion != 0 {
		c.completeTasksLocked()
	}
}
