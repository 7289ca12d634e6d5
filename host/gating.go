package host

import (
	"log"

	"github.com/openufs/ufshost/hw"
	"github.com/openufs/ufshost/ufs"
)

// Hold takes a reference on the clocks, waking them up if they are gated.
// With async set, Hold never blocks: if the clocks are not immediately
// usable it drops the reference again and returns ufs.ErrRetry, and the
// caller resubmits once the ungate work has run.
func (c *Controller) Hold(async bool) error {
	c.mu.Lock()
	c.activeReqs++

	for {
		switch c.gateState {
		case ufs.ClocksOn:
			c.mu.Unlock()
			return nil

		case ufs.RequestClocksOff:
			if c.gateWork.Cancel() {
				// The gate work had not started; short-circuit back.
				c.setGateStateLocked(ufs.ClocksOn)
				c.mu.Unlock()
				return nil
			}
			// The gate work is already running. It will observe the
			// reference we hold and settle the state; wait for that below.

		case ufs.ClocksOff:
			c.setGateStateLocked(ufs.RequestClocksOn)
			c.ungateWork.Schedule()

		case ufs.RequestClocksOn:
			// Ungate already on its way.
		}

		if async {
			c.activeReqs--
			c.mu.Unlock()
			return ufs.ErrRetry
		}

		ch := c.gateChanged
		c.mu.Unlock()
		<-ch
		c.mu.Lock()
	}
}

// Release drops a reference taken by Hold. When the last reference goes and
// the controller is otherwise idle, the gate work is armed after the idle
// delay.
func (c *Controller) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseLocked()
}

func (c *Controller) releaseLocked() {
	c.activeReqs--
	if c.activeReqs < 0 {
		log.Panic("host: clock gating release without matching hold")
	}

	if c.activeReqs > 0 ||
		c.gatingSuspended ||
		c.gateState != ufs.ClocksOn ||
		c.driverState != ufs.DriverStateOperational ||
		c.outstanding != 0 ||
		c.outstandingTasks != 0 ||
		c.activeUIC != nil ||
		c.ehInProgress {
		return
	}

	c.setGateStateLocked(ufs.RequestClocksOff)
	c.gateWork.Schedule(c.gatingDelay)
}

// GateState returns the current gating state.
func (c *Controller) GateState() ufs.GateState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gateState
}

func (c *Controller) setGateStateLocked(s ufs.GateState) {
	if c.gateState == s {
		return
	}
	c.gateState = s
	c.record(EventGate, -1, s.String())

	close(c.gateChanged)
	c.gateChanged = make(chan struct{})
}

// gateWorkFn runs after the idle delay. Unless a hold preempted it, it
// parks the link, masks interrupts, and stops the clocks.
func (c *Controller) gateWorkFn() {
	c.mu.Lock()
	if c.gateState != ufs.RequestClocksOff ||
		c.activeReqs > 0 ||
		c.outstanding != 0 ||
		c.outstandingTasks != 0 ||
		c.activeUIC != nil ||
		c.driverState != ufs.DriverStateOperational {
		c.setGateStateLocked(ufs.ClocksOn)
		c.mu.Unlock()
		return
	}
	hibernate := c.hibernateOnGate && c.linkState == ufs.LinkActive
	c.mu.Unlock()

	if hibernate {
		if err := c.enterHibernate(false); err != nil {
			c.mu.Lock()
			c.setGateStateLocked(ufs.ClocksOn)
			c.mu.Unlock()
			return
		}
	}

	c.regs.Write(hw.RegInterruptEnable, 0)
	_ = c.hooks.SetupClocks(PreChange, false)
	_ = c.hooks.SetupClocks(PostChange, false)

	c.mu.Lock()
	// A hold that arrived meanwhile moved the state to RequestClocksOn; in
	// that case the clocks are off and the pending ungate work will bring
	// them back.
	if c.gateState == ufs.RequestClocksOff {
		c.setGateStateLocked(ufs.ClocksOff)
	}
	c.mu.Unlock()
}

// ungateWorkFn re-enables clocks and interrupts and wakes the link if the
// gate work parked it.
func (c *Controller) ungateWorkFn() {
	_ = c.hooks.SetupClocks(PreChange, true)
	_ = c.hooks.SetupClocks(PostChange, true)
	c.regs.Write(hw.RegInterruptEnable, hw.IrqAll)

	c.mu.Lock()
	wake := c.linkState == ufs.LinkHibernate
	c.mu.Unlock()

	wakeErr := error(nil)
	if wake {
		wakeErr = c.exitHibernate(false)
	}

	// The clocks are on either way; holders must not wait forever on a
	// broken link.
	c.mu.Lock()
	c.setGateStateLocked(ufs.ClocksOn)
	c.mu.Unlock()

	if wakeErr != nil {
		c.markLinkBrokenAndRecover()
	}
}
