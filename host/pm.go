package host

import (
	"fmt"

	"github.com/openufs/ufshost/hw"
	"github.com/openufs/ufshost/ufs"
)

// RuntimeSuspend suspends the controller to the configured runtime level.
// An idle controller calls this from its power management glue; pending
// submissions fail busy until the matching resume.
func (c *Controller) RuntimeSuspend() error {
	return c.Suspend(c.rpmLevel)
}

// RuntimeResume undoes a runtime suspend.
func (c *Controller) RuntimeResume() error {
	return c.Resume()
}

// SystemSuspend suspends the controller to the configured system level.
func (c *Controller) SystemSuspend() error {
	return c.Suspend(c.spmLevel)
}

// SystemResume undoes a system suspend.
func (c *Controller) SystemResume() error {
	return c.Resume()
}

// Suspend moves the device and the link to the states the level selects and
// stops the clocks. A failed suspend rolls the controller back to the
// running state and reports the failure.
func (c *Controller) Suspend(level ufs.PMLevel) error {
	c.pmMu.Lock()
	defer c.pmMu.Unlock()

	c.mu.Lock()
	if c.suspended {
		c.mu.Unlock()
		return nil
	}
	if c.driverState != ufs.DriverStateOperational {
		state := c.driverState
		c.mu.Unlock()
		return fmt.Errorf("suspend from %s: %w", state, ufs.ErrNotOperational)
	}
	c.mu.Unlock()

	targetDev, targetLink := level.States()

	// Freeze gating and scaling first so neither fights the sequence, and
	// pin the clocks for the transition itself.
	c.mu.Lock()
	c.gatingSuspended = true
	c.scalingSuspended = true
	if c.gateWork.Cancel() && c.gateState == ufs.RequestClocksOff {
		// The gate work had not started; short-circuit back so the Hold
		// below does not wait for work that will never run.
		c.setGateStateLocked(ufs.ClocksOn)
	}
	c.mu.Unlock()

	if err := c.Hold(false); err != nil {
		c.unfreezePM()
		return err
	}

	if err := c.suspendDeviceAndLink(targetDev, targetLink); err != nil {
		c.Release()
		if rbErr := c.resumeDeviceAndLink(); rbErr != nil {
			// The rollback left the device or the link in an unknown
			// state; only the error handler can restore it.
			c.markLinkBrokenAndRecover()
		}
		c.unfreezePM()
		return err
	}

	c.mu.Lock()
	c.suspended = true
	c.mu.Unlock()
	c.Release()

	c.regs.Write(hw.RegInterruptEnable, 0)
	_ = c.hooks.SetupClocks(PreChange, false)
	_ = c.hooks.SetupClocks(PostChange, false)

	c.record(EventPM, -1, fmt.Sprintf("suspended level %d", level))
	return nil
}

func (c *Controller) suspendDeviceAndLink(targetDev ufs.DevicePowerMode, targetLink ufs.LinkState) error {
	if targetDev != ufs.DeviceActive {
		// The device gets no more chances to work once it sleeps; let it
		// finish urgent maintenance first by leaving it active.
		urgent, err := c.urgentBkopsNeeded()
		if err != nil {
			return err
		}
		if urgent {
			return fmt.Errorf("device needs background ops: %w", ufs.ErrBusy)
		}
		if err := c.disableBackgroundOps(); err != nil {
			return err
		}
		if err := c.setDevicePowerMode(targetDev); err != nil {
			return err
		}
	}

	switch targetLink {
	case ufs.LinkActive:
		return nil
	case ufs.LinkHibernate:
		if c.LinkState() == ufs.LinkActive {
			return c.enterHibernate(false)
		}
		return nil
	case ufs.LinkOff:
		if c.LinkState() == ufs.LinkActive {
			if err := c.enterHibernate(false); err != nil {
				return err
			}
		}
		c.mu.Lock()
		c.linkState = ufs.LinkOff
		c.mu.Unlock()
		return nil
	}
	return nil
}

// resumeDeviceAndLink brings the link and the device back to full power. A
// link that was powered off only comes back through the full bring-up
// sequence.
func (c *Controller) resumeDeviceAndLink() error {
	link := c.LinkState()

	switch link {
	case ufs.LinkOff, ufs.LinkBroken:
		if err := c.initController(); err != nil {
			return err
		}
		// initController restores device power and background ops too.
		return nil
	case ufs.LinkHibernate:
		if err := c.exitHibernate(false); err != nil {
			return err
		}
	}

	if err := c.setDevicePowerMode(ufs.DeviceActive); err != nil {
		return err
	}
	return c.enableBackgroundOps()
}

func (c *Controller) unfreezePM() {
	c.mu.Lock()
	c.gatingSuspended = false
	c.suspended = false
	c.mu.Unlock()
	if c.scalingEnabled {
		c.scaleResumeWork.Schedule()
	}
}

// Resume undoes a Suspend: clocks and interrupts back on, link woken or
// fully re-initialized, device active again.
func (c *Controller) Resume() error {
	c.pmMu.Lock()
	defer c.pmMu.Unlock()

	c.mu.Lock()
	if !c.suspended {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	_ = c.hooks.SetupClocks(PreChange, true)
	_ = c.hooks.SetupClocks(PostChange, true)
	c.regs.Write(hw.RegInterruptEnable, hw.IrqAll)

	if err := c.resumeDeviceAndLink(); err != nil {
		c.regs.Write(hw.RegInterruptEnable, 0)
		return fmt.Errorf("resume: %w", err)
	}

	c.unfreezePM()
	c.resetScalingWindow()

	c.record(EventPM, -1, "resumed")
	return nil
}

// Shutdown powers the device down for good and stops the controller.
func (c *Controller) Shutdown() error {
	err := c.Suspend(ufs.PMLevel5)
	c.Stop()
	return err
}
