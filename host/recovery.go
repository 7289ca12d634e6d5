package host

import (
	"fmt"
	"time"

	"github.com/openufs/ufshost/hw"
	"github.com/openufs/ufshost/ufs"
)

// uicErrorRegs maps the per-layer error registers onto the history
// categories.
var uicErrorRegs = []struct {
	reg uint32
	cat ErrorCategory
}{
	{hw.RegUICErrorPA, ErrPhy},
	{hw.RegUICErrorDL, ErrDataLink},
	{hw.RegUICErrorNL, ErrNetwork},
	{hw.RegUICErrorTL, ErrTransport},
	{hw.RegUICErrorDME, ErrDME},
}

// checkErrorsLocked classifies the error interrupt sources, accumulates the
// sticky masks, and schedules the recovery work. It runs on the interrupt
// path and must not block.
func (c *Controller) checkErrorsLocked(status uint32) {
	fatal := false
	seen := false

	if status&hw.IrqUICError != 0 {
		for _, e := range uicErrorRegs {
			v := c.regs.Read(e.reg)
			if v&hw.UICErrorValid == 0 {
				continue
			}
			code := v & hw.UICErrorCodeMask
			c.errHist[e.cat].Push(code)
			c.savedUICErr[e.cat] |= code
			seen = true

			if e.cat == ErrDataLink && code&hw.DLFatalMask != 0 {
				fatal = true
			}
			if e.cat == ErrNetwork || e.cat == ErrTransport || e.cat == ErrDME {
				fatal = true
			}
		}
	}

	if status&hw.IrqFatal != 0 {
		c.savedErr |= status & hw.IrqFatal
		c.errHist[ErrFatal].Push(status)
		seen = true
		fatal = true
	}

	if status&hw.IrqLinkLost != 0 {
		c.linkState = ufs.LinkBroken
		c.errHist[ErrLinkLost].Push(status)
		seen = true
		fatal = true
	}

	if !seen {
		return
	}

	c.record(EventError, -1, fmt.Sprintf("irq %#x", status))
	c.scheduleRecoveryLocked(fatal)
}

// scheduleRecoveryLocked queues the error handler. A fatal request upgrades
// a pending non-fatal one; the reverse never downgrades.
func (c *Controller) scheduleRecoveryLocked(fatal bool) {
	if c.stopped {
		return
	}

	if fatal {
		c.setDriverStateLocked(ufs.DriverStateEhScheduledFatal)
	} else if c.driverState != ufs.DriverStateEhScheduledFatal {
		c.setDriverStateLocked(ufs.DriverStateEhScheduledNonFatal)
	}

	c.ehWork.Schedule()
}

// ehWorkFn is the recovery work. It drains completed work, tries the cheap
// paths first, and falls back to a full reset-and-restore with a bounded
// number of attempts. Exhausting the attempts is terminal.
func (c *Controller) ehWorkFn() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.ehInProgress = true
	fatal := c.driverState == ufs.DriverStateEhScheduledFatal ||
		c.linkState == ufs.LinkBroken

	// Snapshot and clear the sticky masks exactly once; errors arriving
	// during recovery accumulate for the next pass.
	savedErr := c.savedErr
	var savedUIC [nErrorCategories]uint32
	copy(savedUIC[:], c.savedUICErr[:])
	c.savedErr = 0
	for i := range c.savedUICErr {
		c.savedUICErr[i] = 0
	}

	// Reap whatever already completed so the reset path only ever requeues
	// genuinely stuck commands.
	c.completeRequestsLocked()
	c.completeTasksLocked()
	c.mu.Unlock()

	// Pin the clocks for the whole pass. A broken link cannot stop the
	// ungate; it settles the gate state and reschedules this work.
	held := c.Hold(false) == nil

	defer c.finishRecovery(held)

	if !fatal && c.nacOnly(savedErr, savedUIC) {
		if c.recoverFromNac() {
			return
		}
		fatal = true
	}

	if !fatal {
		if c.clearStuckRequests() {
			c.mu.Lock()
			c.setDriverStateLocked(ufs.DriverStateOperational)
			c.mu.Unlock()
			c.record(EventRecovery, -1, "non-fatal cleared")
			return
		}
		// Hardware would not let the slots go; only a reset gets them back.
	}

	c.resetAndRestore()
}

func (c *Controller) finishRecovery(held bool) {
	c.mu.Lock()
	c.ehInProgress = false
	if held {
		c.releaseLocked()
	}
	close(c.ehDone)
	c.ehDone = make(chan struct{})
	c.mu.Unlock()
}

// clearStuckRequests pulls wedged transfer and task slots back from hardware
// through the clear registers. Reclaimed commands requeue; task waiters time
// out and clean up their own slots. It reports whether hardware released
// every slot.
func (c *Controller) clearStuckRequests() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.outstanding != 0 {
		c.regs.Write(hw.RegXferClear, ^c.outstanding)
		if c.regs.Read(hw.RegXferDoorbell)&c.outstanding != 0 {
			return false
		}
		for tag := 0; tag < c.numXferSlots; tag++ {
			if c.outstanding&(1<<tag) != 0 {
				c.finishCommandLocked(tag, ufs.ResultRequeue)
			}
		}
	}

	if c.outstandingTasks != 0 {
		c.regs.Write(hw.RegTaskClear, ^c.outstandingTasks)
		if c.regs.Read(hw.RegTaskDoorbell)&c.outstandingTasks != 0 {
			return false
		}
		c.outstandingTasks = 0
	}

	return true
}

// nacOnly reports whether the snapshot contains nothing but a data-link NAC.
func (c *Controller) nacOnly(savedErr uint32, savedUIC [nErrorCategories]uint32) bool {
	if savedErr != 0 {
		return false
	}
	for cat, v := range savedUIC {
		if ErrorCategory(cat) == ErrDataLink {
			if v&^hw.DLNacReceived != 0 {
				return false
			}
			continue
		}
		if v != 0 {
			return false
		}
	}
	return savedUIC[ErrDataLink]&hw.DLNacReceived != 0
}

// recoverFromNac handles the case where the only observed error is a
// data-link NAC: wait briefly, confirm nothing worse arrived, and probe the
// device. A healthy device means the error was transient and no reset is
// needed.
func (c *Controller) recoverFromNac() bool {
	time.Sleep(c.nacDelay)

	c.mu.Lock()
	escalated := c.savedErr != 0 || c.linkState == ufs.LinkBroken
	if !escalated {
		for cat, v := range c.savedUICErr {
			if ErrorCategory(cat) == ErrDataLink {
				v &^= hw.DLNacReceived
			}
			if v != 0 {
				escalated = true
				break
			}
		}
	}
	c.mu.Unlock()
	if escalated {
		return false
	}

	if err := c.verifyDevice(); err != nil {
		return false
	}

	c.mu.Lock()
	c.setDriverStateLocked(ufs.DriverStateOperational)
	c.mu.Unlock()
	c.record(EventRecovery, -1, "nac probe ok")
	return true
}

// resetAndRestore runs full reset attempts until one restores the
// controller or the attempts run out. Running out is terminal: the
// controller enters the error state and every in-flight command fails.
func (c *Controller) resetAndRestore() {
	var err error
	for attempt := 0; attempt < maxHostResetRetries; attempt++ {
		c.mu.Lock()
		c.resetCount++
		c.mu.Unlock()

		if err = c.hostResetOnce(); err == nil {
			c.record(EventRecovery, -1,
				fmt.Sprintf("reset ok after %d attempt(s)", attempt+1))
			return
		}
	}

	c.mu.Lock()
	c.setDriverStateLocked(ufs.DriverStateError)
	c.linkState = ufs.LinkBroken
	c.failAllSlotsLocked(ufs.ResultTransportError)
	c.mu.Unlock()

	c.record(EventRecovery, -1, fmt.Sprintf("giving up: %v", err))
}

// hostResetOnce performs one full reset-and-restore attempt: tear the
// controller down, requeue everything in flight, and run the same bring-up
// sequence as Start.
func (c *Controller) hostResetOnce() error {
	if err := c.hooks.DeviceResetNotify(PreChange); err != nil {
		return err
	}

	c.regs.Write(hw.RegInterruptEnable, 0)
	c.regs.Write(hw.RegControllerEnable, 0)

	c.mu.Lock()
	c.failAllSlotsLocked(ufs.ResultRequeue)
	if in := c.activeUIC; in != nil {
		in.completed = true
		select {
		case in.done <- ufs.UICResultFailure:
		default:
		}
		c.activeUIC = nil
	}
	c.linkState = ufs.LinkOff
	c.pwrInfo = ufs.PowerInfo{}
	c.bkopsEnabled = false
	c.devicePwr = ufs.DeviceActive
	c.mu.Unlock()

	if err := c.hooks.DeviceResetNotify(PostChange); err != nil {
		return err
	}

	return c.initController()
}

// HostReset forces a full recovery pass and waits for it to finish. It is
// the way out of the terminal error state.
func (c *Controller) HostReset() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return ufs.ErrStopped
	}
	c.scheduleRecoveryLocked(true)
	done := c.ehDone
	c.mu.Unlock()

	<-done

	if c.DriverState() != ufs.DriverStateOperational {
		return ufs.ErrControllerDead
	}
	return nil
}

// ResetCount returns how many full reset attempts the controller has run.
func (c *Controller) ResetCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resetCount
}
