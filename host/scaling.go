package host

import (
	"fmt"
	"time"

	"github.com/openufs/ufshost/ufs"
)

// noteDispatchLocked feeds the scaling load window on every dispatch. The
// first dispatch out of a scaling suspend wakes the stats back up.
func (c *Controller) noteDispatchLocked() {
	if !c.scalingEnabled {
		return
	}
	if c.scalingSuspended {
		c.scaleResumeWork.Schedule()
	}
	if c.busyStart.IsZero() {
		c.busyStart = time.Now()
	}
}

// noteCompletionLocked closes a busy interval when the controller goes fully
// idle and arms the scaling suspend work.
func (c *Controller) noteCompletionLocked() {
	if !c.scalingEnabled || c.busyStart.IsZero() {
		return
	}
	if c.outstanding != 0 || c.outstandingTasks != 0 {
		return
	}
	c.totalBusy += time.Since(c.busyStart)
	c.busyStart = time.Time{}
	c.scaleSuspendWork.Schedule()
}

// resetScalingWindow starts a fresh load window.
func (c *Controller) resetScalingWindow() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.windowStart = time.Now()
	c.totalBusy = 0
	if c.outstanding != 0 || c.outstandingTasks != 0 {
		c.busyStart = c.windowStart
	} else {
		c.busyStart = time.Time{}
	}
}

// Sample returns the busy fraction of the elapsed load window and starts the
// next window. A governor polls this to decide when to call Scale.
func (c *Controller) Sample() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	busy := c.totalBusy
	if !c.busyStart.IsZero() {
		busy += now.Sub(c.busyStart)
		c.busyStart = now
	}
	window := now.Sub(c.windowStart)

	c.windowStart = now
	c.totalBusy = 0

	if window <= 0 {
		return 0
	}
	return float64(busy) / float64(window)
}

// ClockFreq returns the current clock frequency level.
func (c *Controller) ClockFreq() ufs.ClockFreq {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clkFreq
}

// scaleSuspendFn parks the load stats while the controller is idle, so an
// idle stretch does not drag the busy fraction down and trigger a pointless
// down-scale.
func (c *Controller) scaleSuspendFn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outstanding != 0 || c.outstandingTasks != 0 || c.scalingSuspended {
		return
	}
	c.scalingSuspended = true
	if !c.busyStart.IsZero() {
		c.totalBusy += time.Since(c.busyStart)
		c.busyStart = time.Time{}
	}
}

func (c *Controller) scaleResumeFn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.scalingSuspended {
		return
	}
	c.scalingSuspended = false
	c.windowStart = time.Now()
	c.totalBusy = 0
	if c.outstanding != 0 || c.outstandingTasks != 0 {
		c.busyStart = c.windowStart
	}
}

// Scale moves the clocks and the link gear between the low and high
// operating points. The doorbell is drained first; submissions arriving
// during the drain see a busy error and retry.
//
// Scaling down shifts the gear before the clocks; scaling up raises the
// clocks before the gear, so the link never runs a gear the clocks cannot
// carry.
func (c *Controller) Scale(up bool) error {
	c.mu.Lock()
	if !c.scalingEnabled {
		c.mu.Unlock()
		return fmt.Errorf("clock scaling disabled: %w", ufs.ErrNotOperational)
	}
	target := ufs.ClockFreqLow
	if up {
		target = ufs.ClockFreqHigh
	}
	if c.clkFreq == target {
		c.mu.Unlock()
		return nil
	}
	if c.draining {
		c.mu.Unlock()
		return fmt.Errorf("scale already in progress: %w", ufs.ErrBusy)
	}
	c.draining = true
	c.mu.Unlock()

	if err := c.Hold(false); err != nil {
		c.clearDraining()
		return err
	}
	defer c.Release()
	defer c.clearDraining()

	if err := c.drainDoorbells(doorbellDrainTimeout); err != nil {
		return err
	}

	var err error
	if up {
		err = c.scaleUp()
	} else {
		err = c.scaleDown()
	}
	if err != nil {
		return err
	}

	c.record(EventScale, -1, c.ClockFreq().String())
	return nil
}

func (c *Controller) clearDraining() {
	c.mu.Lock()
	c.draining = false
	c.mu.Unlock()
}

// drainDoorbells waits for every in-flight command and task to finish.
func (c *Controller) drainDoorbells(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		c.mu.Lock()
		idle := c.outstanding == 0 && c.outstandingTasks == 0
		c.mu.Unlock()
		if idle {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("doorbell drain: %w", ufs.ErrTimeout)
		}
		time.Sleep(time.Millisecond)
	}
}

func (c *Controller) scaleDown() error {
	c.mu.Lock()
	saved := c.pwrInfo
	c.mu.Unlock()

	low := saved
	low.GearRX = ufs.Gear1
	low.GearTX = ufs.Gear1

	if err := c.applyPowerMode(low, true); err != nil {
		return fmt.Errorf("scale down gear: %w", err)
	}

	if err := c.setClockFreq(ufs.ClockFreqLow); err != nil {
		// Bring the gear back so the link is not left slow at high clocks.
		if restoreErr := c.applyPowerMode(saved, true); restoreErr != nil {
			c.markLinkBrokenAndRecover()
		}
		return err
	}

	c.mu.Lock()
	c.savedPwrInfo = saved
	c.mu.Unlock()
	return nil
}

func (c *Controller) scaleUp() error {
	if err := c.setClockFreq(ufs.ClockFreqHigh); err != nil {
		return err
	}

	c.mu.Lock()
	saved := c.savedPwrInfo
	c.mu.Unlock()
	if saved == (ufs.PowerInfo{}) {
		return nil
	}

	if err := c.applyPowerMode(saved, true); err != nil {
		return fmt.Errorf("scale up gear: %w", err)
	}
	return nil
}

func (c *Controller) setClockFreq(f ufs.ClockFreq) error {
	up := f == ufs.ClockFreqHigh
	if err := c.hooks.ScaleClocksNotify(PreChange, up); err != nil {
		return fmt.Errorf("scale clocks: %w", err)
	}

	c.mu.Lock()
	c.clkFreq = f
	c.mu.Unlock()

	if err := c.hooks.ScaleClocksNotify(PostChange, up); err != nil {
		return fmt.Errorf("scale clocks: %w", err)
	}
	return nil
}
