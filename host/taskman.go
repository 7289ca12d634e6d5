package host

import (
	"fmt"
	"time"

	"github.com/openufs/ufshost/hw"
	"github.com/openufs/ufshost/ufs"
	"github.com/openufs/ufshost/upiu"
)

// IssueTask sends one task management function and waits for the device's
// functional response. A timeout is reported as ErrTimeout; a negative
// response from the device comes back as the response value with a nil
// error, so the caller can distinguish "the device said no" from "the
// device said nothing".
func (c *Controller) IssueTask(lun uint8, fn ufs.TMFunction, targetTag int) (ufs.TMResponse, error) {
	if err := c.Hold(false); err != nil {
		return 0, err
	}
	defer c.Release()

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return 0, ufs.ErrStopped
	}
	slot, ok := c.claimTaskSlotLocked()
	if !ok {
		c.mu.Unlock()
		return 0, fmt.Errorf("task management: no free slot: %w", ufs.ErrBusy)
	}
	done := c.taskSlots[slot].done

	c.mem.Task[slot] = hw.TaskDescriptor{
		Request: upiu.TaskRequest{
			Header: upiu.Header{
				Transaction: upiu.TransactionTaskReq,
				LUN:         lun,
				TaskTag:     uint8(slot),
			},
			Function:  uint8(fn),
			TargetTag: uint8(targetTag),
		},
	}

	c.outstandingTasks |= 1 << slot
	c.regs.Barrier()
	c.regs.Write(hw.RegTaskDoorbell, 1<<slot)
	c.mu.Unlock()

	c.record(EventTaskMgmt, targetTag, fn.String())

	select {
	case out := <-done:
		c.mu.Lock()
		c.freeTaskSlotLocked(slot)
		c.mu.Unlock()
		return out.response, nil
	case <-time.After(tmCommandTimeout):
	}

	// Timed out: pull the request back from hardware. The completion may
	// still have landed in the meantime.
	c.mu.Lock()
	if c.outstandingTasks&(1<<slot) != 0 {
		c.regs.Write(hw.RegTaskClear, ^uint32(1<<slot))
		c.outstandingTasks &^= 1 << slot
	}
	c.freeTaskSlotLocked(slot)
	c.mu.Unlock()

	select {
	case out := <-done:
		return out.response, nil
	default:
	}
	return 0, fmt.Errorf("task management %s: %w", fn, ufs.ErrTimeout)
}

// completeTasksLocked reaps task management completions off the interrupt
// path, mirroring the transfer reap: a slot still marked outstanding whose
// doorbell bit is clear has its response in memory.
func (c *Controller) completeTasksLocked() {
	doorbell := c.regs.Read(hw.RegTaskDoorbell)
	completed := c.outstandingTasks &^ doorbell

	for slot := 0; slot < c.numTaskSlots; slot++ {
		if completed&(1<<slot) == 0 {
			continue
		}
		c.outstandingTasks &^= 1 << slot

		ts := &c.taskSlots[slot]
		if ts.done == nil {
			continue
		}
		resp := ufs.TMResponse(c.mem.Task[slot].Response.Response)
		select {
		case ts.done <- taskOutcome{response: resp}:
		default:
		}
	}
}

// abortAttempts bounds the query/abort cycles per tag before the error
// handler takes over.
const abortAttempts = 3

// Abort takes one in-flight command back from the device. It first asks
// whether the device still has the task, aborts it if so, clears the
// doorbell slot, and completes the command as aborted. If the device cannot
// be talked out of the command, a full recovery is scheduled.
func (c *Controller) Abort(tag int) error {
	c.mu.Lock()
	if tag < 0 || tag >= c.numXferSlots {
		c.mu.Unlock()
		return ufs.ErrInvalidTag
	}
	if c.outstanding&(1<<tag) == 0 {
		c.mu.Unlock()
		return nil
	}
	slot := &c.slots[tag]
	if slot.cmd == nil {
		c.mu.Unlock()
		return ufs.ErrInvalidTag
	}
	lun := slot.cmd.LUN
	c.mu.Unlock()

	if err := c.Hold(false); err != nil {
		return err
	}
	defer c.Release()

	for attempt := 0; attempt < abortAttempts; attempt++ {
		resp, err := c.IssueTask(lun, ufs.TMQueryTask, tag)
		if err != nil {
			break
		}

		if resp.Ok() {
			// The device no longer has the task. Either the completion is
			// already on its way, or the slot must be cleaned up locally.
			c.mu.Lock()
			if c.outstanding&(1<<tag) != 0 &&
				c.regs.Read(hw.RegXferDoorbell)&(1<<tag) != 0 {
				c.regs.Write(hw.RegXferClear, ^uint32(1<<tag))
				c.finishCommandLocked(tag, ufs.ResultAborted)
			}
			c.mu.Unlock()
			return nil
		}
		if resp != ufs.TMTaskPending {
			break
		}

		resp, err = c.IssueTask(lun, ufs.TMAbortTask, tag)
		if err != nil {
			break
		}
		if resp.Ok() {
			c.mu.Lock()
			if c.outstanding&(1<<tag) != 0 {
				c.regs.Write(hw.RegXferClear, ^uint32(1<<tag))
				c.finishCommandLocked(tag, ufs.ResultAborted)
			}
			c.mu.Unlock()
			return nil
		}
	}

	// The tag could not be reclaimed; only a reset gets it back.
	c.mu.Lock()
	c.scheduleRecoveryLocked(true)
	c.mu.Unlock()
	return fmt.Errorf("abort tag %d: %w", tag, ufs.ErrTaskRejected)
}

// DeviceReset resets one logical unit and requeues every command that was
// outstanding against it.
func (c *Controller) DeviceReset(lun uint8) error {
	resp, err := c.IssueTask(lun, ufs.TMLogicalReset, 0)
	if err != nil {
		return err
	}
	if !resp.Ok() {
		return fmt.Errorf("logical unit reset: response %#x: %w",
			resp, ufs.ErrTaskRejected)
	}

	c.mu.Lock()
	for tag := 0; tag < c.numXferSlots; tag++ {
		slot := &c.slots[tag]
		if c.outstanding&(1<<tag) == 0 || slot.cmd == nil || slot.cmd.LUN != lun {
			continue
		}
		c.regs.Write(hw.RegXferClear, ^uint32(1<<tag))
		c.finishCommandLocked(tag, ufs.ResultRequeue)
	}
	c.mu.Unlock()

	return nil
}
