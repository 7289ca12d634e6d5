package host

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/openufs/ufshost/hw"
	"github.com/openufs/ufshost/ufs"
	"github.com/openufs/ufshost/upiu"
)

// A Command is one block-layer transfer command going through the engine.
type Command struct {
	// ID is a trace identifier, generated at submission when empty.
	ID string

	LUN    uint8
	CDB    [16]byte
	Length uint32

	// SlotWait bounds how long the submitter is willing to wait for a free
	// slot. Zero means fail immediately with ErrBusy.
	SlotWait time.Duration

	// Done receives the result exactly once. Submit creates it when nil.
	Done chan ufs.CommandResult

	// Tag is the slot the command was dispatched on, valid after Submit
	// returns nil.
	Tag int

	// Response holds the decoded response packet after completion.
	Response upiu.Response
}

// Submit queues a command to the device. On success the command is in
// flight and its Done channel will receive the result. ErrBusy and ErrRetry
// mean the caller should resubmit; ErrControllerDead means the controller
// needs a host reset first.
func (c *Controller) Submit(cmd *Command) error {
	if cmd.Done == nil {
		cmd.Done = make(chan ufs.CommandResult, 1)
	}
	if cmd.ID == "" {
		cmd.ID = xid.New().String()
	}

	deadline := time.Now().Add(cmd.SlotWait)

	for {
		c.mu.Lock()
		if err := c.mayQueueLocked(); err != nil {
			c.mu.Unlock()
			return err
		}

		if err := c.holdForSubmitLocked(); err != nil {
			c.mu.Unlock()
			return err
		}

		tag, ok := c.claimSlotLocked()
		if ok {
			c.dispatchLocked(cmd, tag)
			c.mu.Unlock()
			return nil
		}

		// No free slot: drop the gating reference and wait, bounded by the
		// caller's budget.
		c.releaseLocked()
		freed := c.slotFreed
		c.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("no free slot: %w", ufs.ErrBusy)
		}

		select {
		case <-freed:
		case <-time.After(remaining):
			return fmt.Errorf("no free slot: %w", ufs.ErrBusy)
		}
	}
}

// mayQueueLocked applies the driver state gate of the submission path.
func (c *Controller) mayQueueLocked() error {
	if c.stopped {
		return ufs.ErrStopped
	}
	if c.draining {
		// A clock scale is draining the doorbell.
		return ufs.ErrBusy
	}
	if c.suspended {
		return ufs.ErrBusy
	}

	switch c.driverState {
	case ufs.DriverStateOperational:
		return nil
	case ufs.DriverStateEhScheduledFatal, ufs.DriverStateEhScheduledNonFatal,
		ufs.DriverStateReset:
		return ufs.ErrBusy
	case ufs.DriverStateError:
		return ufs.ErrControllerDead
	}
	return ufs.ErrNotOperational
}

// holdForSubmitLocked takes the per-command gating reference without
// blocking the submission path.
func (c *Controller) holdForSubmitLocked() error {
	// Hold manages the lock itself; re-enter without it.
	c.mu.Unlock()
	err := c.Hold(true)
	c.mu.Lock()

	if err != nil {
		return err
	}

	// The state may have shifted while the lock was dropped.
	if err := c.mayQueueLocked(); err != nil {
		c.releaseLocked()
		return err
	}
	return nil
}

// dispatchLocked builds a command request descriptor and rings the doorbell.
func (c *Controller) dispatchLocked(cmd *Command, tag int) {
	c.dispatchRequestLocked(cmd, tag, upiu.Request{
		Header: upiu.Header{
			Transaction: upiu.TransactionCommand,
			LUN:         cmd.LUN,
			TaskTag:     uint8(tag),
		},
		CDB:            cmd.CDB,
		ExpectedLength: cmd.Length,
	})
}

// dispatchRequestLocked fills the slot's request descriptor and rings the
// doorbell. The barrier guarantees the descriptor is visible before the
// doorbell bit.
func (c *Controller) dispatchRequestLocked(cmd *Command, tag int, req upiu.Request) {
	slot := &c.slots[tag]
	slot.cmd = cmd
	slot.issuedAt = time.Now()
	cmd.Tag = tag

	c.mem.Xfer[tag].Request = req

	c.noteDispatchLocked()
	c.outstanding |= 1 << tag

	c.regs.Barrier()
	c.regs.Write(hw.RegXferDoorbell, 1<<tag)

	c.record(EventDispatch, tag, cmd.ID)
}

// completeRequestsLocked reaps completions: any tag still marked outstanding
// whose doorbell bit hardware cleared is done. The doorbell is re-read a
// bounded number of times because commands may complete while the loop runs.
func (c *Controller) completeRequestsLocked() {
	for i := 0; i < reapRereadBound; i++ {
		doorbell := c.regs.Read(hw.RegXferDoorbell)
		completed := c.outstanding &^ doorbell
		if completed == 0 {
			return
		}

		for tag := 0; tag < c.numXferSlots; tag++ {
			if completed&(1<<tag) == 0 {
				continue
			}
			result := mapResponse(&c.mem.Xfer[tag].Response)
			if slot := &c.slots[tag]; slot.cmd != nil {
				slot.cmd.Response = c.mem.Xfer[tag].Response
			}
			c.finishCommandLocked(tag, result)
		}
	}
}

// finishCommandLocked releases the slot and signals the submitter.
func (c *Controller) finishCommandLocked(tag int, result ufs.CommandResult) {
	slot := &c.slots[tag]
	cmd := slot.cmd
	slot.completedAt = time.Now()

	c.outstanding &^= 1 << tag
	c.noteCompletionLocked()

	if cmd != nil {
		c.record(EventComplete, tag, result.String())
		select {
		case cmd.Done <- result:
		default:
		}
	}

	c.freeSlotLocked(tag)
	c.releaseLocked()
}

// mapResponse decodes a response packet onto the result enum.
func mapResponse(resp *upiu.Response) ufs.CommandResult {
	switch resp.Result {
	case upiu.HeaderSuccess:
	case upiu.HeaderAborted, upiu.HeaderFatalError:
		return ufs.ResultAborted
	case upiu.HeaderInvalidTaskTag, upiu.HeaderDeviceFailure:
		return ufs.ResultTransportError
	default:
		return ufs.ResultTransportError
	}

	switch resp.Status {
	case upiu.StatusGood:
		return ufs.ResultOk
	case upiu.StatusCheckCondition:
		return ufs.ResultCheckCondition
	case upiu.StatusBusy, upiu.StatusTaskSetFull:
		return ufs.ResultBusy
	}
	return ufs.ResultTransportError
}

// Do submits a command and waits for its result, retrying busy submissions
// until the timeout elapses.
func (c *Controller) Do(cmd *Command, timeout time.Duration) (ufs.CommandResult, error) {
	deadline := time.Now().Add(timeout)

	for {
		err := c.Submit(cmd)
		if err == nil {
			break
		}
		if !errors.Is(err, ufs.ErrBusy) && !errors.Is(err, ufs.ErrRetry) {
			return 0, err
		}
		if time.Now().After(deadline) {
			return 0, fmt.Errorf("submit: %w", ufs.ErrTimeout)
		}
		time.Sleep(time.Millisecond)
	}

	select {
	case r := <-cmd.Done:
		return r, nil
	case <-time.After(time.Until(deadline)):
	}

	// Give the device one chance to finish, then abort the tag.
	if c.TimeoutPoll(cmd.Tag) == ufs.ResultOk {
		select {
		case r := <-cmd.Done:
			return r, nil
		default:
		}
	}
	if err := c.Abort(cmd.Tag); err != nil {
		return 0, fmt.Errorf("command timed out, abort failed: %w", err)
	}

	select {
	case r := <-cmd.Done:
		return r, nil
	default:
		return 0, ufs.ErrTimeout
	}
}

// TimeoutPoll tells a timeout handler whether a tag is still pending in
// hardware. ResultOk means the command is no longer pending and its
// completion is either delivered or imminent.
func (c *Controller) TimeoutPoll(tag int) ufs.CommandResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	if tag < 0 || tag >= c.numXferSlots || c.outstanding&(1<<tag) == 0 {
		return ufs.ResultOk
	}
	if c.regs.Read(hw.RegXferDoorbell)&(1<<tag) == 0 {
		return ufs.ResultOk
	}
	return ufs.ResultBusy
}
