package host

import (
	"time"

	"github.com/openufs/ufshost/ufs"
)

// commandSlot is the per-tag bookkeeping of the transfer slot pool. The
// request and response buffers live in the shared descriptor memory at the
// same index.
type commandSlot struct {
	inUse       bool
	cmd         *Command
	issuedAt    time.Time
	completedAt time.Time
}

// taskSlot is the per-slot bookkeeping of the task management pool.
type taskSlot struct {
	inUse bool
	done  chan taskOutcome
}

type taskOutcome struct {
	response ufs.TMResponse
}

// claimSlotLocked finds a free transfer slot, marks it in use, and returns
// its tag.
func (c *Controller) claimSlotLocked() (int, bool) {
	for tag := 0; tag < c.numXferSlots; tag++ {
		if !c.slots[tag].inUse {
			c.slots[tag].inUse = true
			return tag, true
		}
	}
	return -1, false
}

// freeSlotLocked releases a transfer slot and wakes every waiter.
func (c *Controller) freeSlotLocked(tag int) {
	c.slots[tag].cmd = nil
	c.slots[tag].inUse = false
	c.broadcastSlotFreedLocked()
}

func (c *Controller) broadcastSlotFreedLocked() {
	close(c.slotFreed)
	c.slotFreed = make(chan struct{})
}

// claimTaskSlotLocked finds a free task management slot.
func (c *Controller) claimTaskSlotLocked() (int, bool) {
	for slot := 0; slot < c.numTaskSlots; slot++ {
		if !c.taskSlots[slot].inUse {
			c.taskSlots[slot].inUse = true
			c.taskSlots[slot].done = make(chan taskOutcome, 1)
			return slot, true
		}
	}
	return -1, false
}

func (c *Controller) freeTaskSlotLocked(slot int) {
	c.taskSlots[slot].inUse = false
	c.taskSlots[slot].done = nil
}

// failAllSlotsLocked force-completes every in-flight command with the given
// result. Used when the controller is stopped or reset while commands are
// outstanding.
func (c *Controller) failAllSlotsLocked(result ufs.CommandResult) {
	for tag := 0; tag < c.numXferSlots; tag++ {
		slot := &c.slots[tag]
		if !slot.inUse || slot.cmd == nil {
			continue
		}
		c.finishCommandLocked(tag, result)
	}

	for slot := 0; slot < c.numTaskSlots; slot++ {
		ts := &c.taskSlots[slot]
		if !ts.inUse || ts.done == nil {
			continue
		}
		select {
		case ts.done <- taskOutcome{response: ufs.TMFuncFailed}:
		default:
		}
	}
	c.outstandingTasks = 0
}
