package simdev

import (
	"log"

	"github.com/openufs/ufshost/hw"
	"github.com/openufs/ufshost/ufs"
	"github.com/openufs/ufshost/upiu"
)

// ringXferDoorbell starts processing every newly set transfer doorbell bit.
// Called with the lock held.
func (d *Device) ringXferDoorbell(value uint32) {
	if d.mem == nil {
		log.Panic("simdev: doorbell rung before memory was attached")
	}

	newBits := value &^ d.regs[hw.RegXferDoorbell]
	d.regs[hw.RegXferDoorbell] |= value

	for tag := 0; tag < hw.MaxXferSlots; tag++ {
		if newBits&(1<<tag) == 0 {
			continue
		}
		if d.dropTags&(1<<tag) != 0 {
			// The command stays pending until cleared or aborted.
			continue
		}

		after := d.after
		switch d.mem.Xfer[tag].Request.Header.Transaction {
		case upiu.TransactionNopOut, upiu.TransactionQueryReq:
			// Device management exchanges take the control path.
			after = d.afterCtrl
		}

		tag := tag
		d.xferTimers[tag] = after(func() { d.completeXfer(tag) })
	}
}

// clearXferSlots handles a write to the doorbell clear register. A zero bit
// in the written value clears the corresponding slot.
func (d *Device) clearXferSlots(value uint32) {
	cleared := d.regs[hw.RegXferDoorbell] &^ value
	d.regs[hw.RegXferDoorbell] &= value

	for tag := 0; tag < hw.MaxXferSlots; tag++ {
		if cleared&(1<<tag) == 0 {
			continue
		}
		if t, ok := d.xferTimers[tag]; ok {
			t.Stop()
			delete(d.xferTimers, tag)
		}
	}
}

func (d *Device) completeXfer(tag int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.regs[hw.RegXferDoorbell]&(1<<tag) == 0 {
		// Cleared while the completion was in flight.
		return
	}
	delete(d.xferTimers, tag)

	desc := &d.mem.Xfer[tag]
	desc.Response = d.respond(tag, desc.Request)

	d.regs[hw.RegXferDoorbell] &^= 1 << tag
	d.raiseLocked(hw.IrqXferCompletion)
}

// respond builds the response packet for a request. Called with the lock
// held.
func (d *Device) respond(tag int, req upiu.Request) upiu.Response {
	resp := upiu.Response{
		Header: upiu.Header{
			Transaction: upiu.TransactionResponse,
			LUN:         req.Header.LUN,
			TaskTag:     req.Header.TaskTag,
		},
		Result: upiu.HeaderSuccess,
		Status: upiu.StatusGood,
	}

	switch req.Header.Transaction {
	case upiu.TransactionNopOut:
		resp.Header.Transaction = upiu.TransactionNopIn
	case upiu.TransactionQueryReq:
		resp.Header.Transaction = upiu.TransactionQueryResp
		resp.Query = d.handleQuery(req.Query)
	}

	if r, ok := d.forcedResults[tag]; ok {
		delete(d.forcedResults, tag)
		resp.Result = r
	}
	if s, ok := d.forcedStatus[tag]; ok {
		delete(d.forcedStatus, tag)
		resp.Status = s
	}

	return resp
}

func (d *Device) handleQuery(q upiu.QueryPayload) upiu.QueryPayload {
	out := q
	out.Response = upiu.QuerySuccess

	switch q.Opcode {
	case upiu.QueryReadFlag:
		out.Value = d.flags[q.Idn]
	case upiu.QuerySetFlag:
		d.flags[q.Idn] = 1
		out.Value = 1
		if q.Idn == upiu.FlagDeviceInit {
			// Device initialization finishes instantly; the device clears
			// the flag so the host's poll sees completion.
			d.flags[q.Idn] = 0
		}
	case upiu.QueryClearFlag:
		d.flags[q.Idn] = 0
		out.Value = 0
	case upiu.QueryToggleFlag:
		d.flags[q.Idn] ^= 1
		out.Value = d.flags[q.Idn]
	case upiu.QueryReadAttr:
		out.Value = d.attrs[q.Idn]
	case upiu.QueryWriteAttr:
		d.attrs[q.Idn] = q.Value
	case upiu.QueryNop:
	default:
		out.Response = upiu.QueryInvalidOpcode
	}

	return out
}

// ringTaskDoorbell starts processing every newly set task management doorbell
// bit. Called with the lock held.
func (d *Device) ringTaskDoorbell(value uint32) {
	if d.mem == nil {
		log.Panic("simdev: task doorbell rung before memory was attached")
	}

	newBits := value &^ d.regs[hw.RegTaskDoorbell]
	d.regs[hw.RegTaskDoorbell] |= value

	for slot := 0; slot < hw.MaxTaskSlots; slot++ {
		if newBits&(1<<slot) == 0 {
			continue
		}

		slot := slot
		d.taskTimers[slot] = d.afterCtrl(func() { d.completeTask(slot) })
	}
}

// clearTaskSlots handles a write to the task clear register, with the same
// zero-bit-clears convention as the transfer clear register.
func (d *Device) clearTaskSlots(value uint32) {
	cleared := d.regs[hw.RegTaskDoorbell] &^ value
	d.regs[hw.RegTaskDoorbell] &= value

	for slot := 0; slot < hw.MaxTaskSlots; slot++ {
		if cleared&(1<<slot) == 0 {
			continue
		}
		if t, ok := d.taskTimers[slot]; ok {
			t.Stop()
			delete(d.taskTimers, slot)
		}
	}
}

func (d *Device) completeTask(slot int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.regs[hw.RegTaskDoorbell]&(1<<slot) == 0 {
		return
	}
	delete(d.taskTimers, slot)

	desc := &d.mem.Task[slot]
	desc.Response = d.serviceTask(desc.Request)

	d.regs[hw.RegTaskDoorbell] &^= 1 << slot
	d.raiseLocked(hw.IrqTaskCompletion)
}

// serviceTask executes a task management function against the transfer
// engine state. Called with the lock held.
func (d *Device) serviceTask(req upiu.TaskRequest) upiu.TaskResponse {
	resp := upiu.TaskResponse{
		Header: upiu.Header{
			Transaction: upiu.TransactionTaskResp,
			LUN:         req.Header.LUN,
			TaskTag:     req.Header.TaskTag,
		},
		Response: uint8(ufs.TMFuncComplete),
	}

	target := uint32(1) << req.TargetTag

	switch ufs.TMFunction(req.Function) {
	case ufs.TMQueryTask:
		if d.regs[hw.RegXferDoorbell]&target != 0 {
			resp.Response = uint8(ufs.TMTaskPending)
		}
	case ufs.TMAbortTask:
		if d.regs[hw.RegXferDoorbell]&target == 0 {
			resp.Response = uint8(ufs.TMFuncFailed)
			break
		}
		if t, ok := d.xferTimers[int(req.TargetTag)]; ok {
			t.Stop()
			delete(d.xferTimers, int(req.TargetTag))
		}
		d.dropTags &^= target
		d.regs[hw.RegXferDoorbell] &^= target
	case ufs.TMLogicalReset, ufs.TMClearTaskSet, ufs.TMAbortTaskSet:
		for tag, t := range d.xferTimers {
			t.Stop()
			delete(d.xferTimers, tag)
		}
		d.dropTags = 0
		d.regs[hw.RegXferDoorbell] = 0
	default:
		resp.Response = uint8(ufs.TMFuncNotSupported)
	}

	return resp
}
