package simdev

import (
	"github.com/openufs/ufshost/hw"
	"github.com/openufs/ufshost/ufs"
)

// startUICCommand begins processing the opcode that was just written to the
// command register. Called with the lock held.
func (d *Device) startUICCommand(op ufs.UICOpcode) {
	arg1 := d.regs[hw.RegUICArg1]
	arg3 := d.regs[hw.RegUICArg3]

	switch op {
	case ufs.UICDMESet, ufs.UICDMEPeerSet:
		d.afterCtrl(func() { d.finishDMESet(arg1 >> 16, arg3) })
	case ufs.UICDMEGet, ufs.UICDMEPeerGet:
		d.afterCtrl(func() { d.finishDMEGet(arg1 >> 16) })
	case ufs.UICDMELinkStartup:
		d.afterCtrl(d.finishLinkStartup)
	case ufs.UICDMEHibernate:
		d.afterCtrl(d.finishHibernateEnter)
	case ufs.UICDMEHibernExit:
		d.afterCtrl(d.finishHibernateExit)
	default:
		d.afterCtrl(func() { d.completeUIC(ufs.UICResultSuccess, 0) })
	}
}

// completeUIC publishes the command result and latches the completion
// interrupt, plus any extra status interrupt bits.
func (d *Device) completeUIC(result ufs.UICResult, extraIrq uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.regs[hw.RegUICArg2] = uint32(result)

	if d.splitUIC && extraIrq != 0 {
		// Status bit first, command-complete in a later interrupt.
		d.raiseLocked(extraIrq)
		d.afterCtrl(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			d.raiseLocked(hw.IrqUICCompletion)
		})
		return
	}

	d.raiseLocked(hw.IrqUICCompletion | extraIrq)
}

func (d *Device) finishDMESet(attr uint32, value uint32) {
	if attr == ufs.AttrPAPwrMode {
		d.finishPowerModeChange(value)
		return
	}

	d.mu.Lock()
	d.dmeAttrs[attr] = value
	d.mu.Unlock()

	d.completeUIC(ufs.UICResultSuccess, 0)
}

func (d *Device) finishDMEGet(attr uint32) {
	d.mu.Lock()
	d.regs[hw.RegUICArg3] = d.dmeAttrs[attr]
	d.mu.Unlock()

	d.completeUIC(ufs.UICResultSuccess, 0)
}

// finishPowerModeChange applies the staged DME attributes as the negotiated
// link parameters. The verdict is reported through the controller status
// register and a dedicated interrupt, on top of the ordinary completion.
func (d *Device) finishPowerModeChange(modeWord uint32) {
	d.mu.Lock()

	status := d.regs[hw.RegControllerStatus] &^ hw.StatusPowerModeResult

	if d.failPowerModes > 0 {
		d.failPowerModes--
		d.regs[hw.RegControllerStatus] = status | 1<<8
		d.mu.Unlock()
		d.completeUIC(ufs.UICResultSuccess, hw.IrqPowerModeStatus)
		return
	}

	d.negotiated = ufs.PowerInfo{
		GearRX: ufs.Gear(d.dmeAttrs[ufs.AttrPARxGear]),
		GearTX: ufs.Gear(d.dmeAttrs[ufs.AttrPATxGear]),
		LanesRX: int(d.dmeAttrs[ufs.AttrPAActiveRxLanes]),
		LanesTX: int(d.dmeAttrs[ufs.AttrPAActiveTxLanes]),
		PwrRX:  ufs.PowerMode(modeWord >> 4),
		PwrTX:  ufs.PowerMode(modeWord & 0xF),
		Rate:   ufs.RateClass(d.dmeAttrs[ufs.AttrPAHSSeries]),
	}
	d.regs[hw.RegControllerStatus] = status
	d.mu.Unlock()

	d.completeUIC(ufs.UICResultSuccess, hw.IrqPowerModeStatus)
}

func (d *Device) finishLinkStartup() {
	d.mu.Lock()

	if d.failLinkStartups > 0 {
		d.failLinkStartups--
		d.mu.Unlock()
		d.completeUIC(ufs.UICResultFailure, 0)
		return
	}

	d.linkUp = true
	d.regs[hw.RegControllerStatus] |= hw.StatusDeviceReady |
		hw.StatusXferListReady | hw.StatusTaskListReady
	d.mu.Unlock()

	d.completeUIC(ufs.UICResultSuccess, hw.IrqLinkStartup)
}

func (d *Device) finishHibernateEnter() {
	d.mu.Lock()

	if d.failHibernates > 0 {
		d.failHibernates--
		d.mu.Unlock()
		d.completeUIC(ufs.UICResultFailure, 0)
		return
	}

	d.hibernated = true
	d.mu.Unlock()

	d.completeUIC(ufs.UICResultSuccess, hw.IrqHibernateEnter)
}

func (d *Device) finishHibernateExit() {
	d.mu.Lock()
	d.hibernated = false
	d.mu.Unlock()

	d.completeUIC(ufs.UICResultSuccess, hw.IrqHibernateExit)
}
