package simdev

import (
	"github.com/openufs/ufshost/hw"
	"github.com/openufs/ufshost/ufs"
	"github.com/openufs/ufshost/upiu"
)

// FailNextLinkStartups makes the next n link startup commands complete with
// a failure code.
func (d *Device) FailNextLinkStartups(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failLinkStartups = n
}

// FailNextPowerModes makes the next n power mode changes report a bad status
// through the controller status register.
func (d *Device) FailNextPowerModes(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failPowerModes = n
}

// FailNextHibernates makes the next n hibernate-enter commands fail.
func (d *Device) FailNextHibernates(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failHibernates = n
}

// SplitUICCompletion makes the device deliver the status-bit interrupt of
// power-affecting commands ahead of the command-complete interrupt, in two
// separate interrupts.
func (d *Device) SplitUICCompletion() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.splitUIC = true
}

// DropTag makes the device hold the given transfer tag pending forever, so
// the host times out and has to abort or clear it.
func (d *Device) DropTag(tag int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dropTags |= 1 << tag
}

// ForceResult sets the transport-level header result for the next completion
// of the given tag.
func (d *Device) ForceResult(tag int, result upiu.HeaderResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.forcedResults[tag] = result
}

// ForceStatus sets the device status for the next completion of the given
// tag.
func (d *Device) ForceStatus(tag int, status upiu.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.forcedStatus[tag] = status
}

// InjectUICError latches an error code into one of the UIC error registers
// and fires the error interrupt.
func (d *Device) InjectUICError(reg uint32, code uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.regs[reg] = hw.UICErrorValid | (code & hw.UICErrorCodeMask)
	d.raiseLocked(hw.IrqUICError)
}

// InjectFatal fires one of the fatal interrupt bits.
func (d *Device) InjectFatal(irqBit uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.raiseLocked(irqBit)
}

// BreakLink drops the link and fires the link-lost interrupt.
func (d *Device) BreakLink() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.linkUp = false
	d.regs[hw.RegControllerStatus] &^= hw.StatusDeviceReady |
		hw.StatusXferListReady | hw.StatusTaskListReady
	d.raiseLocked(hw.IrqLinkLost)
}

// SetAttr seeds a device attribute, such as the background-operations
// status.
func (d *Device) SetAttr(idn uint8, value uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attrs[idn] = value
}

// Attr returns a device attribute.
func (d *Device) Attr(idn uint8) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attrs[idn]
}

// Flag returns a device flag.
func (d *Device) Flag(idn uint8) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flags[idn] != 0
}

// Hibernated reports whether the link is parked in hibernate.
func (d *Device) Hibernated() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hibernated
}

// LinkIsUp reports whether link startup has completed since the last
// controller enable.
func (d *Device) LinkIsUp() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.linkUp
}

// Negotiated returns the link parameters of the last successful power mode
// change.
func (d *Device) Negotiated() ufs.PowerInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.negotiated
}
