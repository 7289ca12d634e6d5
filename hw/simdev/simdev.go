// Package simdev provides a simulated storage device behind a hw.RegisterBlock.
// It models the doorbell protocol, UIC command handling, link power
// negotiation, and interrupt delivery, and supports scripted fault injection
// for tests and the CLI harness.
package simdev

import (
	"log"
	"sync"
	"time"

	"github.com/openufs/ufshost/hw"
	"github.com/openufs/ufshost/ufs"
	"github.com/openufs/ufshost/upiu"
)

// A Device is a simulated host controller register file plus the storage
// device behind it. It implements hw.RegisterBlock. Completions are raised on
// internal goroutines through the registered interrupt handler, mirroring a
// hardware interrupt line.
type Device struct {
	name        string
	latency     time.Duration
	ctrlLatency time.Duration

	mu   sync.Mutex
	regs map[uint32]uint32
	mem  *hw.DescriptorMemory
	sink hw.InterruptHandler

	linkUp     bool
	hibernated bool
	negotiated ufs.PowerInfo
	dmeAttrs   map[uint32]uint32

	flags map[uint8]uint32
	attrs map[uint8]uint32

	xferTimers map[int]*time.Timer
	taskTimers map[int]*time.Timer

	failLinkStartups int
	failPowerModes   int
	failHibernates   int
	splitUIC         bool
	dropTags         uint32
	forcedResults    map[int]upiu.HeaderResult
	forcedStatus     map[int]upiu.Status
}

// A Builder can build simulated devices.
type Builder struct {
	xferSlots   int
	taskSlots   int
	latency     time.Duration
	ctrlLatency time.Duration
}

// MakeBuilder creates a builder with the default device shape.
func MakeBuilder() Builder {
	return Builder{
		xferSlots:   32,
		taskSlots:   8,
		latency:     200 * time.Microsecond,
		ctrlLatency: 200 * time.Microsecond,
	}
}

// WithXferSlots sets the number of transfer command slots the device
// advertises.
func (b Builder) WithXferSlots(n int) Builder {
	b.xferSlots = n
	return b
}

// WithTaskSlots sets the number of task management slots the device
// advertises.
func (b Builder) WithTaskSlots(n int) Builder {
	b.taskSlots = n
	return b
}

// WithLatency sets the simulated data command processing latency.
func (b Builder) WithLatency(d time.Duration) Builder {
	b.latency = d
	return b
}

// WithControlLatency sets a separate latency for device management
// exchanges and link control commands, so a device can be slow on data
// commands while staying responsive on the control path.
func (b Builder) WithControlLatency(d time.Duration) Builder {
	b.ctrlLatency = d
	return b
}

// Build builds a device.
func (b Builder) Build(name string) *Device {
	if b.xferSlots < 1 || b.xferSlots > hw.MaxXferSlots {
		log.Panicf("simdev: transfer slot count %d out of range", b.xferSlots)
	}
	if b.taskSlots < 1 || b.taskSlots > hw.MaxTaskSlots {
		log.Panicf("simdev: task slot count %d out of range", b.taskSlots)
	}

	d := &Device{
		name:          name,
		latency:       b.latency,
		ctrlLatency:   b.ctrlLatency,
		regs:          make(map[uint32]uint32),
		dmeAttrs:      make(map[uint32]uint32),
		flags:         make(map[uint8]uint32),
		attrs:         make(map[uint8]uint32),
		xferTimers:    make(map[int]*time.Timer),
		taskTimers:    make(map[int]*time.Timer),
		forcedResults: make(map[int]upiu.HeaderResult),
		forcedStatus:  make(map[int]upiu.Status),
	}

	d.regs[hw.RegCapabilities] =
		uint32(b.xferSlots-1) | uint32(b.taskSlots-1)<<hw.CapTaskSlotsShift
	d.regs[hw.RegVersion] = 0x0300

	return d
}

// Name returns the name of the device.
func (d *Device) Name() string {
	return d.name
}

// AttachMemory hands the device the descriptor area shared with the host.
func (d *Device) AttachMemory(mem *hw.DescriptorMemory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mem = mem
}

// SetInterruptHandler registers the handler for the device's interrupt line.
func (d *Device) SetInterruptHandler(h hw.InterruptHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sink = h
}

// Read implements hw.RegisterBlock. The per-layer error registers clear on
// read.
func (d *Device) Read(offset uint32) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()

	v := d.regs[offset]
	switch offset {
	case hw.RegUICErrorPA, hw.RegUICErrorDL, hw.RegUICErrorNL,
		hw.RegUICErrorTL, hw.RegUICErrorDME:
		d.regs[offset] = 0
	}
	return v
}

// Write implements hw.RegisterBlock.
func (d *Device) Write(offset uint32, value uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch offset {
	case hw.RegInterruptStatus:
		// Write-one-to-clear.
		d.regs[hw.RegInterruptStatus] &^= value
	case hw.RegControllerEnable:
		d.writeControllerEnable(value)
	case hw.RegUICCommand:
		d.regs[offset] = value
		d.startUICCommand(ufs.UICOpcode(value))
	case hw.RegXferDoorbell:
		d.ringXferDoorbell(value)
	case hw.RegXferClear:
		d.clearXferSlots(value)
	case hw.RegTaskDoorbell:
		d.ringTaskDoorbell(value)
	case hw.RegTaskClear:
		d.clearTaskSlots(value)
	default:
		d.regs[offset] = value
	}
}

// Barrier implements hw.RegisterBlock. Register accesses are serialized on
// the device lock, so ordering already holds; the method exists to satisfy
// the contract real MMIO implementations need.
func (d *Device) Barrier() {}

func (d *Device) writeControllerEnable(value uint32) {
	if value&1 == 0 {
		d.stopLocked()
		d.regs[hw.RegControllerEnable] = 0
		d.regs[hw.RegControllerStatus] = 0
		return
	}

	// Enabling the controller resets the queueing engine, including any
	// scripted drop faults.
	d.stopLocked()
	d.dropTags = 0
	d.regs[hw.RegControllerEnable] = 1
	d.regs[hw.RegControllerStatus] = hw.StatusUICReady
	d.regs[hw.RegInterruptStatus] = 0
	d.linkUp = false
	d.hibernated = false
}

func (d *Device) stopLocked() {
	for tag, t := range d.xferTimers {
		t.Stop()
		delete(d.xferTimers, tag)
	}
	for tag, t := range d.taskTimers {
		t.Stop()
		delete(d.taskTimers, tag)
	}
	d.regs[hw.RegXferDoorbell] = 0
	d.regs[hw.RegTaskDoorbell] = 0
}

// raiseLocked latches interrupt status bits and fires the interrupt line if
// any latched bit is enabled. Must be called with the lock held; the handler
// itself runs on a fresh goroutine, like a hardware interrupt would.
func (d *Device) raiseLocked(bits uint32) {
	d.regs[hw.RegInterruptStatus] |= bits

	sink := d.sink
	if sink == nil {
		return
	}
	if d.regs[hw.RegInterruptStatus]&d.regs[hw.RegInterruptEnable] == 0 {
		return
	}

	go sink.HandleInterrupt()
}

func (d *Device) after(f func()) *time.Timer {
	return time.AfterFunc(d.latency, f)
}

func (d *Device) afterCtrl(f func()) *time.Timer {
	return time.AfterFunc(d.ctrlLatency, f)
}
