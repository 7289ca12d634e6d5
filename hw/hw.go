package hw

import "github.com/openufs/ufshost/upiu"

// MaxXferSlots is the largest transfer slot pool a register block can
// advertise, bounded by the 32-bit doorbell register.
const MaxXferSlots = 32

// MaxTaskSlots is the largest task management slot pool.
const MaxTaskSlots = 8

// A RegisterBlock is the fixed-offset 32-bit register file of the host
// controller. Implementations must make a Write visible to the device before
// any Write issued after a Barrier call, so that a command descriptor is
// fully published before the doorbell bit that announces it.
type RegisterBlock interface {
	// Read returns the current value of the register at the offset.
	Read(offset uint32) uint32

	// Write stores a value to the register at the offset. Doorbell and
	// command registers have side effects on write.
	Write(offset uint32, value uint32)

	// Barrier orders all preceding Writes before all following ones, as
	// observed by the device.
	Barrier()
}

// An InterruptHandler receives the single interrupt line of the controller.
// The handler must be safe to call from the device's own goroutine and must
// not block for long.
type InterruptHandler interface {
	HandleInterrupt()
}

// XferDescriptor is one entry of the transfer descriptor area. The host
// fills Request before setting the slot's doorbell bit; the device fills
// Response before clearing it. The doorbell protocol is the only
// synchronization between the two sides.
type XferDescriptor struct {
	Request  upiu.Request
	Response upiu.Response
}

// TaskDescriptor is one entry of the task management descriptor area, with
// the same publication protocol as XferDescriptor.
type TaskDescriptor struct {
	Request  upiu.TaskRequest
	Response upiu.TaskResponse
}

// DescriptorMemory is the host-memory area shared with the device. The
// controller owns it; the device receives a reference at construction.
type DescriptorMemory struct {
	Xfer [MaxXferSlots]XferDescriptor
	Task [MaxTaskSlots]TaskDescriptor
}
