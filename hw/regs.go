// Package hw defines the downward interface of the controller core: the
// register block of the hardware queueing engine and the descriptor memory
// shared between the host and the device.
package hw

// Register offsets of the host controller register block. All registers are
// 32 bits wide at fixed offsets.
const (
	RegCapabilities     uint32 = 0x00
	RegVersion          uint32 = 0x08
	RegInterruptStatus  uint32 = 0x20
	RegInterruptEnable  uint32 = 0x24
	RegControllerStatus uint32 = 0x30
	RegControllerEnable uint32 = 0x34
	RegUICErrorPA       uint32 = 0x38
	RegUICErrorDL       uint32 = 0x3C
	RegUICErrorNL       uint32 = 0x40
	RegUICErrorTL       uint32 = 0x44
	RegUICErrorDME      uint32 = 0x48
	RegAutoHibernate    uint32 = 0x18
	RegXferDoorbell     uint32 = 0x58
	RegXferClear        uint32 = 0x5C
	RegXferRunStop      uint32 = 0x60
	RegTaskDoorbell     uint32 = 0x78
	RegTaskClear        uint32 = 0x7C
	RegTaskRunStop      uint32 = 0x80
	RegUICCommand       uint32 = 0x90
	RegUICArg1          uint32 = 0x94
	RegUICArg2          uint32 = 0x98
	RegUICArg3          uint32 = 0x9C
)

// Interrupt status bits, shared between RegInterruptStatus and
// RegInterruptEnable.
const (
	IrqXferCompletion   uint32 = 1 << 0
	IrqDoorbellCleared  uint32 = 1 << 1
	IrqUICError         uint32 = 1 << 2
	IrqTestMode         uint32 = 1 << 3
	IrqPowerModeStatus  uint32 = 1 << 4
	IrqHibernateExit    uint32 = 1 << 5
	IrqHibernateEnter   uint32 = 1 << 6
	IrqLinkLost         uint32 = 1 << 7
	IrqLinkStartup      uint32 = 1 << 8
	IrqTaskCompletion   uint32 = 1 << 9
	IrqUICCompletion    uint32 = 1 << 10
	IrqDeviceFatal      uint32 = 1 << 11
	IrqControllerFatal  uint32 = 1 << 16
	IrqSystemBusFatal   uint32 = 1 << 17
)

// IrqAll enables every interrupt source the core consumes.
const IrqAll = IrqXferCompletion | IrqUICError | IrqPowerModeStatus |
	IrqHibernateExit | IrqHibernateEnter | IrqLinkLost | IrqLinkStartup |
	IrqTaskCompletion | IrqUICCompletion | IrqDeviceFatal |
	IrqControllerFatal | IrqSystemBusFatal

// IrqFatal is the subset of interrupt bits that always force a full reset.
const IrqFatal = IrqDeviceFatal | IrqControllerFatal | IrqSystemBusFatal

// Controller status bits in RegControllerStatus.
const (
	StatusDeviceReady     uint32 = 1 << 0
	StatusXferListReady   uint32 = 1 << 1
	StatusTaskListReady   uint32 = 1 << 2
	StatusUICReady        uint32 = 1 << 3
	StatusPowerModeResult uint32 = 0x7 << 8
)

// PowerModeStatusOK extracts the power mode change verdict from a controller
// status word. Zero means the change was applied.
func PowerModeStatusOK(status uint32) bool {
	return status&StatusPowerModeResult == 0
}

// UIC error register bits the classifier consumes.
const (
	UICErrorValid   uint32 = 1 << 31
	UICErrorCodeMask uint32 = 0x7FFFFFFF

	// DL error code bits within RegUICErrorDL.
	DLNacReceived     uint32 = 1 << 0
	DLTCxReplayExpire uint32 = 1 << 1
	DLFatalMask       uint32 = DLTCxReplayExpire
)

// Capabilities register fields.
const (
	CapXferSlotsMask uint32 = 0x1F
	CapTaskSlotsMask uint32 = 0x7 << 16
	CapTaskSlotsShift       = 16
)

// XferSlots decodes the number of transfer command slots from a
// capabilities word.
func XferSlots(caps uint32) int {
	return int(caps&CapXferSlotsMask) + 1
}

// TaskSlots decodes the number of task management slots from a capabilities
// word.
func TaskSlots(caps uint32) int {
	return int((caps&CapTaskSlotsMask)>>CapTaskSlotsShift) + 1
}
