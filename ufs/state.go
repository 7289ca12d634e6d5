package ufs

// LinkState describes the state of the link between the host controller and
// the device.
type LinkState int

// The possible states of the link. Broken is terminal until a recovery pass
// explicitly clears it.
const (
	LinkOff LinkState = iota
	LinkActive
	LinkHibernate
	LinkBroken
)

func (s LinkState) String() string {
	switch s {
	case LinkOff:
		return "Off"
	case LinkActive:
		return "Active"
	case LinkHibernate:
		return "Hibernate"
	case LinkBroken:
		return "Broken"
	}
	return "Unknown"
}

// IsActive returns true if the link can carry traffic without being woken up
// first.
func (s LinkState) IsActive() bool {
	return s == LinkActive
}

// DriverState gates whether the controller accepts new commands.
type DriverState int

// The possible driver states. The two EhScheduled states mean that the error
// handler has been queued but has not finished yet.
const (
	DriverStateReset DriverState = iota
	DriverStateOperational
	DriverStateEhScheduledFatal
	DriverStateEhScheduledNonFatal
	DriverStateError
)

func (s DriverState) String() string {
	switch s {
	case DriverStateReset:
		return "Reset"
	case DriverStateOperational:
		return "Operational"
	case DriverStateEhScheduledFatal:
		return "EhScheduledFatal"
	case DriverStateEhScheduledNonFatal:
		return "EhScheduledNonFatal"
	case DriverStateError:
		return "Error"
	}
	return "Unknown"
}

// GateState is the state of the clock gating state machine.
type GateState int

// The possible gating states. The two Request states are transient while the
// gate or ungate work is pending or running.
const (
	ClocksOn GateState = iota
	RequestClocksOff
	ClocksOff
	RequestClocksOn
)

func (s GateState) String() string {
	switch s {
	case ClocksOn:
		return "ClocksOn"
	case RequestClocksOff:
		return "RequestClocksOff"
	case ClocksOff:
		return "ClocksOff"
	case RequestClocksOn:
		return "RequestClocksOn"
	}
	return "Unknown"
}

// DevicePowerMode is the power mode of the storage device itself, as opposed
// to the state of the link.
type DevicePowerMode int

// The possible device power modes.
const (
	DeviceActive DevicePowerMode = iota
	DeviceSleep
	DevicePowerDown
)

func (m DevicePowerMode) String() string {
	switch m {
	case DeviceActive:
		return "Active"
	case DeviceSleep:
		return "Sleep"
	case DevicePowerDown:
		return "PowerDown"
	}
	return "Unknown"
}

// PMLevel selects a pair of device power mode and link state for a suspend
// request. Higher levels save more power and take longer to resume from.
type PMLevel int

// The supported power levels, from lightest to deepest.
const (
	PMLevel0 PMLevel = iota // device Active, link Active
	PMLevel1                // device Active, link Hibernate
	PMLevel2                // device Sleep, link Active
	PMLevel3                // device Sleep, link Hibernate
	PMLevel4                // device Sleep, link Off
	PMLevel5                // device PowerDown, link Off
)

// States returns the device power mode and link state that the level selects.
func (l PMLevel) States() (DevicePowerMode, LinkState) {
	switch l {
	case PMLevel0:
		return DeviceActive, LinkActive
	case PMLevel1:
		return DeviceActive, LinkHibernate
	case PMLevel2:
		return DeviceSleep, LinkActive
	case PMLevel3:
		return DeviceSleep, LinkHibernate
	case PMLevel4:
		return DeviceSleep, LinkOff
	default:
		return DevicePowerDown, LinkOff
	}
}
