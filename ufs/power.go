package ufs

// Gear is a negotiated per-direction signaling speed class.
type Gear int

// The supported gears, slowest to fastest.
const (
	Gear1 Gear = 1
	Gear2 Gear = 2
	Gear3 Gear = 3
	Gear4 Gear = 4
)

// PowerMode selects how the link carries data in one direction.
type PowerMode int

// The possible link power modes.
const (
	FastMode     PowerMode = 1
	SlowMode     PowerMode = 2
	FastAutoMode PowerMode = 4
	SlowAutoMode PowerMode = 5
)

func (m PowerMode) String() string {
	switch m {
	case FastMode:
		return "Fast"
	case SlowMode:
		return "Slow"
	case FastAutoMode:
		return "FastAuto"
	case SlowAutoMode:
		return "SlowAuto"
	}
	return "Unknown"
}

// RateClass is the negotiated high-speed rate series.
type RateClass int

// The possible rate classes. RateUnused applies to slow modes.
const (
	RateUnused RateClass = 0
	RateA      RateClass = 1
	RateB      RateClass = 2
)

// PowerInfo holds the negotiated link parameters for both directions. It is
// only mutated by the power-link state machine after a confirmed power mode
// change.
type PowerInfo struct {
	GearRX Gear
	GearTX Gear

	LanesRX int
	LanesTX int

	PwrRX PowerMode
	PwrTX PowerMode

	Rate RateClass
}

// Equal reports whether two parameter sets negotiate to the same link
// configuration. A power mode change to an Equal configuration is a no-op.
func (p PowerInfo) Equal(o PowerInfo) bool {
	return p == o
}

// ClockFreq is the coarse clock frequency level the scaling controller
// selects.
type ClockFreq int

// The supported clock frequency levels.
const (
	ClockFreqLow ClockFreq = iota
	ClockFreqHigh
)

func (f ClockFreq) String() string {
	if f == ClockFreqLow {
		return "Low"
	}
	return "High"
}
