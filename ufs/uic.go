package ufs

// UICOpcode identifies a low-level link-control command directed at the
// physical layer, as opposed to a data-transfer command.
type UICOpcode uint32

// The UIC opcodes the engines issue.
const (
	UICDMEGet         UICOpcode = 0x01
	UICDMESet         UICOpcode = 0x02
	UICDMEPeerGet     UICOpcode = 0x03
	UICDMEPeerSet     UICOpcode = 0x04
	UICDMEPowerOn     UICOpcode = 0x10
	UICDMEPowerOff    UICOpcode = 0x11
	UICDMEEnable      UICOpcode = 0x12
	UICDMEReset       UICOpcode = 0x14
	UICDMEEndpointRst UICOpcode = 0x15
	UICDMELinkStartup UICOpcode = 0x16
	UICDMEHibernate   UICOpcode = 0x17
	UICDMEHibernExit  UICOpcode = 0x18
	UICDMETestMode    UICOpcode = 0x1A
)

func (op UICOpcode) String() string {
	switch op {
	case UICDMEGet:
		return "DME_GET"
	case UICDMESet:
		return "DME_SET"
	case UICDMEPeerGet:
		return "DME_PEER_GET"
	case UICDMEPeerSet:
		return "DME_PEER_SET"
	case UICDMEPowerOn:
		return "DME_POWERON"
	case UICDMEPowerOff:
		return "DME_POWEROFF"
	case UICDMEEnable:
		return "DME_ENABLE"
	case UICDMEReset:
		return "DME_RESET"
	case UICDMEEndpointRst:
		return "DME_ENDPOINTRESET"
	case UICDMELinkStartup:
		return "DME_LINKSTARTUP"
	case UICDMEHibernate:
		return "DME_HIBERNATE_ENTER"
	case UICDMEHibernExit:
		return "DME_HIBERNATE_EXIT"
	case UICDMETestMode:
		return "DME_TEST_MODE"
	}
	return "DME_UNKNOWN"
}

// IsPowerAffecting reports whether completion of the command is additionally
// signaled through a status bit, on top of the ordinary command-complete
// interrupt.
func (op UICOpcode) IsPowerAffecting() bool {
	switch op {
	case UICDMEHibernate, UICDMEHibernExit:
		return true
	}
	return false
}

// UICCommand is one low-level link-control command. At most one UICCommand
// may be dispatched to hardware at a time.
type UICCommand struct {
	Opcode UICOpcode
	Arg1   uint32
	Arg2   uint32
	Arg3   uint32
}

// UICResult is the generic error code hardware reports for a completed UIC
// command through the second argument register.
type UICResult uint32

// The possible UIC result codes.
const (
	UICResultSuccess UICResult = iota
	UICResultInvalidAttr
	UICResultInvalidAttrValue
	UICResultReadOnlyAttr
	UICResultWriteOnlyAttr
	UICResultBadIndex
	UICResultLockedAttr
	UICResultBusy
	UICResultFailure
)

// Ok reports whether the command succeeded.
func (r UICResult) Ok() bool {
	return r == UICResultSuccess
}

// Well-known DME attribute identifiers used for power mode negotiation. The
// full attribute table lives with the register layout, outside this core.
const (
	AttrPAActiveTxLanes uint32 = 0x1560
	AttrPAActiveRxLanes uint32 = 0x1580
	AttrPATxGear        uint32 = 0x1568
	AttrPARxGear        uint32 = 0x1583
	AttrPATxTermination uint32 = 0x1569
	AttrPARxTermination uint32 = 0x1584
	AttrPAHSSeries      uint32 = 0x156A
	AttrPAPwrMode       uint32 = 0x1571
)

// DMEAttr builds the first argument word for a DME_GET/DME_SET from an
// attribute selector.
func DMEAttr(attr uint32) uint32 {
	return attr << 16
}
