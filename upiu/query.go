package upiu

// QueryOpcode identifies a device-management query operation.
type QueryOpcode uint8

// Query opcodes the engines use.
const (
	QueryNop       QueryOpcode = 0x00
	QueryReadDesc  QueryOpcode = 0x01
	QueryWriteDesc QueryOpcode = 0x02
	QueryReadAttr  QueryOpcode = 0x03
	QueryWriteAttr QueryOpcode = 0x04
	QueryReadFlag  QueryOpcode = 0x05
	QuerySetFlag   QueryOpcode = 0x06
	QueryClearFlag QueryOpcode = 0x07
	QueryToggleFlag QueryOpcode = 0x08
)

// Flag identifiers the core reads and writes.
const (
	FlagDeviceInit     uint8 = 0x01
	FlagBkopsEnable    uint8 = 0x04
	FlagPowerOnWPEn    uint8 = 0x03
)

// Attribute identifiers the core reads and writes.
const (
	AttrBootLUNEn     uint8 = 0x00
	AttrActiveICCLevel uint8 = 0x03
	AttrBkopsStatus   uint8 = 0x05
	AttrPurgeStatus   uint8 = 0x06
	AttrExceptionStatus uint8 = 0x0D
)

// BkopsStatus is the urgency the device reports for its background
// operations.
type BkopsStatus uint32

// Background operation status levels, least to most urgent.
const (
	BkopsNotRequired      BkopsStatus = 0x0
	BkopsNonCritical      BkopsStatus = 0x1
	BkopsPerfImpact       BkopsStatus = 0x2
	BkopsCritical         BkopsStatus = 0x3
)

// QueryResponseCode is the device verdict on a query request.
type QueryResponseCode uint8

// Query response codes.
const (
	QuerySuccess          QueryResponseCode = 0x00
	QueryNotReadable      QueryResponseCode = 0xF6
	QueryNotWriteable     QueryResponseCode = 0xF7
	QueryAlreadyWritten   QueryResponseCode = 0xF8
	QueryInvalidLength    QueryResponseCode = 0xF9
	QueryInvalidValue     QueryResponseCode = 0xFA
	QueryInvalidSelector  QueryResponseCode = 0xFB
	QueryInvalidIndex     QueryResponseCode = 0xFC
	QueryInvalidIdn       QueryResponseCode = 0xFD
	QueryInvalidOpcode    QueryResponseCode = 0xFE
	QueryGeneralFailure   QueryResponseCode = 0xFF
)

// QueryPayload carries a query request or response inside a packet.
type QueryPayload struct {
	Opcode   QueryOpcode
	Idn      uint8
	Index    uint8
	Selector uint8

	// Value carries the flag or attribute value.
	Value uint32

	// Response is the device verdict, valid on the response side.
	Response QueryResponseCode
}
