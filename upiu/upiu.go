// Package upiu defines the request and response packets exchanged with the
// storage device over the transport. Only the fields the engines consume are
// modeled; byte-level wire layout is left to the transport below.
package upiu

// TransactionCode identifies the kind of a packet.
type TransactionCode uint8

// Transaction codes for the packets the engines build and decode.
const (
	TransactionNopOut      TransactionCode = 0x00
	TransactionCommand     TransactionCode = 0x01
	TransactionTaskReq     TransactionCode = 0x04
	TransactionQueryReq    TransactionCode = 0x16
	TransactionNopIn       TransactionCode = 0x20
	TransactionResponse    TransactionCode = 0x21
	TransactionTaskResp    TransactionCode = 0x24
	TransactionQueryResp   TransactionCode = 0x36
	TransactionReject      TransactionCode = 0x3F
)

// Status is the device-reported status carried in a response packet.
type Status uint8

// Device status values.
const (
	StatusGood           Status = 0x00
	StatusCheckCondition Status = 0x02
	StatusBusy           Status = 0x08
	StatusTaskSetFull    Status = 0x28
)

// HeaderResult is the transport-level result code in a response header,
// distinct from the device Status.
type HeaderResult uint8

// Header result values.
const (
	HeaderSuccess        HeaderResult = 0x00
	HeaderFailure        HeaderResult = 0x01
	HeaderAborted        HeaderResult = 0x02
	HeaderFatalError     HeaderResult = 0x03
	HeaderDeviceFailure  HeaderResult = 0x04
	HeaderInvalidTaskTag HeaderResult = 0x05
)

// Header is the fixed part of every packet.
type Header struct {
	Transaction TransactionCode
	Flags       uint8
	LUN         uint8
	TaskTag     uint8
}

// Request is an outbound packet the transfer engine places in a command
// slot's request buffer before ringing the doorbell.
type Request struct {
	Header Header

	// CDB carries the block-layer command descriptor for data commands.
	CDB [16]byte

	// ExpectedLength is the transfer length in bytes.
	ExpectedLength uint32

	// Query carries the query payload for device-management requests.
	Query QueryPayload
}

// Response is an inbound packet the device writes into the slot's response
// buffer before clearing the doorbell bit.
type Response struct {
	Header Header

	Result HeaderResult
	Status Status

	// ResidualLength is the number of requested bytes not transferred.
	ResidualLength uint32

	// Sense carries sense data when Status is CheckCondition.
	Sense [18]byte

	// Query carries the query payload for device-management responses.
	Query QueryPayload
}

// TaskRequest is an out-of-band task management request.
type TaskRequest struct {
	Header   Header
	Function uint8

	// TargetTag is the transfer tag the function operates on, for the
	// per-task functions.
	TargetTag uint8
}

// TaskResponse is the reply to a TaskRequest.
type TaskResponse struct {
	Header   Header
	Response uint8
}
