package ufs

// CommandResult is the outcome of a transfer command after the response
// packet has been decoded.
type CommandResult int

// The possible command results. Requeue and Busy are retryable by the caller.
const (
	ResultOk CommandResult = iota
	ResultCheckCondition
	ResultBusy
	ResultTransportError
	ResultAborted
	ResultRequeue
)

func (r CommandResult) String() string {
	switch r {
	case ResultOk:
		return "Ok"
	case ResultCheckCondition:
		return "CheckCondition"
	case ResultBusy:
		return "Busy"
	case ResultTransportError:
		return "TransportError"
	case ResultAborted:
		return "Aborted"
	case ResultRequeue:
		return "Requeue"
	}
	return "Unknown"
}

// Retryable reports whether the caller may simply resubmit the command.
func (r CommandResult) Retryable() bool {
	return r == ResultBusy || r == ResultRequeue
}

// TMFunction selects a task management operation.
type TMFunction uint8

// The task management functions the engine issues.
const (
	TMAbortTask     TMFunction = 0x01
	TMAbortTaskSet  TMFunction = 0x02
	TMClearTaskSet  TMFunction = 0x04
	TMLogicalReset  TMFunction = 0x08
	TMQueryTask     TMFunction = 0x80
	TMQueryTaskSet  TMFunction = 0x81
)

func (f TMFunction) String() string {
	switch f {
	case TMAbortTask:
		return "AbortTask"
	case TMAbortTaskSet:
		return "AbortTaskSet"
	case TMClearTaskSet:
		return "ClearTaskSet"
	case TMLogicalReset:
		return "LogicalUnitReset"
	case TMQueryTask:
		return "QueryTask"
	case TMQueryTaskSet:
		return "QueryTaskSet"
	}
	return "Unknown"
}

// TMResponse is the functional response to a task management request.
type TMResponse uint8

// The possible task management responses.
const (
	TMFuncComplete   TMResponse = 0x00
	TMFuncNotSupported TMResponse = 0x04
	TMFuncFailed     TMResponse = 0x05
	TMFuncSucceeded  TMResponse = 0x08
	TMIncorrectLUN   TMResponse = 0x09
	TMTaskPending    TMResponse = 0x0A // query-task: the tag is still in the device
)

// Ok reports whether the device accepted and completed the function.
func (r TMResponse) Ok() bool {
	return r == TMFuncComplete || r == TMFuncSucceeded
}
