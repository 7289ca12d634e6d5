package ufs

import "errors"

// Sentinel errors returned across the engine APIs. Callers match them with
// errors.Is.
var (
	// ErrBusy means no resource was free. The operation may be retried.
	ErrBusy = errors.New("ufs: busy")

	// ErrTimeout means the operation did not complete within its bound.
	ErrTimeout = errors.New("ufs: timeout")

	// ErrRetry means asynchronous preparation is still pending and the
	// caller should try again shortly.
	ErrRetry = errors.New("ufs: try again")

	// ErrLinkBroken means the link is down and a recovery pass is required
	// before any further traffic.
	ErrLinkBroken = errors.New("ufs: link broken")

	// ErrControllerDead means recovery retries were exhausted and the
	// controller rejects all commands until a host reset.
	ErrControllerDead = errors.New("ufs: controller in terminal error state")

	// ErrNotOperational means the driver is not accepting commands in its
	// current state.
	ErrNotOperational = errors.New("ufs: not operational")

	// ErrInvalidTag means the tag does not name an in-flight command.
	ErrInvalidTag = errors.New("ufs: invalid tag")

	// ErrUICFailure means a link-control command completed with a failure
	// code.
	ErrUICFailure = errors.New("ufs: uic command failed")

	// ErrTaskRejected means the device returned a negative functional
	// response to a task management request.
	ErrTaskRejected = errors.New("ufs: task management function rejected")

	// ErrStopped means the controller was stopped while the operation was
	// waiting.
	ErrStopped = errors.New("ufs: controller stopped")
)
