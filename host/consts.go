package host

import "time"

// Timeouts and retry bounds of the engines. The values follow the transport
// characteristics: link-control commands complete in hundreds of
// milliseconds at worst, task management within 100 ms.
const (
	uicCommandTimeout = 500 * time.Millisecond

	nopOutTimeout = 30 * time.Millisecond
	nopOutRetries = 10

	queryTimeout = 1500 * time.Millisecond
	queryRetries = 3

	tmCommandTimeout = 100 * time.Millisecond

	linkStartupRetries    = 3
	hibernateEnterRetries = 3

	// maxHostResetRetries bounds the full reset-and-restore attempts before
	// the controller enters the terminal error state.
	maxHostResetRetries = 5

	// enableReadyTimeout bounds the wait for the controller to come out of
	// reset after an enable write.
	enableReadyTimeout = 100 * time.Millisecond

	// doorbellDrainTimeout bounds the wait for outstanding commands to
	// finish before a clock scale.
	doorbellDrainTimeout = time.Second

	// reapRereadBound limits how many times the reap loop chases new
	// completions before yielding, to avoid starving the interrupt path.
	reapRereadBound = 8

	// irqLoopBound limits how many times one interrupt invocation re-reads
	// the status register.
	irqLoopBound = 4
)

// Defaults for the tunables the Builder exposes.
const (
	// DefaultGatingDelay is how long the controller stays idle before the
	// gate work actually stops the clocks.
	DefaultGatingDelay = 150 * time.Millisecond

	// DefaultNacRecoveryDelay is how long the error handler waits before
	// re-checking for severe errors when only a DL NAC was observed. The
	// right value is deployment specific, so it is a tunable.
	DefaultNacRecoveryDelay = 50 * time.Millisecond

	// DefaultSlotWait is how long a submitter waits for a free command
	// slot before giving up with a busy result.
	DefaultSlotWait = 100 * time.Millisecond
)
