package host

import "time"

// An Event is one observable thing the controller did: a command lifecycle
// step, a state change, a recovery pass, a power transition.
type Event struct {
	When   time.Time
	Kind   string
	Tag    int
	Detail string
}

// Event kinds the controller records.
const (
	EventDispatch   = "dispatch"
	EventComplete   = "complete"
	EventUIC        = "uic"
	EventTaskMgmt   = "taskmgmt"
	EventStateChange = "state"
	EventGate       = "gate"
	EventScale      = "scale"
	EventError      = "error"
	EventRecovery   = "recovery"
	EventPM         = "pm"
)

// An EventSink consumes controller events. Implementations must not block:
// events may be recorded from the interrupt path.
type EventSink interface {
	Record(ev Event)
}

type nopSink struct{}

func (nopSink) Record(Event) {}

func (c *Controller) record(kind string, tag int, detail string) {
	c.sink.Record(Event{
		When:   time.Now(),
		Kind:   kind,
		Tag:    tag,
		Detail: detail,
	})
}
