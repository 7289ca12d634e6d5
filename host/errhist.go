package host

import "time"

// ErrorCategory names one class of detected errors, matching the hardware's
// per-layer error reporting.
type ErrorCategory int

// The tracked error categories.
const (
	ErrPhy ErrorCategory = iota
	ErrDataLink
	ErrNetwork
	ErrTransport
	ErrDME
	ErrFatal
	ErrLinkLost

	nErrorCategories
)

func (c ErrorCategory) String() string {
	switch c {
	case ErrPhy:
		return "phy"
	case ErrDataLink:
		return "datalink"
	case ErrNetwork:
		return "network"
	case ErrTransport:
		return "transport"
	case ErrDME:
		return "dme"
	case ErrFatal:
		return "fatal"
	case ErrLinkLost:
		return "linklost"
	}
	return "unknown"
}

// errorRingLen is the history depth per category.
const errorRingLen = 8

// ErrorEntry is one recorded error: the raw status word and when it was
// seen.
type ErrorEntry struct {
	Value uint32
	At    time.Time
}

// ErrorRing is a fixed-length error history, overwritten oldest-first.
type ErrorRing struct {
	entries []ErrorEntry
	pos     int
	count   int
}

// NewErrorRing creates a ring holding n entries.
func NewErrorRing(n int) *ErrorRing {
	return &ErrorRing{entries: make([]ErrorEntry, n)}
}

// Push records one error, overwriting the oldest entry when full.
func (r *ErrorRing) Push(value uint32) {
	r.entries[r.pos] = ErrorEntry{Value: value, At: time.Now()}
	r.pos = (r.pos + 1) % len(r.entries)
	if r.count < len(r.entries) {
		r.count++
	}
}

// Len returns how many entries are recorded, at most the ring length.
func (r *ErrorRing) Len() int {
	return r.count
}

// Entries returns the recorded errors, oldest first.
func (r *ErrorRing) Entries() []ErrorEntry {
	out := make([]ErrorEntry, 0, r.count)
	start := r.pos - r.count
	for i := 0; i < r.count; i++ {
		idx := (start + i + len(r.entries)) % len(r.entries)
		out = append(out, r.entries[idx])
	}
	return out
}

// Clear forgets the history.
func (r *ErrorRing) Clear() {
	r.pos = 0
	r.count = 0
}

// ErrorHistory returns a copy of the recorded errors for a category.
func (c *Controller) ErrorHistory(cat ErrorCategory) []ErrorEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errHist[cat].Entries()
}
