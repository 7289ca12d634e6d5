package evlog

import (
	"sync"
	"sync/atomic"

	"github.com/openufs/ufshost/host"
)

// A Sink adapts a Recorder to the controller's event interface. Record never
// blocks: events go through a buffered channel to a writer goroutine, and
// are counted as dropped when the buffer is full, because the controller
// records from its interrupt path.
type Sink struct {
	controller string
	rec        *Recorder
	ch         chan host.Event
	dropped    int64

	closeOnce sync.Once
	done      chan struct{}
}

// NewSink creates a sink feeding the recorder, labeling every row with the
// controller name.
func NewSink(controller string, rec *Recorder) *Sink {
	s := &Sink{
		controller: controller,
		rec:        rec,
		ch:         make(chan host.Event, 4096),
		done:       make(chan struct{}),
	}

	go s.run()

	return s
}

// Record implements host.EventSink.
func (s *Sink) Record(ev host.Event) {
	select {
	case s.ch <- ev:
	default:
		atomic.AddInt64(&s.dropped, 1)
	}
}

// Dropped returns how many events were lost to a full buffer.
func (s *Sink) Dropped() int64 {
	return atomic.LoadInt64(&s.dropped)
}

// Close stops the writer after the buffered events are written.
func (s *Sink) Close() {
	s.closeOnce.Do(func() {
		close(s.ch)
		<-s.done
	})
}

func (s *Sink) run() {
	for ev := range s.ch {
		s.rec.Insert(Row{
			WhenNs:     ev.When.UnixNano(),
			Controller: s.controller,
			Kind:       ev.Kind,
			Tag:        ev.Tag,
			Detail:     ev.Detail,
		})
	}
	close(s.done)
}
