package trace

import "sync"

// Sink receives trace events as the invalidator makes decisions.
type Sink interface {
	Record(event TraceEvent)
}

// NopSink drops every event.
type NopSink struct{}

func (NopSink) Record(TraceEvent) {}

// SafeRecord forwards event to s. A nil sink is ignored and a panicking sink
// cannot take the run down with it.
func SafeRecord(s Sink, event TraceEvent) {
	if s == nil {
		return
	}
	defer func() { _ = recover() }()
	s.Record(event)
}

// Recorder keeps events in memory. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []TraceEvent
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Record(event TraceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns the recorded events in recording order.
func (r *Recorder) Events() []TraceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TraceEvent(nil), r.events...)
}

// Trace returns the canonical trace of everything recorded so far.
func (r *Recorder) Trace(closureHash string) InvalidationTrace {
	t := InvalidationTrace{ClosureHash: closureHash, Events: r.Events()}
	t.Canonicalize()
	return t
}
