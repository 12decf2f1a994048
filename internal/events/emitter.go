package events

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// Emitter receives run events. Implementations must be safe for concurrent use.
type Emitter interface {
	Emit(e *Event)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(e *Event)

// Emit implements Emitter.
func (f EmitterFunc) Emit(e *Event) { f(e) }

// Nop discards every event.
var Nop Emitter = EmitterFunc(func(*Event) {})

// Multi fans each event out to every emitter in order.
type Multi []Emitter

// Emit implements Emitter.
func (m Multi) Emit(e *Event) {
	for _, em := range m {
		if em != nil {
			em.Emit(e)
		}
	}
}

// Filter forwards only events at or above MinSeverity, plus any type listed in Always.
type Filter struct {
	Next        Emitter
	MinSeverity EventSeverity
	Always      []EventType
}

// Emit implements Emitter.
func (f Filter) Emit(e *Event) {
	for _, t := range f.Always {
		if e.Type == t {
			f.Next.Emit(e)
			return
		}
	}
	if e.Severity.Rank() >= f.MinSeverity.Rank() {
		f.Next.Emit(e)
	}
}

// JSONLWriter writes each event as one JSON object per line.
type JSONLWriter struct {
	mu     sync.Mutex
	enc    *json.Encoder
	closer io.Closer
	err    error
}

// NewJSONLWriter writes events to w.
func NewJSONLWriter(w io.Writer) *JSONLWriter {
	jw := &JSONLWriter{enc: json.NewEncoder(w)}
	if c, ok := w.(io.Closer); ok {
		jw.closer = c
	}
	return jw
}

// OpenJSONLFile creates (or truncates) path and writes events to it.
func OpenJSONLFile(path string) (*JSONLWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create events file: %w", err)
	}
	return NewJSONLWriter(f), nil
}

// Emit implements Emitter. The first write error is kept and returned by Close.
func (w *JSONLWriter) Emit(e *Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return
	}
	w.err = w.enc.Encode(e)
}

// Close closes the underlying writer if it is closable.
func (w *JSONLWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closer != nil {
		if err := w.closer.Close(); err != nil && w.err == nil {
			w.err = err
		}
	}
	return w.err
}

// Recorder keeps every event in memory. Useful for reports and tests.
type Recorder struct {
	mu     sync.Mutex
	events []*Event
}

// Emit implements Emitter.
func (r *Recorder) Emit(e *Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []*Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns recorded events of the given type.
func (r *Recorder) OfType(t EventType) []*Event {
	var out []*Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
