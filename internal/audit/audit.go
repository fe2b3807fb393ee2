package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// Kind names the membership operation an event records.
type Kind string

// Outcome reports whether the recorded operation succeeded.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Subject identifies who an event is about. UserID and Username are empty for
// application-wide events such as role creation.
type Subject struct {
	Application string `json:"application"`
	UserID      string `json:"user_id,omitempty"`
	Username    string `json:"username,omitempty"`
}

// Event is one membership audit record. It never carries passwords, answers
// or hashes.
type Event struct {
	Time     time.Time `json:"time"`
	Kind     Kind      `json:"event"`
	Outcome  Outcome   `json:"outcome"`
	Subject  Subject   `json:"subject"`
	RemoteIP string    `json:"remote_ip,omitempty"`
	// Reason is a stable failure code, or the rejection status of a create.
	Reason string `json:"reason,omitempty"`
	// Users and Roles list the names touched by role membership events.
	Users  []string          `json:"users,omitempty"`
	Roles  []string          `json:"roles,omitempty"`
	Detail map[string]string `json:"detail,omitempty"`
}

// Succeeded reports whether the event records a successful operation.
func (e Event) Succeeded() bool {
	return e.Outcome == OutcomeSuccess
}

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(ctx context.Context, event Event)

func (f SinkFunc) Emit(ctx context.Context, event Event) {
	f(ctx, event)
}

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, Event) {})

// ChannelSink hands events to a buffered channel. Emit waits for room until
// ctx is done.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(size int) *ChannelSink {
	return &ChannelSink{events: make(chan Event, max(size, 1))}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// Events is the receive side of the sink.
func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONLinesSink writes each event as one JSON document per line. Write
// failures are counted, never returned.
type JSONLinesSink struct {
	mu     sync.Mutex
	enc    *json.Encoder
	failed atomic.Uint64
}

func NewJSONLinesSink(w io.Writer) *JSONLinesSink {
	if w == nil {
		w = io.Discard
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONLinesSink{enc: enc}
}

func (s *JSONLinesSink) Emit(_ context.Context, event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}

	s.mu.Lock()
	err := s.enc.Encode(event)
	s.mu.Unlock()

	if err != nil {
		s.failed.Add(1)
	}
}

// Failed returns how many events could not be written.
func (s *JSONLinesSink) Failed() uint64 {
	return s.failed.Load()
}

// Filter forwards only the events keep accepts.
func Filter(next Sink, keep func(Event) bool) Sink {
	return SinkFunc(func(ctx context.Context, event Event) {
		if keep(event) {
			next.Emit(ctx, event)
		}
	})
}

// Failures accepts failed operations.
func Failures(event Event) bool {
	return event.Outcome == OutcomeFailure
}

// Fanout delivers every event to each sink in order. Nil sinks are skipped.
func Fanout(sinks ...Sink) Sink {
	targets := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			targets = append(targets, s)
		}
	}
	switch len(targets) {
	case 0:
		return Discard
	case 1:
		return targets[0]
	}
	return SinkFunc(func(ctx context.Context, event Event) {
		for _, s := range targets {
			s.Emit(ctx, event)
		}
	})
}
