package sigengine

import (
	"sync"
	"time"
)

// EventKind is the discriminant of Event.
type EventKind string

const (
	EventIdle           EventKind = "idle"
	EventScheduled      EventKind = "scheduled"
	EventOpened         EventKind = "opened"
	EventActive         EventKind = "active"
	EventClosed         EventKind = "closed"
	EventCancelled      EventKind = "cancelled"
	EventRiskRejection  EventKind = "risk-rejection"
	EventDone           EventKind = "done"
	EventError          EventKind = "error"
)

// Event is the single struct delivered on the bus for every kind of
// event, discriminated by Kind. It is not a sum type: fields that do not
// apply to Kind are left at their zero values, so callers switch on Kind
// first.
type Event struct {
	Kind         EventKind
	StrategyName string
	Symbol       string
	TimestampMS  int64
	Signal       *SignalRecord
	CloseReason  CloseReason
	CancelReason CancelReason
	PNL          *PNLResult
	Reason       string // validation/risk rejection reason, or error text
	Err          error
	Backtest     bool // set on EventDone
}

const lateSubscriberBuffer = 25

// EventBus delivers lifecycle events to subscribers in emission order.
// Each subscriber gets its own buffered channel (256 events) drained by a
// dedicated goroutine, so a slow subscriber does not delay delivery to
// others until its buffer is full; Emit then blocks on that subscriber's
// channel (spec.md §4.9/§9: "a dedicated serial executor per subscriber").
type EventBus struct {
	mu          sync.Mutex
	subscribers []*subscriber
	recent      []Event // bounded ring for late attach
}

type subscriber struct {
	ch      chan Event
	handler func(Event)
	done    chan struct{}
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{}
}

// Subscribe registers handler to receive every event emitted from this
// point forward, plus up to lateSubscriberBuffer recently retained
// events (best-effort replay for late attach; spec.md §4.8/§4.9).
func (b *EventBus) Subscribe(handler func(Event)) (unsubscribe func()) {
	b.mu.Lock()
	sub := &subscriber{
		ch:   make(chan Event, 256),
		done: make(chan struct{}),
	}
	replay := append([]Event(nil), b.recent...)
	b.subscribers = append(b.subscribers, sub)
	b.mu.Unlock()

	go func() {
		for _, e := range replay {
			handler(e)
		}
		for {
			select {
			case e, ok := <-sub.ch:
				if !ok {
					close(sub.done)
					return
				}
				handler(e)
			}
		}
	}()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subscribers {
			if s == sub {
				b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
				break
			}
		}
		close(sub.ch)
	}
}

// Emit delivers an event to every current subscriber and retains it for
// late attach. The primary delivery path never drops events; back-
// pressure is the subscriber's responsibility (spec.md §4.9).
func (b *EventBus) Emit(e Event) {
	if e.TimestampMS == 0 {
		e.TimestampMS = time.Now().UnixMilli()
	}

	b.mu.Lock()
	b.recent = append(b.recent, e)
	if len(b.recent) > lateSubscriberBuffer {
		b.recent = b.recent[len(b.recent)-lateSubscriberBuffer:]
	}
	subs := append([]*subscriber(nil), b.subscribers...)
	b.mu.Unlock()

	for _, s := range subs {
		s.ch <- e
	}
}
