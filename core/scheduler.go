package core

import (
	"container/heap"
	"fmt"
)

// EventKind identifies the type of a scheduled event. Every continuation in
// the simulation is expressed as a typed event dispatched through the
// scheduler's handler table, never as an ad hoc captured closure. This
// keeps pending work inspectable and cancellable.
type EventKind int

const (
	EventUnknown EventKind = iota
	// EventEnvironmentTick recomputes the weather state. Payload: *Environment.
	EventEnvironmentTick
	// EventEndRain clears an active rain episode. Payload: *Environment.
	EventEndRain
	// EventDeviceCycle runs one transmit cycle. Payload: *Device.
	EventDeviceCycle
	// EventSensorRecover ends a sensor malfunction episode. Payload: *Sensor.
	EventSensorRecover
	// EventPacketDelivery delivers a transmitted packet to the gateway
	// after the simulated airtime + jitter. Payload: *Delivery.
	EventPacketDelivery
	// EventGatewayCheck evaluates gateway availability. Payload: *Gateway.
	EventGatewayCheck
	// EventGatewayRestore returns the gateway to nominal uptime. Payload: *Gateway.
	EventGatewayRestore
)

func (k EventKind) String() string {
	switch k {
	case EventEnvironmentTick:
		return "environment_tick"
	case EventEndRain:
		return "end_rain"
	case EventDeviceCycle:
		return "device_cycle"
	case EventSensorRecover:
		return "sensor_recover"
	case EventPacketDelivery:
		return "packet_delivery"
	case EventGatewayCheck:
		return "gateway_check"
	case EventGatewayRestore:
		return "gateway_restore"
	default:
		return "unknown"
	}
}

// EventID names a pending event so it can be cancelled.
type EventID uint64

// ScheduledEvent is a future continuation: at Time, the handler registered
// for Kind runs with this event. Payload carries the target component.
type ScheduledEvent struct {
	ID      EventID
	Time    float64 // absolute simulated seconds
	Kind    EventKind
	Payload any

	seq       uint64 // insertion order, breaks Time ties FIFO
	cancelled bool
}

// Handler processes one dispatched event.
type Handler func(ev ScheduledEvent)

// Scheduler owns the simulated clock and the pending-event queue. Events
// fire in non-decreasing time order with FIFO tie-breaking, so a run is
// deterministic for a fixed seed and insertion order. The clock only moves
// inside Step; components read it via Now and never advance it themselves.
type Scheduler struct {
	now      float64
	nextID   EventID
	nextSeq  uint64
	queue    eventQueue
	byID     map[EventID]*ScheduledEvent
	handlers map[EventKind]Handler
}

// NewScheduler returns an empty scheduler at time zero.
func NewScheduler() *Scheduler {
	return &Scheduler{
		byID:     make(map[EventID]*ScheduledEvent),
		handlers: make(map[EventKind]Handler),
	}
}

// Now returns the current simulated time in seconds.
func (s *Scheduler) Now() float64 { return s.now }

// Handle registers the handler for an event kind. Registration is
// idempotent: component constructors register their kinds, and building
// several components of the same type must not trample an installed
// handler.
func (s *Scheduler) Handle(kind EventKind, h Handler) {
	if _, ok := s.handlers[kind]; ok {
		return
	}
	s.handlers[kind] = h
}

// Schedule enqueues an event delay seconds from now. A negative delay is
// rejected; zero is allowed and fires at the current time, after events
// already queued for it.
func (s *Scheduler) Schedule(delay float64, kind EventKind, payload any) (EventID, error) {
	if delay < 0 {
		return 0, fmt.Errorf("schedule %s: negative delay %.3f", kind, delay)
	}
	return s.scheduleAt(s.now+delay, kind, payload), nil
}

// MustSchedule is Schedule for delays the caller knows are non-negative
// (intervals and sampled durations). It panics on a negative delay, which
// would indicate a bug in the calling process, not an input error.
func (s *Scheduler) MustSchedule(delay float64, kind EventKind, payload any) EventID {
	id, err := s.Schedule(delay, kind, payload)
	if err != nil {
		panic(err)
	}
	return id
}

func (s *Scheduler) scheduleAt(at float64, kind EventKind, payload any) EventID {
	s.nextID++
	s.nextSeq++
	ev := &ScheduledEvent{
		ID:      s.nextID,
		Time:    at,
		Kind:    kind,
		Payload: payload,
		seq:     s.nextSeq,
	}
	heap.Push(&s.queue, ev)
	s.byID[ev.ID] = ev
	return ev.ID
}

// Cancel marks a pending event so it will be skipped instead of dispatched.
// It reports whether the event was still pending.
func (s *Scheduler) Cancel(id EventID) bool {
	ev, ok := s.byID[id]
	if !ok || ev.cancelled {
		return false
	}
	ev.cancelled = true
	return true
}

// Pending returns the number of live queued events.
func (s *Scheduler) Pending() int { return len(s.byID) }

// Step pops and dispatches the earliest pending event if it fires at or
// before until, advancing the clock to its fire time. It reports whether an
// event was dispatched. Cancelled events are discarded without advancing
// the clock.
func (s *Scheduler) Step(until float64) bool {
	for s.queue.Len() > 0 {
		ev := s.queue[0]
		if ev.cancelled {
			heap.Pop(&s.queue)
			delete(s.byID, ev.ID)
			continue
		}
		if ev.Time > until {
			return false
		}
		heap.Pop(&s.queue)
		delete(s.byID, ev.ID)
		s.now = ev.Time
		if h, ok := s.handlers[ev.Kind]; ok {
			h(*ev)
		}
		return true
	}
	return false
}

// Run dispatches events until none remain with fire time <= until. The
// clock lands on the last dispatched event's time; a forced stop at the
// horizon has no side effects on already-recorded history.
func (s *Scheduler) Run(until float64) {
	for s.Step(until) {
	}
}

// eventQueue is a min-heap ordered by (Time, seq).
type eventQueue []*ScheduledEvent

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].Time != q[j].Time {
		return q[i].Time < q[j].Time
	}
	return q[i].seq < q[j].seq
}

func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *eventQueue) Push(x any) { *q = append(*q, x.(*ScheduledEvent)) }

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return ev
}
