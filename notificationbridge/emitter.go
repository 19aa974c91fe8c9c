package notificationbridge

import "sync"

// Event names the public events the bridge republishes. The surface is a
// fixed enumerated set, not a general pub/sub framework.
type Event string

const (
	// EventRegistered carries the device token string.
	EventRegistered Event = "notifications.registered"
	// EventRegistrationFailed carries the native registration error, verbatim.
	EventRegistrationFailed Event = "notifications.registration.fail"
	// EventReceived carries the full notification payload, including the
	// foreground flag distinguishing cold-launch delivery from live delivery.
	EventReceived Event = "notifications.received"
	// EventSeen carries no argument. It is synthesized locally on the
	// mark-seen command paths, never by the native layer.
	EventSeen Event = "notifications.seen"
	// EventError carries errors raised inside signal handlers, where no
	// caller is positioned to catch a return value.
	EventError Event = "notifications.error"
)

// Listener receives an emitted event argument.
type Listener func(arg any)

// Emitter is a named-event listener registry. The bridge owns one rather
// than inheriting emitter behavior.
type Emitter struct {
	mu        sync.Mutex
	nextID    int
	listeners map[Event]map[int]Listener
}

// Subscription is a registered event listener; Remove detaches it.
type Subscription struct {
	emitter *Emitter
	event   Event
	id      int
}

// On registers listener for the given event.
func (e *Emitter) On(event Event, listener Listener) Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.listeners == nil {
		e.listeners = make(map[Event]map[int]Listener)
	}
	if e.listeners[event] == nil {
		e.listeners[event] = make(map[int]Listener)
	}

	e.nextID++
	id := e.nextID
	e.listeners[event][id] = listener

	return Subscription{emitter: e, event: event, id: id}
}

// Remove detaches the listener. Removing twice is a no-op.
func (s Subscription) Remove() {
	if s.emitter == nil {
		return
	}
	s.emitter.mu.Lock()
	defer s.emitter.mu.Unlock()
	delete(s.emitter.listeners[s.event], s.id)
}

// Emit invokes every listener registered for the event with arg. Listeners
// run on the caller's goroutine, outside the registry lock.
func (e *Emitter) Emit(event Event, arg any) {
	e.mu.Lock()
	listeners := make([]Listener, 0, len(e.listeners[event]))
	for _, fn := range e.listeners[event] {
		listeners = append(listeners, fn)
	}
	e.mu.Unlock()

	for _, fn := range listeners {
		fn(arg)
	}
}
