package native

import "sync"

// SignalHub is a mutex-guarded fan-out of native signals to subscribed
// handlers. Concrete SignalSource implementations embed it and call Publish
// when the platform raises a signal.
type SignalHub struct {
	mu        sync.Mutex
	nextID    int
	listeners map[Signal]map[int]Handler
}

var _ SignalSource = (*SignalHub)(nil)

// Subscribe registers handler for the given signal.
func (h *SignalHub) Subscribe(signal Signal, handler Handler) Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.listeners == nil {
		h.listeners = make(map[Signal]map[int]Handler)
	}
	if h.listeners[signal] == nil {
		h.listeners[signal] = make(map[int]Handler)
	}

	h.nextID++
	id := h.nextID
	h.listeners[signal][id] = handler

	return &hubSubscription{hub: h, signal: signal, id: id}
}

// Publish invokes every handler subscribed to the signal. Handlers run on the
// caller's goroutine, outside the hub lock, so a handler may re-enter the hub.
func (h *SignalHub) Publish(signal Signal, payload any) {
	h.mu.Lock()
	handlers := make([]Handler, 0, len(h.listeners[signal]))
	for _, fn := range h.listeners[signal] {
		handlers = append(handlers, fn)
	}
	h.mu.Unlock()

	for _, fn := range handlers {
		fn(payload)
	}
}

// ListenerCount returns the number of handlers subscribed to the signal.
func (h *SignalHub) ListenerCount(signal Signal) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners[signal])
}

type hubSubscription struct {
	hub    *SignalHub
	signal Signal
	id     int
}

func (s *hubSubscription) Remove() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	delete(s.hub.listeners[s.signal], s.id)
}
