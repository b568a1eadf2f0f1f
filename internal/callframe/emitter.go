package callframe

import "sync"

// Subscription identifies one On registration so it can be removed with Off.
type Subscription struct {
	event string
	id    uint64
}

type subscriber struct {
	id uint64
	h  Handler
}

// Emitter is a named-event subscription list. Frame implementations embed it
// to provide On and Off.
type Emitter struct {
	mu       sync.Mutex
	nextID   uint64
	handlers map[string][]subscriber
}

// On registers h for event and returns the subscription to pass to Off.
func (e *Emitter) On(event string, h Handler) Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handlers == nil {
		e.handlers = make(map[string][]subscriber)
	}
	e.nextID++
	e.handlers[event] = append(e.handlers[event], subscriber{id: e.nextID, h: h})
	return Subscription{event: event, id: e.nextID}
}

// Off removes a subscription. Removing an unknown subscription is a no-op.
func (e *Emitter) Off(sub Subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()

	subs := e.handlers[sub.event]
	for i, s := range subs {
		if s.id == sub.id {
			e.handlers[sub.event] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(e.handlers[sub.event]) == 0 {
		delete(e.handlers, sub.event)
	}
}

// Emit calls the handlers of ev.Name in registration order. Handlers may call
// On and Off; changes apply from the next Emit.
func (e *Emitter) Emit(ev Event) {
	e.mu.Lock()
	subs := append([]subscriber(nil), e.handlers[ev.Name]...)
	e.mu.Unlock()

	for _, s := range subs {
		s.h(ev)
	}
}

// Count returns the number of live subscriptions across all events.
func (e *Emitter) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for _, subs := range e.handlers {
		n += len(subs)
	}
	return n
}
