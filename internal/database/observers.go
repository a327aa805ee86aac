package database

import (
	"sync"
)

// Origin says which side of the sync boundary a write came from.
type Origin string

const (
	// OriginLocal is a user-driven mutation; it makes records dirty and should
	// eventually schedule a sync.
	OriginLocal Origin = "local"
	// OriginSync is a write applied by the sync engine itself (pulled changes,
	// acknowledgements). Observers still fire so reactive queries refresh, but
	// sync triggers ignore these events.
	OriginSync Origin = "sync"
)

// Event describes one committed change to a table.
type Event struct {
	Table  string
	Origin Origin
}

// Handler receives committed-change events. Handlers run synchronously on the
// writer's goroutine and must not block.
type Handler func(Event)

const allTables = "*"

// Observers is the subscribe-by-table registry behind the record store's
// reactive layer.
type Observers struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]Handler
}

func NewObservers() *Observers {
	return &Observers{subs: make(map[string]map[int]Handler)}
}

// Subscribe registers a handler for a table and returns a cancel func.
// Cancelling twice is safe.
func (o *Observers) Subscribe(table string, h Handler) (cancel func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.nextID++
	id := o.nextID
	if o.subs[table] == nil {
		o.subs[table] = make(map[int]Handler)
	}
	o.subs[table][id] = h

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.subs[table], id)
	}
}

// Notify fires all handlers subscribed to the event's table, plus wildcard
// subscribers. Handlers registered during delivery are not invoked for the
// current event.
func (o *Observers) Notify(ev Event) {
	o.mu.RLock()
	handlers := make([]Handler, 0, len(o.subs[ev.Table])+len(o.subs[allTables]))
	for _, h := range o.subs[ev.Table] {
		handlers = append(handlers, h)
	}
	for _, h := range o.subs[allTables] {
		handlers = append(handlers, h)
	}
	o.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}
