package syncengine

import "sync"

// Broadcaster fans sync results out to interested listeners (UI badges,
// loggers, tests). Listeners are called synchronously in Publish order.
type Broadcaster struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[int]func(Result)
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{listeners: make(map[int]func(Result))}
}

// Subscribe registers a listener and returns a cancel function.
func (b *Broadcaster) Subscribe(fn func(Result)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.listeners[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners, id)
	}
}

// Publish delivers a result to all current listeners.
func (b *Broadcaster) Publish(result Result) {
	b.mu.RLock()
	listeners := make([]func(Result), 0, len(b.listeners))
	for _, fn := range b.listeners {
		listeners = append(listeners, fn)
	}
	b.mu.RUnlock()

	for _, fn := range listeners {
		fn(result)
	}
}
