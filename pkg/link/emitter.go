package link

import "sync"

// emitter is a typed fan-out with explicit unsubscription.
// Subscribers run in registration order on the emitting goroutine.
type emitter[T any] struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription[T]
}

type subscription[T any] struct {
	id uint64
	fn func(T)
}

// subscribe registers fn and returns an idempotent unsubscribe func.
func (e *emitter[T]) subscribe(fn func(T)) func() {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.subs = append(e.subs, subscription[T]{id: id, fn: fn})
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			for i, s := range e.subs {
				if s.id == id {
					e.subs = append(e.subs[:i:i], e.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// emit delivers v to a snapshot of the current subscribers.
func (e *emitter[T]) emit(v T) int {
	e.mu.RLock()
	subs := e.subs
	e.mu.RUnlock()

	for _, s := range subs {
		s.fn(v)
	}
	return len(subs)
}

func (e *emitter[T]) count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subs)
}
