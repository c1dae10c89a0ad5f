package console

import "sync"

// listeners は登録順に通知するコールバックの集合。
type listeners[T any] struct {
	mu      sync.Mutex
	nextID  int
	entries []listenerEntry[T]
}

type listenerEntry[T any] struct {
	id int
	fn func(T)
}

func (l *listeners[T]) add(fn func(T)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	id := l.nextID
	l.entries = append(l.entries, listenerEntry[T]{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			for i, e := range l.entries {
				if e.id == id {
					l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
					return
				}
			}
		})
	}
}

func (l *listeners[T]) emit(v T) {
	l.mu.Lock()
	fns := make([]func(T), len(l.entries))
	for i, e := range l.entries {
		fns[i] = e.fn
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

func (l *listeners[T]) clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}
