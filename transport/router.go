package transport

import (
	"sort"
	"sync"
)

type entry struct {
	id       uint64
	listener Listener
}

// router is the routing table keyed by event name or canonical topic.
type router struct {
	mu        sync.Mutex
	nextID    uint64
	listeners map[string][]entry
	// released is called once the last listener of a topic is removed.
	released func(topic string)
}

func newRouter(released func(topic string)) *router {
	return &router{listeners: make(map[string][]entry), released: released}
}

func (r *router) add(name string, l Listener) func() {
	if l == nil {
		return func() {}
	}
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.listeners[name] = append(r.listeners[name], entry{id: id, listener: l})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(name, id) })
	}
}

func (r *router) remove(name string, id uint64) {
	r.mu.Lock()
	entries := r.listeners[name]
	for i, e := range entries {
		if e.id == id {
			entries = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
	emptied := len(entries) == 0
	if emptied {
		delete(r.listeners, name)
	} else {
		r.listeners[name] = entries
	}
	r.mu.Unlock()

	if emptied && !IsReserved(name) && r.released != nil {
		r.released(name)
	}
}

// dispatch calls the listeners registered for ev.Name in registration order.
// The table is not locked while listeners run so they may add or remove
// listeners themselves.
func (r *router) dispatch(ev Event) int {
	r.mu.Lock()
	entries := append([]entry(nil), r.listeners[ev.Name]...)
	r.mu.Unlock()
	for _, e := range entries {
		e.listener(ev)
	}
	return len(entries)
}

func (r *router) has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners[name]) > 0
}

// topics returns the topics that currently have listeners.
func (r *router) topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.listeners))
	for name := range r.listeners {
		if !IsReserved(name) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
