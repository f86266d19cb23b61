package handle

import (
	"errors"
	"sync"

	enginebridge "github.com/wippyai/engine-bridge"
)

// ErrClosed is returned by Insert after Close.
var ErrClosed = errors.New("handle table closed")

// EventType distinguishes lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
)

// Event is a handle lifecycle notification.
type Event struct {
	Value  any
	Handle enginebridge.Handle
	Rep    uint32
	Type   EventType
}

// Observer receives handle lifecycle events.
type Observer interface {
	OnHandleEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnHandleEvent(e Event) { f(e) }

// Dropper is optionally implemented by values that need cleanup when
// their handle is removed or the table is closed.
type Dropper interface {
	Drop()
}

type entry struct {
	value any
	rep   uint32
	valid bool
}

// Table is a concurrency-safe handle table.
type Table struct {
	entries   []entry
	freeList  []enginebridge.Handle
	observers []Observer
	mu        sync.RWMutex
	obsMu     sync.RWMutex
	closed    bool
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		entries:  make([]entry, 0, 4),
		freeList: make([]enginebridge.Handle, 0, 4),
	}
}

// Insert records rep with its host-side value and returns a fresh handle.
func (t *Table) Insert(rep uint32, value any) (enginebridge.Handle, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, ErrClosed
	}

	e := entry{value: value, rep: rep, valid: true}

	var h enginebridge.Handle
	if n := len(t.freeList); n > 0 {
		h = t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
		t.entries[h-1] = e
	} else {
		t.entries = append(t.entries, e)
		h = enginebridge.Handle(len(t.entries))
	}
	t.mu.Unlock()

	t.notify(Event{Type: EventCreated, Handle: h, Rep: rep, Value: value})
	return h, nil
}

func (t *Table) lookup(h enginebridge.Handle) (entry, bool) {
	if h == 0 {
		return entry{}, false
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	idx := int(h) - 1
	if idx >= len(t.entries) {
		return entry{}, false
	}
	e := t.entries[idx]
	return e, e.valid
}

// Get returns the host-side value for h.
func (t *Table) Get(h enginebridge.Handle) (any, bool) {
	e, ok := t.lookup(h)
	return e.value, ok
}

// Rep returns the engine-side representation for h.
func (t *Table) Rep(h enginebridge.Handle) (uint32, bool) {
	e, ok := t.lookup(h)
	return e.rep, ok
}

// Remove invalidates h and returns its value. Values implementing Dropper
// are dropped.
func (t *Table) Remove(h enginebridge.Handle) (any, bool) {
	if h == 0 {
		return nil, false
	}

	t.mu.Lock()
	idx := int(h) - 1
	if idx >= len(t.entries) || !t.entries[idx].valid {
		t.mu.Unlock()
		return nil, false
	}
	e := t.entries[idx]
	t.entries[idx] = entry{}
	t.freeList = append(t.freeList, h)
	t.mu.Unlock()

	if d, ok := e.value.(Dropper); ok {
		d.Drop()
	}
	t.notify(Event{Type: EventDropped, Handle: h, Rep: e.rep, Value: e.value})
	return e.value, true
}

// Len returns the number of live handles.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	count := 0
	for _, e := range t.entries {
		if e.valid {
			count++
		}
	}
	return count
}

// Each iterates over live handles until fn returns false.
func (t *Table) Each(fn func(h enginebridge.Handle, rep uint32, value any) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i, e := range t.entries {
		if e.valid {
			if !fn(enginebridge.Handle(i+1), e.rep, e.value) {
				break
			}
		}
	}
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Close drops every live value and rejects further inserts. Observers
// see a dropped event for each live handle.
func (t *Table) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	entries := t.entries
	t.entries = nil
	t.freeList = nil
	t.mu.Unlock()

	for i, e := range entries {
		if !e.valid {
			continue
		}
		if d, ok := e.value.(Dropper); ok {
			d.Drop()
		}
		t.notify(Event{Type: EventDropped, Handle: enginebridge.Handle(i + 1), Rep: e.rep, Value: e.value})
	}
	return nil
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnHandleEvent(e)
	}
}
