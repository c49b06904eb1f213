// Package events is a synchronous in-process broadcast of named events.
//
// Events carry no payload: listeners react by reloading whatever they show.
// Publish runs every listener on the caller's goroutine before returning.
package events

import (
	"log/slog"
	"sync"
)

// Name identifies an event.
type Name string

const (
	// LedgerChanged is published after any successful write to the ledger.
	LedgerChanged Name = "ledger:changed"
	// LedgerReloaded is published after the store applied a fresh read-all.
	LedgerReloaded Name = "ledger:reloaded"
)

// Listener reacts to an event.
type Listener func(Name)

type subscription struct {
	id int
	fn Listener
}

// Bus is safe for concurrent use. The zero value is ready.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[Name][]subscription
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn for name and returns a func that removes it.
// Calling the returned func more than once is harmless.
func (b *Bus) Subscribe(name Name, fn Listener) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs == nil {
		b.subs = make(map[Name][]subscription)
	}
	b.nextID++
	id := b.nextID
	b.subs[name] = append(b.subs[name], subscription{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(name, id) })
	}
}

func (b *Bus) remove(name Name, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[name]
	for i, s := range subs {
		if s.id == id {
			b.subs[name] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Publish calls every listener of name in subscription order. A panicking
// listener is logged and does not stop the others.
func (b *Bus) Publish(name Name) {
	if b == nil {
		return
	}
	b.mu.RLock()
	subs := append([]subscription(nil), b.subs[name]...)
	b.mu.RUnlock()

	for _, s := range subs {
		deliver(name, s.fn)
	}
}

func deliver(name Name, fn Listener) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Event listener panicked", "event", string(name), "panic", r)
		}
	}()
	fn(name)
}

// Publisher is the narrow view of Bus that producers depend on.
type Publisher interface {
	Publish(Name)
}
