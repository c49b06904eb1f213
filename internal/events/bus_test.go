package events

import (
	"sync"
	"testing"
)

func TestBusPublishCallsListenersInOrder(t *testing.T) {
	bus := NewBus()
	var got []string

	bus.Subscribe(LedgerChanged, func(Name) { got = append(got, "a") })
	bus.Subscribe(LedgerChanged, func(Name) { got = append(got, "b") })
	bus.Subscribe(LedgerReloaded, func(Name) { got = append(got, "other") })

	bus.Publish(LedgerChanged)

	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected deliveries: %v", got)
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()
	calls := 0
	unsubscribe := bus.Subscribe(LedgerChanged, func(Name) { calls++ })

	bus.Publish(LedgerChanged)
	unsubscribe()
	unsubscribe()
	bus.Publish(LedgerChanged)

	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestBusPanickingListenerDoesNotStopOthers(t *testing.T) {
	bus := NewBus()
	reached := false
	bus.Subscribe(LedgerChanged, func(Name) { panic("boom") })
	bus.Subscribe(LedgerChanged, func(Name) { reached = true })

	bus.Publish(LedgerChanged)

	if !reached {
		t.Fatal("second listener was not called")
	}
}

func TestBusZeroValueAndNil(t *testing.T) {
	var nilBus *Bus
	nilBus.Publish(LedgerChanged)

	var bus Bus
	bus.Publish(LedgerChanged)
	called := false
	bus.Subscribe(LedgerChanged, func(Name) { called = true })
	bus.Publish(LedgerChanged)
	if !called {
		t.Fatal("zero-value bus did not deliver")
	}
}

func TestBusConcurrentUse(t *testing.T) {
	bus := NewBus()
	var mu sync.Mutex
	count := 0

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unsub := bus.Subscribe(LedgerChanged, func(Name) {
				mu.Lock()
				count++
				mu.Unlock()
			})
			bus.Publish(LedgerChanged)
			unsub()
		}()
	}
	wg.Wait()

	if count == 0 {
		t.Fatal("expected some deliveries")
	}
}
