package events

import (
	"sync"
	"testing"
	"time"
)

func TestBusPublishSubscribe(t *testing.T) {
	bus := NewBus(64)
	defer bus.Close()

	var mu sync.Mutex
	var received []Event

	bus.Subscribe(func(e Event) {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
	}, EventTaskCancelled)

	bus.Publish(NewEvent(EventTaskCancelled, SourceTasks, map[string]any{"task_id": "task_1"}))
	bus.Publish(NewEvent(EventTaskSpawned, SourceTasks, map[string]any{"task_id": "task_2"}))

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	if len(received) != 1 {
		t.Fatalf("expected 1 event, got %d", len(received))
	}
	if received[0].Type != EventTaskCancelled {
		t.Errorf("expected task.cancelled, got %s", received[0].Type)
	}
}

func TestBusSubscribeAll(t *testing.T) {
	bus := NewBus(64)
	defer bus.Close()

	var mu sync.Mutex
	count := 0

	bus.Subscribe(func(e Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	bus.Publish(NewEvent(EventTaskSpawned, SourceTasks, nil))
	bus.Publish(NewEvent(EventDomainCreated, SourceIsolation, nil))

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 2 {
		t.Errorf("expected 2 events, got %d", count)
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus(64)
	defer bus.Close()

	var mu sync.Mutex
	count := 0

	unsub := bus.Subscribe(func(e Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	bus.Publish(NewEvent(EventTaskSpawned, SourceTasks, nil))
	time.Sleep(50 * time.Millisecond)
	unsub()
	bus.Publish(NewEvent(EventTaskSpawned, SourceTasks, nil))
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("expected 1 event after unsubscribe, got %d", count)
	}
}

func TestBusHistory(t *testing.T) {
	bus := NewBus(8)
	defer bus.Close()

	for i := 0; i < 12; i++ {
		bus.Publish(NewEvent(EventScheduleTrigger, SourceSchedule, map[string]any{"n": i}))
	}
	time.Sleep(50 * time.Millisecond)

	got := bus.History(0)
	if len(got) != 8 {
		t.Fatalf("expected ring capped at 8 events, got %d", len(got))
	}
	if got[len(got)-1].Payload["n"] != 11 {
		t.Errorf("expected newest event last, got %v", got[len(got)-1].Payload["n"])
	}
}

func TestBusPublishAfterClose(t *testing.T) {
	bus := NewBus(8)
	bus.Close()

	// Must not panic or block.
	bus.Publish(NewEvent(EventTaskSpawned, SourceTasks, nil))
}
