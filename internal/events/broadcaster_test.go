package events

import (
	"testing"
	"time"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	initial := SubscriberCount()

	sub1 := Subscribe()
	if SubscriberCount() != initial+1 {
		t.Errorf("expected %d subscribers after first subscribe, got %d", initial+1, SubscriberCount())
	}

	sub2 := Subscribe()
	if SubscriberCount() != initial+2 {
		t.Errorf("expected %d subscribers after second subscribe, got %d", initial+2, SubscriberCount())
	}

	Unsubscribe(sub1)
	if SubscriberCount() != initial+1 {
		t.Errorf("expected %d subscribers after unsubscribe, got %d", initial+1, SubscriberCount())
	}

	Unsubscribe(sub2)
	if SubscriberCount() != initial {
		t.Errorf("expected %d subscribers after all unsubscribed, got %d", initial, SubscriberCount())
	}
}

func TestBroadcastToSubscribers(t *testing.T) {
	sub := Subscribe()
	defer Unsubscribe(sub)

	Emit("info", "block.placed", "", map[string]interface{}{"block_id": "query-1"})

	select {
	case e := <-sub:
		if e.Name != "block.placed" {
			t.Errorf("expected event name 'block.placed', got '%s'", e.Name)
		}
		if e.Fields["block_id"] != "query-1" {
			t.Errorf("expected block_id 'query-1', got '%v'", e.Fields["block_id"])
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for broadcast event")
	}
}

func TestRecentEvents(t *testing.T) {
	Clear()

	for i := 0; i < 10; i++ {
		Emit("info", "block.moved", "", map[string]interface{}{"i": i})
	}

	recent := RecentEvents(5)
	if len(recent) != 5 {
		t.Errorf("expected 5 recent events, got %d", len(recent))
	}
	if recent[0].Fields["i"] != 5 {
		t.Errorf("expected first recent event i=5, got %v", recent[0].Fields["i"])
	}

	all := RecentEvents(100)
	if len(all) != 10 {
		t.Errorf("expected 10 events when requesting 100, got %d", len(all))
	}

	zero := RecentEvents(0)
	if len(zero) != 10 {
		t.Errorf("expected 10 events when requesting 0, got %d", len(zero))
	}

	if TotalCount() != 10 {
		t.Errorf("expected total 10, got %d", TotalCount())
	}
}

func TestEmitRejectsUnknownEvent(t *testing.T) {
	if _, err := Emit("info", "puzzle.solved", "", nil); err == nil {
		t.Error("expected error for unknown event name")
	}
}

func TestRingBufferWraps(t *testing.T) {
	rb := NewRingBuffer(3)
	for i := 0; i < 5; i++ {
		rb.Add(Event{Name: "block.moved", Fields: map[string]interface{}{"i": i}})
	}
	snap := rb.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 events, got %d", len(snap))
	}
	if snap[0].Fields["i"] != 2 || snap[2].Fields["i"] != 4 {
		t.Errorf("unexpected order: %v", snap)
	}
	if rb.Total() != 5 {
		t.Errorf("expected total 5, got %d", rb.Total())
	}
}

func TestFilter(t *testing.T) {
	Clear()
	Emit("info", "block.placed", "", nil)
	Emit("error", "block.failed", "boom", nil)
	Emit("info", "block.placed", "", nil)

	if got := len(Filter("block.placed")); got != 2 {
		t.Errorf("expected 2 block.placed events, got %d", got)
	}
	failed := Filter("block.failed")
	if len(failed) != 1 || failed[0].Message != "boom" {
		t.Errorf("unexpected block.failed events: %v", failed)
	}
}

func TestCloseAllSubscribers(t *testing.T) {
	CloseAllSubscribers()

	sub1 := Subscribe()
	sub2 := Subscribe()

	if SubscriberCount() != 2 {
		t.Errorf("expected 2 subscribers, got %d", SubscriberCount())
	}

	CloseAllSubscribers()

	_, ok1 := <-sub1
	_, ok2 := <-sub2
	if ok1 || ok2 {
		t.Error("expected all channels to be closed")
	}

	// closing an already-closed subscriber must not panic
	Unsubscribe(sub1)

	if SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers after CloseAllSubscribers, got %d", SubscriberCount())
	}
}
