package queue_test

import (
	"sync"
	"testing"

	"github.com/matchpoint/notify-engine/internal/domain"
	"github.com/matchpoint/notify-engine/internal/queue"
)

func item(id string, p domain.Priority) queue.Item {
	return queue.Item{Notification: &domain.QueueItem{ID: id, Priority: p}}
}

func TestBuffer_BasicEnqueueDequeue(t *testing.T) {
	b := queue.NewBuffer()

	if err := b.Enqueue(item("1", domain.PriorityMedium)); err != nil {
		t.Fatal(err)
	}

	got, ok := b.TryDequeue()
	if !ok {
		t.Fatal("expected item, got nothing")
	}
	if got.Notification.ID != "1" {
		t.Fatalf("expected id=1, got %s", got.Notification.ID)
	}
}

func TestBuffer_EmptyDequeue(t *testing.T) {
	b := queue.NewBuffer()
	if _, ok := b.TryDequeue(); ok {
		t.Fatal("expected ok=false on empty buffer")
	}
}

// TestBuffer_PriorityOrder verifies tiers drain highest-first regardless
// of insertion order.
func TestBuffer_PriorityOrder(t *testing.T) {
	b := queue.NewBuffer()

	_ = b.Enqueue(item("low", domain.PriorityLow))
	_ = b.Enqueue(item("medium", domain.PriorityMedium))
	_ = b.Enqueue(item("critical", domain.PriorityCritical))
	_ = b.Enqueue(item("high", domain.PriorityHigh))

	want := []string{"critical", "high", "medium", "low"}
	for _, expected := range want {
		got, ok := b.TryDequeue()
		if !ok {
			t.Fatalf("buffer empty, expected %q", expected)
		}
		if got.Notification.ID != expected {
			t.Fatalf("expected %q next, got %q", expected, got.Notification.ID)
		}
	}
}

func TestBuffer_UnknownPriorityRejected(t *testing.T) {
	b := queue.NewBuffer()
	if err := b.Enqueue(item("x", "urgent")); err == nil {
		t.Fatal("expected error for unknown priority")
	}
}

// TestBuffer_ConcurrentDrain verifies multiple workers can drain the
// buffer without races or lost items.
func TestBuffer_ConcurrentDrain(t *testing.T) {
	b := queue.NewBuffer()

	const total = 500
	for i := 0; i < total; i++ {
		if err := b.Enqueue(item("id", domain.PriorityMedium)); err != nil {
			t.Fatal(err)
		}
	}

	var mu sync.Mutex
	drained := 0

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if _, ok := b.TryDequeue(); !ok {
					return
				}
				mu.Lock()
				drained++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if drained != total {
		t.Fatalf("drained %d of %d items", drained, total)
	}
}

func TestBuffer_Depths(t *testing.T) {
	b := queue.NewBuffer()

	_ = b.Enqueue(item("c", domain.PriorityCritical))
	_ = b.Enqueue(item("m1", domain.PriorityMedium))
	_ = b.Enqueue(item("m2", domain.PriorityMedium))
	_ = b.Enqueue(item("l", domain.PriorityLow))

	critical, high, medium, low := b.Depths()
	if critical != 1 || high != 0 || medium != 2 || low != 1 {
		t.Fatalf("unexpected depths: critical=%d high=%d medium=%d low=%d",
			critical, high, medium, low)
	}
}
