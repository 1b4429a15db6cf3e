package queue

import (
	"errors"
	"fmt"

	"github.com/matchpoint/notify-engine/internal/domain"
)

// Item is the minimal data handed to dispatch workers. Workers operate on
// the full QueueItem fetched during the claim, carried here by pointer so
// the buffer stays lightweight.
type Item struct {
	Notification *domain.QueueItem
}

// ErrBufferFull is returned by Enqueue when the target tier is saturated.
var ErrBufferFull = errors.New("priority buffer is at capacity")

// Buffer fans a claimed dispatch batch out to workers across four
// priority tiers. Capacities reflect expected traffic ratios: critical
// must never accumulate, medium carries the bulk.
//
// Workers drain via TryDequeue, which scans tiers highest-first, so a
// critical item enqueued after a hundred low items is still handed to the
// next free worker.
type Buffer struct {
	critical chan Item
	high     chan Item
	medium   chan Item
	low      chan Item
}

func NewBuffer() *Buffer {
	return &Buffer{
		critical: make(chan Item, 500),
		high:     make(chan Item, 1000),
		medium:   make(chan Item, 5000),
		low:      make(chan Item, 2000),
	}
}

// Enqueue places an item on its priority tier. Non-blocking: a saturated
// tier returns ErrBufferFull immediately so the dispatcher can leave the
// row claimed-but-unprocessed for the next pass rather than stall.
func (b *Buffer) Enqueue(item Item) error {
	ch, err := b.tier(item.Notification.Priority)
	if err != nil {
		return err
	}
	select {
	case ch <- item:
		return nil
	default:
		return ErrBufferFull
	}
}

// TryDequeue pops the highest-priority waiting item, or reports false
// when every tier is empty. Dispatch workers loop on it until the batch
// is drained; there is no blocking wait because a pass works on a fixed,
// already-claimed batch.
func (b *Buffer) TryDequeue() (Item, bool) {
	for _, ch := range []chan Item{b.critical, b.high, b.medium, b.low} {
		select {
		case item := <-ch:
			return item, true
		default:
		}
	}
	return Item{}, false
}

// Depths returns the number of items waiting in each tier, highest first.
// Exposed for the queue-depth metrics gauge.
func (b *Buffer) Depths() (critical, high, medium, low int) {
	return len(b.critical), len(b.high), len(b.medium), len(b.low)
}

func (b *Buffer) tier(p domain.Priority) (chan Item, error) {
	switch p {
	case domain.PriorityCritical:
		return b.critical, nil
	case domain.PriorityHigh:
		return b.high, nil
	case domain.PriorityMedium:
		return b.medium, nil
	case domain.PriorityLow:
		return b.low, nil
	default:
		return nil, fmt.Errorf("unknown priority %q", p)
	}
}
