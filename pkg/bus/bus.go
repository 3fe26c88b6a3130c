package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Kind classifies memory lifecycle notifications.
const (
	KindStored       = "stored"
	KindEvicted      = "evicted"
	KindConsolidated = "consolidated"
)

// Notification is one memory lifecycle announcement. Observers use it
// for audit trails or to trigger external scheduling; the memory core
// never blocks on a slow observer.
type Notification struct {
	Kind   string
	Tier   string
	ID     string
	Detail map[string]string
	At     time.Time
}

// NotificationBus is a bounded in-process pub/sub channel for memory
// lifecycle notifications. Publishing never blocks longer than
// publishTimeout; overflow is dropped and counted.
type NotificationBus struct {
	notifications chan Notification
	closed        bool
	dropped       atomic.Uint64
	mu            sync.RWMutex
}

const publishTimeout = 100 * time.Millisecond

func NewNotificationBus() *NotificationBus {
	return &NotificationBus{
		notifications: make(chan Notification, 100),
	}
}

func (nb *NotificationBus) Publish(n Notification) {
	nb.mu.RLock()
	defer nb.mu.RUnlock()
	if nb.closed {
		return
	}
	if n.At.IsZero() {
		n.At = time.Now()
	}

	select {
	case nb.notifications <- n:
	default:
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case nb.notifications <- n:
		case <-timer.C:
			nb.dropped.Add(1)
		}
	}
}

func (nb *NotificationBus) Consume(ctx context.Context) (Notification, bool) {
	select {
	case n, ok := <-nb.notifications:
		if !ok {
			return Notification{}, false
		}
		return n, true
	case <-ctx.Done():
		return Notification{}, false
	}
}

func (nb *NotificationBus) Close() {
	nb.mu.Lock()
	defer nb.mu.Unlock()
	if nb.closed {
		return
	}
	nb.closed = true
	close(nb.notifications)
}

func (nb *NotificationBus) Dropped() uint64 {
	return nb.dropped.Load()
}
