package bus

import (
	"context"
	"testing"
	"time"
)

func TestNotificationBus_PublishDropsWhenBufferFull(t *testing.T) {
	nb := NewNotificationBus()
	defer nb.Close()

	for i := 0; i < cap(nb.notifications); i++ {
		nb.Publish(Notification{Kind: KindStored, Tier: "vector", ID: "vec-1"})
	}

	nb.Publish(Notification{Kind: KindStored, Tier: "vector", ID: "overflow"})
	if nb.Dropped() != 1 {
		t.Fatalf("expected dropped count 1, got %d", nb.Dropped())
	}
}

func TestNotificationBus_ConsumeReceivesInOrder(t *testing.T) {
	nb := NewNotificationBus()
	defer nb.Close()

	nb.Publish(Notification{Kind: KindStored, Tier: "working", ID: "ctx-1"})
	nb.Publish(Notification{Kind: KindConsolidated, Tier: "episodic", ID: "evt-1"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	first, ok := nb.Consume(ctx)
	if !ok || first.ID != "ctx-1" {
		t.Fatalf("expected ctx-1 first, got %+v ok=%v", first, ok)
	}
	second, ok := nb.Consume(ctx)
	if !ok || second.Kind != KindConsolidated {
		t.Fatalf("expected consolidated second, got %+v ok=%v", second, ok)
	}
	if second.At.IsZero() {
		t.Fatalf("expected publish to stamp At")
	}
}

func TestNotificationBus_ClosedReturnsFalse(t *testing.T) {
	nb := NewNotificationBus()
	nb.Close()

	if _, ok := nb.Consume(context.Background()); ok {
		t.Fatalf("expected consume on closed bus to return false")
	}

	// Publishing after close is a no-op, not a panic.
	nb.Publish(Notification{Kind: KindStored, Tier: "vector", ID: "late"})
}

func TestNotificationBus_CloseIsIdempotent(t *testing.T) {
	nb := NewNotificationBus()
	nb.Close()
	nb.Close()
}
