package memory

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

func newBuffer(t *testing.T, capacity int) *WorkingMemoryBuffer {
	t.Helper()
	b, err := NewWorkingMemoryBuffer(capacity, 0, nil)
	if err != nil {
		t.Fatalf("new buffer: %v", err)
	}
	return b
}

func TestWorkingMemory_AttentionClamped(t *testing.T) {
	ctx := context.Background()
	b := newBuffer(t, 4)

	if err := b.AddContext(ctx, WorkingContext{ID: "hot", Content: "hot", Attention: 1.5}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := b.AddContext(ctx, WorkingContext{ID: "cold", Content: "cold", Attention: -0.3}); err != nil {
		t.Fatalf("add: %v", err)
	}

	active, err := b.ActiveContexts(ctx, 0)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 contexts, got %d", len(active))
	}
	if active[0].Attention != 1.0 {
		t.Fatalf("expected attention clamped to 1.0, got %v", active[0].Attention)
	}
	if active[1].Attention != 0.0 {
		t.Fatalf("expected attention clamped to 0.0, got %v", active[1].Attention)
	}
}

func TestWorkingMemory_ActiveContextsFilterAndOrder(t *testing.T) {
	ctx := context.Background()
	b := newBuffer(t, 8)

	for _, wc := range []WorkingContext{
		{ID: "a", Attention: 0.2},
		{ID: "b", Attention: 0.9},
		{ID: "c", Attention: 0.5},
		{ID: "d", Attention: 0.5},
	} {
		if err := b.AddContext(ctx, wc); err != nil {
			t.Fatalf("add %s: %v", wc.ID, err)
		}
	}

	active, err := b.ActiveContexts(ctx, 0.5)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	got := make([]string, len(active))
	for i, wc := range active {
		got[i] = wc.ID
	}
	// b leads on attention; c and d tie and keep insertion order.
	want := []string{"b", "c", "d"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestWorkingMemory_EvictsLowestAttention(t *testing.T) {
	ctx := context.Background()
	b := newBuffer(t, 2)

	now := time.Now()
	if err := b.AddContext(ctx, WorkingContext{ID: "keep", Attention: 0.8, Timestamp: now}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := b.AddContext(ctx, WorkingContext{ID: "drop", Attention: 0.1, Timestamp: now}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := b.AddContext(ctx, WorkingContext{ID: "new", Attention: 0.05, Timestamp: now}); err != nil {
		t.Fatalf("add: %v", err)
	}

	size, _ := b.Size(ctx)
	if size != 2 {
		t.Fatalf("expected size 2, got %d", size)
	}
	active, _ := b.ActiveContexts(ctx, 0)
	for _, wc := range active {
		if wc.ID == "drop" {
			t.Fatalf("lowest-attention context should have been evicted")
		}
	}
}

func TestWorkingMemory_EvictionTieBreaksOnOldest(t *testing.T) {
	ctx := context.Background()
	b := newBuffer(t, 2)

	old := time.Now().Add(-time.Hour)
	if err := b.AddContext(ctx, WorkingContext{ID: "older", Attention: 0.5, Timestamp: old}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := b.AddContext(ctx, WorkingContext{ID: "newer", Attention: 0.5, Timestamp: old.Add(time.Minute)}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := b.AddContext(ctx, WorkingContext{ID: "incoming", Attention: 0.5}); err != nil {
		t.Fatalf("add: %v", err)
	}

	active, _ := b.ActiveContexts(ctx, 0)
	for _, wc := range active {
		if wc.ID == "older" {
			t.Fatalf("tie should evict the oldest context")
		}
	}
}

func TestWorkingMemory_EvictionHookReceivesDroppedID(t *testing.T) {
	ctx := context.Background()
	b := newBuffer(t, 2)

	var evicted []string
	b.SetEvictionHook(func(id string) { evicted = append(evicted, id) })

	now := time.Now()
	if err := b.AddContext(ctx, WorkingContext{ID: "keep", Attention: 0.8, Timestamp: now}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := b.AddContext(ctx, WorkingContext{ID: "drop", Attention: 0.1, Timestamp: now}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(evicted) != 0 {
		t.Fatalf("no eviction expected below capacity, got %v", evicted)
	}

	if err := b.AddContext(ctx, WorkingContext{ID: "new", Attention: 0.5, Timestamp: now}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(evicted) != 1 || evicted[0] != "drop" {
		t.Fatalf("expected hook to report the lowest-attention victim, got %v", evicted)
	}
}

func TestWorkingMemory_DecayScalesAllWeights(t *testing.T) {
	ctx := context.Background()
	b := newBuffer(t, 4)

	if err := b.AddContext(ctx, WorkingContext{ID: "a", Attention: 0.8}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := b.AddContext(ctx, WorkingContext{ID: "b", Attention: 0.4}); err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := b.Decay(ctx, 0.5); err != nil {
		t.Fatalf("decay: %v", err)
	}

	active, _ := b.ActiveContexts(ctx, 0)
	want := map[string]float64{"a": 0.4, "b": 0.2}
	for _, wc := range active {
		if math.Abs(wc.Attention-want[wc.ID]) > 1e-9 {
			t.Fatalf("context %s: expected attention %v, got %v", wc.ID, want[wc.ID], wc.Attention)
		}
	}
}

func TestWorkingMemory_DecayValidatesFactor(t *testing.T) {
	ctx := context.Background()
	b := newBuffer(t, 4)

	for _, factor := range []float64{0, -0.5, 1.5} {
		if err := b.Decay(ctx, factor); !errors.Is(err, ErrValidation) {
			t.Fatalf("factor %v: expected ErrValidation, got %v", factor, err)
		}
	}
	if err := b.Decay(ctx, 1.0); err != nil {
		t.Fatalf("factor 1.0 should be accepted: %v", err)
	}
}

func TestWorkingMemory_RemoveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	b := newBuffer(t, 4)

	if err := b.AddContext(ctx, WorkingContext{ID: "a", Attention: 0.5}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := b.Remove(ctx, "a"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := b.Remove(ctx, "a"); err != nil {
		t.Fatalf("second remove should be a no-op: %v", err)
	}
	if err := b.Remove(ctx, "never-existed"); err != nil {
		t.Fatalf("remove of unknown id should be a no-op: %v", err)
	}
	size, _ := b.Size(ctx)
	if size != 0 {
		t.Fatalf("expected empty buffer, got size %d", size)
	}
}

func TestWorkingMemory_SimilaritySearchSkipsEmbeddingless(t *testing.T) {
	ctx := context.Background()
	b, err := NewWorkingMemoryBuffer(4, 2, nil)
	if err != nil {
		t.Fatalf("new buffer: %v", err)
	}

	if err := b.AddContext(ctx, WorkingContext{ID: "with", Attention: 0.5, Embedding: []float32{1, 0}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := b.AddContext(ctx, WorkingContext{ID: "without", Attention: 0.5}); err != nil {
		t.Fatalf("add: %v", err)
	}

	matches, err := b.SimilaritySearch(ctx, []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 1 || matches[0].Context.ID != "with" {
		t.Fatalf("expected only the embedded context, got %v", matches)
	}
}
