package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// WorkingMemoryBuffer is the bounded attention-ranked scratchpad.
// When full it evicts the lowest-attention entry, breaking ties by
// oldest timestamp.
type WorkingMemoryBuffer struct {
	mu       sync.Mutex
	capacity int
	dim      int
	contexts map[string]WorkingContext
	order    []string // insertion order
	monitor  Monitor
	onEvict  func(id string)
}

func NewWorkingMemoryBuffer(capacity, dim int, monitor Monitor) (*WorkingMemoryBuffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity must be positive, got %d", ErrValidation, capacity)
	}
	return &WorkingMemoryBuffer{
		capacity: capacity,
		dim:      dim,
		contexts: make(map[string]WorkingContext),
		monitor:  monitor,
	}, nil
}

func (b *WorkingMemoryBuffer) AddContext(ctx context.Context, wc WorkingContext) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if wc.ID == "" {
		wc.ID = "ctx-" + uuid.NewString()
	}
	if wc.Timestamp.IsZero() {
		wc.Timestamp = time.Now()
	}
	if b.dim > 0 && len(wc.Embedding) > 0 && len(wc.Embedding) != b.dim {
		return fmt.Errorf("%w: want %d, got %d", ErrDimensionMismatch, b.dim, len(wc.Embedding))
	}
	wc.Attention = clamp01(wc.Attention)
	start := time.Now()

	// The hook runs after the lock is released so an observer can call
	// back into the buffer.
	var evicted string
	var hook func(string)
	defer func() {
		if evicted != "" && hook != nil {
			hook(evicted)
		}
	}()

	b.mu.Lock()
	defer b.mu.Unlock()
	hook = b.onEvict

	if _, exists := b.contexts[wc.ID]; !exists && len(b.contexts) >= b.capacity {
		evicted = b.evictLowestLocked()
	}
	if _, exists := b.contexts[wc.ID]; !exists {
		b.order = append(b.order, wc.ID)
	}
	wc.Embedding = append([]float32(nil), wc.Embedding...)
	b.contexts[wc.ID] = wc

	b.recordTime("store.working", start)
	return nil
}

// ActiveContexts returns contexts with attention >= minAttention,
// highest attention first. Ties keep insertion order.
func (b *WorkingMemoryBuffer) ActiveContexts(ctx context.Context, minAttention float64) ([]WorkingContext, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	out := []WorkingContext{}
	for _, id := range b.order {
		wc := b.contexts[id]
		if wc.Attention >= minAttention {
			out = append(out, copyContext(wc))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Attention > out[j].Attention
	})
	return out, nil
}

// Decay multiplies every attention weight by factor (0 < factor <= 1),
// floor-clamped at 0.
func (b *WorkingMemoryBuffer) Decay(ctx context.Context, factor float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if factor <= 0 || factor > 1 {
		return fmt.Errorf("%w: decay factor %v outside (0,1]", ErrValidation, factor)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, wc := range b.contexts {
		wc.Attention = clamp01(wc.Attention * factor)
		b.contexts[id] = wc
	}
	return nil
}

// SetEvictionHook registers a callback invoked with the id of every
// context dropped by capacity eviction.
func (b *WorkingMemoryBuffer) SetEvictionHook(fn func(id string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onEvict = fn
}

// Remove is an idempotent no-op when the id is absent.
func (b *WorkingMemoryBuffer) Remove(ctx context.Context, contextID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(contextID)
	return nil
}

func (b *WorkingMemoryBuffer) SimilaritySearch(ctx context.Context, query []float32, k int) ([]ContextMatch, error) {
	if b.dim > 0 && len(query) != b.dim {
		return nil, fmt.Errorf("%w: want %d, got %d", ErrDimensionMismatch, b.dim, len(query))
	}
	if k <= 0 {
		return nil, nil
	}
	start := time.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	matches := []ContextMatch{}
	for _, id := range b.order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		wc := b.contexts[id]
		if len(wc.Embedding) == 0 {
			continue
		}
		matches = append(matches, ContextMatch{Context: copyContext(wc), Score: cosineSimilarity(query, wc.Embedding)})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > k {
		matches = matches[:k]
	}

	b.recordTime("search.working", start)
	return matches, nil
}

func (b *WorkingMemoryBuffer) Size(ctx context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.contexts), nil
}

func (b *WorkingMemoryBuffer) evictLowestLocked() string {
	victim := ""
	for _, id := range b.order {
		wc := b.contexts[id]
		if victim == "" {
			victim = id
			continue
		}
		cur := b.contexts[victim]
		if wc.Attention < cur.Attention ||
			(wc.Attention == cur.Attention && wc.Timestamp.Before(cur.Timestamp)) {
			victim = id
		}
	}
	if victim != "" {
		b.removeLocked(victim)
	}
	return victim
}

func (b *WorkingMemoryBuffer) removeLocked(contextID string) {
	if _, ok := b.contexts[contextID]; !ok {
		return
	}
	delete(b.contexts, contextID)
	for i, id := range b.order {
		if id == contextID {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

func (b *WorkingMemoryBuffer) recordTime(op string, start time.Time) {
	if b.monitor != nil {
		b.monitor.RecordOperationTime(op, time.Since(start))
	}
}

func copyContext(wc WorkingContext) WorkingContext {
	wc.Embedding = append([]float32(nil), wc.Embedding...)
	return wc
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
