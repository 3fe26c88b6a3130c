package memory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"
)

// RetryPolicy bounds retries for consolidator-originated writes.
// Direct caller writes never retry; retry policy there belongs to the
// caller.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 50 * time.Millisecond}
}

// Consolidator promotes salient data forward one tier at a time:
// working -> episodic, then episodic -> semantic. A source entry is
// never removed until the destination write durably succeeds.
type Consolidator struct {
	working  WorkingMemory
	episodic EpisodicStore
	graph    SemanticGraph
	strategy InferenceStrategy
	retry    RetryPolicy

	total              atomic.Uint64
	workingToEpisodic  atomic.Uint64
	episodicToSemantic atomic.Uint64
}

func NewConsolidator(working WorkingMemory, episodic EpisodicStore, graph SemanticGraph, strategy InferenceStrategy, retry RetryPolicy) *Consolidator {
	if strategy == nil {
		strategy = ContextHintStrategy{}
	}
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryPolicy()
	}
	return &Consolidator{
		working:  working,
		episodic: episodic,
		graph:    graph,
		strategy: strategy,
		retry:    retry,
	}
}

// ConsolidateWorkingToEpisodic moves every working context with
// attention >= threshold into the episodic log. A single item's
// failure never aborts the pass: failures are collected, the item
// stays in the buffer, and it remains eligible for the next pass.
func (c *Consolidator) ConsolidateWorkingToEpisodic(ctx context.Context, threshold float64) (int, error) {
	contexts, err := c.working.ActiveContexts(ctx, threshold)
	if err != nil {
		return 0, err
	}

	moved := 0
	var failures []error
	for _, wc := range contexts {
		ev := EpisodicEvent{
			Type:      "working_context",
			Timestamp: wc.Timestamp,
			Context: map[string]any{
				"content":           wc.Content,
				"source_context_id": wc.ID,
				"attention":         wc.Attention,
			},
			Embedding:  wc.Embedding,
			Provenance: ProvenanceConsolidated,
		}
		if err := c.writeWithRetry(ctx, func() error {
			return c.episodic.StoreEvent(ctx, ev)
		}); err != nil {
			failures = append(failures, fmt.Errorf("context %q: %w", wc.ID, err))
			continue
		}
		// Destination write is durable; only now drop the source copy.
		if err := c.working.Remove(ctx, wc.ID); err != nil {
			failures = append(failures, fmt.Errorf("remove context %q: %w", wc.ID, err))
			continue
		}
		moved++
		c.total.Add(1)
		c.workingToEpisodic.Add(1)
	}

	if len(failures) > 0 {
		log.Printf("[MEMORY] working->episodic pass: %d moved, %d failed", moved, len(failures))
	}
	return moved, errors.Join(failures...)
}

// ConsolidateEpisodicToSemantic runs the inference strategy over the
// most recent events and upserts the resulting nodes and edges.
// Returns the number of graph upserts applied.
func (c *Consolidator) ConsolidateEpisodicToSemantic(ctx context.Context, recentLimit int) (int, error) {
	if recentLimit <= 0 {
		recentLimit = 64
	}
	events, err := c.episodic.RetrieveRecent(ctx, recentLimit)
	if err != nil {
		return 0, err
	}
	nodes, edges, err := c.strategy.Infer(ctx, events)
	if err != nil {
		return 0, err
	}

	applied := 0
	var failures []error
	for _, node := range nodes {
		node := node
		if err := c.writeWithRetry(ctx, func() error {
			return c.graph.AddNode(ctx, node)
		}); err != nil {
			failures = append(failures, fmt.Errorf("node %q: %w", node.ID, err))
			continue
		}
		applied++
	}
	for _, edge := range edges {
		edge := edge
		if err := c.writeWithRetry(ctx, func() error {
			return c.graph.AddRelationship(ctx, edge.SourceID, edge.TargetID, edge.Relation, edge.Weight)
		}); err != nil {
			failures = append(failures, fmt.Errorf("edge %s->%s: %w", edge.SourceID, edge.TargetID, err))
			continue
		}
		applied++
	}

	if applied > 0 {
		c.total.Add(uint64(applied))
		c.episodicToSemantic.Add(uint64(applied))
	}
	if len(failures) > 0 {
		log.Printf("[MEMORY] episodic->semantic pass: %d applied, %d failed", applied, len(failures))
	}
	return applied, errors.Join(failures...)
}

// Metrics returns the monotonic consolidation counters.
func (c *Consolidator) Metrics() ConsolidationMetrics {
	return ConsolidationMetrics{
		Total:              c.total.Load(),
		WorkingToEpisodic:  c.workingToEpisodic.Load(),
		EpisodicToSemantic: c.episodicToSemantic.Load(),
	}
}

// writeWithRetry retries backend failures with exponential backoff.
// Validation, duplicate-id and not-found outcomes are never retried:
// the input will not get better on its own.
func (c *Consolidator) writeWithRetry(ctx context.Context, write func() error) error {
	var lastErr error
	delay := c.retry.BaseDelay
	for attempt := 0; attempt < c.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		lastErr = write()
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, ErrStorageBackend) {
			return lastErr
		}
	}
	return lastErr
}
