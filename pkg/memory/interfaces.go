package memory

import (
	"context"
	"time"
)

// VectorStore holds fixed-dimension embeddings with bounded capacity
// and k-NN similarity search.
type VectorStore interface {
	Store(ctx context.Context, embedding []float32, metadata map[string]any) (string, error)
	SimilaritySearch(ctx context.Context, query []float32, k int) ([]VectorMatch, error)
	Get(ctx context.Context, id string) (VectorItem, error)
	Size(ctx context.Context) (int, error)
}

// EpisodicStore is the append-only timestamped event log.
type EpisodicStore interface {
	StoreEvent(ctx context.Context, ev EpisodicEvent) error
	RetrieveRecent(ctx context.Context, count int) ([]EpisodicEvent, error)
	RetrieveByType(ctx context.Context, eventType string) ([]EpisodicEvent, error)
	SimilaritySearch(ctx context.Context, query []float32, k int) ([]EventMatch, error)
	Size(ctx context.Context) (int, error)
	Close() error
}

// SemanticGraph is the directed weighted concept graph.
type SemanticGraph interface {
	AddNode(ctx context.Context, node SemanticNode) error
	AddRelationship(ctx context.Context, sourceID, targetID, relation string, weight float64) error
	FindShortestPath(ctx context.Context, sourceID, targetID string) ([]string, error)
	Neighbors(ctx context.Context, nodeID string) ([]string, error)
	GetNode(ctx context.Context, nodeID string) (SemanticNode, error)
	SimilaritySearch(ctx context.Context, query []float32, k int) ([]NodeMatch, error)
	Size(ctx context.Context) (int, error)
}

// WorkingMemory is the bounded attention-ranked scratchpad.
type WorkingMemory interface {
	AddContext(ctx context.Context, wc WorkingContext) error
	ActiveContexts(ctx context.Context, minAttention float64) ([]WorkingContext, error)
	Decay(ctx context.Context, factor float64) error
	Remove(ctx context.Context, contextID string) error
	SimilaritySearch(ctx context.Context, query []float32, k int) ([]ContextMatch, error)
	Size(ctx context.Context) (int, error)
}

// Monitor receives operation timings. All stores and the coordinator
// function correctly with a nil Monitor.
type Monitor interface {
	RecordOperationTime(op string, d time.Duration)
}

// InferenceStrategy turns recent episodic events into semantic nodes
// and edges. Implementations must be idempotent for identical input:
// running the same events twice yields the same graph state.
type InferenceStrategy interface {
	Infer(ctx context.Context, events []EpisodicEvent) ([]SemanticNode, []SemanticEdge, error)
}
