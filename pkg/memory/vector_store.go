package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Metric selects the similarity function, fixed at construction.
type Metric string

const (
	MetricCosine    Metric = "cosine"
	MetricEuclidean Metric = "euclidean"
)

// InMemoryVectorStore is the reference VectorStore: a linear-scan
// store with bounded capacity and oldest-first eviction. Eviction and
// tie-breaking are deterministic so small fixtures are fully
// enumerable.
type InMemoryVectorStore struct {
	mu       sync.Mutex
	dim      int
	capacity int
	metric   Metric
	items    map[string]VectorItem
	order    []string // insertion order, oldest first
	monitor  Monitor
	onEvict  func(id string)
}

func NewVectorStore(dim, capacity int, metric Metric, monitor Monitor) (*InMemoryVectorStore, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: embedding dim must be positive, got %d", ErrValidation, dim)
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity must be positive, got %d", ErrValidation, capacity)
	}
	switch metric {
	case MetricCosine, MetricEuclidean:
	case "":
		metric = MetricCosine
	default:
		return nil, fmt.Errorf("%w: unknown metric %q", ErrValidation, metric)
	}
	return &InMemoryVectorStore{
		dim:      dim,
		capacity: capacity,
		metric:   metric,
		items:    make(map[string]VectorItem),
		monitor:  monitor,
	}, nil
}

func (s *InMemoryVectorStore) Store(ctx context.Context, embedding []float32, metadata map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(embedding) != s.dim {
		return "", fmt.Errorf("%w: want %d, got %d", ErrDimensionMismatch, s.dim, len(embedding))
	}
	start := time.Now()

	// The hook runs after the lock is released so an observer can call
	// back into the store.
	var evicted string
	var hook func(string)
	defer func() {
		if evicted != "" && hook != nil {
			hook(evicted)
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()
	hook = s.onEvict

	// Oldest-first eviction keeps size within capacity before insert.
	if len(s.items) >= s.capacity {
		evicted = s.order[0]
		s.order = s.order[1:]
		delete(s.items, evicted)
	}

	item := VectorItem{
		ID:        "vec-" + uuid.NewString(),
		Embedding: append([]float32(nil), embedding...),
		Metadata:  copyMap(metadata),
		CreatedAt: time.Now(),
	}
	s.items[item.ID] = item
	s.order = append(s.order, item.ID)

	s.recordTime("store.vector", start)
	return item.ID, nil
}

// SetEvictionHook registers a callback invoked with the id of every
// item dropped by capacity eviction.
func (s *InMemoryVectorStore) SetEvictionHook(fn func(id string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEvict = fn
}

func (s *InMemoryVectorStore) SimilaritySearch(ctx context.Context, query []float32, k int) ([]VectorMatch, error) {
	if len(query) != s.dim {
		return nil, fmt.Errorf("%w: want %d, got %d", ErrDimensionMismatch, s.dim, len(query))
	}
	if k <= 0 {
		return nil, nil
	}
	start := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	matches := make([]VectorMatch, 0, len(s.order))
	for _, id := range s.order {
		// Long scans stay cancelable between candidate comparisons.
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		item := s.items[id]
		matches = append(matches, VectorMatch{Item: item, Score: s.score(query, item.Embedding)})
	}

	// Stable sort over insertion order: equal scores keep the earlier
	// insertion first.
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	out := make([]VectorMatch, len(matches))
	for i, m := range matches {
		out[i] = VectorMatch{Item: copyVectorItem(m.Item), Score: m.Score}
	}

	s.recordTime("search.vector", start)
	return out, nil
}

func (s *InMemoryVectorStore) Get(ctx context.Context, id string) (VectorItem, error) {
	if err := ctx.Err(); err != nil {
		return VectorItem{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return VectorItem{}, fmt.Errorf("%w: vector item %q", ErrNotFound, id)
	}
	return copyVectorItem(item), nil
}

func (s *InMemoryVectorStore) Size(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items), nil
}

func (s *InMemoryVectorStore) score(query, embedding []float32) float64 {
	if s.metric == MetricEuclidean {
		return euclideanScore(query, embedding)
	}
	return cosineSimilarity(query, embedding)
}

func (s *InMemoryVectorStore) recordTime(op string, start time.Time) {
	if s.monitor != nil {
		s.monitor.RecordOperationTime(op, time.Since(start))
	}
}

func copyVectorItem(item VectorItem) VectorItem {
	item.Embedding = append([]float32(nil), item.Embedding...)
	item.Metadata = copyMap(item.Metadata)
	return item
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
