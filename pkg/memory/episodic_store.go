package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryEpisodicStore is the reference append-only event log.
type InMemoryEpisodicStore struct {
	mu      sync.Mutex
	dim     int
	events  []EpisodicEvent // append order
	index   map[string]int
	monitor Monitor
}

func NewEpisodicStore(dim int, monitor Monitor) *InMemoryEpisodicStore {
	return &InMemoryEpisodicStore{
		dim:     dim,
		index:   make(map[string]int),
		monitor: monitor,
	}
}

func (s *InMemoryEpisodicStore) StoreEvent(ctx context.Context, ev EpisodicEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateEvent(&ev, s.dim); err != nil {
		return err
	}
	start := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[ev.ID]; ok {
		return fmt.Errorf("%w: event %q", ErrDuplicateID, ev.ID)
	}
	ev.Context = copyMap(ev.Context)
	ev.Embedding = append([]float32(nil), ev.Embedding...)
	s.index[ev.ID] = len(s.events)
	s.events = append(s.events, ev)

	s.recordTime("store.episodic", start)
	return nil
}

func (s *InMemoryEpisodicStore) RetrieveRecent(ctx context.Context, count int) ([]EpisodicEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]EpisodicEvent, len(s.events))
	for i, ev := range s.events {
		out[i] = copyEvent(ev)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if len(out) > count {
		out = out[:count]
	}
	return out, nil
}

func (s *InMemoryEpisodicStore) RetrieveByType(ctx context.Context, eventType string) ([]EpisodicEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []EpisodicEvent{}
	for _, ev := range s.events {
		if ev.Type == eventType {
			out = append(out, copyEvent(ev))
		}
	}
	return out, nil
}

func (s *InMemoryEpisodicStore) SimilaritySearch(ctx context.Context, query []float32, k int) ([]EventMatch, error) {
	if s.dim > 0 && len(query) != s.dim {
		return nil, fmt.Errorf("%w: want %d, got %d", ErrDimensionMismatch, s.dim, len(query))
	}
	if k <= 0 {
		return nil, nil
	}
	start := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	matches := []EventMatch{}
	for _, ev := range s.events {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(ev.Embedding) == 0 {
			continue
		}
		matches = append(matches, EventMatch{Event: copyEvent(ev), Score: cosineSimilarity(query, ev.Embedding)})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > k {
		matches = matches[:k]
	}

	s.recordTime("search.episodic", start)
	return matches, nil
}

func (s *InMemoryEpisodicStore) Size(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events), nil
}

func (s *InMemoryEpisodicStore) Close() error { return nil }

func (s *InMemoryEpisodicStore) recordTime(op string, start time.Time) {
	if s.monitor != nil {
		s.monitor.RecordOperationTime(op, time.Since(start))
	}
}

// validateEvent normalizes defaults and enforces the embedding
// dimension when the store is configured with one. The optional
// embedding may be absent entirely, never the wrong length.
func validateEvent(ev *EpisodicEvent, dim int) error {
	if ev.ID == "" {
		ev.ID = "evt-" + uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	if ev.Provenance == "" {
		ev.Provenance = ProvenanceDirect
	}
	if ev.Type == "" {
		return fmt.Errorf("%w: event type is required", ErrValidation)
	}
	if dim > 0 && len(ev.Embedding) > 0 && len(ev.Embedding) != dim {
		return fmt.Errorf("%w: want %d, got %d", ErrDimensionMismatch, dim, len(ev.Embedding))
	}
	return nil
}

func copyEvent(ev EpisodicEvent) EpisodicEvent {
	ev.Context = copyMap(ev.Context)
	ev.Embedding = append([]float32(nil), ev.Embedding...)
	return ev
}
