package memory

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func episodicBackends(t *testing.T) map[string]EpisodicStore {
	t.Helper()
	sqliteStore, err := NewSQLiteEpisodicStore(filepath.Join(t.TempDir(), "state", "episodic.db"), 3, nil)
	if err != nil {
		t.Fatalf("new sqlite store: %v", err)
	}
	return map[string]EpisodicStore{
		"memory": NewEpisodicStore(3, nil),
		"sqlite": sqliteStore,
	}
}

func TestEpisodicStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range episodicBackends(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()

			ev := EpisodicEvent{
				ID:        "evt-1",
				Timestamp: time.UnixMilli(1000),
				Type:      "observation",
				Context:   map[string]any{"content": "saw a thing"},
				Embedding: []float32{1, 0, 0},
			}
			if err := store.StoreEvent(ctx, ev); err != nil {
				t.Fatalf("store event: %v", err)
			}

			events, err := store.RetrieveRecent(ctx, 10)
			if err != nil {
				t.Fatalf("retrieve recent: %v", err)
			}
			if len(events) != 1 {
				t.Fatalf("expected 1 event, got %d", len(events))
			}
			got := events[0]
			if got.ID != "evt-1" || got.Type != "observation" || got.Provenance != ProvenanceDirect {
				t.Fatalf("unexpected event: %+v", got)
			}
			if got.Context["content"] != "saw a thing" {
				t.Fatalf("unexpected context: %v", got.Context)
			}
			if len(got.Embedding) != 3 || got.Embedding[0] != 1 {
				t.Fatalf("unexpected embedding: %v", got.Embedding)
			}
		})
	}
}

func TestEpisodicStore_DuplicateIDRejected(t *testing.T) {
	ctx := context.Background()
	for name, store := range episodicBackends(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()

			ev := EpisodicEvent{ID: "evt-dup", Type: "observation"}
			if err := store.StoreEvent(ctx, ev); err != nil {
				t.Fatalf("first store: %v", err)
			}
			if err := store.StoreEvent(ctx, ev); !errors.Is(err, ErrDuplicateID) {
				t.Fatalf("expected ErrDuplicateID, got %v", err)
			}
		})
	}
}

func TestEpisodicStore_RetrieveRecentNewestFirst(t *testing.T) {
	ctx := context.Background()
	for name, store := range episodicBackends(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()

			for i := 0; i < 5; i++ {
				ev := EpisodicEvent{
					ID:        "evt-" + string(rune('a'+i)),
					Timestamp: time.UnixMilli(int64(1000 * (i + 1))),
					Type:      "tick",
				}
				if err := store.StoreEvent(ctx, ev); err != nil {
					t.Fatalf("store %d: %v", i, err)
				}
			}

			events, err := store.RetrieveRecent(ctx, 3)
			if err != nil {
				t.Fatalf("retrieve recent: %v", err)
			}
			if len(events) != 3 {
				t.Fatalf("expected 3 events, got %d", len(events))
			}
			if events[0].ID != "evt-e" || events[1].ID != "evt-d" || events[2].ID != "evt-c" {
				t.Fatalf("expected newest-first order, got %q %q %q", events[0].ID, events[1].ID, events[2].ID)
			}
		})
	}
}

func TestEpisodicStore_RetrieveByTypeInsertionOrder(t *testing.T) {
	ctx := context.Background()
	for name, store := range episodicBackends(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()

			inserts := []struct{ id, typ string }{
				{"evt-1", "action"},
				{"evt-2", "observation"},
				{"evt-3", "action"},
				{"evt-4", "action"},
			}
			for _, in := range inserts {
				if err := store.StoreEvent(ctx, EpisodicEvent{ID: in.id, Type: in.typ}); err != nil {
					t.Fatalf("store %s: %v", in.id, err)
				}
			}

			actions, err := store.RetrieveByType(ctx, "action")
			if err != nil {
				t.Fatalf("retrieve by type: %v", err)
			}
			if len(actions) != 3 {
				t.Fatalf("expected 3 actions, got %d", len(actions))
			}
			if actions[0].ID != "evt-1" || actions[1].ID != "evt-3" || actions[2].ID != "evt-4" {
				t.Fatalf("expected insertion order, got %q %q %q", actions[0].ID, actions[1].ID, actions[2].ID)
			}
		})
	}
}

func TestEpisodicStore_EmbeddingDimensionValidated(t *testing.T) {
	ctx := context.Background()
	for name, store := range episodicBackends(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()

			ev := EpisodicEvent{ID: "evt-bad", Type: "observation", Embedding: []float32{1, 0}}
			if err := store.StoreEvent(ctx, ev); !errors.Is(err, ErrDimensionMismatch) {
				t.Fatalf("expected ErrDimensionMismatch, got %v", err)
			}

			// Omitting the embedding entirely is allowed.
			if err := store.StoreEvent(ctx, EpisodicEvent{ID: "evt-ok", Type: "observation"}); err != nil {
				t.Fatalf("store without embedding: %v", err)
			}
		})
	}
}

func TestEpisodicStore_SimilaritySearchSkipsEmbeddinglessEvents(t *testing.T) {
	ctx := context.Background()
	for name, store := range episodicBackends(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()

			if err := store.StoreEvent(ctx, EpisodicEvent{ID: "evt-plain", Type: "note"}); err != nil {
				t.Fatalf("store plain: %v", err)
			}
			if err := store.StoreEvent(ctx, EpisodicEvent{ID: "evt-vec", Type: "note", Embedding: []float32{1, 0, 0}}); err != nil {
				t.Fatalf("store embedded: %v", err)
			}

			matches, err := store.SimilaritySearch(ctx, []float32{1, 0, 0}, 5)
			if err != nil {
				t.Fatalf("search: %v", err)
			}
			if len(matches) != 1 || matches[0].Event.ID != "evt-vec" {
				t.Fatalf("expected only the embedded event, got %+v", matches)
			}
		})
	}
}

func TestSQLiteEpisodicStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "state", "episodic.db")

	store, err := NewSQLiteEpisodicStore(dbPath, 3, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.StoreEvent(ctx, EpisodicEvent{ID: "evt-persist", Type: "observation", Context: map[string]any{"content": "hello"}}); err != nil {
		t.Fatalf("store event: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	store2, err := NewSQLiteEpisodicStore(dbPath, 3, nil)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer store2.Close()

	events, err := store2.RetrieveRecent(ctx, 10)
	if err != nil {
		t.Fatalf("retrieve recent: %v", err)
	}
	if len(events) != 1 || events[0].ID != "evt-persist" {
		t.Fatalf("expected persisted event, got %+v", events)
	}
	if events[0].Context["content"] != "hello" {
		t.Fatalf("expected context round-trip, got %v", events[0].Context)
	}
}
