package main

import (
	"fmt"
	"time"

	"github.com/dotsetgreg/stratamem/pkg/bus"
	"github.com/dotsetgreg/stratamem/pkg/config"
	"github.com/dotsetgreg/stratamem/pkg/memory"
)

// memoryRuntime is the assembled four-tier stack plus its shared
// collaborators, built from configuration. Only the episodic tier is
// durable between runs when the sqlite backend is configured.
type memoryRuntime struct {
	cfg         *config.Config
	coordinator *memory.Coordinator
	embedder    *memory.HashEmbedder
	monitor     *memory.PerformanceMonitor
	bus         *bus.NotificationBus
	episodic    memory.EpisodicStore
}

func openRuntime(cfg *config.Config) (*memoryRuntime, error) {
	monitor := memory.NewPerformanceMonitor()

	metric := memory.MetricCosine
	if cfg.Embedding.Metric == "euclidean" {
		metric = memory.MetricEuclidean
	}
	dims := cfg.Embedding.Dimensions

	vector, err := memory.NewVectorStore(dims, cfg.Tiers.VectorCapacity, metric, monitor)
	if err != nil {
		return nil, fmt.Errorf("vector store: %w", err)
	}
	working, err := memory.NewWorkingMemoryBuffer(cfg.Tiers.WorkingCapacity, dims, monitor)
	if err != nil {
		return nil, fmt.Errorf("working memory: %w", err)
	}
	graph := memory.NewSemanticGraph(dims, monitor)

	var episodic memory.EpisodicStore
	switch cfg.Tiers.EpisodicBackend {
	case "sqlite":
		episodic, err = memory.NewSQLiteEpisodicStore(cfg.EpisodicDBPath(), dims, monitor)
		if err != nil {
			return nil, fmt.Errorf("episodic store: %w", err)
		}
	default:
		episodic = memory.NewEpisodicStore(dims, monitor)
	}

	nb := bus.NewNotificationBus()
	vector.SetEvictionHook(evictionNotifier(nb, memory.TierVector))
	working.SetEvictionHook(evictionNotifier(nb, memory.TierWorking))

	retry := memory.RetryPolicy{
		MaxAttempts: cfg.Consolidation.RetryMaxAttempts,
		BaseDelay:   time.Duration(cfg.Consolidation.RetryBaseDelayMS) * time.Millisecond,
	}
	coordinator, err := memory.NewCoordinator(memory.Deps{
		Vector:       vector,
		Episodic:     episodic,
		Graph:        graph,
		Working:      working,
		Consolidator: memory.NewConsolidator(working, episodic, graph, nil, retry),
		Monitor:      monitor,
		Bus:          nb,
		CacheSize:    cfg.Search.CacheSize,
		CacheTTL:     time.Duration(cfg.Search.CacheTTLSeconds) * time.Second,
	})
	if err != nil {
		nb.Close()
		episodic.Close()
		return nil, err
	}

	return &memoryRuntime{
		cfg:         cfg,
		coordinator: coordinator,
		embedder:    memory.NewHashEmbedder(dims),
		monitor:     monitor,
		bus:         nb,
		episodic:    episodic,
	}, nil
}

// evictionNotifier announces capacity evictions from a tier on the bus.
func evictionNotifier(nb *bus.NotificationBus, tier memory.Tier) func(id string) {
	return func(id string) {
		nb.Publish(bus.Notification{Kind: bus.KindEvicted, Tier: string(tier), ID: id})
	}
}

func (rt *memoryRuntime) Close() error {
	rt.bus.Close()
	return rt.episodic.Close()
}
