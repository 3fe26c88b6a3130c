package memory

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/dotsetgreg/stratamem/pkg/bus"
)

// Deps are the coordinator's injected collaborators. The four stores
// are required; everything else is optional.
type Deps struct {
	Vector   VectorStore
	Episodic EpisodicStore
	Graph    SemanticGraph
	Working  WorkingMemory

	Consolidator *Consolidator
	Monitor      *PerformanceMonitor
	Bus          *bus.NotificationBus

	CacheSize int
	CacheTTL  time.Duration
}

// Coordinator is the facade over the four tiers: unified cross-tier
// search, statistics, and caller-triggered consolidation. It holds no
// background goroutine; periodic consolidation belongs to an external
// scheduler.
type Coordinator struct {
	vector   VectorStore
	episodic EpisodicStore
	graph    SemanticGraph
	working  WorkingMemory

	consolidator *Consolidator
	monitor      *PerformanceMonitor
	bus          *bus.NotificationBus

	cache *expirable.LRU[string, []SearchResult]
}

func NewCoordinator(deps Deps) (*Coordinator, error) {
	if deps.Vector == nil || deps.Episodic == nil || deps.Graph == nil || deps.Working == nil {
		return nil, fmt.Errorf("%w: all four stores are required", ErrValidation)
	}
	if deps.Consolidator == nil {
		deps.Consolidator = NewConsolidator(deps.Working, deps.Episodic, deps.Graph, nil, DefaultRetryPolicy())
	}
	if deps.CacheSize <= 0 {
		deps.CacheSize = 128
	}
	if deps.CacheTTL <= 0 {
		deps.CacheTTL = 20 * time.Second
	}
	return &Coordinator{
		vector:       deps.Vector,
		episodic:     deps.Episodic,
		graph:        deps.Graph,
		working:      deps.Working,
		consolidator: deps.Consolidator,
		monitor:      deps.Monitor,
		bus:          deps.Bus,
		cache:        expirable.NewLRU[string, []SearchResult](deps.CacheSize, nil, deps.CacheTTL),
	}, nil
}

// IntegratedSearch fans the query out to every tier, merges the
// per-tier top-k and re-ranks globally by score. Ties go to the
// higher-priority tier: vector, episodic, semantic, working. A tier
// failure degrades the search rather than failing it.
func (c *Coordinator) IntegratedSearch(ctx context.Context, query []float32, k int) ([]SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}
	key := searchCacheKey(query, k)
	if cached, ok := c.cache.Get(key); ok {
		c.monitor.RecordCacheHit()
		return append([]SearchResult(nil), cached...), nil
	}
	c.monitor.RecordCacheMiss()
	start := time.Now()

	merged := []SearchResult{}

	vectorMatches, err := c.vector.SimilaritySearch(ctx, query, k)
	if err := c.tierFailure(ctx, TierVector, err); err != nil {
		return nil, err
	}
	for _, m := range vectorMatches {
		merged = append(merged, SearchResult{
			Tier:    TierVector,
			ID:      m.Item.ID,
			Score:   m.Score,
			Content: contentFromMap(m.Item.Metadata),
		})
	}

	eventMatches, err := c.episodic.SimilaritySearch(ctx, query, k)
	if err := c.tierFailure(ctx, TierEpisodic, err); err != nil {
		return nil, err
	}
	for _, m := range eventMatches {
		content := contentFromMap(m.Event.Context)
		if content == "" {
			content = m.Event.Type
		}
		merged = append(merged, SearchResult{
			Tier:    TierEpisodic,
			ID:      m.Event.ID,
			Score:   m.Score,
			Content: content,
		})
	}

	nodeMatches, err := c.graph.SimilaritySearch(ctx, query, k)
	if err := c.tierFailure(ctx, TierSemantic, err); err != nil {
		return nil, err
	}
	for _, m := range nodeMatches {
		merged = append(merged, SearchResult{
			Tier:    TierSemantic,
			ID:      m.Node.ID,
			Score:   m.Score,
			Content: m.Node.Concept,
		})
	}

	contextMatches, err := c.working.SimilaritySearch(ctx, query, k)
	if err := c.tierFailure(ctx, TierWorking, err); err != nil {
		return nil, err
	}
	for _, m := range contextMatches {
		merged = append(merged, SearchResult{
			Tier:    TierWorking,
			ID:      m.Context.ID,
			Score:   m.Score,
			Content: m.Context.Content,
		})
	}

	merged = rankResults(merged, k)
	c.cache.Add(key, merged)
	c.monitor.RecordOperationTime("search.integrated", time.Since(start))
	return append([]SearchResult(nil), merged...), nil
}

// MemoryStatistics reports per-tier entry counts plus the total.
func (c *Coordinator) MemoryStatistics(ctx context.Context) (MemoryStatistics, error) {
	var stats MemoryStatistics
	var err error
	if stats.Vector, err = c.vector.Size(ctx); err != nil {
		return MemoryStatistics{}, err
	}
	if stats.Episodic, err = c.episodic.Size(ctx); err != nil {
		return MemoryStatistics{}, err
	}
	if stats.Semantic, err = c.graph.Size(ctx); err != nil {
		return MemoryStatistics{}, err
	}
	if stats.Working, err = c.working.Size(ctx); err != nil {
		return MemoryStatistics{}, err
	}
	stats.Total = stats.Vector + stats.Episodic + stats.Semantic + stats.Working
	return stats, nil
}

// ConsolidateWorkingToEpisodic promotes salient working contexts into
// the episodic log and returns how many moved.
func (c *Coordinator) ConsolidateWorkingToEpisodic(ctx context.Context, importanceThreshold float64) (int, error) {
	start := time.Now()
	moved, err := c.consolidator.ConsolidateWorkingToEpisodic(ctx, importanceThreshold)
	c.monitor.RecordOperationTime("consolidate.working_to_episodic", time.Since(start))
	c.monitor.RecordConsolidation(moved)
	c.notifyConsolidation(TierEpisodic, "working_to_episodic", moved)
	return moved, err
}

// ConsolidateEpisodicToSemantic promotes recent episodic events into
// the semantic graph and returns the number of upserts applied.
func (c *Coordinator) ConsolidateEpisodicToSemantic(ctx context.Context, recentLimit int) (int, error) {
	start := time.Now()
	applied, err := c.consolidator.ConsolidateEpisodicToSemantic(ctx, recentLimit)
	c.monitor.RecordOperationTime("consolidate.episodic_to_semantic", time.Since(start))
	c.monitor.RecordConsolidation(applied)
	c.notifyConsolidation(TierSemantic, "episodic_to_semantic", applied)
	return applied, err
}

// Remember places a context into working memory and announces it on
// the bus. The id is minted here when absent so the notification
// carries it.
func (c *Coordinator) Remember(ctx context.Context, wc WorkingContext) error {
	if wc.ID == "" {
		wc.ID = "ctx-" + uuid.NewString()
	}
	if err := c.working.AddContext(ctx, wc); err != nil {
		return err
	}
	if c.bus != nil {
		c.bus.Publish(bus.Notification{
			Kind: bus.KindStored,
			Tier: string(TierWorking),
			ID:   wc.ID,
		})
	}
	return nil
}

// ActiveContexts lists working-memory contexts at or above the
// attention floor, strongest first.
func (c *Coordinator) ActiveContexts(ctx context.Context, minAttention float64) ([]WorkingContext, error) {
	return c.working.ActiveContexts(ctx, minAttention)
}

// Decay applies one attention decay step to working memory.
func (c *Coordinator) Decay(ctx context.Context, factor float64) error {
	return c.working.Decay(ctx, factor)
}

// Relate upserts two concepts by label and the weighted relation
// between them. Existing nodes keep their attributes.
func (c *Coordinator) Relate(ctx context.Context, sourceLabel, targetLabel, relation string, weight float64) error {
	sourceID, err := c.ensureConcept(ctx, sourceLabel)
	if err != nil {
		return err
	}
	targetID, err := c.ensureConcept(ctx, targetLabel)
	if err != nil {
		return err
	}
	return c.graph.AddRelationship(ctx, sourceID, targetID, relation, weight)
}

// ConceptPath resolves two concept labels and returns the strongest
// relationship path between them as concept labels.
func (c *Coordinator) ConceptPath(ctx context.Context, sourceLabel, targetLabel string) ([]string, error) {
	ids, err := c.graph.FindShortestPath(ctx, conceptID(sourceLabel), conceptID(targetLabel))
	if err != nil {
		return nil, err
	}
	labels := make([]string, len(ids))
	for i, id := range ids {
		node, err := c.graph.GetNode(ctx, id)
		if err != nil {
			return nil, err
		}
		labels[i] = node.Concept
	}
	return labels, nil
}

func (c *Coordinator) ensureConcept(ctx context.Context, label string) (string, error) {
	id := conceptID(label)
	if _, err := c.graph.GetNode(ctx, id); err == nil {
		return id, nil
	} else if !errors.Is(err, ErrNotFound) {
		return "", err
	}
	err := c.graph.AddNode(ctx, SemanticNode{
		ID:      id,
		Concept: strings.TrimSpace(label),
	})
	return id, err
}

// ConsolidationMetrics returns the monotonic pass counters.
func (c *Coordinator) ConsolidationMetrics() ConsolidationMetrics {
	return c.consolidator.Metrics()
}

// PerformanceSnapshot returns the monitor's metrics, zero-valued when
// no monitor is attached.
func (c *Coordinator) PerformanceSnapshot() PerformanceMetrics {
	return c.monitor.Snapshot()
}

// tierFailure decides whether a per-tier error aborts the search.
// Cancellation aborts; anything else is logged and skipped.
func (c *Coordinator) tierFailure(ctx context.Context, tier Tier, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	log.Printf("[MEMORY] %s tier search degraded: %v", tier, err)
	return nil
}

func (c *Coordinator) notifyConsolidation(tier Tier, pass string, count int) {
	if c.bus == nil || count <= 0 {
		return
	}
	c.bus.Publish(bus.Notification{
		Kind: bus.KindConsolidated,
		Tier: string(tier),
		Detail: map[string]string{
			"pass":  pass,
			"count": fmt.Sprintf("%d", count),
		},
	})
}

// rankResults sorts by score descending with tier-priority
// tie-breaking and truncates to k.
func rankResults(results []SearchResult, k int) []SearchResult {
	out := append([]SearchResult(nil), results...)
	sort.SliceStable(out, func(i, j int) bool {
		return lessResult(out[i], out[j])
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}

func lessResult(a, b SearchResult) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return tierPriority[a.Tier] < tierPriority[b.Tier]
}

func contentFromMap(m map[string]any) string {
	if m == nil {
		return ""
	}
	if s, ok := m["content"].(string); ok {
		return s
	}
	return ""
}

func searchCacheKey(query []float32, k int) string {
	h := sha1.New()
	_ = binary.Write(h, binary.LittleEndian, query)
	_ = binary.Write(h, binary.LittleEndian, int64(k))
	return hex.EncodeToString(h.Sum(nil))
}
