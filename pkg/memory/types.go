package memory

import "time"

// Tier identifies one of the four memory stores.
type Tier string

const (
	TierVector   Tier = "vector"
	TierEpisodic Tier = "episodic"
	TierSemantic Tier = "semantic"
	TierWorking  Tier = "working"
)

// tierPriority orders tiers for merge tie-breaking: lower wins.
var tierPriority = map[Tier]int{
	TierVector:   0,
	TierEpisodic: 1,
	TierSemantic: 2,
	TierWorking:  3,
}

// Provenance values distinguish directly-stored entries from promoted ones.
const (
	ProvenanceDirect       = "direct"
	ProvenanceConsolidated = "consolidated_from_working"
	ProvenanceInferred     = "inferred_from_episodic"
)

// VectorItem is an immutable embedding record in the vector tier.
type VectorItem struct {
	ID        string
	Embedding []float32
	Metadata  map[string]any
	CreatedAt time.Time
}

// VectorMatch pairs a vector item with its similarity score.
type VectorMatch struct {
	Item  VectorItem
	Score float64
}

// EpisodicEvent is an append-only timestamped record in the episodic tier.
type EpisodicEvent struct {
	ID         string
	Timestamp  time.Time
	Type       string
	Context    map[string]any
	Embedding  []float32
	Provenance string
}

// EventMatch pairs an episodic event with its similarity score.
type EventMatch struct {
	Event EpisodicEvent
	Score float64
}

// SemanticNode is an upsertable concept in the semantic graph.
type SemanticNode struct {
	ID         string
	Concept    string
	Attributes map[string]any
	Embedding  []float32
}

// SemanticEdge is a directed weighted relationship. The
// (SourceID, TargetID, Relation) triple is unique; re-adding
// overwrites the weight.
type SemanticEdge struct {
	SourceID string
	TargetID string
	Relation string
	Weight   float64
}

// NodeMatch pairs a semantic node with its similarity score.
type NodeMatch struct {
	Node  SemanticNode
	Score float64
}

// WorkingContext is an attention-ranked entry in the working scratchpad.
// Attention is clamped to [0,1] at insertion and decay.
type WorkingContext struct {
	ID        string
	Content   string
	Attention float64
	Timestamp time.Time
	Embedding []float32
}

// ContextMatch pairs a working context with its similarity score.
type ContextMatch struct {
	Context WorkingContext
	Score   float64
}

// SearchResult is one merged integrated-search hit, tagged with the
// tier it came from. Score is comparable across tiers: higher is
// more similar.
type SearchResult struct {
	Tier    Tier
	ID      string
	Score   float64
	Content string
}

// ConsolidationMetrics are monotonic counters, reset only when the
// owning coordinator is constructed.
type ConsolidationMetrics struct {
	Total              uint64
	WorkingToEpisodic  uint64
	EpisodicToSemantic uint64
}

// MemoryStatistics reports per-tier entry counts.
type MemoryStatistics struct {
	Vector   int
	Episodic int
	Semantic int
	Working  int
	Total    int
}

// PerformanceMetrics is the monitor's aggregate snapshot.
type PerformanceMetrics struct {
	SearchLatencyMS     float64
	StorageLatencyMS    float64
	MemoryUsageMB       float64
	CacheHitRate        float64
	ConsolidationRate   float64
	ThroughputOpsPerSec float64
}
