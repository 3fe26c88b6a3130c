package memory

import (
	"container/heap"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// InMemorySemanticGraph is the directed weighted concept graph.
// Traversal cost of an edge is 1 - weight, so higher-weight
// relationships are preferred by shortest-path queries.
type InMemorySemanticGraph struct {
	mu    sync.Mutex
	dim   int
	nodes map[string]SemanticNode
	// adj[source][target][relation] = weight
	adj     map[string]map[string]map[string]float64
	order   []string // node insertion order, for deterministic scans
	monitor Monitor
}

func NewSemanticGraph(dim int, monitor Monitor) *InMemorySemanticGraph {
	return &InMemorySemanticGraph{
		dim:     dim,
		nodes:   make(map[string]SemanticNode),
		adj:     make(map[string]map[string]map[string]float64),
		monitor: monitor,
	}
}

// AddNode upserts by node id. The optional embedding may be absent
// entirely, never the wrong length.
func (g *InMemorySemanticGraph) AddNode(ctx context.Context, node SemanticNode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if node.ID == "" {
		return fmt.Errorf("%w: node id is required", ErrValidation)
	}
	if g.dim > 0 && len(node.Embedding) > 0 && len(node.Embedding) != g.dim {
		return fmt.Errorf("%w: want %d, got %d", ErrDimensionMismatch, g.dim, len(node.Embedding))
	}
	start := time.Now()

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.nodes[node.ID]; !ok {
		g.order = append(g.order, node.ID)
	}
	node.Attributes = copyMap(node.Attributes)
	node.Embedding = append([]float32(nil), node.Embedding...)
	g.nodes[node.ID] = node

	g.recordTime("store.semantic", start)
	return nil
}

// AddRelationship upserts the (source, target, relation) triple.
// Weight is never clamped here: it feeds path-cost arithmetic and
// must be caller-correct.
func (g *InMemorySemanticGraph) AddRelationship(ctx context.Context, sourceID, targetID, relation string, weight float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if weight < 0 || weight > 1 {
		return fmt.Errorf("%w: relationship weight %v outside [0,1]", ErrValidation, weight)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.nodes[sourceID]; !ok {
		return fmt.Errorf("%w: source node %q", ErrNotFound, sourceID)
	}
	if _, ok := g.nodes[targetID]; !ok {
		return fmt.Errorf("%w: target node %q", ErrNotFound, targetID)
	}
	if g.adj[sourceID] == nil {
		g.adj[sourceID] = make(map[string]map[string]float64)
	}
	if g.adj[sourceID][targetID] == nil {
		g.adj[sourceID][targetID] = make(map[string]float64)
	}
	g.adj[sourceID][targetID][relation] = weight
	return nil
}

// FindShortestPath runs Dijkstra over 1-weight edge costs and returns
// the ordered node-id path, or ErrNoPath when the target is
// unreachable.
func (g *InMemorySemanticGraph) FindShortestPath(ctx context.Context, sourceID, targetID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.nodes[sourceID]; !ok {
		return nil, fmt.Errorf("%w: source node %q", ErrNotFound, sourceID)
	}
	if _, ok := g.nodes[targetID]; !ok {
		return nil, fmt.Errorf("%w: target node %q", ErrNotFound, targetID)
	}
	if sourceID == targetID {
		return []string{sourceID}, nil
	}

	dist := map[string]float64{sourceID: 0}
	prev := map[string]string{}
	visited := map[string]bool{}

	pq := &pathQueue{{id: sourceID, cost: 0}}
	heap.Init(pq)

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(pathEntry)
		if visited[cur.id] {
			continue
		}
		visited[cur.id] = true
		if cur.id == targetID {
			break
		}
		for target, relations := range g.adj[cur.id] {
			cost := cur.cost + 1 - bestWeight(relations)
			if d, ok := dist[target]; !ok || cost < d {
				dist[target] = cost
				prev[target] = cur.id
				heap.Push(pq, pathEntry{id: target, cost: cost})
			}
		}
	}

	if !visited[targetID] {
		return nil, fmt.Errorf("%w: %q -> %q", ErrNoPath, sourceID, targetID)
	}

	path := []string{targetID}
	for at := targetID; at != sourceID; at = prev[at] {
		path = append(path, prev[at])
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// Neighbors returns the directly reachable node ids over outgoing
// edges, sorted for determinism.
func (g *InMemorySemanticGraph) Neighbors(ctx context.Context, nodeID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.nodes[nodeID]; !ok {
		return nil, fmt.Errorf("%w: node %q", ErrNotFound, nodeID)
	}
	out := make([]string, 0, len(g.adj[nodeID]))
	for target := range g.adj[nodeID] {
		out = append(out, target)
	}
	sort.Strings(out)
	return out, nil
}

func (g *InMemorySemanticGraph) GetNode(ctx context.Context, nodeID string) (SemanticNode, error) {
	if err := ctx.Err(); err != nil {
		return SemanticNode{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	node, ok := g.nodes[nodeID]
	if !ok {
		return SemanticNode{}, fmt.Errorf("%w: node %q", ErrNotFound, nodeID)
	}
	return copyNode(node), nil
}

func (g *InMemorySemanticGraph) SimilaritySearch(ctx context.Context, query []float32, k int) ([]NodeMatch, error) {
	if g.dim > 0 && len(query) != g.dim {
		return nil, fmt.Errorf("%w: want %d, got %d", ErrDimensionMismatch, g.dim, len(query))
	}
	if k <= 0 {
		return nil, nil
	}
	start := time.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	matches := []NodeMatch{}
	for _, id := range g.order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		node := g.nodes[id]
		if len(node.Embedding) == 0 {
			continue
		}
		matches = append(matches, NodeMatch{Node: copyNode(node), Score: cosineSimilarity(query, node.Embedding)})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > k {
		matches = matches[:k]
	}

	g.recordTime("search.semantic", start)
	return matches, nil
}

func (g *InMemorySemanticGraph) Size(ctx context.Context) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.nodes), nil
}

func (g *InMemorySemanticGraph) recordTime(op string, start time.Time) {
	if g.monitor != nil {
		g.monitor.RecordOperationTime(op, time.Since(start))
	}
}

// bestWeight picks the strongest relation between two nodes, since
// parallel relations cost the traversal nothing extra.
func bestWeight(relations map[string]float64) float64 {
	best := 0.0
	for _, w := range relations {
		if w > best {
			best = w
		}
	}
	return best
}

func copyNode(node SemanticNode) SemanticNode {
	node.Attributes = copyMap(node.Attributes)
	node.Embedding = append([]float32(nil), node.Embedding...)
	return node
}

type pathEntry struct {
	id   string
	cost float64
}

type pathQueue []pathEntry

func (q pathQueue) Len() int { return len(q) }
func (q pathQueue) Less(i, j int) bool {
	if q[i].cost == q[j].cost {
		return q[i].id < q[j].id
	}
	return q[i].cost < q[j].cost
}
func (q pathQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *pathQueue) Push(x any)        { *q = append(*q, x.(pathEntry)) }
func (q *pathQueue) Pop() any {
	old := *q
	n := len(old)
	entry := old[n-1]
	*q = old[:n-1]
	return entry
}
