package memory

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

// ContextHintStrategy promotes events whose context maps carry
// explicit relationship hints:
//
//	"concept"         concept label for the event (required)
//	"related_to"      label of a related concept (optional)
//	"relation"        relation type, default "related_to"
//	"relation_weight" edge weight, default 0.5
//
// Node ids derive from normalized labels, so re-running the same
// events upserts the same nodes and edges.
type ContextHintStrategy struct{}

func (ContextHintStrategy) Infer(ctx context.Context, events []EpisodicEvent) ([]SemanticNode, []SemanticEdge, error) {
	var (
		nodes    []SemanticNode
		edges    []SemanticEdge
		seenNode = map[string]bool{}
		seenEdge = map[string]bool{}
	)

	appendNode := func(label string, ev EpisodicEvent, withEmbedding bool) string {
		id := conceptID(label)
		if seenNode[id] {
			return id
		}
		seenNode[id] = true
		node := SemanticNode{
			ID:      id,
			Concept: strings.TrimSpace(label),
			Attributes: map[string]any{
				"provenance": ProvenanceInferred,
			},
		}
		if withEmbedding {
			node.Embedding = append([]float32(nil), ev.Embedding...)
		}
		nodes = append(nodes, node)
		return id
	}

	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		concept, ok := stringHint(ev.Context, "concept")
		if !ok {
			continue
		}
		sourceID := appendNode(concept, ev, true)

		related, ok := stringHint(ev.Context, "related_to")
		if !ok {
			continue
		}
		targetID := appendNode(related, ev, false)

		relation, ok := stringHint(ev.Context, "relation")
		if !ok {
			relation = "related_to"
		}
		weight := 0.5
		if w, ok := floatHint(ev.Context, "relation_weight"); ok {
			weight = w
		}

		key := sourceID + "|" + targetID + "|" + relation
		if seenEdge[key] {
			continue
		}
		seenEdge[key] = true
		edges = append(edges, SemanticEdge{
			SourceID: sourceID,
			TargetID: targetID,
			Relation: relation,
			Weight:   weight,
		})
	}
	return nodes, edges, nil
}

// conceptID derives a stable node id from a normalized concept label.
func conceptID(label string) string {
	n := strings.ToLower(strings.TrimSpace(label))
	h := sha1.Sum([]byte("concept:" + n))
	return "con-" + hex.EncodeToString(h[:8])
}

func stringHint(m map[string]any, key string) (string, bool) {
	if m == nil {
		return "", false
	}
	s, ok := m[key].(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

func floatHint(m map[string]any, key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	switch v := m[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}
