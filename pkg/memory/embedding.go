package memory

import (
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

// Embedder produces fixed-length vectors for text. The stores never
// call it; callers embed externally and hand vectors in. It exists so
// the CLI and tests can mint deterministic vectors locally.
type Embedder interface {
	ModelID() string
	Embed(text string) []float32
}

var tokenPattern = regexp.MustCompile(`[A-Za-z0-9_\-]+`)

// HashEmbedder is a deterministic FNV feature-hashing embedder.
type HashEmbedder struct {
	dims int
}

func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 256
	}
	return &HashEmbedder{dims: dims}
}

func (e *HashEmbedder) ModelID() string { return "stratamem-hash-v1" }

func (e *HashEmbedder) Dims() int { return e.dims }

func (e *HashEmbedder) Embed(text string) []float32 {
	vec := make([]float32, e.dims)
	for _, token := range tokenize(text) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(token))
		sum := h.Sum64()
		idx := int(sum % uint64(e.dims))
		sign := float32(1)
		if sum&1 == 1 {
			sign = -1
		}
		weight := float32(1 + (len(token) / 8))
		vec[idx] += sign * weight
	}
	normalizeVector(vec)
	return vec
}

func tokenize(text string) []string {
	text = strings.ToLower(strings.TrimSpace(text))
	matches := tokenPattern.FindAllString(text, -1)
	if len(matches) == 0 && text != "" {
		return []string{text}
	}
	return matches
}

func vectorNorm(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v * v)
	}
	return math.Sqrt(sum)
}

func normalizeVector(vec []float32) {
	n := vectorNorm(vec)
	if n == 0 {
		return
	}
	inv := float32(1.0 / n)
	for i := range vec {
		vec[i] *= inv
	}
}

// cosineSimilarity scores 0 for mismatched lengths rather than
// truncating or panicking; stores validate dimensions up front, this
// guard covers unvalidated embeddings reaching a scan.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i] * b[i])
	}
	na := vectorNorm(a)
	nb := vectorNorm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (na * nb)
}

func euclideanDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// euclideanScore maps a distance into (0,1] so that higher always
// means more similar, matching the cosine convention. Mismatched
// lengths score 0, same as cosine.
func euclideanScore(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	return 1.0 / (1.0 + euclideanDistance(a, b))
}
