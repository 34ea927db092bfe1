// Package embed is the embedding-provider boundary: text in, fixed
// length L2-normalized vector out. The rest of the system only ever
// compares vectors by cosine similarity.
package embed

import (
	"math"
	"sync"
)

// Encoder turns text into a fixed-length embedding vector.
type Encoder interface {
	// Encode returns an L2-normalized embedding for the given text.
	Encode(text string) ([]float32, error)
	// Dim returns the embedding dimension.
	Dim() int
}

// Cosine computes cosine similarity between two vectors. For
// L2-normalized vectors this is the plain dot product. Mismatched
// lengths score zero.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// NormalizeL2 scales vec to unit length. A zero vector is returned
// unchanged.
func NormalizeL2(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := float32(math.Sqrt(sum))
	if norm == 0 {
		return vec
	}
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = v / norm
	}
	return out
}

// Cached wraps an Encoder with an in-memory cache keyed by the exact
// input text. Workflow descriptions and repeated goals hit this often.
type Cached struct {
	inner Encoder

	mu      sync.RWMutex
	vectors map[string][]float32
}

// NewCached wraps enc with a cache.
func NewCached(enc Encoder) *Cached {
	return &Cached{inner: enc, vectors: make(map[string][]float32)}
}

// Encode returns the cached vector for text, computing it on miss.
func (c *Cached) Encode(text string) ([]float32, error) {
	c.mu.RLock()
	vec, ok := c.vectors[text]
	c.mu.RUnlock()
	if ok {
		return vec, nil
	}

	vec, err := c.inner.Encode(text)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.vectors[text] = vec
	c.mu.Unlock()
	return vec, nil
}

// Dim returns the wrapped encoder's dimension.
func (c *Cached) Dim() int { return c.inner.Dim() }

// Size returns the number of cached vectors.
func (c *Cached) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.vectors)
}
