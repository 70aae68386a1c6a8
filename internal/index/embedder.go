package index

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// MockEmbedder produces deterministic unit-length vectors derived from the
// text alone: the same input always embeds to the same vector, so test
// assertions and offline ingestion runs are reproducible.
type MockEmbedder struct {
	dimensions int
}

func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 1536
	}
	return &MockEmbedder{dimensions: dimensions}
}

func (m *MockEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = m.embed(text)
	}
	return out, nil
}

func (m *MockEmbedder) embed(text string) []float32 {
	vec := make([]float32, m.dimensions)
	digest := sha256.Sum256([]byte(text))

	var norm float64
	for i := 0; i < m.dimensions; i++ {
		// Stretch the digest by re-hashing whenever it runs out.
		if i%8 == 0 && i > 0 {
			digest = sha256.Sum256(digest[:])
		}
		bits := binary.BigEndian.Uint32(digest[(i%8)*4 : (i%8)*4+4])
		v := float32(bits)/float32(math.MaxUint32)*2 - 1
		vec[i] = v
		norm += float64(v) * float64(v)
	}

	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}
