package embedder

import (
	"fmt"
	"hash/fnv"
)

// HashingEmbedder maps text to a signed feature-hashed bag of word unigrams
// and bigrams. It needs no model files and is deterministic across runs and
// machines, which makes it the default for edge deployments and tests.
type HashingEmbedder struct {
	dim int
}

// NewHashing returns a HashingEmbedder producing dim-length vectors.
func NewHashing(dim int) (*HashingEmbedder, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("embedder: hashing dimension must be positive, got %d", dim)
	}
	return &HashingEmbedder{dim: dim}, nil
}

// Dim returns the embedding dimensionality.
func (h *HashingEmbedder) Dim() int { return h.dim }

// Embed hashes text into a unit vector. Text without words yields the zero
// vector.
func (h *HashingEmbedder) Embed(text string) ([]float32, error) {
	vec := make([]float32, h.dim)
	var words []string
	for _, tok := range basicTokens(text) {
		if len([]rune(tok)) == 1 && isPunctuation([]rune(tok)[0]) {
			continue
		}
		words = append(words, tok)
	}
	for i, w := range words {
		h.add(vec, w, 1)
		if i > 0 {
			h.add(vec, words[i-1]+" "+w, 0.5)
		}
	}
	return normalize(vec), nil
}

func (h *HashingEmbedder) add(vec []float32, feature string, weight float32) {
	f := fnv.New64a()
	f.Write([]byte(feature))
	sum := f.Sum64()
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[sum%uint64(h.dim)] += weight
}

// EmbedBatch embeds each text independently.
func (h *HashingEmbedder) EmbedBatch(texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := h.Embed(t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Close is a no-op.
func (h *HashingEmbedder) Close() error { return nil }
