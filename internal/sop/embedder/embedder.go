// Package embedder turns SOP and log text into vectors for similarity search.
package embedder

import (
	"fmt"
	"path/filepath"
)

// DefaultDim is the vector size of the bge-small family and of the hashing
// fallback.
const DefaultDim = 384

// Embedder produces vector embeddings from text. Implementations are safe
// for concurrent use and return L2-normalized vectors of length Dim.
type Embedder interface {
	Embed(text string) ([]float32, error)
	EmbedBatch(texts []string) ([][]float32, error)
	Dim() int
	Close() error
}

// Config selects and configures an embedder.
type Config struct {
	ModelPath      string // ONNX model; empty selects the hashing embedder
	VocabPath      string // WordPiece vocab; defaults to vocab.txt next to the model
	RuntimeLibrary string // onnxruntime shared library; defaults to libonnxruntime.so next to the model
	Dim            int    // hashing embedder dimension; defaults to DefaultDim
}

// New returns the ONNX embedder when a model is configured and the hashing
// embedder otherwise.
func New(cfg Config) (Embedder, error) {
	if cfg.ModelPath == "" {
		dim := cfg.Dim
		if dim == 0 {
			dim = DefaultDim
		}
		return NewHashing(dim)
	}

	dir := filepath.Dir(cfg.ModelPath)
	if cfg.VocabPath == "" {
		cfg.VocabPath = filepath.Join(dir, "vocab.txt")
	}
	if cfg.RuntimeLibrary == "" {
		cfg.RuntimeLibrary = filepath.Join(dir, "libonnxruntime.so")
	}
	e, err := NewONNX(cfg.ModelPath, cfg.VocabPath, cfg.RuntimeLibrary)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	return e, nil
}
