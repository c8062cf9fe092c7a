package reflex

import (
	"context"
	"path/filepath"
	"time"

	"github.com/CoReason-AI/coreason-signal/internal/sop"
)

// Actuator carries out triggered reflexes.
type Actuator interface {
	Write(ctx context.Context, r Reflex) error
}

type options struct {
	modelDir  string
	modelPath string
	vocabPath string
	dim       int
	storePath string
	timeout   time.Duration
	levels    []Level
	actuator  Actuator
	library   []SOP
}

// Option configures an Agent.
type Option func(*options)

// WithModelDir uses the ONNX embedder from dir.
// Expects: model.onnx, vocab.txt and libonnxruntime.so.
func WithModelDir(dir string) Option {
	return func(o *options) {
		o.modelDir = dir
	}
}

// WithModelPaths sets explicit model and vocab paths for the ONNX embedder.
func WithModelPaths(model, vocab string) Option {
	return func(o *options) {
		o.modelPath = model
		o.vocabPath = vocab
	}
}

// WithHashingDim sets the vector size of the built-in hashing embedder,
// used when no model is configured. Default: 384.
func WithHashingDim(n int) Option {
	return func(o *options) {
		o.dim = n
	}
}

// WithStorePath persists SOPs in a SQLite file. Default: in memory.
func WithStorePath(path string) Option {
	return func(o *options) {
		o.storePath = path
	}
}

// WithTimeout sets the decision deadline. Default: 200ms.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithActionableLevels sets which event levels may produce a reflex.
// Default: ERROR only.
func WithActionableLevels(levels ...Level) Option {
	return func(o *options) {
		o.levels = levels
	}
}

// WithActuator sets where triggered reflexes are executed.
func WithActuator(a Actuator) Option {
	return func(o *options) {
		o.actuator = a
	}
}

// WithLibrary seeds the store with docs at startup.
func WithLibrary(docs []SOP) Option {
	return func(o *options) {
		o.library = append(o.library, docs...)
	}
}

// WithDefaultLibrary seeds the store with the built-in laboratory SOPs.
func WithDefaultLibrary() Option {
	return WithLibrary(sop.DefaultLibrary())
}

func defaultOptions() options {
	return options{
		storePath: sop.MemoryPath,
	}
}

// resolvePaths returns the model and vocab paths, or empty strings when
// the hashing embedder should be used. Explicit paths take precedence over
// modelDir.
func resolvePaths(o options) (model, vocab string) {
	if o.modelPath != "" {
		return o.modelPath, o.vocabPath
	}
	if o.modelDir == "" {
		return "", ""
	}
	return filepath.Join(o.modelDir, "model.onnx"), filepath.Join(o.modelDir, "vocab.txt")
}
