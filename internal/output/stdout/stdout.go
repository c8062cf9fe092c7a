package stdout

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/CoReason-AI/coreason-signal/internal/model"
)

// Output writes JSON-encoded reflexes to stdout, one per line unless
// pretty-printed.
type Output struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// New creates a stdout Output.
func New(pretty bool) *Output {
	return NewWriter(os.Stdout, pretty)
}

// NewWriter creates an Output that writes to w instead of stdout.
func NewWriter(w io.Writer, pretty bool) *Output {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return &Output{enc: enc}
}

func (o *Output) Write(_ context.Context, reflex model.AgentReflex) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.enc.Encode(reflex); err != nil {
		return fmt.Errorf("stdout output: %w", err)
	}
	return nil
}

func (o *Output) Close() error {
	return nil
}
