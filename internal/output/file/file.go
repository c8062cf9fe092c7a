package file

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/CoReason-AI/coreason-signal/internal/model"
)

const (
	defaultBufSize = 64 * 1024
	maxRotated     = 10
)

// Option configures a file Output.
type Option func(*Output)

// WithMaxSize sets the file size (bytes) at which rotation triggers.
// 0 (default) disables rotation.
func WithMaxSize(bytes int64) Option {
	return func(o *Output) { o.maxSize = bytes }
}

// WithBufSize sets the bufio.Writer buffer size. Default: 64KB.
func WithBufSize(bytes int) Option {
	return func(o *Output) { o.bufSize = bytes }
}

// WithSync flushes and fsyncs after every reflex. Use when the file is the
// audit record of actions taken on instruments.
func WithSync() Option {
	return func(o *Output) { o.sync = true }
}

// Output appends reflexes as NDJSON to a file, with optional size-based
// rotation to {path}.1 ... {path}.10.
type Output struct {
	mu      sync.Mutex
	w       *bufio.Writer
	f       *os.File
	path    string
	maxSize int64
	written int64
	bufSize int
	sync    bool
}

// New creates a file output appending to path.
func New(path string, opts ...Option) (*Output, error) {
	o := &Output{path: path, bufSize: defaultBufSize}
	for _, opt := range opts {
		opt(o)
	}
	if err := o.open(); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *Output) Write(_ context.Context, reflex model.AgentReflex) error {
	data, err := json.Marshal(reflex)
	if err != nil {
		return fmt.Errorf("file output: marshal: %w", err)
	}
	data = append(data, '\n')

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.maxSize > 0 && o.written > 0 && o.written+int64(len(data)) > o.maxSize {
		if err := o.rotate(); err != nil {
			return fmt.Errorf("file output: rotate: %w", err)
		}
	}
	n, err := o.w.Write(data)
	o.written += int64(n)
	if err != nil {
		return fmt.Errorf("file output: write: %w", err)
	}
	if o.sync {
		if err := o.w.Flush(); err != nil {
			return fmt.Errorf("file output: flush: %w", err)
		}
		return o.f.Sync()
	}
	return nil
}

// Close flushes the buffer and closes the file.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.w.Flush(); err != nil {
		o.f.Close()
		return fmt.Errorf("file output: flush: %w", err)
	}
	return o.f.Close()
}

func (o *Output) open() error {
	f, err := os.OpenFile(o.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("file output: open %s: %w", o.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("file output: stat %s: %w", o.path, err)
	}
	o.f = f
	o.w = bufio.NewWriterSize(f, o.bufSize)
	o.written = info.Size()
	return nil
}

// rotate shifts {path}.N to {path}.N+1, moves the live file to {path}.1
// and reopens. The oldest file beyond maxRotated is overwritten.
func (o *Output) rotate() error {
	if err := o.w.Flush(); err != nil {
		return err
	}
	if err := o.f.Close(); err != nil {
		return err
	}
	for i := maxRotated - 1; i >= 1; i-- {
		// Missing generations are expected.
		_ = os.Rename(fmt.Sprintf("%s.%d", o.path, i), fmt.Sprintf("%s.%d", o.path, i+1))
	}
	if err := os.Rename(o.path, o.path+".1"); err != nil {
		return err
	}
	return o.open()
}
