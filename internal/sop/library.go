package sop

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/CoReason-AI/coreason-signal/internal/model"
)

// library is the on-disk YAML layout of an SOP library file.
type library struct {
	SOPs []model.SOPDocument `yaml:"sops"`
}

// LoadLibrary reads an SOP library file.
func LoadLibrary(path string) ([]model.SOPDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sop: read library: %w", err)
	}
	docs, err := ParseLibrary(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return docs, nil
}

// ParseLibrary decodes a YAML SOP library. Unknown fields, duplicate IDs and
// documents that Add would reject are errors.
func ParseLibrary(r io.Reader) ([]model.SOPDocument, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var lib library
	if err := dec.Decode(&lib); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("sop: parse library: %w", err)
	}

	seen := make(map[string]bool, len(lib.SOPs))
	for _, d := range lib.SOPs {
		if err := validate(d); err != nil {
			return nil, err
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("%w: duplicate id %s", ErrInvalidDocument, d.ID)
		}
		seen[d.ID] = true
	}
	return lib.SOPs, nil
}

// WriteLibrary encodes docs in the library file format.
func WriteLibrary(w io.Writer, docs []model.SOPDocument) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(library{SOPs: docs}); err != nil {
		return fmt.Errorf("sop: write library: %w", err)
	}
	return enc.Close()
}
