package sop

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CoReason-AI/coreason-signal/internal/model"
)

const sampleLibrary = `
sops:
  - id: SOP-104
    title: Aspiration vacuum pressure drop
    content: Vacuum pressure drop in an aspiration channel.
    metadata:
      category: liquid_handling
    associated_reflex:
      action: RETRY
      parameters:
        speed_factor: 0.5
        channel: "1"
        verify: true
      reasoning: Retry aspiration at lower speed to clear clog.
  - id: SOP-310
    title: Gripper collision
    content: Gripper reported a collision.
`

func TestParseLibrary(t *testing.T) {
	docs, err := ParseLibrary(strings.NewReader(sampleLibrary))
	require.NoError(t, err)
	require.Len(t, docs, 2)

	r := docs[0].AssociatedReflex
	require.NotNil(t, r)
	assert.Equal(t, model.ActionRetry, r.Action)
	assert.Equal(t, model.KindNumber, r.Parameters["speed_factor"].Kind())
	assert.Equal(t, model.KindString, r.Parameters["channel"].Kind())
	assert.Equal(t, model.KindBool, r.Parameters["verify"].Kind())
	assert.Nil(t, docs[1].AssociatedReflex)
}

func TestParseLibraryErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown field", "sops:\n  - id: A\n    content: x\n    priority: 1\n"},
		{"duplicate id", "sops:\n  - id: A\n    content: x\n  - id: A\n    content: y\n"},
		{"missing content", "sops:\n  - id: A\n"},
		{"nested parameter", "sops:\n  - id: A\n    content: x\n    associated_reflex:\n      action: RETRY\n      reasoning: r\n      parameters:\n        speed: {value: 1}\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseLibrary(strings.NewReader(tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParseLibraryEmpty(t *testing.T) {
	docs, err := ParseLibrary(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestWriteLibraryRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteLibrary(&buf, DefaultLibrary()))

	docs, err := ParseLibrary(&buf)
	require.NoError(t, err)
	if diff := cmp.Diff(DefaultLibrary(), docs, cmp.AllowUnexported(model.Value{})); diff != "" {
		t.Errorf("library round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadLibrary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sops.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleLibrary), 0o644))

	docs, err := LoadLibrary(path)
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	_, err = LoadLibrary(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDefaultLibraryIsValid(t *testing.T) {
	seen := map[string]bool{}
	for _, d := range DefaultLibrary() {
		assert.NoError(t, validate(d))
		assert.False(t, seen[d.ID], "duplicate id %s", d.ID)
		seen[d.ID] = true
	}
}
