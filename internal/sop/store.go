// Package sop holds the laboratory's Standard Operating Procedures and
// answers similarity queries over them.
package sop

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/CoReason-AI/coreason-signal/internal/model"
	"github.com/CoReason-AI/coreason-signal/internal/sop/embedder"
)

// MemoryPath keeps the store in memory only.
const MemoryPath = "memory://"

var (
	// ErrInvalidK is returned by Query for k <= 0.
	ErrInvalidK = errors.New("sop: k must be positive")
	// ErrInvalidDocument is returned by Add for documents without an ID or
	// content, or with an invalid associated reflex.
	ErrInvalidDocument = errors.New("sop: invalid document")
)

// entry is a cached document with its embedding.
type entry struct {
	doc    model.SOPDocument
	vector []float32
}

// LocalStore is an embedded SOP vector store. Documents and their
// embeddings persist in SQLite; similarity ranking runs over an in-memory
// copy of the vectors.
type LocalStore struct {
	db    *sql.DB
	embed embedder.Embedder

	mu      sync.RWMutex
	entries map[string]entry
}

// Open opens (or creates) the store at path. MemoryPath keeps everything
// in memory. Existing documents are loaded into the cache.
func Open(path string, e embedder.Embedder) (*LocalStore, error) {
	if e == nil {
		return nil, errors.New("sop: nil embedder")
	}

	dsn := ":memory:"
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sop: create store directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sop: open db: %w", err)
	}
	// One connection: SQLite has a single writer, and every :memory:
	// connection would otherwise be its own database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &LocalStore{db: db, embed: e, entries: make(map[string]entry)}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sop: migrate: %w", err)
	}
	if err := s.load(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sop: load: %w", err)
	}
	return s, nil
}

func (s *LocalStore) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS sops (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		metadata TEXT,
		reflex TEXT,
		dim INTEGER NOT NULL,
		vector BLOB NOT NULL,
		updated_at DATETIME NOT NULL
	);`)
	return err
}

func (s *LocalStore) load() error {
	rows, err := s.db.Query(`SELECT id, title, content, metadata, reflex, dim, vector FROM sops`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			doc              model.SOPDocument
			metadata, reflex sql.NullString
			dim              int
			blob             []byte
		)
		if err := rows.Scan(&doc.ID, &doc.Title, &doc.Content, &metadata, &reflex, &dim, &blob); err != nil {
			return err
		}
		if dim != s.embed.Dim() {
			return fmt.Errorf("document %s was embedded with dimension %d, embedder has %d; re-ingest the library into a fresh store", doc.ID, dim, s.embed.Dim())
		}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &doc.Metadata); err != nil {
				return fmt.Errorf("document %s metadata: %w", doc.ID, err)
			}
		}
		if reflex.Valid && reflex.String != "" {
			doc.AssociatedReflex = &model.AgentReflex{}
			if err := json.Unmarshal([]byte(reflex.String), doc.AssociatedReflex); err != nil {
				return fmt.Errorf("document %s reflex: %w", doc.ID, err)
			}
		}
		s.entries[doc.ID] = entry{doc: doc, vector: decodeVector(blob)}
	}
	return rows.Err()
}

// Add embeds and upserts docs by ID. Either all documents are stored or
// none are.
func (s *LocalStore) Add(ctx context.Context, docs []model.SOPDocument) error {
	if len(docs) == 0 {
		return nil
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		if err := validate(d); err != nil {
			return err
		}
		texts[i] = embedText(d)
	}

	vectors, err := s.embed.EmbedBatch(texts)
	if err != nil {
		return fmt.Errorf("sop: embed: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sop: begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for i, d := range docs {
		var metadata, reflex []byte
		if len(d.Metadata) > 0 {
			if metadata, err = json.Marshal(d.Metadata); err != nil {
				return fmt.Errorf("sop: %s metadata: %w", d.ID, err)
			}
		}
		if d.AssociatedReflex != nil {
			if reflex, err = json.Marshal(d.AssociatedReflex); err != nil {
				return fmt.Errorf("sop: %s reflex: %w", d.ID, err)
			}
		}
		_, err = tx.ExecContext(ctx, `
		INSERT INTO sops (id, title, content, metadata, reflex, dim, vector, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			metadata = excluded.metadata,
			reflex = excluded.reflex,
			dim = excluded.dim,
			vector = excluded.vector,
			updated_at = excluded.updated_at`,
			d.ID, d.Title, d.Content, string(metadata), string(reflex), len(vectors[i]), encodeVector(vectors[i]), now)
		if err != nil {
			return fmt.Errorf("sop: upsert %s: %w", d.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sop: commit: %w", err)
	}

	s.mu.Lock()
	for i, d := range docs {
		s.entries[d.ID] = entry{doc: cloneDoc(d), vector: vectors[i]}
	}
	s.mu.Unlock()
	return nil
}

// Remove deletes the documents with the given IDs and returns how many
// existed. Unknown IDs are ignored.
func (s *LocalStore) Remove(ctx context.Context, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sop: begin: %w", err)
	}
	defer tx.Rollback()

	removed := 0
	for _, id := range ids {
		res, err := tx.ExecContext(ctx, `DELETE FROM sops WHERE id = ?`, id)
		if err != nil {
			return 0, fmt.Errorf("sop: delete %s: %w", id, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			removed += int(n)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sop: commit: %w", err)
	}

	s.mu.Lock()
	for _, id := range ids {
		delete(s.entries, id)
	}
	s.mu.Unlock()
	return removed, nil
}

// Query returns up to k documents most similar to text, best match first.
// Ties break by document ID. An empty store yields an empty result.
func (s *LocalStore) Query(text string, k int) ([]model.SOPDocument, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}

	s.mu.RLock()
	empty := len(s.entries) == 0
	s.mu.RUnlock()
	if empty {
		return nil, nil
	}

	q, err := s.embed.Embed(text)
	if err != nil {
		return nil, fmt.Errorf("sop: embed query: %w", err)
	}

	type scored struct {
		doc   model.SOPDocument
		score float64
	}
	s.mu.RLock()
	ranked := make([]scored, 0, len(s.entries))
	for _, e := range s.entries {
		ranked = append(ranked, scored{doc: e.doc, score: cosineSimilarity(q, e.vector)})
	}
	s.mu.RUnlock()

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].doc.ID < ranked[j].doc.ID
	})

	n := min(k, len(ranked))
	out := make([]model.SOPDocument, n)
	for i := range n {
		out[i] = cloneDoc(ranked[i].doc)
	}
	return out, nil
}

// Count returns the number of stored documents.
func (s *LocalStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close closes the database. The embedder is owned by the caller.
func (s *LocalStore) Close() error {
	return s.db.Close()
}

func validate(d model.SOPDocument) error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidDocument)
	}
	if strings.TrimSpace(d.Content) == "" {
		return fmt.Errorf("%w: %s has no content", ErrInvalidDocument, d.ID)
	}
	if d.AssociatedReflex != nil {
		if err := d.AssociatedReflex.Validate(); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidDocument, d.ID, err)
		}
	}
	return nil
}

// embedText is what gets embedded for a document: title and content.
func embedText(d model.SOPDocument) string {
	if d.Title == "" {
		return d.Content
	}
	return d.Title + "\n" + d.Content
}

func cloneDoc(d model.SOPDocument) model.SOPDocument {
	if d.Metadata != nil {
		md := make(map[string]string, len(d.Metadata))
		for k, v := range d.Metadata {
			md[k] = v
		}
		d.Metadata = md
	}
	if d.AssociatedReflex != nil {
		r := d.AssociatedReflex.Clone()
		d.AssociatedReflex = &r
	}
	return d
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
