// Package store persists learned parameter mappings: a short context
// phrase, its embedding, and the value the user supplied for it.
// Lookup is nearest-neighbor by cosine similarity over the context
// embeddings, filtered to one parameter name.
package store

import (
	"bytes"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/scenesmith/scenepilot/internal/embed"
)

// Mapping is one learned association.
type Mapping struct {
	ID         int64
	Context    string
	Parameter  string
	Value      float64
	WorkflowID string
	UseCount   int
	Similarity float64 // populated by Find
}

// Store is the learned-mapping interface the resolver depends on.
type Store interface {
	// Find returns the best mapping for parameter whose context is at
	// least threshold-similar to text, or ok=false when none clears it.
	Find(text, parameter string, threshold float64) (*Mapping, bool, error)
	// Put records (or refreshes) a mapping.
	Put(text, parameter string, value float64, workflowID string) error
}

// MappingStore is the SQLite-backed implementation.
type MappingStore struct {
	db      *sql.DB
	encoder embed.Encoder
}

var _ Store = (*MappingStore)(nil)

// New creates a mapping store over an open database.
func New(db *sql.DB, encoder embed.Encoder) *MappingStore {
	return &MappingStore{db: db, encoder: encoder}
}

// Find embeds text and scans the stored contexts for the given
// parameter, returning the most similar mapping above threshold. A hit
// bumps the mapping's use counter.
func (s *MappingStore) Find(text, parameter string, threshold float64) (*Mapping, bool, error) {
	queryVec, err := s.encoder.Encode(text)
	if err != nil {
		return nil, false, fmt.Errorf("failed to embed context: %w", err)
	}

	rows, err := s.db.Query(`
		SELECT id, context, embedding, value, workflow_id, use_count
		FROM mappings
		WHERE parameter = ?
	`, parameter)
	if err != nil {
		return nil, false, fmt.Errorf("failed to query mappings: %w", err)
	}
	defer rows.Close()

	var best *Mapping
	for rows.Next() {
		var m Mapping
		var blob []byte
		if err := rows.Scan(&m.ID, &m.Context, &blob, &m.Value, &m.WorkflowID, &m.UseCount); err != nil {
			return nil, false, fmt.Errorf("failed to scan mapping: %w", err)
		}
		m.Parameter = parameter

		vec, err := decodeVector(blob)
		if err != nil {
			continue // unreadable row, skip rather than fail the lookup
		}
		m.Similarity = embed.Cosine(queryVec, vec)
		if m.Similarity >= threshold && (best == nil || m.Similarity > best.Similarity) {
			mc := m
			best = &mc
		}
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("failed to iterate mappings: %w", err)
	}
	if best == nil {
		return nil, false, nil
	}

	if _, err := s.db.Exec("UPDATE mappings SET use_count = use_count + 1 WHERE id = ?", best.ID); err != nil {
		return nil, false, fmt.Errorf("failed to bump use count: %w", err)
	}
	best.UseCount++
	return best, true, nil
}

// Put stores a mapping, replacing an existing one for the same context
// and parameter.
func (s *MappingStore) Put(text, parameter string, value float64, workflowID string) error {
	vec, err := s.encoder.Encode(text)
	if err != nil {
		return fmt.Errorf("failed to embed context: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO mappings (context, parameter, embedding, value, workflow_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(context, parameter) DO UPDATE SET
			embedding = excluded.embedding,
			value = excluded.value,
			workflow_id = excluded.workflow_id
	`, text, parameter, encodeVector(vec), value, workflowID)
	if err != nil {
		return fmt.Errorf("failed to store mapping: %w", err)
	}
	return nil
}

func encodeVector(vec []float32) []byte {
	buf := new(bytes.Buffer)
	for _, v := range vec {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
		buf.Write(b[:])
	}
	return buf.Bytes()
}

func decodeVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("embedding blob has invalid length %d", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, nil
}
