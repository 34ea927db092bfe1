package store

import (
	"path/filepath"
	"testing"

	"github.com/scenesmith/scenepilot/internal/db"
	"github.com/scenesmith/scenepilot/internal/embed"
	"github.com/scenesmith/scenepilot/internal/match"
)

// wordEncoder embeds text as a bag of known words so similarity is
// predictable.
type wordEncoder struct {
	words []string
}

func (w *wordEncoder) Encode(text string) ([]float32, error) {
	vec := make([]float32, len(w.words))
	set := match.TokenSet(text)
	for i, word := range w.words {
		if set[word] {
			vec[i] = 1
		}
	}
	return embed.NormalizeL2(vec), nil
}

func (w *wordEncoder) Dim() int { return len(w.words) }

func setupStore(t *testing.T) *MappingStore {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	encoder := &wordEncoder{words: []string{
		"tall", "table", "wooden", "wide", "shelf", "narrow", "height",
	}}
	return New(database.Conn(), encoder)
}

func TestPutAndFind(t *testing.T) {
	s := setupStore(t)

	if err := s.Put("a tall wooden table height", "height", 1.1, "furniture.table"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// Similar context clears the threshold.
	m, ok, err := s.Find("tall wooden table", "height", 0.8)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if !ok {
		t.Fatal("expected a learned mapping hit")
	}
	if m.Value != 1.1 || m.WorkflowID != "furniture.table" {
		t.Errorf("unexpected mapping: %+v", m)
	}
	if m.UseCount != 1 {
		t.Errorf("expected use_count bump to 1, got %d", m.UseCount)
	}

	// Dissimilar context stays below the threshold.
	_, ok, err = s.Find("narrow shelf", "height", 0.8)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if ok {
		t.Fatal("dissimilar context must not hit")
	}
}

func TestFindFiltersByParameter(t *testing.T) {
	s := setupStore(t)

	if err := s.Put("tall wooden table", "height", 1.1, "furniture.table"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	_, ok, err := s.Find("tall wooden table", "width", 0.5)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if ok {
		t.Fatal("mapping for another parameter must not be returned")
	}
}

func TestPutUpserts(t *testing.T) {
	s := setupStore(t)

	if err := s.Put("wide table", "width", 1.0, "furniture.table"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Put("wide table", "width", 2.0, "furniture.table"); err != nil {
		t.Fatalf("Put (upsert) failed: %v", err)
	}

	m, ok, err := s.Find("wide table", "width", 0.9)
	if err != nil || !ok {
		t.Fatalf("Find failed: ok=%v err=%v", ok, err)
	}
	if m.Value != 2.0 {
		t.Errorf("expected upserted value 2.0, got %g", m.Value)
	}
}

func TestVectorRoundTrip(t *testing.T) {
	vec := []float32{0.25, -1.5, 3.75}
	decoded, err := decodeVector(encodeVector(vec))
	if err != nil {
		t.Fatalf("decodeVector failed: %v", err)
	}
	for i := range vec {
		if decoded[i] != vec[i] {
			t.Errorf("component %d: got %g, want %g", i, decoded[i], vec[i])
		}
	}

	if _, err := decodeVector([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
}
