package chunk

import (
	"strings"
	"testing"

	"graphrag/internal/config"
	"graphrag/internal/graphmodel"
)

func genWords(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString("word")
	}
	return b.String()
}

func TestNewRejectsNegativeOverlap(t *testing.T) {
	_, err := New(config.ChunkConfig{TokenSize: 100, TokenOverlap: -1})
	if err == nil {
		t.Fatal("expected an error for negative overlap")
	}
}

func TestNewRejectsOverlapGreaterThanOrEqualToSize(t *testing.T) {
	_, err := New(config.ChunkConfig{TokenSize: 100, TokenOverlap: 100})
	if err == nil {
		t.Fatal("expected an error when overlap equals size")
	}
	_, err = New(config.ChunkConfig{TokenSize: 100, TokenOverlap: 150})
	if err == nil {
		t.Fatal("expected an error when overlap exceeds size")
	}
}

func TestNewAcceptsZeroOverlap(t *testing.T) {
	c, err := New(config.ChunkConfig{TokenSize: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.tokenOverlap != 0 {
		t.Fatalf("expected overlap 0, got %d", c.tokenOverlap)
	}
}

func TestSplitProducesOverlappingWindows(t *testing.T) {
	c, err := New(config.ChunkConfig{TokenSize: 50, TokenOverlap: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	doc := graphmodel.Document{ID: "doc1", Content: genWords(200)}
	chunks := c.Split(doc)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for _, ch := range chunks {
		if ch.DocID != "doc1" {
			t.Fatalf("expected doc id doc1, got %s", ch.DocID)
		}
	}
}

func TestSplitIsContentAddressed(t *testing.T) {
	c, err := New(config.ChunkConfig{TokenSize: 50})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	doc := graphmodel.Document{ID: "doc1", Content: genWords(80)}
	first := c.Split(doc)
	second := c.Split(doc)
	if len(first) != len(second) {
		t.Fatalf("expected identical chunk counts across runs")
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("expected identical chunk ids for identical content, got %s vs %s", first[i].ID, second[i].ID)
		}
	}
}
