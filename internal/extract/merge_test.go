package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"graphrag/internal/config"
)

func TestParseResponse(t *testing.T) {
	resp := `(entity<|>Alice Smith<|>person<|>A senior executive)##(entity<|>Bob Jones<|>PERSON<|>CEO of Acme)##(relationship<|>Alice Smith<|>Bob Jones<|>Alice supersedes Bob<|>1.0)##`
	entities, edges := parseResponse(resp, "chunk-1")

	assert.Len(t, entities, 2)
	assert.Equal(t, "ALICE SMITH", entities[0].Name)
	assert.Equal(t, "PERSON", entities[0].Type)
	assert.Len(t, edges, 1)
	assert.Equal(t, "ALICE SMITH", edges[0].Source)
	assert.Equal(t, "BOB JONES", edges[0].Target)
	assert.Equal(t, 1.0, edges[0].Weight)
}

func TestLooksTruncated(t *testing.T) {
	assert.True(t, looksTruncated("(entity<|>X<|>Y<|>desc"))
	assert.False(t, looksTruncated("(entity<|>X<|>Y<|>desc)##"))
	assert.True(t, looksTruncated(""))
}

func TestMergeDocumentUnionsSourceIDsAndSumsWeight(t *testing.T) {
	entities := []RawEntity{
		{Name: "ACME CORP", Type: "ORGANIZATION", Description: "A company", SourceChunk: "chunk-1"},
		{Name: "ACME CORP", Type: "ORGANIZATION", Description: "A company", SourceChunk: "chunk-2"},
		{Name: "ACME CORP", Type: "ORGANIZATION", Description: "Headquartered downtown", SourceChunk: "chunk-2"},
	}
	edges := []RawEdge{
		{Source: "ALICE SMITH", Target: "BOB JONES", Description: "Alice supersedes Bob as CEO", Weight: 1.0, SourceChunk: "chunk-1"},
		{Source: "ALICE SMITH", Target: "BOB JONES", Description: "Alice supersedes Bob as CEO", Weight: 1.0, SourceChunk: "chunk-2"},
	}
	patterns := NewRelationPatternList([]config.RelationPattern{{Match: "supersedes", Label: "SUPERSEDES"}})

	merged := MergeDocument(entities, edges, patterns)

	assert.Len(t, merged.Entities, 1)
	acme := merged.Entities[0]
	assert.Equal(t, []string{"chunk-1", "chunk-2"}, acme.SourceIDs)
	assert.Equal(t, "A company\nHeadquartered downtown", acme.Description) // exact dup deduped, distinct kept

	assert.Len(t, merged.Edges, 1)
	edge := merged.Edges[0]
	assert.Equal(t, "SUPERSEDES", edge.RelationType)
	assert.Equal(t, 2.0, edge.Weight) // summed, not doubled-then-deduped
	assert.Equal(t, []string{"chunk-1", "chunk-2"}, edge.SourceIDs)
}

func TestMergeDocumentSameChunkTwiceDoesNotDoubleWeight(t *testing.T) {
	// Simulates the same chunk's extraction being fed into the merge twice
	// (e.g. a retried extraction call for the same content): source_id sets
	// must not grow and weight must not double (spec §8 invariant 3).
	entities := []RawEntity{{Name: "X", Type: "PERSON", Description: "d", SourceChunk: "c1"}}
	edges := []RawEdge{{Source: "X", Target: "Y", Description: "d", Weight: 1.0, SourceChunk: "c1"}}
	patterns := RelationPatternList{}

	merged := MergeDocument(append(entities, entities...), append(edges, edges...), patterns)

	assert.Equal(t, []string{"c1"}, merged.Entities[0].SourceIDs)
	assert.Equal(t, 1.0, merged.Edges[0].Weight)
}

func TestMergeDocumentDirectionPreserved(t *testing.T) {
	edges := []RawEdge{
		{Source: "A", Target: "B", Description: "A parent of B", Weight: 1, SourceChunk: "c1"},
		{Source: "B", Target: "A", Description: "B child of A", Weight: 1, SourceChunk: "c1"},
	}
	patterns := NewRelationPatternList([]config.RelationPattern{{Match: "parent of", Label: "PARENT_OF"}})
	merged := MergeDocument(nil, edges, patterns)

	assert.Len(t, merged.Edges, 2) // reversed direction is NOT the same logical edge
}
