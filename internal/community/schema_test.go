package community

import (
	"testing"

	"github.com/stretchr/testify/assert"

	graphstore "graphrag/internal/storage/graph"
)

func TestBuildSchemasGroupsMembersAndInternalEdges(t *testing.T) {
	nodes := []graphstore.NodeRecord{
		{ID: "A", Props: map[string]any{"source_id": "c1"}},
		{ID: "B", Props: map[string]any{"source_id": "c1,c2"}},
		{ID: "C", Props: map[string]any{"source_id": "c3"}},
	}
	edges := []graphstore.EdgeRecord{
		{Source: "A", Target: "B", RelationType: "RELATED"},
		{Source: "B", Target: "C", RelationType: "RELATED"},
	}
	assignments := map[string][]Assignment{
		"A": {{Level: 0, ClusterID: "L0-C0"}},
		"B": {{Level: 0, ClusterID: "L0-C0"}},
		"C": {{Level: 0, ClusterID: "L0-C1"}},
	}

	schemas := BuildSchemas(nodes, edges, assignments)

	assert.Len(t, schemas["L0-C0"].Nodes, 2)
	assert.Len(t, schemas["L0-C0"].Edges, 1) // A-B internal; B-C crosses clusters
	assert.ElementsMatch(t, []string{"c1", "c2"}, schemas["L0-C0"].ChunkIDs)
}

func TestIsSubset(t *testing.T) {
	a := map[string]bool{"x": true}
	b := map[string]bool{"x": true, "y": true}
	assert.True(t, isSubset(a, b))
	assert.False(t, isSubset(b, a))
	assert.False(t, isSubset(map[string]bool{}, b))
}
