package vector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNanoUpdatePayloadMergesByKeyWithoutTouchingVector(t *testing.T) {
	ctx := context.Background()
	n, err := NewNano("")
	require.NoError(t, err)

	vec := []float32{1, 0, 0}
	require.NoError(t, n.Upsert(ctx, []Point{{
		ID:      "e1",
		Vector:  vec,
		Payload: map[string]string{"entity_name": "ACME CORP", "entity_type": "ORGANIZATION"},
	}}))

	require.NoError(t, n.UpdatePayload(ctx, map[string]map[string]string{
		"e1": {"community_description": "A technology company in the north-east cluster."},
	}))

	matches, err := n.Search(ctx, vec, 1, nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "e1", matches[0].ID)
	assert.Equal(t, "ACME CORP", matches[0].Payload["entity_name"])
	assert.Equal(t, "ORGANIZATION", matches[0].Payload["entity_type"])
	assert.Equal(t, "A technology company in the north-east cluster.", matches[0].Payload["community_description"])

	n.mu.RLock()
	stored := n.points["e1"].Vector
	n.mu.RUnlock()
	assert.Equal(t, vec, stored, "UpdatePayload must never touch the stored vector")
}

func TestNanoUpdatePayloadOnAbsentIDIsNoOp(t *testing.T) {
	ctx := context.Background()
	n, err := NewNano("")
	require.NoError(t, err)

	err = n.UpdatePayload(ctx, map[string]map[string]string{"missing": {"k": "v"}})
	assert.NoError(t, err)

	matches, err := n.Search(ctx, []float32{1, 0, 0}, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, matches)
}
