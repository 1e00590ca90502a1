package community

import (
	"sort"
	"strings"

	graphstore "graphrag/internal/storage/graph"
)

// Schema is one (level, cluster_id)'s full membership, per spec §4.4
// "community_schema()".
type Schema struct {
	Level           int
	ClusterID       string
	Nodes           []graphstore.NodeRecord
	Edges           []graphstore.EdgeRecord // directed, internal to this community
	SubCommunities  []string                // cluster IDs at level+1 that are subsets
	OccurrenceCount int
	ChunkIDs        []string // union of source chunks backing members
}

// BuildSchemas derives the full community schema from node/edge records and
// the per-node cluster assignments computed by Cluster.
func BuildSchemas(nodes []graphstore.NodeRecord, edges []graphstore.EdgeRecord, assignments map[string][]Assignment) map[string]*Schema {
	schemas := map[string]*Schema{}
	memberSet := map[string]map[string]bool{} // clusterID -> node IDs

	nodeByID := map[string]graphstore.NodeRecord{}
	for _, n := range nodes {
		nodeByID[n.ID] = n
	}

	for nodeID, assigns := range assignments {
		for _, a := range assigns {
			s, ok := schemas[a.ClusterID]
			if !ok {
				s = &Schema{Level: a.Level, ClusterID: a.ClusterID}
				schemas[a.ClusterID] = s
				memberSet[a.ClusterID] = map[string]bool{}
			}
			memberSet[a.ClusterID][nodeID] = true
		}
	}

	for clusterID, members := range memberSet {
		s := schemas[clusterID]
		chunkSet := map[string]bool{}
		for _, id := range sortedIDs(members) {
			n := nodeByID[id]
			s.Nodes = append(s.Nodes, n)
			for _, cid := range strings.Split(sourceIDProp(n), ",") {
				if cid != "" {
					chunkSet[cid] = true
				}
			}
		}
		s.ChunkIDs = sortedIDs(chunkSet)
		s.OccurrenceCount = len(s.Nodes)

		for _, e := range edges {
			if members[e.Source] && members[e.Target] {
				s.Edges = append(s.Edges, e)
			}
		}
	}

	// Sub-communities: a level+1 cluster is a sub-community of a level
	// cluster when its member set is a subset of the coarser cluster's.
	for _, s := range schemas {
		for _, other := range schemas {
			if other.Level != s.Level+1 {
				continue
			}
			if isSubset(memberSet[other.ClusterID], memberSet[s.ClusterID]) {
				s.SubCommunities = append(s.SubCommunities, other.ClusterID)
			}
		}
		sort.Strings(s.SubCommunities)
	}

	return schemas
}

func isSubset(a, b map[string]bool) bool {
	if len(a) == 0 {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

func sourceIDProp(n graphstore.NodeRecord) string {
	if v, ok := n.Props["source_id"]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
