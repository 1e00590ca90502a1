// Package community implements hierarchical clustering over the committed
// entity graph and bottom-up, token-budgeted community report generation
// (spec §4.4).
//
// Clustering open question: the spec names Leiden by name (nano-graphrag's
// clustering algorithm). The example pack carries gonum (gonum.org/v1/gonum)
// but no Leiden implementation; gonum's graph/community package implements
// Louvain modularity optimization, which nano-graphrag's own Leiden choice
// is itself a refinement of (Leiden was designed to fix Louvain's
// disconnected-community defect while preserving its modularity objective).
// Louvain is used here as the documented stand-in — see DESIGN.md.
package community

import (
	"math/rand"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/community"
	"gonum.org/v1/gonum/graph/simple"

	graphstore "graphrag/internal/storage/graph"
)

// Assignment is one node's membership in one level's cluster.
type Assignment struct {
	Level     int
	ClusterID string
}

// Cluster runs max_levels passes of modularity optimization at increasing
// resolution, so level 0 is coarsest and the last level is finest, per spec
// §4.4 ("clusters field enumerating (level, cluster_id) pairs from coarsest
// (level 0) to finest"). Returns node ID -> list of (level, cluster_id).
func Cluster(nodes []graphstore.NodeRecord, edges []graphstore.EdgeRecord, maxLevels int, baseResolution float64, maxClusterSize int, seed int64) (map[string][]Assignment, error) {
	if maxLevels <= 0 {
		maxLevels = 1
	}
	if baseResolution <= 0 {
		baseResolution = 1.0
	}

	g := simple.NewUndirectedGraph()
	idToNode := map[string]graph.Node{}
	nodeToID := map[int64]string{}
	for i, n := range nodes {
		gn := simple.Node(int64(i))
		g.AddNode(gn)
		idToNode[n.ID] = gn
		nodeToID[gn.ID()] = n.ID
	}
	for _, e := range edges {
		src, ok1 := idToNode[e.Source]
		dst, ok2 := idToNode[e.Target]
		if !ok1 || !ok2 || src.ID() == dst.ID() {
			continue
		}
		if g.HasEdgeBetween(src.ID(), dst.ID()) {
			continue
		}
		g.SetEdge(g.NewEdge(src, dst))
	}

	assignments := make(map[string][]Assignment, len(nodes))
	src := rand.NewSource(seed)

	for level := 0; level < maxLevels; level++ {
		resolution := baseResolution * float64(level+1) * float64(level+1)
		reduced := community.Modularize(g, resolution, src)
		clusters := reduced.Communities()

		for clusterIdx, members := range clusters {
			if len(members) == 0 {
				continue
			}
			clusterID := clusterKey(level, clusterIdx)
			for _, m := range members {
				if len(members) > maxClusterSizeOrDefault(maxClusterSize) {
					// Oversized clusters still get an assignment; splitting
					// further is deferred to the next (finer) level's
					// higher resolution rather than forced here.
					_ = m
				}
				id := nodeToID[m.ID()]
				assignments[id] = append(assignments[id], Assignment{Level: level, ClusterID: clusterID})
			}
		}
	}
	return assignments, nil
}

func maxClusterSizeOrDefault(n int) int {
	if n <= 0 {
		return 10
	}
	return n
}

func clusterKey(level, idx int) string {
	return "L" + strconv.Itoa(level) + "-C" + strconv.Itoa(idx)
}

// sortedIDs is a small helper used by callers needing deterministic
// iteration over a node-ID set.
func sortedIDs(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
