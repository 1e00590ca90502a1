package graph

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"graphrag/internal/errs"
)

// Neo4j is a GraphDB backed by github.com/neo4j/neo4j-go-driver/v5. Batch
// writes use idempotent UNWIND ... MERGE statements so replaying a document
// (e.g. after a retry) never duplicates nodes or edges. Document-level
// ingestion is serialized (SerializeWrites reports true) to avoid MERGE
// deadlocks under concurrent writers to overlapping entities, per the
// documented Open Question decision.
type Neo4j struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewNeo4j dials the given bolt/neo4j URI.
func NewNeo4j(uri, username, password, database string) (*Neo4j, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, errs.Wrap(errs.TransientExternal, "graph.neo4j", "create driver", err)
	}
	if database == "" {
		database = "neo4j"
	}
	return &Neo4j{driver: driver, database: database}, nil
}

func (g *Neo4j) session(ctx context.Context) neo4j.SessionWithContext {
	return g.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: g.database})
}

type neo4jTxn struct {
	g     *Neo4j
	nodes []NodeRecord
	edges []EdgeRecord
}

func (t *neo4jTxn) UpsertNode(id string, labels []string, props map[string]any) error {
	t.nodes = append(t.nodes, NodeRecord{ID: id, Labels: labels, Props: props})
	return nil
}

func (t *neo4jTxn) UpsertEdge(source, target, relationType string, props map[string]any) error {
	t.edges = append(t.edges, EdgeRecord{Source: source, Target: target, RelationType: relationType, Props: props})
	return nil
}

// Commit applies every staged node/edge in a single write transaction via
// UNWIND ... MERGE, so the whole document either lands or none of it does.
func (t *neo4jTxn) Commit(ctx context.Context) error {
	session := t.g.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if len(t.nodes) > 0 {
			nodeRows := make([]map[string]any, 0, len(t.nodes))
			for _, n := range t.nodes {
				nodeRows = append(nodeRows, map[string]any{"id": n.ID, "props": n.Props})
			}
			_, err := tx.Run(ctx, `
				UNWIND $rows AS row
				MERGE (n:Entity {id: row.id})
				SET n += row.props`, map[string]any{"rows": nodeRows})
			if err != nil {
				return nil, err
			}
		}
		if len(t.edges) > 0 {
			edgeRows := make([]map[string]any, 0, len(t.edges))
			for _, e := range t.edges {
				edgeRows = append(edgeRows, map[string]any{
					"src": e.Source, "dst": e.Target, "rel": e.RelationType, "props": e.Props,
				})
			}
			_, err := tx.Run(ctx, `
				UNWIND $rows AS row
				MATCH (s:Entity {id: row.src})
				MATCH (d:Entity {id: row.dst})
				MERGE (s)-[r:RELATES {relation_type: row.rel}]->(d)
				SET r += row.props`, map[string]any{"rows": edgeRows})
			if err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return errs.Wrap(errs.TransientExternal, "graph.neo4j", "commit", err)
	}
	return nil
}

func (t *neo4jTxn) Rollback(context.Context) error {
	t.nodes = nil
	t.edges = nil
	return nil
}

func (g *Neo4j) BeginDocument(context.Context) (Txn, error) {
	return &neo4jTxn{g: g}, nil
}

func (g *Neo4j) Node(ctx context.Context, id string) (NodeRecord, bool, error) {
	session := g.session(ctx)
	defer session.Close(ctx)
	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (n:Entity {id: $id}) RETURN n`, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		if !res.Next(ctx) {
			return nil, nil
		}
		node, _ := res.Record().Get("n")
		return node, res.Err()
	})
	if err != nil {
		return NodeRecord{}, false, errs.Wrap(errs.TransientExternal, "graph.neo4j", "node", err)
	}
	if result == nil {
		return NodeRecord{}, false, nil
	}
	n := result.(neo4j.Node)
	return NodeRecord{ID: id, Labels: n.Labels, Props: n.Props}, true, nil
}

func (g *Neo4j) Neighbors(ctx context.Context, id, relationType string) ([]string, error) {
	session := g.session(ctx)
	defer session.Close(ctx)
	query := `MATCH (n:Entity {id: $id})-[r:RELATES]->(m:Entity) WHERE $rel = "" OR r.relation_type = $rel RETURN m.id AS id`
	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{"id": id, "rel": relationType})
		if err != nil {
			return nil, err
		}
		var ids []string
		for res.Next(ctx) {
			v, _ := res.Record().Get("id")
			ids = append(ids, v.(string))
		}
		return ids, res.Err()
	})
	if err != nil {
		return nil, errs.Wrap(errs.TransientExternal, "graph.neo4j", "neighbors", err)
	}
	return result.([]string), nil
}

func (g *Neo4j) NodeEdges(ctx context.Context, id string) ([]EdgeRecord, error) {
	session := g.session(ctx)
	defer session.Close(ctx)
	query := `MATCH (n:Entity {id: $id})-[r:RELATES]-(m:Entity)
		RETURN startNode(r).id AS src, endNode(r).id AS dst, r.relation_type AS rel, r AS r`
	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		var out []EdgeRecord
		for res.Next(ctx) {
			rec := res.Record()
			src, _ := rec.Get("src")
			dst, _ := rec.Get("dst")
			rel, _ := rec.Get("rel")
			rVal, _ := rec.Get("r")
			props := map[string]any{}
			if r, ok := rVal.(neo4j.Relationship); ok {
				props = r.Props
			}
			relType, _ := rel.(string)
			out = append(out, EdgeRecord{Source: src.(string), Target: dst.(string), RelationType: relType, Props: props})
		}
		return out, res.Err()
	})
	if err != nil {
		return nil, errs.Wrap(errs.TransientExternal, "graph.neo4j", "node edges", err)
	}
	return result.([]EdgeRecord), nil
}

func (g *Neo4j) AllNodes(ctx context.Context) ([]NodeRecord, error) {
	session := g.session(ctx)
	defer session.Close(ctx)
	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (n:Entity) RETURN n.id AS id, n`, nil)
		if err != nil {
			return nil, err
		}
		var out []NodeRecord
		for res.Next(ctx) {
			rec := res.Record()
			idVal, _ := rec.Get("id")
			nVal, _ := rec.Get("n")
			n := nVal.(neo4j.Node)
			out = append(out, NodeRecord{ID: idVal.(string), Labels: n.Labels, Props: n.Props})
		}
		return out, res.Err()
	})
	if err != nil {
		return nil, errs.Wrap(errs.TransientExternal, "graph.neo4j", "all nodes", err)
	}
	return result.([]NodeRecord), nil
}

func (g *Neo4j) AllEdges(ctx context.Context) ([]EdgeRecord, error) {
	session := g.session(ctx)
	defer session.Close(ctx)
	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (s:Entity)-[r:RELATES]->(d:Entity) RETURN s.id AS src, d.id AS dst, r.relation_type AS rel, r AS r`, nil)
		if err != nil {
			return nil, err
		}
		var out []EdgeRecord
		for res.Next(ctx) {
			rec := res.Record()
			src, _ := rec.Get("src")
			dst, _ := rec.Get("dst")
			rel, _ := rec.Get("rel")
			rVal, _ := rec.Get("r")
			props := map[string]any{}
			if r, ok := rVal.(neo4j.Relationship); ok {
				props = r.Props
			}
			relType, _ := rel.(string)
			out = append(out, EdgeRecord{Source: src.(string), Target: dst.(string), RelationType: relType, Props: props})
		}
		return out, res.Err()
	})
	if err != nil {
		return nil, errs.Wrap(errs.TransientExternal, "graph.neo4j", "all edges", err)
	}
	return result.([]EdgeRecord), nil
}

// SetClusters mutates the node's clusters property. No Neo4j GDS procedure
// is run: internal/community computes the assignment in process (gonum
// Louvain over AllNodes/AllEdges) and calls this to persist it.
func (g *Neo4j) SetClusters(ctx context.Context, id string, clusters []ClusterRef) error {
	session := g.session(ctx)
	defer session.Close(ctx)
	rows := make([]map[string]any, 0, len(clusters))
	for _, c := range clusters {
		rows = append(rows, map[string]any{"level": c.Level, "cluster_id": c.ClusterID})
	}
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, `MATCH (n:Entity {id: $id}) SET n.clusters = $clusters`, map[string]any{"id": id, "clusters": rows})
	})
	if err != nil {
		return errs.Wrap(errs.TransientExternal, "graph.neo4j", "set clusters", err)
	}
	return nil
}

func (g *Neo4j) SerializeWrites() bool { return true }

func (g *Neo4j) Close() error { return g.driver.Close(context.Background()) }
