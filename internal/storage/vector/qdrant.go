package vector

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/qdrant/go-client/qdrant"

	"graphrag/internal/errs"
)

// payloadIDField stores the caller-supplied string ID in the Qdrant payload,
// since Qdrant point IDs must be a UUID or an unsigned integer.
const payloadIDField = "_original_id"

// Qdrant is a Store backed by github.com/qdrant/go-client. Point IDs are
// derived deterministically via xxhash64 of the caller-supplied ID so
// repeated upserts of the same logical point always resolve to the same
// Qdrant point, and the original string ID is recovered from the payload.
//
// Grounded on the teacher's internal/persistence/databases/qdrant_vector.go
// (collection bootstrap, DSN parsing, payload round-tripping), adapted to
// use xxhash64 point IDs per spec instead of uuid.NewSHA1, and extended
// with an optional sparse-vector hybrid search path.
type Qdrant struct {
	client     *qdrant.Client
	collection string
	dimension  int
	metric     string

	sparse *SparseEncoder // nil disables hybrid search
}

// QdrantOption configures Qdrant construction.
type QdrantOption func(*Qdrant)

// WithSparseEncoder enables hybrid dense+sparse search using enc for the
// sparse side.
func WithSparseEncoder(enc *SparseEncoder) QdrantOption {
	return func(q *Qdrant) { q.sparse = enc }
}

// NewQdrant dials Qdrant's gRPC API (default port 6334) and ensures the
// target collection exists with the given dense dimension and metric
// (cosine|l2|euclidean|ip|dot|manhattan).
func NewQdrant(dsn, collection string, dimension int, metric string, opts ...QdrantOption) (*Qdrant, error) {
	if collection == "" {
		return nil, errs.New(errs.ContractViolation, "vector.qdrant", "collection name required")
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, errs.Wrap(errs.ContractViolation, "vector.qdrant", "parse dsn", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	portStr := parsed.Port()
	if portStr == "" {
		portStr = "6334"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, errs.Wrap(errs.ContractViolation, "vector.qdrant", "invalid port", err)
	}
	cfg := &qdrant.Config{Host: host, Port: port}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, errs.Wrap(errs.TransientExternal, "vector.qdrant", "dial", err)
	}
	q := &Qdrant{client: client, collection: collection, dimension: dimension, metric: strings.ToLower(strings.TrimSpace(metric))}
	for _, opt := range opts {
		opt(q)
	}
	if err := q.ensureCollection(context.Background()); err != nil {
		client.Close()
		return nil, err
	}
	return q, nil
}

func (q *Qdrant) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return errs.Wrap(errs.TransientExternal, "vector.qdrant", "check collection", err)
	}
	if exists {
		return nil
	}
	var distance qdrant.Distance
	switch q.metric {
	case "l2", "euclidean":
		distance = qdrant.Distance_Euclid
	case "ip", "dot":
		distance = qdrant.Distance_Dot
	case "manhattan":
		distance = qdrant.Distance_Manhattan
	default:
		distance = qdrant.Distance_Cosine
	}
	if q.dimension <= 0 {
		return errs.New(errs.ContractViolation, "vector.qdrant", "dimension must be > 0")
	}
	vectorsCfg := map[string]*qdrant.VectorParams{
		"dense": {Size: uint64(q.dimension), Distance: distance},
	}
	create := &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig:  qdrant.NewVectorsConfigMap(vectorsCfg),
	}
	if q.sparse != nil {
		create.SparseVectorsConfig = qdrant.NewSparseVectorsConfig(map[string]*qdrant.SparseVectorParams{
			"sparse": {},
		})
	}
	if err := q.client.CreateCollection(ctx, create); err != nil {
		return errs.Wrap(errs.TransientExternal, "vector.qdrant", "create collection", err)
	}
	return nil
}

func pointID(id string) uint64 { return xxhash.Sum64String(id) }

func (q *Qdrant) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	ids := make([]*qdrant.PointId, 0, len(points))
	for _, p := range points {
		ids = append(ids, qdrant.NewIDNum(pointID(p.ID)))
	}
	existingRes, err := q.client.Get(ctx, &qdrant.GetPoints{CollectionName: q.collection, Ids: ids})
	if err != nil {
		return errs.Wrap(errs.TransientExternal, "vector.qdrant", "check existing", err)
	}
	existing := make(map[uint64]bool, len(existingRes))
	for _, r := range existingRes {
		existing[r.Id.GetNum()] = true
	}

	var inserts []*qdrant.PointStruct
	for _, p := range points {
		payloadMap := make(map[string]any, len(p.Payload)+1)
		for k, v := range p.Payload {
			payloadMap[k] = v
		}
		payloadMap[payloadIDField] = p.ID
		qid := pointID(p.ID)

		if existing[qid] {
			// content-immutable after first insert: only the payload is updated.
			_, err := q.client.SetPayload(ctx, &qdrant.SetPayloadPoints{
				CollectionName: q.collection,
				Payload:        qdrant.NewValueMap(payloadMap),
				PointsSelector: qdrant.NewPointsSelector(qdrant.NewIDNum(qid)),
			})
			if err != nil {
				return errs.Wrap(errs.TransientExternal, "vector.qdrant", "update payload", err)
			}
			continue
		}

		vectors := map[string]*qdrant.Vector{"dense": qdrant.NewVectorDense(p.Vector)}
		if q.sparse != nil {
			indices, values := q.sparse.Encode(p.ID, p.Payload["_text"])
			if len(indices) > 0 {
				vectors["sparse"] = qdrant.NewVectorSparse(indices, values)
			}
		}
		inserts = append(inserts, &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(qid),
			Vectors: qdrant.NewVectorsMap(vectors),
			Payload: qdrant.NewValueMap(payloadMap),
		})
	}
	if len(inserts) == 0 {
		return nil
	}
	if _, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{CollectionName: q.collection, Points: inserts}); err != nil {
		return errs.Wrap(errs.TransientExternal, "vector.qdrant", "upsert", err)
	}
	return nil
}

// UpdatePayload merges fields into each point's payload via Qdrant's native
// SetPayload, which merges by key server-side rather than replacing the
// whole payload, and never touches the stored vector.
func (q *Qdrant) UpdatePayload(ctx context.Context, updates map[string]map[string]string) error {
	for id, fields := range updates {
		if len(fields) == 0 {
			continue
		}
		payloadMap := make(map[string]any, len(fields))
		for k, v := range fields {
			payloadMap[k] = v
		}
		_, err := q.client.SetPayload(ctx, &qdrant.SetPayloadPoints{
			CollectionName: q.collection,
			Payload:        qdrant.NewValueMap(payloadMap),
			PointsSelector: qdrant.NewPointsSelector(qdrant.NewIDNum(pointID(id))),
		})
		if err != nil {
			return errs.Wrap(errs.TransientExternal, "vector.qdrant", "update payload", err)
		}
	}
	return nil
}

func (q *Qdrant) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewIDNum(pointID(id)))
	}
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return errs.Wrap(errs.TransientExternal, "vector.qdrant", "delete", err)
	}
	return nil
}

func (q *Qdrant) Search(ctx context.Context, query []float32, k int, filter map[string]string) ([]Match, error) {
	if k <= 0 {
		k = 10
	}
	qf := buildFilter(filter)
	limit := uint64(k)
	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(query),
		Using:          qdrant.PtrOf("dense"),
		Limit:          &limit,
		Filter:         qf,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, errs.Wrap(errs.TransientExternal, "vector.qdrant", "search", err)
	}
	return matchesFromHits(hits), nil
}

// HybridSearch fuses dense and sparse candidate lists with reciprocal rank
// fusion. It falls back to dense-only search when no sparse encoder is
// configured, or when sparse encoding exceeds deadline from ctx.
func (q *Qdrant) HybridSearch(ctx context.Context, query []float32, text string, k int, filter map[string]string) ([]Match, error) {
	if q.sparse == nil {
		return q.Search(ctx, query, k, filter)
	}
	indices, values, err := q.sparse.EncodeQuery(ctx, text)
	if err != nil || len(indices) == 0 {
		return q.Search(ctx, query, k, filter)
	}
	if k <= 0 {
		k = 10
	}
	qf := buildFilter(filter)
	fetch := uint64(k * 2)
	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Filter:         qf,
		WithPayload:    qdrant.NewWithPayload(true),
		Prefetch: []*qdrant.PrefetchQuery{
			{Query: qdrant.NewQueryDense(query), Using: qdrant.PtrOf("dense"), Limit: &fetch},
			{Query: qdrant.NewQuerySparse(indices, values), Using: qdrant.PtrOf("sparse"), Limit: &fetch},
		},
		Query: qdrant.NewQueryRRF(),
		Limit: qdrant.PtrOf(uint64(k)),
	})
	if err != nil {
		return q.Search(ctx, query, k, filter)
	}
	return matchesFromHits(hits), nil
}

func buildFilter(filter map[string]string) *qdrant.Filter {
	if len(filter) == 0 {
		return nil
	}
	must := make([]*qdrant.Condition, 0, len(filter))
	for k, v := range filter {
		must = append(must, qdrant.NewMatch(k, v))
	}
	return &qdrant.Filter{Must: must}
}

func matchesFromHits(hits []*qdrant.ScoredPoint) []Match {
	out := make([]Match, 0, len(hits))
	for _, hit := range hits {
		payload := make(map[string]string)
		var originalID string
		for k, v := range hit.Payload {
			if k == payloadIDField {
				originalID = v.GetStringValue()
				continue
			}
			payload[k] = v.GetStringValue()
		}
		id := originalID
		if id == "" {
			id = fmt.Sprintf("%d", hit.Id.GetNum())
		}
		out = append(out, Match{ID: id, Score: float64(hit.Score), Payload: payload})
	}
	return out
}

func (q *Qdrant) Close() error { return q.client.Close() }
