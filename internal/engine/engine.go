// Package engine is the public façade tying storage, LLM orchestration,
// chunking, extraction, community detection, query, backup, and job
// tracking into the single entry point external callers (CLI, REST layer)
// use, per spec §6's "public façade" dependency-order note.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"graphrag/internal/backup"
	"graphrag/internal/chunk"
	"graphrag/internal/community"
	"graphrag/internal/config"
	"graphrag/internal/errs"
	"graphrag/internal/extract"
	"graphrag/internal/graphmodel"
	"graphrag/internal/ingest/preprocess"
	"graphrag/internal/job"
	"graphrag/internal/llm"
	"graphrag/internal/objectstore"
	"graphrag/internal/query"
	"graphrag/internal/storage"
	"graphrag/internal/storage/vector"
	"graphrag/internal/telemetry"
)

// Engine wires every package into the ingest/query/backup/job operations
// the CLI and any REST layer drive.
type Engine struct {
	cfg       config.Config
	backends  storage.Backends
	provider  llm.Provider
	embedder  llm.Embedder
	chunker   *chunk.Chunker
	pipeline  *extract.Pipeline
	community *community.Engine
	planner   *query.Planner
	jobs      *job.Tracker
	telemetry *telemetry.Sink
}

// New resolves every backend and sub-package from cfg. The caller owns the
// returned Engine's lifetime and must call Close when done.
func New(ctx context.Context, cfg config.Config) (*Engine, error) {
	backends, err := storage.New(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("resolve storage backends: %w", err)
	}

	provider, err := llm.New(ctx, cfg.LLM, backends.KV)
	if err != nil {
		backends.Close()
		return nil, fmt.Errorf("resolve llm provider: %w", err)
	}
	embedder, err := llm.NewEmbedder(ctx, cfg.LLM)
	if err != nil {
		backends.Close()
		return nil, fmt.Errorf("resolve embedder: %w", err)
	}

	chunker, err := chunk.New(cfg.Chunk)
	if err != nil {
		backends.Close()
		return nil, fmt.Errorf("build chunker: %w", err)
	}

	extractor := extract.New(provider, cfg.Extract.EntityTypes, cfg.Extract, 0, 0)
	pipeline := extract.NewPipeline(extractor, backends.Graph, backends.Vector[storage.NamespaceEntities], embedder, cfg.Extract)

	communityEngine := community.NewEngine(backends.Graph, backends.KV, provider, embedder,
		backends.Vector[storage.NamespaceEntities], backends.Vector[storage.NamespaceCommunityReports], cfg.Community)

	planner := query.New(backends.Graph, backends.KV, backends.Vector[storage.NamespaceEntities],
		backends.Vector[storage.NamespaceChunks], backends.Vector[storage.NamespaceCommunityReports],
		provider, embedder, cfg.Query)

	jobs, err := job.New(backends.KV, cfg.Job)
	if err != nil {
		backends.Close()
		return nil, fmt.Errorf("build job tracker: %w", err)
	}

	telemetrySink, err := telemetry.New(ctx, cfg.Telemetry, cfg.Metrics)
	if err != nil {
		backends.Close()
		return nil, fmt.Errorf("build telemetry sink: %w", err)
	}

	return &Engine{
		cfg:       cfg,
		backends:  backends,
		provider:  provider,
		embedder:  embedder,
		chunker:   chunker,
		pipeline:  pipeline,
		community: communityEngine,
		planner:   planner,
		jobs:      jobs,
		telemetry: telemetrySink,
	}, nil
}

// Close releases every backend, the job tracker's Kafka writer, and the
// telemetry sink's ClickHouse connection.
func (e *Engine) Close() error {
	_ = e.telemetry.Close()
	if err := e.jobs.Close(); err != nil {
		return err
	}
	return e.backends.Close()
}

// Ingest chunks, extracts, merges, and commits docs, then runs community
// detection once over the full graph (spec §4.3's "clustering runs once,
// after all documents in the batch have been committed"). It returns
// immediately with a job ID; progress is tracked asynchronously.
func (e *Engine) Ingest(ctx context.Context, docs []graphmodel.Document) (string, error) {
	jobID, jobCtx, err := e.jobs.Start(ctx, "ingest")
	if err != nil {
		return "", err
	}
	go e.runIngest(jobCtx, jobID, docs)
	return jobID, nil
}

func (e *Engine) runIngest(ctx context.Context, jobID string, docs []graphmodel.Document) {
	start := time.Now()
	var outcome error
	defer func() {
		e.telemetry.RecordIngest(context.Background(), jobID, len(docs), time.Since(start), outcome)
	}()

	if err := e.jobs.UpdatePhase(ctx, jobID, fmt.Sprintf("preprocessing %d documents", len(docs))); err != nil {
		log.Warn().Err(err).Str("job_id", jobID).Msg("job phase update failed")
	}

	chunksByDoc := make(map[string][]graphmodel.Chunk, len(docs))
	for i, doc := range docs {
		if ctx.Err() != nil {
			outcome = ctx.Err()
			_ = e.jobs.Fail(ctx, jobID, outcome)
			return
		}

		content, err := preprocess.Document(doc.Content, doc.Metadata["url"], e.cfg.Ingest.HTMLPreprocess)
		if err != nil {
			log.Warn().Err(err).Str("doc_id", doc.ID).Msg("html preprocessing failed, using raw content")
		} else {
			doc.Content = content
			docs[i] = doc
		}

		if err := e.persistDocument(ctx, doc); err != nil {
			outcome = err
			_ = e.jobs.Fail(ctx, jobID, err)
			return
		}

		chunks := e.chunker.Split(doc)
		chunksByDoc[doc.ID] = chunks

		if err := e.persistChunks(ctx, chunks); err != nil {
			outcome = err
			_ = e.jobs.Fail(ctx, jobID, err)
			return
		}
	}

	if err := e.jobs.UpdatePhase(ctx, jobID, "extracting entities and relationships"); err != nil {
		log.Warn().Err(err).Str("job_id", jobID).Msg("job phase update failed")
	}
	results := e.pipeline.IngestBatch(ctx, docs, chunksByDoc)

	var failed []string
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r.DocID)
		}
	}

	if err := e.jobs.UpdatePhase(ctx, jobID, "detecting communities"); err != nil {
		log.Warn().Err(err).Str("job_id", jobID).Msg("job phase update failed")
	}
	if _, err := e.community.Run(ctx, time.Now().UnixNano()); err != nil {
		outcome = err
		_ = e.jobs.Fail(ctx, jobID, err)
		return
	}

	if len(failed) > 0 {
		outcome = fmt.Errorf("%d of %d documents failed extraction", len(failed), len(docs))
		_ = e.jobs.Complete(ctx, jobID, fmt.Sprintf("%d/%d documents ingested, failed: %s", len(docs)-len(failed), len(docs), strings.Join(failed, ",")))
		return
	}
	_ = e.jobs.Complete(ctx, jobID, fmt.Sprintf("%d documents ingested", len(docs)))
}

type fullDocRecord struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (e *Engine) persistDocument(ctx context.Context, doc graphmodel.Document) error {
	raw, err := json.Marshal(fullDocRecord{Content: doc.Content, Metadata: doc.Metadata})
	if err != nil {
		return errs.Wrap(errs.Internal, "engine", "encode document "+doc.ID, err)
	}
	if err := e.backends.KV.Put(ctx, storage.KVNamespaceFullDocs, doc.ID, raw, 0); err != nil {
		return errs.Wrap(errs.ClassOf(err), "engine", "persist document "+doc.ID, err)
	}
	return nil
}

type chunkRecord struct {
	Content string `json:"content"`
	DocID   string `json:"doc_id"`
	Index   int    `json:"index"`
}

// persistChunks writes each chunk's text to KV (so query can retrieve it
// by ID) and embeds+upserts it into the chunk vector namespace (so naive
// mode can find it by similarity).
func (e *Engine) persistChunks(ctx context.Context, chunks []graphmodel.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	items := make(map[string][]byte, len(chunks))
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		raw, err := json.Marshal(chunkRecord{Content: c.Content, DocID: c.DocID, Index: c.Index})
		if err != nil {
			return errs.Wrap(errs.Internal, "engine", "encode chunk "+c.ID, err)
		}
		items[c.ID] = raw
		texts[i] = c.Content
	}
	if err := e.backends.KV.BatchPut(ctx, storage.KVNamespaceTextChunks, items, 0); err != nil {
		return errs.Wrap(errs.ClassOf(err), "engine", "persist chunks", err)
	}

	vectors, err := e.embedder.Embed(ctx, texts)
	if err != nil {
		return errs.Wrap(errs.ClassOf(err), "engine", "embed chunks", err)
	}
	if len(vectors) != len(chunks) {
		return errs.New(errs.Internal, "engine", "chunk embedding count mismatch")
	}

	points := make([]vector.Point, len(chunks))
	for i, c := range chunks {
		points[i] = vector.Point{ID: c.ID, Vector: vectors[i], Payload: map[string]string{"doc_id": c.DocID}}
	}
	return e.backends.Vector[storage.NamespaceChunks].Upsert(ctx, points)
}

// Query dispatches to the local/global/naive query planner.
func (e *Engine) Query(ctx context.Context, req query.Request) (query.Response, error) {
	start := time.Now()
	resp, err := e.planner.Run(ctx, req)
	e.telemetry.RecordQuery(ctx, string(req.Mode), time.Since(start), err)
	return resp, err
}

// Backup stages every file-based storage surface into a .ngbak archive at
// destPath, optionally uploading it to S3 when cfg.Backup.S3 is enabled.
func (e *Engine) Backup(ctx context.Context, destPath string) (backup.Manifest, error) {
	src := e.backupSource()

	var uploader objectstore.ObjectStore
	if e.cfg.Backup.S3.Enabled {
		s3Store, err := objectstore.NewS3Store(ctx, e.cfg.Backup.S3)
		if err != nil {
			return backup.Manifest{}, fmt.Errorf("resolve s3 uploader: %w", err)
		}
		uploader = s3Store
	}

	return backup.Create(ctx, destPath, src, uploader)
}

// Restore extracts a .ngbak archive created by Backup into destDir and
// verifies its checksum. It does not reload the extracted state into the
// running Engine; callers restart against destDir afterward.
func (e *Engine) Restore(ctx context.Context, archivePath, destDir string) (backup.Manifest, error) {
	return backup.Restore(ctx, archivePath, destDir)
}

func (e *Engine) backupSource() backup.Source {
	src := backup.Source{
		Backends: map[string]string{
			"kv":     orDefault(e.cfg.Storage.KV.Backend, "jsonfile"),
			"vector": orDefault(e.cfg.Storage.Vector.Backend, "nano"),
			"graph":  orDefault(e.cfg.Storage.Graph.Backend, "memory"),
		},
	}

	if strings.EqualFold(src.Backends["kv"], "jsonfile") {
		dir := e.cfg.Storage.KV.JSONFile.Dir
		src.KVFiles = map[string]string{
			storage.KVNamespaceFullDocs:         filepath.Join(dir, storage.KVNamespaceFullDocs+".json"),
			storage.KVNamespaceTextChunks:       filepath.Join(dir, storage.KVNamespaceTextChunks+".json"),
			storage.KVNamespaceCommunityReports: filepath.Join(dir, storage.KVNamespaceCommunityReports+".json"),
			storage.KVNamespaceJobs:             filepath.Join(dir, storage.KVNamespaceJobs+".json"),
		}
	}

	if strings.EqualFold(src.Backends["vector"], "nano") && e.cfg.Storage.Vector.Nano.Path != "" {
		base := e.cfg.Storage.Vector.Nano.Path
		src.VectorFiles = map[string]string{
			storage.NamespaceEntities:         namespacedPath(base, storage.NamespaceEntities),
			storage.NamespaceChunks:           namespacedPath(base, storage.NamespaceChunks),
			storage.NamespaceCommunityReports: namespacedPath(base, storage.NamespaceCommunityReports),
		}
	}

	if strings.EqualFold(src.Backends["graph"], "memory") {
		src.GraphFile = e.cfg.Storage.Graph.Memory.Path
	}

	return src
}

// namespacedPath mirrors storage.newVector's unexported per-namespace file
// naming (base path with the namespace inserted before the extension) so
// backup can locate the same files the vector backend actually wrote.
func namespacedPath(base, namespace string) string {
	if base == "" {
		return ""
	}
	idx := strings.LastIndex(base, ".")
	if idx <= 0 {
		return base + "." + namespace
	}
	return base[:idx] + "." + namespace + base[idx:]
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// Jobs exposes the job tracker for status polling.
func (e *Engine) Jobs() *job.Tracker { return e.jobs }
