// Package job tracks long-running async operations (ingestion, community
// rebuild, backup/restore) in KV so callers can poll status instead of
// blocking on the call, per spec §6's job tracking surface.
package job

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"graphrag/internal/config"
	"graphrag/internal/errs"
	"graphrag/internal/graphmodel"
	"graphrag/internal/storage"
	"graphrag/internal/storage/kv"
)

// Tracker persists job records in the "jobs" KV namespace with a
// configurable TTL and mirrors phase transitions to Kafka on a best-effort
// basis. The KV record is always authoritative; Kafka is a notification
// mirror for dashboards that don't want to poll.
type Tracker struct {
	kv   kv.Store
	ttl  time.Duration
	mir  *kafkaMirror
	cmu  sync.Mutex
	cncl map[string]context.CancelFunc
}

// New builds a Tracker. mir may be nil when Kafka mirroring is disabled.
func New(kvStore kv.Store, cfg config.JobConfig) (*Tracker, error) {
	mir, err := newKafkaMirror(cfg.Kafka)
	if err != nil {
		return nil, err
	}
	return &Tracker{
		kv:   kvStore,
		ttl:  cfg.TTL,
		mir:  mir,
		cncl: make(map[string]context.CancelFunc),
	}, nil
}

// Start creates a new job record in the "pending"-equivalent queued state
// and returns its ID plus a context that is canceled when Cancel(id) is
// called, letting long-running phases check ctx.Err() at phase boundaries.
func (t *Tracker) Start(ctx context.Context, kind string) (string, context.Context, error) {
	id := uuid.NewString()
	now := time.Now()
	j := graphmodel.Job{
		ID:        id,
		Kind:      kind,
		Status:    graphmodel.JobQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := t.put(ctx, j); err != nil {
		return "", nil, err
	}
	t.mir.publish(ctx, j)

	jobCtx, cancel := context.WithCancel(ctx)
	t.cmu.Lock()
	t.cncl[id] = cancel
	t.cmu.Unlock()
	return id, jobCtx, nil
}

// Cancel flags the job's context as canceled. Long-running phases check
// ctx.Err() at phase boundaries and abort cleanly; any already-committed
// document batch remains committed.
func (t *Tracker) Cancel(id string) {
	t.cmu.Lock()
	cancel, ok := t.cncl[id]
	t.cmu.Unlock()
	if ok {
		cancel()
	}
}

// UpdatePhase sets the job to running with the given free-text progress
// phase (e.g. "chunking 3/10", "extracting entities").
func (t *Tracker) UpdatePhase(ctx context.Context, id, phase string) error {
	j, ok, err := t.Get(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return errs.New(errs.ContractViolation, "job", "update phase on unknown job "+id)
	}
	j.Status = graphmodel.JobRunning
	j.Phase = phase
	j.UpdatedAt = time.Now()
	if err := t.put(ctx, j); err != nil {
		return err
	}
	t.mir.publish(ctx, j)
	return nil
}

// Complete marks the job succeeded with an optional free-text result.
func (t *Tracker) Complete(ctx context.Context, id, result string) error {
	return t.finish(ctx, id, graphmodel.JobSucceeded, result, "")
}

// Fail marks the job failed with the triggering error's message.
func (t *Tracker) Fail(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return t.finish(ctx, id, graphmodel.JobFailed, "", msg)
}

func (t *Tracker) finish(ctx context.Context, id string, status graphmodel.JobStatus, result, errMsg string) error {
	j, ok, err := t.Get(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return errs.New(errs.ContractViolation, "job", "finish unknown job "+id)
	}
	j.Status = status
	j.Result = result
	j.Error = errMsg
	j.UpdatedAt = time.Now()
	if err := t.put(ctx, j); err != nil {
		return err
	}
	t.mir.publish(ctx, j)

	t.cmu.Lock()
	delete(t.cncl, id)
	t.cmu.Unlock()
	return nil
}

// Get returns the job record, or ok=false if it does not exist or has
// expired past its TTL.
func (t *Tracker) Get(ctx context.Context, id string) (graphmodel.Job, bool, error) {
	raw, ok, err := t.kv.Get(ctx, storage.KVNamespaceJobs, id)
	if err != nil {
		return graphmodel.Job{}, false, errs.Wrap(errs.TransientExternal, "job", "get "+id, err)
	}
	if !ok {
		return graphmodel.Job{}, false, nil
	}
	var j graphmodel.Job
	if err := json.Unmarshal(raw, &j); err != nil {
		return graphmodel.Job{}, false, errs.Wrap(errs.DataIntegrity, "job", "decode "+id, err)
	}
	return j, true, nil
}

// List returns jobs in creation order, newest first, using the KV store's
// cursor-based Scan rather than a blocking KEYS-equivalent. limit bounds
// how many keys are scanned per namespace pass.
func (t *Tracker) List(ctx context.Context, limit int) ([]graphmodel.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	ids, err := t.kv.Scan(ctx, storage.KVNamespaceJobs, "", limit)
	if err != nil {
		return nil, errs.Wrap(errs.TransientExternal, "job", "scan", err)
	}
	jobs := make([]graphmodel.Job, 0, len(ids))
	for _, id := range ids {
		j, ok, err := t.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			jobs = append(jobs, j)
		}
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].CreatedAt.After(jobs[k].CreatedAt) })
	return jobs, nil
}

func (t *Tracker) put(ctx context.Context, j graphmodel.Job) error {
	raw, err := json.Marshal(j)
	if err != nil {
		return errs.Wrap(errs.Internal, "job", "encode "+j.ID, err)
	}
	if err := t.kv.Put(ctx, storage.KVNamespaceJobs, j.ID, raw, t.ttl); err != nil {
		return errs.Wrap(errs.TransientExternal, "job", "put "+j.ID, err)
	}
	return nil
}

// Close releases the Kafka writer, if any.
func (t *Tracker) Close() error {
	return t.mir.close()
}
