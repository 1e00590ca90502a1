package vector

import (
	"container/list"
	"context"
	"sync"

	"github.com/cespare/xxhash/v2"

	"graphrag/internal/errs"
)

// SparseModel produces a bag-of-terms weighting for a piece of text, in the
// spirit of SPLADE: a sparse vector over a large vocabulary where most
// weights are zero. Term indices are hashed into a fixed-size space rather
// than requiring a shared vocabulary file.
type SparseModel interface {
	// Name identifies the model for cache keying.
	Name() string
	// Weights returns term -> weight for the non-zero terms of text.
	Weights(text string) map[string]float32
}

// SparseEncoder wraps a SparseModel with an LRU(2) cache (the two most
// recently used models stay loaded). An encoder only ever uses the model
// named at construction; there is no way to select another model at
// runtime.
type SparseEncoder struct {
	dim int

	mu     sync.Mutex
	lru    *list.List // front = most recently used
	models map[string]*list.Element
	loader func(name string) (SparseModel, error)
	active string
}

type modelEntry struct {
	name  string
	model SparseModel
}

const sparseCacheSize = 2

// NewSparseEncoder builds an encoder that lazily loads models by name via
// loader, keeping at most the 2 most recently used resident.
func NewSparseEncoder(dim int, activeModel string, loader func(name string) (SparseModel, error)) *SparseEncoder {
	return &SparseEncoder{
		dim:    dim,
		lru:    list.New(),
		models: make(map[string]*list.Element),
		loader: loader,
		active: activeModel,
	}
}

func (e *SparseEncoder) get(name string) (SparseModel, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if el, ok := e.models[name]; ok {
		e.lru.MoveToFront(el)
		return el.Value.(*modelEntry).model, nil
	}
	model, err := e.loader(name)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "vector.sparse", "load model "+name, err)
	}
	el := e.lru.PushFront(&modelEntry{name: name, model: model})
	e.models[name] = el
	if e.lru.Len() > sparseCacheSize {
		oldest := e.lru.Back()
		e.lru.Remove(oldest)
		delete(e.models, oldest.Value.(*modelEntry).name)
	}
	return model, nil
}

func (e *SparseEncoder) encodeWith(text string) ([]uint32, []float32, error) {
	model, err := e.get(e.active)
	if err != nil {
		return nil, nil, err
	}
	weights := model.Weights(text)
	indices := make([]uint32, 0, len(weights))
	values := make([]float32, 0, len(weights))
	for term, w := range weights {
		if w == 0 {
			continue
		}
		indices = append(indices, uint32(xxhash.Sum64String(term)%uint64(e.dim)))
		values = append(values, w)
	}
	return indices, values, nil
}

// Encode produces sparse indices/values for a document point. id is unused
// by the default model but kept for future per-document caching.
func (e *SparseEncoder) Encode(_ string, text string) ([]uint32, []float32) {
	indices, values, err := e.encodeWith(text)
	if err != nil {
		return nil, nil
	}
	return indices, values
}

// EncodeQuery is like Encode but respects ctx cancellation, since query-time
// encoding sits on the hot path and should fall back to dense-only search
// rather than block past a deadline.
func (e *SparseEncoder) EncodeQuery(ctx context.Context, text string) ([]uint32, []float32, error) {
	if text == "" {
		return nil, nil, nil
	}
	done := make(chan struct{})
	var indices []uint32
	var values []float32
	var encErr error
	go func() {
		indices, values, encErr = e.encodeWith(text)
		close(done)
	}()
	select {
	case <-done:
		return indices, values, encErr
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}
