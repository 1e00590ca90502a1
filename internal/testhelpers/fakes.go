// Package testhelpers provides small fakes shared across package tests,
// adapted from the teacher's internal/testhelpers (same FakeProvider/
// NewTestServer shape, rewired to this engine's llm.Provider contract).
package testhelpers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"

	"graphrag/internal/llm"
)

// FakeProvider is a fixed-response llm.Provider for tests that don't care
// about prompt contents, only about wiring.
type FakeProvider struct {
	Resp         string
	Err          error
	StreamDeltas []string
	Vectors      [][]float32
}

func (f *FakeProvider) Complete(context.Context, []llm.Message, llm.Params) (string, error) {
	if f.Err != nil {
		return "", f.Err
	}
	return f.Resp, nil
}

func (f *FakeProvider) CompleteStream(_ context.Context, _ []llm.Message, _ llm.Params, onChunk func(llm.Chunk) error) error {
	if f.Err != nil {
		return f.Err
	}
	for i, d := range f.StreamDeltas {
		if err := onChunk(llm.Chunk{Delta: d, Done: i == len(f.StreamDeltas)-1}); err != nil {
			return err
		}
	}
	return nil
}

func (f *FakeProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	if f.Vectors != nil {
		return f.Vectors, nil
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

// NewTestServer returns an httptest.Server for the given handler func.
func NewTestServer(handler func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(handler))
}

// WaitGroupDoneOnce returns a function that calls wg.Done() only once,
// useful for tests where multiple goroutines race to signal completion.
func WaitGroupDoneOnce(wg *sync.WaitGroup) func() {
	once := sync.Once{}
	return func() { once.Do(wg.Done) }
}
