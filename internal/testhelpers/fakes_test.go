package testhelpers

import (
	"context"
	"testing"

	"graphrag/internal/llm"
)

func TestFakeProviderComplete(t *testing.T) {
	fp := &FakeProvider{Resp: "ok"}
	resp, err := fp.Complete(context.Background(), nil, llm.Params{})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if resp != "ok" {
		t.Fatalf("unexpected content: %q", resp)
	}
}

func TestFakeProviderCompleteStream(t *testing.T) {
	fp := &FakeProvider{StreamDeltas: []string{"a", "b", "c"}}
	var deltas []string
	err := fp.CompleteStream(context.Background(), nil, llm.Params{}, func(c llm.Chunk) error {
		deltas = append(deltas, c.Delta)
		return nil
	})
	if err != nil {
		t.Fatalf("stream err: %v", err)
	}
	if len(deltas) != 3 {
		t.Fatalf("expected 3 deltas, got %d", len(deltas))
	}
}

func TestFakeProviderEmbedDefault(t *testing.T) {
	fp := &FakeProvider{}
	vecs, err := fp.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vecs))
	}
}
