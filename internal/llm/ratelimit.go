package llm

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Limiter caps in-flight calls to a provider at max_concurrent, per spec
// §4.6. Embedding providers get their own Limiter instance so LLM and
// embedding traffic never starve each other.
type Limiter struct {
	sem *semaphore.Weighted
}

func NewLimiter(maxConcurrent int) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	return &Limiter{sem: semaphore.NewWeighted(int64(maxConcurrent))}
}

// Acquire blocks until a slot is free or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	return l.sem.Acquire(ctx, 1)
}

func (l *Limiter) Release() {
	l.sem.Release(1)
}
