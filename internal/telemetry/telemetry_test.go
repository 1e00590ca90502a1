package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"graphrag/internal/config"
)

func TestRecordIngestAndQueryWithoutClickHouse(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, config.TelemetryConfig{}, config.MetricsConfig{ServiceName: "graphrag-test"})
	require.NoError(t, err)
	defer s.Close()

	s.RecordIngest(ctx, "job-1", 3, 10*time.Millisecond, nil)
	s.RecordIngest(ctx, "job-2", 1, 5*time.Millisecond, errors.New("boom"))
	s.RecordQuery(ctx, "local", time.Millisecond, nil)
}

func TestNilSinkMethodsAreNoOps(t *testing.T) {
	var s *Sink
	s.RecordIngest(context.Background(), "job-1", 1, time.Millisecond, nil)
	s.RecordQuery(context.Background(), "naive", time.Millisecond, nil)
	require.NoError(t, s.Close())
}
