// Package telemetry records ingest and query events as OpenTelemetry
// metrics and, when configured, mirrors each event as a row in ClickHouse
// for ad hoc analytics. Both sinks are optional; a disabled Sink is a
// no-op, grounded on the teacher's internal/rag/obs.OtelMetrics (same
// meter/instrument-cache shape) and internal/agentd's ClickHouse sinks
// (same clickhouse-go v2 connection handling).
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"graphrag/internal/config"
)

// Sink records engine operations. A nil *Sink is usable and records
// nothing; a zero Sink{} has no meter and is not usable. Use New to wire
// the configured backends.
type Sink struct {
	meter      metric.Meter
	reader     *sdkmetric.ManualReader
	counters   map[string]metric.Int64Counter
	histograms map[string]metric.Float64Histogram
	mu         sync.RWMutex

	ch        clickhouse.Conn
	chTable   string
	stopLog   chan struct{}
	logTicker *time.Ticker
}

// New builds a Sink from cfg. OTel metrics are always collected in-process
// (no exporter is configured, so nothing leaves the process); periodic
// aggregates are logged. ClickHouse mirroring activates only when
// telemetryCfg.Enabled is true and a DSN is set.
func New(ctx context.Context, telemetryCfg config.TelemetryConfig, metricsCfg config.MetricsConfig) (*Sink, error) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	serviceName := metricsCfg.ServiceName
	if serviceName == "" {
		serviceName = "graphrag"
	}

	s := &Sink{
		meter:      provider.Meter(serviceName),
		reader:     reader,
		counters:   make(map[string]metric.Int64Counter),
		histograms: make(map[string]metric.Float64Histogram),
	}

	if telemetryCfg.Enabled && telemetryCfg.DSN != "" {
		opts, err := clickhouse.ParseDSN(telemetryCfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
		}
		conn, err := clickhouse.Open(opts)
		if err != nil {
			return nil, fmt.Errorf("open clickhouse connection: %w", err)
		}
		if err := conn.Exec(ctx, telemetrySchema); err != nil {
			return nil, fmt.Errorf("create telemetry table: %w", err)
		}
		s.ch = conn
		s.chTable = "graphrag_telemetry_events"
	}

	s.logTicker = time.NewTicker(time.Minute)
	s.stopLog = make(chan struct{})
	go s.logAggregates()

	return s, nil
}

const telemetrySchema = `
CREATE TABLE IF NOT EXISTS graphrag_telemetry_events (
	event_time DateTime DEFAULT now(),
	event_type String,
	job_id String,
	duration_ms Int64,
	count Int64,
	error String
) ENGINE = MergeTree() ORDER BY event_time`

// RecordIngest reports the outcome of one Ingest run.
func (s *Sink) RecordIngest(ctx context.Context, jobID string, docCount int, dur time.Duration, err error) {
	if s == nil {
		return
	}
	s.incCounter(ctx, "graphrag.ingest.documents", int64(docCount))
	s.observeHistogram(ctx, "graphrag.ingest.duration_ms", float64(dur.Milliseconds()))
	if err != nil {
		s.incCounter(ctx, "graphrag.ingest.errors", 1)
	}
	s.mirror(ctx, "ingest", jobID, dur, int64(docCount), err)
}

// RecordQuery reports the outcome of one Query call.
func (s *Sink) RecordQuery(ctx context.Context, mode string, dur time.Duration, err error) {
	if s == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("mode", mode))
	s.incCounterAttrs(ctx, "graphrag.query.count", 1, attrs)
	s.observeHistogramAttrs(ctx, "graphrag.query.duration_ms", float64(dur.Milliseconds()), attrs)
	if err != nil {
		s.incCounterAttrs(ctx, "graphrag.query.errors", 1, attrs)
	}
	s.mirror(ctx, "query:"+mode, "", dur, 1, err)
}

func (s *Sink) mirror(ctx context.Context, eventType, jobID string, dur time.Duration, count int64, err error) {
	if s.ch == nil {
		return
	}
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	insertCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if insErr := s.ch.Exec(insertCtx,
		fmt.Sprintf("INSERT INTO %s (event_type, job_id, duration_ms, count, error) VALUES (?, ?, ?, ?, ?)", s.chTable),
		eventType, jobID, dur.Milliseconds(), count, errMsg,
	); insErr != nil {
		log.Warn().Err(insErr).Str("event_type", eventType).Msg("telemetry clickhouse insert failed")
	}
}

func (s *Sink) incCounter(ctx context.Context, name string, delta int64) {
	s.incCounterAttrs(ctx, name, delta, metric.WithAttributes())
}

func (s *Sink) incCounterAttrs(ctx context.Context, name string, delta int64, attrs metric.AddOption) {
	c, ok := s.getCounter(name)
	if !ok {
		return
	}
	c.Add(ctx, delta, attrs)
}

func (s *Sink) observeHistogram(ctx context.Context, name string, value float64) {
	s.observeHistogramAttrs(ctx, name, value, metric.WithAttributes())
}

func (s *Sink) observeHistogramAttrs(ctx context.Context, name string, value float64, attrs metric.RecordOption) {
	h, ok := s.getHistogram(name)
	if !ok {
		return
	}
	h.Record(ctx, value, attrs)
}

func (s *Sink) getCounter(name string) (metric.Int64Counter, bool) {
	s.mu.RLock()
	c, ok := s.counters[name]
	s.mu.RUnlock()
	if ok {
		return c, true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok = s.counters[name]; ok {
		return c, true
	}
	ctr, err := s.meter.Int64Counter(name)
	if err != nil {
		log.Warn().Err(err).Str("name", name).Msg("telemetry: create counter failed")
		return ctr, false
	}
	s.counters[name] = ctr
	return ctr, true
}

func (s *Sink) getHistogram(name string) (metric.Float64Histogram, bool) {
	s.mu.RLock()
	h, ok := s.histograms[name]
	s.mu.RUnlock()
	if ok {
		return h, true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok = s.histograms[name]; ok {
		return h, true
	}
	hist, err := s.meter.Float64Histogram(name)
	if err != nil {
		log.Warn().Err(err).Str("name", name).Msg("telemetry: create histogram failed")
		return hist, false
	}
	s.histograms[name] = hist
	return hist, true
}

// logAggregates periodically collects the in-process metric snapshot and
// logs a summary; there is no configured exporter, so this is the only way
// the collected data becomes visible.
func (s *Sink) logAggregates() {
	for {
		select {
		case <-s.logTicker.C:
			var rm metricdata.ResourceMetrics
			if err := s.reader.Collect(context.Background(), &rm); err != nil {
				log.Warn().Err(err).Msg("telemetry: collect metrics failed")
				continue
			}
			log.Info().Int("scope_count", len(rm.ScopeMetrics)).Msg("telemetry aggregates collected")
		case <-s.stopLog:
			return
		}
	}
}

// Close stops the background aggregation loop and the ClickHouse
// connection, if any.
func (s *Sink) Close() error {
	if s == nil {
		return nil
	}
	if s.logTicker != nil {
		s.logTicker.Stop()
	}
	if s.stopLog != nil {
		close(s.stopLog)
	}
	if s.ch != nil {
		return s.ch.Close()
	}
	return nil
}
