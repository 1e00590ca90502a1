package job

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"graphrag/internal/config"
	"graphrag/internal/graphmodel"
)

// kafkaMirror publishes job phase transitions for external dashboards that
// don't want to poll the KV store. It is never authoritative: a publish
// failure is logged and swallowed, never surfaced to the caller.
type kafkaMirror struct {
	writer *kafka.Writer
}

func newKafkaMirror(cfg config.JobKafkaConfig) (*kafkaMirror, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	writer := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	return &kafkaMirror{writer: writer}, nil
}

func (m *kafkaMirror) publish(ctx context.Context, j graphmodel.Job) {
	if m == nil || m.writer == nil {
		return
	}
	payload, err := json.Marshal(j)
	if err != nil {
		log.Warn().Err(err).Str("job_id", j.ID).Msg("job event encode failed")
		return
	}
	msg := kafka.Message{Key: []byte(j.ID), Value: payload, Time: time.Now()}
	if err := m.writer.WriteMessages(ctx, msg); err != nil {
		log.Warn().Err(err).Str("job_id", j.ID).Msg("job event publish failed")
	}
}

func (m *kafkaMirror) close() error {
	if m == nil || m.writer == nil {
		return nil
	}
	return m.writer.Close()
}
