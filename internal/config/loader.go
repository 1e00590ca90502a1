package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"
)

// Load builds the final Config: defaults, then an optional YAML file at
// path (skipped if path is empty or missing), then a GRAPHRAG_-prefixed
// environment overlay (.env loaded first via godotenv, same as the
// teacher's config.Load()).
func Load(path string) (Config, error) {
	_ = godotenv.Overload()

	cfg := Defaults()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnvOverlay(&cfg)
	return cfg, nil
}

// applyEnvOverlay mirrors the teacher's explicit if-non-empty-then-override
// style rather than reflection-based binding, covering the operationally
// relevant knobs: storage backend selection/credentials, LLM provider keys,
// and logging.
func applyEnvOverlay(cfg *Config) {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
		}
	}
	integer := func(key string, dst *int) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	str("GRAPHRAG_LOG_LEVEL", &cfg.LogLevel)
	str("GRAPHRAG_LOG_PATH", &cfg.LogPath)

	str("GRAPHRAG_KV_BACKEND", &cfg.Storage.KV.Backend)
	str("GRAPHRAG_KV_JSONFILE_DIR", &cfg.Storage.KV.JSONFile.Dir)
	str("GRAPHRAG_REDIS_PASSWORD", &cfg.Storage.KV.Redis.Password)

	str("GRAPHRAG_VECTOR_BACKEND", &cfg.Storage.Vector.Backend)
	str("GRAPHRAG_QDRANT_DSN", &cfg.Storage.Vector.Qdrant.DSN)
	str("GRAPHRAG_QDRANT_COLLECTION", &cfg.Storage.Vector.Qdrant.Collection)
	integer("GRAPHRAG_QDRANT_DIMENSION", &cfg.Storage.Vector.Qdrant.Dimension)
	boolean("GRAPHRAG_QDRANT_HYBRID_SPARSE", &cfg.Storage.Vector.Qdrant.HybridSparse)

	str("GRAPHRAG_GRAPH_BACKEND", &cfg.Storage.Graph.Backend)
	str("GRAPHRAG_NEO4J_URI", &cfg.Storage.Graph.Neo4j.URI)
	str("GRAPHRAG_NEO4J_USERNAME", &cfg.Storage.Graph.Neo4j.Username)
	str("GRAPHRAG_NEO4J_PASSWORD", &cfg.Storage.Graph.Neo4j.Password)

	integer("GRAPHRAG_CHUNK_TOKEN_SIZE", &cfg.Chunk.TokenSize)
	integer("GRAPHRAG_CHUNK_TOKEN_OVERLAP", &cfg.Chunk.TokenOverlap)

	str("GRAPHRAG_LLM_PROVIDER", &cfg.LLM.Provider)
	integer("GRAPHRAG_LLM_MAX_CONCURRENT", &cfg.LLM.MaxConcurrent)
	duration("GRAPHRAG_LLM_REQUEST_TIMEOUT", &cfg.LLM.RequestTimeout)
	duration("GRAPHRAG_LLM_IDLE_TIMEOUT", &cfg.LLM.IdleTimeout)
	str("GRAPHRAG_ANTHROPIC_API_KEY", &cfg.LLM.Anthropic.APIKey)
	str("GRAPHRAG_ANTHROPIC_MODEL", &cfg.LLM.Anthropic.Model)
	str("GRAPHRAG_OPENAI_API_KEY", &cfg.LLM.OpenAI.APIKey)
	str("GRAPHRAG_OPENAI_MODEL", &cfg.LLM.OpenAI.Model)
	str("GRAPHRAG_GEMINI_API_KEY", &cfg.LLM.Gemini.APIKey)
	str("GRAPHRAG_GEMINI_MODEL", &cfg.LLM.Gemini.Model)

	boolean("GRAPHRAG_JOB_KAFKA_ENABLED", &cfg.Job.Kafka.Enabled)
	str("GRAPHRAG_JOB_KAFKA_BROKERS", &cfg.Job.Kafka.Brokers)
	duration("GRAPHRAG_JOB_TTL", &cfg.Job.TTL)

	boolean("GRAPHRAG_TELEMETRY_ENABLED", &cfg.Telemetry.Enabled)
	str("GRAPHRAG_TELEMETRY_DSN", &cfg.Telemetry.DSN)

	str("GRAPHRAG_BACKUP_DIR", &cfg.Backup.Dir)
	boolean("GRAPHRAG_BACKUP_S3_ENABLED", &cfg.Backup.S3.Enabled)
	str("GRAPHRAG_BACKUP_S3_BUCKET", &cfg.Backup.S3.Bucket)
	str("GRAPHRAG_BACKUP_S3_REGION", &cfg.Backup.S3.Region)
}
