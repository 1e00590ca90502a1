// Package config loads the engine's configuration from a YAML file, then
// overlays GRAPHRAG_-prefixed environment variables on top. Precedence is
// explicit programmatic override (set directly on the returned Config by a
// caller) > environment > YAML default, matching the teacher's layered
// config.Load()/loader.go approach.
package config

import "time"

// Config is the root configuration object.
type Config struct {
	LogLevel string `yaml:"log_level"`
	LogPath  string `yaml:"log_path"`

	Storage   StorageConfig   `yaml:"storage"`
	Chunk     ChunkConfig     `yaml:"chunk"`
	Extract   ExtractConfig   `yaml:"extract"`
	Community CommunityConfig `yaml:"community"`
	Query     QueryConfig     `yaml:"query"`
	LLM       LLMConfig       `yaml:"llm"`
	Job       JobConfig       `yaml:"job"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Backup    BackupConfig    `yaml:"backup"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// StorageConfig selects and configures the three storage contracts.
type StorageConfig struct {
	KV     KVConfig     `yaml:"kv"`
	Vector VectorConfig `yaml:"vector"`
	Graph  GraphConfig  `yaml:"graph"`
}

type KVConfig struct {
	Backend  string         `yaml:"backend"` // jsonfile|redis
	JSONFile JSONFileConfig `yaml:"jsonfile"`
	Redis    RedisConfig    `yaml:"redis"`
}

type JSONFileConfig struct {
	Dir string `yaml:"dir"`
}

type RedisConfig struct {
	Addrs                 []string `yaml:"addrs"`
	Username              string   `yaml:"username"`
	Password              string   `yaml:"password"`
	DB                    int      `yaml:"db"`
	TLSInsecureSkipVerify bool     `yaml:"tls_insecure_skip_verify"`
}

type VectorConfig struct {
	Backend string       `yaml:"backend"` // nano|hnsw|qdrant
	Nano    NanoConfig   `yaml:"nano"`
	HNSW    HNSWConfig   `yaml:"hnsw"`
	Qdrant  QdrantConfig `yaml:"qdrant"`
}

type NanoConfig struct {
	Path string `yaml:"path"`
}

type HNSWConfig struct {
	Path string `yaml:"path"`
}

type QdrantConfig struct {
	DSN          string `yaml:"dsn"`
	Collection   string `yaml:"collection"`
	Dimension    int    `yaml:"dimension"`
	Metric       string `yaml:"metric"`
	HybridSparse bool   `yaml:"hybrid_sparse"`
	SparseDim    int    `yaml:"sparse_dim"`
}

type GraphConfig struct {
	Backend string       `yaml:"backend"` // memory|networkx|neo4j
	Memory  MemGraphConf `yaml:"memory"`
	Neo4j   Neo4jConfig  `yaml:"neo4j"`
}

type MemGraphConf struct {
	Path string `yaml:"path"`
}

type Neo4jConfig struct {
	URI      string `yaml:"uri"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// ChunkConfig configures document chunking (spec §4.2).
type ChunkConfig struct {
	TokenSize    int    `yaml:"token_size"`
	TokenOverlap int    `yaml:"token_overlap"`
	BySeparators bool   `yaml:"by_separators"`
	Strategy     string `yaml:"strategy"` // markdown|code; any other value (e.g. "fixed") selects the recursive splitter. Used only when BySeparators is true
}

// ExtractConfig configures entity/relationship extraction (spec §4.3).
type ExtractConfig struct {
	MaxGleanings     int               `yaml:"max_gleanings"`
	MaxContinuations int               `yaml:"max_continuations"`
	Concurrency      int               `yaml:"concurrency"`
	EntityTypes      []string          `yaml:"entity_types"`
	RelationPatterns []RelationPattern `yaml:"relation_patterns"`
}

// RelationPattern is one (substring, relation_type) entry. A slice (not a
// map) because pattern matching is declared-order-sensitive (spec §4.3).
type RelationPattern struct {
	Match string `yaml:"match"`
	Label string `yaml:"label"`
}

// CommunityConfig configures hierarchical clustering and report generation
// (spec §4.4).
type CommunityConfig struct {
	MaxLevels         int     `yaml:"max_levels"`
	MinCommunitySize  int     `yaml:"min_community_size"`
	ReportTokenBudget int     `yaml:"report_token_budget"`
	Resolution        float64 `yaml:"resolution"`
}

// QueryConfig configures the local/global/naive query planners (spec §4.5).
type QueryConfig struct {
	LocalTokenBudget  int `yaml:"local_token_budget"`
	GlobalTokenBudget int `yaml:"global_token_budget"`
	NaiveTokenBudget  int `yaml:"naive_token_budget"`
	MaxHops           int `yaml:"max_hops"`
	TopKEntities      int `yaml:"top_k_entities"`
	TopKCommunities   int `yaml:"top_k_communities"`
	TopKChunks        int `yaml:"top_k_chunks"`
}

// LLMConfig configures the provider orchestration layer (spec §4.6).
type LLMConfig struct {
	Provider       string          `yaml:"provider"` // anthropic|openai|gemini
	MaxConcurrent  int             `yaml:"max_concurrent"`
	RequestTimeout time.Duration   `yaml:"request_timeout"`
	IdleTimeout    time.Duration   `yaml:"idle_timeout"`
	MaxRetries     int             `yaml:"max_retries"`
	ResponseCache  bool            `yaml:"response_cache"`
	Anthropic      AnthropicConfig `yaml:"anthropic"`
	OpenAI         OpenAIConfig    `yaml:"openai"`
	Gemini         GeminiConfig    `yaml:"gemini"`
	Embedding      EmbeddingConfig `yaml:"embedding"`
}

type AnthropicConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
}

// JobConfig configures async job tracking (spec §6).
type JobConfig struct {
	TTL   time.Duration  `yaml:"ttl"`
	Kafka JobKafkaConfig `yaml:"kafka"`
}

type JobKafkaConfig struct {
	Enabled bool   `yaml:"enabled"`
	Brokers string `yaml:"brokers"`
	Topic   string `yaml:"topic"`
}

// TelemetryConfig configures the optional ClickHouse analytics sink.
type TelemetryConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

// BackupConfig configures the .ngbak bundle and optional S3 upload.
type BackupConfig struct {
	Dir string   `yaml:"dir"`
	S3  S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled               bool       `yaml:"enabled"`
	Bucket                string     `yaml:"bucket"`
	Region                string     `yaml:"region"`
	Endpoint              string     `yaml:"endpoint"`
	Prefix                string     `yaml:"prefix"`
	AccessKey             string     `yaml:"access_key"`
	SecretKey             string     `yaml:"secret_key"`
	UsePathStyle          bool       `yaml:"use_path_style"`
	TLSInsecureSkipVerify bool       `yaml:"tls_insecure_skip_verify"`
	SSE                   S3SSEConfig `yaml:"sse"`
}

// S3SSEConfig configures server-side encryption for uploaded backup archives.
type S3SSEConfig struct {
	Mode     string `yaml:"mode"` // "", sse-s3, sse-kms
	KMSKeyID string `yaml:"kms_key_id"`
}

// IngestConfig configures document preprocessing before chunking.
type IngestConfig struct {
	HTMLPreprocess bool `yaml:"html_preprocess"`
}

// MetricsConfig configures OpenTelemetry metrics.
type MetricsConfig struct {
	ServiceName string `yaml:"service_name"`
}

// Defaults returns a Config with the engine's documented defaults applied,
// meant to be loaded first and then overwritten by YAML/env.
func Defaults() Config {
	return Config{
		LogLevel: "info",
		Storage: StorageConfig{
			KV:     KVConfig{Backend: "jsonfile", JSONFile: JSONFileConfig{Dir: "./data/kv"}},
			Vector: VectorConfig{Backend: "nano", Nano: NanoConfig{Path: "./data/vectors.gob"}},
			Graph:  GraphConfig{Backend: "memory", Memory: MemGraphConf{Path: "./data/graph.gob"}},
		},
		Chunk: ChunkConfig{TokenSize: 1200, TokenOverlap: 100, Strategy: "fixed"},
		Extract: ExtractConfig{
			MaxGleanings:     1,
			MaxContinuations: 3,
			Concurrency:      8,
			EntityTypes:      []string{"PERSON", "ORGANIZATION", "LOCATION", "EVENT"},
			RelationPatterns: []RelationPattern{
				{Match: "supersedes", Label: "SUPERSEDES"},
				{Match: "parent of", Label: "PARENT_OF"},
			},
		},
		Community: CommunityConfig{MaxLevels: 4, MinCommunitySize: 2, ReportTokenBudget: 12000, Resolution: 1.0},
		Query: QueryConfig{
			LocalTokenBudget: 8000, GlobalTokenBudget: 16000, NaiveTokenBudget: 4000,
			MaxHops: 2, TopKEntities: 10, TopKCommunities: 10, TopKChunks: 10,
		},
		LLM: LLMConfig{
			Provider:       "anthropic",
			MaxConcurrent:  4,
			RequestTimeout: 120 * time.Second,
			IdleTimeout:    30 * time.Second,
			MaxRetries:     3,
			ResponseCache:  true,
			Embedding:      EmbeddingConfig{Dimension: 1536},
		},
		Job:       JobConfig{TTL: 7 * 24 * time.Hour},
		Backup:    BackupConfig{Dir: "./data/backups"},
		Metrics:   MetricsConfig{ServiceName: "graphrag"},
	}
}
