package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

type Neo4jConfig struct {
	URI      string `toml:"uri"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
}

type EmbedderConfig struct {
	Provider   string `toml:"provider"` // "openai" | "gemini" | "" (disabled)
	Model      string `toml:"model"`
	APIKey     string `toml:"api_key"`
	BaseURL    string `toml:"base_url"`
	MaxRetries int    `toml:"max_retries"`
}

// ResolutionConfig holds the similarity bands of the merge decision policy.
// The defaults are starting points, not tuned constants; they are expected to
// be adjusted per corpus.
type ResolutionConfig struct {
	MergeThreshold float64 `toml:"merge_threshold"`
	AmbiguousFloor float64 `toml:"ambiguous_floor"`
	NearTieEpsilon float64 `toml:"near_tie_epsilon"`
	TopK           int     `toml:"top_k"`
}

// FragmentConfig lists the lexical markers that classify definition text into
// fragment kinds. Markers are matched case-insensitively against the text.
type FragmentConfig struct {
	OverviewMarkers  []string `toml:"overview_markers"`
	ExceptionMarkers []string `toml:"exception_markers"`
	NoteMarkers      []string `toml:"note_markers"`
}

type ConcurrencyConfig struct {
	Workers          int `toml:"workers"`
	MaxUpsertRetries int `toml:"max_upsert_retries"`
	QueueDepth       int `toml:"queue_depth"`
}

type ServerConfig struct {
	Port    string `toml:"port"`
	LogMode string `toml:"log_mode"`
}

type Config struct {
	Neo4j       Neo4jConfig       `toml:"neo4j"`
	Embedder    EmbedderConfig    `toml:"embedder"`
	Resolution  ResolutionConfig  `toml:"resolution"`
	Fragments   FragmentConfig    `toml:"fragments"`
	Concurrency ConcurrencyConfig `toml:"concurrency"`
	Server      ServerConfig      `toml:"server"`
}

func Default() *Config {
	return &Config{
		Neo4j: Neo4jConfig{
			URI:  "bolt://localhost:7687",
			User: "neo4j",
		},
		Embedder: EmbedderConfig{
			Provider:   "openai",
			Model:      "text-embedding-3-small",
			MaxRetries: 3,
		},
		Resolution: ResolutionConfig{
			MergeThreshold: 0.90,
			AmbiguousFloor: 0.80,
			NearTieEpsilon: 0.03,
			TopK:           5,
		},
		Fragments: FragmentConfig{
			OverviewMarkers:  []string{"overview", "purpose", "개요", "목적"},
			ExceptionMarkers: []string{"however", "except", "unless", "but if", "예외", "단,", "다만"},
			NoteMarkers:      []string{"note:", "note that", "참고", "비고"},
		},
		Concurrency: ConcurrencyConfig{
			Workers:          4,
			MaxUpsertRetries: 3,
			QueueDepth:       256,
		},
		Server: ServerConfig{
			Port:    "8080",
			LogMode: "dev",
		},
	}
}

// Load reads a TOML config file over the defaults, then applies env overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setStr(&c.Neo4j.URI, "NEO4J_URI")
	setStr(&c.Neo4j.User, "NEO4J_USER")
	setStr(&c.Neo4j.Password, "NEO4J_PASSWORD")
	setStr(&c.Neo4j.Database, "NEO4J_DATABASE")

	setStr(&c.Embedder.Provider, "EMBEDDER_PROVIDER")
	setStr(&c.Embedder.Model, "EMBEDDER_MODEL")
	setStr(&c.Embedder.APIKey, "EMBEDDER_API_KEY")
	setStr(&c.Embedder.BaseURL, "EMBEDDER_BASE_URL")

	setStr(&c.Server.Port, "PORT")
	setStr(&c.Server.LogMode, "LOG_MODE")
	setInt(&c.Concurrency.Workers, "WORKER_CONCURRENCY")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			*dst = parsed
		}
	}
}
