package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/agenthands/graphmerge/internal/auth"
)

type LLMConfig struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
	APIKey   string `toml:"api_key"`
	BaseURL  string `toml:"base_url"`

	// MaxTokens caps each answer; zero uses the client default.
	MaxTokens int `toml:"max_tokens"`
}

type MemgraphConfig struct {
	URI      string `toml:"uri"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
}

type SQLiteConfig struct {
	Path string `toml:"path"`
}

type GraphConfig struct {
	// Backend is one of memory, sqlite or memgraph.
	Backend                  string   `toml:"backend"`
	DedupFields              []string `toml:"dedup_fields"`
	CustomFinalizeAllObjects bool     `toml:"custom_finalize_all_objects"`
}

type MergeConfig struct {
	Policy string `toml:"policy"`
	Prompt string `toml:"prompt"`
}

// DecompositionRule turns two fields of a record into a pair of vertices and
// an edge between them.
type DecompositionRule struct {
	EdgeName      string `toml:"edge_name"`
	FromField     string `toml:"from_field"`
	FromType      string `toml:"from_type"`
	ToField       string `toml:"to_field"`
	ToType        string `toml:"to_type"`
	Bidirectional bool   `toml:"bidirectional"`
}

type DecompositionConfig struct {
	Policy   string              `toml:"policy"`
	Prompt   string              `toml:"prompt"`
	Elements []DecompositionRule `toml:"elements"`
}

type AuthConfig struct {
	Enabled   bool         `toml:"enabled"`
	JWTSecret string       `toml:"jwt_secret"`
	Grants    []auth.Grant `toml:"grants"`
}

type ConcurrencyConfig struct {
	BulkIngest int `toml:"bulk_ingest"`
}

type ServerConfig struct {
	Port    string `toml:"port"`
	LogMode string `toml:"log_mode"`
}

type Config struct {
	LLM           LLMConfig           `toml:"llm"`
	Memgraph      MemgraphConfig      `toml:"memgraph"`
	SQLite        SQLiteConfig        `toml:"sqlite"`
	Graph         GraphConfig         `toml:"graph"`
	Merge         MergeConfig         `toml:"merge"`
	Decomposition DecompositionConfig `toml:"decomposition"`
	Auth          AuthConfig          `toml:"auth"`
	Concurrency   ConcurrencyConfig   `toml:"concurrency"`
	Server        ServerConfig        `toml:"server"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Memgraph:      MemgraphConfig{URI: "bolt://localhost:7687"},
		SQLite:        SQLiteConfig{Path: "graphmerge.db"},
		Graph:         GraphConfig{Backend: "memory", DedupFields: []string{"name", "type"}},
		Merge:         MergeConfig{Policy: "prefer_existing"},
		Decomposition: DecompositionConfig{Policy: "simple"},
		Concurrency:   ConcurrencyConfig{BulkIngest: 4},
		Server:        ServerConfig{Port: "8080", LogMode: "dev"},
	}
}

// Load reads a TOML file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides file values with any set environment variables.
func (c *Config) ApplyEnv() {
	setString := func(dst *string, name string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	setString(&c.LLM.Provider, "LLM_PROVIDER")
	setString(&c.LLM.Model, "LLM_MODEL")
	setString(&c.LLM.APIKey, "LLM_API_KEY")
	setString(&c.LLM.BaseURL, "LLM_BASE_URL")
	setString(&c.Memgraph.URI, "MEMGRAPH_URI")
	setString(&c.Memgraph.User, "MEMGRAPH_USER")
	setString(&c.Memgraph.Password, "MEMGRAPH_PASSWORD")
	setString(&c.Graph.Backend, "GRAPH_BACKEND")
	setString(&c.SQLite.Path, "SQLITE_PATH")
	setString(&c.Auth.JWTSecret, "JWT_SECRET")
	setString(&c.Server.Port, "PORT")
	setString(&c.Server.LogMode, "LOG_MODE")

	if v := os.Getenv("GRAPH_DEDUP_FIELDS"); v != "" {
		var fields []string
		for _, f := range strings.Split(v, ",") {
			if f = strings.TrimSpace(f); f != "" {
				fields = append(fields, f)
			}
		}
		c.Graph.DedupFields = fields
	}
	if v := os.Getenv("BULK_INGEST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Concurrency.BulkIngest = n
		}
	}
}

func (c *Config) Validate() error {
	if len(c.Graph.DedupFields) == 0 {
		return fmt.Errorf("graph.dedup_fields must name at least one field")
	}
	switch strings.ToLower(c.Graph.Backend) {
	case "memory", "sqlite", "memgraph":
	default:
		return fmt.Errorf("unknown graph backend: %q", c.Graph.Backend)
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required when auth is enabled")
	}
	if c.Concurrency.BulkIngest < 1 {
		c.Concurrency.BulkIngest = 1
	}
	return nil
}
