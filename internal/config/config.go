// Package config provides configuration loading and structs for the Bunken server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Compose   ComposeConfig   `yaml:"compose"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Watch     WatchConfig     `yaml:"watch"`

	// Generation belongs to the proposal-generation step, which shares this
	// config file. It is held as a raw node so Save round-trips whatever the
	// generation side keeps there (endpoint, model, sampling settings).
	Generation yaml.Node `yaml:"generation,omitempty"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the document database and indices.
type StorageConfig struct {
	DatabasePath     string `yaml:"database_path"`
	IndexPath        string `yaml:"index_path"`
	KeywordIndexPath string `yaml:"keyword_index_path"`
}

// EmbeddingConfig holds embedder settings. Provider selects the backend:
// "ollama" (default), "onnx", or "mock". Endpoint, Model and TimeoutSeconds
// apply to ollama; ModelPath and MaxTokens apply to onnx.
type EmbeddingConfig struct {
	Provider       string `yaml:"provider"`
	Endpoint       string `yaml:"endpoint"`
	Model          string `yaml:"model"`
	Dimensions     int    `yaml:"dimensions"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	CacheSize      int    `yaml:"cache_size"`
	ModelPath      string `yaml:"model_path"`
	MaxTokens      int    `yaml:"max_tokens"`
}

// ChunkingConfig holds text splitting settings. Sizes are in runes.
type ChunkingConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	MinChunkSize int `yaml:"min_chunk_size"`
}

// RetrievalConfig holds retrieval defaults.
type RetrievalConfig struct {
	TopK     int     `yaml:"top_k"`
	MinScore float64 `yaml:"min_score"`
	// KeywordFallback enables keyword retrieval when the embedder is
	// unavailable. Defaults to true when unset.
	KeywordFallback *bool `yaml:"keyword_fallback"`
}

// KeywordFallbackOrDefault returns whether to fall back to keyword retrieval;
// defaults to true when unset.
func (r *RetrievalConfig) KeywordFallbackOrDefault() bool {
	if r.KeywordFallback != nil {
		return *r.KeywordFallback
	}
	return true
}

// ComposeConfig holds context assembly settings. Sizes are in runes.
type ComposeConfig struct {
	MaxContextChars int `yaml:"max_context_chars"`
	SnippetChars    int `yaml:"snippet_chars"`
}

// IngestConfig holds batch ingestion settings. Extensions lists the file
// types picked up from directories, both for batch ingestion and watching.
type IngestConfig struct {
	Workers    int      `yaml:"workers"`
	Extensions []string `yaml:"extensions"`
}

// WatchConfig holds directory watch settings. Formats optionally narrows
// the watched file types below the ingest extension list.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Recursive   *bool    `yaml:"recursive"`
	Formats     []string `yaml:"formats"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// WatchExtensions returns the extension filter for directory watching: the
// ingest extensions, intersected with watch.formats when that is set.
func (c *Config) WatchExtensions() []string {
	if len(c.Watch.Formats) == 0 {
		return c.Ingest.Extensions
	}
	allowed := make(map[string]bool, len(c.Ingest.Extensions))
	for _, e := range c.Ingest.Extensions {
		allowed[normalizeExt(e)] = true
	}
	var out []string
	for _, f := range c.Watch.Formats {
		if norm := normalizeExt(f); allowed[norm] {
			out = append(out, "."+norm)
		}
	}
	return out
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.IndexPath = expandPath(cfg.Storage.IndexPath, configDir)
	cfg.Storage.KeywordIndexPath = expandPath(cfg.Storage.KeywordIndexPath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// Save writes the config to path. Used for persisting watch directory add/remove.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
