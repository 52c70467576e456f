package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "test.db"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.DatabasePath == "" {
		t.Error("database_path should be set")
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
	if cfg.Embedding.Provider != "ollama" {
		t.Errorf("embedding provider should default to ollama, got %q", cfg.Embedding.Provider)
	}
}

func TestLoad_debugTrue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: "localhost"
  port: 8080
storage:
  database_path: "test.db"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "localhost"
  port: 8080
storage:
  database_path: "./data/db/library.db"
  index_path: "./data/indices/vectors.idx"
watch:
  directories: ["./papers"]
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	wantDB := filepath.Join(dir, "data", "db", "library.db")
	if cfg.Storage.DatabasePath != wantDB {
		t.Errorf("database_path = %s, want %s", cfg.Storage.DatabasePath, wantDB)
	}
	wantIdx := filepath.Join(dir, "data", "indices", "vectors.idx")
	if cfg.Storage.IndexPath != wantIdx {
		t.Errorf("index_path = %s, want %s", cfg.Storage.IndexPath, wantIdx)
	}
	if len(cfg.Watch.Directories) != 1 {
		t.Fatalf("watch directories: got %d", len(cfg.Watch.Directories))
	}
	wantWatch := filepath.Join(dir, "papers")
	if cfg.Watch.Directories[0] != wantWatch {
		t.Errorf("watch directory = %s, want %s", cfg.Watch.Directories[0], wantWatch)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" {
		t.Errorf("default host: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if cfg.Chunking.ChunkSize != 500 || cfg.Chunking.ChunkOverlap != 100 {
		t.Errorf("chunking defaults: got %+v", cfg.Chunking)
	}
	if cfg.Chunking.MinChunkSize != 20 {
		t.Errorf("default min_chunk_size: got %d", cfg.Chunking.MinChunkSize)
	}
	if cfg.Retrieval.TopK != 5 {
		t.Errorf("default top_k: got %d", cfg.Retrieval.TopK)
	}
	if cfg.Retrieval.MinScore != 0.1 {
		t.Errorf("default min_score: got %f", cfg.Retrieval.MinScore)
	}
	if cfg.Compose.MaxContextChars != 3000 || cfg.Compose.SnippetChars != 500 {
		t.Errorf("compose defaults: got %+v", cfg.Compose)
	}
	if cfg.Ingest.Workers != 4 {
		t.Errorf("default workers: got %d", cfg.Ingest.Workers)
	}
	if cfg.Embedding.Endpoint != "http://localhost:11434" {
		t.Errorf("default endpoint: got %s", cfg.Embedding.Endpoint)
	}
	if cfg.Embedding.Dimensions != 768 {
		t.Errorf("default dimensions: got %d", cfg.Embedding.Dimensions)
	}
	if len(cfg.Ingest.Extensions) != 11 {
		t.Errorf("ingest extensions: got %v", cfg.Ingest.Extensions)
	}
	for _, want := range []string{".txt", ".md", ".pdf", ".docx", ".odt", ".rtf"} {
		found := false
		for _, ext := range cfg.Ingest.Extensions {
			if ext == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("ingest extensions should include %s: got %v", want, cfg.Ingest.Extensions)
		}
	}
}

func TestApplyDefaults_WatchRecursiveWhenDirectoriesSet(t *testing.T) {
	cfg := &Config{Watch: WatchConfig{Directories: []string{"/tmp/papers"}}}
	ApplyDefaults(cfg)
	if cfg.Watch.Recursive == nil || !*cfg.Watch.Recursive {
		t.Error("recursive should default to true when directories are set")
	}
}

func TestWatchConfig_RecursiveOrDefault(t *testing.T) {
	t.Run("nil_returns_true", func(t *testing.T) {
		w := &WatchConfig{}
		if got := w.RecursiveOrDefault(); !got {
			t.Errorf("RecursiveOrDefault() = %v, want true", got)
		}
	})
	t.Run("true_returns_true", func(t *testing.T) {
		v := true
		w := &WatchConfig{Recursive: &v}
		if got := w.RecursiveOrDefault(); !got {
			t.Errorf("RecursiveOrDefault() = %v, want true", got)
		}
	})
	t.Run("false_returns_false", func(t *testing.T) {
		f := false
		w := &WatchConfig{Recursive: &f}
		if got := w.RecursiveOrDefault(); got {
			t.Errorf("RecursiveOrDefault() = %v, want false", got)
		}
	})
}

func TestWatchExtensions(t *testing.T) {
	cfg := &Config{}
	cfg.Ingest.Extensions = []string{".txt", ".md", ".pdf"}

	if got := cfg.WatchExtensions(); len(got) != 3 {
		t.Errorf("without formats, watch should use the ingest list: %v", got)
	}

	cfg.Watch.Formats = []string{"PDF", ".md", ".docx"}
	got := cfg.WatchExtensions()
	if len(got) != 2 || got[0] != ".pdf" || got[1] != ".md" {
		t.Errorf("formats should narrow to the ingestable subset: %v", got)
	}
}

func TestRetrievalConfig_KeywordFallbackOrDefault(t *testing.T) {
	r := &RetrievalConfig{}
	if !r.KeywordFallbackOrDefault() {
		t.Error("keyword fallback should default to true")
	}
	f := false
	r.KeywordFallback = &f
	if r.KeywordFallbackOrDefault() {
		t.Error("explicit false should disable keyword fallback")
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := &Config{
		Server:  ServerConfig{Host: "localhost", Port: 9090},
		Storage: StorageConfig{DatabasePath: "/tmp/db"},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "generation") {
		t.Errorf("unset generation section should not be written:\n%s", data)
	}
}

func TestSave_preservesGenerationSection(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "localhost"
  port: 8080
storage:
  database_path: "test.db"
generation:
  endpoint: "http://localhost:11434"
  model: "deepseek-r1"
  temperature: 0.7
  max_tokens: 4096
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	saved := filepath.Join(dir, "saved.yaml")
	if err := Save(saved, cfg); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(saved)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"deepseek-r1", "temperature: 0.7", "max_tokens: 4096"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("re-saved config lost generation setting %q:\n%s", want, data)
		}
	}
}
