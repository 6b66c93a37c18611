package config

import (
	"errors"
	"os"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LLMConfig configures an ollama endpoint and model.
type LLMConfig struct {
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// ChromemConfig configures the embedded chromem-go store.
type ChromemConfig struct {
	Path       string `yaml:"path"`
	Collection string `yaml:"collection"`
	Compress   bool   `yaml:"compress"`
}

// PostgresConfig configures the pgvector-backed store.
type PostgresConfig struct {
	DSN   string `yaml:"dsn"`
	Debug bool   `yaml:"debug"`
}

// StoreConfig selects and configures the vector store implementation.
type StoreConfig struct {
	Type     string         `yaml:"type"`
	Chromem  ChromemConfig  `yaml:"chromem"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// RAGConfig holds retrieval and generation tuning.
type RAGConfig struct {
	TopK         int     `yaml:"top_k"`
	ChunkSize    int     `yaml:"chunk_size"`
	ChunkOverlap int     `yaml:"chunk_overlap"`
	MinScore     float32 `yaml:"min_score"`
	Temperature  float64 `yaml:"temperature"`
	NumPredict   int     `yaml:"num_predict"`
	NumCtx       int     `yaml:"num_ctx"`
}

// CrawlerConfig bounds the web crawler.
type CrawlerConfig struct {
	MaxPages int `yaml:"max_pages"`
	DelayMs  int `yaml:"delay_ms"`
}

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig  `yaml:"server"`
	Ollama    LLMConfig     `yaml:"ollama"`
	Embedding LLMConfig     `yaml:"embedding"`
	Store     StoreConfig   `yaml:"store"`
	RAG       RAGConfig     `yaml:"rag"`
	Crawler   CrawlerConfig `yaml:"crawler"`
	LogLevel  string        `yaml:"log_level"`
}

// Load reads a config from path. A missing file is not an error; defaults
// are returned so the service can run with zero setup.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Ollama.BaseURL == "" {
		c.Ollama.BaseURL = "http://localhost:11434"
	}
	if c.Ollama.Model == "" {
		c.Ollama.Model = "llama3.2:3b"
	}
	if c.Ollama.TimeoutSecs == 0 {
		c.Ollama.TimeoutSecs = 300
	}
	if c.Embedding.BaseURL == "" {
		c.Embedding.BaseURL = c.Ollama.BaseURL
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "all-minilm"
	}
	if c.Store.Type == "" {
		c.Store.Type = "chromem"
	}
	if c.Store.Chromem.Path == "" {
		c.Store.Chromem.Path = "./chromem_db"
	}
	if c.Store.Chromem.Collection == "" {
		c.Store.Chromem.Collection = "company_docs"
	}
	if c.RAG.TopK == 0 {
		c.RAG.TopK = 3
	}
	if c.RAG.ChunkSize == 0 {
		c.RAG.ChunkSize = 1000
	}
	if c.RAG.ChunkOverlap == 0 {
		c.RAG.ChunkOverlap = 200
	}
	if c.RAG.Temperature == 0 {
		c.RAG.Temperature = 0.1
	}
	if c.RAG.NumPredict == 0 {
		c.RAG.NumPredict = 300
	}
	if c.RAG.NumCtx == 0 {
		c.RAG.NumCtx = 4096
	}
	if c.Crawler.MaxPages == 0 {
		c.Crawler.MaxPages = 100
	}
	if c.Crawler.DelayMs == 0 {
		c.Crawler.DelayMs = 500
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}
