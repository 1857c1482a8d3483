package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

type LLMConfig struct {
	Provider       string `toml:"provider"`
	Model          string `toml:"model"`
	EmbeddingModel string `toml:"embedding_model"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
}

type StoreConfig struct {
	DBPath string `toml:"db_path"`
}

type RAGConfig struct {
	NResults                 int `toml:"n_results"`
	MaxHistoryTurns          int `toml:"max_history_turns"`
	MaxSessionTurns          int `toml:"max_session_turns"`
	GenerationTimeoutSeconds int `toml:"generation_timeout_seconds"`
}

type LogConfig struct {
	Path       string `toml:"path"`
	Production bool   `toml:"production"`
}

type Config struct {
	LLM   LLMConfig   `toml:"llm"`
	Store StoreConfig `toml:"store"`
	RAG   RAGConfig   `toml:"rag"`
	Log   LogConfig   `toml:"log"`
}

// Load reads a TOML config file, fills in defaults for missing knobs, and
// applies environment overrides. A missing file is not an error: defaults
// plus environment are used.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err == nil {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LLM.Provider == "" {
		c.LLM.Provider = "ollama"
		c.LLM.BaseURL = "http://localhost:11434"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "llama3.2"
	}
	if c.LLM.EmbeddingModel == "" {
		c.LLM.EmbeddingModel = "nomic-embed-text"
	}
	if c.Store.DBPath == "" {
		c.Store.DBPath = "abstracts.db"
	}
	if c.RAG.NResults <= 0 {
		c.RAG.NResults = 5
	}
	if c.RAG.MaxHistoryTurns <= 0 {
		c.RAG.MaxHistoryTurns = 10
	}
	if c.RAG.MaxSessionTurns <= 0 {
		c.RAG.MaxSessionTurns = 50
	}
	if c.RAG.GenerationTimeoutSeconds <= 0 {
		c.RAG.GenerationTimeoutSeconds = 120
	}
	if c.Log.Path == "" {
		c.Log.Path = "logs/server.log"
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("LLM_EMBEDDING_MODEL"); v != "" {
		c.LLM.EmbeddingModel = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		c.Store.DBPath = v
	}
}
