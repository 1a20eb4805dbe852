package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// EmbeddingConfig configures the embeddings backend client.
type EmbeddingConfig struct {
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	Dimension   int    `yaml:"dimension"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// LLMConfig configures the generation backend client.
type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	TimeoutSecs int     `yaml:"timeout_secs"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL          string `yaml:"url"`
	APIKey       string `yaml:"api_key"`
	Collection   string `yaml:"collection"`
	TimeoutSecs  int    `yaml:"timeout_secs"`
	StorageLimit int64  `yaml:"storage_limit"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// PipelineConfig holds the retrieval and packing policy knobs.
type PipelineConfig struct {
	ChunkSize          int     `yaml:"chunk_size"`
	ChunkOverlap       int     `yaml:"chunk_overlap"`
	OverFetch          int     `yaml:"over_fetch"`
	MaxSources         int     `yaml:"max_sources"`
	ScoreFloor         float64 `yaml:"score_floor"`
	LexicalFloor       float64 `yaml:"lexical_floor"`
	SearchFloor        float64 `yaml:"search_floor"`
	RetryWithoutFloor  *bool   `yaml:"retry_without_floor,omitempty"`
	MaxTextLength      int     `yaml:"max_text_length"`
	ConversationBudget int     `yaml:"conversation_budget"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	LLM         LLMConfig         `yaml:"llm"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
}

// RetryWithoutFloorEnabled reports the zero-hit retry policy, defaulting to
// enabled when the config file does not set it.
func (p PipelineConfig) RetryWithoutFloorEnabled() bool {
	if p.RetryWithoutFloor == nil {
		return true
	}
	return *p.RetryWithoutFloor
}

// ContextBudget is the character budget for packed source context: half of
// the total prompt budget, the rest reserved for the question, conversation
// and instructions.
func (p PipelineConfig) ContextBudget() int {
	return p.MaxTextLength / 2
}

// Load reads a config from a specified path. If the file does not exist,
// returns defaults. Environment variables override file values either way.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/ragchat/config.yaml.
// If neither exists it returns defaults with environment overrides applied.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err == nil {
		if _, statErr := os.Stat(userPath); statErr == nil {
			cfg, loadErr := Load(userPath)
			return cfg, userPath, loadErr
		}
	}
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg, "", nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ragchat", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		VectorStore: VectorStoreConfig{Type: "memory"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "http://localhost:11434"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "nomic-embed-text"
	}
	if cfg.Embedding.Dimension == 0 {
		cfg.Embedding.Dimension = 768
	}
	if cfg.Embedding.TimeoutSecs == 0 {
		cfg.Embedding.TimeoutSecs = 30
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "http://localhost:11434"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "mistral"
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.1
	}
	if cfg.LLM.TimeoutSecs == 0 {
		cfg.LLM.TimeoutSecs = 120
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "memory"
	}
	if cfg.VectorStore.Type == "qdrant" && cfg.VectorStore.Qdrant == nil {
		cfg.VectorStore.Qdrant = &QdrantConfig{}
	}
	if q := cfg.VectorStore.Qdrant; q != nil {
		if q.Collection == "" {
			q.Collection = "rag_documents"
		}
		if q.TimeoutSecs == 0 {
			q.TimeoutSecs = 15
		}
		if q.StorageLimit == 0 {
			q.StorageLimit = 1_000_000
		}
	}
	p := &cfg.Pipeline
	if p.ChunkSize == 0 {
		p.ChunkSize = 1000
	}
	if p.ChunkOverlap == 0 {
		p.ChunkOverlap = 200
	}
	if p.OverFetch == 0 {
		p.OverFetch = 10
	}
	if p.MaxSources == 0 {
		p.MaxSources = 3
	}
	if p.ScoreFloor == 0 {
		p.ScoreFloor = 0.12
	}
	if p.LexicalFloor == 0 {
		p.LexicalFloor = 0.2
	}
	if p.MaxTextLength == 0 {
		p.MaxTextLength = 15000
	}
	if p.ConversationBudget == 0 {
		p.ConversationBudget = 2000
	}
}

// applyEnvOverrides lets deployment environment variables win over file
// values, matching the .env-driven setups this tool usually runs with.
func applyEnvOverrides(cfg *AppConfig) {
	if v := os.Getenv("OLLAMA_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("OLLAMA_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("QDRANT_URL"); v != "" {
		cfg.VectorStore.Type = "qdrant"
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		cfg.VectorStore.Qdrant.URL = v
		applyConfigDefaults(cfg)
	}
	if v := os.Getenv("QDRANT_API_KEY"); v != "" && cfg.VectorStore.Qdrant != nil {
		cfg.VectorStore.Qdrant.APIKey = v
	}
	if v := os.Getenv("COLLECTION_NAME"); v != "" && cfg.VectorStore.Qdrant != nil {
		cfg.VectorStore.Qdrant.Collection = v
	}
	if v := os.Getenv("MAX_TEXT_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Pipeline.MaxTextLength = n
		}
	}
	if v := os.Getenv("CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Pipeline.ChunkSize = n
		}
	}
	if v := os.Getenv("TOP_K_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Pipeline.OverFetch = n
		}
	}
	if v := os.Getenv("SIMILARITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.Pipeline.SearchFloor = f
		}
	}
}
