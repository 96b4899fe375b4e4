package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LLM struct {
		BaseURL        string  `yaml:"base_url"`
		Model          string  `yaml:"model"`
		EmbeddingModel string  `yaml:"embedding_model"`
		MaxTokens      int     `yaml:"max_tokens"`
		Temperature    float64 `yaml:"temperature"`
	} `yaml:"llm"`

	Database struct {
		URL       string `yaml:"url"`
		TableName string `yaml:"table_name"`
		VectorDim int    `yaml:"vector_dim"`
		Metric    string `yaml:"metric"` // cosine or euclidean
	} `yaml:"database"`

	Storage struct {
		Bucket string `yaml:"bucket"`
	} `yaml:"storage"`

	Chunker struct {
		ChunkSize int `yaml:"chunk_size"`
		Overlap   int `yaml:"overlap"`
	} `yaml:"chunker"`

	Embedder struct {
		MaxAttempts int     `yaml:"max_attempts"`
		Concurrency int     `yaml:"concurrency"`
		RateLimit   float64 `yaml:"rate_limit"` // provider calls per second
	} `yaml:"embedder"`

	Query struct {
		TopK int `yaml:"top_k"`
	} `yaml:"query"`

	Brief struct {
		Sources   []string `yaml:"sources"`
		RateLimit float64  `yaml:"rate_limit"`
	} `yaml:"brief"`

	Server struct {
		Port      string `yaml:"port"`
		Streaming bool   `yaml:"streaming"`
	} `yaml:"server"`
}

func LoadConfig(path string) (*Config, error) {
	// A .env file, if present, seeds the environment before the merge.
	_ = godotenv.Load()

	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/orchestrate/config.yaml"),
			"/etc/orchestrate/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %v", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %v", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.Model == "" {
		config.LLM.Model = "mistral"
	}
	if config.LLM.EmbeddingModel == "" {
		config.LLM.EmbeddingModel = "nomic-embed-text:latest"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.7
	}
	if config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "http://localhost:11434"
	}

	if config.Database.TableName == "" {
		config.Database.TableName = "chunks"
	}
	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = 768
	}
	if config.Database.Metric == "" {
		config.Database.Metric = "cosine"
	}

	if config.Storage.Bucket == "" {
		config.Storage.Bucket = "knowledge-base"
	}

	if config.Chunker.ChunkSize == 0 {
		config.Chunker.ChunkSize = 500
	}
	if config.Chunker.Overlap == 0 {
		config.Chunker.Overlap = 50
	}

	if config.Embedder.MaxAttempts == 0 {
		config.Embedder.MaxAttempts = 4
	}
	if config.Embedder.Concurrency == 0 {
		config.Embedder.Concurrency = 4
	}
	if config.Embedder.RateLimit == 0 {
		config.Embedder.RateLimit = 8.0
	}

	if config.Query.TopK == 0 {
		config.Query.TopK = 5
	}

	if config.Brief.RateLimit == 0 {
		config.Brief.RateLimit = 2.0
	}

	if config.Server.Port == "" {
		config.Server.Port = "8080"
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if port := os.Getenv("PORT"); port != "" {
		config.Server.Port = port
	}
	if bucket := os.Getenv("STORAGE_BUCKET"); bucket != "" {
		config.Storage.Bucket = bucket
	}
}
