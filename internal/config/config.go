package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

type Config struct {
	DataDir             string `json:"data_dir"`
	LogLevel            string `json:"log_level"`
	HTTPAddr            string `json:"http_addr"`
	MaxConcurrent       int64  `json:"max_concurrent"`
	MaxToolRounds       int    `json:"max_tool_rounds"`
	ModelTimeoutSec     int    `json:"model_timeout_sec"`
	MaintenanceSchedule string `json:"maintenance_schedule"`
	LLM                 struct {
		BaseURL     string  `json:"base_url"`
		APIKey      string  `json:"api_key"`
		Model       string  `json:"model"`
		MaxTokens   int     `json:"max_tokens"`
		Temperature float32 `json:"temperature"`
	} `json:"llm"`
	Embedding struct {
		BaseURL string `json:"base_url"`
		APIKey  string `json:"api_key"`
		Model   string `json:"model"`
	} `json:"embedding"`
	Retrieval struct {
		ChunkTokens   int     `json:"chunk_tokens"`
		OverlapTokens int     `json:"overlap_tokens"`
		SpecificK     int     `json:"specific_k"`
		OverviewK     int     `json:"overview_k"`
		CandidatePool int     `json:"candidate_pool"`
		Diversity     float64 `json:"diversity"`
	} `json:"retrieval"`
	AlphaVantage struct {
		APIKey string `json:"api_key"`
	} `json:"alphavantage"`
	Students struct {
		CSVPath string `json:"csv_path"`
	} `json:"students"`
}

func Load(path string) (*Config, error) {
	cfg := &Config{
		DataDir:             filepath.Join(os.Getenv("HOME"), ".synapse"),
		MaxConcurrent:       2,
		MaxToolRounds:       10,
		ModelTimeoutSec:     120,
		MaintenanceSchedule: "0 3 * * *",
	}
	cfg.LogLevel = "info"
	cfg.HTTPAddr = ":8080"
	cfg.LLM.BaseURL = "https://api.openai.com/v1"
	cfg.LLM.Model = "gpt-4o-mini"
	cfg.LLM.MaxTokens = 2000
	cfg.LLM.Temperature = 0.7
	cfg.Embedding.BaseURL = "https://api.openai.com/v1"
	cfg.Embedding.Model = "text-embedding-3-small"
	cfg.Retrieval.ChunkTokens = 1000
	cfg.Retrieval.OverlapTokens = 200
	cfg.Retrieval.SpecificK = 4
	cfg.Retrieval.OverviewK = 8
	cfg.Retrieval.CandidatePool = 24
	cfg.Retrieval.Diversity = 0.5

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if os.IsNotExist(err) {
		if err := writeDefaults(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		cfg.LLM.APIKey = apiKey
		if cfg.Embedding.APIKey == "" {
			cfg.Embedding.APIKey = apiKey
		}
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		cfg.LLM.BaseURL = baseURL
	}
	if avKey := os.Getenv("ALPHAVANTAGE_API_KEY"); avKey != "" {
		cfg.AlphaVantage.APIKey = avKey
	}

	return cfg, nil
}

// Save writes the config to path atomically (write to a temp file, then
// rename into place).
func Save(path string, cfg *Config) error {
	return writeDefaults(path, cfg)
}

func writeDefaults(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename default config: %w", err)
	}
	return nil
}
