package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port          int              `json:"port"`
	CORSAllowlist []string         `json:"cors_allowlist"`
	SystemPrompt  string           `json:"system_prompt"`
	LogConfig     logger.LogConfig `json:"log_config"`
	AI            AIConfig         `json:"ai"`
	Analysis      AnalysisConfig   `json:"analysis"`
	Moderation    ModerationConfig `json:"moderation"`
	Knowledge     KnowledgeConfig  `json:"knowledge"`
}

// AIConfig selects the model provider. Data carries the provider-specific
// fields (api_key, base_url, ...) and is decoded by the provider factory.
type AIConfig struct {
	Provider        string      `json:"provider"`
	Data            interface{} `json:"data"`
	TextModel       string      `json:"text_model"`
	VisionModel     string      `json:"vision_model"`
	EnableWebSearch bool        `json:"enable_web_search"`
}

type AnalysisConfig struct {
	ChunkSize            int     `json:"chunk_size"`
	MinTextLayerChars    int     `json:"min_text_layer_chars"`
	MinRawTextChars      int     `json:"min_raw_text_chars"`
	RenderScale          float64 `json:"render_scale"`
	MaxImageWidth        int     `json:"max_image_width"`
	RequestBudgetSeconds int     `json:"request_budget_seconds"`
}

type ModerationConfig struct {
	Enable          bool   `json:"enable"`
	APIKey          string `json:"api_key"`
	BaseURL         string `json:"base_url"`
	CacheSize       int    `json:"cache_size"`
	CacheTTLMinutes int    `json:"cache_ttl_minutes"`
	TimeoutSeconds  int    `json:"timeout_seconds"`
}

type KnowledgeConfig struct {
	Enable       bool   `json:"enable"`
	Dir          string `json:"dir"`
	DBPath       string `json:"db_path"`
	TopK         int    `json:"top_k"`
	ReindexCron  string `json:"reindex_cron"`
	EmbedBaseURL string `json:"embed_base_url"`
	EmbedAPIKey  string `json:"embed_api_key"`
	EmbedModel   string `json:"embed_model"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Port == 0 {
		return nil, fmt.Errorf("port is required")
	}
	if cfg.AI.Provider == "" {
		return nil, fmt.Errorf("ai.provider is required")
	}
	if cfg.AI.TextModel == "" {
		return nil, fmt.Errorf("ai.text_model is required")
	}
	if cfg.AI.VisionModel == "" {
		cfg.AI.VisionModel = cfg.AI.TextModel
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.Analysis.RequestBudgetSeconds == 0 {
		cfg.Analysis.RequestBudgetSeconds = 120
	}
	if cfg.Moderation.Enable {
		if cfg.Moderation.APIKey == "" {
			return nil, fmt.Errorf("moderation.api_key is required when moderation is enabled")
		}
		if cfg.Moderation.CacheSize == 0 {
			cfg.Moderation.CacheSize = 10000
		}
		if cfg.Moderation.CacheTTLMinutes == 0 {
			cfg.Moderation.CacheTTLMinutes = 120
		}
	}
	if cfg.Knowledge.Enable {
		if cfg.Knowledge.Dir == "" {
			return nil, fmt.Errorf("knowledge.dir is required when knowledge is enabled")
		}
		if cfg.Knowledge.EmbedModel == "" {
			return nil, fmt.Errorf("knowledge.embed_model is required when knowledge is enabled")
		}
		if cfg.Knowledge.TopK == 0 {
			cfg.Knowledge.TopK = 4
		}
		if cfg.Knowledge.ReindexCron == "" {
			cfg.Knowledge.ReindexCron = "0 * * * *"
		}
	}
	return &cfg, nil
}
