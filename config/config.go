package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server"`
	Bot       BotConfig       `json:"bot" yaml:"bot"`
	WhatsApp  WhatsAppConfig  `json:"whatsapp" yaml:"whatsapp"`
	Rating    RatingConfig    `json:"rating" yaml:"rating"`
	Leads     LeadsConfig     `json:"leads" yaml:"leads"`
	LLM       LLMConfig       `json:"llm" yaml:"llm"`
	Knowledge KnowledgeConfig `json:"knowledge" yaml:"knowledge"`
	Analyzer  AnalyzerConfig  `json:"analyzer" yaml:"analyzer"`
	Database  DatabaseConfig  `json:"database" yaml:"database"`
	Admin     AdminConfig     `json:"admin" yaml:"admin"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int `json:"port" yaml:"port"`
}

// BotConfig holds the fixed chat addresses the bot reports to
type BotConfig struct {
	AdminID       string `json:"admin_id" yaml:"admin_id"`
	ManagerChatID string `json:"manager_chat_id" yaml:"manager_chat_id"`
}

// WhatsAppConfig holds configuration for the WhatsApp integration
type WhatsAppConfig struct {
	BotName  string `json:"bot_name" yaml:"bot_name"`
	StoreDir string `json:"store_dir" yaml:"store_dir"`
	// MessagesPerSecond and Burst bound outgoing traffic
	MessagesPerSecond float64 `json:"messages_per_second" yaml:"messages_per_second"`
	Burst             int     `json:"burst" yaml:"burst"`
}

// RatingConfig holds the rating prompt timings
type RatingConfig struct {
	PromptDelay Duration `json:"prompt_delay" yaml:"prompt_delay"`
	Expiry      Duration `json:"expiry" yaml:"expiry"`
}

// LeadsConfig holds the lead session tracker settings
type LeadsConfig struct {
	InactivityWindow Duration `json:"inactivity_window" yaml:"inactivity_window"`
	SweepInterval    Duration `json:"sweep_interval" yaml:"sweep_interval"`
	StaleAfter       Duration `json:"stale_after" yaml:"stale_after"`
	MaxTurns         int      `json:"max_turns" yaml:"max_turns"`
	AnalysisTimeout  Duration `json:"analysis_timeout" yaml:"analysis_timeout"`
	NoInterestMarker string   `json:"no_interest_marker" yaml:"no_interest_marker"`
}

// LLMConfig holds configuration for the answer model
type LLMConfig struct {
	Provider         string   `json:"provider" yaml:"provider"` // "openai" or "ollama"
	Model            string   `json:"model" yaml:"model"`
	EmbeddingModel   string   `json:"embedding_model" yaml:"embedding_model"`
	Endpoint         string   `json:"endpoint" yaml:"endpoint"`
	APIKey           string   `json:"api_key" yaml:"api_key"`
	Timeout          Duration `json:"timeout" yaml:"timeout"`
	HistorySize      int      `json:"history_size" yaml:"history_size"`
	PromptHistory    int      `json:"prompt_history" yaml:"prompt_history"`
	TopK             int      `json:"top_k" yaml:"top_k"`
	SystemPromptFile string   `json:"system_prompt_file" yaml:"system_prompt_file"`
}

// KnowledgeConfig describes the knowledge base source
type KnowledgeConfig struct {
	Path         string `json:"path" yaml:"path"`
	ChunkSize    int    `json:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap int    `json:"chunk_overlap" yaml:"chunk_overlap"`
}

// AnalyzerConfig holds configuration for the lead analysis model
type AnalyzerConfig struct {
	Model     string `json:"model" yaml:"model"`
	MaxTokens int64  `json:"max_tokens" yaml:"max_tokens"`
	BaseURL   string `json:"base_url" yaml:"base_url"`
	APIKey    string `json:"api_key" yaml:"api_key"`
}

// DatabaseConfig holds the SQLite location
type DatabaseConfig struct {
	Path string `json:"path" yaml:"path"`
}

// AdminConfig holds admin API settings
type AdminConfig struct {
	JWTSecret string   `json:"jwt_secret" yaml:"jwt_secret"`
	TokenTTL  Duration `json:"token_ttl" yaml:"token_ttl"`
}

// LoadConfig loads configuration from a JSON or YAML file on top of the defaults
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, config)
	default:
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	return config, nil
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
		},
		WhatsApp: WhatsAppConfig{
			BotName:           "Цифровой Педагог",
			StoreDir:          "./data/whatsapp",
			MessagesPerSecond: 1,
			Burst:             10,
		},
		Rating: RatingConfig{
			PromptDelay: Duration(3 * time.Minute),
			Expiry:      Duration(10 * time.Minute),
		},
		Leads: LeadsConfig{
			InactivityWindow: Duration(15 * time.Minute),
			SweepInterval:    Duration(60 * time.Second),
			StaleAfter:       Duration(24 * time.Hour),
			MaxTurns:         50,
			AnalysisTimeout:  Duration(60 * time.Second),
			NoInterestMarker: "Нет интереса к покупке курса",
		},
		LLM: LLMConfig{
			Provider:       "openai",
			Model:          "gpt-4o",
			EmbeddingModel: "text-embedding-3-small",
			Timeout:        Duration(60 * time.Second),
			HistorySize:    10,
			PromptHistory:  3,
			TopK:           4,
		},
		Knowledge: KnowledgeConfig{
			Path:         "./base/Baza_cf.txt",
			ChunkSize:    8000,
			ChunkOverlap: 200,
		},
		Analyzer: AnalyzerConfig{
			Model:     "gpt-3.5-turbo",
			MaxTokens: 500,
		},
		Database: DatabaseConfig{
			Path: "./data/bot.db",
		},
		Admin: AdminConfig{
			TokenTTL: Duration(24 * time.Hour),
		},
	}
}

// Validate checks the settings the bot cannot run without
func (c *Config) Validate() error {
	var errs []error

	if c.Bot.AdminID == "" {
		errs = append(errs, errors.New("bot.admin_id is required"))
	}
	if c.Bot.ManagerChatID == "" {
		errs = append(errs, errors.New("bot.manager_chat_id is required"))
	}

	durations := []struct {
		name  string
		value Duration
	}{
		{"rating.prompt_delay", c.Rating.PromptDelay},
		{"rating.expiry", c.Rating.Expiry},
		{"leads.inactivity_window", c.Leads.InactivityWindow},
		{"leads.sweep_interval", c.Leads.SweepInterval},
		{"leads.stale_after", c.Leads.StaleAfter},
		{"leads.analysis_timeout", c.Leads.AnalysisTimeout},
		{"llm.timeout", c.LLM.Timeout},
	}
	for _, d := range durations {
		if d.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", d.name))
		}
	}

	if c.Leads.MaxTurns <= 0 {
		errs = append(errs, errors.New("leads.max_turns must be positive"))
	}

	switch c.LLM.Provider {
	case "openai", "ollama":
	default:
		errs = append(errs, fmt.Errorf("unknown llm.provider %q", c.LLM.Provider))
	}

	return errors.Join(errs...)
}
