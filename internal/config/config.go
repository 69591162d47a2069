package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds the application configuration
type Config struct {
	DatabasePath       string    `json:"database_path"`
	APIPort            string    `json:"api_port"`
	LogLevel           string    `json:"log_level"`
	DataDir            string    `json:"data_dir"`
	CORSOrigins        string    `json:"cors_origins"` // CORS 允许的域名，逗号分隔，* 表示全部
	BackfillDays       int       `json:"backfill_days"`
	MaxConnectRetries  int       `json:"max_connect_retries"`
	AI                 AIConfig  `json:"ai"`
	SlackWebhookURL    string    `json:"slack_webhook_url"`
	ExternalWebhookURL string    `json:"external_webhook_url"`
	Accounts           []Account `json:"accounts"`
}

// AIConfig holds the categorization API settings
type AIConfig struct {
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`
	Model   string `json:"model"`
}

// Default configuration values
const (
	DefaultDatabasePath      = "data/onebox.db"
	DefaultAPIPort           = "8080"
	DefaultLogLevel          = "INFO"
	DefaultDataDir           = "data"
	DefaultCORSOrigins       = "*"
	DefaultBackfillDays      = 30
	DefaultMaxConnectRetries = 5
	DefaultAIBaseURL         = "https://openrouter.ai/api/v1"
	DefaultAIModel           = "deepseek/deepseek-chat-v3-0324"
)

// Load loads configuration from environment variables and config file
// Priority: Environment variables > Config file > Default values
func Load() (*Config, error) {
	cfg := &Config{
		DatabasePath:      DefaultDatabasePath,
		APIPort:           DefaultAPIPort,
		LogLevel:          DefaultLogLevel,
		DataDir:           DefaultDataDir,
		CORSOrigins:       DefaultCORSOrigins,
		BackfillDays:      DefaultBackfillDays,
		MaxConnectRetries: DefaultMaxConnectRetries,
		AI: AIConfig{
			BaseURL: DefaultAIBaseURL,
			Model:   DefaultAIModel,
		},
	}

	// Try to load from config file
	if err := cfg.loadFromFile(); err != nil {
		// Config file is optional
	}

	// Override with environment variables
	cfg.loadFromEnv()

	// Accounts declared via ONEBOX_ACCOUNT_n_* env groups override the file
	if accounts := accountsFromEnv(); len(accounts) > 0 {
		cfg.Accounts = accounts
	}

	return cfg, nil
}

// loadFromFile loads configuration from config.json file
func (c *Config) loadFromFile() error {
	// Look for config file in current directory and data directory
	configPaths := []string{
		"config.json",
		filepath.Join(c.DataDir, "config.json"),
	}

	for _, path := range configPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		if err := json.Unmarshal(data, c); err != nil {
			return err
		}
		return nil
	}

	return nil
}

// loadFromEnv loads configuration from environment variables
func (c *Config) loadFromEnv() {
	if val := os.Getenv("ONEBOX_DATABASE_PATH"); val != "" {
		c.DatabasePath = val
	}
	if val := os.Getenv("ONEBOX_API_PORT"); val != "" {
		c.APIPort = val
	}
	if val := os.Getenv("ONEBOX_LOG_LEVEL"); val != "" {
		c.LogLevel = val
	}
	if val := os.Getenv("ONEBOX_DATA_DIR"); val != "" {
		c.DataDir = val
	}
	if val := os.Getenv("ONEBOX_CORS_ORIGINS"); val != "" {
		c.CORSOrigins = val
	}
	if val := os.Getenv("ONEBOX_BACKFILL_DAYS"); val != "" {
		if days, err := strconv.Atoi(val); err == nil && days > 0 {
			c.BackfillDays = days
		}
	}
	if val := os.Getenv("ONEBOX_MAX_CONNECT_RETRIES"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			c.MaxConnectRetries = n
		}
	}
	if val := os.Getenv("ONEBOX_AI_BASE_URL"); val != "" {
		c.AI.BaseURL = val
	}
	if val := os.Getenv("ONEBOX_AI_API_KEY"); val != "" {
		c.AI.APIKey = val
	}
	if val := os.Getenv("ONEBOX_AI_MODEL"); val != "" {
		c.AI.Model = val
	}
	if val := os.Getenv("ONEBOX_SLACK_WEBHOOK_URL"); val != "" {
		c.SlackWebhookURL = val
	}
	if val := os.Getenv("ONEBOX_EXTERNAL_WEBHOOK_URL"); val != "" {
		c.ExternalWebhookURL = val
	}
}

// Save saves the current configuration to a file
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
