package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"reading-bridge/internal/domain"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	defaultServerPort      = "8080"
	defaultLogLevel        = "info"
	defaultDocumentRoot    = "./books"
	defaultMaxDocumentSize = 50 * 1024 * 1024
	defaultSearchDebounce  = 500 * time.Millisecond
	defaultSearchPageSize  = 20
)

// AppConfig implements the domain.Config interface
type AppConfig struct {
	ServerPort      string
	LogLevel        string
	SupabaseURL     string
	SupabaseKey     string
	DocumentRoot    string
	MaxDocumentSize int64
	SearchDebounce  time.Duration
	SearchPageSize  int
	AllowedOrigins  []string
}

// fileConfig is the shape of the optional CONFIG_FILE.
type fileConfig struct {
	ServerPort      string   `toml:"server_port" yaml:"server_port" json:"server_port"`
	LogLevel        string   `toml:"log_level" yaml:"log_level" json:"log_level"`
	SupabaseURL     string   `toml:"supabase_url" yaml:"supabase_url" json:"supabase_url"`
	SupabaseKey     string   `toml:"supabase_anon_key" yaml:"supabase_anon_key" json:"supabase_anon_key"`
	DocumentRoot    string   `toml:"document_root" yaml:"document_root" json:"document_root"`
	MaxDocumentSize int64    `toml:"max_document_size" yaml:"max_document_size" json:"max_document_size"`
	SearchDebounce  string   `toml:"search_debounce" yaml:"search_debounce" json:"search_debounce"`
	SearchPageSize  int      `toml:"search_page_size" yaml:"search_page_size" json:"search_page_size"`
	AllowedOrigins  []string `toml:"allowed_origins" yaml:"allowed_origins" json:"allowed_origins"`
}

// NewConfig builds the configuration from CONFIG_FILE, when set, and the
// environment. Environment values win over the file.
func NewConfig() (domain.Config, error) {
	return Load(os.Getenv("CONFIG_FILE"))
}

// Load reads the config file at path (skipped when path is empty) and applies
// environment overrides on top.
func Load(path string) (*AppConfig, error) {
	cfg := defaultConfig()
	if path != "" {
		fc, err := loadConfigFile(path)
		if err != nil {
			return nil, err
		}
		cfg.apply(fc)
	}
	cfg.applyEnv()
	return cfg, nil
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		ServerPort:      defaultServerPort,
		LogLevel:        defaultLogLevel,
		DocumentRoot:    defaultDocumentRoot,
		MaxDocumentSize: defaultMaxDocumentSize,
		SearchDebounce:  defaultSearchDebounce,
		SearchPageSize:  defaultSearchPageSize,
	}
}

func loadConfigFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	fc := &fileConfig{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), fc); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, fc); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, fc); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	return fc, nil
}

func (c *AppConfig) apply(fc *fileConfig) {
	c.ServerPort = firstSet(fc.ServerPort, c.ServerPort)
	c.LogLevel = firstSet(fc.LogLevel, c.LogLevel)
	c.SupabaseURL = firstSet(fc.SupabaseURL, c.SupabaseURL)
	c.SupabaseKey = firstSet(fc.SupabaseKey, c.SupabaseKey)
	c.DocumentRoot = firstSet(fc.DocumentRoot, c.DocumentRoot)
	if fc.MaxDocumentSize > 0 {
		c.MaxDocumentSize = fc.MaxDocumentSize
	}
	if d, err := time.ParseDuration(fc.SearchDebounce); err == nil && d >= 0 {
		c.SearchDebounce = d
	}
	if fc.SearchPageSize > 0 {
		c.SearchPageSize = fc.SearchPageSize
	}
	if len(fc.AllowedOrigins) > 0 {
		c.AllowedOrigins = fc.AllowedOrigins
	}
}

func (c *AppConfig) applyEnv() {
	// Cloud Run (and many PaaS) provide the listening port via PORT.
	// Keep SERVER_PORT for local/dev compatibility.
	c.ServerPort = getEnvOrDefault("PORT", getEnvOrDefault("SERVER_PORT", c.ServerPort))
	c.LogLevel = getEnvOrDefault("LOG_LEVEL", c.LogLevel)
	c.SupabaseURL = getEnvOrDefault("SUPABASE_URL", c.SupabaseURL)
	c.SupabaseKey = getEnvOrDefault("SUPABASE_ANON_KEY", c.SupabaseKey)
	c.DocumentRoot = getEnvOrDefault("DOCUMENT_ROOT", c.DocumentRoot)
	c.MaxDocumentSize = getEnvInt64OrDefault("MAX_DOCUMENT_SIZE", c.MaxDocumentSize)
	c.SearchDebounce = getEnvDurationOrDefault("SEARCH_DEBOUNCE", c.SearchDebounce)
	c.SearchPageSize = int(getEnvInt64OrDefault("SEARCH_PAGE_SIZE", int64(c.SearchPageSize)))
	if origins := getEnvOrDefault("ALLOWED_ORIGINS", ""); origins != "" {
		c.AllowedOrigins = splitList(origins)
	}
}

// GetServerPort returns the server port
func (c *AppConfig) GetServerPort() string {
	return c.ServerPort
}

// GetLogLevel returns the logging level
func (c *AppConfig) GetLogLevel() string {
	return c.LogLevel
}

// GetSupabaseURL returns the Supabase URL
func (c *AppConfig) GetSupabaseURL() string {
	return c.SupabaseURL
}

// GetSupabaseKey returns the Supabase anon key
func (c *AppConfig) GetSupabaseKey() string {
	return c.SupabaseKey
}

// GetDocumentRoot returns the directory documents are opened from
func (c *AppConfig) GetDocumentRoot() string {
	return c.DocumentRoot
}

// GetMaxDocumentSize returns the largest document the engine will open
func (c *AppConfig) GetMaxDocumentSize() int64 {
	return c.MaxDocumentSize
}

func (c *AppConfig) GetSearchDebounce() time.Duration {
	return c.SearchDebounce
}

func (c *AppConfig) GetSearchPageSize() int {
	return c.SearchPageSize
}

// GetAllowedOrigins returns the CORS origins; empty allows any origin
func (c *AppConfig) GetAllowedOrigins() []string {
	return append([]string(nil), c.AllowedOrigins...)
}

// Helper functions for environment variable handling
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64OrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil && intValue > 0 {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d >= 0 {
			return d
		}
	}
	return defaultValue
}

func firstSet(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
