package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultHTTPPort      = 8080
	DefaultDatabasePath  = "data/notes.db"
	DefaultBusyTimeout   = 5 * time.Second
	DefaultTokenTTL      = 7 * 24 * time.Hour
	DefaultUploadDir     = "data/uploads"
	DefaultAIModel       = "gpt-3.5-turbo"
	DefaultAIMaxTokens   = 2000
	DefaultAITemperature = 0.7
	DefaultAIMinOutput   = 10
)

// Config holds the server configuration parsed from the `server:` section
// of config.yaml.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// HTTPPort is the port the REST API, SSE stream and WebSocket hub listen
	// on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// Log controls runtime logging.
	Log LogConfig `yaml:"log"`

	// Database configures the SQLite note/user store.
	Database DatabaseConfig `yaml:"database"`

	// Auth configures token issuance and verification.
	Auth AuthConfig `yaml:"auth"`

	// AI configures the upstream text-transform provider.
	AI AIConfig `yaml:"ai"`

	// Upload configures file upload handling.
	Upload UploadConfig `yaml:"upload"`

	// CORS lists origins allowed to call the REST API from a browser.
	CORS CORSConfig `yaml:"cors"`
}

// LogConfig controls runtime logging.
type LogConfig struct {
	// Level is one of: debug | info | warn | error. Default: info.
	// This is the only setting the config watcher applies at runtime;
	// everything else requires a restart.
	Level string `yaml:"level"`
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	// Path is the SQLite database file. Parent directories are created on open.
	Path string `yaml:"path"`

	// BusyTimeout is passed to SQLite's busy_timeout pragma. Default: 5s.
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// AuthConfig controls token issuance for the REST API and WebSocket handshake.
type AuthConfig struct {
	// SecretEnv is the name of the environment variable holding the HMAC
	// signing secret. Required.
	SecretEnv string `yaml:"secret_env"`

	// TokenTTL is how long issued tokens remain valid. Default: 168h (7 days).
	TokenTTL time.Duration `yaml:"token_ttl"`
}

// Secret returns the signing secret resolved from the environment.
func (a AuthConfig) Secret() string {
	if a.SecretEnv == "" {
		return ""
	}
	return os.Getenv(a.SecretEnv)
}

// AIConfig configures the upstream chat-completion provider.
type AIConfig struct {
	// APIKeyEnv is the name of the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env"`

	// BaseURL overrides the provider endpoint, for OpenAI-compatible services.
	// Empty means the provider default.
	BaseURL string `yaml:"base_url"`

	// Model is the chat model name (default gpt-3.5-turbo).
	Model string `yaml:"model"`

	// MaxTokens caps the completion length (default 2000).
	MaxTokens int `yaml:"max_tokens"`

	// Temperature is the sampling temperature (default 0.7).
	Temperature float64 `yaml:"temperature"`

	// MinOutputChars is the threshold below which a completed transform is
	// flagged as possibly incomplete (default 10).
	MinOutputChars int `yaml:"min_output_chars"`
}

// APIKey returns the provider API key resolved from the environment.
func (a AIConfig) APIKey() string {
	if a.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(a.APIKeyEnv)
}

// UploadConfig configures file upload handling.
type UploadConfig struct {
	// Dir is where uploaded files are written. Created on startup.
	Dir string `yaml:"dir"`
}

// CORSConfig lists origins allowed to call the API from a browser.
type CORSConfig struct {
	Origins []string `yaml:"origins"`
}

// Load reads and parses the config file at path. Missing fields are filled
// with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
			Log:      LogConfig{Level: "info"},
			Database: DatabaseConfig{
				Path:        DefaultDatabasePath,
				BusyTimeout: DefaultBusyTimeout,
			},
			Auth: AuthConfig{
				SecretEnv: "INKSTREAM_SECRET",
				TokenTTL:  DefaultTokenTTL,
			},
			AI: AIConfig{
				APIKeyEnv:      "OPENAI_API_KEY",
				Model:          DefaultAIModel,
				MaxTokens:      DefaultAIMaxTokens,
				Temperature:    DefaultAITemperature,
				MinOutputChars: DefaultAIMinOutput,
			},
			Upload: UploadConfig{Dir: DefaultUploadDir},
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", cfg.Server.HTTPPort)
	}
	switch cfg.Server.Log.Level {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("server.log.level %q unknown: want debug|info|warn|error", cfg.Server.Log.Level)
	}
	if cfg.Server.Database.Path == "" {
		return fmt.Errorf("server.database.path must not be empty")
	}
	if cfg.Server.Database.BusyTimeout < 0 {
		return fmt.Errorf("server.database.busy_timeout must not be negative")
	}
	if cfg.Server.Auth.TokenTTL <= 0 {
		return fmt.Errorf("server.auth.token_ttl must be positive")
	}
	if cfg.Server.AI.MaxTokens <= 0 {
		return fmt.Errorf("server.ai.max_tokens must be positive")
	}
	if cfg.Server.AI.Temperature < 0 || cfg.Server.AI.Temperature > 2 {
		return fmt.Errorf("server.ai.temperature %g is out of range [0, 2]", cfg.Server.AI.Temperature)
	}
	if cfg.Server.AI.MinOutputChars < 0 {
		return fmt.Errorf("server.ai.min_output_chars must not be negative")
	}
	if cfg.Server.Upload.Dir == "" {
		return fmt.Errorf("server.upload.dir must not be empty")
	}
	return nil
}
