// Package config loads jl-assistant settings from defaults, an optional
// YAML file, a .env file and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v10"
	"github.com/javalab/jl-assistant/internal"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DirName is the per-user directory under $HOME holding config and data
	DirName = ".jl-assistant"

	DefaultGatewayPath = "/functions/v1/jl-assistant"
	DefaultUpstreamURL = "https://ai.gateway.lovable.dev/v1/chat/completions"
	DefaultModel       = "google/gemini-2.5-flash"
)

// Config is the complete application configuration
type Config struct {
	Chat    ChatConfig    `yaml:"chat"`
	Store   StoreConfig   `yaml:"store"`
	Log     LogConfig     `yaml:"log"`
	Gateway GatewayConfig `yaml:"gateway"`
}

// ChatConfig configures the chat client
type ChatConfig struct {
	GatewayURL      string `yaml:"gateway_url" env:"JL_GATEWAY_URL"`
	APIKey          string `yaml:"api_key" env:"JL_API_KEY"`
	Greeting        string `yaml:"greeting" env:"JL_GREETING"`
	PersistGreeting bool   `yaml:"persist_greeting" env:"JL_PERSIST_GREETING"`
}

// StoreConfig selects the conversation store
type StoreConfig struct {
	Driver string `yaml:"driver" env:"JL_STORE_DRIVER"`
	DSN    string `yaml:"dsn" env:"JL_STORE_DSN"`
}

// LogConfig controls log output
type LogConfig struct {
	Level  string `yaml:"level" env:"JL_LOG_LEVEL"`
	Format string `yaml:"format" env:"JL_LOG_FORMAT"`
}

// GatewayConfig configures the serve command
type GatewayConfig struct {
	Listen           string `yaml:"listen" env:"JL_GATEWAY_LISTEN"`
	Path             string `yaml:"path" env:"JL_GATEWAY_PATH"`
	UpstreamURL      string `yaml:"upstream_url" env:"JL_UPSTREAM_URL"`
	UpstreamKey      string `yaml:"upstream_api_key" env:"JL_UPSTREAM_API_KEY"`
	Model            string `yaml:"model" env:"JL_MODEL"`
	SystemPromptFile string `yaml:"system_prompt_file" env:"JL_SYSTEM_PROMPT_FILE"`
	CORSOrigin       string `yaml:"cors_origin" env:"JL_CORS_ORIGIN"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Chat: ChatConfig{
			GatewayURL: "http://localhost:8787" + DefaultGatewayPath,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			DSN:    filepath.Join(DefaultDir(), "chat.db"),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Gateway: GatewayConfig{
			Listen:      ":8787",
			Path:        DefaultGatewayPath,
			UpstreamURL: DefaultUpstreamURL,
			Model:       DefaultModel,
			CORSOrigin:  "*",
		},
	}
}

// DefaultDir returns ~/.jl-assistant, or a relative directory when the
// home directory cannot be resolved
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DirName
	}
	return filepath.Join(home, DirName)
}

// DefaultPath returns the default config file location
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

// Options controls where Load looks for configuration
type Options struct {
	// Path is the YAML file to read. Empty means DefaultPath, which may be absent.
	Path string
	// EnvFiles are dotenv files loaded before the environment is parsed.
	// Missing files are ignored.
	EnvFiles []string
}

// Load builds the configuration: defaults, then the YAML file, then dotenv
// files, then environment variables. Unset variables keep earlier values.
func Load(opts Options) (*Config, error) {
	cfg := Default()

	path := opts.Path
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if err := cfg.loadFile(path, explicit); err != nil {
		return nil, err
	}

	for _, f := range opts.EnvFiles {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, &internal.ParseError{Source: "env", Key: f, Err: err}
		}
		internal.LogDebug("Loaded environment from %s", f)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, &internal.ParseError{Source: "env", Key: "JL_*", Err: err}
	}

	cfg.Store.DSN = expandHome(cfg.Store.DSN)
	cfg.Gateway.SystemPromptFile = expandHome(cfg.Gateway.SystemPromptFile)
	return cfg, nil
}

func (c *Config) loadFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return &internal.ParseError{Source: "config", Key: path, Err: err}
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return &internal.ParseError{Source: "config", Key: path, Err: err}
	}
	internal.LogDebug("Loaded config from %s", path)
	return nil
}

// ValidateChat reports settings the chat command cannot run without
func (c *Config) ValidateChat() error {
	var problems []string
	if strings.TrimSpace(c.Chat.GatewayURL) == "" {
		problems = append(problems, "chat.gateway_url (JL_GATEWAY_URL) is required")
	}
	if err := c.ValidateStore(); err != nil {
		problems = append(problems, err.Error())
	}
	return joinProblems(problems)
}

// ValidateStore reports an unusable store selection
func (c *Config) ValidateStore() error {
	switch strings.ToLower(c.Store.Driver) {
	case "sqlite", "":
	case "postgres", "postgresql":
		if strings.TrimSpace(c.Store.DSN) == "" {
			return fmt.Errorf("store.dsn (JL_STORE_DSN) is required for postgres")
		}
	default:
		return fmt.Errorf("store.driver %q is not supported (sqlite, postgres)", c.Store.Driver)
	}
	return nil
}

// ValidateGateway reports settings the serve command cannot run without.
// A missing upstream key is not fatal here; requests fail until it is set.
func (c *Config) ValidateGateway() error {
	var problems []string
	if strings.TrimSpace(c.Gateway.Listen) == "" {
		problems = append(problems, "gateway.listen (JL_GATEWAY_LISTEN) is required")
	}
	if !strings.HasPrefix(c.Gateway.Path, "/") {
		problems = append(problems, "gateway.path must start with /")
	}
	if strings.TrimSpace(c.Gateway.UpstreamURL) == "" {
		problems = append(problems, "gateway.upstream_url (JL_UPSTREAM_URL) is required")
	}
	if strings.TrimSpace(c.Gateway.Model) == "" {
		problems = append(problems, "gateway.model (JL_MODEL) is required")
	}
	return joinProblems(problems)
}

func joinProblems(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
