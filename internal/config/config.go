// Package config loads broker configuration from a JSON, JSONC or YAML file
// placed beside the executable, layered over built-in defaults.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Config holds the options of both brokers. Each broker reads the sections
// it needs and ignores the rest.
type Config struct {
	Database DatabaseConfig `json:"database" yaml:"database"`
	LLM      LLMConfig      `json:"llm" yaml:"llm"`
	HTTP     HTTPConfig     `json:"http" yaml:"http"`
	Gmail    GmailConfig    `json:"gmail" yaml:"gmail"`
	Auth     AuthConfig     `json:"auth" yaml:"auth"`
	MCP      MCPConfig      `json:"mcp" yaml:"mcp"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging"`

	// Secrets read from --env-file. Never populated from the file itself.
	EnvAPIKey string `json:"-" yaml:"-"`

	dir string
}

type DatabaseConfig struct {
	APIURL  string   `json:"apiUrl" yaml:"apiUrl"`
	Timeout Duration `json:"timeout" yaml:"timeout"`
}

type LLMConfig struct {
	BaseURL          string       `json:"baseUrl" yaml:"baseUrl"`
	Endpoints        LLMEndpoints `json:"endpoints" yaml:"endpoints"`
	Provider         string       `json:"provider" yaml:"provider"`
	Model            string       `json:"model" yaml:"model"`
	MaxTokens        int          `json:"max_tokens" yaml:"max_tokens"`
	SystemPrompt     string       `json:"systemPrompt" yaml:"systemPrompt"`
	APIKey           string       `json:"api-key" yaml:"api-key"`
	AnthropicVersion string       `json:"anthropic-version" yaml:"anthropic-version"`
	Timeout          Duration     `json:"timeout" yaml:"timeout"`
}

type LLMEndpoints struct {
	Completions string `json:"completions" yaml:"completions"`
}

type HTTPConfig struct {
	Port           int      `json:"port" yaml:"port"`
	AllowedOrigins []string `json:"allowedOrigins" yaml:"allowedOrigins"`
}

type GmailConfig struct {
	APIURL string `json:"apiUrl" yaml:"apiUrl"`
}

type AuthConfig struct {
	TokenTTL Duration `json:"tokenTTL" yaml:"tokenTTL"`
}

type MCPConfig struct {
	Name            string `json:"name" yaml:"name"`
	Version         string `json:"version" yaml:"version"`
	ProtocolVersion string `json:"protocolVersion" yaml:"protocolVersion"`
}

type LoggingConfig struct {
	File  string `json:"file" yaml:"file"`
	Level string `json:"level" yaml:"level"`
}

// Default returns a configuration with every default applied. name is the
// broker identity advertised at initialize.
func Default(name string) *Config {
	return &Config{
		Database: DatabaseConfig{Timeout: Duration(15 * time.Second)},
		LLM: LLMConfig{
			Provider:         "anthropic",
			BaseURL:          "https://api.anthropic.com",
			Endpoints:        LLMEndpoints{Completions: "/v1/messages"},
			Model:            "claude-3-5-haiku-latest",
			MaxTokens:        1024,
			AnthropicVersion: "2023-06-01",
			Timeout:          Duration(30 * time.Second),
		},
		HTTP: HTTPConfig{
			Port:           3001,
			AllowedOrigins: []string{"chrome-extension://*"},
		},
		Gmail: GmailConfig{APIURL: "https://gmail.googleapis.com/"},
		Auth:  AuthConfig{TokenTTL: Duration(time.Hour)},
		MCP: MCPConfig{
			Name:            name,
			Version:         "1.0.0",
			ProtocolVersion: "2025-06-18",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads path over Default(name). A missing file is not an error when
// optional is set; the defaults are returned instead. PORT from the
// environment overrides http.port.
func Load(path, name string, optional bool) (*Config, error) {
	cfg := Default(name)
	cfg.dir = filepath.Dir(path)

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case optional && errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if v := os.Getenv("PORT"); v != "" {
		if err := cfg.setPort(v); err != nil {
			return nil, fmt.Errorf("PORT: %w", err)
		}
	}

	return cfg, cfg.Validate()
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	case ".json", ".jsonc", "":
		return json.Unmarshal(jsonc.ToJSON(data), cfg)
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
}

// ApplyEnvFile reads LLM_API_KEY and PORT from a dotenv file. The file is
// not exported into the process environment.
func (c *Config) ApplyEnvFile(path string) error {
	env, err := godotenv.Read(path)
	if err != nil {
		return fmt.Errorf("godotenv.Read failed: %w", err)
	}

	c.EnvAPIKey = env["LLM_API_KEY"]
	if v := env["PORT"]; v != "" && os.Getenv("PORT") == "" {
		if err := c.setPort(v); err != nil {
			return fmt.Errorf("PORT in %s: %w", path, err)
		}
	}
	return nil
}

func (c *Config) setPort(v string) error {
	port, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("invalid port %q", v)
	}
	if port < 0 || port > 65535 {
		return fmt.Errorf("port %d out of range", port)
	}
	c.HTTP.Port = port
	return nil
}

// Validate reports the first invalid option.
func (c *Config) Validate() error {
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.HTTP.Port)
	}
	if c.Database.APIURL != "" {
		if err := checkURL("database.apiUrl", c.Database.APIURL); err != nil {
			return err
		}
	}
	if err := checkURL("llm.baseUrl", c.LLM.BaseURL); err != nil {
		return err
	}
	if err := checkURL("gmail.apiUrl", c.Gmail.APIURL); err != nil {
		return err
	}
	switch strings.ToLower(c.LLM.Provider) {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("llm.provider %q is not supported", c.LLM.Provider)
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("llm.max_tokens must be positive")
	}
	if c.Database.Timeout <= 0 || c.LLM.Timeout <= 0 || c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("timeouts and auth.tokenTTL must be positive")
	}
	if c.MCP.Name == "" || c.MCP.Version == "" {
		return fmt.Errorf("mcp.name and mcp.version are required")
	}
	return nil
}

func checkURL(option, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s %q is not an absolute URL", option, raw)
	}
	return nil
}

// LogFile returns logging.file resolved against the config file directory,
// or "" when logging goes to stderr.
func (c *Config) LogFile() string {
	if c.Logging.File == "" || filepath.IsAbs(c.Logging.File) {
		return c.Logging.File
	}
	return filepath.Join(c.dir, c.Logging.File)
}

// CompletionsURL joins llm.baseUrl and llm.endpoints.completions.
func (c *Config) CompletionsURL() string {
	endpoint := c.LLM.Endpoints.Completions
	if endpoint == "" {
		if strings.EqualFold(c.LLM.Provider, "openai") {
			endpoint = "/v1/chat/completions"
		} else {
			endpoint = "/v1/messages"
		}
	}
	return strings.TrimRight(c.LLM.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
}

// DefaultPath returns <dir of executable>/<name>.json.
func DefaultPath(name string) string {
	exe, err := os.Executable()
	if err != nil {
		return name + ".json"
	}
	return filepath.Join(filepath.Dir(exe), name+".json")
}
