package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// TokenEnv overrides the shared service token on both sides.
const TokenEnv = "RESEARCH_TOKEN"

type Config struct {
	Client ClientConfig `yaml:"client"`
	Server ServerConfig `yaml:"server"`
	Engine EngineConfig `yaml:"engine"`
	LLM    LLMConfig    `yaml:"llm"`
	Log    LogConfig    `yaml:"log"`
}

type ClientConfig struct {
	ServiceURL string `yaml:"service_url"`
	// WSURL is derived from ServiceURL when empty.
	WSURL           string        `yaml:"ws_url"`
	Token           string        `yaml:"token"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	AnalysisTimeout time.Duration `yaml:"analysis_timeout"`
}

type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	Token          string   `yaml:"token"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	Backlog        int      `yaml:"backlog"`
	MaxClients     int      `yaml:"max_clients"`
}

type EngineConfig struct {
	Kind           string        `yaml:"kind"`
	StepDelay      time.Duration `yaml:"step_delay"`
	UnknownSymbols []string      `yaml:"unknown_symbols"`
}

type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	// File receives TUI logs; the terminal belongs to the UI.
	File string `yaml:"file"`
}

const (
	EngineScripted = "scripted"
	EngineLLM      = "llm"
)

func Default() *Config {
	return &Config{
		Client: ClientConfig{
			ServiceURL: "http://127.0.0.1:5000",
		},
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           5000,
			AllowedOrigins: []string{"http://localhost:5173"},
			Backlog:        256,
			MaxClients:     100,
		},
		Engine: EngineConfig{
			Kind:           EngineScripted,
			StepDelay:      1500 * time.Millisecond,
			UnknownSymbols: []string{"ZZZZ"},
		},
		LLM: LLMConfig{
			BaseURL:     "https://api.groq.com/openai/v1",
			Model:       "llama3-70b-8192",
			APIKeyEnv:   "GROQ_API_KEY",
			MaxTokens:   1024,
			Temperature: 0.2,
		},
		Log: LogConfig{
			Level: "info",
			File:  "research.log",
		},
	}
}

// Load overlays the YAML file at path onto the defaults. An empty path or a
// missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if tok := os.Getenv(TokenEnv); tok != "" {
		cfg.Client.Token = tok
		cfg.Server.Token = tok
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.Backlog < 0 {
		return fmt.Errorf("server.backlog must not be negative")
	}
	switch c.Engine.Kind {
	case EngineScripted, EngineLLM:
	default:
		return fmt.Errorf("engine.kind %q: want %q or %q", c.Engine.Kind, EngineScripted, EngineLLM)
	}
	if c.Client.RequestTimeout < 0 || c.Client.AnalysisTimeout < 0 {
		return fmt.Errorf("client timeouts must not be negative")
	}
	return nil
}

// Addr is the service listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// APIKey reads the LLM key from the environment variable named in the config.
func (c *Config) APIKey() string {
	if c.LLM.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.LLM.APIKeyEnv)
}
