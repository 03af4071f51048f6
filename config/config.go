package config

import (
	"os"
	"path/filepath"

	"github.com/duneagent/dune/errors"
	"gopkg.in/yaml.v3"
)

type FilesystemAccess struct {
	Hidden   []string `yaml:"hidden"`
	ReadOnly []string `yaml:"read_only"`
}

type MCPServer struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

type Toolset struct {
	Name  string   `yaml:"name"`
	Tools []string `yaml:"tools"`
}

type Config struct {
	LLMClient            string           `yaml:"llm"`
	Model                string           `yaml:"model"`
	MaxTurns             int              `yaml:"max_turns"`
	StreamMaxTurns       int              `yaml:"stream_max_turns"`
	Toolsets             []Toolset        `yaml:"toolsets"`
	AdditionalMCPServers []MCPServer      `yaml:"additional_mcp_servers"`
	AllowedCommands      []string         `yaml:"allowed_commands"`
	FilesystemAccess     FilesystemAccess `yaml:"filesystem_access"`
}

const (
	// DefaultMaxTurns bounds the blocking reasoning loop.
	DefaultMaxTurns = 25
	// DefaultStreamMaxTurns bounds the streaming reasoning loop.
	DefaultStreamMaxTurns = 10
)

// LoadConfig loads configuration from the user's home directory and the current
// working directory, with the latter taking precedence.
func LoadConfig() (*Config, error) {
	cfg := &Config{}

	// The agent's own state directory is never exposed to tools.
	cfg.FilesystemAccess.Hidden = append(cfg.FilesystemAccess.Hidden, ".dune", ".dune/**")

	// Load user-level config first
	home, err := os.UserHomeDir()
	if err == nil {
		userConfigPath := filepath.Join(home, ".dune", "config.yaml")
		if _, err := os.Stat(userConfigPath); err == nil {
			if err := loadFromFile(userConfigPath, cfg); err != nil {
				return nil, errors.Wrapf(err, "error loading user config")
			}
		}
	}

	// Load project-level config, overriding user-level
	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrapf(err, "could not get working directory")
	}
	projectConfigPath := filepath.Join(wd, ".dune", "config.yaml")
	if _, err := os.Stat(projectConfigPath); err == nil {
		if err := loadFromFile(projectConfigPath, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading project config")
		}
	}

	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	if cfg.StreamMaxTurns <= 0 {
		cfg.StreamMaxTurns = DefaultStreamMaxTurns
	}

	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Note: Unmarshal will overwrite fields present in the YAML. This provides
	// a simple merge where project-level config replaces user-level.
	return yaml.Unmarshal(data, cfg)
}

// GetToolset finds a toolset by name. A nil result means no toolset
// restriction applies and every registered tool is available. The "default"
// toolset is used when the named one is not found.
func (c *Config) GetToolset(name string) (*Toolset, error) {
	if len(c.Toolsets) == 0 {
		return nil, nil
	}
	if name == "" {
		name = "default"
	}
	for _, ts := range c.Toolsets {
		if ts.Name == name {
			return &ts, nil
		}
	}
	if name == "default" {
		return nil, errors.New("toolsets are configured but no 'default' toolset exists")
	}
	// Fall back to default if a specific toolset was requested but not found
	return c.GetToolset("default")
}
