// Package config handles Larder configuration loading.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultDataDir is where documents live when nothing overrides it.
// Matches the add-on's share mount inside Home Assistant OS.
const DefaultDataDir = "/share/meal-planner"

// DefaultPort is the dashboard API port.
const DefaultPort = 5005

// DefaultSearchPaths returns the config file search order.
// An explicit path (from --config flag) is checked first.
// Then: ./larder.yaml, /config/larder.yaml (HA add-on config mount),
// /etc/larder/larder.yaml.
func DefaultSearchPaths() []string {
	return []string{
		"larder.yaml",
		"/config/larder.yaml",
		"/etc/larder/larder.yaml",
	}
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found. A missing
// config file is not fatal for the server — callers fall back to Default.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Larder configuration.
type Config struct {
	Listen    ListenConfig    `yaml:"listen"`
	DataDir   string          `yaml:"data_dir"`
	LogLevel  string          `yaml:"log_level"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	UsageDB   string          `yaml:"usage_db"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// AnthropicConfig defines Anthropic API settings. The API key here is
// the lowest-priority credential source; the .api_key file in the data
// directory and the ANTHROPIC_API_KEY environment variable both win
// over it.
type AnthropicConfig struct {
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

// MQTTConfig defines the optional Home Assistant MQTT announcer.
// Leave broker_url empty to disable MQTT entirely.
type MQTTConfig struct {
	BrokerURL       string `yaml:"broker_url"` // e.g. mqtt://core-mosquitto:1883
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	DiscoveryPrefix string `yaml:"discovery_prefix"` // default: homeassistant
	TopicPrefix     string `yaml:"topic_prefix"`     // default: larder
}

// Enabled reports whether the announcer should run at all.
func (m MQTTConfig) Enabled() bool {
	return m.BrokerURL != ""
}

// Load reads configuration from a YAML file. Environment variables in
// the file body (${VAR} or $VAR) are expanded before parsing. Fields
// absent from the file keep their Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen:  ListenConfig{Port: DefaultPort},
		DataDir: DefaultDataDir,
		Anthropic: AnthropicConfig{
			Model:     "claude-haiku-4-5-20251001",
			MaxTokens: 4096,
		},
		MQTT: MQTTConfig{
			DiscoveryPrefix: "homeassistant",
			TopicPrefix:     "larder",
		},
	}
}

// ApplyEnv overlays process environment settings that predate the
// config file: DATA_DIR (the original add-on's knob) overrides the
// configured data directory.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("DATA_DIR"); v != "" {
		c.DataDir = v
	}
}
