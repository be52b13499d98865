package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Providers []*ProviderConfig `yaml:"providers" json:"providers"`
	Servers   []*ServerConfig   `yaml:"servers" json:"servers"`
	Server    ListenConfig      `yaml:"server" json:"server"`
	Flows     FlowsConfig       `yaml:"flows" json:"flows"`
}

type ListenConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

const (
	// The control API is consumed by a local UI or CLI only.
	defaultListenAddr = "127.0.0.1:9096"
)

func Load() (*Config, error) {
	fileName := defaultConfigPath()
	if fn := os.Getenv("OAUTH2_FLOW_COORDINATOR_CONFIG"); fn != "" {
		fileName = fn
	}
	var cfg Config
	f, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.ValidateAndInitialize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/etc/oauth2-flow-coordinator/config.yaml"
	}
	return filepath.Join(home, ".config", "oauth2-flow-coordinator", "config.yaml")
}

func (c *Config) ValidateAndInitialize() error {
	// Apply defaults.
	if c.Providers == nil {
		c.Providers = []*ProviderConfig{}
	}
	if c.Servers == nil {
		c.Servers = []*ServerConfig{}
	}
	if c.Server.Addr == "" {
		c.Server.Addr = defaultListenAddr
	}
	c.Flows.applyDefaults()

	// Validate providers.
	seenProviders := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if err := p.validateAndInitialize(); err != nil {
			return fmt.Errorf("providers[%d]: %w", i, err)
		}
		if seenProviders[p.ID] {
			return fmt.Errorf("providers[%d]: duplicate provider id '%s'", i, p.ID)
		}
		seenProviders[p.ID] = true
	}

	// Validate MCP servers.
	seenServers := make(map[string]bool, len(c.Servers))
	for i, s := range c.Servers {
		if err := s.validateAndInitialize(); err != nil {
			return fmt.Errorf("servers[%d]: %w", i, err)
		}
		if seenServers[s.ID] {
			return fmt.Errorf("servers[%d]: duplicate server id '%s'", i, s.ID)
		}
		seenServers[s.ID] = true
	}

	return c.Flows.validate()
}

func (c *Config) LookupProvider(id string) (*ProviderConfig, bool) {
	for _, p := range c.Providers {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

func (c *Config) LookupServer(id string) (*ServerConfig, bool) {
	for _, s := range c.Servers {
		if s.ID == id {
			return s, true
		}
	}
	return nil, false
}
