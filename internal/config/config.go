// Package config loads the YAML configuration of connectivity-listener.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"connectivity-listener/internal/watcher"
)

type Config struct {
	Log       LogConfig       `yaml:"log"`
	Server    ServerConfig    `yaml:"server"`
	Bluetooth BluetoothConfig `yaml:"bluetooth"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

type ServerConfig struct {
	Listen     string `yaml:"listen"`
	SendBuffer int    `yaml:"send_buffer"`
}

type BluetoothConfig struct {
	// Adapter is a BlueZ object path; empty picks the first adapter.
	Adapter string `yaml:"adapter"`
	// ConnectCapabilitySince is the first host version requiring
	// bluetooth_connect instead of bluetooth.
	ConnectCapabilitySince string `yaml:"connect_capability_since"`
	// CapabilityGroups maps a capability to the Unix groups granting it.
	CapabilityGroups map[string][]string `yaml:"capability_groups"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Server: ServerConfig{
			Listen:     "127.0.0.1:8765",
			SendBuffer: 16,
		},
		Bluetooth: BluetoothConfig{
			ConnectCapabilitySince: "5.10",
			CapabilityGroups: map[string][]string{
				string(watcher.CapabilityBluetoothConnect): {"bluetooth"},
				string(watcher.CapabilityBluetooth):        {"bluetooth", "netdev"},
			},
		},
	}
}

// Load reads path over the defaults. An empty path or a missing file yields
// the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q: want debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: log.format %q: want text|json", c.Log.Format)
	}
	if c.Log.File != "" && c.Log.MaxSizeMB <= 0 {
		return errors.New("config: log.max_size_mb must be positive")
	}
	if c.Server.Listen == "" {
		return errors.New("config: server.listen required")
	}
	if c.Server.SendBuffer <= 0 {
		return errors.New("config: server.send_buffer must be positive")
	}
	if _, err := c.BluetoothPolicy(); err != nil {
		return err
	}
	for k := range c.Bluetooth.CapabilityGroups {
		switch watcher.Capability(k) {
		case watcher.CapabilityBluetoothConnect, watcher.CapabilityBluetooth:
		default:
			return fmt.Errorf("config: bluetooth.capability_groups: unknown capability %q", k)
		}
	}
	if c.Bluetooth.Adapter != "" && !strings.HasPrefix(c.Bluetooth.Adapter, "/") {
		return fmt.Errorf("config: bluetooth.adapter %q is not an object path", c.Bluetooth.Adapter)
	}
	return nil
}

// BluetoothPolicy returns the capability selection policy.
func (c *Config) BluetoothPolicy() (watcher.BluetoothPolicy, error) {
	v, err := watcher.ParseVersion(c.Bluetooth.ConnectCapabilitySince)
	if err != nil {
		return watcher.BluetoothPolicy{}, fmt.Errorf("config: bluetooth.connect_capability_since: %w", err)
	}
	return watcher.BluetoothPolicy{ConnectSince: v}, nil
}

// CapabilityGroups converts the configured groups to watcher capabilities.
func (c *Config) CapabilityGroups() map[watcher.Capability][]string {
	out := make(map[watcher.Capability][]string, len(c.Bluetooth.CapabilityGroups))
	for k, v := range c.Bluetooth.CapabilityGroups {
		out[watcher.Capability(k)] = append([]string(nil), v...)
	}
	return out
}
