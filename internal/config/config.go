// Package config is used to load the configuration file
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

type tools struct {
	Tsschecker string `mapstructure:"tsschecker"`
	Pzb        string `mapstructure:"pzb"`
}

type manifest struct {
	Native   bool   `mapstructure:"native"`
	Proxy    string `mapstructure:"proxy"`
	Insecure bool   `mapstructure:"insecure"`
}

type ssh struct {
	User     string `mapstructure:"user"`
	Port     string `mapstructure:"port"`
	Key      string `mapstructure:"key"`
	Insecure bool   `mapstructure:"insecure"`
}

type vault struct {
	Dir string `mapstructure:"dir"`
}

// Config is the configuration struct
type Config struct {
	// Blobs is the directory holding one sub directory per device
	Blobs    string   `mapstructure:"blobs"`
	Tools    tools    `mapstructure:"tools"`
	Manifest manifest `mapstructure:"manifest"`
	SSH      ssh      `mapstructure:"ssh"`
	Vault    vault    `mapstructure:"vault"`
}

func expandHome(path string) (string, error) {
	path = os.ExpandEnv(path)
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %v", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

func (c *Config) verify() error {
	var err error

	if c.Blobs == "" {
		c.Blobs = "blobs"
	}
	if c.Blobs, err = expandHome(c.Blobs); err != nil {
		return err
	}
	if fi, err := os.Stat(c.Blobs); err == nil && !fi.IsDir() {
		return fmt.Errorf("blobs path %s is not a directory", c.Blobs)
	}

	if c.Tools.Tsschecker == "" {
		c.Tools.Tsschecker = "tsschecker"
	}
	if c.Tools.Pzb == "" {
		c.Tools.Pzb = "pzb"
	}

	if c.SSH.User == "" {
		c.SSH.User = "mobile"
	}
	if c.SSH.Port == "" {
		c.SSH.Port = "22"
	}
	if port, err := strconv.Atoi(c.SSH.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid ssh port %q", c.SSH.Port)
	}
	if len(c.SSH.Key) > 0 {
		if c.SSH.Key, err = expandHome(c.SSH.Key); err != nil {
			return err
		}
	}

	if c.Vault.Dir == "" {
		c.Vault.Dir = "~/.config/blobkeep"
	}
	if c.Vault.Dir, err = expandHome(c.Vault.Dir); err != nil {
		return err
	}

	return nil
}

// Load unmarshals and verifies the configuration held by v
func Load(v *viper.Viper) (*Config, error) {
	var c Config

	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal: %v", err)
	}

	if err := c.verify(); err != nil {
		return nil, fmt.Errorf("config: failed to verify: %v", err)
	}

	return &c, nil
}

// LoadConfig loads the configuration file
func LoadConfig() (*Config, error) {
	return Load(viper.GetViper())
}
