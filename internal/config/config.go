// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads and saves the server-wide .mnemo/server.yaml
// configuration: the repository catalog, watched document folders, the
// embedding provider, and store locations.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	cieerrors "github.com/kraklabs/mnemo/internal/errors"
	"gopkg.in/yaml.v3"
)

const (
	defaultConfigDir  = ".mnemo"
	defaultConfigFile = "server.yaml"
	configVersion     = "1"
)

// Config represents the .mnemo/server.yaml configuration file.
type Config struct {
	Version        string           `yaml:"version"`
	DataDir        string           `yaml:"data_dir"`
	Engine         string           `yaml:"engine"` // rocksdb, sqlite, mem
	Embedding      EmbeddingConfig  `yaml:"embedding"`
	Repositories   []RepositoryCfg  `yaml:"repositories,omitempty"`
	WatchedFolders []WatchFolderCfg `yaml:"watched_folders,omitempty"`
	MCP            MCPConfig        `yaml:"mcp,omitempty"`
	Sessions       SessionConfig    `yaml:"sessions,omitempty"`
	Jobs           JobsConfig       `yaml:"jobs,omitempty"`
}

// EmbeddingConfig contains embedding provider configuration.
type EmbeddingConfig struct {
	Provider    string `yaml:"provider"` // ollama, nomic, openai, transformers, mock
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	Dimensions  int    `yaml:"dimensions,omitempty"`
	APIKey      string `yaml:"api_key,omitempty"`
	BatchSize   int    `yaml:"batch_size,omitempty"`
	MaxRetries  int    `yaml:"max_retries,omitempty"`
	TimeoutMs   int    `yaml:"timeout_ms,omitempty"`
	KeepAlive   string `yaml:"keep_alive,omitempty"`
}

// RepositoryCfg describes one entry in the repository catalog.
type RepositoryCfg struct {
	Name             string   `yaml:"name"`
	URL              string   `yaml:"url"`
	Branch           string   `yaml:"branch,omitempty"`
	IncludeExtensions []string `yaml:"include_extensions,omitempty"`
	Exclude          []string `yaml:"exclude,omitempty"`
	MaxFileSizeBytes int64    `yaml:"max_file_size_bytes,omitempty"`
	ParserMode       string   `yaml:"parser_mode,omitempty"` // auto, treesitter, simplified
	CSharpAnalyzerProject string `yaml:"csharp_analyzer_project,omitempty"`
}

// WatchFolderCfg describes one folder watched for opportunistic reingest.
type WatchFolderCfg struct {
	ID               string   `yaml:"id"`
	Path             string   `yaml:"path"`
	RepositoryName   string   `yaml:"repository_name"`
	IncludePatterns  []string `yaml:"include_patterns,omitempty"`
	ExcludePatterns  []string `yaml:"exclude_patterns,omitempty"`
	DebounceMs       int      `yaml:"debounce_ms,omitempty"`
}

// MCPConfig controls the MCP tool adapter's transports.
type MCPConfig struct {
	StdioEnabled bool   `yaml:"stdio_enabled"`
	HTTPAddr     string `yaml:"http_addr,omitempty"` // e.g. ":8642", path is always /mcp
}

// SessionConfig controls C12's streaming-transport session lifecycle.
type SessionConfig struct {
	MaxSessions       int `yaml:"max_sessions,omitempty"`
	SessionTTLMs      int `yaml:"session_ttl_ms,omitempty"`
	CleanupIntervalMs int `yaml:"cleanup_interval_ms,omitempty"`
}

// JobsConfig controls C12's async job tracker eviction policy.
type JobsConfig struct {
	MaxJobs      int `yaml:"max_jobs,omitempty"`
	MaxJobAgeMs  int `yaml:"max_job_age_ms,omitempty"`
}

// DefaultConfig returns a config with sensible defaults for local use.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".mnemo", "data")

	return &Config{
		Version: configVersion,
		DataDir: dataDir,
		Engine:  "rocksdb",
		Embedding: EmbeddingConfig{
			Provider:   "ollama",
			BaseURL:    getEnv("OLLAMA_HOST", "http://localhost:11434"),
			Model:      getEnv("OLLAMA_EMBED_MODEL", "nomic-embed-text"),
			Dimensions: 768,
			BatchSize:  32,
			MaxRetries: 3,
			TimeoutMs:  30000,
		},
		MCP: MCPConfig{
			StdioEnabled: true,
		},
		Sessions: SessionConfig{
			MaxSessions:       100,
			SessionTTLMs:      30 * 60 * 1000,
			CleanupIntervalMs: 5 * 60 * 1000,
		},
		Jobs: JobsConfig{
			MaxJobs:     500,
			MaxJobAgeMs: 24 * 60 * 60 * 1000,
		},
	}
}

// LoadConfig loads configuration from configPath. If configPath is empty,
// MNEMO_CONFIG_PATH is used; if that is unset too, .mnemo/server.yaml is
// auto-detected by walking up from the current directory.
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = os.Getenv("MNEMO_CONFIG_PATH")
	}
	if configPath == "" {
		var err error
		configPath, err = findConfigFile()
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath) //nolint:gosec // G304: path from config discovery
	if err != nil {
		return nil, cieerrors.NewConfigError(
			"Cannot read configuration file",
			fmt.Sprintf("Failed to read %s", configPath),
			"Check file permissions and ensure the file exists",
			err,
		)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, cieerrors.NewConfigError(
			"Invalid configuration format",
			"YAML parsing failed - the config file contains syntax errors",
			fmt.Sprintf("Edit %s to fix syntax errors, or run 'mnemo init --force' to recreate", configPath),
			err,
		)
	}

	if cfg.Version != configVersion {
		return nil, cieerrors.NewConfigError(
			"Unsupported configuration version",
			fmt.Sprintf("Config version '%s' is not supported (expected '%s')", cfg.Version, configVersion),
			"Run 'mnemo init --force' to regenerate the configuration file",
			nil,
		)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// SaveConfig writes the configuration to configPath as YAML.
func SaveConfig(cfg *Config, configPath string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return cieerrors.NewInternalError(
			"Cannot encode configuration",
			"YAML marshaling failed unexpectedly",
			"This is a bug. Please report it with your configuration details",
			err,
		)
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return cieerrors.NewPermissionError(
			"Cannot create configuration directory",
			fmt.Sprintf("Permission denied creating %s", dir),
			"Check directory permissions or run with appropriate privileges",
			err,
		)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return cieerrors.NewPermissionError(
			"Cannot write configuration file",
			fmt.Sprintf("Permission denied writing to %s", configPath),
			"Check file permissions and ensure sufficient disk space",
			err,
		)
	}

	return nil
}

// ConfigPath returns <dir>/.mnemo/server.yaml.
func ConfigPath(dir string) string {
	return filepath.Join(dir, defaultConfigDir, defaultConfigFile)
}

// ConfigDir returns <dir>/.mnemo.
func ConfigDir(dir string) string {
	return filepath.Join(dir, defaultConfigDir)
}

// RepoDataDir returns the CozoDB data directory for a named repository.
func RepoDataDir(cfg *Config, name string) string {
	return filepath.Join(cfg.DataDir, "repos", name, "cozo")
}

// FindRepository returns the configured entry for name, or nil.
func (c *Config) FindRepository(name string) *RepositoryCfg {
	for i := range c.Repositories {
		if c.Repositories[i].Name == name {
			return &c.Repositories[i]
		}
	}
	return nil
}

func findConfigFile() (string, error) {
	if configPath := os.Getenv("MNEMO_CONFIG_PATH"); configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}
		return "", cieerrors.NewConfigError(
			"Configuration file not found",
			fmt.Sprintf("MNEMO_CONFIG_PATH is set to '%s' but the file does not exist", configPath),
			"Fix the MNEMO_CONFIG_PATH environment variable or run 'mnemo init' to create a config",
			nil,
		)
	}

	dir, err := os.Getwd()
	if err != nil {
		return "", cieerrors.NewInternalError(
			"Cannot access working directory",
			"Failed to determine current directory path",
			"Check system permissions and try again",
			err,
		)
	}

	for {
		configPath := ConfigPath(dir)
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", cieerrors.NewConfigError(
		"Configuration not found",
		"No .mnemo/server.yaml file found in current directory or any parent directory",
		"Run 'mnemo init' to create a new configuration",
		nil,
	)
}

// applyEnvOverrides applies environment variable overrides to the
// embedding provider configuration, mirroring the teacher's project-level
// overrides one layer up at the server level.
func (c *Config) applyEnvOverrides() {
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		c.Embedding.BaseURL = host
	}
	if model := os.Getenv("OLLAMA_EMBED_MODEL"); model != "" {
		c.Embedding.Model = model
	}
	if key := os.Getenv("MNEMO_EMBEDDING_API_KEY"); key != "" {
		c.Embedding.APIKey = key
	}
	if dataDir := os.Getenv("MNEMO_DATA_DIR"); dataDir != "" {
		c.DataDir = dataDir
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
