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

// This file holds the per-project `.cie/project.yaml` configuration used
// by the standalone, single-repository commands (init, index, status,
// query, reset, and the --mcp stdio server) inherited from the original
// CLI. The new multi-repository daemon commands (serve, watch, update) use
// the separate `.mnemo/server.yaml` catalog in internal/config instead.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kraklabs/mnemo/internal/errors"
	"gopkg.in/yaml.v3"
)

const (
	defaultConfigDir  = ".cie"
	defaultConfigFile = "project.yaml"
	configVersion     = "1"
)

// Config represents the .cie/project.yaml configuration file.
type Config struct {
	Version   string          `yaml:"version"`
	ProjectID string          `yaml:"project_id"`
	CIE       CIEConfig       `yaml:"cie"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Indexing  IndexingConfig  `yaml:"indexing"`
	Watch     WatchConfig     `yaml:"watch,omitempty"`
	LLM       LLMConfig       `yaml:"llm,omitempty"` // LLM for narrative generation and concept tagging
}

// CIEConfig contains server configuration.
type CIEConfig struct {
	PrimaryHub string `yaml:"primary_hub"` // gRPC address for writes
	EdgeCache  string `yaml:"edge_cache"`  // HTTP URL for queries
}

// EmbeddingConfig contains embedding provider configuration.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // ollama, nomic, openai, mock
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions,omitempty"` // embedding dimensions (768 for nomic, 1536 for openai)
	APIKey     string `yaml:"api_key,omitempty"`    // API key (optional for local models)
}

// IndexingConfig contains indexing settings.
type IndexingConfig struct {
	ParserMode            string   `yaml:"parser_mode"`   // auto, treesitter, simplified
	BatchTarget           int      `yaml:"batch_target"`  // mutations per batch
	MaxFileSize           int64    `yaml:"max_file_size"` // bytes
	Exclude               []string `yaml:"exclude"`       // glob patterns
	CSharpAnalyzerProject string   `yaml:"csharp_analyzer_project,omitempty"`
}

// WatchConfig controls the folder watcher's debounce and filtering.
type WatchConfig struct {
	DebounceMs            int      `yaml:"debounce_ms,omitempty"`
	Include               []string `yaml:"include,omitempty"`
	Exclude               []string `yaml:"exclude,omitempty"`
	MaxConcurrentWatchers int      `yaml:"max_concurrent_watchers,omitempty"`
}

// LLMConfig holds LLM provider settings used for analyze narratives and
// best-effort concept tagging.
type LLMConfig struct {
	Enabled   bool   `yaml:"enabled"`              // Enable LLM narrative/tagging
	BaseURL   string `yaml:"base_url"`             // OpenAI-compatible API URL
	Model     string `yaml:"model"`                // Model name
	APIKey    string `yaml:"api_key,omitempty"`    // API key (optional for local models)
	MaxTokens int    `yaml:"max_tokens,omitempty"` // Max tokens for response (default: 2000)
}

// DefaultConfig returns a config with sensible defaults for local development.
//
// Parameters:
//   - projectID: Project identifier (typically the directory name)
func DefaultConfig(projectID string) *Config {
	return &Config{
		Version:   configVersion,
		ProjectID: projectID,
		CIE: CIEConfig{
			// Primary Hub and Edge Cache are for enterprise/distributed deployments only.
			// Leave empty for standalone mode (local CozoDB storage).
			PrimaryHub: getEnv("CIE_PRIMARY_HUB", ""),
			EdgeCache:  getEnv("CIE_BASE_URL", ""),
		},
		Embedding: EmbeddingConfig{
			Provider:   "ollama",
			BaseURL:    getEnv("OLLAMA_HOST", "http://localhost:11434"),
			Model:      getEnv("OLLAMA_EMBED_MODEL", "nomic-embed-text"),
			Dimensions: 768, // nomic-embed-text default; use 1536 for OpenAI
		},
		Indexing: IndexingConfig{
			ParserMode:  "auto",
			BatchTarget: 2000,
			MaxFileSize: 1048576, // 1MB
			Exclude: []string{
				".git/**",
				"node_modules/**",
				"vendor/**",
				"dist/**",
				"build/**",
				"*.o",
				"*.so",
				"*.dylib",
				"*.exe",
			},
		},
		Watch: WatchConfig{
			DebounceMs:            500,
			MaxConcurrentWatchers: 20,
		},
	}
}

// LoadConfig loads configuration from the specified path or finds it automatically.
//
// If configPath is empty, it searches for .cie/project.yaml in the current directory
// and parent directories. The CIE_CONFIG_PATH environment variable can override the
// search path.
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = os.Getenv("CIE_CONFIG_PATH")
	}
	if configPath == "" {
		var err error
		configPath, err = findConfigFile()
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath) //nolint:gosec // G304: Path comes from user config or discovery
	if err != nil {
		return nil, errors.NewConfigError(
			"Cannot read configuration file",
			fmt.Sprintf("Failed to read %s", configPath),
			"Check file permissions and ensure the file exists",
			err,
		)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.NewConfigError(
			"Invalid configuration format",
			"YAML parsing failed - the config file contains syntax errors",
			fmt.Sprintf("Edit %s to fix syntax errors, or run 'mnemo init --force' to recreate", configPath),
			err,
		)
	}

	if cfg.Version != configVersion {
		return nil, errors.NewConfigError(
			"Unsupported configuration version",
			fmt.Sprintf("Config version '%s' is not supported (expected '%s')", cfg.Version, configVersion),
			"Run 'mnemo init --force' to regenerate the configuration file",
			nil,
		)
	}

	cfg.applyEnvOverrides()

	return &cfg, nil
}

// SaveConfig writes the configuration to the specified path as YAML.
func SaveConfig(cfg *Config, configPath string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.NewInternalError(
			"Cannot encode configuration",
			"YAML marshaling failed unexpectedly",
			"This is a bug. Please report it with your configuration details",
			err,
		)
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return errors.NewPermissionError(
			"Cannot create configuration directory",
			fmt.Sprintf("Permission denied creating %s", dir),
			"Check directory permissions or run with appropriate privileges",
			err,
		)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return errors.NewPermissionError(
			"Cannot write configuration file",
			fmt.Sprintf("Permission denied writing to %s", configPath),
			"Check file permissions and ensure sufficient disk space",
			err,
		)
	}

	return nil
}

// ConfigPath returns the path to the config file in the given directory.
func ConfigPath(dir string) string {
	return filepath.Join(dir, defaultConfigDir, defaultConfigFile)
}

// ConfigDir returns the path to the .cie directory in the given directory.
func ConfigDir(dir string) string {
	return filepath.Join(dir, defaultConfigDir)
}

// findConfigFile searches for .cie/project.yaml in current and parent directories.
func findConfigFile() (string, error) {
	if configPath := os.Getenv("CIE_CONFIG_PATH"); configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}
		return "", errors.NewConfigError(
			"Configuration file not found",
			fmt.Sprintf("CIE_CONFIG_PATH is set to '%s' but the file does not exist", configPath),
			"Fix the CIE_CONFIG_PATH environment variable or run 'mnemo init' to create a config",
			nil,
		)
	}

	dir, err := os.Getwd()
	if err != nil {
		return "", errors.NewInternalError(
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

	return "", errors.NewConfigError(
		"Configuration not found",
		"No .cie/project.yaml file found in current directory or any parent directory",
		"Run 'mnemo init' to create a new configuration",
		nil,
	)
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("CIE_BASE_URL"); url != "" {
		c.CIE.EdgeCache = url
	}
	if url := os.Getenv("CIE_PRIMARY_HUB"); url != "" {
		c.CIE.PrimaryHub = url
	}
	if id := os.Getenv("CIE_PROJECT_ID"); id != "" {
		c.ProjectID = id
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		c.Embedding.BaseURL = host
	}
	if model := os.Getenv("OLLAMA_EMBED_MODEL"); model != "" {
		c.Embedding.Model = model
	}
	if url := os.Getenv("CIE_LLM_URL"); url != "" {
		c.LLM.BaseURL = url
		c.LLM.Enabled = true
	}
	if model := os.Getenv("CIE_LLM_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if key := os.Getenv("CIE_LLM_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
}

// getEnv retrieves an environment variable or returns a fallback value if not set.
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
