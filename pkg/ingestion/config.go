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

package ingestion

// RepoSource identifies where a repository's content comes from.
type RepoSource struct {
	// Type is "git_url" or "local_path".
	Type  string
	Value string
}

// ConcurrencyConfig controls how many workers run in parallel during
// parsing and embedding.
type ConcurrencyConfig struct {
	ParseWorkers int
	EmbedWorkers int
}

// IngestionConfig controls how a single repository is parsed, embedded, and
// written to storage.
type IngestionConfig struct {
	ParserMode        ParserMode
	EmbeddingProvider string
	MaxFileSizeBytes  int64
	MaxCodeTextBytes  int64
	ExcludeGlobs      []string

	Concurrency ConcurrencyConfig

	LocalDataDir string
	LocalEngine  string

	CheckpointPath string

	BatchTargetMutations int
	WriteMode            string // "bulk" or "per_statement"

	// CSharpAnalyzerProject points at the companion .NET analyzer project
	// used to parse C# files. Empty disables C# support: files detected as
	// "csharp" are skipped like any other unparseable file.
	CSharpAnalyzerProject string
}

// Config is the top-level configuration for one ingestion run.
type Config struct {
	ProjectID       string
	RepoSource      RepoSource
	IngestionConfig IngestionConfig
}

// DefaultConfig returns sensible defaults for IngestionConfig.
func DefaultConfig() IngestionConfig {
	cfg := IngestionConfig{
		ParserMode:           ParserModeAuto,
		EmbeddingProvider:    "mock",
		MaxFileSizeBytes:     1024 * 1024,
		MaxCodeTextBytes:     100 * 1024,
		ExcludeGlobs:         []string{"node_modules/**", ".git/**", "vendor/**"},
		LocalDataDir:         "~/.mnemo/data",
		LocalEngine:          "rocksdb",
		BatchTargetMutations: 2000,
		WriteMode:            "bulk",
	}
	cfg.Concurrency.ParseWorkers = 4
	cfg.Concurrency.EmbedWorkers = 8
	return cfg
}
