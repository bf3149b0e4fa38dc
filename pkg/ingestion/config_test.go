// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package ingestion

import "testing"

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ParserMode != ParserModeAuto {
		t.Errorf("ParserMode = %v, want ParserModeAuto", cfg.ParserMode)
	}
	if cfg.EmbeddingProvider != "mock" {
		t.Errorf("EmbeddingProvider = %q, want mock", cfg.EmbeddingProvider)
	}
	if cfg.BatchTargetMutations != 2000 {
		t.Errorf("BatchTargetMutations = %d, want 2000", cfg.BatchTargetMutations)
	}
	if cfg.WriteMode != "bulk" {
		t.Errorf("WriteMode = %q, want bulk", cfg.WriteMode)
	}
	if cfg.Concurrency.ParseWorkers != 4 || cfg.Concurrency.EmbedWorkers != 8 {
		t.Errorf("Concurrency = %+v, want {ParseWorkers:4 EmbedWorkers:8}", cfg.Concurrency)
	}
	if len(cfg.ExcludeGlobs) == 0 {
		t.Errorf("ExcludeGlobs is empty, want default noise-directory globs")
	}
}

func TestDefaultConfig_ReturnsIndependentCopies(t *testing.T) {
	a := DefaultConfig()
	a.ExcludeGlobs = append(a.ExcludeGlobs, "extra/**")

	b := DefaultConfig()
	if len(b.ExcludeGlobs) == len(a.ExcludeGlobs) {
		t.Fatalf("mutating one DefaultConfig() result's slice affected another call's defaults")
	}
}
