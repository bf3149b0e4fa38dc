// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Version != configVersion {
		t.Errorf("Version = %q, want %q", cfg.Version, configVersion)
	}
	if cfg.Engine != "rocksdb" {
		t.Errorf("Engine = %q, want rocksdb", cfg.Engine)
	}
	if cfg.Sessions.MaxSessions != 100 {
		t.Errorf("Sessions.MaxSessions = %d, want 100", cfg.Sessions.MaxSessions)
	}
	if cfg.Jobs.MaxJobs != 500 {
		t.Errorf("Jobs.MaxJobs = %d, want 500", cfg.Jobs.MaxJobs)
	}
	if !cfg.MCP.StdioEnabled {
		t.Errorf("MCP.StdioEnabled = false, want true")
	}
}

func TestRepoDataDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/tmp/mnemo-data"

	got := RepoDataDir(cfg, "my-repo")
	want := "/tmp/mnemo-data/repos/my-repo/cozo"
	if got != want {
		t.Errorf("RepoDataDir() = %q, want %q", got, want)
	}
}

func TestFindRepository(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Repositories = []RepositoryCfg{
		{Name: "one", URL: "https://example.com/one.git"},
		{Name: "two", URL: "https://example.com/two.git"},
	}

	if got := cfg.FindRepository("two"); got == nil || got.URL != "https://example.com/two.git" {
		t.Errorf("FindRepository(two) = %+v, want the two entry", got)
	}
	if got := cfg.FindRepository("missing"); got != nil {
		t.Errorf("FindRepository(missing) = %+v, want nil", got)
	}
}

func TestSaveAndLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/server.yaml"

	cfg := DefaultConfig()
	cfg.Repositories = []RepositoryCfg{{Name: "demo", URL: "https://example.com/demo.git"}}

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if len(loaded.Repositories) != 1 || loaded.Repositories[0].Name != "demo" {
		t.Fatalf("LoadConfig() repositories = %+v, want one entry named demo", loaded.Repositories)
	}
}

func TestLoadConfigRejectsUnsupportedVersion(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/server.yaml"
	data := "version: \"999\"\ndata_dir: /tmp\nengine: rocksdb\n"
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatalf("os.WriteFile: %v", err)
	}

	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "version") {
		t.Fatalf("LoadConfig with bad version = %v, want a version error", err)
	}
}
