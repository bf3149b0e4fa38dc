// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package registry

import (
	"testing"

	"github.com/kraklabs/mnemo/internal/config"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Repositories = []config.RepositoryCfg{
		{Name: "zeta", URL: "https://example.com/zeta.git"},
		{Name: "alpha", URL: "https://example.com/alpha.git"},
	}
	cfg.Embedding.Provider = "mock"
	return cfg
}

func TestRegistry_ListIsSortedFromCatalog(t *testing.T) {
	r := New(testConfig(), nil)

	names, err := r.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zeta" {
		t.Fatalf("List() = %v, want [alpha zeta]", names)
	}
}

func TestRegistry_Repository(t *testing.T) {
	r := New(testConfig(), nil)

	if r.Repository("alpha") == nil {
		t.Fatalf("Repository(alpha) = nil, want a catalog entry")
	}
	if r.Repository("missing") != nil {
		t.Fatalf("Repository(missing) = non-nil, want nil")
	}
}

func TestRegistry_OpenUnknownRepository(t *testing.T) {
	r := New(testConfig(), nil)

	if _, err := r.Open("not-in-catalog"); err == nil {
		t.Fatalf("Open(not-in-catalog) succeeded, want an error")
	}
}

func TestRegistry_CloseWithNothingOpened(t *testing.T) {
	r := New(testConfig(), nil)
	if err := r.Close(); err != nil {
		t.Fatalf("Close() with nothing opened: %v", err)
	}
}
