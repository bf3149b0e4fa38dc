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

// Package registry opens and caches per-repository storage handles for the
// multi-repository daemon commands (serve, update, watch), the way
// internal/session caches per-connection state behind a keyed map and one
// mutex. Where internal/bootstrap.OpenProject knows how to open a single
// project's CozoDB, Registry is the thing that remembers which ones are
// already open and hands the same *graphstore.Store back on every lookup.
package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/kraklabs/mnemo/internal/bootstrap"
	"github.com/kraklabs/mnemo/internal/config"
	"github.com/kraklabs/mnemo/pkg/graphstore"
	"github.com/kraklabs/mnemo/pkg/ingestion"
	"github.com/kraklabs/mnemo/pkg/storage"
	"github.com/kraklabs/mnemo/pkg/vectorstore"
)

// Handle bundles one repository's open storage layers.
type Handle struct {
	Name      string
	Backend   *storage.EmbeddedBackend
	Graph     *graphstore.Store
	Vectors   *vectorstore.Store
	Embedding ingestion.EmbeddingProvider
}

// Registry opens repositories from the server-wide catalog on demand and
// keeps them open for the life of the process.
type Registry struct {
	mu      sync.Mutex
	cfg     *config.Config
	logger  *slog.Logger
	handles map[string]*Handle
	embed   ingestion.EmbeddingProvider
}

// New creates a Registry backed by cfg's repository catalog. A single
// embedding provider, built from cfg.Embedding, is shared across every
// repository, matching cfg's own one-provider-per-server shape.
func New(cfg *config.Config, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	embed, err := ingestion.CreateEmbeddingProvider(cfg.Embedding.Provider, logger)
	if err != nil {
		logger.Warn("embedding provider unavailable, semantic search will fail", "error", err)
	}
	return &Registry{
		cfg:     cfg,
		logger:  logger,
		handles: make(map[string]*Handle),
		embed:   embed,
	}
}

// Open returns the named repository's handle, opening its CozoDB backend
// on first use. Subsequent calls return the cached handle.
func (r *Registry) Open(name string) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.handles[name]; ok {
		return h, nil
	}

	entry := r.cfg.FindRepository(name)
	if entry == nil {
		return nil, fmt.Errorf("repository %q is not in the catalog", name)
	}

	backend, err := bootstrap.OpenProject(bootstrap.ProjectConfig{
		ProjectID:           name,
		DataDir:             config.RepoDataDir(r.cfg, name),
		Engine:              r.cfg.Engine,
		EmbeddingDimensions: r.cfg.Embedding.Dimensions,
	}, r.logger)
	if err != nil {
		return nil, fmt.Errorf("open repository %q: %w", name, err)
	}

	h := &Handle{
		Name:      name,
		Backend:   backend,
		Graph:     graphstore.New(backend),
		Vectors:   vectorstore.New(backend),
		Embedding: r.embed,
	}
	r.handles[name] = h
	return h, nil
}

// List returns every repository name in the catalog, sorted.
func (r *Registry) List() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.cfg.Repositories))
	for _, repo := range r.cfg.Repositories {
		names = append(names, repo.Name)
	}
	sort.Strings(names)
	return names, nil
}

// Repository returns the configured catalog entry for name, or nil.
func (r *Registry) Repository(name string) *config.RepositoryCfg {
	return r.cfg.FindRepository(name)
}

// Close closes every opened repository's backend.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for name, h := range r.handles {
		if err := h.Backend.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close repository %q: %w", name, err)
		}
	}
	return firstErr
}
