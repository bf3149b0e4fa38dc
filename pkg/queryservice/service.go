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

// Package queryservice implements the Graph Query Service (C10): four
// read operations over pkg/graphstore, each timed and optionally served
// from an LRU cache keyed by the normalized query.
package queryservice

import (
	"fmt"
	"log/slog"

	"github.com/kraklabs/mnemo/pkg/graphstore"
)

// StoreResolver looks up the repository-scoped graph store for a
// repository name. The service itself holds no per-repository state;
// resolution is left to the caller (the session/registry layer owns
// which repositories are open).
type StoreResolver func(repository string) (*graphstore.Store, error)

// Service implements getDependencies, getDependents, getPath, and
// getArchitecture against whatever repository StoreResolver resolves to.
type Service struct {
	resolve StoreResolver
	cache   *queryCache
	logger  *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithCache enables the optional LRU result cache with the given
// capacity. Omit to run uncached.
func WithCache(size int) Option {
	return func(s *Service) {
		s.cache = newQueryCache(size)
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Service resolving repository stores through resolve.
func New(resolve StoreResolver, opts ...Option) *Service {
	s := &Service{
		resolve: resolve,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	metricsOnce.init()
	return s
}

func (s *Service) store(repository string) (*graphstore.Store, error) {
	if s.resolve == nil {
		return nil, fmt.Errorf("queryservice: no store resolver configured")
	}
	store, err := s.resolve(repository)
	if err != nil {
		return nil, fmt.Errorf("resolve repository %q: %w", repository, err)
	}
	if store == nil {
		return nil, fmt.Errorf("repository %q not found", repository)
	}
	return store, nil
}
