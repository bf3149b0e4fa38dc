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

package queryservice

import (
	"context"
	"time"

	"github.com/kraklabs/mnemo/pkg/graphstore"
)

// DependenciesInput is the validated input to GetDependencies.
type DependenciesInput struct {
	Entity            string
	Repository        string
	Depth             int // clamped to [1,5]
	RelationshipTypes []graphstore.RelType
}

// DependencyEntry is one item in a GetDependencies result.
type DependencyEntry struct {
	Type             graphstore.NodeKind `json:"type,omitempty"`
	Path             string              `json:"path"`
	RelationshipType graphstore.RelType  `json:"relationship_type"`
	Depth            int                 `json:"depth"`
	Metadata         map[string]any      `json:"metadata,omitempty"`
}

// DependenciesResult is GetDependencies' output.
type DependenciesResult struct {
	Items       []DependencyEntry `json:"items"`
	QueryTimeMs int64             `json:"query_time_ms"`
	FromCache   bool              `json:"from_cache"`
}

// GetDependencies returns the forward closure of relationship edges from
// Entity, up to Depth hops (clamped to [1,5] by graphstore).
func (s *Service) GetDependencies(ctx context.Context, input DependenciesInput) (*DependenciesResult, error) {
	start := time.Now()
	const op = "get_dependencies"

	key := cacheKey(op, input.Repository, input.Entity, itoa(input.Depth), joinRelTypesRaw(input.RelationshipTypes))
	if cached, ok := s.cache.get(key); ok {
		recordCacheHit(op, true)
		result := cached.(DependenciesResult)
		result.FromCache = true
		result.QueryTimeMs = time.Since(start).Milliseconds()
		return &result, nil
	}
	recordCacheHit(op, false)

	store, err := s.store(input.Repository)
	if err != nil {
		return nil, err
	}

	items, err := store.GetDependencies(ctx, input.Entity, input.Depth, input.RelationshipTypes)
	if err != nil {
		return nil, err
	}

	entries := make([]DependencyEntry, 0, len(items))
	for _, it := range items {
		entries = append(entries, DependencyEntry{
			Path:             it.Path,
			RelationshipType: it.RelationshipType,
			Depth:            it.Depth,
		})
	}

	elapsed := time.Since(start)
	recordQueryDuration(op, elapsed.Seconds())

	result := DependenciesResult{Items: entries, QueryTimeMs: elapsed.Milliseconds(), FromCache: false}
	s.cache.put(key, result)
	return &result, nil
}
