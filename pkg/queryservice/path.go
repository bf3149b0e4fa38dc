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

// PathInput is the validated input to GetPath.
type PathInput struct {
	Repository        string
	From              string
	To                string
	MaxHops           int // clamped to [1,20]
	RelationshipTypes []graphstore.RelType
}

// PathResult is GetPath's output. When no path exists, Path is nil and
// Hops is 0, matching spec.md's {path_exists:false, path:null, hops:0}.
type PathResult struct {
	PathExists  bool     `json:"path_exists"`
	Path        []string `json:"path"`
	Hops        int      `json:"hops"`
	QueryTimeMs int64    `json:"query_time_ms"`
	FromCache   bool     `json:"from_cache"`
}

// GetPath finds a shortest path from From to To over the given
// relationship types (CALLS by default), bounded by MaxHops.
func (s *Service) GetPath(ctx context.Context, input PathInput) (*PathResult, error) {
	start := time.Now()
	const op = "get_path"

	key := cacheKey(op, input.Repository, input.From, input.To, itoa(input.MaxHops), joinRelTypesRaw(input.RelationshipTypes))
	if cached, ok := s.cache.get(key); ok {
		recordCacheHit(op, true)
		result := cached.(PathResult)
		result.FromCache = true
		result.QueryTimeMs = time.Since(start).Milliseconds()
		return &result, nil
	}
	recordCacheHit(op, false)

	store, err := s.store(input.Repository)
	if err != nil {
		return nil, err
	}

	pr, err := store.GetPath(ctx, input.From, input.To, input.MaxHops, input.RelationshipTypes)
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	recordQueryDuration(op, elapsed.Seconds())

	result := PathResult{
		PathExists:  pr.PathExists,
		Path:        pr.Path,
		Hops:        pr.Hops,
		QueryTimeMs: elapsed.Milliseconds(),
		FromCache:   false,
	}
	s.cache.put(key, result)
	return &result, nil
}
