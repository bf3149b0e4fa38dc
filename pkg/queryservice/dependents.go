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
)

// DependentsInput is the validated input to GetDependents.
type DependentsInput struct {
	Entity           string
	Repository       string
	Depth            int // clamped to [1,5]
	IncludeCrossRepo bool
}

// ImpactAnalysis summarizes the blast radius of a GetDependents call.
type ImpactAnalysis struct {
	DirectImpactCount     int     `json:"direct_impact_count"`
	TransitiveImpactCount int     `json:"transitive_impact_count"`
	ImpactScore           float64 `json:"impact_score"`
}

// DependentsResult is GetDependents' output.
type DependentsResult struct {
	Items          []DependencyEntry `json:"items"`
	ImpactAnalysis ImpactAnalysis    `json:"impact_analysis"`
	QueryTimeMs    int64             `json:"query_time_ms"`
	FromCache      bool              `json:"from_cache"`
}

// GetDependents returns the reverse closure of CALLS edges into Entity
// (who depends on it), plus an impact analysis summary. IncludeCrossRepo
// is accepted for forward compatibility with a future cross-repository
// call graph; the current single-repo-per-store model has nothing to
// cross, so it is a no-op.
func (s *Service) GetDependents(ctx context.Context, input DependentsInput) (*DependentsResult, error) {
	start := time.Now()
	const op = "get_dependents"

	key := cacheKey(op, input.Repository, input.Entity, itoa(input.Depth))
	if cached, ok := s.cache.get(key); ok {
		recordCacheHit(op, true)
		result := cached.(DependentsResult)
		result.FromCache = true
		result.QueryTimeMs = time.Since(start).Milliseconds()
		return &result, nil
	}
	recordCacheHit(op, false)

	store, err := s.store(input.Repository)
	if err != nil {
		return nil, err
	}

	items, impact, err := store.GetDependents(ctx, input.Entity, input.Depth)
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

	result := DependentsResult{
		Items: entries,
		ImpactAnalysis: ImpactAnalysis{
			DirectImpactCount:     impact.DirectImpactCount,
			TransitiveImpactCount: impact.TransitiveImpactCount,
			ImpactScore:           impact.ImpactScore,
		},
		QueryTimeMs: elapsed.Milliseconds(),
		FromCache:   false,
	}
	s.cache.put(key, result)
	return &result, nil
}
