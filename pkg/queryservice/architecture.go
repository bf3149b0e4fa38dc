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
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/kraklabs/mnemo/pkg/graphstore"
	"github.com/kraklabs/mnemo/pkg/cozoutil"
)

// DetailLevel is the granularity getArchitecture groups entities at.
type DetailLevel string

const (
	DetailPackages DetailLevel = "packages"
	DetailModules  DetailLevel = "modules"
	DetailFiles    DetailLevel = "files"
	DetailEntities DetailLevel = "entities"
)

// ArchitectureInput is the validated input to GetArchitecture.
type ArchitectureInput struct {
	Repository      string
	Scope           string // optional path prefix restricting the result
	DetailLevel     DetailLevel
	IncludeExternal bool
}

// ArchitectureNode is one grouped unit in the architecture result: a
// package, module, file, or entity, depending on DetailLevel.
type ArchitectureNode struct {
	Path          string `json:"path"`
	FileCount     int    `json:"file_count,omitempty"`
	FunctionCount int    `json:"function_count"`
	TypeCount     int    `json:"type_count"`
}

// ArchitectureEdge is an aggregated inter-node CALLS edge.
type ArchitectureEdge struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Calls int    `json:"calls"`
}

// ArchitectureMetrics summarizes the whole result set.
type ArchitectureMetrics struct {
	TotalFiles     int `json:"total_files"`
	TotalFunctions int `json:"total_types_and_functions"`
	TotalNodes     int `json:"total_nodes"`
	TotalEdges     int `json:"total_edges"`
}

// ArchitectureResult is GetArchitecture's output.
type ArchitectureResult struct {
	DetailLevel DetailLevel          `json:"detail_level"`
	Nodes       []ArchitectureNode   `json:"nodes"`
	Dependencies []ArchitectureEdge  `json:"dependencies"`
	Metrics     ArchitectureMetrics  `json:"metrics"`
	QueryTimeMs int64                `json:"query_time_ms"`
	FromCache   bool                 `json:"from_cache"`
}

// GetArchitecture builds a hierarchical view of the repository's package
// or module structure, inter-module dependencies, and aggregate metrics.
// Unlike the other three operations, this has no teacher-provided graph
// traversal to generalize: it is assembled from plain file/function/calls
// relations grouped in Go, the way pkg/tools/summary.go's directory
// listing groups *cie_file rows.
func (s *Service) GetArchitecture(ctx context.Context, input ArchitectureInput) (*ArchitectureResult, error) {
	start := time.Now()
	const op = "get_architecture"

	if input.DetailLevel == "" {
		input.DetailLevel = DetailPackages
	}

	key := cacheKey(op, input.Repository, input.Scope, string(input.DetailLevel), fmt.Sprintf("%v", input.IncludeExternal))
	if cached, ok := s.cache.get(key); ok {
		recordCacheHit(op, true)
		result := cached.(ArchitectureResult)
		result.FromCache = true
		result.QueryTimeMs = time.Since(start).Milliseconds()
		return &result, nil
	}
	recordCacheHit(op, false)

	store, err := s.store(input.Repository)
	if err != nil {
		return nil, err
	}

	files, err := scopedFiles(ctx, store, input.Scope)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}

	functionCounts, typeCounts, err := entityCountsByFile(ctx, store)
	if err != nil {
		return nil, fmt.Errorf("count entities: %w", err)
	}

	groupOf := groupingFunc(input.DetailLevel)

	nodesByPath := make(map[string]*ArchitectureNode)
	for _, f := range files {
		group := groupOf(f)
		n, ok := nodesByPath[group]
		if !ok {
			n = &ArchitectureNode{Path: group}
			nodesByPath[group] = n
		}
		n.FileCount++
		n.FunctionCount += functionCounts[f]
		n.TypeCount += typeCounts[f]
	}

	edges, err := aggregatedCallEdges(ctx, store, groupOf)
	if err != nil {
		return nil, fmt.Errorf("aggregate call edges: %w", err)
	}

	nodes := make([]ArchitectureNode, 0, len(nodesByPath))
	totalFunctions := 0
	for _, n := range nodesByPath {
		nodes = append(nodes, *n)
		totalFunctions += n.FunctionCount + n.TypeCount
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Path < nodes[j].Path })
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})

	elapsed := time.Since(start)
	recordQueryDuration(op, elapsed.Seconds())

	result := ArchitectureResult{
		DetailLevel:  input.DetailLevel,
		Nodes:        nodes,
		Dependencies: edges,
		Metrics: ArchitectureMetrics{
			TotalFiles:     len(files),
			TotalFunctions: totalFunctions,
			TotalNodes:     len(nodes),
			TotalEdges:     len(edges),
		},
		QueryTimeMs: elapsed.Milliseconds(),
		FromCache:   false,
	}
	s.cache.put(key, result)
	return &result, nil
}

// scopedFiles lists every file path in the repository, optionally
// restricted to paths under scope.
func scopedFiles(ctx context.Context, store *graphstore.Store, scope string) ([]string, error) {
	query := `?[path] := *cie_file{path} :order path :limit 100000`
	if scope != "" {
		query = fmt.Sprintf(
			`?[path] := *cie_file{path}, regex_matches(path, %q) :order path :limit 100000`,
			"^"+cozoutil.EscapeRegex(strings.TrimSuffix(scope, "/"))+"(/|$)",
		)
	}
	res, err := store.RunQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(res.Rows))
	for _, row := range res.Rows {
		if len(row) > 0 {
			paths = append(paths, cozoutil.AnyToString(row[0]))
		}
	}
	return paths, nil
}

// entityCountsByFile returns per-file function and type counts.
func entityCountsByFile(ctx context.Context, store *graphstore.Store) (map[string]int, map[string]int, error) {
	functionCounts := make(map[string]int)
	typeCounts := make(map[string]int)

	fnRes, err := store.RunQuery(ctx, `?[file_path, count(id)] := *cie_function{id, file_path}`)
	if err != nil {
		return nil, nil, err
	}
	for _, row := range fnRes.Rows {
		if len(row) < 2 {
			continue
		}
		functionCounts[cozoutil.AnyToString(row[0])] = anyToInt(row[1])
	}

	typeRes, err := store.RunQuery(ctx, `?[file_path, count(id)] := *cie_type{id, file_path}`)
	if err != nil {
		return nil, nil, err
	}
	for _, row := range typeRes.Rows {
		if len(row) < 2 {
			continue
		}
		typeCounts[cozoutil.AnyToString(row[0])] = anyToInt(row[1])
	}

	return functionCounts, typeCounts, nil
}

// aggregatedCallEdges joins cie_calls through cie_function to recover
// each call's caller/callee file paths, then groups both sides with
// groupOf and counts calls per (from, to) pair. Self-edges (a group
// calling itself) are dropped: getArchitecture reports inter-module
// structure, not intra-module call volume.
func aggregatedCallEdges(ctx context.Context, store *graphstore.Store, groupOf func(string) string) ([]ArchitectureEdge, error) {
	query := `?[caller_path, callee_path] :=
		*cie_calls{caller_id, callee_id},
		*cie_function{id: caller_id, file_path: caller_path},
		*cie_function{id: callee_id, file_path: callee_path}`

	res, err := store.RunQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	counts := make(map[[2]string]int)
	for _, row := range res.Rows {
		if len(row) < 2 {
			continue
		}
		from := groupOf(cozoutil.AnyToString(row[0]))
		to := groupOf(cozoutil.AnyToString(row[1]))
		if from == to {
			continue
		}
		counts[[2]string{from, to}]++
	}

	edges := make([]ArchitectureEdge, 0, len(counts))
	for pair, n := range counts {
		edges = append(edges, ArchitectureEdge{From: pair[0], To: pair[1], Calls: n})
	}
	return edges, nil
}

// groupingFunc returns the function mapping a file path to its node
// identity at the requested detail level.
func groupingFunc(level DetailLevel) func(string) string {
	switch level {
	case DetailFiles, DetailEntities:
		return func(filePath string) string { return filePath }
	case DetailModules:
		return func(filePath string) string {
			segments := strings.Split(filePath, "/")
			if len(segments) <= 1 {
				return filePath
			}
			return segments[0]
		}
	case DetailPackages:
		fallthrough
	default:
		return func(filePath string) string {
			dir := path.Dir(filePath)
			if dir == "." {
				return "/"
			}
			return dir
		}
	}
}
