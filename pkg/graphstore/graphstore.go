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

// Package graphstore exposes a typed property-graph interface (C4) over
// pkg/storage's concrete relations. Node and relationship kinds map onto
// the specific cie_* tables the ingestion service already writes; callers
// never see table names.
package graphstore

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kraklabs/mnemo/pkg/storage"
)

// NodeKind identifies one of the data model's tagged node variants.
type NodeKind string

const (
	NodeRepository NodeKind = "Repository"
	NodeFile       NodeKind = "File"
	NodeFunction   NodeKind = "Function"
	NodeClass      NodeKind = "Class"
	NodeModule     NodeKind = "Module"
	NodeChunk      NodeKind = "Chunk"
	NodeConcept    NodeKind = "Concept"
)

// RelType identifies one of the data model's typed, directional edges.
type RelType string

const (
	RelContains   RelType = "CONTAINS"
	RelDefines    RelType = "DEFINES"
	RelImports    RelType = "IMPORTS"
	RelCalls      RelType = "CALLS"
	RelExtends    RelType = "EXTENDS"
	RelImplements RelType = "IMPLEMENTS"
	RelReferences RelType = "REFERENCES"
	RelHasChunk   RelType = "HAS_CHUNK"
	RelTaggedWith RelType = "TAGGED_WITH"
	RelRelatedTo  RelType = "RELATED_TO"
)

// edgeTable describes how a RelType is realized as a concrete id-keyed
// CozoDB relation with a (from, to) pair of columns.
type edgeTable struct {
	relation string
	fromCol  string
	toCol    string
}

// edgeTables lists the relationship types traverse() can walk directly by
// id. IMPLEMENTS is keyed by type/interface name rather than id in the
// underlying schema and is resolved separately by callers that need it;
// CONTAINS (Repository->File) is derived from id prefixing, not stored.
var edgeTables = map[RelType]edgeTable{
	RelDefines:    {relation: "cie_defines", fromCol: "file_id", toCol: "function_id"},
	RelImports:    {relation: "cie_import_edge", fromCol: "importer_module_id", toCol: "imported_module_id"},
	RelCalls:      {relation: "cie_calls", fromCol: "caller_id", toCol: "callee_id"},
	RelExtends:    {relation: "cie_extends", fromCol: "sub_type_id", toCol: "super_type_id"},
	RelReferences: {relation: "cie_references", fromCol: "referrer_id", toCol: "referenced_id"},
	RelTaggedWith: {relation: "cie_tagged_with", fromCol: "entity_id", toCol: "concept_id"},
	RelRelatedTo:  {relation: "cie_related_to", fromCol: "concept_id", toCol: "related_concept_id"},
}

// Node is a generic view of one tagged node variant.
type Node struct {
	ID    string
	Kind  NodeKind
	Props map[string]any
}

// Relationship is a generic view of one typed, directional edge.
type Relationship struct {
	ID    string
	From  string
	To    string
	Type  RelType
	Props map[string]any
}

// Store implements the Graph Store Client contract (C4) over a
// repository-scoped EmbeddedBackend.
type Store struct {
	backend *storage.EmbeddedBackend
}

// New wraps an already-opened, schema-initialized backend.
func New(backend *storage.EmbeddedBackend) *Store {
	return &Store{backend: backend}
}

// UpsertNode writes a node by dispatching on its kind to the concrete
// relation the ingestion service already uses.
func (s *Store) UpsertNode(ctx context.Context, n Node) error {
	switch n.Kind {
	case NodeFunction:
		return s.backend.Execute(ctx, fmt.Sprintf(
			`?[id, name, signature, file_path, start_line, end_line] <- [[%q, %q, %q, %q, %d, %d]]
			 :put cie_function { id => name, signature, file_path, start_line, end_line }`,
			n.ID, str(n.Props["name"]), str(n.Props["signature"]), str(n.Props["file_path"]),
			num(n.Props["start_line"]), num(n.Props["end_line"]),
		))
	case NodeClass:
		return s.backend.Execute(ctx, fmt.Sprintf(
			`?[id, name, kind, file_path, start_line, end_line, start_col, end_col] <- [[%q, %q, %q, %q, %d, %d, %d, %d]]
			 :put cie_type { id => name, kind, file_path, start_line, end_line, start_col, end_col }`,
			n.ID, str(n.Props["name"]), str(n.Props["kind"]), str(n.Props["file_path"]),
			num(n.Props["start_line"]), num(n.Props["end_line"]), num(n.Props["start_col"]), num(n.Props["end_col"]),
		))
	case NodeConcept:
		return s.backend.Execute(ctx, fmt.Sprintf(
			`?[id, label, description] <- [[%q, %q, %q]]
			 :put cie_concept { id => label, description }`,
			n.ID, str(n.Props["label"]), str(n.Props["description"]),
		))
	default:
		return fmt.Errorf("graphstore: upsertNode does not support kind %q directly; use the owning service", n.Kind)
	}
}

// DeleteNode removes a node by kind and id.
func (s *Store) DeleteNode(ctx context.Context, kind NodeKind, id string) error {
	relation, idCol := nodeRelation(kind)
	if relation == "" {
		return fmt.Errorf("graphstore: deleteNode does not support kind %q", kind)
	}
	return s.backend.Execute(ctx, fmt.Sprintf(
		`?[%s] <- [[%q]] :rm %s { %s }`, idCol, id, relation, idCol,
	))
}

func nodeRelation(kind NodeKind) (relation, idCol string) {
	switch kind {
	case NodeFunction:
		return "cie_function", "id"
	case NodeClass:
		return "cie_type", "id"
	case NodeConcept:
		return "cie_concept", "id"
	case NodeChunk:
		return "cie_chunk", "id"
	case NodeFile:
		return "cie_file", "id"
	default:
		return "", ""
	}
}

// CreateRelationship inserts a typed, directional edge.
func (s *Store) CreateRelationship(ctx context.Context, rel Relationship) error {
	edge, ok := edgeTables[rel.Type]
	if !ok {
		return fmt.Errorf("graphstore: createRelationship does not support type %q", rel.Type)
	}
	return s.backend.Execute(ctx, fmt.Sprintf(
		`?[id, %s, %s] <- [[%q, %q, %q]] :put %s { id => %s, %s }`,
		edge.fromCol, edge.toCol, rel.ID, rel.From, rel.To, edge.relation, edge.fromCol, edge.toCol,
	))
}

// DeleteRelationship removes an edge of the given type by its own id.
func (s *Store) DeleteRelationship(ctx context.Context, relType RelType, id string) error {
	edge, ok := edgeTables[relType]
	if !ok {
		return fmt.Errorf("graphstore: deleteRelationship does not support type %q", relType)
	}
	return s.backend.Execute(ctx, fmt.Sprintf(`?[id] <- [[%q]] :rm %s { id }`, id, edge.relation))
}

// RunQuery executes an arbitrary read-only Datalog query, for callers that
// need access beyond the typed node/relationship surface (e.g. C10).
func (s *Store) RunQuery(ctx context.Context, query string) (*storage.QueryResult, error) {
	return s.backend.Query(ctx, query)
}

// HealthCheck verifies the backend can still be queried.
func (s *Store) HealthCheck(ctx context.Context) error {
	_, err := s.backend.Query(ctx, `?[x] <- [[1]]`)
	return err
}

// AnalyzeDependenciesInput parameterizes AnalyzeDependencies.
type AnalyzeDependenciesInput struct {
	EntityID          string
	RelationshipTypes []RelType
	MaxDepth          int
}

// AnalyzeDependenciesResult is a raw traversal plus a per-type edge count,
// the building block getDependencies (C10) formats into a ranked result.
type AnalyzeDependenciesResult struct {
	Traverse    TraverseResult
	CountByType map[RelType]int
}

// AnalyzeDependencies runs a bounded forward traversal and tallies edges
// by relationship type, the raw material C10's getDependencies formats.
func (s *Store) AnalyzeDependencies(ctx context.Context, input AnalyzeDependenciesInput) (*AnalyzeDependenciesResult, error) {
	result, err := s.Traverse(ctx, TraverseInput{
		StartID:           input.EntityID,
		RelationshipTypes: input.RelationshipTypes,
		MaxDepth:          input.MaxDepth,
	})
	if err != nil {
		return nil, err
	}

	counts := make(map[RelType]int)
	for _, e := range result.Edges {
		counts[e.Type]++
	}
	return &AnalyzeDependenciesResult{Traverse: *result, CountByType: counts}, nil
}

// ContextInput parameterizes GetContext.
type ContextInput struct {
	EntityID string
	Radius   int // hops of surrounding graph to include, clamped to [1,5]
}

// ContextResult is the local neighborhood of an entity: the node itself
// plus everything reachable within Radius hops along outgoing edges of
// every known relationship type.
type ContextResult struct {
	CenterID    string
	NeighborIDs []string
	Edges       []Relationship
}

// GetContext returns the local subgraph around an entity, used to give an
// MCP client surrounding code structure without a full traversal query.
func (s *Store) GetContext(ctx context.Context, input ContextInput) (*ContextResult, error) {
	result, err := s.Traverse(ctx, TraverseInput{
		StartID:  input.EntityID,
		MaxDepth: clamp(input.Radius, 1, 5),
	})
	if err != nil {
		return nil, err
	}

	neighbors := make([]string, 0, len(result.VisitedIDs))
	for _, id := range result.VisitedIDs {
		if id != input.EntityID {
			neighbors = append(neighbors, id)
		}
	}

	return &ContextResult{CenterID: input.EntityID, NeighborIDs: neighbors, Edges: result.Edges}, nil
}

// TraverseInput parameterizes a bounded-depth walk from one node.
type TraverseInput struct {
	StartID           string
	RelationshipTypes []RelType // empty means every known type
	MaxDepth          int       // clamped to [1,5]
	Limit             int       // cap on VisitedIDs, default 100 when <= 0
}

// TraverseResult is the set of nodes and edges discovered by Traverse.
// VisitedIDs is deduplicated, sorted by id and cut to Limit; Edges lists
// every edge followed, in discovery order, and is not cut to Limit.
type TraverseResult struct {
	VisitedIDs []string
	Edges      []Relationship
}

// Traverse walks outward from input.StartID up to input.MaxDepth hops,
// following only the requested relationship types, the way trace.go walks
// CALLS edges level by level: one CozoScript query per level, a visited
// set to avoid cycles, and a hard cap on total nodes explored.
func (s *Store) Traverse(ctx context.Context, input TraverseInput) (*TraverseResult, error) {
	depth := clamp(input.MaxDepth, 1, 5)
	limit := input.Limit
	if limit <= 0 {
		limit = 100
	}

	types := input.RelationshipTypes
	if len(types) == 0 {
		for t := range edgeTables {
			types = append(types, t)
		}
	}

	visited := map[string]bool{input.StartID: true}
	frontier := []string{input.StartID}
	var edges []Relationship

	const maxNodesExplored = 5000

	for d := 0; d < depth && len(visited) < maxNodesExplored; d++ {
		var next []string
		for _, relType := range types {
			edge, ok := edgeTables[relType]
			if !ok {
				continue
			}
			neighbors, err := s.neighborsOf(ctx, edge, frontier)
			if err != nil {
				return nil, fmt.Errorf("traverse depth %d, type %s: %w", d, relType, err)
			}
			for _, n := range neighbors {
				edges = append(edges, Relationship{From: n.from, To: n.to, Type: relType})
				if !visited[n.to] {
					visited[n.to] = true
					next = append(next, n.to)
				}
			}
		}
		if len(next) == 0 {
			break
		}
		frontier = next
	}

	ids := make([]string, 0, len(visited))
	for id := range visited {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}

	return &TraverseResult{VisitedIDs: ids, Edges: edges}, nil
}

type idPair struct{ from, to string }

// neighborsOf fetches the immediate out-edges of edge.relation for every
// id in sources, in a single query.
func (s *Store) neighborsOf(ctx context.Context, edge edgeTable, sources []string) ([]idPair, error) {
	if len(sources) == 0 {
		return nil, nil
	}
	conditions := make([]string, len(sources))
	for i, id := range sources {
		conditions[i] = fmt.Sprintf("%s = %q", edge.fromCol, id)
	}

	script := fmt.Sprintf(
		`?[%s, %s] := *%s { %s, %s }, (%s)`,
		edge.fromCol, edge.toCol, edge.relation, edge.fromCol, edge.toCol,
		strings.Join(conditions, " or "),
	)

	result, err := s.backend.Query(ctx, script)
	if err != nil {
		if strings.Contains(err.Error(), "Cannot find") {
			return nil, nil
		}
		return nil, err
	}

	out := make([]idPair, 0, len(result.Rows))
	for _, row := range result.Rows {
		if len(row) < 2 {
			continue
		}
		out = append(out, idPair{from: str(row[0]), to: str(row[1])})
	}
	return out, nil
}

// DependencyItem is one entry in a getDependencies result.
type DependencyItem struct {
	Type             NodeKind
	Path             string
	RelationshipType RelType
	Depth            int
}

// GetDependencies returns the forward closure (direct, or transitive when
// depth>1) of CALLS/IMPORTS/DEFINES edges from entity, up to depth hops.
func (s *Store) GetDependencies(ctx context.Context, entityID string, depth int, relTypes []RelType) ([]DependencyItem, error) {
	depth = clamp(depth, 1, 5)
	if len(relTypes) == 0 {
		relTypes = []RelType{RelCalls, RelImports, RelDefines}
	}

	var items []DependencyItem
	visited := map[string]bool{entityID: true}
	frontier := []string{entityID}

	for d := 1; d <= depth; d++ {
		var next []string
		for _, relType := range relTypes {
			edge, ok := edgeTables[relType]
			if !ok {
				continue
			}
			neighbors, err := s.neighborsOf(ctx, edge, frontier)
			if err != nil {
				return nil, err
			}
			for _, n := range neighbors {
				if visited[n.to] {
					continue
				}
				visited[n.to] = true
				items = append(items, DependencyItem{Path: n.to, RelationshipType: relType, Depth: d})
				next = append(next, n.to)
			}
		}
		if len(next) == 0 {
			break
		}
		frontier = next
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Depth != items[j].Depth {
			return items[i].Depth < items[j].Depth
		}
		return items[i].Path < items[j].Path
	})
	return items, nil
}

// ImpactAnalysis summarizes the blast radius of a getDependents call.
type ImpactAnalysis struct {
	DirectImpactCount     int
	TransitiveImpactCount int
	ImpactScore           float64
}

// GetDependents returns the reverse closure of CALLS edges into entity
// (who depends on it), plus an impact analysis summary.
func (s *Store) GetDependents(ctx context.Context, entityID string, depth int) ([]DependencyItem, ImpactAnalysis, error) {
	depth = clamp(depth, 1, 5)
	reverseCalls := edgeTable{relation: "cie_calls", fromCol: "callee_id", toCol: "caller_id"}

	var items []DependencyItem
	visited := map[string]bool{entityID: true}
	frontier := []string{entityID}
	directCount := 0

	for d := 1; d <= depth; d++ {
		neighbors, err := s.neighborsOf(ctx, reverseCalls, frontier)
		if err != nil {
			return nil, ImpactAnalysis{}, err
		}
		var next []string
		for _, n := range neighbors {
			if visited[n.to] {
				continue
			}
			visited[n.to] = true
			items = append(items, DependencyItem{Path: n.to, RelationshipType: RelCalls, Depth: d})
			next = append(next, n.to)
			if d == 1 {
				directCount++
			}
		}
		if len(next) == 0 {
			break
		}
		frontier = next
	}

	transitive := len(items)
	score := 0.0
	if transitive > 0 {
		score = float64(directCount) / float64(transitive)
		if score > 1 {
			score = 1
		}
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Depth != items[j].Depth {
			return items[i].Depth < items[j].Depth
		}
		return items[i].Path < items[j].Path
	})

	return items, ImpactAnalysis{
		DirectImpactCount:     directCount,
		TransitiveImpactCount: transitive,
		ImpactScore:           score,
	}, nil
}

// PathResult is the outcome of GetPath: either a path was found, or not.
type PathResult struct {
	PathExists bool
	Path       []string
	Hops       int
}

// GetPath finds a shortest path from `from` to `to` over CALLS edges,
// following trace.go's BFS-with-visited-set pattern, bounded by maxHops.
func (s *Store) GetPath(ctx context.Context, from, to string, maxHops int, relTypes []RelType) (*PathResult, error) {
	if maxHops <= 0 {
		maxHops = 20
	}
	if maxHops > 20 {
		maxHops = 20
	}
	if len(relTypes) == 0 {
		relTypes = []RelType{RelCalls}
	}

	if from == to {
		return &PathResult{PathExists: true, Path: []string{from}, Hops: 0}, nil
	}

	type frame struct {
		id   string
		path []string
	}

	visited := map[string]bool{from: true}
	queue := []frame{{id: from, path: []string{from}}}

	const maxNodesExplored = 5000
	explored := 0

	for len(queue) > 0 && explored < maxNodesExplored {
		level := make([]frame, 0, len(queue))
		level = append(level, queue...)
		queue = nil

		frontier := make([]string, len(level))
		for i, f := range level {
			frontier[i] = f.id
		}

		if len(level[0].path) > maxHops {
			break
		}

		for _, relType := range relTypes {
			edge, ok := edgeTables[relType]
			if !ok {
				continue
			}
			neighbors, err := s.neighborsOf(ctx, edge, frontier)
			if err != nil {
				return nil, err
			}

			byFrom := make(map[string][]string)
			for _, n := range neighbors {
				byFrom[n.from] = append(byFrom[n.from], n.to)
			}

			for _, f := range level {
				for _, next := range byFrom[f.id] {
					if next == to {
						path := append(append([]string{}, f.path...), next)
						return &PathResult{PathExists: true, Path: path, Hops: len(path) - 1}, nil
					}
					if visited[next] {
						continue
					}
					visited[next] = true
					explored++
					newPath := append(append([]string{}, f.path...), next)
					queue = append(queue, frame{id: next, path: newPath})
				}
			}
		}

		if len(level) > 0 && len(level[0].path) >= maxHops {
			break
		}
	}

	return &PathResult{PathExists: false, Path: nil, Hops: 0}, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func str(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func num(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
