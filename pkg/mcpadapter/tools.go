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

package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kraklabs/mnemo/internal/contract"
	"github.com/kraklabs/mnemo/pkg/queryservice"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func (a *Adapter) registerTools(s *server.MCPServer) {
	s.AddTool(semanticSearchTool(), a.handleSemanticSearch)
	s.AddTool(getDependenciesTool(), a.handleGetDependencies)
	s.AddTool(getDependentsTool(), a.handleGetDependents)
	s.AddTool(getPathTool(), a.handleGetPath)
	s.AddTool(getArchitectureTool(), a.handleGetArchitecture)
	s.AddTool(getGraphMetricsTool(), a.handleGetGraphMetrics)
	s.AddTool(listRepositoriesTool(), a.handleListRepositories)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func errResult(format string, args ...any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(fmt.Sprintf(format, args...)), nil
}

// --- semantic_search ---

func semanticSearchTool() mcp.Tool {
	return mcp.NewTool("semantic_search",
		mcp.WithDescription("Search a repository's indexed code and documents by meaning using vector embeddings. Use when you don't know the exact name of what you're looking for."),
		mcp.WithString("repository", mcp.Required(), mcp.Description("Name of the indexed repository to search")),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural language description of the code or content to find")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results to return (default 10)")),
		mcp.WithNumber("min_similarity", mcp.Description("Minimum cosine similarity threshold, 0.0-1.0 (default 0.0, no filtering)")),
		mcp.WithString("path_prefix", mcp.Description("Restrict results to files under this path prefix")),
	)
}

func (a *Adapter) handleSemanticSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repository, err := req.RequireString("repository")
	if err != nil {
		return errResult("repository is required: %v", err)
	}
	query, err := req.RequireString("query")
	if err != nil {
		return errResult("query is required: %v", err)
	}
	if v := contract.ValidateQueryLength(query); !v.OK {
		return errResult("%s", v.Message)
	}
	limit := int(req.GetFloat("limit", 10))
	if v := contract.ValidateResultLimit(limit); !v.OK {
		return errResult("%s", v.Message)
	}
	minSimilarity := req.GetFloat("min_similarity", 0.0)
	if v := contract.ValidateSimilarityThreshold(minSimilarity); !v.OK {
		return errResult("%s", v.Message)
	}
	pathPrefix := req.GetString("path_prefix", "")

	handle, err := a.repository(repository)
	if err != nil {
		return errResult("%v", err)
	}
	if handle.Embedding == nil || handle.Vectors == nil {
		return errResult("repository %q has no vector search configured", repository)
	}

	vector, err := handle.Embedding.Embed(ctx, query)
	if err != nil {
		return errResult("embedding query: %v", err)
	}

	results, err := handle.Vectors.SimilaritySearch(ctx, vector, limit, minSimilarity, pathPrefix)
	if err != nil {
		return errResult("similarity search: %v", err)
	}

	return jsonResult(results)
}

// --- get_dependencies ---

func getDependenciesTool() mcp.Tool {
	return mcp.NewTool("get_dependencies",
		mcp.WithDescription("List what a function, type, or file depends on (outgoing relationships), traversed to a given depth."),
		mcp.WithString("repository", mcp.Required(), mcp.Description("Name of the indexed repository")),
		mcp.WithString("entity", mcp.Required(), mcp.Description("Entity ID to start from")),
		mcp.WithNumber("depth", mcp.Description("Traversal depth, 1-5 (default 1)")),
	)
}

func (a *Adapter) handleGetDependencies(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repository, err := req.RequireString("repository")
	if err != nil {
		return errResult("repository is required: %v", err)
	}
	entity, err := req.RequireString("entity")
	if err != nil {
		return errResult("entity is required: %v", err)
	}
	depth := int(req.GetFloat("depth", 1))
	if v := contract.ValidateTraversalDepth(depth); !v.OK {
		return errResult("%s", v.Message)
	}

	result, err := a.queries.GetDependencies(ctx, queryservice.DependenciesInput{
		Entity: entity, Repository: repository, Depth: depth,
	})
	if err != nil {
		return errResult("%v", err)
	}
	return jsonResult(result)
}

// --- get_dependents ---

func getDependentsTool() mcp.Tool {
	return mcp.NewTool("get_dependents",
		mcp.WithDescription("List what depends on a function, type, or file (incoming relationships / reverse call graph), plus an impact analysis."),
		mcp.WithString("repository", mcp.Required(), mcp.Description("Name of the indexed repository")),
		mcp.WithString("entity", mcp.Required(), mcp.Description("Entity ID to start from")),
		mcp.WithNumber("depth", mcp.Description("Traversal depth, 1-5 (default 1)")),
	)
}

func (a *Adapter) handleGetDependents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repository, err := req.RequireString("repository")
	if err != nil {
		return errResult("repository is required: %v", err)
	}
	entity, err := req.RequireString("entity")
	if err != nil {
		return errResult("entity is required: %v", err)
	}
	depth := int(req.GetFloat("depth", 1))
	if v := contract.ValidateTraversalDepth(depth); !v.OK {
		return errResult("%s", v.Message)
	}

	result, err := a.queries.GetDependents(ctx, queryservice.DependentsInput{
		Entity: entity, Repository: repository, Depth: depth,
	})
	if err != nil {
		return errResult("%v", err)
	}
	return jsonResult(result)
}

// --- get_path ---

func getPathTool() mcp.Tool {
	return mcp.NewTool("get_path",
		mcp.WithDescription("Find the shortest call path between two entities in a repository's code graph."),
		mcp.WithString("repository", mcp.Required(), mcp.Description("Name of the indexed repository")),
		mcp.WithString("from", mcp.Required(), mcp.Description("Starting entity ID")),
		mcp.WithString("to", mcp.Required(), mcp.Description("Target entity ID")),
		mcp.WithNumber("max_hops", mcp.Description("Maximum path length, 1-20 (default 10)")),
	)
}

func (a *Adapter) handleGetPath(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repository, err := req.RequireString("repository")
	if err != nil {
		return errResult("repository is required: %v", err)
	}
	from, err := req.RequireString("from")
	if err != nil {
		return errResult("from is required: %v", err)
	}
	to, err := req.RequireString("to")
	if err != nil {
		return errResult("to is required: %v", err)
	}
	maxHops := int(req.GetFloat("max_hops", 10))
	if v := contract.ValidatePathHops(maxHops); !v.OK {
		return errResult("%s", v.Message)
	}

	result, err := a.queries.GetPath(ctx, queryservice.PathInput{
		Repository: repository, From: from, To: to, MaxHops: maxHops,
	})
	if err != nil {
		return errResult("%v", err)
	}
	return jsonResult(result)
}

// --- get_architecture ---

func getArchitectureTool() mcp.Tool {
	return mcp.NewTool("get_architecture",
		mcp.WithDescription("Return a hierarchical view of a repository's package/module structure, inter-module dependencies, and aggregate size metrics."),
		mcp.WithString("repository", mcp.Required(), mcp.Description("Name of the indexed repository")),
		mcp.WithString("scope", mcp.Description("Restrict to paths under this prefix")),
		mcp.WithString("detail_level", mcp.Description("One of packages, modules, files, entities (default packages")),
	)
}

func (a *Adapter) handleGetArchitecture(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repository, err := req.RequireString("repository")
	if err != nil {
		return errResult("repository is required: %v", err)
	}
	scope := req.GetString("scope", "")
	detail := queryservice.DetailLevel(req.GetString("detail_level", string(queryservice.DetailPackages)))

	result, err := a.queries.GetArchitecture(ctx, queryservice.ArchitectureInput{
		Repository: repository, Scope: scope, DetailLevel: detail,
	})
	if err != nil {
		return errResult("%v", err)
	}
	return jsonResult(result)
}

// --- get_graph_metrics ---

func getGraphMetricsTool() mcp.Tool {
	return mcp.NewTool("get_graph_metrics",
		mcp.WithDescription("Return top-level size metrics for a repository's code graph: file, function, and type counts, and index health."),
		mcp.WithString("repository", mcp.Required(), mcp.Description("Name of the indexed repository")),
	)
}

func (a *Adapter) handleGetGraphMetrics(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repository, err := req.RequireString("repository")
	if err != nil {
		return errResult("repository is required: %v", err)
	}

	result, err := a.queries.GetArchitecture(ctx, queryservice.ArchitectureInput{
		Repository: repository, DetailLevel: queryservice.DetailPackages,
	})
	if err != nil {
		return errResult("%v", err)
	}

	handle, err := a.repository(repository)
	if err != nil {
		return errResult("%v", err)
	}
	healthErr := ""
	if err := handle.Graph.HealthCheck(ctx); err != nil {
		healthErr = err.Error()
	}

	return jsonResult(map[string]any{
		"metrics": result.Metrics,
		"healthy": healthErr == "",
		"error":   healthErr,
	})
}

// --- list_repositories ---

func listRepositoriesTool() mcp.Tool {
	return mcp.NewTool("list_repositories",
		mcp.WithDescription("List every repository currently indexed and available for querying."),
	)
}

func (a *Adapter) handleListRepositories(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if a.list == nil {
		return errResult("mcpadapter: no repository lister configured")
	}
	names, err := a.list()
	if err != nil {
		return errResult("%v", err)
	}
	return jsonResult(map[string]any{"repositories": names})
}

