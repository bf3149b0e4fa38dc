// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/kraklabs/mnemo/internal/bootstrap"
	"github.com/kraklabs/mnemo/pkg/graphstore"
	"github.com/kraklabs/mnemo/pkg/ingestion"
	"github.com/kraklabs/mnemo/pkg/mcpadapter"
	"github.com/kraklabs/mnemo/pkg/queryservice"
	"github.com/kraklabs/mnemo/pkg/vectorstore"
)

// runMCPServer starts the MCP server over stdio, scoped to the single
// repository configured by .cie/project.yaml - the teacher's own
// embedded-MCP entry point, generalized to the new named C10 tools
// instead of its dozens of ad hoc query-shaped ones.
func runMCPServer(configPath string) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	backend, err := bootstrap.OpenProject(bootstrap.ProjectConfig{
		ProjectID:           cfg.ProjectID,
		EmbeddingDimensions: cfg.Embedding.Dimensions,
	}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintln(os.Stderr, "Run 'mnemo index' first to build the local index.")
		os.Exit(1)
	}
	defer backend.Close()

	graph := graphstore.New(backend)
	vectors := vectorstore.New(backend)

	embedder, err := ingestion.CreateEmbeddingProvider(cfg.Embedding.Provider, logger)
	if err != nil {
		logger.Warn("embedding provider unavailable, semantic_search will fail", "error", err)
	}

	handle := &mcpadapter.RepositoryHandle{Graph: graph, Vectors: vectors, Embedding: embedder}

	resolve := func(repository string) (*mcpadapter.RepositoryHandle, error) {
		if repository != "" && repository != cfg.ProjectID {
			return nil, fmt.Errorf("only repository %q is available in this session", cfg.ProjectID)
		}
		return handle, nil
	}
	list := func() ([]string, error) { return []string{cfg.ProjectID}, nil }

	storeResolver := func(repository string) (*graphstore.Store, error) {
		h, err := resolve(repository)
		if err != nil {
			return nil, err
		}
		return h.Graph, nil
	}

	queries := queryservice.New(storeResolver, queryservice.WithCache(256), queryservice.WithLogger(logger))
	adapter := mcpadapter.New(queries, resolve, list, mcpadapter.WithLogger(logger))

	if err := adapter.ServeStdio(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: mcp server: %v\n", err)
		os.Exit(1)
	}
}
