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
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/mnemo/internal/config"
	"github.com/kraklabs/mnemo/internal/jobs"
	"github.com/kraklabs/mnemo/internal/registry"
	"github.com/kraklabs/mnemo/internal/session"
	"github.com/kraklabs/mnemo/pkg/graphstore"
	"github.com/kraklabs/mnemo/pkg/mcpadapter"
	"github.com/kraklabs/mnemo/pkg/queryservice"
	"github.com/kraklabs/mnemo/pkg/watcher"
)

// runServe executes the 'serve' CLI command: the multi-repository daemon
// that exposes every cataloged repository over the MCP streamable HTTP
// transport, watches configured folders for opportunistic reindexing, and
// tracks both connections (C12 sessions) and background update jobs.
func runServe(args []string, configPath string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", "", "HTTP listen address, overrides .mnemo/server.yaml's mcp.http_addr")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: mnemo serve [options]

Start the multi-repository MCP server over streamable HTTP, serving every
repository in .mnemo/server.yaml's catalog and watching its configured
folders for changes. Runs until interrupted.
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	httpAddr := cfg.MCP.HTTPAddr
	if *addr != "" {
		httpAddr = *addr
	}
	if httpAddr == "" {
		httpAddr = ":8642"
	}

	reg := registry.New(cfg, logger)
	defer reg.Close()

	sessions := session.NewManager(session.Config{
		MaxSessions:       cfg.Sessions.MaxSessions,
		SessionTTLMs:      cfg.Sessions.SessionTTLMs,
		CleanupIntervalMs: cfg.Sessions.CleanupIntervalMs,
		Logger:            logger,
	})
	defer sessions.Shutdown()

	tracker := jobs.NewTracker(jobs.Config{MaxJobs: cfg.Jobs.MaxJobs, MaxJobAgeMs: cfg.Jobs.MaxJobAgeMs})

	resolve := func(name string) (*mcpadapter.RepositoryHandle, error) {
		h, err := reg.Open(name)
		if err != nil {
			return nil, err
		}
		return &mcpadapter.RepositoryHandle{Graph: h.Graph, Vectors: h.Vectors, Embedding: h.Embedding}, nil
	}
	list := func() ([]string, error) { return reg.List() }

	storeResolver := func(name string) (*graphstore.Store, error) {
		h, err := reg.Open(name)
		if err != nil {
			return nil, err
		}
		return h.Graph, nil
	}

	queries := queryservice.New(storeResolver, queryservice.WithCache(1024), queryservice.WithLogger(logger))
	adapter := mcpadapter.New(queries, resolve, list, mcpadapter.WithLogger(logger),
		mcpadapter.WithInstructions("Query indexed repositories for code structure, dependencies, and semantic search."),
		mcpadapter.WithSessions(sessions))

	if len(cfg.WatchedFolders) > 0 {
		watchMgr := watcher.NewManager(20, logger)
		startWatchedFolders(watchMgr, cfg, tracker, logger)
		defer watchMgr.Shutdown()
	}

	logger.Info("serve.starting", "addr", httpAddr, "repositories", mustList(list))

	errCh := make(chan error, 1)
	go func() {
		errCh <- adapter.ServeHTTP(httpAddr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case <-sigCh:
		logger.Info("serve.shutdown")
	}
}

func mustList(list mcpadapter.RepositoryLister) []string {
	names, err := list()
	if err != nil {
		return nil
	}
	return names
}
