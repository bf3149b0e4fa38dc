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
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	flag "github.com/spf13/pflag"

	"github.com/kraklabs/mnemo/internal/config"
	"github.com/kraklabs/mnemo/internal/jobs"
	"github.com/kraklabs/mnemo/pkg/watcher"
)

// runWatch executes the 'watch' CLI command: watch every folder in
// .mnemo/server.yaml's watched_folders list and trigger an incremental
// update of the associated repository whenever its files settle.
func runWatch(args []string, configPath string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: mnemo watch [options]

Watch the folders configured in .mnemo/server.yaml and trigger an
incremental update for each folder's repository when its files change.
Runs until interrupted.
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
	if len(cfg.WatchedFolders) == 0 {
		fmt.Fprintln(os.Stderr, "No watched_folders configured in .mnemo/server.yaml")
		os.Exit(1)
	}

	tracker := jobs.NewTracker(jobs.Config{MaxJobs: cfg.Jobs.MaxJobs, MaxJobAgeMs: cfg.Jobs.MaxJobAgeMs})
	mgr := watcher.NewManager(20, logger)
	startWatchedFolders(mgr, cfg, tracker, logger)

	logger.Info("watch.running", "folders", len(cfg.WatchedFolders))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("watch.shutdown")
	mgr.Shutdown()
}

// startWatchedFolders registers handlers and starts a watcher.Manager for
// every folder in cfg.WatchedFolders, triggering an incremental update
// through tracker on each coalesced event. Shared by both the standalone
// 'watch' command and 'serve', which runs the same watch loop alongside
// the MCP HTTP transport.
func startWatchedFolders(mgr *watcher.Manager, cfg *config.Config, tracker *jobs.Tracker, logger *slog.Logger) {
	mgr.OnFileEvent(func(event watcher.FileEvent) {
		triggerUpdateOnEvent(context.Background(), logger, cfg, tracker, event)
	})
	mgr.OnError(func(folderID string, err error) {
		logger.Warn("watch.folder.error", "folder_id", folderID, "error", err)
	})

	for _, wf := range cfg.WatchedFolders {
		spec := watcher.FolderSpec{
			ID:              wf.ID,
			Path:            wf.Path,
			IncludePatterns: wf.IncludePatterns,
			ExcludePatterns: wf.ExcludePatterns,
			DebounceMs:      wf.DebounceMs,
		}
		if err := mgr.StartWatching(spec); err != nil {
			logger.Error("watch.folder.start.failed", "folder_id", wf.ID, "path", wf.Path, "error", err)
			continue
		}
		logger.Info("watch.folder.started", "folder_id", wf.ID, "path", wf.Path, "repository", wf.RepositoryName)
	}
}

// triggerUpdateOnEvent resolves the watched folder's repository and fires
// an incremental update, refusing to start a second one for the same
// repository while one is already running (I3).
func triggerUpdateOnEvent(ctx context.Context, logger *slog.Logger, cfg *config.Config, tracker *jobs.Tracker, event watcher.FileEvent) {
	var repoName string
	for _, wf := range cfg.WatchedFolders {
		if wf.ID == event.FolderID {
			repoName = wf.RepositoryName
			break
		}
	}
	if repoName == "" {
		logger.Warn("watch.event.unmapped_folder", "folder_id", event.FolderID)
		return
	}

	entry := cfg.FindRepository(repoName)
	if entry == nil {
		logger.Warn("watch.event.unknown_repository", "repository", repoName)
		return
	}

	if tracker.HasRunningJob(repoName) {
		logger.Info("watch.event.skipped_running", "repository", repoName)
		return
	}

	jobID := fmt.Sprintf("watch-%s-%s", repoName, uuid.NewString())
	if _, err := tracker.Start(jobID, repoName); err != nil {
		logger.Info("watch.event.skipped", "repository", repoName, "error", err)
		return
	}
	tracker.Running(jobID)

	logger.Info("watch.event.update_triggered", "repository", repoName, "path", event.Path, "type", event.Type)

	go func() {
		result, err := updateRepository(ctx, logger, cfg, entry)
		if err != nil {
			tracker.Fail(jobID, err)
			logger.Error("watch.update.failed", "repository", repoName, "error", err)
			return
		}
		tracker.Complete(jobID, result)
		logger.Info("watch.update.completed", "repository", repoName, "status", result.Status)
	}()
}
