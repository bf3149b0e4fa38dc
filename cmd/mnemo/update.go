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
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	flag "github.com/spf13/pflag"

	"github.com/kraklabs/mnemo/internal/config"
	"github.com/kraklabs/mnemo/internal/jobs"
	"github.com/kraklabs/mnemo/pkg/ingestion"
)

// runUpdate executes the 'update' CLI command: a one-shot incremental
// re-index of a single cataloged repository, the manual trigger behind
// what watch.go fires automatically on file events.
func runUpdate(args []string, configPath string) {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: mnemo update <repository> [options]

Incrementally re-index a single repository from the .mnemo/server.yaml
catalog, reprocessing only the files that changed since the last indexed
commit.
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}
	repoName := fs.Arg(0)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	entry := cfg.FindRepository(repoName)
	if entry == nil {
		fmt.Fprintf(os.Stderr, "Error: repository %q is not in the catalog\n", repoName)
		os.Exit(1)
	}

	tracker := jobs.NewTracker(jobs.Config{MaxJobs: cfg.Jobs.MaxJobs, MaxJobAgeMs: cfg.Jobs.MaxJobAgeMs})

	jobID := fmt.Sprintf("update-%s-%s", repoName, uuid.NewString())
	if _, err := tracker.Start(jobID, repoName); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	tracker.Running(jobID)

	result, err := updateRepository(context.Background(), logger, cfg, entry)
	if err != nil {
		tracker.Fail(jobID, err)
		fmt.Fprintf(os.Stderr, "Error: update failed: %v\n", err)
		os.Exit(1)
	}
	tracker.Complete(jobID, result)

	fmt.Printf("Updated %s (%s): %d added, %d modified, %d deleted, %d chunks upserted, %d chunks deleted\n",
		repoName, result.Status, result.Stats.FilesAdded, result.Stats.FilesModified,
		result.Stats.FilesDeleted, result.Stats.ChunksUpserted, result.Stats.ChunksDeleted)
}

// updateRepository builds a one-off LocalPipeline for repoName and runs
// the incremental update coordinator against it. Each call opens and
// closes its own CozoDB connection rather than sharing the registry's,
// since the coordinator needs a *ingestion.LocalPipeline, not a
// *graphstore.Store/*vectorstore.Store pair.
func updateRepository(ctx context.Context, logger *slog.Logger, cfg *config.Config, entry *config.RepositoryCfg) (*ingestion.UpdateResult, error) {
	checkoutPath, err := ensureRepoCheckout(cfg, entry, logger)
	if err != nil {
		return nil, fmt.Errorf("checkout repository: %w", err)
	}

	defaults := ingestion.DefaultConfig()
	excludeGlobs := append(append([]string{}, defaults.ExcludeGlobs...), entry.Exclude...)

	pipelineCfg := ingestion.Config{
		ProjectID: entry.Name,
		RepoSource: ingestion.RepoSource{
			Type:  "local_path",
			Value: checkoutPath,
		},
		IngestionConfig: ingestion.IngestionConfig{
			ParserMode:            ingestion.ParserMode(entry.ParserMode),
			EmbeddingProvider:     cfg.Embedding.Provider,
			BatchTargetMutations:  2000,
			MaxFileSizeBytes:      entry.MaxFileSizeBytes,
			LocalDataDir:          config.RepoDataDir(cfg, entry.Name),
			LocalEngine:           cfg.Engine,
			ExcludeGlobs:          excludeGlobs,
			CSharpAnalyzerProject: entry.CSharpAnalyzerProject,
			Concurrency: ingestion.ConcurrencyConfig{
				ParseWorkers: 4,
				EmbedWorkers: 4,
			},
		},
	}

	pipeline, err := ingestion.NewLocalPipeline(pipelineCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create pipeline: %w", err)
	}
	defer pipeline.Close()

	coordinator := ingestion.NewUpdateCoordinator(pipeline, logger)
	return coordinator.Update(ctx, entry.Name, checkoutPath)
}

// ensureRepoCheckout keeps a persistent local clone of entry's git URL
// under cfg.DataDir/checkouts/<name>, pulling the latest commit if the
// clone already exists. Unlike pkg/ingestion.RepoLoader's shallow,
// throwaway clones for one-shot full indexing, the incremental update
// coordinator needs a persistent checkout so DetectDelta can diff the
// last indexed commit against the new HEAD.
func ensureRepoCheckout(cfg *config.Config, entry *config.RepositoryCfg, logger *slog.Logger) (string, error) {
	if strings.HasPrefix(entry.URL, "-") {
		return "", fmt.Errorf("invalid repository url %q", entry.URL)
	}

	checkoutPath := filepath.Join(cfg.DataDir, "checkouts", entry.Name)

	if _, err := os.Stat(filepath.Join(checkoutPath, ".git")); err == nil {
		cmd := exec.Command("git", "-C", checkoutPath, "pull", "--quiet", "--ff-only")
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			return "", fmt.Errorf("git pull %s: %w", checkoutPath, err)
		}
		return checkoutPath, nil
	}

	if err := os.MkdirAll(filepath.Dir(checkoutPath), 0750); err != nil {
		return "", fmt.Errorf("create checkout parent: %w", err)
	}

	args := []string{"clone", "--quiet", entry.URL, checkoutPath}
	if entry.Branch != "" {
		args = append(args, "--branch", entry.Branch)
	}
	logger.Info("repo.checkout.clone", "repository", entry.Name, "path", checkoutPath)
	cmd := exec.Command("git", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git clone %s: %w", entry.URL, err)
	}
	return checkoutPath, nil
}
