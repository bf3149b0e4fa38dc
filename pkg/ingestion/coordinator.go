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

package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/kraklabs/mnemo/internal/lock"
)

// UpdateStatus is the outcome of an incremental update run.
type UpdateStatus string

const (
	UpdateStatusNoChanges       UpdateStatus = "no_changes"
	UpdateStatusUpdated         UpdateStatus = "updated"
	UpdateStatusUpdatedWithErrs UpdateStatus = "updated_with_errors"
	UpdateStatusFailed          UpdateStatus = "failed"
)

// FileUpdateError records a single file's failure during an incremental
// update, keeping the run's other files unaffected.
type FileUpdateError struct {
	Path  string
	Error string
}

// UpdateStats summarizes what an incremental update touched.
type UpdateStats struct {
	FilesAdded     int
	FilesModified  int
	FilesDeleted   int
	ChunksUpserted int
	ChunksDeleted  int
	DurationMs     int64
}

// UpdateResult is returned by UpdateCoordinator.Update.
type UpdateResult struct {
	Status     UpdateStatus
	CommitSHA  string
	Stats      UpdateStats
	Errors     []FileUpdateError
	DurationMs int64
}

// UpdateCoordinator implements the file-level mutation protocol for
// incremental repository updates: it re-parses only what changed between
// the last indexed commit and the current HEAD, instead of a full re-index.
type UpdateCoordinator struct {
	pipeline *LocalPipeline
	logger   *slog.Logger
	locks    *lock.Registry
}

// NewUpdateCoordinator creates a coordinator that updates through pipeline's
// parser, embedding generator, and storage backend.
func NewUpdateCoordinator(pipeline *LocalPipeline, logger *slog.Logger) *UpdateCoordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &UpdateCoordinator{
		pipeline: pipeline,
		logger:   logger,
		locks:    lock.Default,
	}
}

// Update runs the incremental update algorithm for repoName checked out at
// repoPath: acquire the repository lock, diff against the last indexed
// commit, apply the file-level mutation protocol to each change, and
// advance the checkpoint on success.
func (c *UpdateCoordinator) Update(ctx context.Context, repoName, repoPath string) (*UpdateResult, error) {
	startTime := time.Now()

	guard, err := c.locks.Acquire(repoName)
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	baseSHA, err := c.pipeline.Backend().GetLastIndexedSHA()
	if err != nil {
		return nil, fmt.Errorf("read last indexed sha: %w", err)
	}

	detector := NewDeltaDetector(repoPath, c.logger)
	if !detector.IsGitRepository() {
		return nil, fmt.Errorf("update %s: %s is not a git repository", repoName, repoPath)
	}

	headSHA, err := detector.GetHeadSHA()
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}

	if baseSHA != "" && baseSHA == headSHA {
		c.logger.Info("update.no_changes", "repo", repoName, "sha", headSHA)
		return &UpdateResult{
			Status:     UpdateStatusNoChanges,
			CommitSHA:  headSHA,
			DurationMs: time.Since(startTime).Milliseconds(),
		}, nil
	}

	delta, err := detector.DetectDelta(baseSHA, headSHA)
	if err != nil {
		return nil, fmt.Errorf("detect delta: %w", err)
	}

	filtered := FilterDelta(delta,
		c.pipeline.config.IngestionConfig.ExcludeGlobs,
		c.pipeline.config.IngestionConfig.MaxFileSizeBytes,
		repoPath,
	)

	stats := UpdateStats{}
	var errs []FileUpdateError

	for _, path := range filtered.Deleted {
		c.deleteFile(path)
		stats.FilesDeleted++
		stats.ChunksDeleted++
	}

	for oldPath, newPath := range filtered.Renamed {
		if oldPath == "" {
			errs = append(errs, FileUpdateError{
				Path:  newPath,
				Error: "renamed file reported without an old path; re-index with force",
			})
			continue
		}
		c.deleteFile(oldPath)
		stats.ChunksDeleted++
		if err := c.reprocessFile(ctx, repoPath, newPath); err != nil {
			errs = append(errs, FileUpdateError{Path: newPath, Error: err.Error()})
			continue
		}
		stats.FilesModified++
		stats.ChunksUpserted++
	}

	for _, path := range filtered.Added {
		if err := c.reprocessFile(ctx, repoPath, path); err != nil {
			errs = append(errs, FileUpdateError{Path: path, Error: err.Error()})
			continue
		}
		stats.FilesAdded++
		stats.ChunksUpserted++
	}

	for _, path := range filtered.Modified {
		if err := c.reprocessFile(ctx, repoPath, path); err != nil {
			errs = append(errs, FileUpdateError{Path: path, Error: err.Error()})
			continue
		}
		stats.FilesModified++
		stats.ChunksUpserted++
	}

	stats.DurationMs = time.Since(startTime).Milliseconds()

	status := UpdateStatusUpdated
	switch {
	case len(errs) > 0 && stats.FilesAdded+stats.FilesModified+stats.FilesDeleted == 0:
		status = UpdateStatusFailed
	case len(errs) > 0:
		status = UpdateStatusUpdatedWithErrs
	case !filtered.HasChanges():
		status = UpdateStatusNoChanges
	}

	if status != UpdateStatusFailed {
		if err := c.pipeline.Backend().SetLastIndexedSHA(headSHA); err != nil {
			return nil, fmt.Errorf("advance checkpoint: %w", err)
		}
	}

	c.logger.Info("update.complete",
		"repo", repoName,
		"status", status,
		"added", stats.FilesAdded,
		"modified", stats.FilesModified,
		"deleted", stats.FilesDeleted,
		"errors", len(errs),
		"duration_ms", stats.DurationMs,
	)

	return &UpdateResult{
		Status:     status,
		CommitSHA:  headSHA,
		Stats:      stats,
		Errors:     errs,
		DurationMs: stats.DurationMs,
	}, nil
}

// deleteFile purges every entity and edge derived from path. Errors are
// logged, not returned: a missing relation or already-absent row must not
// block the rest of the update.
func (c *UpdateCoordinator) deleteFile(path string) {
	if err := c.pipeline.Backend().DeleteEntitiesForFile(path); err != nil {
		c.logger.Warn("update.delete_entities.error", "path", path, "err", err)
	}
	if err := c.pipeline.Backend().DeleteChunksForDoc(path); err != nil {
		c.logger.Warn("update.delete_chunks.error", "path", path, "err", err)
	}
}

// reprocessFile re-parses, re-embeds, and re-writes a single file, first
// purging whatever entities it previously contributed so the write is
// idempotent under repeated updates.
func (c *UpdateCoordinator) reprocessFile(ctx context.Context, repoPath, relPath string) error {
	c.deleteFile(relPath)

	language := detectLanguageFromPath(relPath)
	if language == "" {
		return nil
	}

	fullPath := filepath.Join(repoPath, relPath)
	info, err := os.Stat(fullPath)
	if err != nil {
		return fmt.Errorf("stat %s: %w", relPath, err)
	}

	fileInfo := FileInfo{
		Path:     relPath,
		FullPath: fullPath,
		Size:     info.Size(),
		Language: language,
	}

	pr, err := c.pipeline.parser.ParseFile(fileInfo)
	if err != nil {
		return fmt.Errorf("parse %s: %w", relPath, err)
	}

	if len(pr.Functions) > 0 {
		embedResult, err := c.pipeline.embeddingGen.EmbedFunctions(ctx, pr.Functions)
		if err != nil {
			return fmt.Errorf("embed functions in %s: %w", relPath, err)
		}
		pr.Functions = embedResult.Functions
	}
	if len(pr.Types) > 0 {
		embedResult, err := c.pipeline.embeddingGen.EmbedTypes(ctx, pr.Types)
		if err != nil {
			return fmt.Errorf("embed types in %s: %w", relPath, err)
		}
		pr.Types = embedResult.Types
	}

	if err := ValidateEntities([]FileEntity{pr.File}, pr.Functions, pr.Defines, pr.Calls); err != nil {
		return fmt.Errorf("validate %s: %w", relPath, err)
	}

	mutations := c.pipeline.datalogBuild.BuildMutationsWithTypes(
		[]FileEntity{pr.File}, pr.Functions, pr.Types, pr.Defines, pr.DefinesTypes, pr.Calls, pr.Imports,
	)
	if err := c.pipeline.Backend().Execute(ctx, mutations); err != nil {
		return fmt.Errorf("write %s: %w", relPath, err)
	}

	return nil
}
