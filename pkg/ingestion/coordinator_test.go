// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build cgo

package ingestion

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func mustRunGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
		"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
}

func newTestGitRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	mustRunGit(t, dir, "init", "-q")
	mustRunGit(t, dir, "config", "commit.gpgsign", "false")

	writeAndCommit := func(relPath, content, message string) {
		full := filepath.Join(dir, relPath)
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		mustRunGit(t, dir, "add", ".")
		mustRunGit(t, dir, "commit", "-q", "-m", message)
	}

	writeAndCommit("main.go", "package main\n\nfunc Hello() string {\n\treturn \"hi\"\n}\n", "initial")
	return dir
}

func newTestCoordinator(t *testing.T, repoPath string) *UpdateCoordinator {
	t.Helper()
	cfg := DefaultConfig()
	cfg.LocalDataDir = t.TempDir()
	cfg.LocalEngine = "mem"
	cfg.EmbeddingProvider = "mock"
	cfg.ParserMode = ParserModeSimplified

	pipeline, err := NewLocalPipeline(Config{
		ProjectID:       "coordinator-test",
		RepoSource:      RepoSource{Type: "local_path", Value: repoPath},
		IngestionConfig: cfg,
	}, nil)
	if err != nil {
		t.Fatalf("NewLocalPipeline: %v", err)
	}
	t.Cleanup(func() { _ = pipeline.Close() })

	return NewUpdateCoordinator(pipeline, nil)
}

func TestUpdateCoordinator_FirstRunIndexesEverything(t *testing.T) {
	repoPath := newTestGitRepo(t)
	coord := newTestCoordinator(t, repoPath)

	result, err := coord.Update(context.Background(), "demo", repoPath)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if result.Status != UpdateStatusUpdated {
		t.Fatalf("Status = %v, want updated", result.Status)
	}
	if result.Stats.FilesAdded != 1 {
		t.Errorf("FilesAdded = %d, want 1", result.Stats.FilesAdded)
	}
	if len(result.Errors) != 0 {
		t.Errorf("Errors = %v, want none", result.Errors)
	}

	sha, err := coord.pipeline.Backend().GetLastIndexedSHA()
	if err != nil {
		t.Fatalf("GetLastIndexedSHA: %v", err)
	}
	if sha != result.CommitSHA {
		t.Errorf("checkpoint SHA = %q, want %q", sha, result.CommitSHA)
	}
}

func TestUpdateCoordinator_NoChangesShortCircuits(t *testing.T) {
	repoPath := newTestGitRepo(t)
	coord := newTestCoordinator(t, repoPath)

	if _, err := coord.Update(context.Background(), "demo", repoPath); err != nil {
		t.Fatalf("first Update: %v", err)
	}

	result, err := coord.Update(context.Background(), "demo", repoPath)
	if err != nil {
		t.Fatalf("second Update: %v", err)
	}
	if result.Status != UpdateStatusNoChanges {
		t.Fatalf("Status = %v, want no_changes", result.Status)
	}
}

func TestUpdateCoordinator_ModifiedFileIsReprocessed(t *testing.T) {
	repoPath := newTestGitRepo(t)
	coord := newTestCoordinator(t, repoPath)

	if _, err := coord.Update(context.Background(), "demo", repoPath); err != nil {
		t.Fatalf("first Update: %v", err)
	}

	mainGo := filepath.Join(repoPath, "main.go")
	if err := os.WriteFile(mainGo, []byte("package main\n\nfunc Hello() string {\n\treturn \"bye\"\n}\n\nfunc World() {}\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	mustRunGit(t, repoPath, "add", ".")
	mustRunGit(t, repoPath, "commit", "-q", "-m", "modify")

	result, err := coord.Update(context.Background(), "demo", repoPath)
	if err != nil {
		t.Fatalf("second Update: %v", err)
	}
	if result.Status != UpdateStatusUpdated {
		t.Fatalf("Status = %v, want updated", result.Status)
	}
	if result.Stats.FilesModified != 1 {
		t.Errorf("FilesModified = %d, want 1", result.Stats.FilesModified)
	}
}

func TestUpdateCoordinator_DeletedFileIsPurged(t *testing.T) {
	repoPath := newTestGitRepo(t)
	coord := newTestCoordinator(t, repoPath)

	if _, err := coord.Update(context.Background(), "demo", repoPath); err != nil {
		t.Fatalf("first Update: %v", err)
	}

	if err := os.Remove(filepath.Join(repoPath, "main.go")); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	mustRunGit(t, repoPath, "add", ".")
	mustRunGit(t, repoPath, "commit", "-q", "-m", "delete")

	result, err := coord.Update(context.Background(), "demo", repoPath)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if result.Stats.FilesDeleted != 1 {
		t.Errorf("FilesDeleted = %d, want 1", result.Stats.FilesDeleted)
	}
}

func TestUpdateCoordinator_RejectsNonGitRepository(t *testing.T) {
	dir := t.TempDir()
	coord := newTestCoordinator(t, dir)

	if _, err := coord.Update(context.Background(), "demo", dir); err == nil {
		t.Fatalf("Update against a non-git directory succeeded, want an error")
	}
}
