// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package jobs

import (
	"errors"
	"testing"
)

func TestTracker_StartRunningAndHasRunningJob(t *testing.T) {
	tr := NewTracker(Config{})

	if tr.HasRunningJob("repo-a") {
		t.Fatalf("HasRunningJob true before any job started")
	}

	j, err := tr.Start("job-1", "repo-a")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if j.Status != StatusPending {
		t.Fatalf("Status = %v, want pending", j.Status)
	}
	if !tr.HasRunningJob("repo-a") {
		t.Fatalf("HasRunningJob false after Start")
	}

	if _, err := tr.Start("job-2", "repo-a"); err == nil {
		t.Fatalf("expected ErrJobRunning for a second concurrent job on the same repository")
	} else {
		var jobRunning *ErrJobRunning
		if !errors.As(err, &jobRunning) {
			t.Fatalf("got %v, want ErrJobRunning", err)
		}
	}
}

func TestTracker_CompleteFreesRepoSlot(t *testing.T) {
	tr := NewTracker(Config{})

	if _, err := tr.Start("job-1", "repo-a"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	tr.Running("job-1")
	tr.Complete("job-1", map[string]int{"files": 3})

	job, ok := tr.Get("job-1")
	if !ok {
		t.Fatalf("Get: job not found")
	}
	if job.Status != StatusCompleted {
		t.Fatalf("Status = %v, want completed", job.Status)
	}
	if job.CompletedAt == nil {
		t.Fatalf("CompletedAt not set")
	}

	if tr.HasRunningJob("repo-a") {
		t.Fatalf("HasRunningJob true after Complete")
	}
	if _, err := tr.Start("job-2", "repo-a"); err != nil {
		t.Fatalf("Start after Complete: %v", err)
	}
}

func TestTracker_Fail(t *testing.T) {
	tr := NewTracker(Config{})

	if _, err := tr.Start("job-1", "repo-a"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	tr.Fail("job-1", errors.New("boom"))

	job, _ := tr.Get("job-1")
	if job.Status != StatusFailed {
		t.Fatalf("Status = %v, want failed", job.Status)
	}
	if job.Error != "boom" {
		t.Fatalf("Error = %q, want boom", job.Error)
	}
}

func TestTracker_EvictionKeepsUnderCap(t *testing.T) {
	tr := NewTracker(Config{MaxJobs: 2})

	for i := 0; i < 5; i++ {
		repo := "repo"
		id := "job"
		// vary repository per iteration so Start never refuses on a still-running job
		repo = repo + string(rune('a'+i))
		id = id + string(rune('a'+i))
		if _, err := tr.Start(id, repo); err != nil {
			t.Fatalf("Start %d: %v", i, err)
		}
		tr.Complete(id, nil)
	}

	if len(tr.List()) > 2 {
		t.Fatalf("List() has %d jobs, want at most 2 after eviction", len(tr.List()))
	}
}

func TestTracker_EvictionNeverDropsRunningJobs(t *testing.T) {
	tr := NewTracker(Config{MaxJobs: 1})

	if _, err := tr.Start("job-running", "repo-a"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	tr.Running("job-running")

	// Starting a second job for a different repository should not evict
	// the still-running job, even though it pushes past maxJobs.
	if _, err := tr.Start("job-2", "repo-b"); err != nil {
		t.Fatalf("Start job-2: %v", err)
	}

	if _, ok := tr.Get("job-running"); !ok {
		t.Fatalf("running job was evicted")
	}
}
