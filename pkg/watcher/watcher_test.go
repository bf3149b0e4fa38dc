// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestMatchesPatterns(t *testing.T) {
	cases := []struct {
		patterns []string
		relPath  string
		want     bool
	}{
		{patterns: nil, relPath: "anything.go", want: true},
		{patterns: []string{"*.go"}, relPath: "main.go", want: true},
		{patterns: []string{"*.go"}, relPath: "README.md", want: false},
		{patterns: []string{"src/*"}, relPath: "src/main.go", want: true},
		{patterns: []string{"vendor"}, relPath: "vendor/lib/x.go", want: true},
	}
	for _, c := range cases {
		if got := matchesPatterns(c.patterns, c.relPath); got != c.want {
			t.Errorf("matchesPatterns(%v, %q) = %v, want %v", c.patterns, c.relPath, got, c.want)
		}
	}
}

func TestShouldSkipDir(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{path: "/repo/.git", want: true},
		{path: "/repo/node_modules", want: true},
		{path: "/repo/.hidden", want: true},
		{path: "/repo/src", want: false},
	}
	for _, c := range cases {
		if got := shouldSkipDir(c.path); got != c.want {
			t.Errorf("shouldSkipDir(%q) = %v, want %v", c.path, got, c.want)
		}
	}
}

func TestManager_StartWatchingRespectsMaxConcurrent(t *testing.T) {
	dir1 := t.TempDir()
	dir2 := t.TempDir()

	m := NewManager(1, nil)
	defer m.Shutdown()

	if err := m.StartWatching(FolderSpec{ID: "a", Path: dir1}); err != nil {
		t.Fatalf("StartWatching(a): %v", err)
	}

	err := m.StartWatching(FolderSpec{ID: "b", Path: dir2})
	if err == nil {
		t.Fatalf("StartWatching over capacity succeeded, want ErrTooManyWatchers")
	}
	if _, ok := err.(*ErrTooManyWatchers); !ok {
		t.Fatalf("got %T, want *ErrTooManyWatchers", err)
	}
}

func TestManager_StartWatchingRejectsDuplicateID(t *testing.T) {
	dir := t.TempDir()

	m := NewManager(0, nil)
	defer m.Shutdown()

	if err := m.StartWatching(FolderSpec{ID: "a", Path: dir}); err != nil {
		t.Fatalf("StartWatching: %v", err)
	}
	if err := m.StartWatching(FolderSpec{ID: "a", Path: dir}); err == nil {
		t.Fatalf("StartWatching with a duplicate ID succeeded, want an error")
	}
}

func TestManager_StopWatchingRemovesStatus(t *testing.T) {
	dir := t.TempDir()

	m := NewManager(0, nil)
	defer m.Shutdown()

	if err := m.StartWatching(FolderSpec{ID: "a", Path: dir}); err != nil {
		t.Fatalf("StartWatching: %v", err)
	}
	if len(m.GetAllWatcherStatuses()) != 1 {
		t.Fatalf("expected one watched folder before StopWatching")
	}

	m.StopWatching("a")
	if len(m.GetAllWatcherStatuses()) != 0 {
		t.Fatalf("expected no watched folders after StopWatching")
	}

	// stopping an unknown folder is a no-op, not a panic.
	m.StopWatching("missing")
}

func TestManager_DispatchesDebouncedCreateEvent(t *testing.T) {
	dir := t.TempDir()

	m := NewManager(0, nil)
	defer m.Shutdown()

	var mu sync.Mutex
	var events []FileEvent
	m.OnFileEvent(func(ev FileEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	if err := m.StartWatching(FolderSpec{ID: "a", Path: dir, DebounceMs: 10}); err != nil {
		t.Fatalf("StartWatching: %v", err)
	}

	target := filepath.Join(dir, "new_file.txt")
	if err := os.WriteFile(target, []byte("hello"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(events)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) == 0 {
		t.Fatalf("expected at least one dispatched event for a new file")
	}
	if events[0].FolderID != "a" {
		t.Errorf("FolderID = %q, want a", events[0].FolderID)
	}
}

func TestManager_HandlerPanicDoesNotStopDispatch(t *testing.T) {
	dir := t.TempDir()

	m := NewManager(0, nil)
	defer m.Shutdown()

	var mu sync.Mutex
	secondCalled := false

	m.OnFileEvent(func(ev FileEvent) { panic("boom") })
	m.OnFileEvent(func(ev FileEvent) {
		mu.Lock()
		secondCalled = true
		mu.Unlock()
	})

	if err := m.StartWatching(FolderSpec{ID: "a", Path: dir, DebounceMs: 10}); err != nil {
		t.Fatalf("StartWatching: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "x.txt"), []byte("hi"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		called := secondCalled
		mu.Unlock()
		if called {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("second handler never ran after the first handler panicked")
}
