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

// Package watcher coalesces filesystem change events per folder and
// dispatches them to registered handlers after a debounce window, the
// way the teacher's own embedded watch-and-reindex loop coalesces
// fsnotify events before triggering a reindex, generalized here to
// multiple independently-managed folders with include/exclude filtering.
package watcher

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	defaultDebounceMs         = 500
	pendingEventsWarnThreshold = 10000
)

// skipDirs is never traversed regardless of a folder's own exclude
// patterns: these are noise, not content.
var skipDirs = map[string]bool{
	".git": true, "node_modules": true, "vendor": true,
	"dist": true, "build": true, ".cie": true, ".mnemo": true,
}

// EventType classifies a coalesced change.
type EventType string

const (
	EventCreate EventType = "create"
	EventModify EventType = "modify"
	EventDelete EventType = "delete"
)

// FileEvent is one coalesced, debounced filesystem change.
type FileEvent struct {
	FolderID string
	Path     string
	Type     EventType
	At       time.Time
}

// FolderSpec describes one folder to watch.
type FolderSpec struct {
	ID              string
	Path            string
	IncludePatterns []string
	ExcludePatterns []string
	DebounceMs      int
}

// Status reports one folder's watcher state, returned by
// GetAllWatcherStatuses.
type Status struct {
	ID           string
	Path         string
	Watching     bool
	PendingCount int
	LastEventAt  time.Time
	LastError    string
}

// EventHandler observes coalesced file events. A handler that panics is
// recovered so it cannot stop other handlers or future events.
type EventHandler func(FileEvent)

// ErrorHandler observes watcher-level errors (fsnotify failures, a
// handler panic, a walk error).
type ErrorHandler func(folderID string, err error)

// Manager owns every active folder watcher.
type Manager struct {
	mu                    sync.Mutex
	folders               map[string]*folderWatcher
	maxConcurrentWatchers int
	eventHandlers         []EventHandler
	errorHandlers         []ErrorHandler
	logger                *slog.Logger
}

// NewManager creates an empty watcher manager. maxConcurrentWatchers <= 0
// means unlimited.
func NewManager(maxConcurrentWatchers int, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		folders:               make(map[string]*folderWatcher),
		maxConcurrentWatchers: maxConcurrentWatchers,
		logger:                logger,
	}
}

// OnFileEvent registers a handler invoked for every coalesced event
// across every folder.
func (m *Manager) OnFileEvent(h EventHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventHandlers = append(m.eventHandlers, h)
}

// OnError registers a handler invoked for watcher-level errors.
func (m *Manager) OnError(h ErrorHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorHandlers = append(m.errorHandlers, h)
}

// ErrTooManyWatchers is returned by StartWatching when the manager is
// already at its configured concurrent-watcher limit.
type ErrTooManyWatchers struct {
	Max int
}

func (e *ErrTooManyWatchers) Error() string {
	return fmt.Sprintf("at most %d concurrent folder watchers allowed", e.Max)
}

// StartWatching begins watching spec.Path, recursing into subdirectories
// (skipping symlinks and the standard noise directories). Events are
// coalesced per absolute path over the folder's debounce window (or
// defaultDebounceMs) before being dispatched to registered handlers.
func (m *Manager) StartWatching(spec FolderSpec) error {
	m.mu.Lock()
	if m.maxConcurrentWatchers > 0 && len(m.folders) >= m.maxConcurrentWatchers {
		m.mu.Unlock()
		return &ErrTooManyWatchers{Max: m.maxConcurrentWatchers}
	}
	if _, exists := m.folders[spec.ID]; exists {
		m.mu.Unlock()
		return fmt.Errorf("folder %q is already being watched", spec.ID)
	}
	m.mu.Unlock()

	debounce := time.Duration(spec.DebounceMs) * time.Millisecond
	if debounce <= 0 {
		debounce = defaultDebounceMs * time.Millisecond
	}

	fw, err := newFolderWatcher(spec, debounce, m)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.folders[spec.ID] = fw
	m.mu.Unlock()

	go fw.run()
	return nil
}

// StopWatching stops and removes the named folder's watcher. A no-op if
// the folder is not currently watched.
func (m *Manager) StopWatching(id string) {
	m.mu.Lock()
	fw, ok := m.folders[id]
	if ok {
		delete(m.folders, id)
	}
	m.mu.Unlock()

	if ok {
		fw.stop()
	}
}

// GetAllWatcherStatuses returns a snapshot of every watched folder.
func (m *Manager) GetAllWatcherStatuses() []Status {
	m.mu.Lock()
	folders := make([]*folderWatcher, 0, len(m.folders))
	for _, fw := range m.folders {
		folders = append(folders, fw)
	}
	m.mu.Unlock()

	statuses := make([]Status, 0, len(folders))
	for _, fw := range folders {
		statuses = append(statuses, fw.status())
	}
	return statuses
}

// Shutdown stops every active folder watcher.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	folders := make([]*folderWatcher, 0, len(m.folders))
	for id, fw := range m.folders {
		folders = append(folders, fw)
		delete(m.folders, id)
	}
	m.mu.Unlock()

	for _, fw := range folders {
		fw.stop()
	}
}

func (m *Manager) dispatchEvent(ev FileEvent) {
	m.mu.Lock()
	handlers := append([]EventHandler(nil), m.eventHandlers...)
	m.mu.Unlock()

	for _, h := range handlers {
		runHandler(func() { h(ev) }, func(err error) { m.dispatchError(ev.FolderID, err) })
	}
}

func (m *Manager) dispatchError(folderID string, err error) {
	m.mu.Lock()
	handlers := append([]ErrorHandler(nil), m.errorHandlers...)
	m.mu.Unlock()

	if len(handlers) == 0 {
		m.logger.Warn("watcher error", "folder_id", folderID, "error", err)
		return
	}
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("error handler panicked", "folder_id", folderID, "panic", r)
				}
			}()
			h(folderID, err)
		}()
	}
}

// runHandler invokes fn, recovering a panic and routing it to onPanic so
// one throwing handler never stops the others or future events.
func runHandler(fn func(), onPanic func(error)) {
	defer func() {
		if r := recover(); r != nil {
			onPanic(fmt.Errorf("handler panic: %v", r))
		}
	}()
	fn()
}

// matchesPatterns reports whether relPath or its basename matches any of
// patterns. Empty patterns matches everything.
func matchesPatterns(patterns []string, relPath string) bool {
	if len(patterns) == 0 {
		return true
	}
	base := filepath.Base(relPath)
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, base); ok {
			return true
		}
		if ok, _ := filepath.Match(p, relPath); ok {
			return true
		}
		if strings.Contains(relPath, p) {
			return true
		}
	}
	return false
}

func shouldSkipDir(path string) bool {
	base := filepath.Base(path)
	if skipDirs[base] {
		return true
	}
	return strings.HasPrefix(base, ".") && base != "."
}

// isSymlink reports whether info describes a symbolic link, so
// addDirs can refuse to traverse it.
func isSymlink(info os.FileInfo) bool {
	return info.Mode()&os.ModeSymlink != 0
}
