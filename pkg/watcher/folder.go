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

package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// folderWatcher is one fsnotify.Watcher plus the per-path coalescing
// state for a single watched folder.
type folderWatcher struct {
	spec     FolderSpec
	debounce time.Duration
	manager  *Manager
	fsw      *fsnotify.Watcher

	mu       sync.Mutex
	pending  map[string]*pendingEvent // absolute path -> coalesced event
	lastAt   time.Time
	lastErr  string
	watching bool

	done chan struct{}
}

type pendingEvent struct {
	eventType EventType
	timer     *time.Timer
}

func newFolderWatcher(spec FolderSpec, debounce time.Duration, manager *Manager) (*folderWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	fw := &folderWatcher{
		spec:     spec,
		debounce: debounce,
		manager:  manager,
		fsw:      fsw,
		pending:  make(map[string]*pendingEvent),
		done:     make(chan struct{}),
	}

	if err := fw.addDirs(spec.Path); err != nil {
		fsw.Close()
		return nil, err
	}

	fw.mu.Lock()
	fw.watching = true
	fw.mu.Unlock()

	return fw, nil
}

// addDirs recursively registers every non-skipped directory under root.
// Symlinks are never followed.
func (fw *folderWatcher) addDirs(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsPermission(err) {
				return filepath.SkipDir
			}
			return nil
		}
		if isSymlink(info) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		if path != root && shouldSkipDir(path) {
			return filepath.SkipDir
		}
		if err := fw.fsw.Add(path); err != nil && !os.IsPermission(err) {
			return nil
		}
		return nil
	})
}

func (fw *folderWatcher) run() {
	for {
		select {
		case <-fw.done:
			return
		case event, ok := <-fw.fsw.Events:
			if !ok {
				return
			}
			fw.handleRawEvent(event)
		case err, ok := <-fw.fsw.Errors:
			if !ok {
				return
			}
			fw.recordError(err)
			fw.manager.dispatchError(fw.spec.ID, err)
		}
	}
}

func (fw *folderWatcher) handleRawEvent(event fsnotify.Event) {
	relPath, err := filepath.Rel(fw.spec.Path, event.Name)
	if err != nil {
		relPath = event.Name
	}
	if !matchesPatterns(fw.spec.IncludePatterns, relPath) {
		return
	}
	if matchesPatterns(fw.spec.ExcludePatterns, relPath) {
		return
	}

	evType := EventModify
	switch {
	case event.Op&fsnotify.Create != 0:
		evType = EventCreate
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !shouldSkipDir(event.Name) {
			_ = fw.fsw.Add(event.Name)
		}
	case event.Op&fsnotify.Remove != 0, event.Op&fsnotify.Rename != 0:
		evType = EventDelete
	}

	fw.mu.Lock()
	if _, exists := fw.pending[event.Name]; !exists && len(fw.pending) >= pendingEventsWarnThreshold {
		fw.mu.Unlock()
		fw.manager.dispatchError(fw.spec.ID, errPendingThreshold{count: len(fw.pending)})
		fw.mu.Lock()
	}

	pe, exists := fw.pending[event.Name]
	if exists {
		pe.eventType = evType
		pe.timer.Reset(fw.debounce)
	} else {
		pe = &pendingEvent{eventType: evType}
		path := event.Name
		pe.timer = time.AfterFunc(fw.debounce, func() { fw.fire(path) })
		fw.pending[event.Name] = pe
	}
	fw.mu.Unlock()
}

func (fw *folderWatcher) fire(path string) {
	fw.mu.Lock()
	pe, ok := fw.pending[path]
	if !ok {
		fw.mu.Unlock()
		return
	}
	delete(fw.pending, path)
	fw.lastAt = time.Now()
	fw.mu.Unlock()

	fw.manager.dispatchEvent(FileEvent{
		FolderID: fw.spec.ID,
		Path:     path,
		Type:     pe.eventType,
		At:       time.Now(),
	})
}

func (fw *folderWatcher) recordError(err error) {
	fw.mu.Lock()
	fw.lastErr = err.Error()
	fw.mu.Unlock()
}

func (fw *folderWatcher) status() Status {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return Status{
		ID:           fw.spec.ID,
		Path:         fw.spec.Path,
		Watching:     fw.watching,
		PendingCount: len(fw.pending),
		LastEventAt:  fw.lastAt,
		LastError:    fw.lastErr,
	}
}

func (fw *folderWatcher) stop() {
	fw.mu.Lock()
	fw.watching = false
	for _, pe := range fw.pending {
		pe.timer.Stop()
	}
	fw.pending = make(map[string]*pendingEvent)
	fw.mu.Unlock()

	close(fw.done)
	fw.fsw.Close()
}

// errPendingThreshold is reported through the error handler path when a
// folder's coalescing buffer crosses pendingEventsWarnThreshold.
type errPendingThreshold struct {
	count int
}

func (e errPendingThreshold) Error() string {
	return "pending events exceeds threshold"
}
