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

// Package session tracks live streaming-transport sessions (MCP stdio/HTTP
// connections) and sweeps idle ones, the way internal/lock tracks
// per-repository exclusivity with a keyed map guarded by one mutex.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Transport is anything a session can close when it is swept or shut down.
// *http.ResponseWriter flushers, stdio pipes, and SSE writers all satisfy
// this with a thin adapter.
type Transport interface {
	Close() error
}

// Session is one live client connection.
type Session struct {
	ID           string
	Transport    Transport
	CreatedAt    time.Time
	LastActivity time.Time
}

// ErrTooManySessions is returned by Open when active count has already
// reached MaxSessions.
type ErrTooManySessions struct {
	Max int
}

func (e *ErrTooManySessions) Error() string {
	return fmt.Sprintf("TOO_MANY_SESSIONS: at most %d concurrent sessions allowed", e.Max)
}

// Manager owns the live session map and the sweeper that closes idle
// sessions in the background.
type Manager struct {
	mu                sync.Mutex
	sessions          map[string]*Session
	maxSessions       int
	sessionTTL        time.Duration
	cleanupInterval   time.Duration
	closeTimeout      time.Duration
	logger            *slog.Logger
	stop              chan struct{}
	stopped           sync.Once
}

// Config controls Manager's limits and sweep cadence. Zero values fall
// back to spec defaults (100 sessions, 30 min TTL, 5 min sweep).
type Config struct {
	MaxSessions       int
	SessionTTLMs      int
	CleanupIntervalMs int
	Logger            *slog.Logger
}

const defaultCloseTimeout = 2 * time.Second

// NewManager creates a Manager and starts its background sweeper. Call
// Shutdown to stop the sweeper and close every remaining session.
func NewManager(cfg Config) *Manager {
	maxSessions := cfg.MaxSessions
	if maxSessions <= 0 {
		maxSessions = 100
	}
	ttlMs := cfg.SessionTTLMs
	if ttlMs <= 0 {
		ttlMs = 30 * 60 * 1000
	}
	intervalMs := cfg.CleanupIntervalMs
	if intervalMs <= 0 {
		intervalMs = 5 * 60 * 1000
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		sessions:        make(map[string]*Session),
		maxSessions:     maxSessions,
		sessionTTL:      time.Duration(ttlMs) * time.Millisecond,
		cleanupInterval: time.Duration(intervalMs) * time.Millisecond,
		closeTimeout:    defaultCloseTimeout,
		logger:          logger,
		stop:            make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

// Open registers a new session, failing with ErrTooManySessions if the
// manager is already at capacity.
func (m *Manager) Open(id string, transport Transport) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) >= m.maxSessions {
		return nil, &ErrTooManySessions{Max: m.maxSessions}
	}

	now := time.Now()
	s := &Session{ID: id, Transport: transport, CreatedAt: now, LastActivity: now}
	m.sessions[id] = s
	return s, nil
}

// Touch records activity on a session, resetting its idle clock. Reports
// whether the session was found.
func (m *Manager) Touch(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return false
	}
	s.LastActivity = time.Now()
	return true
}

// Close removes and closes a session by id. Safe to call even if the
// session was already removed by the sweeper.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}
	return m.closeWithTimeout(s)
}

// Count returns the number of currently open sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Get returns the session for id, if still open.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Shutdown stops the sweeper and closes every remaining session.
func (m *Manager) Shutdown() {
	m.stopped.Do(func() { close(m.stop) })

	m.mu.Lock()
	remaining := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		remaining = append(remaining, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, s := range remaining {
		_ = m.closeWithTimeout(s)
	}
}

func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.sweepIdle()
		}
	}
}

func (m *Manager) sweepIdle() {
	cutoff := time.Now().Add(-m.sessionTTL)

	m.mu.Lock()
	var idle []*Session
	for id, s := range m.sessions {
		if s.LastActivity.Before(cutoff) {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		m.logger.Info("closing idle session", "session_id", s.ID, "idle_for", time.Since(s.LastActivity))
		if err := m.closeWithTimeout(s); err != nil {
			m.logger.Warn("session close failed", "session_id", s.ID, "error", err)
		}
	}
}

// closeWithTimeout closes a session's transport, giving up after
// closeTimeout so one hung connection cannot block the sweeper.
func (m *Manager) closeWithTimeout(s *Session) error {
	if s.Transport == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- s.Transport.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), m.closeTimeout)
	defer cancel()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("session %q: close timed out after %s", s.ID, m.closeTimeout)
	}
}
