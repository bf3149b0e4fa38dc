// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package mcpadapter

import (
	"testing"

	"github.com/kraklabs/mnemo/internal/session"
)

func TestWithSessions_AttachesManagerToAdapter(t *testing.T) {
	mgr := session.NewManager(session.Config{})
	defer mgr.Shutdown()

	a := New(nil, nil, nil, WithSessions(mgr))
	if a.sessions != mgr {
		t.Fatalf("WithSessions did not attach the manager to the adapter")
	}
}

func TestNewMCPServer_WithoutSessionsDoesNotPanic(t *testing.T) {
	a := New(nil, nil, nil)
	s := a.NewMCPServer("test", "0.0.0")
	if s == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}

func TestNewMCPServer_WithSessionsDoesNotPanic(t *testing.T) {
	mgr := session.NewManager(session.Config{MaxSessions: 2})
	defer mgr.Shutdown()

	a := New(nil, nil, nil, WithSessions(mgr))
	s := a.NewMCPServer("test", "0.0.0")
	if s == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}
