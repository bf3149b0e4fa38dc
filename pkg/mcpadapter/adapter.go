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

// Package mcpadapter exposes the graph query service, vector search, and
// repository lifecycle as MCP tools over github.com/mark3labs/mcp-go,
// the way the teacher's own mcp.go hand-rolls the same surface over raw
// JSON-RPC: this package is the "MCP wire framing" spec.md calls out of
// scope, implemented against the ecosystem library instead.
package mcpadapter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kraklabs/mnemo/internal/session"
	"github.com/kraklabs/mnemo/pkg/graphstore"
	"github.com/kraklabs/mnemo/pkg/ingestion"
	"github.com/kraklabs/mnemo/pkg/queryservice"
	"github.com/kraklabs/mnemo/pkg/vectorstore"
	"github.com/mark3labs/mcp-go/server"
)

// RepositoryHandle bundles the per-repository stores a tool call needs.
// One is produced per repository name by the adapter's Repositories
// resolver, mirroring queryservice.StoreResolver's indirection: C12's
// multi-repository registry owns the actual lifecycle, this package only
// consumes it.
type RepositoryHandle struct {
	Graph     *graphstore.Store
	Vectors   *vectorstore.Store
	Embedding ingestion.EmbeddingProvider
}

// RepositoryResolver looks up an already-open repository's stores by
// name. Implementations typically wrap internal/bootstrap.OpenProject
// plus internal/config.FindRepository.
type RepositoryResolver func(repository string) (*RepositoryHandle, error)

// RepositoryLister enumerates repositories known to the server, backing
// the list_repositories tool.
type RepositoryLister func() ([]string, error)

// Adapter owns every dependency the registered tools call into.
type Adapter struct {
	queries      *queryservice.Service
	repos        RepositoryResolver
	list         RepositoryLister
	logger       *slog.Logger
	instructions string
	sessions     *session.Manager
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger overrides the adapter's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithInstructions sets the text sent to MCP clients on initialize.
func WithInstructions(instructions string) Option {
	return func(a *Adapter) { a.instructions = instructions }
}

// WithSessions tracks every MCP session mcp-go registers through mgr,
// enforcing spec's TOO_MANY_SESSIONS cap and idle TTL sweep on top of
// mcp-go's own transport-level session bookkeeping. Without this option
// the adapter runs exactly as before, relying solely on mcp-go's internal
// session handling.
func WithSessions(mgr *session.Manager) Option {
	return func(a *Adapter) { a.sessions = mgr }
}

// New creates an Adapter. queries backs the graph operations (C10);
// resolve and list back repository lookup and enumeration.
func New(queries *queryservice.Service, resolve RepositoryResolver, list RepositoryLister, opts ...Option) *Adapter {
	a := &Adapter{
		queries: queries,
		repos:   resolve,
		list:    list,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) repository(name string) (*RepositoryHandle, error) {
	if a.repos == nil {
		return nil, fmt.Errorf("mcpadapter: no repository resolver configured")
	}
	handle, err := a.repos(name)
	if err != nil {
		return nil, fmt.Errorf("resolve repository %q: %w", name, err)
	}
	if handle == nil {
		return nil, fmt.Errorf("repository %q not found", name)
	}
	return handle, nil
}

// NewMCPServer builds a mark3labs/mcp-go server with every tool
// registered, ready to serve over stdio or streamable HTTP.
func (a *Adapter) NewMCPServer(name, version string) *server.MCPServer {
	opts := []server.ServerOption{
		server.WithToolCapabilities(true),
	}
	if a.instructions != "" {
		opts = append(opts, server.WithInstructions(a.instructions))
	}
	var s *server.MCPServer
	if a.sessions != nil {
		opts = append(opts, server.WithHooks(a.sessionHooks(func() *server.MCPServer { return s })))
	}
	s = server.NewMCPServer(name, version, opts...)
	a.registerTools(s)
	return s
}

// sessionHooks mirrors every session mcp-go registers/unregisters into
// a.sessions, so spec's TOO_MANY_SESSIONS cap and idle-TTL sweep apply to
// real traffic instead of sitting unconnected from the transport. getServer
// is indirected through a closure because the *server.MCPServer a session
// needs to be force-closed through doesn't exist yet when hooks are built.
func (a *Adapter) sessionHooks(getServer func() *server.MCPServer) *server.Hooks {
	hooks := server.NewHooks()
	hooks.AddOnRegisterSession(func(ctx context.Context, cs server.ClientSession) {
		transport := &mcpSessionTransport{srv: getServer, sessionID: cs.SessionID()}
		if _, err := a.sessions.Open(cs.SessionID(), transport); err != nil {
			a.logger.Warn("session.rejected", "session_id", cs.SessionID(), "err", err)
			getServer().UnregisterSession(ctx, cs.SessionID())
		}
	})
	hooks.AddOnUnregisterSession(func(ctx context.Context, cs server.ClientSession) {
		_ = a.sessions.Close(cs.SessionID())
	})
	return hooks
}

// mcpSessionTransport lets internal/session.Manager force-close a session
// it has swept for inactivity by unregistering it from the owning mcp-go
// server, the only way to actually terminate a live MCP connection.
type mcpSessionTransport struct {
	srv       func() *server.MCPServer
	sessionID string
}

func (t *mcpSessionTransport) Close() error {
	t.srv().UnregisterSession(context.Background(), t.sessionID)
	return nil
}
