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

package mcpadapter

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/server"
)

const (
	// Name is the MCP server name reported on initialize.
	Name = "mnemo"
	// Version is the MCP server protocol/implementation version string.
	Version = "1.0.0"
	// HTTPPath is the path the streamable HTTP transport is served on,
	// matching spec.md §6's "streamable HTTP /mcp" requirement.
	HTTPPath = "/mcp"
)

// ServeStdio runs the adapter's tools over the stdio transport until ctx
// is cancelled or the client disconnects. Used by `mnemo --mcp`.
func (a *Adapter) ServeStdio(ctx context.Context) error {
	s := a.NewMCPServer(Name, Version)
	return server.ServeStdio(s, server.WithStdioContextFunc(func(c context.Context) context.Context {
		return ctx
	}))
}

// ServeHTTP runs the adapter's tools over the streamable HTTP transport,
// listening on addr at HTTPPath. Used by `mnemo serve`.
func (a *Adapter) ServeHTTP(addr string) error {
	s := a.NewMCPServer(Name, Version)
	httpServer := server.NewStreamableHTTPServer(s, server.WithStreamableHTTPPath(HTTPPath))
	a.logger.Info("mcp http server listening", "addr", addr, "path", HTTPPath)
	if err := httpServer.Start(addr); err != nil {
		return fmt.Errorf("mcp http server: %w", err)
	}
	return nil
}
