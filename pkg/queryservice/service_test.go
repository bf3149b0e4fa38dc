// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build cgo

package queryservice

import (
	"context"
	"fmt"
	"testing"

	"github.com/kraklabs/mnemo/pkg/graphstore"
	"github.com/kraklabs/mnemo/pkg/storage"
)

func setupTestStore(t *testing.T) (*storage.EmbeddedBackend, *graphstore.Store) {
	t.Helper()
	backend, err := storage.NewEmbeddedBackend(storage.EmbeddedConfig{
		DataDir: t.TempDir(),
		Engine:  "mem",
	})
	if err != nil {
		t.Fatalf("NewEmbeddedBackend failed: %v", err)
	}
	t.Cleanup(func() { _ = backend.Close() })

	if err := backend.EnsureSchema(); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}

	return backend, graphstore.New(backend)
}

func mustUpsertFunction(t *testing.T, s *graphstore.Store, id, name, filePath string) {
	t.Helper()
	err := s.UpsertNode(context.Background(), graphstore.Node{
		ID:   id,
		Kind: graphstore.NodeFunction,
		Props: map[string]any{
			"name":       name,
			"signature":  name + "()",
			"file_path":  filePath,
			"start_line": 1,
			"end_line":   10,
		},
	})
	if err != nil {
		t.Fatalf("UpsertNode(%s): %v", id, err)
	}
}

func mustCreateCall(t *testing.T, s *graphstore.Store, id, from, to string) {
	t.Helper()
	if err := s.CreateRelationship(context.Background(), graphstore.Relationship{
		ID: id, From: from, To: to, Type: graphstore.RelCalls,
	}); err != nil {
		t.Fatalf("CreateRelationship(%s): %v", id, err)
	}
}

func singleRepoResolver(store *graphstore.Store, repoName string) StoreResolver {
	return func(repository string) (*graphstore.Store, error) {
		if repository != "" && repository != repoName {
			return nil, fmt.Errorf("unknown repository %q", repository)
		}
		return store, nil
	}
}

func TestService_GetDependencies(t *testing.T) {
	_, store := setupTestStore(t)
	mustUpsertFunction(t, store, "fn:a", "a", "x.go")
	mustUpsertFunction(t, store, "fn:b", "b", "x.go")
	mustCreateCall(t, store, "call:1", "fn:a", "fn:b")

	svc := New(singleRepoResolver(store, "demo"))
	result, err := svc.GetDependencies(context.Background(), DependenciesInput{Entity: "fn:a", Repository: "demo", Depth: 1})
	if err != nil {
		t.Fatalf("GetDependencies: %v", err)
	}
	if len(result.Items) != 1 || result.Items[0].Path != "fn:b" {
		t.Fatalf("GetDependencies() = %+v, want one item fn:b", result.Items)
	}
	if result.FromCache {
		t.Errorf("first call reported FromCache = true")
	}
}

func TestService_GetDependents(t *testing.T) {
	_, store := setupTestStore(t)
	mustUpsertFunction(t, store, "fn:a", "a", "x.go")
	mustUpsertFunction(t, store, "fn:b", "b", "x.go")
	mustUpsertFunction(t, store, "fn:target", "target", "x.go")
	mustCreateCall(t, store, "call:1", "fn:a", "fn:target")
	mustCreateCall(t, store, "call:2", "fn:b", "fn:target")

	svc := New(singleRepoResolver(store, "demo"))
	result, err := svc.GetDependents(context.Background(), DependentsInput{Entity: "fn:target", Repository: "demo", Depth: 1})
	if err != nil {
		t.Fatalf("GetDependents: %v", err)
	}
	if result.ImpactAnalysis.DirectImpactCount != 2 {
		t.Errorf("DirectImpactCount = %d, want 2", result.ImpactAnalysis.DirectImpactCount)
	}
}

func TestService_GetPath(t *testing.T) {
	_, store := setupTestStore(t)
	mustUpsertFunction(t, store, "fn:a", "a", "x.go")
	mustUpsertFunction(t, store, "fn:b", "b", "x.go")
	mustUpsertFunction(t, store, "fn:c", "c", "x.go")
	mustCreateCall(t, store, "call:1", "fn:a", "fn:b")
	mustCreateCall(t, store, "call:2", "fn:b", "fn:c")

	svc := New(singleRepoResolver(store, "demo"))
	result, err := svc.GetPath(context.Background(), PathInput{Repository: "demo", From: "fn:a", To: "fn:c", MaxHops: 5})
	if err != nil {
		t.Fatalf("GetPath: %v", err)
	}
	if !result.PathExists || result.Hops != 2 {
		t.Fatalf("GetPath() = %+v, want a 2-hop path", result)
	}
}

func TestService_GetPath_CachesSecondCall(t *testing.T) {
	_, store := setupTestStore(t)
	mustUpsertFunction(t, store, "fn:a", "a", "x.go")
	mustUpsertFunction(t, store, "fn:b", "b", "x.go")
	mustCreateCall(t, store, "call:1", "fn:a", "fn:b")

	svc := New(singleRepoResolver(store, "demo"), WithCache(16))

	first, err := svc.GetPath(context.Background(), PathInput{Repository: "demo", From: "fn:a", To: "fn:b", MaxHops: 5})
	if err != nil {
		t.Fatalf("GetPath (first): %v", err)
	}
	if first.FromCache {
		t.Fatalf("first call reported FromCache = true")
	}

	second, err := svc.GetPath(context.Background(), PathInput{Repository: "demo", From: "fn:a", To: "fn:b", MaxHops: 5})
	if err != nil {
		t.Fatalf("GetPath (second): %v", err)
	}
	if !second.FromCache {
		t.Fatalf("second identical call reported FromCache = false, want true")
	}
	if second.Hops != first.Hops {
		t.Errorf("cached Hops = %d, want %d", second.Hops, first.Hops)
	}
}

func TestService_GetArchitecture(t *testing.T) {
	backend, store := setupTestStore(t)
	ctx := context.Background()

	mustUpsertFunction(t, store, "fn:a", "Handler", "api/handler.go")
	mustUpsertFunction(t, store, "fn:b", "Helper", "internal/helper.go")
	mustCreateCall(t, store, "call:1", "fn:a", "fn:b")

	if err := backend.Execute(ctx,
		`?[id, path, hash, language, size] <- [["file:1", "api/handler.go", "h1", "go", 10], ["file:2", "internal/helper.go", "h2", "go", 20]]
		 :put cie_file { id => path, hash, language, size }`); err != nil {
		t.Fatalf("seeding cie_file: %v", err)
	}

	svc := New(singleRepoResolver(store, "demo"))
	result, err := svc.GetArchitecture(context.Background(), ArchitectureInput{Repository: "demo", DetailLevel: DetailPackages})
	if err != nil {
		t.Fatalf("GetArchitecture: %v", err)
	}
	if result.Metrics.TotalFiles != 2 {
		t.Errorf("TotalFiles = %d, want 2", result.Metrics.TotalFiles)
	}
	if len(result.Nodes) != 2 {
		t.Fatalf("Nodes = %+v, want 2 package groups (api, internal)", result.Nodes)
	}
	if len(result.Dependencies) != 1 {
		t.Fatalf("Dependencies = %+v, want 1 inter-package edge", result.Dependencies)
	}
}

func TestService_StoreResolverErrorPropagates(t *testing.T) {
	svc := New(func(repository string) (*graphstore.Store, error) {
		return nil, fmt.Errorf("no such repository")
	})
	if _, err := svc.GetDependencies(context.Background(), DependenciesInput{Entity: "fn:a", Repository: "missing", Depth: 1}); err == nil {
		t.Fatalf("GetDependencies with a failing resolver succeeded, want an error")
	}
}
