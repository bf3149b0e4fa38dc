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

//go:build cgo

package graphstore

import (
	"context"
	"testing"

	"github.com/kraklabs/mnemo/pkg/storage"
)

func setupTestStore(t *testing.T) *Store {
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

	return New(backend)
}

func mustUpsertFunction(t *testing.T, s *Store, id, name, filePath string, startLine, endLine int) {
	t.Helper()
	err := s.UpsertNode(context.Background(), Node{
		ID:   id,
		Kind: NodeFunction,
		Props: map[string]any{
			"name":       name,
			"signature":  name + "()",
			"file_path":  filePath,
			"start_line": startLine,
			"end_line":   endLine,
		},
	})
	if err != nil {
		t.Fatalf("UpsertNode(%s) failed: %v", id, err)
	}
}

func mustCreateCall(t *testing.T, s *Store, id, from, to string) {
	t.Helper()
	err := s.CreateRelationship(context.Background(), Relationship{
		ID: id, From: from, To: to, Type: RelCalls,
	})
	if err != nil {
		t.Fatalf("CreateRelationship(%s) failed: %v", id, err)
	}
}

func TestStore_UpsertAndDeleteNode(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	mustUpsertFunction(t, store, "Function:repo:a.go:Foo:1", "Foo", "a.go", 1, 5)

	result, err := store.RunQuery(ctx, `?[id] := *cie_function{id}`)
	if err != nil {
		t.Fatalf("RunQuery failed: %v", err)
	}
	if len(result.Rows) != 1 {
		t.Fatalf("len(Rows) = %d, want 1", len(result.Rows))
	}

	if err := store.DeleteNode(ctx, NodeFunction, "Function:repo:a.go:Foo:1"); err != nil {
		t.Fatalf("DeleteNode failed: %v", err)
	}

	result, err = store.RunQuery(ctx, `?[id] := *cie_function{id}`)
	if err != nil {
		t.Fatalf("RunQuery failed: %v", err)
	}
	if len(result.Rows) != 0 {
		t.Errorf("len(Rows) = %d, want 0 after delete", len(result.Rows))
	}
}

func TestStore_Traverse_FollowsCallsChain(t *testing.T) {
	store := setupTestStore(t)

	mustUpsertFunction(t, store, "fn:a", "a", "x.go", 1, 2)
	mustUpsertFunction(t, store, "fn:b", "b", "x.go", 3, 4)
	mustUpsertFunction(t, store, "fn:c", "c", "x.go", 5, 6)

	mustCreateCall(t, store, "call:1", "fn:a", "fn:b")
	mustCreateCall(t, store, "call:2", "fn:b", "fn:c")

	result, err := store.Traverse(context.Background(), TraverseInput{
		StartID:           "fn:a",
		RelationshipTypes: []RelType{RelCalls},
		MaxDepth:          2,
	})
	if err != nil {
		t.Fatalf("Traverse failed: %v", err)
	}

	want := map[string]bool{"fn:a": true, "fn:b": true, "fn:c": true}
	if len(result.VisitedIDs) != len(want) {
		t.Fatalf("VisitedIDs = %v, want 3 nodes", result.VisitedIDs)
	}
	for _, id := range result.VisitedIDs {
		if !want[id] {
			t.Errorf("unexpected visited id %q", id)
		}
	}
}

func TestStore_Traverse_RespectsDepthLimit(t *testing.T) {
	store := setupTestStore(t)

	mustUpsertFunction(t, store, "fn:a", "a", "x.go", 1, 2)
	mustUpsertFunction(t, store, "fn:b", "b", "x.go", 3, 4)
	mustUpsertFunction(t, store, "fn:c", "c", "x.go", 5, 6)

	mustCreateCall(t, store, "call:1", "fn:a", "fn:b")
	mustCreateCall(t, store, "call:2", "fn:b", "fn:c")

	result, err := store.Traverse(context.Background(), TraverseInput{
		StartID:           "fn:a",
		RelationshipTypes: []RelType{RelCalls},
		MaxDepth:          1,
	})
	if err != nil {
		t.Fatalf("Traverse failed: %v", err)
	}

	for _, id := range result.VisitedIDs {
		if id == "fn:c" {
			t.Errorf("VisitedIDs includes fn:c at depth 1, should not be reached in a single hop")
		}
	}
}

func TestStore_GetPath_FindsShortestPath(t *testing.T) {
	store := setupTestStore(t)

	mustUpsertFunction(t, store, "fn:a", "a", "x.go", 1, 2)
	mustUpsertFunction(t, store, "fn:b", "b", "x.go", 3, 4)
	mustUpsertFunction(t, store, "fn:c", "c", "x.go", 5, 6)

	mustCreateCall(t, store, "call:1", "fn:a", "fn:b")
	mustCreateCall(t, store, "call:2", "fn:b", "fn:c")

	path, err := store.GetPath(context.Background(), "fn:a", "fn:c", 5, nil)
	if err != nil {
		t.Fatalf("GetPath failed: %v", err)
	}
	if !path.PathExists {
		t.Fatalf("PathExists = false, want true")
	}
	wantPath := []string{"fn:a", "fn:b", "fn:c"}
	if len(path.Path) != len(wantPath) {
		t.Fatalf("Path = %v, want %v", path.Path, wantPath)
	}
	for i, id := range wantPath {
		if path.Path[i] != id {
			t.Errorf("Path[%d] = %q, want %q", i, path.Path[i], id)
		}
	}
	if path.Hops != 2 {
		t.Errorf("Hops = %d, want 2", path.Hops)
	}
}

func TestStore_GetPath_NoPathExists(t *testing.T) {
	store := setupTestStore(t)

	mustUpsertFunction(t, store, "fn:a", "a", "x.go", 1, 2)
	mustUpsertFunction(t, store, "fn:b", "b", "x.go", 3, 4)

	path, err := store.GetPath(context.Background(), "fn:a", "fn:b", 5, nil)
	if err != nil {
		t.Fatalf("GetPath failed: %v", err)
	}
	if path.PathExists {
		t.Errorf("PathExists = true, want false (no edges exist)")
	}
	if path.Hops != 0 {
		t.Errorf("Hops = %d, want 0", path.Hops)
	}
}

func TestStore_GetDependents_ComputesImpactAnalysis(t *testing.T) {
	store := setupTestStore(t)

	mustUpsertFunction(t, store, "fn:a", "a", "x.go", 1, 2)
	mustUpsertFunction(t, store, "fn:b", "b", "x.go", 3, 4)
	mustUpsertFunction(t, store, "fn:target", "target", "x.go", 5, 6)

	mustCreateCall(t, store, "call:1", "fn:a", "fn:target")
	mustCreateCall(t, store, "call:2", "fn:b", "fn:target")

	items, impact, err := store.GetDependents(context.Background(), "fn:target", 1)
	if err != nil {
		t.Fatalf("GetDependents failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d, want 2", len(items))
	}
	if impact.DirectImpactCount != 2 {
		t.Errorf("DirectImpactCount = %d, want 2", impact.DirectImpactCount)
	}
	if impact.ImpactScore != 1 {
		t.Errorf("ImpactScore = %v, want 1 (all impact is direct)", impact.ImpactScore)
	}
}

func TestStore_HealthCheck(t *testing.T) {
	store := setupTestStore(t)
	if err := store.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}
