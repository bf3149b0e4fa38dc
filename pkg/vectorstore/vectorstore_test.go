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

package vectorstore

import (
	"context"
	"strings"
	"testing"

	"github.com/kraklabs/mnemo/pkg/storage"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	backend, err := storage.NewEmbeddedBackend(storage.EmbeddedConfig{
		DataDir:             t.TempDir(),
		Engine:              "mem",
		EmbeddingDimensions: 4,
	})
	if err != nil {
		t.Fatalf("NewEmbeddedBackend failed: %v", err)
	}
	t.Cleanup(func() { _ = backend.Close() })

	if err := backend.EnsureSchema(); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
	if err := backend.CreateHNSWIndex(4); err != nil {
		t.Fatalf("CreateHNSWIndex failed: %v", err)
	}

	return New(backend)
}

func TestStore_UpsertAndSimilaritySearch(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	docs := []Document{
		{
			ID:      "repo:doc.md:0",
			Vector:  []float32{1, 0, 0, 0},
			Content: "introduction to the project",
			Metadata: Metadata{
				FilePath:       "doc.md",
				ChunkIndex:     0,
				ChunkStartLine: 1,
				ChunkEndLine:   5,
			},
		},
		{
			ID:      "repo:doc.md:1",
			Vector:  []float32{0, 1, 0, 0},
			Content: "unrelated chunk about something else entirely",
			Metadata: Metadata{
				FilePath:       "doc.md",
				ChunkIndex:     1,
				ChunkStartLine: 6,
				ChunkEndLine:   10,
			},
		},
	}

	if err := store.Upsert(ctx, docs); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	stats, err := store.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.DocumentCount != 2 {
		t.Errorf("DocumentCount = %d, want 2", stats.DocumentCount)
	}

	results, err := store.SimilaritySearch(ctx, []float32{1, 0, 0, 0}, 1, 0, "")
	if err != nil {
		t.Fatalf("SimilaritySearch failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	if results[0].ID != "repo:doc.md:0" {
		t.Errorf("results[0].ID = %q, want repo:doc.md:0", results[0].ID)
	}
	if results[0].Similarity < 0.99 {
		t.Errorf("results[0].Similarity = %v, want ~1.0 for an exact match", results[0].Similarity)
	}
}

func TestStore_SimilaritySearch_ThresholdFilters(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.Upsert(ctx, []Document{{
		ID:       "repo:a.md:0",
		Vector:   []float32{0, 0, 1, 0},
		Content:  "orthogonal vector",
		Metadata: Metadata{FilePath: "a.md"},
	}}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	results, err := store.SimilaritySearch(ctx, []float32{1, 0, 0, 0}, 10, 0.99, "")
	if err != nil {
		t.Fatalf("SimilaritySearch failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("len(results) = %d, want 0 (below threshold)", len(results))
	}
}

func TestStore_Delete(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	doc := Document{ID: "repo:a.md:0", Vector: []float32{1, 1, 1, 1}, Content: "x", Metadata: Metadata{FilePath: "a.md"}}
	if err := store.Upsert(ctx, []Document{doc}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	if err := store.Delete(ctx, []string{"repo:a.md:0"}); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	stats, err := store.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.DocumentCount != 0 {
		t.Errorf("DocumentCount = %d, want 0 after delete", stats.DocumentCount)
	}
}

func TestStore_DeleteByFilePrefix(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	docs := []Document{
		{ID: "repo:src/a.go:0", Vector: []float32{1, 0, 0, 0}, Content: "a", Metadata: Metadata{FilePath: "src/a.go"}},
		{ID: "repo:src/a.go:1", Vector: []float32{1, 0, 0, 0}, Content: "a2", Metadata: Metadata{FilePath: "src/a.go"}},
		{ID: "repo:src/b.go:0", Vector: []float32{1, 0, 0, 0}, Content: "b", Metadata: Metadata{FilePath: "src/b.go"}},
	}
	if err := store.Upsert(ctx, docs); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	if err := store.DeleteByFilePrefix(ctx, "repo", "src/a.go"); err != nil {
		t.Fatalf("DeleteByFilePrefix failed: %v", err)
	}

	stats, err := store.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.DocumentCount != 1 {
		t.Errorf("DocumentCount = %d, want 1 after deleting src/a.go's chunks", stats.DocumentCount)
	}
}

func TestStore_HealthCheck(t *testing.T) {
	store := setupTestStore(t)
	if err := store.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}

func TestTruncate(t *testing.T) {
	short := "a short chunk of content"
	if got := Truncate(short); got != short {
		t.Errorf("Truncate(short) = %q, want unchanged", got)
	}

	long := strings.Repeat("word ", 200)
	got := Truncate(long)
	if !strings.HasSuffix(got, "...") {
		t.Errorf("Truncate(long) = %q, want suffix '...'", got)
	}
	if len(got) > 504 {
		t.Errorf("len(Truncate(long)) = %d, want <= ~503", len(got))
	}
}
