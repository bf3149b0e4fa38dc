// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build cgo

package concepts

import (
	"context"
	"fmt"
	"testing"

	"github.com/kraklabs/mnemo/pkg/graphstore"
	"github.com/kraklabs/mnemo/pkg/storage"
)

func setupTestStore(t *testing.T) *graphstore.Store {
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

	return graphstore.New(backend)
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

func conceptLabel(t *testing.T, store *graphstore.Store, id string) (string, bool) {
	t.Helper()
	res, err := store.RunQuery(context.Background(), fmt.Sprintf(
		`?[id, label] := *cie_concept{id, label}, id = %q`, id))
	if err != nil {
		t.Fatalf("RunQuery(cie_concept): %v", err)
	}
	if len(res.Rows) == 0 {
		return "", false
	}
	return fmt.Sprintf("%v", res.Rows[0][1]), true
}

func TestWrite_CreatesConceptNodesAndEdges(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	mustUpsertFunction(t, store, "fn:1", "Allow", "limiter.go")

	tags := []Tag{
		{EntityID: "fn:1", ConceptID: ConceptID("rate limiting"), Label: "rate limiting", Confidence: 0.9},
	}
	Write(ctx, store, tags, nil)

	label, ok := conceptLabel(t, store, ConceptID("rate limiting"))
	if !ok {
		t.Fatalf("concept node was not created")
	}
	if label != "rate limiting" {
		t.Errorf("concept label = %v, want 'rate limiting'", label)
	}
}

func TestWrite_DedupsConceptNodeAcrossTags(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	mustUpsertFunction(t, store, "fn:1", "Allow", "limiter.go")
	mustUpsertFunction(t, store, "fn:2", "Wait", "limiter.go")

	concept := ConceptID("rate limiting")
	tags := []Tag{
		{EntityID: "fn:1", ConceptID: concept, Label: "rate limiting", Confidence: 0.9},
		{EntityID: "fn:2", ConceptID: concept, Label: "rate limiting", Confidence: 0.7},
	}

	// Write should not fail or panic when the same concept node is
	// upserted twice within one batch.
	Write(ctx, store, tags, nil)

	if _, ok := conceptLabel(t, store, concept); !ok {
		t.Fatalf("concept node was not created")
	}
}

func TestWrite_SkipsGracefullyWithNoTags(t *testing.T) {
	store := setupTestStore(t)
	// Write with an empty slice must not panic or error.
	Write(context.Background(), store, nil, nil)
}
