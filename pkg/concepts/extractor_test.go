// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package concepts

import (
	"context"
	"errors"
	"testing"

	"github.com/kraklabs/mnemo/pkg/graphstore"
	"github.com/kraklabs/mnemo/pkg/llm"
)

func TestConceptID_Deterministic(t *testing.T) {
	a := ConceptID("Rate Limiting")
	b := ConceptID("rate limiting")
	if a != b {
		t.Errorf("ConceptID is not case/whitespace normalized: %q != %q", a, b)
	}

	c := ConceptID("authentication")
	if a == c {
		t.Errorf("ConceptID collided for distinct labels")
	}
}

func TestExtractor_EnabledRequiresProvider(t *testing.T) {
	e := New(nil, "mock-model", 0, nil)
	if e.Enabled() {
		t.Fatalf("Enabled() = true with a nil provider")
	}

	var nilExtractor *Extractor
	if nilExtractor.Enabled() {
		t.Fatalf("Enabled() = true on a nil *Extractor")
	}
}

func TestExtractor_TagEntityParsesResponse(t *testing.T) {
	provider := &llm.MockProvider{
		ChatFunc: func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
			return &llm.ChatResponse{
				Message: llm.Message{
					Role:    "assistant",
					Content: "```json\n[{\"label\": \"Rate Limiting\", \"confidence\": 0.9}, {\"label\": \"\", \"confidence\": 0.5}]\n```",
				},
			}, nil
		},
	}
	e := New(provider, "mock-model", 0, nil)

	tags, err := e.TagEntity(context.Background(), Entity{ID: "fn:1", Kind: graphstore.NodeFunction, Name: "Allow"})
	if err != nil {
		t.Fatalf("TagEntity: %v", err)
	}
	if len(tags) != 1 {
		t.Fatalf("TagEntity() returned %d tags, want 1 (empty labels dropped)", len(tags))
	}
	if tags[0].Label != "rate limiting" {
		t.Errorf("Label = %q, want lowercased 'rate limiting'", tags[0].Label)
	}
	if tags[0].ConceptID != ConceptID("rate limiting") {
		t.Errorf("ConceptID = %q, want %q", tags[0].ConceptID, ConceptID("rate limiting"))
	}
	if tags[0].Confidence != 0.9 {
		t.Errorf("Confidence = %v, want 0.9", tags[0].Confidence)
	}
}

func TestExtractor_TagEntityDefaultsMissingConfidence(t *testing.T) {
	provider := &llm.MockProvider{
		ChatFunc: func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
			return &llm.ChatResponse{
				Message: llm.Message{Content: `[{"label": "retry logic"}]`},
			}, nil
		},
	}
	e := New(provider, "mock-model", 0, nil)

	tags, err := e.TagEntity(context.Background(), Entity{ID: "fn:1"})
	if err != nil {
		t.Fatalf("TagEntity: %v", err)
	}
	if len(tags) != 1 || tags[0].Confidence != 1.0 {
		t.Fatalf("TagEntity() = %+v, want one tag defaulting confidence to 1.0", tags)
	}
}

func TestExtractor_TagEntityMalformedResponseErrors(t *testing.T) {
	provider := &llm.MockProvider{
		ChatFunc: func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
			return &llm.ChatResponse{Message: llm.Message{Content: "not json"}}, nil
		},
	}
	e := New(provider, "mock-model", 0, nil)

	if _, err := e.TagEntity(context.Background(), Entity{ID: "fn:1"}); err == nil {
		t.Fatalf("TagEntity with malformed response succeeded, want an error")
	}
}

func TestExtractor_TagEntityDisabledErrors(t *testing.T) {
	e := New(nil, "", 0, nil)
	if _, err := e.TagEntity(context.Background(), Entity{ID: "fn:1"}); err == nil {
		t.Fatalf("TagEntity with no provider succeeded, want an error")
	}
}

func TestExtractor_TagBatchSwallowsPerEntityFailures(t *testing.T) {
	calls := 0
	provider := &llm.MockProvider{
		ChatFunc: func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
			calls++
			if calls == 1 {
				return nil, errors.New("transient failure")
			}
			return &llm.ChatResponse{Message: llm.Message{Content: `[{"label": "caching", "confidence": 0.8}]`}}, nil
		},
	}
	e := New(provider, "mock-model", 0, nil)

	entities := []Entity{{ID: "fn:1"}, {ID: "fn:2"}}
	tags := e.TagBatch(context.Background(), entities)
	if len(tags) != 1 {
		t.Fatalf("TagBatch() returned %d tags, want 1 (first entity's failure skipped)", len(tags))
	}
	if tags[0].EntityID != "fn:2" {
		t.Errorf("EntityID = %q, want fn:2", tags[0].EntityID)
	}
}

func TestExtractor_TagBatchDisabledReturnsNil(t *testing.T) {
	e := New(nil, "", 0, nil)
	if tags := e.TagBatch(context.Background(), []Entity{{ID: "fn:1"}}); tags != nil {
		t.Fatalf("TagBatch() with no provider = %v, want nil", tags)
	}
}
