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

// Package concepts tags functions and types with higher-level domain
// concepts (e.g. "authentication", "rate limiting") using an LLM, the
// same best-effort, swallow-failures way an ingestion run tolerates a
// bad embedding call: a tagging failure is logged, never fails the job.
package concepts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kraklabs/mnemo/pkg/graphstore"
	"github.com/kraklabs/mnemo/pkg/llm"
)

// Entity is one function or type to consider for tagging.
type Entity struct {
	ID       string
	Kind     graphstore.NodeKind // NodeFunction or NodeClass
	Name     string
	FilePath string
	Snippet  string // source text, truncated by the caller
}

// Tag is one concept a single entity was tagged with.
type Tag struct {
	EntityID   string
	ConceptID  string
	Label      string
	Confidence float64
}

// Extractor best-effort tags entities with concepts via an LLM provider.
type Extractor struct {
	provider  llm.Provider
	model     string
	maxTokens int
	logger    *slog.Logger
}

// New creates an Extractor. provider is typically llm.DefaultProvider()
// or a configured llm.NewProvider(cfg). With a nil provider, TagBatch
// returns nil and TagEntity returns an error, so callers can build an
// Extractor unconditionally and only skip tagging when LLM support is
// actually disabled.
func New(provider llm.Provider, model string, maxTokens int, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if maxTokens <= 0 {
		maxTokens = 2000
	}
	return &Extractor{provider: provider, model: model, maxTokens: maxTokens, logger: logger}
}

// Enabled reports whether this extractor has a usable provider.
func (e *Extractor) Enabled() bool {
	return e != nil && e.provider != nil
}

const taggingPrompt = `You label source code entities with short, reusable domain concepts.
Given a function or type's name, file path, and source snippet, return the 1-4 concepts
it best belongs to (e.g. "authentication", "rate limiting", "database migration",
"retry logic"). Prefer concepts that would also apply to other, unrelated entities in
the same codebase - these are categories, not descriptions of this one entity.

Respond with ONLY a JSON array of objects: [{"label": "...", "confidence": 0.0-1.0}].
No prose, no markdown fences.`

// TagEntity asks the LLM for this entity's concepts. Any failure
// (disabled provider, request error, malformed response) is returned as
// a nil slice and a non-nil error for the caller to log and discard -
// TagBatch already does this, so most callers should prefer it.
func (e *Extractor) TagEntity(ctx context.Context, entity Entity) ([]Tag, error) {
	if !e.Enabled() {
		return nil, fmt.Errorf("concepts: extractor has no LLM provider configured")
	}

	user := fmt.Sprintf("Name: %s\nFile: %s\nSnippet:\n%s", entity.Name, entity.FilePath, entity.Snippet)
	resp, err := e.provider.Chat(ctx, llm.ChatRequest{
		Model:     e.model,
		MaxTokens: e.maxTokens,
		Messages: []llm.Message{
			{Role: "system", Content: taggingPrompt},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("concepts: chat request failed: %w", err)
	}

	var raw []struct {
		Label      string  `json:"label"`
		Confidence float64 `json:"confidence"`
	}
	content := strings.TrimSpace(resp.Message.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &raw); err != nil {
		return nil, fmt.Errorf("concepts: parsing tag response: %w", err)
	}

	tags := make([]Tag, 0, len(raw))
	for _, r := range raw {
		label := strings.TrimSpace(strings.ToLower(r.Label))
		if label == "" {
			continue
		}
		confidence := r.Confidence
		if confidence <= 0 {
			confidence = 1.0
		}
		tags = append(tags, Tag{
			EntityID:   entity.ID,
			ConceptID:  ConceptID(label),
			Label:      label,
			Confidence: confidence,
		})
	}
	return tags, nil
}

// TagBatch tags every entity, swallowing per-entity failures: one bad
// LLM response never aborts tagging for the rest of the batch, and
// never fails the ingestion job that called it.
func (e *Extractor) TagBatch(ctx context.Context, entities []Entity) []Tag {
	if !e.Enabled() {
		return nil
	}

	var tags []Tag
	for _, entity := range entities {
		entityTags, err := e.TagEntity(ctx, entity)
		if err != nil {
			e.logger.Warn("concept tagging failed, skipping entity", "entity_id", entity.ID, "error", err)
			continue
		}
		tags = append(tags, entityTags...)
	}
	return tags
}

// ConceptID derives a deterministic concept node ID from its label, so
// that repeated tagging runs converge on the same concept instead of
// creating duplicates, matching the ingestion package's own
// path/name-hash ID convention.
func ConceptID(label string) string {
	normalized := strings.TrimSpace(strings.ToLower(label))
	hash := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("concept:%s", hex.EncodeToString(hash[:16]))
}
