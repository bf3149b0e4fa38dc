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

package concepts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/kraklabs/mnemo/pkg/graphstore"
)

// Write persists tags as Concept nodes plus TAGGED_WITH edges, the same
// upsert-then-relate shape pkg/ingestion's datalog builder uses for
// DEFINES/CALLS edges. One tag failing to write is logged and skipped;
// it never aborts the rest of the batch, keeping Write as best-effort
// as the tagging call that produced the tags.
func Write(ctx context.Context, store *graphstore.Store, tags []Tag, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	seenConcepts := make(map[string]bool)
	for _, tag := range tags {
		if !seenConcepts[tag.ConceptID] {
			err := store.UpsertNode(ctx, graphstore.Node{
				ID:   tag.ConceptID,
				Kind: graphstore.NodeConcept,
				Props: map[string]any{
					"label":       tag.Label,
					"description": "",
				},
			})
			if err != nil {
				logger.Warn("writing concept node failed, skipping", "concept_id", tag.ConceptID, "error", err)
				continue
			}
			seenConcepts[tag.ConceptID] = true
		}

		edgeID := taggedWithEdgeID(tag.EntityID, tag.ConceptID)
		err := store.CreateRelationship(ctx, graphstore.Relationship{
			ID:   edgeID,
			From: tag.EntityID,
			To:   tag.ConceptID,
			Type: graphstore.RelTaggedWith,
			Props: map[string]any{
				"confidence": tag.Confidence,
			},
		})
		if err != nil {
			logger.Warn("writing TAGGED_WITH edge failed, skipping", "entity_id", tag.EntityID, "concept_id", tag.ConceptID, "error", err)
		}
	}
}

// taggedWithEdgeID derives a stable edge ID from the entity/concept
// pair, so retagging the same entity with the same concept overwrites
// rather than duplicates the edge.
func taggedWithEdgeID(entityID, conceptID string) string {
	hash := sha256.Sum256([]byte(entityID + "|" + conceptID))
	return fmt.Sprintf("tagged_with:%s", hex.EncodeToString(hash[:16]))
}
