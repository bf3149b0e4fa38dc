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

// Package vectorstore wraps pkg/storage's HNSW-backed chunk relations to
// provide C2's collection lifecycle and similarity-search contract. One
// repository's EmbeddedBackend is one collection, per the glossary's
// "Collection" definition.
package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kraklabs/mnemo/pkg/storage"
	"github.com/kraklabs/mnemo/pkg/cozoutil"
)

// Metadata describes a stored chunk's provenance, used for filtering and
// for reconstructing a ranked result independent of the graph.
type Metadata struct {
	FilePath       string
	Repository     string
	ChunkIndex     int
	TotalChunks    int
	FileExtension  string
	FileSizeBytes  int64
	ChunkStartLine int
	ChunkEndLine   int
	ContentHash    string
	IndexedAt      time.Time
	FileModifiedAt time.Time
}

// Document is a single embedded chunk as stored by upsert.
type Document struct {
	ID       string
	Vector   []float32
	Content  string
	Metadata Metadata
}

// SearchResult pairs a document with its similarity to the query vector.
type SearchResult struct {
	Document
	Similarity float64
}

// Stats summarizes a collection's size.
type Stats struct {
	DocumentCount int
}

// Store implements the Vector Store Client contract (C2) over a
// repository-scoped EmbeddedBackend.
type Store struct {
	backend *storage.EmbeddedBackend
}

// New wraps an already-opened, schema-initialized backend.
func New(backend *storage.EmbeddedBackend) *Store {
	return &Store{backend: backend}
}

// GetOrCreateCollection is a no-op beyond EnsureSchema: one EmbeddedBackend
// already is one collection (one CozoDB data directory per repository), so
// there is nothing further to namespace.
func (s *Store) GetOrCreateCollection(_ context.Context, _ string) error {
	return s.backend.EnsureSchema()
}

// Upsert inserts or replaces documents by id. Idempotent: re-upserting the
// same id overwrites the prior chunk text and embedding.
func (s *Store) Upsert(ctx context.Context, docs []Document) error {
	for _, doc := range docs {
		if err := s.upsertOne(ctx, doc); err != nil {
			return fmt.Errorf("upsert chunk %s: %w", doc.ID, err)
		}
	}
	return nil
}

func (s *Store) upsertOne(ctx context.Context, doc Document) error {
	script := fmt.Sprintf(
		`?[id, doc_path, chunk_index, text, start_offset, end_offset] <- [[%q, %q, %d, %q, %d, %d]]
		 :put cie_chunk { id => doc_path, chunk_index, text, start_offset, end_offset }`,
		doc.ID, doc.Metadata.FilePath, doc.Metadata.ChunkIndex, doc.Content,
		doc.Metadata.ChunkStartLine, doc.Metadata.ChunkEndLine,
	)
	if err := s.backend.Execute(ctx, script); err != nil {
		return err
	}

	embScript := fmt.Sprintf(
		`?[chunk_id, embedding] <- [[%q, %s]]
		 :put cie_chunk_embedding { chunk_id => embedding }`,
		doc.ID, formatVector(doc.Vector),
	)
	return s.backend.Execute(ctx, embScript)
}

// Delete removes documents by id, from both the chunk and embedding
// relations.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	for _, id := range ids {
		script := fmt.Sprintf(`?[id] <- [[%q]] :rm cie_chunk { id }`, id)
		if err := s.backend.Execute(ctx, script); err != nil {
			return fmt.Errorf("delete chunk %s: %w", id, err)
		}
		embScript := fmt.Sprintf(`?[chunk_id] <- [[%q]] :rm cie_chunk_embedding { chunk_id }`, id)
		if err := s.backend.Execute(ctx, embScript); err != nil {
			return fmt.Errorf("delete chunk embedding %s: %w", id, err)
		}
	}
	return nil
}

// DeleteByFilePrefix removes every chunk document whose vector id starts
// with "{repo}:{pathPrefix}" — used by the incremental update coordinator
// when a file is deleted, modified, or renamed.
func (s *Store) DeleteByFilePrefix(ctx context.Context, repo, pathPrefix string) error {
	prefix := fmt.Sprintf("%s:%s", repo, pathPrefix)
	script := fmt.Sprintf(
		`?[id] := *cie_chunk { id, doc_path }, starts_with(id, %q)
		 :rm cie_chunk { id }`,
		prefix,
	)
	if err := s.backend.Execute(ctx, script); err != nil {
		return fmt.Errorf("delete chunks by prefix %s: %w", prefix, err)
	}

	embScript := fmt.Sprintf(
		`?[chunk_id] := *cie_chunk_embedding { chunk_id }, starts_with(chunk_id, %q)
		 :rm cie_chunk_embedding { chunk_id }`,
		prefix,
	)
	return s.backend.Execute(ctx, embScript)
}

// SimilaritySearch runs an HNSW nearest-neighbor query and returns up to k
// results with similarity >= threshold, ordered by similarity descending
// then id ascending to break ties deterministically.
func (s *Store) SimilaritySearch(ctx context.Context, queryVector []float32, k int, threshold float64, filePrefix string) ([]SearchResult, error) {
	if k <= 0 {
		k = 10
	}

	// Over-fetch to allow for threshold filtering without under-returning.
	ef := k * 4
	if ef < 50 {
		ef = 50
	}

	script := fmt.Sprintf(
		`?[chunk_id, doc_path, chunk_index, text, start_offset, end_offset, distance] :=
			~cie_chunk_embedding:embedding_idx { chunk_id | query: %s, k: %d, ef: %d, bind_distance: distance },
			*cie_chunk { id: chunk_id, doc_path, chunk_index, text, start_offset, end_offset }
		:order distance
		:limit %d`,
		formatVector(queryVector), k, ef, k*4,
	)

	result, err := s.backend.Query(ctx, script)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	out := make([]SearchResult, 0, len(result.Rows))
	for _, row := range result.Rows {
		if len(row) < 7 {
			continue
		}
		docPath := cozoutil.AnyToString(row[1])
		if filePrefix != "" && !strings.HasPrefix(docPath, filePrefix) {
			continue
		}

		distance := anyToFloat(row[6])
		// Cosine distance in [0,2]; convert to a similarity in [0,1].
		similarity := 1 - distance/2
		if similarity < threshold {
			continue
		}

		out = append(out, SearchResult{
			Document: Document{
				ID:      cozoutil.AnyToString(row[0]),
				Content: cozoutil.AnyToString(row[3]),
				Metadata: Metadata{
					FilePath:       docPath,
					ChunkIndex:     int(anyToFloat(row[2])),
					ChunkStartLine: int(anyToFloat(row[4])),
					ChunkEndLine:   int(anyToFloat(row[5])),
				},
			},
			Similarity: similarity,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].ID < out[j].ID
	})

	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// GetStats returns the total number of stored chunks.
func (s *Store) GetStats(ctx context.Context) (Stats, error) {
	result, err := s.backend.Query(ctx, `?[count(id)] := *cie_chunk { id }`)
	if err != nil {
		return Stats{}, fmt.Errorf("get stats: %w", err)
	}
	if len(result.Rows) == 0 || len(result.Rows[0]) == 0 {
		return Stats{}, nil
	}
	return Stats{DocumentCount: int(anyToFloat(result.Rows[0][0]))}, nil
}

// HealthCheck verifies the backend can still be queried.
func (s *Store) HealthCheck(ctx context.Context) error {
	_, err := s.backend.Query(ctx, `?[x] <- [[1]]`)
	return err
}

// Truncate returns content trimmed to at most 500 characters at the last
// whitespace boundary, appending "..." when truncated.
func Truncate(content string) string {
	const maxLen = 500
	if len(content) <= maxLen {
		return content
	}
	cut := strings.LastIndexAny(content[:maxLen], " \t\n")
	if cut <= 0 {
		cut = maxLen
	}
	return content[:cut] + "..."
}

func formatVector(v []float32) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = fmt.Sprintf("%g", f)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func anyToFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}
