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

package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	cozo "github.com/kraklabs/mnemo/pkg/cozodb"
)

// EmbeddedBackend implements Backend using a local CozoDB instance.
// One instance is opened per repository, rooted at its own data directory
// ("{dataPath}/repos/{name}/cozo") so repositories never share relations.
type EmbeddedBackend struct {
	db                  *cozo.CozoDB
	mu                  sync.RWMutex
	closed              bool
	embeddingDimensions int
	projectID           string
}

// EmbeddedConfig configures the embedded backend.
type EmbeddedConfig struct {
	// DataDir is the directory where CozoDB stores its data, already
	// namespaced by repository name by the caller.
	DataDir string

	// Engine is the CozoDB storage engine: "rocksdb", "sqlite", or "mem".
	// Defaults to "rocksdb" for persistence.
	Engine string

	// ProjectID namespaces DataDir when DataDir is left empty, and is
	// stored alongside project metadata.
	ProjectID string

	// EmbeddingDimensions is the vector size for embeddings.
	// Defaults to 768 (nomic-embed-text). Use 1536 for OpenAI-compatible
	// providers.
	EmbeddingDimensions int
}

// NewEmbeddedBackend creates a new embedded CozoDB backend.
func NewEmbeddedBackend(config EmbeddedConfig) (*EmbeddedBackend, error) {
	if config.Engine == "" {
		config.Engine = "rocksdb"
	}
	if config.DataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home dir: %w", err)
		}
		config.DataDir = filepath.Join(homeDir, ".mnemo", "data")
		if config.ProjectID != "" {
			config.DataDir = filepath.Join(config.DataDir, "repos", config.ProjectID, "cozo")
		}
	}

	if err := os.MkdirAll(config.DataDir, 0750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := cozo.New(config.Engine, config.DataDir, nil)
	if err != nil {
		return nil, fmt.Errorf("open cozodb: %w", err)
	}

	embeddingDim := config.EmbeddingDimensions
	if embeddingDim <= 0 {
		embeddingDim = 768
	}

	projectID := config.ProjectID
	if projectID == "" {
		projectID = "default"
	}

	return &EmbeddedBackend{
		db:                  &db,
		embeddingDimensions: embeddingDim,
		projectID:           projectID,
	}, nil
}

// Query executes a read-only Datalog query.
func (b *EmbeddedBackend) Query(ctx context.Context, datalog string) (*QueryResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("backend is closed")
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	result, err := b.db.RunReadOnly(datalog, nil)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	return FromNamedRows(result), nil
}

// Execute runs a Datalog mutation.
func (b *EmbeddedBackend) Execute(ctx context.Context, datalog string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("backend is closed")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	_, err := b.db.Run(datalog, nil)
	if err != nil {
		return fmt.Errorf("execute failed: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (b *EmbeddedBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true
	b.db.Close()
	return nil
}

// DB returns the underlying CozoDB instance for advanced operations.
// Use with caution - prefer the Backend interface methods.
func (b *EmbeddedBackend) DB() *cozo.CozoDB {
	return b.db
}

// EnsureSchema creates the knowledge-graph relations if they don't exist.
// Idempotent and safe to call multiple times; the embedding column widths
// follow the backend's configured EmbeddingDimensions.
func (b *EmbeddedBackend) EnsureSchema() error {
	dim := b.embeddingDimensions
	if dim <= 0 {
		dim = 768
	}

	tables := []string{
		// Repository registry: one row per indexed repository.
		`:create cie_repository { name: String => root_path: String, default_branch: String, last_indexed_sha: String default '', status: String default 'new', created_at: Float default 0.0 }`,

		// Source file and module inventory.
		`:create cie_file { id: String => path: String, hash: String, language: String, size: Int }`,
		`:create cie_module { id: String => path: String, name: String, language: String }`,

		// Function entities: lightweight metadata, code text, and embedding
		// are split into separate relations so graph traversal never pays
		// for vector or source-text payloads it doesn't need.
		`:create cie_function { id: String => name: String, signature: String, file_path: String, start_line: Int, end_line: Int, start_col: Int, end_col: Int }`,
		`:create cie_function_code { function_id: String => code_text: String }`,
		fmt.Sprintf(`:create cie_function_embedding { function_id: String => embedding: <F32; %d> }`, dim),

		// Type entities (struct/class/interface-shaped declarations).
		`:create cie_type { id: String => name: String, kind: String, file_path: String, start_line: Int, end_line: Int, start_col: Int, end_col: Int }`,
		`:create cie_type_code { type_id: String => code_text: String }`,
		fmt.Sprintf(`:create cie_type_embedding { type_id: String => embedding: <F32; %d> }`, dim),

		// Struct field entities, used for interface dispatch resolution.
		`:create cie_field { id: String => struct_name: String, field_name: String, field_type: String, file_path: String, line: Int }`,

		// Document chunks: free-text material (README, docs, comments)
		// chunked and embedded independently of the code graph.
		`:create cie_chunk { id: String => doc_path: String, chunk_index: Int, text: String, start_offset: Int, end_offset: Int }`,
		fmt.Sprintf(`:create cie_chunk_embedding { chunk_id: String => embedding: <F32; %d> }`, dim),

		// Graph edges.
		`:create cie_defines { id: String => file_id: String, function_id: String }`,
		`:create cie_defines_type { id: String => file_id: String, type_id: String }`,
		`:create cie_calls { id: String => caller_id: String, callee_id: String, call_line: Int default 0 }`,
		`:create cie_import { id: String => file_path: String, import_path: String, alias: String, start_line: Int }`,
		`:create cie_import_edge { id: String => importer_module_id: String, imported_module_id: String }`,
		`:create cie_extends { id: String => sub_type_id: String, super_type_id: String }`,
		`:create cie_implements { id: String => type_name: String, interface_name: String, file_path: String }`,
		`:create cie_references { id: String => referrer_id: String, referenced_id: String, kind: String }`,

		// Concepts: best-effort semantic tags layered over the code graph.
		`:create cie_concept { id: String => label: String, description: String default '' }`,
		`:create cie_tagged_with { id: String => entity_id: String, concept_id: String, confidence: Float default 1.0 }`,
		`:create cie_related_to { id: String => concept_id: String, related_concept_id: String, weight: Float default 1.0 }`,

		// Per-repository incremental indexing state, one row per project.
		`:create cie_project_meta { project_id: String => last_indexed_sha: String default '', last_committed_index: Int default 0, updated_at: Int default 0 }`,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, table := range tables {
		_, err := b.db.Run(table, nil)
		if err != nil {
			errStr := err.Error()
			if strings.Contains(errStr, "already exists") ||
				strings.Contains(errStr, "conflicts with an existing one") {
				continue
			}
			return fmt.Errorf("create table failed: %w", err)
		}
	}

	b.migrateCallsCallLine()

	return nil
}

// migrateCallsCallLine adds the call_line column to cie_calls if it was
// created under an older schema. CozoDB has no ALTER TABLE, so migration
// copies data through a temp relation.
// Caller must hold b.mu.
func (b *EmbeddedBackend) migrateCallsCallLine() {
	_, err := b.db.Run(`?[id] := *cie_calls { id, call_line } :limit 1`, nil)
	if err == nil {
		return
	}

	_, err = b.db.Run(`?[id, caller_id, callee_id] := *cie_calls { id, caller_id, callee_id } :replace cie_calls_mig { id: String => caller_id: String, callee_id: String }`, nil)
	if err != nil {
		return
	}

	_, _ = b.db.Run(`::remove cie_calls`, nil)
	_, err = b.db.Run(`:create cie_calls { id: String => caller_id: String, callee_id: String, call_line: Int default 0 }`, nil)
	if err != nil {
		_, _ = b.db.Run(`?[id, caller_id, callee_id] := *cie_calls_mig { id, caller_id, callee_id } :replace cie_calls { id: String => caller_id: String, callee_id: String }`, nil)
		_, _ = b.db.Run(`::remove cie_calls_mig`, nil)
		return
	}

	_, _ = b.db.Run(`?[id, caller_id, callee_id, call_line] := *cie_calls_mig { id, caller_id, callee_id }, call_line = 0 :put cie_calls { id, caller_id, callee_id, call_line }`, nil)
	_, _ = b.db.Run(`::remove cie_calls_mig`, nil)
}

// CreateHNSWIndex creates HNSW indexes for every embedding-bearing relation.
// Should be called after EnsureSchema.
func (b *EmbeddedBackend) CreateHNSWIndex(dimensions int) error {
	if dimensions <= 0 {
		dimensions = b.embeddingDimensions
	}
	if dimensions <= 0 {
		dimensions = 768
	}

	indexes := []string{
		fmt.Sprintf(`::hnsw create cie_function_embedding:embedding_idx { dim: %d, m: 16, ef_construction: 200, distance: Cosine, fields: [embedding] }`, dimensions),
		fmt.Sprintf(`::hnsw create cie_type_embedding:embedding_idx { dim: %d, m: 16, ef_construction: 200, distance: Cosine, fields: [embedding] }`, dimensions),
		fmt.Sprintf(`::hnsw create cie_chunk_embedding:embedding_idx { dim: %d, m: 16, ef_construction: 200, distance: Cosine, fields: [embedding] }`, dimensions),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, idx := range indexes {
		_, err := b.db.Run(idx, nil)
		if err != nil {
			continue
		}
	}

	return nil
}

// projectMetaRow is the one-row-per-project shape of cie_project_meta.
type projectMetaRow struct {
	lastIndexedSHA     string
	lastCommittedIndex int64
	updatedAt          int64
}

// getProjectMetaRow reads the current project's metadata row. Returns the
// zero value, not an error, if no row exists yet.
// Caller must hold b.mu (read or write).
func (b *EmbeddedBackend) getProjectMetaRow() (projectMetaRow, error) {
	query := `?[last_indexed_sha, last_committed_index, updated_at] :=
		*cie_project_meta{project_id, last_indexed_sha, last_committed_index, updated_at},
		project_id = $pid`
	params := map[string]interface{}{"pid": b.projectID}

	result, err := b.db.Run(query, params)
	if err != nil {
		return projectMetaRow{}, err
	}
	if len(result.Rows) == 0 {
		return projectMetaRow{}, nil
	}

	row := result.Rows[0]
	meta := projectMetaRow{}
	if sha, ok := row[0].(string); ok {
		meta.lastIndexedSHA = sha
	}
	switch v := row[1].(type) {
	case float64:
		meta.lastCommittedIndex = int64(v)
	case int64:
		meta.lastCommittedIndex = v
	}
	switch v := row[2].(type) {
	case float64:
		meta.updatedAt = int64(v)
	case int64:
		meta.updatedAt = v
	}
	return meta, nil
}

// putProjectMetaRow writes the full project metadata row.
// Caller must hold b.mu (write).
func (b *EmbeddedBackend) putProjectMetaRow(meta projectMetaRow) error {
	query := `?[project_id, last_indexed_sha, last_committed_index, updated_at] <- [[$pid, $sha, $idx, $ts]]
		:put cie_project_meta { project_id => last_indexed_sha, last_committed_index, updated_at }`
	params := map[string]interface{}{
		"pid": b.projectID,
		"sha": meta.lastIndexedSHA,
		"idx": meta.lastCommittedIndex,
		"ts":  meta.updatedAt,
	}
	_, err := b.db.Run(query, params)
	return err
}

// GetLastIndexedSHA retrieves the last successfully indexed git SHA.
// Returns "" if the project has not been indexed yet.
func (b *EmbeddedBackend) GetLastIndexedSHA() (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	meta, err := b.getProjectMetaRow()
	return meta.lastIndexedSHA, err
}

// SetLastIndexedSHA stores the last successfully indexed git SHA, preserving
// the rest of the project metadata row.
func (b *EmbeddedBackend) SetLastIndexedSHA(sha string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	meta, err := b.getProjectMetaRow()
	if err != nil {
		return err
	}
	meta.lastIndexedSHA = sha
	meta.updatedAt = time.Now().Unix()
	return b.putProjectMetaRow(meta)
}

// GetLastCommittedIndex retrieves the monotonic commit counter used to
// detect interrupted ingestion runs.
func (b *EmbeddedBackend) GetLastCommittedIndex() (int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	meta, err := b.getProjectMetaRow()
	return meta.lastCommittedIndex, err
}

// SetLastCommittedIndex stores the monotonic commit counter, preserving the
// rest of the project metadata row.
func (b *EmbeddedBackend) SetLastCommittedIndex(index int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	meta, err := b.getProjectMetaRow()
	if err != nil {
		return err
	}
	meta.lastCommittedIndex = index
	meta.updatedAt = time.Now().Unix()
	return b.putProjectMetaRow(meta)
}

// DeleteEntitiesForFile removes every entity and edge derived from a single
// source file. Used by the incremental update coordinator before
// re-inserting a modified file's entities, and on its own for deletions.
func (b *EmbeddedBackend) DeleteEntitiesForFile(filePath string) error {
	queries := []string{
		`?[id] := *cie_calls{id, caller_id}, *cie_function{id: caller_id, file_path}, file_path = $path
		 :rm cie_calls {id}`,
		`?[id] := *cie_calls{id, callee_id}, *cie_function{id: callee_id, file_path}, file_path = $path
		 :rm cie_calls {id}`,
		`?[id] := *cie_defines{id, file_id}, *cie_file{id: file_id, path}, path = $path
		 :rm cie_defines {id}`,
		`?[id] := *cie_defines_type{id, file_id}, *cie_file{id: file_id, path}, path = $path
		 :rm cie_defines_type {id}`,
		`?[id] := *cie_references{id, referrer_id}, *cie_function{id: referrer_id, file_path}, file_path = $path
		 :rm cie_references {id}`,
		`?[function_id] := *cie_function{id: function_id, file_path}, file_path = $path
		 :rm cie_function_embedding {function_id}`,
		`?[function_id] := *cie_function{id: function_id, file_path}, file_path = $path
		 :rm cie_function_code {function_id}`,
		`?[id] := *cie_function{id, file_path}, file_path = $path
		 :rm cie_function {id}`,
		`?[type_id] := *cie_type{id: type_id, file_path}, file_path = $path
		 :rm cie_type_embedding {type_id}`,
		`?[type_id] := *cie_type{id: type_id, file_path}, file_path = $path
		 :rm cie_type_code {type_id}`,
		`?[id] := *cie_type{id, file_path}, file_path = $path
		 :rm cie_type {id}`,
		`?[id] := *cie_field{id, file_path}, file_path = $path
		 :rm cie_field {id}`,
		`?[id] := *cie_implements{id, file_path}, file_path = $path
		 :rm cie_implements {id}`,
		`?[id] := *cie_import{id, file_path}, file_path = $path
		 :rm cie_import {id}`,
		`?[id] := *cie_file{id, path}, path = $path
		 :rm cie_file {id}`,
	}

	params := map[string]interface{}{"path": filePath}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, query := range queries {
		if _, err := b.db.Run(query, params); err != nil {
			continue
		}
	}

	return nil
}

// DeleteChunksForDoc removes all chunk entities derived from a single
// non-code document path (README, markdown, etc).
func (b *EmbeddedBackend) DeleteChunksForDoc(docPath string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	params := map[string]interface{}{"path": docPath}
	_, _ = b.db.Run(`?[chunk_id] := *cie_chunk{id: chunk_id, doc_path}, doc_path = $path :rm cie_chunk_embedding {chunk_id}`, params)
	_, err := b.db.Run(`?[id] := *cie_chunk{id, doc_path}, doc_path = $path :rm cie_chunk {id}`, params)
	return err
}
