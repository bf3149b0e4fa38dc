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

package ingestion

import (
	"fmt"
	"strings"
)

// DatalogBuilder turns parsed entities and edges into CozoScript mutations.
// Each call to a Build* method returns one or more independent
// "?[...] <- [[...]] :put relation {...}" statements, joined with blank
// lines so CozoDB executes them as a single script.
type DatalogBuilder struct{}

// NewDatalogBuilder creates a DatalogBuilder. It holds no state: every
// method is a pure function of its arguments.
func NewDatalogBuilder() *DatalogBuilder {
	return &DatalogBuilder{}
}

// BuildMutationsWithTypes builds the full write script for one parse batch,
// covering files, functions (with code/embedding side relations), types
// (same), defines/defines_type edges, calls edges, and imports.
func (b *DatalogBuilder) BuildMutationsWithTypes(
	files []FileEntity,
	functions []FunctionEntity,
	types []TypeEntity,
	defines []DefinesEdge,
	definesTypes []DefinesTypeEdge,
	calls []CallsEdge,
	imports []ImportEntity,
) string {
	var stmts []string

	if s := b.buildFiles(files); s != "" {
		stmts = append(stmts, s)
	}
	stmts = append(stmts, b.buildFunctions(functions)...)
	stmts = append(stmts, b.buildTypes(types)...)
	if s := b.buildDefines(defines); s != "" {
		stmts = append(stmts, s)
	}
	if s := b.buildDefinesTypes(definesTypes); s != "" {
		stmts = append(stmts, s)
	}
	if s := b.buildCalls(calls); s != "" {
		stmts = append(stmts, s)
	}
	if s := b.buildImports(imports); s != "" {
		stmts = append(stmts, s)
	}

	return strings.Join(stmts, "\n\n")
}

func (b *DatalogBuilder) buildFiles(files []FileEntity) string {
	if len(files) == 0 {
		return ""
	}
	rows := make([]string, len(files))
	for i, f := range files {
		rows[i] = fmt.Sprintf("[%q, %q, %q, %q, %d]", f.ID, f.Path, f.Hash, f.Language, f.Size)
	}
	return fmt.Sprintf(
		"?[id, path, hash, language, size] <- [%s]\n:put cie_file { id => path, hash, language, size }",
		strings.Join(rows, ", "),
	)
}

// buildFunctions returns up to three statements: the function metadata
// relation, the code-text side relation, and (when any function carries an
// embedding) the embedding side relation.
func (b *DatalogBuilder) buildFunctions(functions []FunctionEntity) []string {
	if len(functions) == 0 {
		return nil
	}

	metaRows := make([]string, len(functions))
	codeRows := make([]string, len(functions))
	var embedRows []string

	for i, fn := range functions {
		metaRows[i] = fmt.Sprintf("[%q, %q, %q, %q, %d, %d, %d, %d]",
			fn.ID, fn.Name, fn.Signature, fn.FilePath, fn.StartLine, fn.EndLine, fn.StartCol, fn.EndCol)
		codeRows[i] = fmt.Sprintf("[%q, %q]", fn.ID, fn.CodeText)
		if len(fn.Embedding) > 0 {
			embedRows = append(embedRows, fmt.Sprintf("[%q, %s]", fn.ID, formatVectorLiteral(fn.Embedding)))
		}
	}

	stmts := []string{
		fmt.Sprintf(
			"?[id, name, signature, file_path, start_line, end_line, start_col, end_col] <- [%s]\n:put cie_function { id => name, signature, file_path, start_line, end_line, start_col, end_col }",
			strings.Join(metaRows, ", "),
		),
		fmt.Sprintf(
			"?[function_id, code_text] <- [%s]\n:put cie_function_code { function_id => code_text }",
			strings.Join(codeRows, ", "),
		),
	}
	if len(embedRows) > 0 {
		stmts = append(stmts, fmt.Sprintf(
			"?[function_id, embedding] <- [%s]\n:put cie_function_embedding { function_id => embedding }",
			strings.Join(embedRows, ", "),
		))
	}
	return stmts
}

func (b *DatalogBuilder) buildTypes(types []TypeEntity) []string {
	if len(types) == 0 {
		return nil
	}

	metaRows := make([]string, len(types))
	codeRows := make([]string, len(types))
	var embedRows []string

	for i, t := range types {
		metaRows[i] = fmt.Sprintf("[%q, %q, %q, %q, %d, %d, %d, %d]",
			t.ID, t.Name, t.Kind, t.FilePath, t.StartLine, t.EndLine, t.StartCol, t.EndCol)
		codeRows[i] = fmt.Sprintf("[%q, %q]", t.ID, t.CodeText)
		if len(t.Embedding) > 0 {
			embedRows = append(embedRows, fmt.Sprintf("[%q, %s]", t.ID, formatVectorLiteral(t.Embedding)))
		}
	}

	stmts := []string{
		fmt.Sprintf(
			"?[id, name, kind, file_path, start_line, end_line, start_col, end_col] <- [%s]\n:put cie_type { id => name, kind, file_path, start_line, end_line, start_col, end_col }",
			strings.Join(metaRows, ", "),
		),
		fmt.Sprintf(
			"?[type_id, code_text] <- [%s]\n:put cie_type_code { type_id => code_text }",
			strings.Join(codeRows, ", "),
		),
	}
	if len(embedRows) > 0 {
		stmts = append(stmts, fmt.Sprintf(
			"?[type_id, embedding] <- [%s]\n:put cie_type_embedding { type_id => embedding }",
			strings.Join(embedRows, ", "),
		))
	}
	return stmts
}

func (b *DatalogBuilder) buildDefines(defines []DefinesEdge) string {
	if len(defines) == 0 {
		return ""
	}
	rows := make([]string, len(defines))
	for i, d := range defines {
		rows[i] = fmt.Sprintf("[%q, %q, %q]", d.ID, d.FileID, d.FunctionID)
	}
	return fmt.Sprintf(
		"?[id, file_id, function_id] <- [%s]\n:put cie_defines { id => file_id, function_id }",
		strings.Join(rows, ", "),
	)
}

func (b *DatalogBuilder) buildDefinesTypes(definesTypes []DefinesTypeEdge) string {
	if len(definesTypes) == 0 {
		return ""
	}
	rows := make([]string, len(definesTypes))
	for i, d := range definesTypes {
		rows[i] = fmt.Sprintf("[%q, %q, %q]", d.ID, d.FileID, d.TypeID)
	}
	return fmt.Sprintf(
		"?[id, file_id, type_id] <- [%s]\n:put cie_defines_type { id => file_id, type_id }",
		strings.Join(rows, ", "),
	)
}

func (b *DatalogBuilder) buildCalls(calls []CallsEdge) string {
	if len(calls) == 0 {
		return ""
	}
	rows := make([]string, len(calls))
	for i, c := range calls {
		id := GenerateCallID(c.CallerID, c.CalleeID, c.CallLine)
		rows[i] = fmt.Sprintf("[%q, %q, %q, %d]", id, c.CallerID, c.CalleeID, c.CallLine)
	}
	return fmt.Sprintf(
		"?[id, caller_id, callee_id, call_line] <- [%s]\n:put cie_calls { id => caller_id, callee_id, call_line }",
		strings.Join(rows, ", "),
	)
}

func (b *DatalogBuilder) buildImports(imports []ImportEntity) string {
	if len(imports) == 0 {
		return ""
	}
	rows := make([]string, len(imports))
	for i, imp := range imports {
		rows[i] = fmt.Sprintf("[%q, %q, %q, %q, %d]", imp.ID, imp.FilePath, imp.ImportPath, imp.Alias, imp.StartLine)
	}
	return fmt.Sprintf(
		"?[id, file_path, import_path, alias, start_line] <- [%s]\n:put cie_import { id => file_path, import_path, alias, start_line }",
		strings.Join(rows, ", "),
	)
}

// formatVectorLiteral renders a float32 embedding as a CozoScript vector
// literal, matching the format cie_function_embedding/cie_type_embedding
// columns expect.
func formatVectorLiteral(v []float32) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = fmt.Sprintf("%g", f)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
