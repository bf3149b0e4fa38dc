// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package ingestion

import (
	"strings"
	"testing"
)

func TestBuildMutationsWithTypes_EmptyBatchProducesEmptyScript(t *testing.T) {
	b := NewDatalogBuilder()
	script := b.BuildMutationsWithTypes(nil, nil, nil, nil, nil, nil, nil)
	if script != "" {
		t.Fatalf("script = %q, want empty for an all-nil batch", script)
	}
}

func TestBuildMutationsWithTypes_IncludesAllNonEmptyRelations(t *testing.T) {
	b := NewDatalogBuilder()
	files := []FileEntity{{ID: "file:1", Path: "a.go", Hash: "h1", Language: "go", Size: 10}}
	functions := []FunctionEntity{{ID: "fn:1", Name: "Foo", Signature: "Foo()", FilePath: "a.go", StartLine: 1, EndLine: 3}}
	types := []TypeEntity{{ID: "type:1", Name: "Bar", Kind: "struct", FilePath: "a.go", StartLine: 5, EndLine: 8}}
	defines := []DefinesEdge{{ID: "defines:1", FileID: "file:1", FunctionID: "fn:1"}}
	definesTypes := []DefinesTypeEdge{{ID: "definestype:1", FileID: "file:1", TypeID: "type:1"}}
	calls := []CallsEdge{{CallerID: "fn:1", CalleeID: "fn:2", CallLine: 2}}
	imports := []ImportEntity{{ID: "import:1", FilePath: "a.go", ImportPath: "fmt", StartLine: 1}}

	script := b.BuildMutationsWithTypes(files, functions, types, defines, definesTypes, calls, imports)

	for _, relation := range []string{
		"cie_file", "cie_function", "cie_function_code", "cie_type", "cie_type_code",
		"cie_defines", "cie_defines_type", "cie_calls", "cie_import",
	} {
		if !strings.Contains(script, relation) {
			t.Errorf("script missing a :put for relation %q:\n%s", relation, script)
		}
	}
	if strings.Contains(script, "cie_function_embedding") {
		t.Errorf("script contains a function embedding statement despite no function carrying one")
	}
	if strings.Contains(script, "cie_type_embedding") {
		t.Errorf("script contains a type embedding statement despite no type carrying one")
	}
}

func TestBuildMutationsWithTypes_OmitsEmbeddingStatementsWithoutVectors(t *testing.T) {
	b := NewDatalogBuilder()
	functions := []FunctionEntity{{ID: "fn:1", Name: "Foo"}}
	script := b.BuildMutationsWithTypes(nil, functions, nil, nil, nil, nil, nil)
	if strings.Contains(script, "cie_function_embedding") {
		t.Errorf("script = %q, want no embedding statement for a function with a nil embedding", script)
	}
}

func TestBuildMutationsWithTypes_IncludesEmbeddingStatementsWhenPresent(t *testing.T) {
	b := NewDatalogBuilder()
	functions := []FunctionEntity{{ID: "fn:1", Name: "Foo", Embedding: []float32{0.1, 0.2, 0.3}}}
	types := []TypeEntity{{ID: "type:1", Name: "Bar", Embedding: []float32{0.4, 0.5}}}
	script := b.BuildMutationsWithTypes(nil, functions, types, nil, nil, nil, nil)

	if !strings.Contains(script, "cie_function_embedding") {
		t.Errorf("script missing cie_function_embedding statement for a function carrying an embedding:\n%s", script)
	}
	if !strings.Contains(script, "cie_type_embedding") {
		t.Errorf("script missing cie_type_embedding statement for a type carrying an embedding:\n%s", script)
	}
}

func TestBuildCalls_GeneratesDeterministicID(t *testing.T) {
	b := NewDatalogBuilder()
	calls := []CallsEdge{{CallerID: "fn:1", CalleeID: "fn:2", CallLine: 7}}
	script := b.buildCalls(calls)

	wantID := GenerateCallID("fn:1", "fn:2", 7)
	if !strings.Contains(script, wantID) {
		t.Errorf("buildCalls() = %q, want it to contain the deterministic call ID %q", script, wantID)
	}
}

func TestFormatVectorLiteral(t *testing.T) {
	got := formatVectorLiteral([]float32{0.1, 0.2, 0.3})
	want := "[0.1,0.2,0.3]"
	if got != want {
		t.Errorf("formatVectorLiteral() = %q, want %q", got, want)
	}
}

func TestFormatVectorLiteral_Empty(t *testing.T) {
	if got := formatVectorLiteral(nil); got != "[]" {
		t.Errorf("formatVectorLiteral(nil) = %q, want []", got)
	}
}
