// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package ingestion

import "testing"

func TestValidateEntities_Valid(t *testing.T) {
	files := []FileEntity{{ID: "file:1", Path: "a.go"}}
	functions := []FunctionEntity{{ID: "fn:1", Name: "Foo", FilePath: "a.go"}}
	defines := []DefinesEdge{{ID: "defines:1", FileID: "file:1", FunctionID: "fn:1"}}
	calls := []CallsEdge{{CallerID: "fn:1", CalleeID: "fn:unresolved"}}

	if err := ValidateEntities(files, functions, defines, calls); err != nil {
		t.Fatalf("ValidateEntities() = %v, want nil", err)
	}
}

func TestValidateEntities_EmptyFileID(t *testing.T) {
	files := []FileEntity{{ID: "", Path: "a.go"}}
	if err := ValidateEntities(files, nil, nil, nil); err == nil {
		t.Fatalf("ValidateEntities with an empty file ID succeeded, want an error")
	}
}

func TestValidateEntities_EmptyFunctionID(t *testing.T) {
	functions := []FunctionEntity{{ID: "", Name: "Foo"}}
	if err := ValidateEntities(nil, functions, nil, nil); err == nil {
		t.Fatalf("ValidateEntities with an empty function ID succeeded, want an error")
	}
}

func TestValidateEntities_DefinesEdgeReferencesUnknownFile(t *testing.T) {
	functions := []FunctionEntity{{ID: "fn:1"}}
	defines := []DefinesEdge{{ID: "defines:1", FileID: "file:missing", FunctionID: "fn:1"}}
	if err := ValidateEntities(nil, functions, defines, nil); err == nil {
		t.Fatalf("ValidateEntities with an unknown file reference succeeded, want an error")
	}
}

func TestValidateEntities_DefinesEdgeReferencesUnknownFunction(t *testing.T) {
	files := []FileEntity{{ID: "file:1"}}
	defines := []DefinesEdge{{ID: "defines:1", FileID: "file:1", FunctionID: "fn:missing"}}
	if err := ValidateEntities(files, nil, defines, nil); err == nil {
		t.Fatalf("ValidateEntities with an unknown function reference succeeded, want an error")
	}
}

func TestValidateEntities_CallsEdgeReferencesUnknownCaller(t *testing.T) {
	calls := []CallsEdge{{CallerID: "fn:missing", CalleeID: "fn:1"}}
	if err := ValidateEntities(nil, nil, nil, calls); err == nil {
		t.Fatalf("ValidateEntities with an unknown caller succeeded, want an error")
	}
}

func TestValidateEntities_UnresolvedCalleeIsAllowed(t *testing.T) {
	functions := []FunctionEntity{{ID: "fn:1"}}
	// CalleeID references a function outside this batch - cross-package
	// calls are resolved in a later pass, so this must not error.
	calls := []CallsEdge{{CallerID: "fn:1", CalleeID: "fn:in-another-file"}}
	if err := ValidateEntities(nil, functions, nil, calls); err != nil {
		t.Fatalf("ValidateEntities() = %v, want nil for an unresolved callee", err)
	}
}
