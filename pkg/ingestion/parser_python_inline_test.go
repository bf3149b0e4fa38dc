// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package ingestion

import (
	"os"
	"path/filepath"
	"testing"
)

// These tests exercise the Python tree-sitter path with inline fixtures
// rather than the testdata/python directory parser_python_test.go expects,
// the way TestTreeSitterParser_NestedFunctions covers Go inline.
func TestTreeSitterParser_Python_FunctionsAndClasses(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "sample.py")
	content := `class Greeter:
    def __init__(self, name):
        self.name = name

    def greet(self):
        return hello(self.name)


def hello(name):
    return "hi " + name
`
	if err := os.WriteFile(tmpFile, []byte(content), 0644); err != nil {
		t.Fatalf("write test file: %v", err)
	}

	parser := NewTreeSitterParser(nil)
	result, err := parser.ParseFile(FileInfo{
		Path:     "sample.py",
		FullPath: tmpFile,
		Size:     int64(len(content)),
		Language: "python",
	})
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}

	if len(result.Types) != 1 || result.Types[0].Name != "Greeter" {
		t.Fatalf("Types = %+v, want one class named Greeter", result.Types)
	}

	names := make(map[string]bool)
	for _, fn := range result.Functions {
		names[fn.Name] = true
	}
	for _, want := range []string{"__init__", "greet", "hello"} {
		if !names[want] {
			t.Errorf("Functions missing %q, got %+v", want, result.Functions)
		}
	}
}

func TestTreeSitterParser_Python_ResolvesCallWithinModule(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "sample.py")
	content := `def helper():
    return 1


def caller():
    return helper()
`
	if err := os.WriteFile(tmpFile, []byte(content), 0644); err != nil {
		t.Fatalf("write test file: %v", err)
	}

	parser := NewTreeSitterParser(nil)
	result, err := parser.ParseFile(FileInfo{
		Path:     "sample.py",
		FullPath: tmpFile,
		Size:     int64(len(content)),
		Language: "python",
	})
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}

	if len(result.Calls) != 1 {
		t.Fatalf("Calls = %+v, want one resolved call from caller to helper", result.Calls)
	}
}

func TestSimplifiedParser_ExtractsGoFunctions(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "main.go")
	content := `package main

func Hello() string {
	return "hi"
}

func World() {
}
`
	if err := os.WriteFile(tmpFile, []byte(content), 0644); err != nil {
		t.Fatalf("write test file: %v", err)
	}

	parser := NewParser(nil)
	result, err := parser.ParseFile(FileInfo{
		Path:     "main.go",
		FullPath: tmpFile,
		Size:     int64(len(content)),
		Language: "go",
	})
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(result.Functions) != 2 {
		t.Fatalf("Functions = %+v, want 2", result.Functions)
	}
	if result.File.Path != "main.go" {
		t.Errorf("File.Path = %q, want main.go", result.File.Path)
	}
}

func TestSimplifiedParser_NeverResolvesCalls(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "main.go")
	content := `package main

func helper() {}

func caller() {
	helper()
}
`
	if err := os.WriteFile(tmpFile, []byte(content), 0644); err != nil {
		t.Fatalf("write test file: %v", err)
	}

	parser := NewParser(nil)
	result, err := parser.ParseFile(FileInfo{
		Path:     "main.go",
		FullPath: tmpFile,
		Size:     int64(len(content)),
		Language: "go",
	})
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(result.Calls) != 0 {
		t.Errorf("Calls = %+v, the simplified parser never resolves calls", result.Calls)
	}
}
