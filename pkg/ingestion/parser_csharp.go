// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package ingestion

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync/atomic"
	"time"
)

// CSharpParser extracts functions and types from C# source by shelling out
// to a companion Roslyn-based analyzer (a separate .NET console project, not
// part of this module) the same way repo_loader.go shells out to git: no
// Go C#-compiler-frontend exists to link in-process, so this backend is
// process-based instead of AST-walking in Go.
type CSharpParser struct {
	logger          *slog.Logger
	dotnetPath      string // resolved path to the dotnet CLI
	analyzerProject string // path to the companion analyzer's .csproj/.dll
	timeout         time.Duration

	maxCodeTextSize int64
	truncatedCount  int64 // atomic
}

// ErrDotnetNotFound is returned when the dotnet CLI is not on PATH.
var ErrDotnetNotFound = fmt.Errorf("dotnet CLI not found on PATH")

// NewCSharpParser creates a C# parser that drives analyzerProject through
// the dotnet CLI. If dotnet is not on PATH, ParseFile always fails with
// ErrDotnetNotFound and callers skip C# files the same way they skip any
// other per-file parse error.
func NewCSharpParser(logger *slog.Logger, analyzerProject string) *CSharpParser {
	if logger == nil {
		logger = slog.Default()
	}
	dotnetPath, _ := exec.LookPath("dotnet")
	return &CSharpParser{
		logger:          logger,
		dotnetPath:      dotnetPath,
		analyzerProject: analyzerProject,
		timeout:         30 * time.Second,
		maxCodeTextSize: defaultMaxCodeTextBytes,
	}
}

func (p *CSharpParser) SetMaxCodeTextSize(size int64) {
	if size > 0 {
		p.maxCodeTextSize = size
	}
}

func (p *CSharpParser) GetTruncatedCount() int {
	return int(atomic.LoadInt64(&p.truncatedCount))
}

func (p *CSharpParser) ResetTruncatedCount() {
	atomic.StoreInt64(&p.truncatedCount, 0)
}

func (p *CSharpParser) truncateCodeText(codeText string) string {
	if int64(len(codeText)) <= p.maxCodeTextSize {
		return codeText
	}
	atomic.AddInt64(&p.truncatedCount, 1)
	return codeText[:p.maxCodeTextSize]
}

// csharpSymbol is one entry of the analyzer's JSON array output: one method,
// constructor, class, interface, or struct found in the file.
type csharpSymbol struct {
	Name      string   `json:"name"`
	Kind      string   `json:"kind"` // "method", "class", "interface", "struct"
	Signature string   `json:"signature"`
	StartLine int      `json:"startLine"`
	EndLine   int      `json:"endLine"`
	CodeText  string   `json:"codeText"`
	Calls     []string `json:"calls"` // names of methods invoked from this symbol's body
}

// ParseFile runs the companion analyzer against fileInfo.FullPath and maps
// its JSON output onto the shared entity model. Calls are resolved against
// method names found elsewhere in the same file only, matching the
// same-file resolution scope the AST-based parsers use for their nested
// and sibling calls.
func (p *CSharpParser) ParseFile(fileInfo FileInfo) (*ParseResult, error) {
	if p.dotnetPath == "" {
		return nil, ErrDotnetNotFound
	}

	content, err := os.ReadFile(fileInfo.FullPath)
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", fileInfo.Path, err)
	}

	symbols, err := p.runAnalyzer(fileInfo.FullPath)
	if err != nil {
		return nil, fmt.Errorf("csharp analyzer: %w", err)
	}

	fileID := GenerateFileID(fileInfo.Path)
	sum := sha256.Sum256(content)
	file := FileEntity{
		ID:       fileID,
		Path:     fileInfo.Path,
		Hash:     hex.EncodeToString(sum[:]),
		Language: fileInfo.Language,
		Size:     fileInfo.Size,
	}

	var functions []FunctionEntity
	var types []TypeEntity
	funcNameToID := make(map[string]string)

	for _, sym := range symbols {
		switch sym.Kind {
		case "class", "interface", "struct":
			types = append(types, TypeEntity{
				ID:        GenerateTypeID(fileInfo.Path, sym.Name, sym.StartLine, sym.EndLine),
				Name:      sym.Name,
				Kind:      sym.Kind,
				FilePath:  fileInfo.Path,
				CodeText:  p.truncateCodeText(sym.CodeText),
				StartLine: sym.StartLine,
				EndLine:   sym.EndLine,
			})
		default: // "method" and constructors
			id := GenerateFunctionID(fileInfo.Path, sym.Name, sym.Signature, sym.StartLine, sym.EndLine, 0, 0)
			functions = append(functions, FunctionEntity{
				ID:        id,
				Name:      sym.Name,
				Signature: sym.Signature,
				FilePath:  fileInfo.Path,
				CodeText:  p.truncateCodeText(sym.CodeText),
				StartLine: sym.StartLine,
				EndLine:   sym.EndLine,
			})
			funcNameToID[sym.Name] = id
		}
	}

	var calls []CallsEdge
	for _, sym := range symbols {
		if sym.Kind == "class" || sym.Kind == "interface" || sym.Kind == "struct" {
			continue
		}
		callerID := funcNameToID[sym.Name]
		for _, calleeName := range sym.Calls {
			calleeID, ok := funcNameToID[calleeName]
			if !ok || calleeID == callerID {
				continue
			}
			calls = append(calls, CallsEdge{
				CallerID: callerID,
				CalleeID: calleeID,
				CallLine: sym.StartLine,
			})
		}
	}

	defines := make([]DefinesEdge, 0, len(functions))
	for _, fn := range functions {
		defines = append(defines, DefinesEdge{
			ID:         GenerateDefinesID(fileID, fn.ID),
			FileID:     fileID,
			FunctionID: fn.ID,
		})
	}

	definesTypes := make([]DefinesTypeEdge, 0, len(types))
	for _, t := range types {
		definesTypes = append(definesTypes, DefinesTypeEdge{
			ID:     GenerateDefinesID(fileID, t.ID),
			FileID: fileID,
			TypeID: t.ID,
		})
	}

	return &ParseResult{
		File:         file,
		Functions:    functions,
		Types:        types,
		Defines:      defines,
		DefinesTypes: definesTypes,
		Calls:        calls,
	}, nil
}

// runAnalyzer invokes `dotnet run --project <analyzerProject> -- <path>` and
// decodes its stdout as a JSON array of csharpSymbol.
func (p *CSharpParser) runAnalyzer(path string) ([]csharpSymbol, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.dotnetPath, "run", "--project", p.analyzerProject, "--", path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("analyzer exited: %s", stderr.String())
		}
		return nil, fmt.Errorf("run analyzer: %w", err)
	}

	var symbols []csharpSymbol
	if err := json.Unmarshal(stdout.Bytes(), &symbols); err != nil {
		return nil, fmt.Errorf("decode analyzer output: %w", err)
	}
	return symbols, nil
}

var _ CodeParser = (*CSharpParser)(nil)

// DispatchingParser routes a file to one of several CodeParser backends by
// fileInfo.Language, falling back to a primary parser for every language
// the overrides map doesn't claim. This lets a single pipeline run mix an
// AST-walking Go parser with a process-shelling parser like CSharpParser
// without either one needing to know about the other.
type DispatchingParser struct {
	primary   CodeParser
	overrides map[string]CodeParser
}

// NewDispatchingParser wraps primary, routing any language key present in
// overrides to that parser instead.
func NewDispatchingParser(primary CodeParser, overrides map[string]CodeParser) *DispatchingParser {
	return &DispatchingParser{primary: primary, overrides: overrides}
}

func (d *DispatchingParser) ParseFile(fileInfo FileInfo) (*ParseResult, error) {
	if p, ok := d.overrides[fileInfo.Language]; ok {
		return p.ParseFile(fileInfo)
	}
	return d.primary.ParseFile(fileInfo)
}

func (d *DispatchingParser) SetMaxCodeTextSize(size int64) {
	d.primary.SetMaxCodeTextSize(size)
	for _, p := range d.overrides {
		p.SetMaxCodeTextSize(size)
	}
}

func (d *DispatchingParser) GetTruncatedCount() int {
	total := d.primary.GetTruncatedCount()
	for _, p := range d.overrides {
		total += p.GetTruncatedCount()
	}
	return total
}

func (d *DispatchingParser) ResetTruncatedCount() {
	d.primary.ResetTruncatedCount()
	for _, p := range d.overrides {
		p.ResetTruncatedCount()
	}
}

var _ CodeParser = (*DispatchingParser)(nil)
