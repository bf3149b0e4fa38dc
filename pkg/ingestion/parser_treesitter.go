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
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// defaultMaxCodeTextBytes bounds CodeText when a caller never calls
// SetMaxCodeTextSize.
const defaultMaxCodeTextBytes = 64 * 1024

// TreeSitterParser extracts functions, types, calls, and imports using
// per-language Tree-sitter grammars. One parser instance is reused across
// files of the same language to amortize grammar setup cost.
type TreeSitterParser struct {
	logger *slog.Logger

	goParser *sitter.Parser
	tsParser *sitter.Parser
	jsParser *sitter.Parser
	pyParser *sitter.Parser

	maxCodeTextSize int64
	truncatedCount  int64 // atomic
}

// NewTreeSitterParser creates a parser with one sitter.Parser per supported
// language, each configured with its grammar up front.
func NewTreeSitterParser(logger *slog.Logger) *TreeSitterParser {
	if logger == nil {
		logger = slog.Default()
	}

	goP := sitter.NewParser()
	goP.SetLanguage(golang.GetLanguage())

	tsP := sitter.NewParser()
	tsP.SetLanguage(typescript.GetLanguage())

	jsP := sitter.NewParser()
	jsP.SetLanguage(javascript.GetLanguage())

	pyP := sitter.NewParser()
	pyP.SetLanguage(python.GetLanguage())

	return &TreeSitterParser{
		logger:          logger,
		goParser:        goP,
		tsParser:        tsP,
		jsParser:        jsP,
		pyParser:        pyP,
		maxCodeTextSize: defaultMaxCodeTextBytes,
	}
}

// SetMaxCodeTextSize sets the maximum size for CodeText (in bytes).
func (p *TreeSitterParser) SetMaxCodeTextSize(size int64) {
	if size > 0 {
		p.maxCodeTextSize = size
	}
}

// GetTruncatedCount returns the number of CodeTexts that were truncated.
func (p *TreeSitterParser) GetTruncatedCount() int {
	return int(atomic.LoadInt64(&p.truncatedCount))
}

// ResetTruncatedCount resets the truncation counter.
func (p *TreeSitterParser) ResetTruncatedCount() {
	atomic.StoreInt64(&p.truncatedCount, 0)
}

// truncateCodeText bounds a code snippet to maxCodeTextSize bytes, counting
// the truncation so callers can report how often it happened.
func (p *TreeSitterParser) truncateCodeText(codeText string) string {
	if int64(len(codeText)) <= p.maxCodeTextSize {
		return codeText
	}
	atomic.AddInt64(&p.truncatedCount, 1)
	return codeText[:p.maxCodeTextSize]
}

// ParseFile parses a source file and extracts functions, defines edges, and
// calls edges, dispatching to the grammar matching fileInfo.Language.
func (p *TreeSitterParser) ParseFile(fileInfo FileInfo) (*ParseResult, error) {
	content, err := os.ReadFile(fileInfo.FullPath)
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", fileInfo.Path, err)
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

	var (
		functions       []FunctionEntity
		types           []TypeEntity
		calls           []CallsEdge
		imports         []ImportEntity
		unresolvedCalls []UnresolvedCall
		packageName     string
	)

	switch fileInfo.Language {
	case "go":
		gr, err := p.parseGoAST(content, fileInfo.Path)
		if err != nil {
			return nil, err
		}
		functions = gr.Functions
		types = gr.Types
		calls = gr.Calls
		imports = gr.Imports
		unresolvedCalls = gr.UnresolvedCalls
		packageName = gr.PackageName
	case "typescript", "tsx":
		functions, types, calls, err = p.parseTypeScriptAST(content, fileInfo.Path)
		if err != nil {
			return nil, err
		}
	case "javascript", "jsx":
		functions, types, calls, err = p.parseJavaScriptAST(content, fileInfo.Path)
		if err != nil {
			return nil, err
		}
	case "python":
		functions, types, calls, err = p.parsePythonAST(content, fileInfo.Path)
		if err != nil {
			return nil, err
		}
	case "protobuf":
		functions, calls = parseProtobufSimplified(content, fileInfo.Path, p)
	default:
		return nil, fmt.Errorf("unsupported language %q for %s", fileInfo.Language, fileInfo.Path)
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
		File:            file,
		Functions:       functions,
		Types:           types,
		Defines:         defines,
		DefinesTypes:    definesTypes,
		Calls:           calls,
		Imports:         imports,
		UnresolvedCalls: unresolvedCalls,
		PackageName:     packageName,
	}, nil
}

// countErrors counts ERROR nodes in a Tree-sitter parse tree. Tree-sitter is
// error-tolerant, so a non-zero count is a warning signal, not a parse
// failure.
func countErrors(node *sitter.Node) int {
	if node == nil {
		return 0
	}
	count := 0
	if node.Type() == "ERROR" {
		count++
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		count += countErrors(node.Child(i))
	}
	return count
}

// extractJSCalls finds call expressions whose source range falls inside fn
// and resolves their callee through funcNameToID. Calls inside a nested
// function literal are attributed to every enclosing function, which is an
// acceptable approximation for the same-file call graph.
func (p *TreeSitterParser) extractJSCalls(rootNode *sitter.Node, content []byte, fn FunctionEntity, funcNameToID map[string]string) []CallsEdge {
	var calls []CallsEdge
	p.walkJSCallExpressions(rootNode, content, fn, funcNameToID, &calls)
	return calls
}

func (p *TreeSitterParser) walkJSCallExpressions(node *sitter.Node, content []byte, fn FunctionEntity, funcNameToID map[string]string, calls *[]CallsEdge) {
	if node == nil {
		return
	}

	startLine := int(node.StartPoint().Row) + 1
	endLine := int(node.EndPoint().Row) + 1
	if startLine < fn.StartLine || endLine > fn.EndLine {
		// Still recurse: a child node might be fully contained even if this
		// one isn't (e.g. the program root).
		for i := 0; i < int(node.ChildCount()); i++ {
			p.walkJSCallExpressions(node.Child(i), content, fn, funcNameToID, calls)
		}
		return
	}

	if node.Type() == "call_expression" {
		if funcNode := node.ChildByFieldName("function"); funcNode != nil {
			name := string(content[funcNode.StartByte():funcNode.EndByte()])
			if calleeID, ok := funcNameToID[name]; ok && calleeID != fn.ID {
				*calls = append(*calls, CallsEdge{
					CallerID: fn.ID,
					CalleeID: calleeID,
					CallLine: startLine,
				})
			}
		}
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		p.walkJSCallExpressions(node.Child(i), content, fn, funcNameToID, calls)
	}
}

// parseJavaScriptAST extracts functions and calls from plain JavaScript,
// reusing the TypeScript walker (a superset grammar for the JS subset we
// care about) but parsing with the JS grammar so .js/.jsx-only syntax still
// parses cleanly.
func (p *TreeSitterParser) parseJavaScriptAST(content []byte, filePath string) ([]FunctionEntity, []TypeEntity, []CallsEdge, error) {
	tree, err := p.jsParser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("tree-sitter parse: %w", err)
	}
	defer tree.Close()

	rootNode := tree.RootNode()
	if rootNode.HasError() {
		if errorCount := countErrors(rootNode); errorCount > 0 {
			p.logger.Warn("parser.treesitter.javascript.syntax_errors", "path", filePath, "error_count", errorCount)
		}
	}

	var functions []FunctionEntity
	funcNameToID := make(map[string]string)
	anonCounter := 0
	p.walkTSFunctions(rootNode, content, filePath, &functions, funcNameToID, &anonCounter)

	types := p.extractTSTypes(rootNode, content, filePath)

	var calls []CallsEdge
	for _, fn := range functions {
		calls = append(calls, p.extractJSCalls(rootNode, content, fn, funcNameToID)...)
	}

	return functions, types, calls, nil
}
