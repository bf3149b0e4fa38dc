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
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// =============================================================================
// PYTHON PARSER
// =============================================================================

// parsePythonAST extracts functions, classes, and calls from Python source
// using Tree-sitter.
func (p *TreeSitterParser) parsePythonAST(content []byte, filePath string) ([]FunctionEntity, []TypeEntity, []CallsEdge, error) {
	tree, err := p.pyParser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("tree-sitter parse: %w", err)
	}
	defer tree.Close()

	rootNode := tree.RootNode()
	if rootNode.HasError() {
		if errorCount := countErrors(rootNode); errorCount > 0 {
			p.logger.Warn("parser.treesitter.python.syntax_errors",
				"path", filePath,
				"error_count", errorCount,
			)
		}
	}

	var functions []FunctionEntity
	funcNameToID := make(map[string]string)
	p.walkPythonFunctions(rootNode, content, filePath, &functions, funcNameToID)

	types := p.extractPythonClasses(rootNode, content, filePath)

	var calls []CallsEdge
	for _, fn := range functions {
		calls = append(calls, p.extractPythonCalls(rootNode, content, fn, funcNameToID)...)
	}

	return functions, types, calls, nil
}

// walkPythonFunctions recurses the AST collecting module-level functions and
// class methods. Nested (closure) functions are collected too, keyed by
// their own name, matching the Go/TS walkers' treatment of nested functions.
func (p *TreeSitterParser) walkPythonFunctions(node *sitter.Node, content []byte, filePath string, functions *[]FunctionEntity, funcNameToID map[string]string) {
	if node == nil {
		return
	}

	if node.Type() == "function_definition" {
		fn := p.extractPythonFunction(node, content, filePath)
		if fn != nil {
			*functions = append(*functions, *fn)
			funcNameToID[fn.Name] = fn.ID
		}
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		p.walkPythonFunctions(node.Child(i), content, filePath, functions, funcNameToID)
	}
}

// extractPythonFunction extracts a def (or async def) as a FunctionEntity.
// Signature is the "def name(params):" header line, without the body.
func (p *TreeSitterParser) extractPythonFunction(node *sitter.Node, content []byte, filePath string) *FunctionEntity {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	name := string(content[nameNode.StartByte():nameNode.EndByte()])

	signature := "def " + name + "(...):"
	if bodyNode := node.ChildByFieldName("body"); bodyNode != nil {
		signature = strings.TrimSpace(string(content[node.StartByte():bodyNode.StartByte()]))
	} else if paramsNode := node.ChildByFieldName("parameters"); paramsNode != nil {
		signature = "def " + name + string(content[paramsNode.StartByte():paramsNode.EndByte()]) + ":"
	}

	codeText := p.truncateCodeText(string(content[node.StartByte():node.EndByte()]))

	startLine := int(node.StartPoint().Row) + 1
	endLine := int(node.EndPoint().Row) + 1
	startCol := int(node.StartPoint().Column) + 1
	endCol := int(node.EndPoint().Column) + 1

	id := GenerateFunctionID(filePath, name, signature, startLine, endLine, startCol, endCol)

	return &FunctionEntity{
		ID:        id,
		Name:      name,
		Signature: signature,
		FilePath:  filePath,
		CodeText:  codeText,
		StartLine: startLine,
		EndLine:   endLine,
		StartCol:  startCol,
		EndCol:    endCol,
	}
}

// extractPythonClasses extracts class definitions as TypeEntity values with
// Kind "class".
func (p *TreeSitterParser) extractPythonClasses(rootNode *sitter.Node, content []byte, filePath string) []TypeEntity {
	var types []TypeEntity
	if rootNode == nil {
		return types
	}
	p.walkPythonClasses(rootNode, content, filePath, &types)
	return types
}

func (p *TreeSitterParser) walkPythonClasses(node *sitter.Node, content []byte, filePath string, types *[]TypeEntity) {
	if node == nil {
		return
	}

	if node.Type() == "class_definition" {
		if nameNode := node.ChildByFieldName("name"); nameNode != nil {
			name := string(content[nameNode.StartByte():nameNode.EndByte()])
			startLine := int(node.StartPoint().Row) + 1
			endLine := int(node.EndPoint().Row) + 1
			startCol := int(node.StartPoint().Column) + 1
			endCol := int(node.EndPoint().Column) + 1
			codeText := p.truncateCodeText(string(content[node.StartByte():node.EndByte()]))

			*types = append(*types, TypeEntity{
				ID:        GenerateTypeID(filePath, name, startLine, endLine),
				Name:      name,
				Kind:      "class",
				FilePath:  filePath,
				CodeText:  codeText,
				StartLine: startLine,
				EndLine:   endLine,
				StartCol:  startCol,
				EndCol:    endCol,
			})
		}
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		p.walkPythonClasses(node.Child(i), content, filePath, types)
	}
}

// extractPythonCalls finds "call" nodes inside fn's line range and resolves
// the callee through funcNameToID, the same line-range heuristic
// extractJSCalls uses.
func (p *TreeSitterParser) extractPythonCalls(rootNode *sitter.Node, content []byte, fn FunctionEntity, funcNameToID map[string]string) []CallsEdge {
	var calls []CallsEdge
	p.walkPythonCallExpressions(rootNode, content, fn, funcNameToID, &calls)
	return calls
}

func (p *TreeSitterParser) walkPythonCallExpressions(node *sitter.Node, content []byte, fn FunctionEntity, funcNameToID map[string]string, calls *[]CallsEdge) {
	if node == nil {
		return
	}

	startLine := int(node.StartPoint().Row) + 1
	endLine := int(node.EndPoint().Row) + 1
	if startLine < fn.StartLine || endLine > fn.EndLine {
		for i := 0; i < int(node.ChildCount()); i++ {
			p.walkPythonCallExpressions(node.Child(i), content, fn, funcNameToID, calls)
		}
		return
	}

	if node.Type() == "call" {
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
		p.walkPythonCallExpressions(node.Child(i), content, fn, funcNameToID, calls)
	}
}
