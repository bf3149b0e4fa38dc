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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sync/atomic"
)

// Parser is a regex-based fallback CodeParser used when tree-sitter grammars
// are unavailable or ParserModeSimplified is selected. It extracts function
// signatures by line-matching rather than walking an AST, so it misses
// nested/anonymous functions and never resolves calls, but it never fails to
// produce output for a file it can read.
type Parser struct {
	logger          *slog.Logger
	maxCodeTextSize int64
	truncatedCount  int64 // atomic
}

// NewParser creates a simplified parser.
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{
		logger:          logger,
		maxCodeTextSize: defaultMaxCodeTextBytes,
	}
}

func (p *Parser) SetMaxCodeTextSize(size int64) {
	if size > 0 {
		p.maxCodeTextSize = size
	}
}

func (p *Parser) GetTruncatedCount() int {
	return int(atomic.LoadInt64(&p.truncatedCount))
}

func (p *Parser) ResetTruncatedCount() {
	atomic.StoreInt64(&p.truncatedCount, 0)
}

func (p *Parser) truncateCodeText(codeText string) string {
	if int64(len(codeText)) <= p.maxCodeTextSize {
		return codeText
	}
	atomic.AddInt64(&p.truncatedCount, 1)
	return codeText[:p.maxCodeTextSize]
}

var simplifiedFuncPatterns = map[string]*regexp.Regexp{
	"go":         regexp.MustCompile(`(?m)^func\s+(?:\([^)]*\)\s*)?([A-Za-z_][A-Za-z0-9_]*)\s*\(`),
	"python":     regexp.MustCompile(`(?m)^\s*(?:async\s+)?def\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(`),
	"typescript": regexp.MustCompile(`(?m)^\s*(?:export\s+)?(?:async\s+)?function\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(`),
	"javascript": regexp.MustCompile(`(?m)^\s*(?:export\s+)?(?:async\s+)?function\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(`),
}

// ParseFile extracts a flat list of functions by regex line-matching. It
// never returns types, calls, imports, or unresolved calls: those require an
// AST and are left to TreeSitterParser.
func (p *Parser) ParseFile(fileInfo FileInfo) (*ParseResult, error) {
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

	var functions []FunctionEntity
	var calls []CallsEdge

	if fileInfo.Language == "protobuf" {
		functions, calls = parseProtobufContent(string(content), fileInfo.Path, p.truncateCodeText)
	} else if pattern, ok := simplifiedFuncPatterns[fileInfo.Language]; ok {
		functions = p.extractFunctionsByPattern(content, fileInfo.Path, pattern)
	} else {
		p.logger.Debug("parser.simplified.unsupported_language", "path", fileInfo.Path, "language", fileInfo.Language)
	}

	defines := make([]DefinesEdge, 0, len(functions))
	for _, fn := range functions {
		defines = append(defines, DefinesEdge{
			ID:         GenerateDefinesID(fileID, fn.ID),
			FileID:     fileID,
			FunctionID: fn.ID,
		})
	}

	return &ParseResult{
		File:      file,
		Functions: functions,
		Defines:   defines,
		Calls:     calls,
	}, nil
}

// extractFunctionsByPattern scans content line by line, recording a
// FunctionEntity per regex match. The function body end is approximated as
// the line before the next match (or EOF), since regex matching has no
// notion of matching braces/indentation.
func (p *Parser) extractFunctionsByPattern(content []byte, filePath string, pattern *regexp.Regexp) []FunctionEntity {
	lines := splitLines(string(content))

	type match struct {
		line      int
		name      string
		signature string
	}
	var matches []match
	for i, line := range lines {
		m := pattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		matches = append(matches, match{line: i + 1, name: m[1], signature: line})
	}

	functions := make([]FunctionEntity, 0, len(matches))
	for i, m := range matches {
		endLine := len(lines)
		if i+1 < len(matches) {
			endLine = matches[i+1].line - 1
		}
		if endLine < m.line {
			endLine = m.line
		}

		codeText := p.truncateCodeText(joinLines(lines[m.line-1 : endLine]))
		id := GenerateFunctionID(filePath, m.name, m.signature, m.line, endLine, 0, 0)

		functions = append(functions, FunctionEntity{
			ID:        id,
			Name:      m.name,
			Signature: m.signature,
			FilePath:  filePath,
			CodeText:  codeText,
			StartLine: m.line,
			EndLine:   endLine,
		})
	}
	return functions
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	lines = append(lines, s[start:])
	return lines
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}
