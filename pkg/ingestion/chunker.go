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
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ChunkBoundary selects where the chunker prefers to split text.
type ChunkBoundary string

const (
	// BoundaryLine splits only at newline characters.
	BoundaryLine ChunkBoundary = "line"
	// BoundarySentence splits at sentence terminators, falling back to
	// line boundaries when no terminator falls within range.
	BoundarySentence ChunkBoundary = "sentence"
)

// ChunkConfig controls chunk sizing. Sizes are measured in bytes, not
// runes or tokens: the caller derives MaxChunkChars from the embedding provider's
// Capabilities().MaxTokensPerText using its own token-to-char ratio.
type ChunkConfig struct {
	MaxChunkChars int
	OverlapChars  int
	Boundary      ChunkBoundary
}

// DefaultChunkConfig mirrors a conservative provider token budget
// (roughly 2000 tokens at ~4 chars/token) with a modest overlap to keep
// context across chunk edges.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		MaxChunkChars: 8000,
		OverlapChars:  400,
		Boundary:      BoundaryLine,
	}
}

// TextChunk is a bounded slice of a file's content, carrying the line
// range it came from so callers can map a match back to source.
type TextChunk struct {
	Index       int
	Content     string
	StartLine   int
	EndLine     int
	ContentHash string
}

var sentenceEnders = []byte{'.', '!', '?'}

// ChunkText splits content into a deterministic sequence of chunks: the
// same (content, config) pair always yields the same chunks, in the same
// order, with the same line ranges.
func ChunkText(content string, cfg ChunkConfig) []TextChunk {
	if cfg.MaxChunkChars <= 0 {
		cfg = DefaultChunkConfig()
	}
	if cfg.OverlapChars < 0 || cfg.OverlapChars >= cfg.MaxChunkChars {
		cfg.OverlapChars = 0
	}
	if content == "" {
		return nil
	}

	lineStarts := computeLineStarts(content)
	var chunks []TextChunk

	pos := 0
	for pos < len(content) {
		end := pos + cfg.MaxChunkChars
		if end >= len(content) {
			end = len(content)
		} else {
			end = preferredBoundary(content, pos, end, cfg.Boundary)
		}
		if end <= pos {
			end = pos + 1 // guarantee forward progress on pathological input
		}

		chunkStr := content[pos:end]
		startLine := lineForOffset(lineStarts, pos)
		endLine := lineForOffset(lineStarts, end-1)

		chunks = append(chunks, TextChunk{
			Index:       len(chunks),
			Content:     chunkStr,
			StartLine:   startLine,
			EndLine:     endLine,
			ContentHash: hashChunkContent(chunkStr),
		})

		if end >= len(content) {
			break
		}

		next := end - cfg.OverlapChars
		if next <= pos {
			next = end
		}
		pos = next
	}

	return chunks
}

// preferredBoundary looks backward from end (within the chunk's own
// window) for the chunker's preferred split point, falling back to end
// when none is found so chunks never grow unbounded.
func preferredBoundary(content string, start, end int, boundary ChunkBoundary) int {
	window := content[start:end]

	switch boundary {
	case BoundarySentence:
		if idx := lastIndexAny(window, sentenceEnders); idx >= 0 {
			return start + idx + 1
		}
		fallthrough
	case BoundaryLine:
		if idx := strings.LastIndexByte(window, '\n'); idx >= 0 {
			return start + idx + 1
		}
	}
	return end
}

func lastIndexAny(s string, chars []byte) int {
	for i := len(s) - 1; i >= 0; i-- {
		for _, c := range chars {
			if s[i] == c {
				return i
			}
		}
	}
	return -1
}

// computeLineStarts returns the byte offset at which each 1-indexed line
// begins; computeLineStarts(content)[0] is unused, index i holds the
// start of line i.
func computeLineStarts(content string) []int {
	starts := []int{0, 0}
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// lineForOffset returns the 1-indexed line number containing byte offset.
func lineForOffset(lineStarts []int, offset int) int {
	lo, hi := 1, len(lineStarts)-1
	line := 1
	for lo <= hi {
		mid := (lo + hi) / 2
		if lineStarts[mid] <= offset {
			line = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return line
}

func hashChunkContent(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
