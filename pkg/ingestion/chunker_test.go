package ingestion

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkText_Deterministic(t *testing.T) {
	content := strings.Repeat("line number content here\n", 500)
	cfg := ChunkConfig{MaxChunkChars: 300, OverlapChars: 20, Boundary: BoundaryLine}

	first := ChunkText(content, cfg)
	second := ChunkText(content, cfg)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Content, second[i].Content, "chunk %d should be identical across runs", i)
		assert.Equal(t, first[i].StartLine, second[i].StartLine)
		assert.Equal(t, first[i].EndLine, second[i].EndLine)
		assert.Equal(t, first[i].ContentHash, second[i].ContentHash)
	}
}

func TestChunkText_RespectsLineBoundary(t *testing.T) {
	content := "alpha beta gamma\ndelta epsilon zeta\neta theta iota\n"
	cfg := ChunkConfig{MaxChunkChars: 20, OverlapChars: 0, Boundary: BoundaryLine}

	chunks := ChunkText(content, cfg)
	require.NotEmpty(t, chunks)
	for _, c := range chunks[:len(chunks)-1] {
		assert.True(t, strings.HasSuffix(c.Content, "\n"), "non-final chunk %q should end at a line boundary", c.Content)
	}
}

func TestChunkText_LineRangesAreSequential(t *testing.T) {
	content := strings.Repeat("x\n", 100)
	chunks := ChunkText(content, ChunkConfig{MaxChunkChars: 10, OverlapChars: 0, Boundary: BoundaryLine})

	require.NotEmpty(t, chunks)
	for i, c := range chunks {
		assert.LessOrEqual(t, c.StartLine, c.EndLine)
		assert.Equal(t, i, c.Index)
	}
}

func TestChunkText_EmptyContent(t *testing.T) {
	assert.Nil(t, ChunkText("", DefaultChunkConfig()))
}

func TestChunkText_SmallContentSingleChunk(t *testing.T) {
	content := "just one short line"
	chunks := ChunkText(content, DefaultChunkConfig())
	require.Len(t, chunks, 1)
	assert.Equal(t, content, chunks[0].Content)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 1, chunks[0].EndLine)
}

func TestChunkText_OverlapProducesSharedContent(t *testing.T) {
	content := strings.Repeat("word ", 200)
	cfg := ChunkConfig{MaxChunkChars: 100, OverlapChars: 30, Boundary: BoundaryLine}

	chunks := ChunkText(content, cfg)
	require.Greater(t, len(chunks), 1)
	// The second chunk starts 30 bytes before the first one ends.
	assert.Equal(t, chunks[0].Content[70:], chunks[1].Content[:30])
}

func TestChunkText_InvalidOverlapIsIgnored(t *testing.T) {
	content := strings.Repeat("a", 50)
	cfg := ChunkConfig{MaxChunkChars: 10, OverlapChars: 10, Boundary: BoundaryLine}

	chunks := ChunkText(content, cfg)
	require.NotEmpty(t, chunks)
	// overlap >= max chunk size is invalid and must not produce an infinite loop
	total := 0
	for _, c := range chunks {
		total += len(c.Content)
	}
	assert.GreaterOrEqual(t, total, len(content))
}
