package source

import (
	"strings"
)

// LineChunker splits documents into line-aligned chunks bounded by an
// approximate token budget, with token overlap between adjacent chunks.
type LineChunker struct {
	maxTokens int
	overlap   int
}

// NewLineChunker creates a chunker. Non-positive maxTokens falls back to
// the default budget; overlap is clamped below maxTokens.
func NewLineChunker(maxTokens, overlap int) *LineChunker {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxChunkTokens
	}
	if overlap < 0 || overlap >= maxTokens {
		overlap = DefaultOverlapTokens
	}
	return &LineChunker{
		maxTokens: maxTokens,
		overlap:   overlap,
	}
}

// Chunk splits a document into chunks. Empty documents produce no chunks.
func (c *LineChunker) Chunk(doc Document) []Chunk {
	if strings.TrimSpace(doc.Content) == "" {
		return nil
	}

	lines := strings.Split(doc.Content, "\n")

	var chunks []Chunk
	startLine := 0

	for startLine < len(lines) {
		endLine := startLine
		currentTokens := 0
		var chunkText strings.Builder

		for endLine < len(lines) {
			lineText := lines[endLine]
			lineTokens := EstimateTokens(lineText)

			if currentTokens > 0 && currentTokens+lineTokens > c.maxTokens {
				break
			}

			if chunkText.Len() > 0 {
				chunkText.WriteString("\n")
			}
			chunkText.WriteString(lineText)
			currentTokens += lineTokens
			endLine++
		}

		// A single oversized line still becomes its own chunk
		if endLine == startLine {
			chunkText.WriteString(lines[endLine])
			endLine++
		}

		text := chunkText.String()
		if strings.TrimSpace(text) != "" {
			chunks = append(chunks, Chunk{
				ID:        ChunkID(doc.Path, startLine+1, endLine),
				Path:      doc.Path,
				StartLine: startLine + 1,
				EndLine:   endLine,
				Text:      text,
			})
		}

		// The final chunk already covers the tail; overlap must not
		// reopen it.
		if endLine >= len(lines) {
			break
		}

		overlapLines := c.overlapLines(lines, startLine, endLine)
		newStart := endLine - overlapLines

		if newStart <= startLine {
			newStart = startLine + 1
		}
		if newStart >= endLine {
			newStart = endLine
		}
		startLine = newStart
	}

	return chunks
}

// ChunkAll chunks every document, preserving document order.
func (c *LineChunker) ChunkAll(docs []Document) []Chunk {
	var chunks []Chunk
	for _, doc := range docs {
		chunks = append(chunks, c.Chunk(doc)...)
	}
	return chunks
}

// overlapLines counts trailing lines to carry into the next chunk.
func (c *LineChunker) overlapLines(lines []string, start, end int) int {
	if c.overlap == 0 {
		return 0
	}

	overlapLines := 0
	tokens := 0

	for i := end - 1; i >= start && tokens < c.overlap; i-- {
		tokens += EstimateTokens(lines[i])
		overlapLines++
	}

	return overlapLines
}
