package source

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Chunk size defaults.
const (
	DefaultMaxChunkTokens = 512 // Optimal for 85-90% recall
	DefaultOverlapTokens  = 50
	CharsPerToken         = 4 // Rough approximation: 4 chars = 1 token
)

// Document is a single readable file from the source tree.
type Document struct {
	// Path is relative to the source root.
	Path string
	// Content is the full file text.
	Content string
	// ModTime is the file modification time at read.
	ModTime time.Time
	// Size is the file size in bytes.
	Size int64
}

// Chunk is a retrievable unit of content.
type Chunk struct {
	// ID is SHA256(path:start-end)[:16].
	ID string
	// Path is the source file, relative to the source root.
	Path string
	// StartLine is 1-indexed.
	StartLine int
	// EndLine is inclusive.
	EndLine int
	// Text is the chunk content.
	Text string
}

// ChunkID derives a stable chunk identifier from its location.
func ChunkID(path string, startLine, endLine int) string {
	data := fmt.Sprintf("%s:%d-%d", path, startLine, endLine)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])[:16]
}

// EstimateTokens estimates the number of tokens in content.
func EstimateTokens(content string) int {
	return len(content) / CharsPerToken
}
