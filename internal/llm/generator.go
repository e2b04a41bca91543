// Package llm answers questions over retrieved source chunks using a
// local Ollama model. Generation is constrained to the provided context
// only, never the model's general knowledge.
package llm

import (
	"context"
	"fmt"
	"strings"
)

// NoAnswerSentinel is the exact reply the model is instructed to give
// when the retrieved context does not contain the answer.
const NoAnswerSentinel = "I couldn't find relevant information in the provided sources."

// systemPrompt constrains the model to context-only answering.
const systemPrompt = "You are a code assistant that ONLY answers based on provided context. " +
	"Never use external knowledge. If the context doesn't contain the answer, say so."

// strictContextTemplate forces the model to work only with retrieved source.
const strictContextTemplate = `You are a code analysis assistant. Your ONLY job is to answer questions using EXCLUSIVELY the context information provided below. You MUST NOT use any external knowledge, pre-training, or information about other projects.

CRITICAL RULES:
1. ONLY use information explicitly stated in the Context section below
2. If the Context does not contain the answer, you MUST respond: '%s'
3. DO NOT use your general knowledge about programming, frameworks, or other projects
4. DO NOT make assumptions or inferences beyond what is explicitly stated
5. When referencing code, quote the actual file paths from the context
6. If you're unsure, say so rather than guessing

Context from the project source code:
--------------------
%s
--------------------

User Question: %s

Answer based ONLY on the context above:`

// ContextChunk is a retrieved piece of source fed into generation.
type ContextChunk struct {
	// Path is the source file, relative to the source root.
	Path string
	// Text is the chunk content.
	Text string
	// Score is the retrieval similarity score.
	Score float32
}

// Generator produces an answer from a question and retrieved context.
type Generator interface {
	// Generate answers the question using only the given context chunks.
	Generate(ctx context.Context, question string, chunks []ContextChunk) (string, error)

	// Available checks if the backend is reachable.
	Available(ctx context.Context) bool

	// ModelName returns the model identifier.
	ModelName() string

	// Close releases resources.
	Close() error
}

// BuildPrompt renders the strict context prompt for a question.
func BuildPrompt(question string, chunks []ContextChunk) string {
	return fmt.Sprintf(strictContextTemplate, NoAnswerSentinel, formatContext(chunks), question)
}

// formatContext joins chunks into the context block, each labeled with
// its file path so the model can attribute answers.
func formatContext(chunks []ContextChunk) string {
	if len(chunks) == 0 {
		return "(no context)"
	}

	var sb strings.Builder
	for i, ch := range chunks {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("File: ")
		sb.WriteString(ch.Path)
		sb.WriteString("\n")
		sb.WriteString(ch.Text)
	}
	return sb.String()
}
