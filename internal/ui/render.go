// Package ui renders query results for the terminal and provides the
// interactive ask session.
package ui

import (
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/OxCom/llvm-source-agent/internal/index"
)

var (
	answerStyle  = lipgloss.NewStyle()
	sourceStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	elapsedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// IsTerminal reports whether the file is an interactive terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// RenderResult formats a query result for terminal output. Styling is applied
// only when color is true.
func RenderResult(result index.Result, color bool) string {
	var b strings.Builder

	switch result.Status {
	case index.StatusUnavailable, index.StatusError:
		b.WriteString(styled(errorStyle, "❌ "+result.Answer, color))
	default:
		b.WriteString(styled(answerStyle, result.Answer, color))
		if len(result.Sources) > 0 {
			b.WriteString("\n\n")
			b.WriteString(styled(sourceStyle, "📁 Sources used:", color))
			for _, src := range result.Sources {
				b.WriteString("\n")
				b.WriteString(styled(sourceStyle, "- "+src, color))
			}
		}
	}

	b.WriteString("\n")
	b.WriteString(styled(elapsedStyle, "⏱  "+result.Elapsed.Round(10 * time.Millisecond).String(), color))
	return b.String()
}

func styled(style lipgloss.Style, text string, color bool) string {
	if !color {
		return text
	}
	return style.Render(text)
}
