package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/OxCom/llvm-source-agent/internal/index"
)

// Querier is the TUI-facing subset of the index manager.
type Querier interface {
	Query(ctx context.Context, question string) index.Result
}

var (
	headerStyle   = lipgloss.NewStyle().Bold(true)
	answerBox     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	questionBox   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	workingStatus = "Thinking..."
)

// answerMsg carries a finished query back into the update loop.
type answerMsg struct {
	result index.Result
}

// Model is the Bubble Tea model for the interactive ask session.
type Model struct {
	querier  Querier
	input    textinput.Model
	viewport viewport.Model
	status   string
	working  bool
	ready    bool
}

// NewModel creates the interactive ask model.
func NewModel(querier Querier) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about the indexed sources and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		querier:  querier,
		input:    ti,
		viewport: vp,
		status:   "Ready. Type a question.",
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, ah := answerBox.GetFrameSize()
		_, qh := questionBox.GetFrameSize()
		reserved := 2 + qh + 1 // header, status, question frame, spacer
		vh := msg.Height - reserved - ah
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = maxInt(20, msg.Width-2)
		m.viewport.Height = vh
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD || msg.Type == tea.KeyEsc {
			return m, tea.Quit
		}
		if msg.String() == "enter" && !m.working {
			question := strings.TrimSpace(m.input.Value())
			if question != "" {
				m.working = true
				m.status = workingStatus
				return m, m.ask(question)
			}
		}

	case answerMsg:
		m.working = false
		m.status = fmt.Sprintf("Answered in %s. Ask another question or press Esc to quit.",
			msg.result.Elapsed.Round(10*time.Millisecond))
		m.viewport.SetContent(RenderResult(msg.result, true))
		m.viewport.GotoTop()
		m.input.SetValue("")
		return m, nil
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// ask runs the query off the update loop.
func (m Model) ask(question string) tea.Cmd {
	return func() tea.Msg {
		return answerMsg{result: m.querier.Query(context.Background(), question)}
	}
}

// View renders the session layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("Source Agent")
	answer := answerBox.Render(m.viewport.View())
	question := questionBox.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + answer + "\n" + question + "\n" + status
}

// Run starts the interactive session and blocks until the user quits.
func Run(querier Querier) error {
	program := tea.NewProgram(NewModel(querier), tea.WithAltScreen())
	_, err := program.Run()
	return err
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
