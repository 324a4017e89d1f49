// Package tui implements the terminal chat form behind `pdfqa chat`: a
// question input, an answer pane with citations, submit on enter and a
// reset that clears both.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/54b3r/pdfqa/internal/answer"
)

// Asker is the TUI-facing subset of the answer service.
type Asker interface {
	Answer(ctx context.Context, question string) answer.Result
}

const idleStatus = "enter: ask · ctrl+r: reset · esc: quit"

// answerMsg delivers a finished answer back to Update.
type answerMsg struct {
	seq      int
	question string
	result   answer.Result
	took     time.Duration
}

// Model is the Bubble Tea model for the chat form.
type Model struct {
	ctx      context.Context
	asker    Asker
	title    string
	input    textinput.Model
	viewport viewport.Model
	result   *answer.Result
	asked    string
	status   string
	busy     bool
	ready    bool
	// seq identifies the current question; answers for older ones are dropped.
	seq int
}

// New creates the form. ctx bounds every question asked from it.
func New(ctx context.Context, asker Asker, title string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question about the documents"
	ti.CharLimit = 2000
	ti.Focus()
	return Model{
		ctx:      ctx,
		asker:    asker,
		title:    title,
		input:    ti,
		viewport: viewport.New(0, 0),
		status:   idleStatus,
	}
}

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, resize and answer events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, ah := answerBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 1 + 1 + qh + 1 + 1 // title, spacer, input box, input line, status
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-ah)
		m.viewport.SetContent(m.renderAnswer())
		return m, nil

	case answerMsg:
		if msg.seq != m.seq {
			return m, nil
		}
		m.busy = false
		m.result = &msg.result
		m.asked = msg.question
		m.status = fmt.Sprintf("%s in %s · %s", msg.result.Outcome, msg.took.Round(10*time.Millisecond), idleStatus)
		m.viewport.SetContent(m.renderAnswer())
		m.viewport.GotoTop()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyCtrlR:
			return m.reset(), nil
		case tea.KeyEnter:
			if m.busy {
				return m, nil
			}
			q := m.input.Value()
			m.seq++
			m.busy = true
			m.status = "thinking…"
			return m, m.ask(q)
		case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// ask runs the question off the UI loop.
func (m Model) ask(question string) tea.Cmd {
	ctx, asker, seq := m.ctx, m.asker, m.seq
	return func() tea.Msg {
		start := time.Now()
		res := asker.Answer(ctx, question)
		return answerMsg{seq: seq, question: question, result: res, took: time.Since(start)}
	}
}

// reset clears the question and the answer pane. An answer still in flight
// is discarded when it arrives.
func (m Model) reset() Model {
	m.seq++
	m.input.Reset()
	m.result = nil
	m.asked = ""
	m.busy = false
	m.status = idleStatus
	m.viewport.SetContent(m.renderAnswer())
	return m
}

// View renders the form.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	title := titleStyle.Render(m.title)
	body := answerBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return title + "\n" + body + "\n" + input + "\n" + status
}

// renderAnswer formats the current answer and its citations.
func (m Model) renderAnswer() string {
	if m.result == nil {
		return hintStyle.Render("No answer yet.")
	}
	var b strings.Builder
	if m.asked != "" {
		b.WriteString(questionStyle.Render("Q: " + m.asked))
		b.WriteString("\n\n")
	}
	text := m.result.Text
	if m.viewport.Width > 0 {
		text = lipgloss.NewStyle().Width(m.viewport.Width).Render(text)
	}
	if m.result.Outcome == answer.OutcomeError {
		text = errorStyle.Render(text)
	}
	b.WriteString(text)
	if len(m.result.Sources) > 0 {
		b.WriteString("\n\n")
		b.WriteString(hintStyle.Render("Sources:"))
		for _, s := range m.result.Sources {
			b.WriteString("\n  ")
			b.WriteString(sourceStyle.Render(s.String()))
		}
	}
	return b.String()
}

var (
	titleStyle     = lipgloss.NewStyle().Bold(true)
	answerBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	hintStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	questionStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	sourceStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// Run starts the form on the terminal and blocks until the user quits.
func Run(ctx context.Context, asker Asker, title string) error {
	p := tea.NewProgram(New(ctx, asker, title), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
