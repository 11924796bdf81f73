// Package tui renders live campaign progress in the terminal.
package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/iondiff/internal/campaign"
)

var (
	headerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true).MarginBottom(1)
	labelStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(14)
	valueStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	graphStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("49")).Padding(1, 0)
	convergedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	failedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	runningStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	helpStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginTop(1)
	panelStyle     = lipgloss.NewStyle().Padding(1, 2)
)

type EventMsg campaign.Event

// DoneMsg arrives when the campaign goroutine finishes.
type DoneMsg struct {
	Result *campaign.Result
	Err    error
}

// Model consumes campaign events from a channel and renders the estimate
// trace as the iterations land.
type Model struct {
	events  <-chan campaign.Event
	results <-chan DoneMsg

	phase     campaign.Phase
	iteration int
	label     string
	means     []float64
	sems      []float64
	messages  []string
	done      bool
	result    *campaign.Result
	err       error
}

func NewModel(events <-chan campaign.Event, results <-chan DoneMsg) Model {
	return Model{events: events, results: results}
}

func (m Model) Init() tea.Cmd {
	return m.wait()
}

func (m Model) wait() tea.Cmd {
	return func() tea.Msg {
		e, ok := <-m.events
		if !ok {
			return DoneMsg(<-m.results)
		}
		return EventMsg(e)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	case EventMsg:
		m.phase = msg.Phase
		m.iteration = msg.Iteration
		if msg.Label != "" {
			m.label = msg.Label
		}
		if msg.Estimate != nil {
			m.means = append(m.means, msg.Estimate.Mean)
			m.sems = append(m.sems, msg.Estimate.SEM)
		}
		if msg.Message != "" {
			m.messages = append(m.messages, msg.Message)
			if len(m.messages) > 6 {
				m.messages = m.messages[1:]
			}
		}
		return m, m.wait()
	case DoneMsg:
		m.done = true
		m.result = msg.Result
		m.err = msg.Err
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("IONDIFF CAMPAIGN") + "\n")
	b.WriteString(m.statusLine() + "\n\n")

	b.WriteString(labelStyle.Render("Iteration") + valueStyle.Render(fmt.Sprintf("%d", m.iteration)) + "\n")
	if m.label != "" {
		b.WriteString(labelStyle.Render("Last run") + valueStyle.Render(m.label) + "\n")
	}
	if n := len(m.means); n > 0 {
		b.WriteString(labelStyle.Render("D estimate") + valueStyle.Render(fmt.Sprintf("%.4g ± %.2g", m.means[n-1], m.sems[n-1])) + "\n")
	}

	if len(m.means) > 1 {
		chart := asciigraph.Plot(m.means, asciigraph.Height(6), asciigraph.Width(44), asciigraph.Caption("diffusion estimate"))
		b.WriteString(graphStyle.Render(chart) + "\n")
	}

	for _, msg := range m.messages {
		b.WriteString(valueStyle.Render("  "+msg) + "\n")
	}

	if m.done && m.result != nil {
		b.WriteString("\n" + Summary(m.result))
	}
	if m.done && m.err != nil {
		b.WriteString("\n" + failedStyle.Render(fmt.Sprintf("error: %v", m.err)) + "\n")
	}

	b.WriteString(helpStyle.Render("q: quit"))
	return panelStyle.Render(b.String())
}

func (m Model) statusLine() string {
	if m.done {
		if m.err != nil {
			return failedStyle.Render("FAILED")
		}
		if m.result != nil && m.result.Outcome == campaign.OutcomeConverged {
			return convergedStyle.Render("CONVERGED")
		}
		if m.result != nil && m.result.Outcome.Failed() {
			return failedStyle.Render("FAILED")
		}
		return runningStyle.Render("FINISHED")
	}
	switch m.phase {
	case campaign.PhaseConverged:
		return convergedStyle.Render("CONVERGED")
	case campaign.PhaseExhausted:
		return runningStyle.Render("EXHAUSTED")
	case campaign.PhaseFailed:
		return failedStyle.Render("FAILED")
	default:
		return runningStyle.Render("RUNNING")
	}
}
