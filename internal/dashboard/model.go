// Package dashboard renders a live terminal view of a run from its snapshot
// events.
package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/fanout/internal/event"
)

// snapshotMsg carries a run snapshot into the model.
type snapshotMsg event.SnapshotEvent

// stateMsg carries a run state transition into the model.
type stateMsg string

// agentRow is one line of the agent table.
type agentRow struct {
	event.AgentSnapshot
	rate float64 // messages per second since the previous snapshot
}

// Model is the bubbletea model of the dashboard.
type Model struct {
	runID    string
	state    string
	started  time.Time
	rows     []agentRow
	last     time.Time
	spinner  spinner.Model
	cancel   func()
	quitting bool
	width    int
}

// NewModel creates a dashboard for a run. cancel is called when the user
// asks to stop the run.
func NewModel(runID string, cancel func()) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(primaryColor)
	return Model{
		runID:   runID,
		state:   "starting",
		started: time.Now(),
		spinner: s,
		cancel:  cancel,
	}
}

// Init starts the spinner.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles keys, run updates and spinner ticks.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if !m.quitting {
				m.quitting = true
				if m.cancel != nil {
					m.cancel()
				}
			}
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case snapshotMsg:
		m.applySnapshot(event.SnapshotEvent(msg), msg.Timestamp())
		return m, nil

	case stateMsg:
		m.state = string(msg)
		if m.state == "finished" {
			return m, tea.Quit
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) applySnapshot(s event.SnapshotEvent, at time.Time) {
	prev := make(map[string]uint64, len(m.rows))
	for _, r := range m.rows {
		prev[r.Agent] = r.Count
	}
	elapsed := at.Sub(m.last).Seconds()

	rows := make([]agentRow, len(s.Agents))
	for i, a := range s.Agents {
		rows[i] = agentRow{AgentSnapshot: a}
		if before, ok := prev[a.Agent]; ok && elapsed > 0 && a.Count >= before {
			rows[i].rate = float64(a.Count-before) / elapsed
		}
	}
	m.rows = rows
	m.last = at
	if s.State != "" {
		m.state = s.State
	}
}

// View renders the dashboard.
func (m Model) View() string {
	var b strings.Builder

	runID := m.runID
	if len(runID) > 8 {
		runID = runID[:8]
	}
	status := m.spinner.View() + " " + m.state
	if m.state == "finished" {
		status = okStyle.Render("✓ finished")
	}
	elapsed := time.Since(m.started).Truncate(time.Second)
	b.WriteString(titleStyle.Render("fanout"))
	b.WriteString(mutedStyle.Render(fmt.Sprintf("  run %s  %s  ", runID, elapsed)))
	b.WriteString(status)
	b.WriteString("\n\n")

	b.WriteString(tableStyle.Render(m.renderTable()))

	help := "q stop run"
	if m.quitting {
		help = "stopping..."
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(help))
	b.WriteString("\n")
	return b.String()
}

func (m Model) renderTable() string {
	if len(m.rows) == 0 {
		return mutedStyle.Render("waiting for agents")
	}

	nameWidth := len("AGENT")
	for _, r := range m.rows {
		nameWidth = max(nameWidth, len(r.Agent))
	}
	format := fmt.Sprintf("%%-%ds %%10s %%10s %%8s %%9s %%9s  %%s", nameWidth)

	lines := []string{headerCellStyle.Render(
		fmt.Sprintf(format, "AGENT", "COUNT", "RECEIVED", "DROPPED", "ANOMALIES", "MSG/S", "STATUS"),
	)}
	for _, r := range m.rows {
		line := fmt.Sprintf(format,
			r.Agent,
			fmt.Sprint(r.Count),
			fmt.Sprint(r.Received),
			fmt.Sprint(r.Dropped),
			fmt.Sprint(r.Anomalies),
			fmt.Sprintf("%.0f", r.rate),
			agentStatus(r.Running),
		)
		if r.Anomalies > 0 || r.Dropped > 0 {
			line = warningStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func agentStatus(running bool) string {
	if running {
		return "running"
	}
	return "exited"
}
