// Package tui implements the terminal dashboard for watching a run.
// Two panes: run-level progress and a per-task list with detail output.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/conductor/internal/events"
)

// Pane identifies a focusable pane.
type Pane int

const (
	PaneRun Pane = iota
	PaneTasks
	paneCount
)

// Model is the root bubbletea model.
type Model struct {
	runPane  RunPaneModel
	taskPane TaskPaneModel
	focused  Pane
	eventCh  <-chan events.Event
	finished bool
	width    int
	height   int
}

// NewModel creates the root model consuming lifecycle events from eventCh.
// The channel closing signals the end of the run.
func NewModel(eventCh <-chan events.Event) Model {
	return Model{
		runPane:  NewRunPaneModel(),
		taskPane: NewTaskPaneModel(),
		focused:  PaneTasks,
		eventCh:  eventCh,
	}
}

// eventMsg wraps a bus event for the bubbletea update loop.
type eventMsg struct {
	event events.Event
}

// eventsClosedMsg signals that the bus closed, i.e. the run is over.
type eventsClosedMsg struct{}

// waitForEvent blocks on the event channel and converts the next event
// into a tea.Msg.
func waitForEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-ch
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg{event: event}
	}
}

// Init starts the event pump.
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.eventCh)
}

// Update handles messages for the root model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case KeyCtrlC, KeyQuit:
			return m, tea.Quit
		case KeyTab:
			m.focused = (m.focused + 1) % paneCount
			m.applyFocus()
			return m, nil
		case KeyShiftTab:
			m.focused = (m.focused - 1 + paneCount) % paneCount
			m.applyFocus()
			return m, nil
		}

		var cmd tea.Cmd
		m.taskPane, cmd = m.taskPane.Update(msg)
		return m, cmd

	case eventMsg:
		var cmd tea.Cmd
		m.runPane, cmd = m.runPane.Update(msg.event)
		cmds = append(cmds, cmd)
		m.taskPane, cmd = m.taskPane.Update(msg.event)
		cmds = append(cmds, cmd)

		if _, ok := msg.event.(events.RunFinished); ok {
			m.finished = true
		}

		cmds = append(cmds, waitForEvent(m.eventCh))
		return m, tea.Batch(cmds...)

	case eventsClosedMsg:
		m.finished = true
		return m, nil
	}

	return m, nil
}

// View renders both panes stacked with a help bar.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.runPane.View(),
		m.taskPane.View(),
		HelpView(),
	)
}

// layout divides the window between the two panes.
func (m *Model) layout() {
	helpHeight := 1
	runHeight := min(12, m.height/3)
	taskHeight := m.height - runHeight - helpHeight

	m.runPane.SetSize(m.width, runHeight)
	m.taskPane.SetSize(m.width, taskHeight)
	m.applyFocus()
}

// applyFocus propagates the focused pane to the pane models.
func (m *Model) applyFocus() {
	m.runPane.SetFocused(m.focused == PaneRun)
	m.taskPane.SetFocused(m.focused == PaneTasks)
}

// Run starts the TUI program and blocks until it exits.
func Run(eventCh <-chan events.Event) error {
	p := tea.NewProgram(NewModel(eventCh), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
