package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/conductor/internal/events"
)

// TaskState tracks the displayed state of a single task.
type TaskState struct {
	TaskID   string
	Executor string
	Status   string // "running", "succeeded", "failed", "blocked", "cancelled"
	Detail   []string
	Start    time.Time
	Duration time.Duration
}

// TaskPaneModel shows the task list and the selected task's detail viewport.
type TaskPaneModel struct {
	tasks       map[string]*TaskState // taskID -> state
	taskOrder   []string              // insertion order for display
	selectedIdx int
	viewport    viewport.Model
	width       int
	height      int
	focused     bool
}

// NewTaskPaneModel creates a new task pane model.
func NewTaskPaneModel() TaskPaneModel {
	vp := viewport.New(0, 0)
	return TaskPaneModel{
		tasks:    make(map[string]*TaskState),
		viewport: vp,
	}
}

// Update handles messages for the task pane.
func (m TaskPaneModel) Update(msg tea.Msg) (TaskPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeViewport()

	case tea.KeyMsg:
		if !m.focused {
			break
		}

		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.taskOrder)-1 {
				m.selectedIdx++
				m.updateViewportContent()
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.updateViewportContent()
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.TaskStarted:
		state, exists := m.tasks[msg.ID]
		if !exists {
			state = &TaskState{
				TaskID:   msg.ID,
				Executor: msg.Executor,
				Start:    msg.Timestamp,
			}
			m.tasks[msg.ID] = state
			m.taskOrder = append(m.taskOrder, msg.ID)
			if len(m.taskOrder) == 1 {
				m.selectedIdx = 0
			}
		}
		state.Status = "running"
		if msg.Attempt > 1 {
			state.Detail = append(state.Detail, fmt.Sprintf("attempt %d started", msg.Attempt))
		}
		m.updateViewportContent()

	case events.TaskRetrying:
		if state, exists := m.tasks[msg.ID]; exists {
			state.Detail = append(state.Detail, fmt.Sprintf("attempt %d failed: %v", msg.Attempt, msg.Err))
		}
		m.updateViewportContent()

	case events.TaskSucceeded:
		if state, exists := m.tasks[msg.ID]; exists {
			state.Status = "succeeded"
			state.Duration = msg.Duration
			if msg.Output != "" {
				state.Detail = append(state.Detail, msg.Output)
			}
			state.Detail = append(state.Detail, fmt.Sprintf("[succeeded in %v]", msg.Duration))
		}
		m.updateViewportContent()

	case events.TaskFailed:
		if state, exists := m.tasks[msg.ID]; exists {
			state.Status = "failed"
			state.Duration = msg.Duration
			state.Detail = append(state.Detail, fmt.Sprintf("[failed after %d attempts: %v]", msg.Attempts, msg.Err))
		}
		m.updateViewportContent()

	case events.TaskBlocked:
		state, exists := m.tasks[msg.ID]
		if !exists {
			// Blocked tasks never started; surface them anyway.
			state = &TaskState{TaskID: msg.ID}
			m.tasks[msg.ID] = state
			m.taskOrder = append(m.taskOrder, msg.ID)
		}
		state.Status = "blocked"
		state.Detail = append(state.Detail, fmt.Sprintf("[blocked: %s]", msg.Reason))
		m.updateViewportContent()

	case events.TaskCancelled:
		state, exists := m.tasks[msg.ID]
		if !exists {
			state = &TaskState{TaskID: msg.ID}
			m.tasks[msg.ID] = state
			m.taskOrder = append(m.taskOrder, msg.ID)
		}
		state.Status = "cancelled"
		m.updateViewportContent()
	}

	return m, cmd
}

// View renders the task list alongside the detail viewport.
func (m TaskPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var list strings.Builder
	title := StyleTitle.Render("Tasks")
	list.WriteString(title)
	list.WriteString("\n")
	list.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	list.WriteString("\n")

	for i, id := range m.taskOrder {
		state := m.tasks[id]
		marker := "  "
		if i == m.selectedIdx {
			marker = "> "
		}
		list.WriteString(fmt.Sprintf("%s%s %s\n", marker, statusGlyph(state.Status), id))
	}

	listView := list.String()
	detailView := m.viewport.View()

	content := lipgloss.JoinHorizontal(lipgloss.Top, listView, "  ", detailView)

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

// statusGlyph maps a task status to a styled single-character marker.
func statusGlyph(status string) string {
	switch status {
	case "running":
		return StyleStatusRunning.Render("*")
	case "succeeded":
		return StyleStatusSucceeded.Render("+")
	case "failed":
		return StyleStatusFailed.Render("x")
	case "blocked":
		return StyleStatusBlocked.Render("#")
	case "cancelled":
		return StyleStatusPending.Render("-")
	default:
		return StyleStatusPending.Render(".")
	}
}

// updateViewportContent refreshes the detail viewport from the selection.
func (m *TaskPaneModel) updateViewportContent() {
	id := m.getSelectedTaskID()
	if id == "" {
		m.viewport.SetContent("")
		return
	}

	state := m.tasks[id]
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s  (%s)\n\n", state.TaskID, state.Status))
	if state.Executor != "" {
		b.WriteString(fmt.Sprintf("executor: %s\n\n", state.Executor))
	}
	b.WriteString(strings.Join(state.Detail, "\n"))

	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

// getSelectedTaskID returns the currently selected task ID, or "".
func (m *TaskPaneModel) getSelectedTaskID() string {
	if m.selectedIdx < 0 || m.selectedIdx >= len(m.taskOrder) {
		return ""
	}
	return m.taskOrder[m.selectedIdx]
}

// resizeViewport recomputes the viewport dimensions from the pane size.
func (m *TaskPaneModel) resizeViewport() {
	listWidth := m.width / 3
	m.viewport.Width = max(0, m.width-listWidth-6)
	m.viewport.Height = max(0, m.height-4)
}

// SetSize updates the pane dimensions.
func (m *TaskPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
}

// SetFocused updates the focus state.
func (m *TaskPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
