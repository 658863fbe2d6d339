package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/sluice/metrics"
)

// StatsModel is a Bubble Tea model for stats views.
type StatsModel struct {
	viewType string
	data     any
	width    int
	height   int
	quitting bool
}

// NewStatsModel creates a new stats model.
func NewStatsModel(viewType string, data any) StatsModel {
	return StatsModel{
		viewType: viewType,
		data:     data,
	}
}

// Init implements tea.Model.
func (m StatsModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m StatsModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case "stats_bridge":
		content = m.renderStatsBridge()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return content + "\n" + help
}

func (m StatsModel) renderStatsBridge() string {
	snap, ok := m.data.(*metrics.Snapshot)
	if !ok {
		return "Invalid data type for stats_bridge"
	}

	var b strings.Builder
	title := "Bridge Statistics"
	if snap.BridgeID != "" {
		title = fmt.Sprintf("Bridge Statistics — %s", snap.BridgeID)
	}
	b.WriteString(TitleStyle.Render(title))
	b.WriteString("\n\n")

	calls := []string{
		m.renderStatBox("Calls", snap.CallsStarted, highlightColor),
		m.renderStatBox("Completed", snap.CallsCompleted, successColor),
		m.renderStatBox("Failed", snap.CallsFailed, errorColor),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, calls...))
	b.WriteString("\n")

	sessions := []string{
		m.renderStatBox("Single", snap.SingleMessages, highlightColor),
		m.renderStatBox("Chunked", snap.ChunkedSessions, warningColor),
		m.renderStatBox("Expired", snap.SessionsExpired, errorColor),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, sessions...))
	b.WriteString("\n")

	wire := []string{
		m.renderStatBox("Chunks Sent", snap.ChunksSent, highlightColor),
		m.renderStatBox("Bytes Sent", snap.BytesSent, highlightColor),
		m.renderStatBox("Bytes Recv", snap.BytesReceived, highlightColor),
		m.renderStatBox("Orphans", snap.OrphanedCompletions, warningColor),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, wire...))

	return b.String()
}

func (m StatsModel) renderStatBox(label string, value int64, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)

	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)

	content := lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr)

	return boxStyle.Render(content)
}

// RunStatsTUI runs the stats TUI.
func RunStatsTUI(viewType string, data any) error {
	model := NewStatsModel(viewType, data)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderStatsStatic renders stats data without full TUI (for fallback).
func RenderStatsStatic(viewType string, data any) string {
	model := NewStatsModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
