package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// snapshot is a copy of the counters taken under the lock
type snapshot struct {
	total, completed, suppressed, notInList, notFound, failed int
	pacingUsed, pacingMax                                     int
	pacingResetAt                                             time.Time
	width, height                                             int
	paused                                                    bool
	logs                                                      []LogMessage
}

func (m *Model) snapshot() snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	logs := make([]LogMessage, len(m.logMessages))
	copy(logs, m.logMessages)
	return snapshot{
		total:         m.total,
		completed:     m.completed,
		suppressed:    m.suppressed,
		notInList:     m.notInList,
		notFound:      m.notFound,
		failed:        m.failed,
		pacingUsed:    m.pacingUsed,
		pacingMax:     m.pacingMax,
		pacingResetAt: m.pacingResetAt,
		width:         m.width,
		height:        m.height,
		paused:        m.isPaused,
		logs:          logs,
	}
}

// View renders the entire TUI
func (m *Model) View() string {
	s := m.snapshot()
	if s.width == 0 || s.height == 0 {
		return "Initializing..."
	}

	var sections []string
	sections = append(sections, m.renderHeader(s))

	leftWidth := (s.width - 4) / 2
	left := lipgloss.JoinVertical(lipgloss.Left,
		m.renderProgressPanel(s, leftWidth),
		m.renderCurrentPanel(leftWidth),
		m.renderRecentPanel(leftWidth),
	)
	right := lipgloss.JoinVertical(lipgloss.Left,
		m.renderPacingPanel(s, leftWidth),
		m.renderLogsPanel(s, leftWidth),
	)
	sections = append(sections, lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right))

	if m.showHelp {
		sections = append(sections, m.renderHelp(s.width))
	} else {
		sections = append(sections, helpStyle.Render("Press ? for help"))
	}

	return baseStyle.Width(s.width).Height(s.height).Render(
		lipgloss.JoinVertical(lipgloss.Left, sections...),
	)
}

func (m *Model) renderHeader(s snapshot) string {
	return logoStyle.Width(s.width).Render("EPMA ORDER DRUG NOTE SUPPRESSION")
}

func (m *Model) renderProgressPanel(s snapshot, width int) string {
	title := titleStyle.Render(" PROGRESS ")

	rate, eta := m.GetStats()
	bar := m.progress
	bar.Width = width - 8
	if bar.Width < 10 {
		bar.Width = 10
	}

	lines := []string{
		bar.ViewAs(m.Progress()),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Patients:"), statsValueStyle.Render(fmt.Sprintf("%d out of %d completed.", s.completed, s.total))),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Suppressed:"), successStyle.Render(fmt.Sprintf("%d notes", s.suppressed))),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Not in list:"), statsValueStyle.Render(fmt.Sprintf("%d notes", s.notInList))),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Not found:"), warningStyle.Render(fmt.Sprintf("%d patients", s.notFound))),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Failed:"), errorStyle.Render(fmt.Sprintf("%d patients", s.failed))),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f/min", rate))),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("ETA:"), statsValueStyle.Render(formatDuration(eta))),
	}
	if s.paused {
		lines = append(lines, warningStyle.Render("⏸  PAUSED"))
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, lines...)),
	)
}

func (m *Model) renderCurrentPanel(width int) string {
	title := titleStyle.Render(" CURRENT PATIENT ")

	current := m.Current()
	if current == nil {
		content := lipgloss.NewStyle().Foreground(dimWhite).Render("Waiting...")
		return panelStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, title, content))
	}

	content := fmt.Sprintf("%s %s  %s",
		m.spinner.View(),
		activeStyle.Render(current.HospitalNumber),
		lipgloss.NewStyle().Foreground(dimWhite).Render(fmt.Sprintf("#%d • %s • %d suppressed",
			current.Position, formatDuration(time.Since(current.StartTime)), current.Suppressed)),
	)
	return panelStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, title, content))
}

func (m *Model) renderRecentPanel(width int) string {
	title := titleStyle.Render(" RECENT ")

	recent := m.RecentPatients(5)
	if len(recent) == 0 {
		content := lipgloss.NewStyle().Foreground(dimWhite).Render("No patients finished yet")
		return panelStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, title, content))
	}

	var items []string
	for _, p := range recent {
		switch p.State {
		case PatientDone:
			items = append(items, doneItemStyle.Render(fmt.Sprintf("✓ %s  %d suppressed", p.HospitalNumber, p.Suppressed)))
		case PatientNotFound:
			items = append(items, warningStyle.Render(fmt.Sprintf("? %s  %s", p.HospitalNumber, p.Reason)))
		case PatientFailed:
			items = append(items, errorStyle.Render(fmt.Sprintf("✗ %s  %v", p.HospitalNumber, p.Error)))
		}
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, items...)),
	)
}

func (m *Model) renderPacingPanel(s snapshot, width int) string {
	title := titleStyle.Render(" PACING ")

	if s.pacingMax <= 0 {
		content := lipgloss.NewStyle().Foreground(dimWhite).Render("Unlimited")
		return panelStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, title, content))
	}

	usage := float64(s.pacingUsed) / float64(s.pacingMax) * 100
	barWidth := width - 8
	if barWidth < 10 {
		barWidth = 10
	}
	filled := int(usage * float64(barWidth) / 100)
	if filled > barWidth {
		filled = barWidth
	}

	style := GetPacingStyle(usage)
	bar := style.Render(strings.Repeat("█", filled)) +
		progressEmptyStyle.Render(strings.Repeat("░", barWidth-filled))

	resetIn := time.Until(s.pacingResetAt)
	if resetIn < 0 {
		resetIn = 0
	}

	content := []string{
		fmt.Sprintf("%s %s", statsLabelStyle.Render("This minute:"),
			style.Render(fmt.Sprintf("%d/%d patients", s.pacingUsed, s.pacingMax))),
		bar,
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Window resets in:"),
			statsValueStyle.Render(formatDuration(resetIn))),
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(content, "\n")),
	)
}

func (m *Model) renderLogsPanel(s snapshot, width int) string {
	title := titleStyle.Render(" LOG ")

	start := len(s.logs) - 10
	if start < 0 {
		start = 0
	}

	var logs []string
	maxMsgLen := width - 25
	for _, log := range s.logs[start:] {
		timestamp := logTimestampStyle.Render(log.Time.Format("15:04:05"))
		level := lipgloss.NewStyle().Foreground(log.Color).Bold(true).Render(fmt.Sprintf("[%-7s]", log.Level))

		text := log.Message
		if maxMsgLen > 3 && len(text) > maxMsgLen {
			text = text[:maxMsgLen-3] + "..."
		}
		logs = append(logs, fmt.Sprintf("%s %s %s", timestamp, level, logMessageStyle.Render(text)))
	}

	content := strings.Join(logs, "\n")
	if content == "" {
		content = lipgloss.NewStyle().Foreground(dimWhite).Render("No logs yet...")
	}

	logsHeight := s.height - 30
	if logsHeight < 5 {
		logsHeight = 5
	}

	return panelStyle.Width(width).Height(logsHeight).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, content),
	)
}

func (m *Model) renderHelp(width int) string {
	help := `
  Keys:
    q/Q      - Stop the run and quit
    p/P      - Pause/Resume before the next patient
    ctrl+l   - Clear the log
    ?        - Toggle this help

  Recent:
    ` + successStyle.Render("✓") + `        - Notes evaluated
    ` + warningStyle.Render("?") + `        - Patient not found
    ` + errorStyle.Render("✗") + `        - Patient failed
`

	return panelStyle.Width(width).Render(help)
}

// formatDuration formats a duration as mm:ss or hh:mm:ss
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "00:00"
	}

	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
