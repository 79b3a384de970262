package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// Message types for the TUI

// PatientStartMsg is sent when the run opens a patient
type PatientStartMsg struct {
	HospitalNumber string
	Position       int
	Total          int
}

// PatientDoneMsg is sent when a patient's notes have been evaluated
type PatientDoneMsg struct {
	HospitalNumber string
	Suppressed     int
}

// PatientSkippedMsg is sent when EPMA has no record of a patient
type PatientSkippedMsg struct {
	HospitalNumber string
	Reason         string
}

// PatientErrorMsg is sent when a patient could not be processed
type PatientErrorMsg struct {
	HospitalNumber string
	Error          error
}

// NoteMsg is sent for each note suppressed or left alone
type NoteMsg struct {
	HospitalNumber string
	Title          string
	Drug           string
	Suppressed     bool
}

// PacingUpdateMsg is sent to update the patients-per-minute window
type PacingUpdateMsg struct {
	Used    int
	Max     int
	ResetAt time.Time
}

// LogMsg is sent to add a log message
type LogMsg struct {
	Level   string
	Message string
}

// TickMsg is sent periodically to update the UI
type TickMsg time.Time

// Update handles all messages and updates the model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.mu.Lock()
		m.width = msg.Width
		m.height = msg.Height
		m.mu.Unlock()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case TickMsg:
		return m, tea.Batch(
			tickCmd(),
			m.spinner.Tick,
		)

	case PatientStartMsg:
		m.StartPatient(msg.HospitalNumber, msg.Position, msg.Total)
		m.AddLogMessage("INFO", fmt.Sprintf("Searching hospital number: %s", msg.HospitalNumber))
		return m, nil

	case NoteMsg:
		if msg.Suppressed {
			m.NoteSuppressed(msg.HospitalNumber, msg.Title)
			m.AddLogMessage("SUCCESS", "Suppressed: "+msg.Title)
		} else {
			m.NoteSkipped(msg.HospitalNumber, msg.Drug)
			m.AddLogMessage("INFO", fmt.Sprintf("Drug name %s not in drug list", msg.Drug))
		}
		return m, nil

	case PatientDoneMsg:
		m.CompletePatient(msg.HospitalNumber, msg.Suppressed)
		m.AddLogMessage("SUCCESS", fmt.Sprintf("%s done, %d notes suppressed", msg.HospitalNumber, msg.Suppressed))
		return m, nil

	case PatientSkippedMsg:
		m.SkipPatient(msg.HospitalNumber, msg.Reason)
		m.AddLogMessage("WARN", fmt.Sprintf("%s skipped: %s", msg.HospitalNumber, msg.Reason))
		return m, nil

	case PatientErrorMsg:
		m.FailPatient(msg.HospitalNumber, msg.Error)
		m.AddLogMessage("ERROR", fmt.Sprintf("%s failed: %v", msg.HospitalNumber, msg.Error))
		return m, nil

	case PacingUpdateMsg:
		m.UpdatePacing(msg.Used, msg.Max, msg.ResetAt)
		return m, nil

	case LogMsg:
		m.AddLogMessage(msg.Level, msg.Message)
		return m, nil
	}

	return m, nil
}

// handleKeyPress handles keyboard input
func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c":
		return m, tea.Quit

	case "p", "P":
		m.mu.Lock()
		m.isPaused = !m.isPaused
		paused := m.isPaused
		m.mu.Unlock()
		if paused {
			m.AddLogMessage("WARN", "Paused after the current patient")
		} else {
			m.AddLogMessage("INFO", "Resumed by user")
		}
		return m, nil

	case "?":
		m.showHelp = !m.showHelp
		return m, nil

	case "ctrl+l":
		m.mu.Lock()
		m.logMessages = nil
		m.mu.Unlock()
		return m, nil
	}

	return m, nil
}

// tickCmd returns a command that sends a tick message
func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*100, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
