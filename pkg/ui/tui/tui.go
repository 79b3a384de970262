package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// TUI represents the terminal user interface
type TUI struct {
	program *tea.Program
	model   *Model
}

// NewTUI creates a TUI for a worklist of total patients
func NewTUI(total int, opts ...tea.ProgramOption) *TUI {
	model := NewModel(total)
	if len(opts) == 0 {
		opts = []tea.ProgramOption{tea.WithAltScreen()}
	}

	return &TUI{
		program: tea.NewProgram(model, opts...),
		model:   model,
	}
}

// Start runs the TUI until it quits
func (t *TUI) Start() error {
	go func() {
		time.Sleep(100 * time.Millisecond)
		t.program.Send(TickMsg(time.Now()))
	}()

	_, err := t.program.Run()
	return err
}

// Stop stops the TUI gracefully
func (t *TUI) Stop() {
	t.program.Quit()
}

// Send sends a message to the TUI
func (t *TUI) Send(msg tea.Msg) {
	if t.program != nil {
		t.program.Send(msg)
	}
}

// StartPatient notifies the TUI that a patient is being searched
func (t *TUI) StartPatient(hospitalNumber string, position, total int) {
	t.Send(PatientStartMsg{HospitalNumber: hospitalNumber, Position: position, Total: total})
}

// CompletePatient notifies the TUI that a patient is done
func (t *TUI) CompletePatient(hospitalNumber string, suppressed int) {
	t.Send(PatientDoneMsg{HospitalNumber: hospitalNumber, Suppressed: suppressed})
}

// SkipPatient notifies the TUI that a patient was not found
func (t *TUI) SkipPatient(hospitalNumber, reason string) {
	t.Send(PatientSkippedMsg{HospitalNumber: hospitalNumber, Reason: reason})
}

// FailPatient notifies the TUI that a patient failed
func (t *TUI) FailPatient(hospitalNumber string, err error) {
	t.Send(PatientErrorMsg{HospitalNumber: hospitalNumber, Error: err})
}

// NoteSuppressed notifies the TUI of a suppressed note
func (t *TUI) NoteSuppressed(hospitalNumber, title string) {
	t.Send(NoteMsg{HospitalNumber: hospitalNumber, Title: title, Suppressed: true})
}

// NoteSkipped notifies the TUI of a note left alone
func (t *TUI) NoteSkipped(hospitalNumber, drug string) {
	t.Send(NoteMsg{HospitalNumber: hospitalNumber, Drug: drug})
}

// UpdatePacing updates the patients-per-minute window
func (t *TUI) UpdatePacing(used, max int, resetAt time.Time) {
	t.Send(PacingUpdateMsg{Used: used, Max: max, ResetAt: resetAt})
}

// Log sends a log message to the TUI
func (t *TUI) Log(level, format string, args ...interface{}) {
	t.Send(LogMsg{Level: level, Message: fmt.Sprintf(format, args...)})
}

// LogInfo logs an info message
func (t *TUI) LogInfo(format string, args ...interface{}) {
	t.Log("INFO", format, args...)
}

// LogSuccess logs a success message
func (t *TUI) LogSuccess(format string, args ...interface{}) {
	t.Log("SUCCESS", format, args...)
}

// LogWarning logs a warning message
func (t *TUI) LogWarning(format string, args ...interface{}) {
	t.Log("WARN", format, args...)
}

// LogError logs an error message
func (t *TUI) LogError(format string, args ...interface{}) {
	t.Log("ERROR", format, args...)
}

// IsPaused returns whether the user paused the run
func (t *TUI) IsPaused() bool {
	return t.model.Paused()
}
