package tui

import (
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// PatientState represents where a patient is in the run
type PatientState int

const (
	PatientActive PatientState = iota
	PatientDone
	PatientNotFound
	PatientFailed
)

// PatientItem is one worklist patient seen by the run
type PatientItem struct {
	HospitalNumber string
	Position       int
	State          PatientState
	Suppressed     int
	NotInList      int
	Reason         string
	Error          error
	StartTime      time.Time
	EndTime        time.Time
}

// Model represents the TUI model
type Model struct {
	// UI components
	spinner  spinner.Model
	progress progress.Model

	// Patient state
	patients     map[string]*PatientItem
	patientOrder []string
	current      string
	total        int

	// Counters
	completed  int
	suppressed int
	notInList  int
	notFound   int
	failed     int

	sessionStartTime time.Time

	// Patients-per-minute pacing
	pacingMax     int
	pacingUsed    int
	pacingResetAt time.Time

	// UI state
	width          int
	height         int
	showHelp       bool
	isPaused       bool
	logMessages    []LogMessage
	maxLogMessages int

	mu *sync.RWMutex
}

// LogMessage represents a log entry
type LogMessage struct {
	Time    time.Time
	Level   string
	Message string
	Color   lipgloss.Color
}

// NewModel creates a model for a worklist of total patients
func NewModel(total int) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(neonCyan)

	p := progress.New(progress.WithDefaultGradient())
	p.Width = 40

	return &Model{
		spinner:          s,
		progress:         p,
		patients:         make(map[string]*PatientItem),
		total:            total,
		sessionStartTime: time.Now(),
		maxLogMessages:   50,
		mu:               &sync.RWMutex{},
	}
}

// Init initializes the model
func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// StartPatient marks hospitalNumber as the patient being worked on
func (m *Model) StartPatient(hospitalNumber string, position, total int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if total > 0 {
		m.total = total
	}
	if _, ok := m.patients[hospitalNumber]; !ok {
		m.patientOrder = append(m.patientOrder, hospitalNumber)
	}
	m.patients[hospitalNumber] = &PatientItem{
		HospitalNumber: hospitalNumber,
		Position:       position,
		State:          PatientActive,
		StartTime:      time.Now(),
	}
	m.current = hospitalNumber
}

// NoteSuppressed counts a suppressed note against the patient
func (m *Model) NoteSuppressed(hospitalNumber, title string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.suppressed++
	if p, ok := m.patients[hospitalNumber]; ok {
		p.Suppressed++
	}
}

// NoteSkipped counts a note whose drug was not in the patient's list
func (m *Model) NoteSkipped(hospitalNumber, drug string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.notInList++
	if p, ok := m.patients[hospitalNumber]; ok {
		p.NotInList++
	}
}

// CompletePatient marks a patient done
func (m *Model) CompletePatient(hospitalNumber string, suppressed int) {
	m.finish(hospitalNumber, PatientDone, "", nil)
	m.mu.Lock()
	m.completed++
	m.mu.Unlock()
}

// SkipPatient marks a patient EPMA had no record of
func (m *Model) SkipPatient(hospitalNumber, reason string) {
	m.finish(hospitalNumber, PatientNotFound, reason, nil)
	m.mu.Lock()
	m.completed++
	m.notFound++
	m.mu.Unlock()
}

// FailPatient marks a patient that could not be processed
func (m *Model) FailPatient(hospitalNumber string, err error) {
	m.finish(hospitalNumber, PatientFailed, "", err)
	m.mu.Lock()
	m.completed++
	m.failed++
	m.mu.Unlock()
}

func (m *Model) finish(hospitalNumber string, state PatientState, reason string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.patients[hospitalNumber]
	if !ok {
		p = &PatientItem{HospitalNumber: hospitalNumber, StartTime: time.Now()}
		m.patients[hospitalNumber] = p
		m.patientOrder = append(m.patientOrder, hospitalNumber)
	}
	p.State = state
	p.Reason = reason
	p.Error = err
	p.EndTime = time.Now()
	if m.current == hospitalNumber {
		m.current = ""
	}
}

// UpdatePacing updates the patients-per-minute window
func (m *Model) UpdatePacing(used, max int, resetAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pacingUsed = used
	m.pacingMax = max
	m.pacingResetAt = resetAt
}

// AddLogMessage adds a log message
func (m *Model) AddLogMessage(level, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	color := dimWhite
	switch level {
	case "ERROR":
		color = lipgloss.Color("#FF0000")
	case "WARN":
		color = neonOrange
	case "SUCCESS":
		color = neonGreen
	case "INFO":
		color = neonCyan
	}

	m.logMessages = append(m.logMessages, LogMessage{
		Time:    time.Now(),
		Level:   level,
		Message: message,
		Color:   color,
	})

	if len(m.logMessages) > m.maxLogMessages {
		m.logMessages = m.logMessages[len(m.logMessages)-m.maxLogMessages:]
	}
}

// Progress returns the completed fraction of the worklist
func (m *Model) Progress() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.total == 0 {
		return 0
	}
	p := float64(m.completed) / float64(m.total)
	if p > 1 {
		p = 1
	}
	return p
}

// Current returns the patient being worked on, if any
func (m *Model) Current() *PatientItem {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.current == "" {
		return nil
	}
	p := *m.patients[m.current]
	return &p
}

// RecentPatients returns up to n finished patients, newest last
func (m *Model) RecentPatients(n int) []PatientItem {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var done []PatientItem
	for _, hn := range m.patientOrder {
		if p := m.patients[hn]; p != nil && p.State != PatientActive {
			done = append(done, *p)
		}
	}
	if len(done) > n {
		done = done[len(done)-n:]
	}
	return done
}

// GetStats returns patients per minute and the estimated time remaining
func (m *Model) GetStats() (rate float64, eta time.Duration) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	elapsed := time.Since(m.sessionStartTime)
	if m.completed == 0 || elapsed <= 0 {
		return 0, 0
	}
	rate = float64(m.completed) / elapsed.Minutes()
	if remaining := m.total - m.completed; remaining > 0 {
		eta = elapsed / time.Duration(m.completed) * time.Duration(remaining)
	}
	return rate, eta
}

// Paused reports whether the user paused the run
func (m *Model) Paused() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isPaused
}
