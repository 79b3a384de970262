package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// ProgressDisplay is the single-line patient progress shown when the TUI is off
type ProgressDisplay struct {
	mu             sync.Mutex
	worklist       string
	totalPatients  int
	doneCount      int
	currentPatient string
	startTime      time.Time
	suppressed     int
	notInList      int
	notFound       int
	errors         int
	isDebug        bool
}

// NewProgressDisplay creates a progress display for a worklist
func NewProgressDisplay(worklist string, totalPatients int, debug bool) *ProgressDisplay {
	return &ProgressDisplay{
		worklist:      worklist,
		totalPatients: totalPatients,
		startTime:     time.Now(),
		isDebug:       debug,
	}
}

// StartPatient marks the patient being worked on
func (p *ProgressDisplay) StartPatient(hospitalNumber string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.currentPatient = hospitalNumber
	if !p.isDebug {
		p.printProgress()
	}
}

// NoteSuppressed counts a suppressed note
func (p *ProgressDisplay) NoteSuppressed(hospitalNumber, title string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.suppressed++
	if p.isDebug {
		fmt.Fprintf(Output(), "\n%s %s • %s\n", Green("✓"), hospitalNumber, Dim(truncate(title, 50)))
	}
}

// NoteSkipped counts a note whose drug is not in the patient's list
func (p *ProgressDisplay) NoteSkipped(hospitalNumber, drug string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.notInList++
	if p.isDebug {
		fmt.Fprintf(Output(), "\n%s %s • %s not in drug list\n", Yellow("•"), hospitalNumber, drug)
	}
}

// CompletePatient marks the current patient done
func (p *ProgressDisplay) CompletePatient(hospitalNumber string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.doneCount++
	p.currentPatient = ""
	if !p.isDebug {
		p.printProgress()
	}
}

// SkipPatient marks a patient EPMA has no record of
func (p *ProgressDisplay) SkipPatient(hospitalNumber string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.notFound++
	p.doneCount++
	p.currentPatient = ""
	if !p.isDebug {
		p.printProgress()
	} else {
		fmt.Fprintf(Output(), "\n%s %s not found\n", Yellow("⚠"), hospitalNumber)
	}
}

// FailPatient marks a patient that could not be processed
func (p *ProgressDisplay) FailPatient(hospitalNumber string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.errors++
	p.doneCount++
	p.currentPatient = ""
	if !p.isDebug {
		p.printProgress()
	} else {
		fmt.Fprintf(Output(), "\n%s Failed: %s - %v\n", Red("✗"), hospitalNumber, err)
	}
}

// printProgress prints the minimal progress line
func (p *ProgressDisplay) printProgress() {
	if IsQuietMode() {
		return
	}

	progress := 0.0
	if p.totalPatients > 0 {
		progress = float64(p.doneCount) / float64(p.totalPatients)
	}
	barWidth := 20
	filled := int(progress * float64(barWidth))
	if filled > barWidth {
		filled = barWidth
	}
	bar := strings.Repeat("━", filled) + strings.Repeat("─", barWidth-filled)

	line := fmt.Sprintf("\r%s [%s] %d/%d • %d suppressed • %s",
		Cyan(p.worklist),
		bar,
		p.doneCount,
		p.totalPatients,
		p.suppressed,
		p.calculateETA(),
	)

	if p.currentPatient != "" {
		line += fmt.Sprintf(" • %s", p.currentPatient)
	}
	if p.errors > 0 {
		line += fmt.Sprintf(" • %s", Red(fmt.Sprintf("%d failed", p.errors)))
	}

	fmt.Fprintf(Output(), "\r%s\r%s", strings.Repeat(" ", 120), line)
}

// Complete prints the end-of-run summary
func (p *ProgressDisplay) Complete() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if IsQuietMode() {
		return
	}

	elapsed := time.Since(p.startTime)
	w := Output()

	fmt.Fprintf(w, "\n\n%s Suppressed %d notes across %d patients\n",
		Green("✓"),
		p.suppressed,
		p.doneCount,
	)
	fmt.Fprintf(w, "  %s finished in %s\n", Dim("•"), FormatDuration(elapsed))
	if p.notInList > 0 {
		fmt.Fprintf(w, "  %s %d notes left alone (drug not in list)\n", Dim("•"), p.notInList)
	}
	if p.notFound > 0 {
		fmt.Fprintf(w, "  %s %d patients not found\n", Dim("•"), p.notFound)
	}
	if p.errors > 0 {
		fmt.Fprintf(w, "  %s %d patients failed\n", Dim("•"), p.errors)
	}
}

// SetCompletedCount sets the initial completed count, for resume
func (p *ProgressDisplay) SetCompletedCount(count int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.doneCount = count
}

// PacingWarning reports that the run is waiting on the patients-per-minute limit
func (p *ProgressDisplay) PacingWarning() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isDebug {
		fmt.Fprintf(Output(), "\n%s Pacing patient searches...\n", Yellow("⚠"))
	}
}

// calculateETA estimates time remaining
func (p *ProgressDisplay) calculateETA() string {
	if p.doneCount == 0 {
		return "calculating..."
	}

	remaining := p.totalPatients - p.doneCount
	if remaining <= 0 {
		return "0s"
	}
	perPatient := time.Since(p.startTime) / time.Duration(p.doneCount)
	return FormatDuration(perPatient * time.Duration(remaining))
}

// FormatDuration formats a duration in a human-readable way
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
