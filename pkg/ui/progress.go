package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	ProgressBar   = "█"
	ProgressEmpty = "░"
)

// StatusTracker counts completed patients against the worklist size
type StatusTracker struct {
	mu        sync.Mutex
	Completed int
	Total     int
	StartTime time.Time
}

// NewStatusTracker creates a tracker for total patients
func NewStatusTracker(total int) *StatusTracker {
	return &StatusTracker{
		Total:     total,
		StartTime: time.Now(),
	}
}

// Increment records one more completed patient and returns the new count
func (st *StatusTracker) Increment() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.Completed++
	return st.Completed
}

// SetCompleted sets the completed count, used when resuming
func (st *StatusTracker) SetCompleted(n int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.Completed = n
}

// GetCompleted returns the completed count
func (st *StatusTracker) GetCompleted() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.Completed
}

// Line returns "N out of M completed."
func (st *StatusTracker) Line() string {
	st.mu.Lock()
	defer st.mu.Unlock()
	return fmt.Sprintf("%d out of %d completed.", st.Completed, st.Total)
}

// GetProgressBar returns a formatted progress bar
func (st *StatusTracker) GetProgressBar() string {
	st.mu.Lock()
	defer st.mu.Unlock()

	const width = 20
	filled := 0
	if st.Total > 0 {
		filled = st.Completed * width / st.Total
	}
	if filled > width {
		filled = width
	}

	bar := strings.Repeat(ProgressBar, filled) +
		strings.Repeat(ProgressEmpty, width-filled)

	return fmt.Sprintf("[%s] %d/%d", bar, st.Completed, st.Total)
}

// GetElapsedTime returns the elapsed time since tracking started
func (st *StatusTracker) GetElapsedTime() time.Duration {
	return time.Since(st.StartTime)
}

// GetRate returns patients completed per minute
func (st *StatusTracker) GetRate() float64 {
	elapsed := st.GetElapsedTime().Minutes()
	if elapsed == 0 {
		return 0
	}
	return float64(st.GetCompleted()) / elapsed
}

// PrintProgress prints the current progress status
func (st *StatusTracker) PrintProgress() {
	if IsQuietMode() {
		return
	}
	fmt.Fprintf(Output(), "%s %s %s\n",
		Green("[PROGRESS]"),
		st.GetProgressBar(),
		st.Line())
}
