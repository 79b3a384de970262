package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Action is what happened to a note or patient
type Action string

const (
	ActionSuppressed       Action = "suppressed"
	ActionWouldSuppress    Action = "would_suppress"
	ActionSkippedNotInList Action = "skipped_not_in_list"
	ActionPatientNotFound  Action = "patient_not_found"
	ActionPatientFailed    Action = "patient_failed"
)

// Entry is one line of the audit trail
type Entry struct {
	RunID          string    `json:"run_id"`
	Time           time.Time `json:"time"`
	HospitalNumber string    `json:"hospital_number"`
	NoteTitle      string    `json:"note_title,omitempty"`
	DrugLink       string    `json:"drug_link,omitempty"`
	Action         Action    `json:"action"`
	Error          string    `json:"error,omitempty"`
}

// Summary rolls up entry counts by action
type Summary struct {
	RunID  string         `json:"run_id"`
	Counts map[Action]int `json:"counts"`
}

// Count returns the number of entries recorded for action
func (s Summary) Count(a Action) int {
	return s.Counts[a]
}

// Recorder receives audit entries
type Recorder interface {
	Record(e Entry) error
}

// NewRunID returns a fresh run identifier
func NewRunID() string {
	return uuid.NewString()
}

// Writer appends entries as JSON lines to
// <dir>/suppressions-<date>-<runid>.jsonl
type Writer struct {
	runID   string
	path    string
	file    *os.File
	buf     *bufio.Writer
	enc     *json.Encoder
	summary Summary
	mu      sync.Mutex
}

// NewWriter creates the report directory and opens the run's report file
func NewWriter(dir, runID string) (*Writer, error) {
	if runID == "" {
		runID = NewRunID()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}

	name := fmt.Sprintf("suppressions-%s-%s.jsonl", time.Now().Format("2006-01-02"), runID)
	path := filepath.Join(dir, name)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open report file: %w", err)
	}

	buf := bufio.NewWriter(file)
	return &Writer{
		runID:   runID,
		path:    path,
		file:    file,
		buf:     buf,
		enc:     json.NewEncoder(buf),
		summary: Summary{RunID: runID, Counts: make(map[Action]int)},
	}, nil
}

// Record writes one entry, filling the run ID and time if unset. Each
// entry is flushed so a crash loses nothing already recorded.
func (w *Writer) Record(e Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if e.RunID == "" {
		e.RunID = w.runID
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	if err := w.enc.Encode(e); err != nil {
		return fmt.Errorf("failed to write report entry: %w", err)
	}
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush report: %w", err)
	}

	w.summary.Counts[e.Action]++
	return nil
}

// Summary returns a copy of the counts so far
func (w *Writer) Summary() Summary {
	w.mu.Lock()
	defer w.mu.Unlock()

	counts := make(map[Action]int, len(w.summary.Counts))
	for k, v := range w.summary.Counts {
		counts[k] = v
	}
	return Summary{RunID: w.runID, Counts: counts}
}

// Path returns the report file location
func (w *Writer) Path() string {
	return w.path
}

// RunID returns the identifier stamped on every entry
func (w *Writer) RunID() string {
	return w.runID
}

// Close flushes and closes the report file
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to flush report: %w", err)
	}
	return w.file.Close()
}

// ListReports returns the report files in dir, newest name first
func ListReports(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var reports []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && strings.HasPrefix(name, "suppressions-") && filepath.Ext(name) == ".jsonl" {
			reports = append(reports, filepath.Join(dir, name))
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(reports)))
	return reports, nil
}

// ReadEntries loads every entry of a report file
func ReadEntries(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open report: %w", err)
	}
	defer file.Close()

	var entries []Entry
	dec := json.NewDecoder(file)
	for dec.More() {
		var e Entry
		if err := dec.Decode(&e); err != nil {
			return entries, fmt.Errorf("failed to decode report entry %d: %w", len(entries)+1, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Discard is a Recorder that drops entries
type Discard struct{}

func (Discard) Record(Entry) error { return nil }
