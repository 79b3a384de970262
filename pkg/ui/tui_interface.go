package ui

import "time"

// TUI is an interface for terminal user interfaces
type TUI interface {
	StartPatient(hospitalNumber string, position, total int)
	CompletePatient(hospitalNumber string, suppressed int)
	SkipPatient(hospitalNumber, reason string)
	FailPatient(hospitalNumber string, err error)
	NoteSuppressed(hospitalNumber, title string)
	NoteSkipped(hospitalNumber, drug string)
	UpdatePacing(used, max int, resetAt time.Time)
	LogInfo(format string, args ...interface{})
	LogSuccess(format string, args ...interface{})
	LogWarning(format string, args ...interface{})
	LogError(format string, args ...interface{})
	IsPaused() bool
}
