package logger

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// LogPatient logs the outcome of opening a patient record
func LogPatient(hospitalNumber, outcome string, err error) {
	l := GetLogger().WithFields(map[string]interface{}{
		"hospital_number": hospitalNumber,
		"outcome":         outcome,
	})
	if err != nil {
		l.WithError(err).Warn("Patient not processed")
		return
	}
	l.Info("Patient processed")
}

// LogSuppression logs a single note suppression
func LogSuppression(hospitalNumber, title, drug string, dryRun bool) {
	fields := map[string]interface{}{
		"hospital_number": hospitalNumber,
		"title":           title,
		"dry_run":         dryRun,
	}
	if drug != "" {
		fields["drug_link"] = drug
	}
	GetLogger().InfoWithFields("Note suppressed", fields)
}

// LogProgress logs "N out of M completed"
func LogProgress(completed, total int) {
	percentage := 0.0
	if total > 0 {
		percentage = float64(completed) / float64(total) * 100
	}
	GetLogger().WithFields(map[string]interface{}{
		"completed":  completed,
		"total":      total,
		"percentage": fmt.Sprintf("%.1f%%", percentage),
	}).Info(fmt.Sprintf("%d out of %d completed.", completed, total))
}

// LogComponentStart logs when a component starts
func LogComponentStart(component string, config map[string]interface{}) {
	l := GetLogger().WithField("component", component)
	if len(config) > 0 {
		l = l.WithFields(config)
	}
	l.Info("Component started")
}

// LogComponentStop logs when a component stops
func LogComponentStop(component string, reason string) {
	GetLogger().WithFields(map[string]interface{}{
		"component": component,
		"reason":    reason,
	}).Info("Component stopped")
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) Fatal(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) FatalWithFields(msg string, fields map[string]interface{}) {}

func (n *nopLogger) GetZerolog() *zerolog.Logger {
	nop := zerolog.Nop()
	return &nop
}
