package logger

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"epmasuppress/pkg/config"
)

func TestNew(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     *config.LoggingConfig
		wantErr bool
	}{
		{"info level", &config.LoggingConfig{Level: "info"}, false},
		{"debug level", &config.LoggingConfig{Level: "debug"}, false},
		{"empty level defaults to info", &config.LoggingConfig{}, false},
		{"invalid level", &config.LoggingConfig{Level: "chatty"}, true},
		{"file output", &config.LoggingConfig{Level: "info", File: filepath.Join(dir, "logs", "run.log")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && l == nil {
				t.Error("New() returned nil logger")
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
		err   bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"INFO", zerolog.InfoLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"disabled", zerolog.Disabled, false},
		{"verbose", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		got, err := parseLogLevel(tt.input)
		if (err != nil) != tt.err {
			t.Errorf("parseLogLevel(%q) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestFileOutputWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "epma.log")
	prev := SetConsoleOutput(&bytes.Buffer{})
	defer SetConsoleOutput(prev)

	l, err := New(&config.LoggingConfig{Level: "debug", File: path})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	l.WithField("hospital_number", "1234567").Info("Searching hospital number")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(data)
	for _, want := range []string{`"hospital_number":"1234567"`, `"message":"Searching hospital number"`, `"app":"epmasuppress"`} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %q missing %s", line, want)
		}
	}
}

func TestConsoleOutputRedirect(t *testing.T) {
	var buf bytes.Buffer
	prev := SetConsoleOutput(&buf)
	defer SetConsoleOutput(prev)

	l, err := New(&config.LoggingConfig{Level: "info"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	l.WithError(errors.New("boom")).Warn("Drug name not in drug list")

	out := buf.String()
	if !strings.Contains(out, "Drug name not in drug list") {
		t.Errorf("console output %q missing message", out)
	}
	if !strings.Contains(out, "boom") {
		t.Errorf("console output %q missing error", out)
	}
}

func TestChildLoggersDoNotShareFields(t *testing.T) {
	var buf bytes.Buffer
	prev := SetConsoleOutput(&buf)
	defer SetConsoleOutput(prev)

	base, err := New(&config.LoggingConfig{Level: "info"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	a := base.WithField("patient", "A")
	_ = base.WithField("patient", "B")
	a.Info("first")

	if strings.Contains(buf.String(), "B") {
		t.Errorf("sibling field leaked into output: %q", buf.String())
	}
}

func TestTestLoggerCapturesFields(t *testing.T) {
	tl := NewTestLogger()
	tl.WithField("hospital_number", "7654321").
		WithError(errors.New("timed out")).
		WarnWithFields("Trying next patient", map[string]interface{}{"step": "notes"})

	msgs := tl.GetMessagesByLevel("WARN")
	if len(msgs) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(msgs))
	}
	m := msgs[0]
	if m.Fields["hospital_number"] != "7654321" || m.Fields["step"] != "notes" {
		t.Errorf("unexpected fields: %v", m.Fields)
	}
	if m.Error == nil || m.Error.Error() != "timed out" {
		t.Errorf("unexpected error: %v", m.Error)
	}
	if !tl.HasMessageContaining("next patient") {
		t.Error("HasMessageContaining failed")
	}

	tl.Clear()
	if len(tl.GetMessages()) != 0 {
		t.Error("Clear did not drop messages")
	}
}

func TestGlobalLogger(t *testing.T) {
	tl := NewTestLogger()
	SetLogger(tl)
	defer SetLogger(nil)

	LogProgress(3, 4)
	if !tl.HasMessage("3 out of 4 completed.") {
		t.Errorf("progress message not captured: %v", tl.GetMessages())
	}

	LogSuppression("1234567", "Order Drug", "PARACETAMOL", false)
	msgs := tl.GetMessagesByLevel("INFO")
	last := msgs[len(msgs)-1]
	if last.Fields["drug_link"] != "PARACETAMOL" {
		t.Errorf("expected drug_link field, got %v", last.Fields)
	}
}
