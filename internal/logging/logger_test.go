// Package logging provides tests for the structured JSON logger.
package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func newTestLogger(level LogLevel) (*Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return &Logger{out: buf, minLevel: level}, buf
}

// TestLogEntryShape tests the JSON structure of an entry.
func TestLogEntryShape(t *testing.T) {
	logger, buf := newTestLogger(LevelDebug)

	logger.Info("queue drained", map[string]interface{}{"sales": 3})

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Log line is not valid JSON: %v", err)
	}
	if entry.Level != "INFO" || entry.Message != "queue drained" {
		t.Errorf("Unexpected entry: %+v", entry)
	}
	if entry.Context["sales"] != float64(3) {
		t.Errorf("Expected context to round-trip, got %+v", entry.Context)
	}
}

// TestLevelFiltering tests that entries below the minimum level are dropped.
func TestLevelFiltering(t *testing.T) {
	logger, buf := newTestLogger(LevelWarn)

	logger.Debug("dropped")
	logger.Info("also dropped")
	logger.Warn("kept")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 || !strings.Contains(lines[0], "kept") {
		t.Errorf("Expected exactly the WARN line, got %q", buf.String())
	}
}

// TestErrorWithCode tests that the error and stable code are attached.
func TestErrorWithCode(t *testing.T) {
	logger, buf := newTestLogger(LevelDebug)

	logger.ErrorWithCode("sync pass failed", "SYNC_FAILED", errors.New("boom"))

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Log line is not valid JSON: %v", err)
	}
	if entry.Code != "SYNC_FAILED" || entry.Error != "boom" {
		t.Errorf("Expected code and error attached, got %+v", entry)
	}
}

// TestParseLevel tests the config string mapping.
func TestParseLevel(t *testing.T) {
	if got := ParseLevel("debug"); got != LevelDebug {
		t.Errorf("ParseLevel(debug) = %v", got)
	}
	if got := ParseLevel("ERROR"); got != LevelError {
		t.Errorf("ParseLevel(ERROR) = %v", got)
	}
	if got := ParseLevel("bogus"); got != LevelInfo {
		t.Errorf("Expected unknown level to default to INFO, got %v", got)
	}
}
