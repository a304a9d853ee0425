package errorlog

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"
	"testing"
)

var linePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\.\d{6}: (.*)$`)

func readLines(t *testing.T, path string) []string {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func TestFileAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "error_log.txt")

	if err := os.WriteFile(path, []byte("earlier run\n"), 0644); err != nil {
		t.Fatalf("failed to seed log: %v", err)
	}

	log := NewFile(path)
	if err := log.Record(SeverityError, "Value error: No feature layer provided."); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := log.Record(SeverityError, "Geoprocessing error: CopyFeatures failed:\nline two"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := log.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// A second recorder on the same path keeps appending.
	again := NewFile(path)
	if err := again.Record(SeverityWarning, "General error: boom"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	again.Close()

	lines := readLines(t, path)
	if len(lines) != 4 {
		t.Fatalf("log has %d lines, want 4:\n%s", len(lines), strings.Join(lines, "\n"))
	}
	if lines[0] != "earlier run" {
		t.Errorf("existing content was not preserved: %q", lines[0])
	}

	wantMessages := []string{
		"Value error: No feature layer provided.",
		"Geoprocessing error: CopyFeatures failed: line two",
		"General error: boom",
	}
	for i, want := range wantMessages {
		m := linePattern.FindStringSubmatch(lines[i+1])
		if m == nil {
			t.Errorf("line %d %q does not match the timestamped format", i+1, lines[i+1])
			continue
		}
		if m[1] != want {
			t.Errorf("line %d message = %q, want %q", i+1, m[1], want)
		}
	}
}

func TestFileIsLazy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "error_log.txt")

	log := NewFile(path)
	if err := log.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("log file should not exist before the first record, stat error = %v", err)
	}
}

func TestFileOpenError(t *testing.T) {
	log := NewFile(filepath.Join(t.TempDir(), "missing", "dir", "error_log.txt"))
	if err := log.Record(SeverityError, "x"); err == nil {
		t.Error("Record() expected error for unwritable path")
	}
}

func TestNewFileDefaultPath(t *testing.T) {
	if got := NewFile("").Path(); got != DefaultPath {
		t.Errorf("Path() = %q, want %q", got, DefaultPath)
	}
}

func TestMemory(t *testing.T) {
	var m Memory
	m.Record(SeverityError, "a")
	m.Record(SeverityInfo, "b")

	entries := m.Entries()
	if len(entries) != 2 || entries[0].Message != "a" || entries[1].Severity != SeverityInfo {
		t.Errorf("Entries() = %+v", entries)
	}
}

func TestSeverityString(t *testing.T) {
	tests := map[Severity]string{
		SeverityInfo:    "info",
		SeverityWarning: "warning",
		SeverityError:   "error",
		Severity(9):     "severity(9)",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("Severity(%d).String() = %q, want %q", int8(s), got, want)
		}
	}
}

func TestFileOnUnsyncableDevice(t *testing.T) {
	if _, err := os.Stat(os.DevNull); err != nil {
		t.Skipf("%s not available: %v", os.DevNull, err)
	}

	log := NewFile(os.DevNull)
	defer log.Close()

	if err := log.Record(SeverityError, "General error: boom"); err != nil {
		t.Errorf("Record() to %s error = %v", os.DevNull, err)
	}
}

func TestSyncErr(t *testing.T) {
	diskFull := &os.PathError{Op: "sync", Path: "error_log.txt", Err: syscall.ENOSPC}

	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "nil", err: nil, want: nil},
		{name: "device without sync", err: &os.PathError{Op: "sync", Path: "/dev/stderr", Err: syscall.EINVAL}, want: nil},
		{name: "sync not supported", err: &os.PathError{Op: "sync", Path: "pipe", Err: syscall.ENOTSUP}, want: nil},
		{name: "real failure", err: diskFull, want: diskFull},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := syncErr(tt.err); got != tt.want {
				t.Errorf("syncErr(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
