package logging

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestDefaultLogPath(t *testing.T) {
	path := DefaultLogPath()

	if filepath.Base(path) != "roomsearch.log" {
		t.Errorf("DefaultLogPath should end with roomsearch.log, got: %s", path)
	}
	if !strings.Contains(path, filepath.Join(".roomsearch", "logs")) {
		t.Errorf("DefaultLogPath should live under .roomsearch/logs, got: %s", path)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != "info" {
		t.Errorf("expected level 'info', got: %s", cfg.Level)
	}
	if cfg.MaxSizeMB != 10 {
		t.Errorf("expected MaxSizeMB 10, got: %d", cfg.MaxSizeMB)
	}
	if cfg.MaxFiles != 5 {
		t.Errorf("expected MaxFiles 5, got: %d", cfg.MaxFiles)
	}
	if cfg.WriteToStderr {
		t.Error("expected WriteToStderr to be false")
	}
}

func TestDebugConfig(t *testing.T) {
	cfg := DebugConfig()

	if cfg.Level != "debug" {
		t.Errorf("expected level 'debug', got: %s", cfg.Level)
	}
	if !cfg.WriteToStderr {
		t.Error("expected WriteToStderr to be true")
	}
}

func TestSetup(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "test.log")

	logger, cleanup, err := Setup(Config{Level: "debug", FilePath: logPath, MaxSizeMB: 1, MaxFiles: 3})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	logger.Debug("room_search", "query", "week")
	cleanup()

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(content), `"msg":"room_search"`) {
		t.Errorf("expected JSON entry in log, got: %s", content)
	}
	if !strings.Contains(string(content), `"query":"week"`) {
		t.Errorf("expected query attribute in log, got: %s", content)
	}
}

func TestSetup_LevelFiltersEntries(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")

	logger, cleanup, err := Setup(Config{Level: "warn", FilePath: logPath})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	logger.Info("dropped")
	logger.Warn("kept")
	cleanup()

	content, _ := os.ReadFile(logPath)
	if strings.Contains(string(content), "dropped") {
		t.Error("info entry should be filtered at warn level")
	}
	if !strings.Contains(string(content), "kept") {
		t.Error("warn entry should be written")
	}
}

func TestSetup_NoOutputs(t *testing.T) {
	logger, cleanup, err := Setup(Config{Level: "info"})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	defer cleanup()

	logger.Info("discarded")
}

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"debug", "DEBUG"},
		{"DEBUG", "DEBUG"},
		{"info", "INFO"},
		{"warn", "WARN"},
		{"warning", "WARN"},
		{"error", "ERROR"},
		{"unknown", "INFO"},
	}

	for _, tc := range tests {
		level := LevelFromString(tc.input)
		if level.String() != tc.expected {
			t.Errorf("LevelFromString(%q) = %s, want %s", tc.input, level.String(), tc.expected)
		}
	}
}

func TestFindLogFile_NotFound(t *testing.T) {
	_, err := FindLogFile("/nonexistent/path/to/log.log")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestFindLogFile_ExplicitPath(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")
	if err := os.WriteFile(logPath, []byte("test"), 0o644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	found, err := FindLogFile(logPath)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if found != logPath {
		t.Errorf("expected %s, got %s", logPath, found)
	}
}

func TestFindLogFile_DefaultUnderHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	if _, err := FindLogFile(""); err == nil {
		t.Fatal("expected error before any log exists")
	}

	path := filepath.Join(home, ".roomsearch", "logs", "roomsearch.log")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	found, err := FindLogFile("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found != path {
		t.Errorf("expected %s, got %s", path, found)
	}
}

// ============================================================================
// Writer Tests
// ============================================================================

func TestRotatingWriter_ImmediateSync(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")

	w, err := NewRotatingWriter(logPath, 1, 3)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	defer w.Close()

	testData := []byte(`{"time":"2026-01-01T00:00:00Z","level":"INFO","msg":"test"}` + "\n")
	n, err := w.Write(testData)
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if n != len(testData) {
		t.Errorf("expected %d bytes written, got %d", len(testData), n)
	}

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if string(content) != string(testData) {
		t.Errorf("expected %q, got %q", string(testData), string(content))
	}
}

func TestRotatingWriter_DisableImmediateSync(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")

	w, err := NewRotatingWriter(logPath, 1, 3)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	defer w.Close()
	w.SetImmediateSync(false)

	if _, err := w.Write([]byte("line\n")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := w.Sync(); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	content, _ := os.ReadFile(logPath)
	if string(content) != "line\n" {
		t.Errorf("expected %q, got %q", "line\n", string(content))
	}
}

func TestRotatingWriter_Rotation(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "rotate.log")

	w, err := NewRotatingWriter(logPath, 1, 3)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	defer w.Close()
	w.maxSize = 1024

	data := bytes.Repeat([]byte("x"), 800)
	for i := 0; i < 2; i++ {
		if _, err := w.Write(data); err != nil {
			t.Fatalf("write %d failed: %v", i, err)
		}
	}

	if _, err := os.Stat(logPath + ".1"); os.IsNotExist(err) {
		t.Error("rotated file .1 should exist")
	}
	info, err := os.Stat(logPath)
	if err != nil {
		t.Fatalf("main log file should exist: %v", err)
	}
	if info.Size() != int64(len(data)) {
		t.Errorf("expected fresh file of %d bytes, got %d", len(data), info.Size())
	}
}

func TestRotatingWriter_MaxFilesLimit(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "maxfiles.log")

	w, err := NewRotatingWriter(logPath, 1, 2)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	defer w.Close()
	w.maxSize = 512

	data := bytes.Repeat([]byte("y"), 400)
	for i := 0; i < 5; i++ {
		_, _ = w.Write(data)
	}

	for _, suffix := range []string{".1", ".2"} {
		if _, err := os.Stat(logPath + suffix); err != nil {
			t.Errorf("rotated file %s should exist: %v", suffix, err)
		}
	}
	if _, err := os.Stat(logPath + ".3"); !os.IsNotExist(err) {
		t.Error("rotated file .3 should not exist (beyond maxFiles)")
	}
}

func TestRotatingWriter_ZeroSizeNeverRotates(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "unbounded.log")

	w, err := NewRotatingWriter(logPath, 0, 3)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	defer w.Close()

	for i := 0; i < 3; i++ {
		_, _ = w.Write(bytes.Repeat([]byte("z"), 2048))
	}

	if _, err := os.Stat(logPath + ".1"); !os.IsNotExist(err) {
		t.Error("no rotation expected when size limit is disabled")
	}
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	w, err := NewRotatingWriter(filepath.Join(t.TempDir(), "closed.log"), 1, 3)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}

	if err := w.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second close failed: %v", err)
	}
	if _, err := w.Write([]byte("late\n")); err == nil {
		t.Error("expected error writing to a closed writer")
	}
}

func TestRotatingWriter_ConcurrentWrites(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "concurrent.log")

	w, err := NewRotatingWriter(logPath, 10, 3)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	defer w.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = fmt.Fprintf(w, `{"id":%d,"iter":%d,"msg":"test"}`+"\n", id, j)
			}
		}(i)
	}
	wg.Wait()

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("log file should exist: %v", err)
	}
	if got := strings.Count(string(content), "\n"); got != 1000 {
		t.Errorf("expected 1000 lines, got %d", got)
	}
}

// ============================================================================
// Viewer Tests
// ============================================================================

const sampleLog = `{"time":"2026-01-02T10:00:00Z","level":"DEBUG","msg":"room_search","query":"week"}
{"time":"2026-01-02T10:00:01Z","level":"INFO","msg":"room_index_opened","mode":"create"}
not json at all
{"time":"2026-01-02T10:00:02Z","level":"WARN","msg":"catalog_room_close_deferred"}
{"time":"2026-01-02T10:00:03Z","level":"ERROR","msg":"writer_commit_failed","error":"disk full"}
`

func writeSampleLog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roomsearch.log")
	if err := os.WriteFile(path, []byte(sampleLog), 0o644); err != nil {
		t.Fatalf("failed to write sample log: %v", err)
	}
	return path
}

func TestViewer_ParseLine_ValidJSON(t *testing.T) {
	v := NewViewer(ViewerConfig{}, &bytes.Buffer{})

	entry := v.parseLine(`{"time":"2026-01-02T10:00:00Z","level":"INFO","msg":"hello","room":"!a"}`)

	if !entry.IsValid {
		t.Fatal("expected valid entry")
	}
	if entry.Msg != "hello" || entry.Level != "INFO" {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if !entry.Time.Equal(time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected time: %v", entry.Time)
	}
	if entry.Attrs["room"] != "!a" {
		t.Errorf("expected room attr, got %v", entry.Attrs)
	}
	if _, ok := entry.Attrs["msg"]; ok {
		t.Error("standard fields should not be attributes")
	}
}

func TestViewer_ParseLine_InvalidJSON(t *testing.T) {
	v := NewViewer(ViewerConfig{}, &bytes.Buffer{})

	entry := v.parseLine("plain text")

	if entry.IsValid {
		t.Error("expected invalid entry")
	}
	if v.FormatEntry(entry) != "plain text" {
		t.Errorf("invalid entries should format as the raw line, got %q", v.FormatEntry(entry))
	}
}

func TestViewer_FormatEntry(t *testing.T) {
	v := NewViewer(ViewerConfig{NoColor: true}, &bytes.Buffer{})
	entry := v.parseLine(`{"time":"2026-01-02T10:00:00.123Z","level":"warning","msg":"slow","b":2,"a":"x"}`)

	got := v.FormatEntry(entry)

	want := "10:00:00.123 WARN  slow a=x b=2"
	if got != want {
		t.Errorf("FormatEntry = %q, want %q", got, want)
	}
}

func TestViewer_Tail(t *testing.T) {
	path := writeSampleLog(t)
	v := NewViewer(ViewerConfig{}, &bytes.Buffer{})

	entries, err := v.Tail(path, 2)
	if err != nil {
		t.Fatalf("Tail failed: %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Msg != "catalog_room_close_deferred" || entries[1].Msg != "writer_commit_failed" {
		t.Errorf("unexpected tail: %q, %q", entries[0].Msg, entries[1].Msg)
	}
}

func TestViewer_Tail_WithLevelFilter(t *testing.T) {
	path := writeSampleLog(t)
	v := NewViewer(ViewerConfig{Level: "warn"}, &bytes.Buffer{})

	entries, err := v.Tail(path, 100)
	if err != nil {
		t.Fatalf("Tail failed: %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("expected 2 entries at warn and above, got %d", len(entries))
	}
	for _, e := range entries {
		if e.Level != "WARN" && e.Level != "ERROR" {
			t.Errorf("unexpected level %s", e.Level)
		}
	}
}

func TestViewer_Tail_WithPattern(t *testing.T) {
	path := writeSampleLog(t)
	v := NewViewer(ViewerConfig{Pattern: regexp.MustCompile(`room_`)}, &bytes.Buffer{})

	entries, err := v.Tail(path, 100)
	if err != nil {
		t.Fatalf("Tail failed: %v", err)
	}

	if len(entries) != 3 {
		t.Errorf("expected 3 entries matching room_, got %d", len(entries))
	}
}

func TestViewer_Tail_NonexistentFile(t *testing.T) {
	v := NewViewer(ViewerConfig{}, &bytes.Buffer{})

	if _, err := v.Tail("/nonexistent/file.log", 10); err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestViewer_Print(t *testing.T) {
	var out bytes.Buffer
	v := NewViewer(ViewerConfig{NoColor: true}, &out)

	entries, err := v.Tail(writeSampleLog(t), 100)
	if err != nil {
		t.Fatalf("Tail failed: %v", err)
	}
	v.Print(entries)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %d: %q", len(lines), out.String())
	}
	if lines[2] != "not json at all" {
		t.Errorf("expected raw line in output, got %q", lines[2])
	}
	if !strings.Contains(lines[4], "ERROR writer_commit_failed error=disk full") {
		t.Errorf("unexpected line: %q", lines[4])
	}
}

func TestViewer_Follow(t *testing.T) {
	path := writeSampleLog(t)
	v := NewViewer(ViewerConfig{Level: "info"}, &bytes.Buffer{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	entries := make(chan LogEntry, 4)
	done := make(chan error, 1)
	go func() { done <- v.Follow(ctx, path, entries) }()

	// Give Follow time to seek past the existing content.
	time.Sleep(200 * time.Millisecond)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString(`{"time":"2026-01-02T11:00:00Z","level":"DEBUG","msg":"skipped"}` + "\n")
	_, _ = f.WriteString(`{"time":"2026-01-02T11:00:01Z","level":"INFO","msg":"appended"}` + "\n")
	_ = f.Close()

	select {
	case entry := <-entries:
		if entry.Msg != "appended" {
			t.Errorf("expected appended entry, got %q", entry.Msg)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for followed entry")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Follow returned error: %v", err)
	}
}
