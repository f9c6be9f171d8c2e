package logging_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"danmu/internal/config"
	"danmu/internal/logging"
	"danmu/internal/services"
)

func noColor() *bool {
	v := false
	return &v
}

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("daemon ready")

	content, err := os.ReadFile(cfg.LogPath())
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "daemon ready") {
		t.Fatalf("expected message in log file, got %q", content)
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")
	logger, err := logging.New(logging.Options{
		Format:      "console",
		Level:       "info",
		OutputPaths: []string{logPath},
		Color:       noColor(),
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.NewComponentLogger(logger, "importer").Info("message without caller", logging.Int("episodes", 3))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	if strings.Contains(line, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", line)
	}
	if !strings.Contains(line, "INFO importer: message without caller episodes=3") {
		t.Fatalf("unexpected console line %q", line)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")
	logger, err := logging.New(logging.Options{
		Format:      "console",
		Level:       "debug",
		OutputPaths: []string{logPath},
		Color:       noColor(),
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug("message with caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "logger_test.go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestJSONLoggerIncludesContextFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{
		Format:      "json",
		Level:       "info",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithJobID(context.Background(), 7)
	ctx = services.WithJobKind(ctx, "generic_import")
	logging.WithContext(ctx, logger).Info("job started")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(content))), &entry); err != nil {
		t.Fatalf("decode json log: %v (%q)", err, content)
	}
	if entry["msg"] != "job started" || entry["level"] != "info" {
		t.Fatalf("unexpected entry %v", entry)
	}
	if entry[logging.FieldJobID] != float64(7) || entry[logging.FieldJobKind] != "generic_import" {
		t.Fatalf("expected context fields, got %v", entry)
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "warn.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.WarnWithContext(logger, "poster download failed", "poster_download", logging.Error(errors.New("404")))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	for _, key := range []string{logging.FieldEventType, logging.FieldErrorHint, logging.FieldImpact} {
		if !strings.Contains(string(content), `"`+key+`"`) {
			t.Fatalf("expected %s in %q", key, content)
		}
	}
}

func TestUnsupportedFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestEpisodeAttrsPrependsProviderAndIndex(t *testing.T) {
	attrs := logging.EpisodeAttrs("bilibili", 3, logging.String("extra", "x"))
	if len(attrs) != 3 {
		t.Fatalf("expected 3 attrs, got %d", len(attrs))
	}
	if attrs[0].Key != logging.FieldProvider || attrs[0].Value.String() != "bilibili" {
		t.Fatalf("unexpected provider attr %v", attrs[0])
	}
	if attrs[1].Key != logging.FieldEpisodeIndex || attrs[1].Value.Int64() != 3 {
		t.Fatalf("unexpected index attr %v", attrs[1])
	}
	if attrs[2].Key != "extra" {
		t.Fatalf("unexpected trailing attr %v", attrs[2])
	}
}

func TestConsoleLoggerPrefixesEpisodeSubject(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-subject.log")
	logger, err := logging.New(logging.Options{
		Format:      "console",
		Level:       "info",
		OutputPaths: []string{logPath},
		Color:       noColor(),
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	importer := logging.NewComponentLogger(logger, "importer").With(logging.Int64(logging.FieldJobID, 7))
	importer.Info("episode stored", logging.Args(logging.EpisodeAttrs("bilibili", 3, logging.Int("comments", 12))...)...)
	importer.Warn("check failed", logging.Alert("Gateway"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", content)
	}
	if !strings.Contains(lines[0], "INFO importer [bilibili ep 3] job 7: episode stored comments=12") {
		t.Fatalf("unexpected episode line %q", lines[0])
	}
	if !strings.Contains(lines[1], "WARN !Gateway importer job 7: check failed") {
		t.Fatalf("unexpected alert line %q", lines[1])
	}
}
