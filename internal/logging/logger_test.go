package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Jem1004/pklapps-v2-sub000/internal/config"

	"github.com/rs/zerolog"
)

func TestNewFileOutputCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "agent.log")

	logger, closer, err := New(
		config.LoggingConfig{Level: "debug", Output: "file", FilePath: path},
		config.AppConfig{Name: "pklapps-agent"},
	)
	if err != nil {
		t.Fatalf("failed to build logger: %v", err)
	}

	logger.Info().Msg("agent started")
	if closer == nil {
		t.Fatalf("expected a closer for file output")
	}
	if err := closer.Close(); err != nil {
		t.Fatalf("close log file: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "pklapps-agent") {
		t.Errorf("expected app name in log record, got %s", data)
	}
	if !strings.Contains(string(data), "agent started") {
		t.Errorf("expected message in log record, got %s", data)
	}
}

func TestNewFileOutputRequiresPath(t *testing.T) {
	if _, _, err := New(config.LoggingConfig{Output: "file"}, config.AppConfig{}); err == nil {
		t.Fatalf("expected error for file output without file_path")
	}
}

func TestNewInvalidLevelFallsBackToInfo(t *testing.T) {
	logger, _, err := New(config.LoggingConfig{Level: "chatty"}, config.AppConfig{})
	if err != nil {
		t.Fatalf("failed to build logger: %v", err)
	}
	if logger.GetLevel() != zerolog.InfoLevel {
		t.Errorf("expected info level fallback, got %s", logger.GetLevel())
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	child := WithComponent(&base, "syncer")
	child.Info().Msg("pass finished")

	if !strings.Contains(buf.String(), `"component":"syncer"`) {
		t.Errorf("expected component field, got %s", buf.String())
	}
}
