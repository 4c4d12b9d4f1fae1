package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.json")

	logger, err := New(Config{Level: "debug", Format: "json", OutputPath: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Debug("walk done", zap.Int("folders", 3))
	logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"folders":3`) {
		t.Errorf("expected structured field in output, got %s", data)
	}
}

func TestSetLevel(t *testing.T) {
	SetLevel("warn")
	if globalLevel.Level() != zapcore.WarnLevel {
		t.Errorf("expected warn level, got %v", globalLevel.Level())
	}

	SetLevel("bogus")
	if globalLevel.Level() != zapcore.WarnLevel {
		t.Errorf("invalid level should be ignored, got %v", globalLevel.Level())
	}
	SetLevel("info")
}

func TestOr(t *testing.T) {
	nop := zap.NewNop()
	if Or(nop) != nop {
		t.Error("expected explicit logger to be returned")
	}
	if Or(nil) == nil {
		t.Error("expected global logger for nil")
	}
}
